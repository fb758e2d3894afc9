package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/relay"
)

type nopSender struct{}

func (nopSender) Send([]byte) error { return nil }
func (nopSender) Close() error      { return nil }

type stubSource struct {
	members []models.Member
	err     error
}

func (s stubSource) Members(context.Context, string) ([]models.Member, error) {
	return s.members, s.err
}

func newPresenceHub() *relay.Hub {
	hub := relay.NewHub(relay.New(relay.Options{}), nil)
	hub.Attach(relay.Meta{UserID: "pat1", UserType: models.UserTypePatient, RoomID: "room-42"}, nopSender{})
	hub.Attach(relay.Meta{UserID: "doc1", UserType: models.UserTypeDoctor, RoomID: "room-42"}, nopSender{})
	return hub
}

func get(t *testing.T, router http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetRoom(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		source     MemberSource
		wantStatus int
		wantBody   string
	}{
		{
			name:       "local presence",
			path:       "/api/rooms/room-42",
			wantStatus: http.StatusOK,
			wantBody: `{"roomId":"room-42","count":2,"members":[
				{"userId":"doc1","userType":"doctor"},{"userId":"pat1","userType":"patient"}]}`,
		},
		{
			name:       "empty room",
			path:       "/api/rooms/room-0",
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"Room not found"}`,
		},
		{
			name:       "shared source",
			path:       "/api/rooms/room-42",
			source:     stubSource{members: []models.Member{{UserID: "remote", UserType: models.UserTypePatient}}},
			wantStatus: http.StatusOK,
			wantBody:   `{"roomId":"room-42","count":1,"members":[{"userId":"remote","userType":"patient"}]}`,
		},
		{
			name:       "shared source failure falls back",
			path:       "/api/rooms/room-42",
			source:     stubSource{err: errors.New("connection refused")},
			wantStatus: http.StatusOK,
			wantBody: `{"roomId":"room-42","count":2,"members":[
				{"userId":"doc1","userType":"doctor"},{"userId":"pat1","userType":"patient"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(RouterOptions{Hub: newPresenceHub(), Path: "/signal", Members: tt.source})

			w := get(t, router, tt.path, nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestGetUser(t *testing.T) {
	router := NewRouter(RouterOptions{Hub: newPresenceHub(), Path: "/signal"})

	w := get(t, router, "/api/users/doc1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userId":"doc1","online":true,"userType":"doctor","roomId":"room-42"}`, w.Body.String())

	w = get(t, router, "/api/users/ghost", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userId":"ghost","online":false}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	router := NewRouter(RouterOptions{Hub: newPresenceHub(), Path: "/signal"})

	w := get(t, router, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["rooms"])
	assert.EqualValues(t, 2, body["connections"])
}

func TestOriginFilter(t *testing.T) {
	router := NewRouter(RouterOptions{
		Hub:            newPresenceHub(),
		Path:           "/signal",
		AllowedOrigins: []string{"https://app.example.com"},
	})

	tests := []struct {
		name       string
		origin     string
		wantStatus int
		wantCORS   string
	}{
		{name: "allowed", origin: "https://app.example.com", wantStatus: http.StatusOK, wantCORS: "https://app.example.com"},
		{name: "rejected", origin: "https://evil.example.com", wantStatus: http.StatusForbidden},
		{name: "no origin", wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}

			w := get(t, router, "/health", header)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCORS, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
