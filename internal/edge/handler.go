// Package edge serves the signaling protocol behind a single HTTP entry point,
// the way an edge function would: one handler, one upgrade path, JSON 404 for
// everything else.
package edge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/mossy-p/call-signaling/internal/middleware"
	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/relay"
)

// ConnectPath is the only route the edge handler serves.
const ConnectPath = "/connect"

const writeTimeout = 10 * time.Second

var errSocketClosed = errors.New("socket closed")

// Options configures the edge handler.
type Options struct {
	AllowedOrigins  []string
	Verifier        *middleware.Verifier
	SendBuffer      int
	MaxMessageBytes int64
}

// Handler upgrades GET /connect to a WebSocket bound to the shared hub.
type Handler struct {
	hub    *relay.Hub
	opts   Options
	logger *zap.Logger
}

// NewHandler creates the edge entry point.
func NewHandler(hub *relay.Hub, opts Options, logger *zap.Logger) *Handler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: hub, opts: opts, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || r.URL.Path != ConnectPath {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":     "not found",
			"endpoints": []string{"GET /connect?roomId=&userId=&userType="},
		})
		return
	}
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		writeJSON(w, http.StatusUpgradeRequired, map[string]any{"error": "Expected Upgrade: websocket"})
		return
	}

	if !h.originAllowed(r.Header.Get("Origin")) {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "Origin not allowed"})
		return
	}

	meta, status, err := h.meta(r)
	if err != nil {
		writeJSON(w, status, map[string]any{"error": err.Error()})
		return
	}

	// Origins were checked above against full scheme://host values, which
	// coder/websocket's host-only patterns cannot express.
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Warn("failed to accept websocket", zap.Error(err))
		return
	}
	if h.opts.MaxMessageBytes > 0 {
		ws.SetReadLimit(h.opts.MaxMessageBytes)
	}

	// The request context ends when the handler returns, so the socket gets
	// its own lifetime.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &socket{
		ws:      ws,
		send:    make(chan []byte, h.opts.SendBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	id := h.hub.Attach(meta, s)
	go s.writeLoop(ctx)

	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				h.logger.Debug("edge socket read failed", zap.String("conn", string(id)), zap.Error(err))
			}
			break
		}
		if typ != websocket.MessageText {
			continue
		}
		h.hub.Receive(id, data)
	}

	h.hub.Detach(id)
	s.Close()
	<-s.stopped
	ws.CloseNow()
}

// originAllowed matches the whole Origin header against the configured list.
// An empty list, or a client that sends no Origin, is allowed.
func (h *Handler) originAllowed(origin string) bool {
	if len(h.opts.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, origin)
}

func (h *Handler) meta(r *http.Request) (relay.Meta, int, error) {
	q := r.URL.Query()
	userType, ok := models.ParseUserType(q.Get("userType"))
	if !ok {
		return relay.Meta{}, http.StatusBadRequest, errors.New("userType must be doctor, patient or unknown")
	}
	meta := relay.Meta{UserID: q.Get("userId"), UserType: userType, RoomID: q.Get("roomId")}

	if h.opts.Verifier != nil {
		userID, err := h.opts.Verifier.Verify(middleware.TokenFromRequest(r))
		if err != nil {
			return relay.Meta{}, http.StatusUnauthorized, err
		}
		meta.UserID = userID
	}
	return meta, 0, nil
}

// socket adapts a coder/websocket connection to relay.Sender.
type socket struct {
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func (s *socket) Send(frame []byte) error {
	select {
	case <-s.done:
		return errSocketClosed
	default:
	}
	select {
	case s.send <- frame:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

func (s *socket) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *socket) writeLoop(ctx context.Context) {
	defer close(s.stopped)
	for {
		select {
		case frame := <-s.send:
			if err := s.write(ctx, frame); err != nil {
				s.ws.CloseNow()
				return
			}
		case <-s.done:
			if err := s.drain(ctx); err != nil {
				s.ws.CloseNow()
				return
			}
			s.ws.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

// drain writes the frames still queued when the socket was closed.
func (s *socket) drain(ctx context.Context) error {
	for {
		select {
		case frame := <-s.send:
			if err := s.write(ctx, frame); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *socket) write(ctx context.Context, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.ws.Write(ctx, websocket.MessageText, frame)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
