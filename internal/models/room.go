package models

// Member is one connection's public presence within a room
type Member struct {
	UserID   string   `json:"userId"`
	UserType UserType `json:"userType,omitempty"`
}

// RoomPresence is the response body for the room presence endpoint
type RoomPresence struct {
	RoomID  string   `json:"roomId"`
	Members []Member `json:"members"`
	Count   int      `json:"count"`
}

// UserPresence is the response body for the user presence endpoint
type UserPresence struct {
	UserID   string   `json:"userId"`
	Online   bool     `json:"online"`
	UserType UserType `json:"userType,omitempty"`
	RoomID   string   `json:"roomId,omitempty"`
}

// Stats summarizes the registry for the health endpoint
type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
	Users       int `json:"users"`
}
