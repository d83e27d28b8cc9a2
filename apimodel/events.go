package apimodel

import "encoding/json"

// Realtime event names pushed by the backend.
const (
	EventAuthLogout  = "auth:logout"
	EventAuthAccount = "auth:account"
)

// Client-to-server room commands.
const (
	CommandJoinRoom  = "room:join"
	CommandLeaveRoom = "room:leave"
)

// AccountAction is the payload action of an auth:account event.
type AccountAction string

const (
	AccountActionUpdate  AccountAction = "update"
	AccountActionWarning AccountAction = "warning"
	AccountActionDelete  AccountAction = "delete"
)

// Envelope is the wire framing of every realtime message in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AccountEvent is the payload of an auth:account event.
type AccountEvent struct {
	Action AccountAction `json:"action"`
	UserID string        `json:"userId"`
}

// LogoutEvent is the payload of an auth:logout event.
type LogoutEvent struct {
	UserID string `json:"userId"`
}

// RoomCommand is the payload of a room:join / room:leave command.
type RoomCommand struct {
	Room string `json:"room"`
}
