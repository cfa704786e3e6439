package types

import (
	"time"

	"github.com/umutsatir/brainstorming-application/internal/engine"
)

// Client -> Server
// submit_ideas:
//   roundNumber: number
//   ideas: string[]            // exactly ideasPerRound texts
//
// session_control:
//   action: "start" | "pause" | "resume" | "end"
//
// ping: {}
//
// Server -> Client
// session_state:   full state for the connected user, sent on join
// pong:            reply to ping
// error:           error: string
// round_started, round_finished, session_completed, ideas_submitted,
// session_state_changed, timer_tick, user_joined, user_left:
//   sessionId: string
//   round: number
//   at: RFC3339 time
//   payload: event specific object

const (
	ClientSubmitIdeas    = "submit_ideas"
	ClientSessionControl = "session_control"
	ClientPing           = "ping"

	ServerSessionState = "session_state"
	ServerPong         = "pong"
	ServerError        = "error"
)

type ClientMessage struct {
	Type        string   `json:"type"`
	RoundNumber int      `json:"roundNumber,omitempty"`
	Ideas       []string `json:"ideas,omitempty"`
	Action      string   `json:"action,omitempty"`
}

type ServerMessage struct {
	Type      string     `json:"type"`
	SessionID string     `json:"sessionId,omitempty"`
	Round     int        `json:"round,omitempty"`
	At        *time.Time `json:"at,omitempty"`
	Payload   any        `json:"payload,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func FromEvent(ev engine.Event) ServerMessage {
	msg := ServerMessage{
		Type:      string(ev.Kind),
		SessionID: ev.SessionID,
		Round:     ev.Round,
		Payload:   ev.Payload,
	}
	if !ev.At.IsZero() {
		at := ev.At
		msg.At = &at
	}
	return msg
}

func ErrorMessage(err string) ServerMessage {
	return ServerMessage{Type: ServerError, Error: err}
}
