// Package notify fans orchestrator events out to more than one sink and
// relays them to other processes through Redis pub/sub.
package notify

import (
	"time"

	"github.com/umutsatir/brainstorming-application/internal/engine"
)

type Notifier interface {
	Publish(ev engine.Event)
}

// Multi publishes every event to each notifier in order.
type Multi []Notifier

func (m Multi) Publish(ev engine.Event) {
	for _, n := range m {
		if n != nil {
			n.Publish(ev)
		}
	}
}

// Envelope is the JSON form of an event outside the process.
type Envelope struct {
	Type      engine.EventKind `json:"type"`
	SessionID string           `json:"sessionId"`
	Round     int              `json:"round,omitempty"`
	At        time.Time        `json:"at"`
	Payload   any              `json:"payload,omitempty"`
}

func EnvelopeOf(ev engine.Event) Envelope {
	return Envelope{
		Type:      ev.Kind,
		SessionID: ev.SessionID,
		Round:     ev.Round,
		At:        ev.At,
		Payload:   ev.Payload,
	}
}
