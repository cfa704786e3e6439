package hub

import (
	"time"

	"github.com/umutsatir/brainstorming-application/internal/engine"
)

type topicMsg interface{ isTopicMsg() }

type join struct {
	ClientID string
	UserID   string
	Outbox   chan engine.Event // where this client wants to receive events
}

func (join) isTopicMsg() {}

type leave struct{ ClientID string }

func (leave) isTopicMsg() {}

type deliver struct{ Event engine.Event }

func (deliver) isTopicMsg() {}

type countClients struct{ Reply chan int }

func (countClients) isTopicMsg() {}

type stop struct{}

func (stop) isTopicMsg() {}

// Presence is the payload of user_joined and user_left.
type Presence struct {
	UserID string `json:"userId"`
	Online int    `json:"online"`
}

type subscriber struct {
	userID string
	outbox chan engine.Event
}

// topic fans one session's events out to its subscribers. It runs as its
// own goroutine and never blocks on a subscriber.
type topic struct {
	sessionID string
	inbox     chan topicMsg
	clients   map[string]subscriber
	onDrop    func()
}

func newTopic(sessionID string, onDrop func()) *topic {
	t := &topic{
		sessionID: sessionID,
		inbox:     make(chan topicMsg, 64),
		clients:   make(map[string]subscriber),
		onDrop:    onDrop,
	}
	go t.loop()
	return t
}

func (t *topic) loop() {
	for m := range t.inbox {
		switch msg := m.(type) {
		case join:
			t.clients[msg.ClientID] = subscriber{userID: msg.UserID, outbox: msg.Outbox}
			t.broadcast(t.presence(engine.EvtUserJoined, msg.UserID))

		case leave:
			sub, ok := t.clients[msg.ClientID]
			if !ok {
				// already dropped as a slow client
				break
			}
			close(sub.outbox)
			delete(t.clients, msg.ClientID)
			t.broadcast(t.presence(engine.EvtUserLeft, sub.userID))

		case deliver:
			t.broadcast(msg.Event)

		case countClients:
			msg.Reply <- len(t.clients)

		case stop:
			for id, sub := range t.clients {
				close(sub.outbox) // no more events
				delete(t.clients, id)
			}
			return
		}
	}
}

func (t *topic) presence(kind engine.EventKind, userID string) engine.Event {
	return engine.Event{
		Kind:      kind,
		SessionID: t.sessionID,
		At:        time.Now(),
		Payload:   Presence{UserID: userID, Online: len(t.clients)},
	}
}

func (t *topic) broadcast(ev engine.Event) {
	for id, sub := range t.clients {
		select {
		case sub.outbox <- ev:
		default:
			// Client is slow/full - drop them.
			close(sub.outbox)
			delete(t.clients, id)
			if t.onDrop != nil {
				t.onDrop()
			}
		}
	}
}
