// Package hub is the in-process notification fan-out: one topic per session,
// each subscriber owning a bounded outbox that is closed when it falls
// behind.
package hub

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/metrics"
)

var ErrClosed = errors.New("hub: closed")

type hubMsg interface{ isHubMsg() }

type subscribe struct {
	SessionID string
	ClientID  string
	UserID    string
	Outbox    chan engine.Event
}

type unsubscribe struct {
	SessionID string
	ClientID  string
}

type publish struct{ Event engine.Event }

type getStats struct{ Reply chan Stats }

type shutdownHub struct{}

func (subscribe) isHubMsg()   {}
func (unsubscribe) isHubMsg() {}
func (publish) isHubMsg()     {}
func (getStats) isHubMsg()    {}
func (shutdownHub) isHubMsg() {}

// Stats is a race-free view of the hub for health checks and tests.
type Stats struct {
	Topics      int
	Subscribers map[string]int
}

type topicEntry struct {
	t       *topic
	clients map[string]bool
}

type Options struct {
	Metrics    *metrics.Recorder
	Logger     *zap.Logger
	OutboxSize int
}

type Hub struct {
	inbox      chan hubMsg
	topics     map[string]*topicEntry
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	metrics    *metrics.Recorder
	log        *zap.Logger
	outboxSize int
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:      make(chan hubMsg, 256),
		topics:     make(map[string]*topicEntry),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		metrics:    opts.Metrics,
		log:        opts.Logger,
		outboxSize: opts.OutboxSize,
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if h.outboxSize <= 0 {
		h.outboxSize = 32
	}
	go h.loop()
	return h
}

// Subscribe registers a client on a session topic and returns its outbox.
// The outbox is closed on Unsubscribe, on shutdown, or when the client is
// too slow to keep up.
func (h *Hub) Subscribe(ctx context.Context, sessionID, clientID, userID string) (<-chan engine.Event, error) {
	out := make(chan engine.Event, h.outboxSize)
	msg := subscribe{SessionID: sessionID, ClientID: clientID, UserID: userID, Outbox: out}
	if err := h.send(ctx, msg); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *Hub) Unsubscribe(sessionID, clientID string) {
	_ = h.send(context.Background(), unsubscribe{SessionID: sessionID, ClientID: clientID})
}

// Publish never blocks. When the hub is backed up the event is dropped.
func (h *Hub) Publish(ev engine.Event) {
	select {
	case h.inbox <- publish{Event: ev}:
	default:
		h.metrics.NotificationDropped("hub")
		h.log.Warn("hub inbox full, dropping event",
			zap.String("session_id", ev.SessionID),
			zap.String("kind", string(ev.Kind)))
	}
}

func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if err := h.send(ctx, getStats{Reply: reply}); err != nil {
		return Stats{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-h.ctx.Done():
		return Stats{}, ErrClosed
	}
}

// Shutdown closes every outbox and returns once the hub has stopped.
func (h *Hub) Shutdown() {
	_ = h.send(context.Background(), shutdownHub{})
	<-h.done
}

func (h *Hub) send(ctx context.Context, m hubMsg) error {
	if h.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case h.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrClosed
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.stopAll()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case subscribe:
				e := h.topics[msg.SessionID]
				if e == nil {
					e = &topicEntry{
						t:       newTopic(msg.SessionID, h.dropped),
						clients: make(map[string]bool),
					}
					h.topics[msg.SessionID] = e
				}
				e.clients[msg.ClientID] = true
				e.t.inbox <- join{ClientID: msg.ClientID, UserID: msg.UserID, Outbox: msg.Outbox}

			case unsubscribe:
				e := h.topics[msg.SessionID]
				if e == nil || !e.clients[msg.ClientID] {
					break
				}
				delete(e.clients, msg.ClientID)
				e.t.inbox <- leave{ClientID: msg.ClientID}
				if len(e.clients) == 0 {
					// last one out stops the topic
					e.t.inbox <- stop{}
					delete(h.topics, msg.SessionID)
				}

			case publish:
				e := h.topics[msg.Event.SessionID]
				if e == nil {
					break // nobody listening
				}
				select {
				case e.t.inbox <- deliver{Event: msg.Event}:
				default:
					h.dropped()
				}

			case getStats:
				s := Stats{Topics: len(h.topics), Subscribers: make(map[string]int, len(h.topics))}
				for id, e := range h.topics {
					reply := make(chan int, 1)
					e.t.inbox <- countClients{Reply: reply}
					s.Subscribers[id] = <-reply
				}
				msg.Reply <- s

			case shutdownHub:
				h.stopAll()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) stopAll() {
	for id, e := range h.topics {
		e.t.inbox <- stop{}
		delete(h.topics, id)
	}
}

func (h *Hub) dropped() {
	h.metrics.NotificationDropped("subscriber")
}
