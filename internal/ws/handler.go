package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/hub"
	"github.com/umutsatir/brainstorming-application/internal/identity"
	"github.com/umutsatir/brainstorming-application/internal/orchestrator"
	"github.com/umutsatir/brainstorming-application/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	// clients ping well inside this window
	readIdle = 60 * time.Second
)

type Deps struct {
	Orchestrator   *orchestrator.Orchestrator
	Hub            *hub.Hub
	Identity       *identity.Resolver
	Logger         *zap.Logger
	OriginPatterns []string
}

// Handler serves /ws/sessions/{id}. The connection receives the caller's
// session state on join, then every event published for the session.
func Handler(d Deps) http.HandlerFunc {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		userID, err := d.Identity.UserID(r)
		if err != nil {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		caller, err := d.Identity.ForSession(r.Context(), sessionID, userID)
		switch {
		case errors.Is(err, engine.ErrNotFound):
			http.Error(w, "session not found", http.StatusNotFound)
			return
		case err != nil:
			log.Error("resolve caller", zap.String("session_id", sessionID), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if _, ok := caller.Role(); !ok {
			http.Error(w, "not part of this session", http.StatusForbidden)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: d.OriginPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		clientID := uuid.NewString()
		out, err := d.Hub.Subscribe(ctx, sessionID, clientID, userID)
		if err != nil {
			conn.Close(websocket.StatusTryAgainLater, "shutting down")
			return
		}
		defer d.Hub.Unsubscribe(sessionID, clientID)

		c := &client{
			conn:      conn,
			orch:      d.Orchestrator,
			caller:    caller,
			sessionID: sessionID,
			replies:   make(chan types.ServerMessage, 8),
			log:       log.With(zap.String("session_id", sessionID), zap.String("user_id", userID)),
		}

		// Writer goroutine
		go func() {
			defer cancel()
			c.writeLoop(ctx, out)
		}()

		c.sendState(ctx)
		c.readLoop(ctx)
	}
}

type client struct {
	conn      *websocket.Conn
	orch      *orchestrator.Orchestrator
	caller    engine.Caller
	sessionID string
	replies   chan types.ServerMessage
	log       *zap.Logger
}

// writeLoop owns every write to the connection.
func (c *client) writeLoop(ctx context.Context, out <-chan engine.Event) {
	for {
		var msg types.ServerMessage
		select {
		case ev, ok := <-out:
			if !ok {
				// dropped by the hub for falling behind, or the hub stopped
				c.conn.Close(websocket.StatusTryAgainLater, "lagging")
				return
			}
			msg = types.FromEvent(ev)
		case msg = <-c.replies:
		case <-ctx.Done():
			return
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			c.log.Error("marshal server message", zap.String("type", msg.Type), zap.Error(err))
			continue
		}
		wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
		err = c.conn.Write(wctx, websocket.MessageText, payload)
		wcancel()
		if err != nil {
			return
		}
	}
}

func (c *client) readLoop(ctx context.Context) {
	for {
		rctx, rcancel := context.WithTimeout(ctx, readIdle)
		_, data, err := c.conn.Read(rctx)
		rcancel()
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					c.log.Debug("websocket read ended", zap.Error(err))
				}
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			c.reply(ctx, types.ErrorMessage("bad json"))
			continue
		}
		c.handle(ctx, cm)
	}
}

func (c *client) handle(ctx context.Context, cm types.ClientMessage) {
	switch cm.Type {
	case types.ClientPing:
		c.reply(ctx, types.ServerMessage{Type: types.ServerPong})

	case types.ClientSubmitIdeas:
		if _, err := c.orch.SubmitIdeas(ctx, c.caller, c.sessionID, cm.RoundNumber, cm.Ideas); err != nil {
			c.reply(ctx, types.ErrorMessage(err.Error()))
			return
		}
		c.sendState(ctx)

	case types.ClientSessionControl:
		if _, err := c.orch.Control(ctx, c.caller, c.sessionID, cm.Action); err != nil {
			c.reply(ctx, types.ErrorMessage(err.Error()))
		}

	default:
		c.reply(ctx, types.ErrorMessage("unknown type"))
	}
}

func (c *client) sendState(ctx context.Context) {
	state, err := c.orch.SessionState(ctx, c.caller, c.sessionID)
	if err != nil {
		c.reply(ctx, types.ErrorMessage(err.Error()))
		return
	}
	c.reply(ctx, types.ServerMessage{Type: types.ServerSessionState, SessionID: c.sessionID, Payload: state})
}

func (c *client) reply(ctx context.Context, msg types.ServerMessage) {
	select {
	case c.replies <- msg:
	case <-ctx.Done():
	}
}
