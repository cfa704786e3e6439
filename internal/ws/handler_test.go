package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/hub"
	"github.com/umutsatir/brainstorming-application/internal/identity"
	"github.com/umutsatir/brainstorming-application/internal/orchestrator"
	"github.com/umutsatir/brainstorming-application/internal/store/memory"
	"github.com/umutsatir/brainstorming-application/internal/types"
)

type wsFixture struct {
	srv       *httptest.Server
	sessionID string
}

func newFixture(t *testing.T) wsFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := zaptest.NewLogger(t)

	s := memory.New()
	for _, id := range []string{"lead", "m1", "stranger"} {
		if err := s.PutUser(ctx, engine.User{ID: id, FullName: id}); err != nil {
			t.Fatalf("put user: %v", err)
		}
	}
	team := engine.Team{ID: "t1", LeaderID: "lead", Members: []engine.Member{{UserID: "m1", JoinSeq: 1}}}
	if err := s.PutTeam(ctx, team); err != nil {
		t.Fatalf("put team: %v", err)
	}

	h := hub.NewHub(ctx, hub.Options{Logger: log})
	t.Cleanup(h.Shutdown)
	orch := orchestrator.New(orchestrator.Options{
		Store:         s,
		Notifier:      h,
		Logger:        log,
		IdeasPerRound: 1,
		TeamSize:      2,
		RoundCount:    2,
		RoundDuration: time.Minute,
	})
	sess, err := orch.CreateSession(ctx, engine.Caller{UserID: "lead", IsLeader: true}, orchestrator.CreateSessionRequest{TeamID: "t1", Topic: "naming"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/ws/sessions/{id}", Handler(Deps{
		Orchestrator: orch,
		Hub:          h,
		Identity:     identity.NewResolver(identity.Options{AllowDevHeader: true, Lookup: s}),
		Logger:       log,
	}))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return wsFixture{srv: srv, sessionID: sess.ID}
}

func (f wsFixture) url(sessionID, user string) string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/sessions/" + sessionID + "?user=" + user
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// readUntil skips messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var msg map[string]any
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg["type"] == typ {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, cm types.ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, cm); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHandler_StateOnJoinAndPing(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.url(f.sessionID, "m1"))

	state := readUntil(t, conn, types.ServerSessionState)
	payload := state["payload"].(map[string]any)
	if payload["role"] != "member" {
		t.Fatalf("want member role, got %v", payload["role"])
	}

	send(t, conn, types.ClientMessage{Type: types.ClientPing})
	readUntil(t, conn, types.ServerPong)

	send(t, conn, types.ClientMessage{Type: "dance"})
	if msg := readUntil(t, conn, types.ServerError); msg["error"] != "unknown type" {
		t.Fatalf("unexpected error %v", msg["error"])
	}
}

func TestHandler_ControlAndSubmitBroadcast(t *testing.T) {
	f := newFixture(t)
	leader := dial(t, f.url(f.sessionID, "lead"))
	member := dial(t, f.url(f.sessionID, "m1"))
	readUntil(t, leader, types.ServerSessionState)
	readUntil(t, member, types.ServerSessionState)

	// members cannot control the session
	send(t, member, types.ClientMessage{Type: types.ClientSessionControl, Action: "start"})
	readUntil(t, member, types.ServerError)

	send(t, leader, types.ClientMessage{Type: types.ClientSessionControl, Action: "start"})
	started := readUntil(t, member, string(engine.EvtRoundStarted))
	if started["round"] != float64(1) {
		t.Fatalf("want round 1, got %v", started["round"])
	}

	send(t, leader, types.ClientMessage{Type: types.ClientSubmitIdeas, RoundNumber: 1, Ideas: []string{"alpha"}})
	readUntil(t, member, string(engine.EvtIdeasSubmitted))
	send(t, member, types.ClientMessage{Type: types.ClientSubmitIdeas, RoundNumber: 1, Ideas: []string{"beta"}})

	// the last submission closes round 1 and opens round 2 for everyone
	finished := readUntil(t, leader, string(engine.EvtRoundFinished))
	if finished["round"] != float64(1) {
		t.Fatalf("want round 1 finished, got %v", finished["round"])
	}
	if next := readUntil(t, leader, string(engine.EvtRoundStarted)); next["round"] != float64(2) {
		t.Fatalf("want round 2, got %v", next["round"])
	}
}

func TestHandler_RejectsBeforeUpgrade(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		url  string
		want int
	}{
		{"anonymous", f.srv.URL + "/ws/sessions/" + f.sessionID, http.StatusUnauthorized},
		{"unknown session", f.srv.URL + "/ws/sessions/nope?user=m1", http.StatusNotFound},
		{"outsider", f.srv.URL + "/ws/sessions/" + f.sessionID + "?user=stranger", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(tc.url)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("want %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}
