package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/orchestrator"
	"github.com/umutsatir/brainstorming-application/internal/store/memory"
)

type stubTicker struct {
	mu      sync.Mutex
	ids     []string
	failing map[string]bool
	ticked  []string
}

func (s *stubTicker) RunningSessions(context.Context) ([]engine.Session, error) {
	out := make([]engine.Session, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, engine.Session{ID: id, Status: engine.SessionRunning})
	}
	return out, nil
}

func (s *stubTicker) Tick(_ context.Context, id string) (orchestrator.TickResult, error) {
	s.mu.Lock()
	s.ticked = append(s.ticked, id)
	s.mu.Unlock()
	if s.failing[id] {
		return orchestrator.TickResult{}, errors.New("store unavailable")
	}
	return orchestrator.TickResult{
		SessionID:        id,
		Status:           engine.SessionRunning,
		RoundNumber:      1,
		TimerState:       engine.TimerRunning,
		RemainingSeconds: 42,
	}, nil
}

type eventSink struct {
	mu     sync.Mutex
	events []engine.Event
}

func (e *eventSink) Publish(ev engine.Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func TestSweep_FailingSessionDoesNotBlockOthers(t *testing.T) {
	ticker := &stubTicker{ids: []string{"a", "b", "c", "d"}, failing: map[string]bool{"b": true}}
	sink := &eventSink{}
	s := New(Options{Ticker: ticker, Notifier: sink, Logger: zaptest.NewLogger(t), Concurrency: 2})

	err := s.Sweep(context.Background())
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "session b")

	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, ticker.ticked)
	require.Len(t, sink.events, 3)
	for _, ev := range sink.events {
		assert.Equal(t, engine.EvtTimerTick, ev.Kind)
		assert.Equal(t, 42, ev.Payload.(orchestrator.TimerTick).RemainingSeconds)
	}
}

func TestSweep_AdvancesExpiredRound(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	team := engine.Team{ID: "t1", LeaderID: "lead", Members: []engine.Member{{UserID: "m1", JoinSeq: 1}}}
	require.NoError(t, store.PutTeam(ctx, team))

	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	o := orchestrator.New(orchestrator.Options{
		Store:         store,
		Logger:        zaptest.NewLogger(t),
		Clock:         clock,
		TeamSize:      2,
		RoundCount:    2,
		RoundDuration: time.Minute,
	})
	lead := engine.CallerFor(team, "lead")
	sess, err := o.CreateSession(ctx, lead, orchestrator.CreateSessionRequest{TeamID: "t1"})
	require.NoError(t, err)
	_, err = o.Start(ctx, lead, sess.ID)
	require.NoError(t, err)

	sink := &eventSink{}
	s := New(Options{Ticker: o, Notifier: sink, Logger: zaptest.NewLogger(t), Concurrency: 4})

	require.NoError(t, s.Sweep(ctx))
	require.Len(t, sink.events, 1, "a running round only ticks")

	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()
	require.NoError(t, s.Sweep(ctx))

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentRound)

	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()
	require.NoError(t, s.Sweep(ctx))
	got, err = store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.SessionCompleted, got.Status)

	running, err := o.RunningSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, running)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ticker := &stubTicker{ids: []string{"a"}}
	s := New(Options{Ticker: ticker, Logger: zaptest.NewLogger(t), Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		ticker.mu.Lock()
		defer ticker.mu.Unlock()
		return len(ticker.ticked) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
