package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func startedRound(t *testing.T, d time.Duration) Round {
	t.Helper()
	r := NewRound("s1", 1, d)
	require.NoError(t, r.Start(t0))
	return r
}

func TestRound_Remaining(t *testing.T) {
	r := startedRound(t, 60*time.Second)

	assert.Equal(t, 60, r.RemainingSeconds(t0))
	assert.Equal(t, 60, r.RemainingSeconds(t0.Add(500*time.Millisecond)))
	assert.Equal(t, 0, r.RemainingSeconds(t0.Add(75*time.Second)))
	assert.False(t, r.Expired(t0.Add(59*time.Second)))
	assert.True(t, r.Expired(t0.Add(60*time.Second)))
}

func TestRound_PauseResumeKeepsElapsed(t *testing.T) {
	r := startedRound(t, 60*time.Second)

	require.NoError(t, r.Pause(t0.Add(30*time.Second)))
	// Frozen while paused, no matter how long.
	assert.Equal(t, 30, r.RemainingSeconds(t0.Add(10*time.Minute)))
	assert.False(t, r.Expired(t0.Add(10*time.Minute)))

	resumeAt := t0.Add(10 * time.Minute)
	require.NoError(t, r.Resume(resumeAt))
	assert.Equal(t, 30, r.RemainingSeconds(resumeAt))
	assert.Equal(t, 20, r.RemainingSeconds(resumeAt.Add(10*time.Second)))
	assert.True(t, r.Expired(resumeAt.Add(30*time.Second)))
	require.NotNil(t, r.StartTime)
	assert.Equal(t, t0, *r.StartTime)
}

func TestRound_FinishIsIdempotent(t *testing.T) {
	r := startedRound(t, time.Minute)

	first := t0.Add(10 * time.Second)
	if !r.Finish(first) {
		t.Fatalf("first finish should transition")
	}
	if r.Finish(t0.Add(20 * time.Second)) {
		t.Fatalf("second finish should be a no-op")
	}
	require.NotNil(t, r.EndTime)
	assert.Equal(t, first, *r.EndTime)
	assert.Equal(t, 0, r.RemainingSeconds(first))
	assert.False(t, r.IsOpen())
}

func TestRound_InvalidTransitions(t *testing.T) {
	cases := []struct {
		name  string
		setup func() Round
		apply func(r *Round) error
	}{
		{
			name:  "pause before start",
			setup: func() Round { return NewRound("s1", 1, time.Minute) },
			apply: func(r *Round) error { return r.Pause(t0) },
		},
		{
			name:  "resume a running round",
			setup: func() Round { return startedRound(t, time.Minute) },
			apply: func(r *Round) error { return r.Resume(t0) },
		},
		{
			name:  "start twice",
			setup: func() Round { return startedRound(t, time.Minute) },
			apply: func(r *Round) error { return r.Start(t0) },
		},
		{
			name: "pause a finished round",
			setup: func() Round {
				r := startedRound(t, time.Minute)
				r.Finish(t0)
				return r
			},
			apply: func(r *Round) error { return r.Pause(t0) },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := tc.setup()
			err := tc.apply(&r)
			if err == nil || !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("want ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestRound_FinishWhilePausedKeepsElapsed(t *testing.T) {
	r := startedRound(t, time.Minute)
	require.NoError(t, r.Pause(t0.Add(15*time.Second)))
	r.Finish(t0.Add(time.Hour))
	assert.Equal(t, 15*time.Second, r.Elapsed)
}
