package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/store"
)

func TestInsertIdeas_RejectsSecondSubmissionFromSameAuthor(t *testing.T) {
	ctx := context.Background()
	s := New()

	batch := func(texts ...string) []engine.Idea {
		out := make([]engine.Idea, 0, len(texts))
		for i, txt := range texts {
			out = append(out, engine.Idea{SessionID: "s1", RoundID: "r1", AuthorID: "u1", Position: i, Text: txt})
		}
		return out
	}

	require.NoError(t, s.InsertIdeas(ctx, batch("a", "b", "c")))
	err := s.InsertIdeas(ctx, batch("d", "e", "f"))
	require.ErrorIs(t, err, store.ErrConflict)

	ideas, err := s.ListIdeas(ctx, store.IdeaFilter{RoundID: "r1", AuthorID: "u1"})
	require.NoError(t, err)
	require.Len(t, ideas, 3)
	assert.Equal(t, "a", ideas[0].Text)
	assert.NotEmpty(t, ideas[0].ID)

	n, err := s.DeleteIdeas(ctx, "r1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, s.InsertIdeas(ctx, batch("d", "e", "f")))
}

func TestRounds_UniquePerSessionNumber(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := engine.NewRound("s1", 1, time.Minute)
	require.NoError(t, s.CreateRound(ctx, &r))
	dup := engine.NewRound("s1", 1, time.Minute)
	require.ErrorIs(t, s.CreateRound(ctx, &dup), store.ErrConflict)

	r2 := engine.NewRound("s1", 2, time.Minute)
	require.NoError(t, s.CreateRound(ctx, &r2))

	rounds, err := s.ListRounds(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, 1, rounds[0].Number)
	assert.Equal(t, 2, rounds[1].Number)

	_, err = s.GetRound(ctx, "s1", 3)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessions_ListByStatus(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := engine.NewSession("t", "a", 5, time.Minute)
	b := engine.NewSession("t", "b", 5, time.Minute)
	require.NoError(t, s.CreateSession(ctx, &a))
	require.NoError(t, s.CreateSession(ctx, &b))

	b.Status = engine.SessionRunning
	require.NoError(t, s.UpdateSession(ctx, b))

	running, err := s.ListSessionsByStatus(ctx, engine.SessionRunning)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, b.ID, running[0].ID)

	err = s.UpdateSession(ctx, engine.Session{ID: "missing"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetTeam_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.PutTeam(ctx, engine.Team{ID: "t1", LeaderID: "u0", Members: []engine.Member{{UserID: "u1", JoinSeq: 1}}}))

	team, err := s.GetTeam(ctx, "t1")
	require.NoError(t, err)
	team.Members[0].UserID = "mutated"

	again, err := s.GetTeam(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "u1", again.Members[0].UserID)
}

func TestUpdateRound_FinishesOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	r := engine.NewRound("s1", 1, time.Minute)
	require.NoError(t, r.Start(start))
	require.NoError(t, s.CreateRound(ctx, &r))

	first, second := r, r
	require.True(t, first.Finish(start.Add(time.Second)))
	require.True(t, second.Finish(start.Add(2*time.Second)))

	require.NoError(t, s.UpdateRound(ctx, first))
	require.ErrorIs(t, s.UpdateRound(ctx, second), store.ErrConflict)

	got, err := s.GetRound(ctx, "s1", 1)
	require.NoError(t, err)
	assert.Equal(t, engine.TimerFinished, got.TimerState)
	assert.Equal(t, first.EndTime, got.EndTime)
}
