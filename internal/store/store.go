package store

import (
	"context"
	"errors"

	"github.com/umutsatir/brainstorming-application/internal/engine"
)

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("store: not found")

// ErrConflict indicates a uniqueness constraint rejected a write, e.g. a
// second submission by the same author for the same round.
var ErrConflict = errors.New("store: conflict")

// IdeaFilter narrows ListIdeas. Empty fields match everything.
type IdeaFilter struct {
	SessionID string
	RoundID   string
	AuthorID  string
}

// Directory is the read-only view of externally managed teams and users.
type Directory interface {
	GetTeam(ctx context.Context, id string) (engine.Team, error)
	GetUser(ctx context.Context, id string) (engine.User, error)
}

// Roster writes teams and users. Only bootstrap code (fixtures, admin
// tooling) uses it; the session core treats teams as read-only.
type Roster interface {
	PutUser(ctx context.Context, u engine.User) error
	PutTeam(ctx context.Context, t engine.Team) error
}

type SessionRepository interface {
	CreateSession(ctx context.Context, s *engine.Session) error
	GetSession(ctx context.Context, id string) (engine.Session, error)
	UpdateSession(ctx context.Context, s engine.Session) error
	ListSessionsByStatus(ctx context.Context, status engine.SessionStatus) ([]engine.Session, error)
}

type RoundRepository interface {
	CreateRound(ctx context.Context, r *engine.Round) error
	GetRound(ctx context.Context, sessionID string, number int) (engine.Round, error)
	// UpdateRound returns ErrConflict when r is FINISHED and the stored round
	// already is, so only one writer finishes a round.
	UpdateRound(ctx context.Context, r engine.Round) error
	ListRounds(ctx context.Context, sessionID string) ([]engine.Round, error)
}

type IdeaRepository interface {
	// InsertIdeas writes a whole submission or nothing. It returns
	// ErrConflict when the author already has ideas in that round.
	InsertIdeas(ctx context.Context, ideas []engine.Idea) error
	ListIdeas(ctx context.Context, f IdeaFilter) ([]engine.Idea, error)
	GetIdea(ctx context.Context, id string) (engine.Idea, error)
	UpdateIdea(ctx context.Context, idea engine.Idea) error
	DeleteIdeas(ctx context.Context, roundID, authorID string) (int, error)
}

type LogRepository interface {
	AppendLog(ctx context.Context, l engine.SessionLog) error
	ListLogs(ctx context.Context, sessionID string) ([]engine.SessionLog, error)
}

// Store is everything the session core persists.
type Store interface {
	Directory
	Roster
	SessionRepository
	RoundRepository
	IdeaRepository
	LogRepository

	// Tx runs fn against a store whose writes commit together.
	Tx(ctx context.Context, fn func(Store) error) error
}
