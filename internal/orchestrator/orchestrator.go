// Package orchestrator owns the session lifecycle. Every mutation of a
// session, its rounds and its ideas runs under that session's lock, which
// makes advancing idempotent when the timeout sweep and the submission path
// race for the same round.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/ledger"
	"github.com/umutsatir/brainstorming-application/internal/metrics"
	"github.com/umutsatir/brainstorming-application/internal/store"
)

// Notifier receives post-transition events. Publish must not block.
type Notifier interface {
	Publish(ev engine.Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(engine.Event) {}

// Audit action types.
const (
	actionSessionCreated   = "SESSION_CREATED"
	actionSessionStarted   = "SESSION_STARTED"
	actionSessionPaused    = "SESSION_PAUSED"
	actionSessionResumed   = "SESSION_RESUMED"
	actionSessionCompleted = "SESSION_COMPLETED"
	actionRoundAdvanced    = "ROUND_ADVANCED"
	actionIdeasSubmitted   = "IDEAS_SUBMITTED"
	actionIdeasWithdrawn   = "IDEAS_WITHDRAWN"
	actionIdeaEdited       = "IDEA_EDITED"
)

var (
	errNotController = fmt.Errorf("%w: leader or manager required", engine.ErrUnauthorized)
	errNotSubmitter  = fmt.Errorf("%w: only the leader or a member can submit ideas", engine.ErrUnauthorized)
	errNoRole        = fmt.Errorf("%w: not part of this session's team", engine.ErrUnauthorized)
)

type Options struct {
	Store         store.Store
	Notifier      Notifier
	Metrics       *metrics.Recorder
	Logger        *zap.Logger
	Clock         func() time.Time
	IdeasPerRound int
	TeamSize      int
	RoundCount    int
	RoundDuration time.Duration
}

type Orchestrator struct {
	store         store.Store
	ledger        *ledger.Ledger
	notify        Notifier
	metrics       *metrics.Recorder
	log           *zap.Logger
	now           func() time.Time
	locks         sessionLocks
	teamSize      int
	roundCount    int
	roundDuration time.Duration
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:         opts.Store,
		ledger:        ledger.New(opts.Store, opts.IdeasPerRound),
		notify:        opts.Notifier,
		metrics:       opts.Metrics,
		log:           opts.Logger,
		now:           opts.Clock,
		teamSize:      opts.TeamSize,
		roundCount:    opts.RoundCount,
		roundDuration: opts.RoundDuration,
	}
	if o.notify == nil {
		o.notify = nopNotifier{}
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.teamSize <= 0 {
		o.teamSize = engine.DefaultTeamSize
	}
	if o.roundCount <= 0 {
		o.roundCount = engine.DefaultRoundCount
	}
	if o.roundDuration <= 0 {
		o.roundDuration = engine.DefaultRoundDuration
	}
	return o
}

func (o *Orchestrator) IdeasPerRound() int { return o.ledger.IdeasPerRound() }

func (o *Orchestrator) loadSession(ctx context.Context, s store.Store, id string) (engine.Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.Session{}, fmt.Errorf("%w: session %s", engine.ErrNotFound, id)
		}
		return engine.Session{}, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func (o *Orchestrator) loadRound(ctx context.Context, s store.Store, sessionID string, number int) (engine.Round, error) {
	r, err := s.GetRound(ctx, sessionID, number)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.Round{}, fmt.Errorf("%w: round %d of session %s", engine.ErrNotFound, number, sessionID)
		}
		return engine.Round{}, fmt.Errorf("load round: %w", err)
	}
	return r, nil
}

func (o *Orchestrator) loadTeam(ctx context.Context, s store.Store, teamID string) (engine.Team, []string, error) {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.Team{}, nil, fmt.Errorf("%w: team %s", engine.ErrNotFound, teamID)
		}
		return engine.Team{}, nil, fmt.Errorf("load team: %w", err)
	}
	return team, engine.OrderedParticipants(team), nil
}

func (o *Orchestrator) audit(ctx context.Context, s store.Store, sessionID, userID, action string, payload map[string]any) error {
	err := s.AppendLog(ctx, engine.SessionLog{
		SessionID:  sessionID,
		UserID:     userID,
		ActionType: action,
		Payload:    payload,
		CreatedAt:  o.now(),
	})
	if err != nil {
		return fmt.Errorf("append %s log: %w", action, err)
	}
	return nil
}

func (o *Orchestrator) publish(kind engine.EventKind, sessionID string, round int, payload any) {
	o.notify.Publish(engine.Event{
		Kind:      kind,
		SessionID: sessionID,
		Round:     round,
		At:        o.now(),
		Payload:   payload,
	})
}

// RunningSessions lists the sessions the timeout sweep has to look at.
func (o *Orchestrator) RunningSessions(ctx context.Context) ([]engine.Session, error) {
	sessions, err := o.store.ListSessionsByStatus(ctx, engine.SessionRunning)
	if err != nil {
		return nil, fmt.Errorf("list running sessions: %w", err)
	}
	return sessions, nil
}

// IdeaSession returns the session an idea belongs to, so callers can resolve
// capabilities before editing it.
func (o *Orchestrator) IdeaSession(ctx context.Context, ideaID string) (string, error) {
	idea, err := o.ledger.Idea(ctx, ideaID)
	if err != nil {
		return "", err
	}
	return idea.SessionID, nil
}
