package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/metrics"
	"github.com/umutsatir/brainstorming-application/internal/store"
)

type CreateSessionRequest struct {
	TeamID        string
	Topic         string
	RoundCount    int
	RoundDuration time.Duration
}

// AdvanceResult reports the outcome of an advance. Advanced is false when
// the call found nothing to do because another caller already advanced.
type AdvanceResult struct {
	Advanced            bool                  `json:"advanced"`
	PreviousRoundStatus string                `json:"previousRoundStatus"`
	CurrentRound        int                   `json:"currentRound"`
	PassedIdeaMap       map[string][]IdeaView `json:"passedIdeaMap,omitempty"`
}

// TickResult is what one sweep pass observed for a session.
type TickResult struct {
	SessionID        string
	Status           engine.SessionStatus
	RoundNumber      int
	TimerState       engine.TimerState
	RemainingSeconds int
	Advance          *AdvanceResult
}

func (o *Orchestrator) CreateSession(ctx context.Context, caller engine.Caller, req CreateSessionRequest) (engine.Session, error) {
	if !caller.CanControl() {
		return engine.Session{}, errNotController
	}
	_, participants, err := o.loadTeam(ctx, o.store, req.TeamID)
	if err != nil {
		return engine.Session{}, err
	}
	if len(participants) != o.teamSize {
		return engine.Session{}, fmt.Errorf("%w: team must have exactly %d participants, has %d",
			engine.ErrInvalidTransition, o.teamSize, len(participants))
	}

	roundCount := req.RoundCount
	if roundCount <= 0 {
		roundCount = o.roundCount
	}
	roundDuration := req.RoundDuration
	if roundDuration <= 0 {
		roundDuration = o.roundDuration
	}
	sess := engine.NewSession(req.TeamID, strings.TrimSpace(req.Topic), roundCount, roundDuration)

	err = o.store.Tx(ctx, func(tx store.Store) error {
		if err := tx.CreateSession(ctx, &sess); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return o.audit(ctx, tx, sess.ID, caller.UserID, actionSessionCreated, map[string]any{
			"teamId":     sess.TeamID,
			"roundCount": sess.RoundCount,
		})
	})
	if err != nil {
		return engine.Session{}, err
	}
	o.log.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("team_id", sess.TeamID),
		zap.Int("round_count", sess.RoundCount))
	return sess, nil
}

// Control dispatches a named lifecycle action.
func (o *Orchestrator) Control(ctx context.Context, caller engine.Caller, sessionID, action string) (engine.Session, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "start":
		return o.Start(ctx, caller, sessionID)
	case "pause":
		return o.Pause(ctx, caller, sessionID)
	case "resume":
		return o.Resume(ctx, caller, sessionID)
	case "end", "complete":
		return o.Complete(ctx, caller, sessionID)
	default:
		return engine.Session{}, fmt.Errorf("%w: unknown action %q", engine.ErrInvalidTransition, action)
	}
}

func (o *Orchestrator) Start(ctx context.Context, caller engine.Caller, sessionID string) (engine.Session, error) {
	if !caller.CanControl() {
		return engine.Session{}, errNotController
	}
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	sess, err := o.loadSession(ctx, o.store, sessionID)
	if err != nil {
		return engine.Session{}, err
	}
	if sess.Status != engine.SessionPending {
		return engine.Session{}, fmt.Errorf("%w: cannot start a %s session", engine.ErrInvalidTransition, sess.Status)
	}
	_, participants, err := o.loadTeam(ctx, o.store, sess.TeamID)
	if err != nil {
		return engine.Session{}, err
	}
	if len(participants) == 0 {
		return engine.Session{}, fmt.Errorf("%w: team has no participants", engine.ErrInvalidTransition)
	}

	now := o.now()
	round := engine.NewRound(sess.ID, 1, sess.RoundDuration)
	if err := round.Start(now); err != nil {
		return engine.Session{}, err
	}
	sess.Status = engine.SessionRunning
	sess.CurrentRound = 1

	err = o.store.Tx(ctx, func(tx store.Store) error {
		if err := tx.CreateRound(ctx, &round); err != nil {
			return fmt.Errorf("create round: %w", err)
		}
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		return o.audit(ctx, tx, sess.ID, caller.UserID, actionSessionStarted, map[string]any{"round": 1})
	})
	if err != nil {
		return engine.Session{}, err
	}

	o.log.Info("session started", zap.String("session_id", sess.ID))
	o.publish(engine.EvtSessionStateChanged, sess.ID, 1, o.stateChanged("start", sess, round, now))
	o.publish(engine.EvtRoundStarted, sess.ID, 1, RoundStarted{
		RoundNumber:      1,
		RoundCount:       sess.RoundCount,
		DurationSeconds:  int(round.Duration / time.Second),
		RemainingSeconds: round.RemainingSeconds(now),
	})
	return sess, nil
}

func (o *Orchestrator) Pause(ctx context.Context, caller engine.Caller, sessionID string) (engine.Session, error) {
	return o.toggle(ctx, caller, sessionID, "pause")
}

func (o *Orchestrator) Resume(ctx context.Context, caller engine.Caller, sessionID string) (engine.Session, error) {
	return o.toggle(ctx, caller, sessionID, "resume")
}

// toggle pauses or resumes the session together with its current round.
func (o *Orchestrator) toggle(ctx context.Context, caller engine.Caller, sessionID, action string) (engine.Session, error) {
	if !caller.CanControl() {
		return engine.Session{}, errNotController
	}
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	sess, err := o.loadSession(ctx, o.store, sessionID)
	if err != nil {
		return engine.Session{}, err
	}
	from, to, logAction := engine.SessionRunning, engine.SessionPaused, actionSessionPaused
	if action == "resume" {
		from, to, logAction = engine.SessionPaused, engine.SessionRunning, actionSessionResumed
	}
	if sess.Status != from {
		return engine.Session{}, fmt.Errorf("%w: cannot %s a %s session", engine.ErrInvalidTransition, action, sess.Status)
	}

	round, err := o.loadRound(ctx, o.store, sess.ID, sess.CurrentRound)
	if err != nil {
		return engine.Session{}, err
	}
	now := o.now()
	if action == "resume" {
		err = round.Resume(now)
	} else {
		err = round.Pause(now)
	}
	if err != nil {
		return engine.Session{}, err
	}
	sess.Status = to

	err = o.store.Tx(ctx, func(tx store.Store) error {
		if err := tx.UpdateRound(ctx, round); err != nil {
			return fmt.Errorf("update round: %w", err)
		}
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		return o.audit(ctx, tx, sess.ID, caller.UserID, logAction, map[string]any{
			"round":            round.Number,
			"remainingSeconds": round.RemainingSeconds(now),
		})
	})
	if err != nil {
		return engine.Session{}, err
	}

	o.log.Info("session "+action+"d", zap.String("session_id", sess.ID), zap.Int("round", round.Number))
	o.publish(engine.EvtSessionStateChanged, sess.ID, round.Number, o.stateChanged(action, sess, round, now))
	return sess, nil
}

// Complete force-terminates a session from any state but COMPLETED.
func (o *Orchestrator) Complete(ctx context.Context, caller engine.Caller, sessionID string) (engine.Session, error) {
	if !caller.CanControl() {
		return engine.Session{}, errNotController
	}
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	sess, err := o.loadSession(ctx, o.store, sessionID)
	if err != nil {
		return engine.Session{}, err
	}
	if sess.Status == engine.SessionCompleted {
		return engine.Session{}, fmt.Errorf("%w: session already completed", engine.ErrInvalidTransition)
	}

	now := o.now()
	var finished bool
	round, err := o.loadRound(ctx, o.store, sess.ID, sess.CurrentRound)
	switch {
	case err == nil:
		finished = round.Finish(now)
	case errors.Is(err, engine.ErrNotFound):
		// never started
	default:
		return engine.Session{}, err
	}
	sess.Status = engine.SessionCompleted

	err = o.store.Tx(ctx, func(tx store.Store) error {
		if finished {
			err := tx.UpdateRound(ctx, round)
			switch {
			case errors.Is(err, store.ErrConflict):
				finished = false
			case err != nil:
				return fmt.Errorf("update round: %w", err)
			}
		}
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		return o.audit(ctx, tx, sess.ID, caller.UserID, actionSessionCompleted, map[string]any{
			"round":  sess.CurrentRound,
			"manual": true,
		})
	})
	if err != nil {
		return engine.Session{}, err
	}

	o.metrics.SessionCompleted()
	o.log.Info("session completed manually", zap.String("session_id", sess.ID), zap.Int("round", sess.CurrentRound))
	if finished {
		o.publish(engine.EvtRoundFinished, sess.ID, round.Number, RoundFinished{RoundNumber: round.Number, Trigger: metrics.TriggerManual})
	}
	o.publish(engine.EvtSessionCompleted, sess.ID, sess.CurrentRound, SessionCompleted{RoundCount: sess.RoundCount, LastRound: sess.CurrentRound})
	return sess, nil
}

// AdvanceRound is the caller-facing advance. roundNumber is the round the
// caller saw as current; zero means whatever round is current.
func (o *Orchestrator) AdvanceRound(ctx context.Context, caller engine.Caller, sessionID string, roundNumber int) (AdvanceResult, error) {
	if !caller.CanControl() {
		return AdvanceResult{}, errNotController
	}
	unlock := o.locks.Lock(sessionID)
	defer unlock()
	return o.advanceLocked(ctx, sessionID, roundNumber, metrics.TriggerManual, caller.UserID)
}

// Tick is the timeout check for one session: it advances the current round
// when its timer has run out and otherwise reports the remaining time.
func (o *Orchestrator) Tick(ctx context.Context, sessionID string) (TickResult, error) {
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	sess, err := o.loadSession(ctx, o.store, sessionID)
	if err != nil {
		return TickResult{}, err
	}
	res := TickResult{SessionID: sess.ID, Status: sess.Status, RoundNumber: sess.CurrentRound}
	if sess.Status != engine.SessionRunning {
		return res, nil
	}
	round, err := o.loadRound(ctx, o.store, sess.ID, sess.CurrentRound)
	if err != nil {
		return TickResult{}, err
	}
	now := o.now()
	res.TimerState = round.TimerState
	res.RemainingSeconds = round.RemainingSeconds(now)
	if !round.Expired(now) {
		return res, nil
	}

	adv, err := o.advanceLocked(ctx, sess.ID, round.Number, metrics.TriggerTimer, "")
	if err != nil {
		return TickResult{}, err
	}
	res.Advance = &adv
	res.TimerState = engine.TimerFinished
	res.RemainingSeconds = 0
	return res, nil
}

// advanceLocked finishes the current round and opens the next one, or
// completes the session after the last round. The caller holds the session
// lock. A COMPLETED session, a stale expected round or an already FINISHED
// round make it a no-op.
func (o *Orchestrator) advanceLocked(ctx context.Context, sessionID string, expect int, trigger, userID string) (AdvanceResult, error) {
	sess, err := o.loadSession(ctx, o.store, sessionID)
	if err != nil {
		return AdvanceResult{}, err
	}
	switch sess.Status {
	case engine.SessionCompleted:
		return AdvanceResult{PreviousRoundStatus: string(engine.SessionCompleted), CurrentRound: sess.CurrentRound}, nil
	case engine.SessionRunning:
	default:
		return AdvanceResult{}, fmt.Errorf("%w: cannot advance a %s session", engine.ErrInvalidTransition, sess.Status)
	}

	if expect > sess.CurrentRound {
		return AdvanceResult{}, fmt.Errorf("%w: round %d has not started (current %d)", engine.ErrInvalidTransition, expect, sess.CurrentRound)
	}
	noop := AdvanceResult{PreviousRoundStatus: string(engine.TimerFinished), CurrentRound: sess.CurrentRound}
	if expect > 0 && expect != sess.CurrentRound {
		return noop, nil
	}
	round, err := o.loadRound(ctx, o.store, sess.ID, sess.CurrentRound)
	if err != nil {
		return AdvanceResult{}, err
	}
	_, participants, err := o.loadTeam(ctx, o.store, sess.TeamID)
	if err != nil {
		return AdvanceResult{}, err
	}

	now := o.now()
	if !round.Finish(now) {
		return noop, nil
	}

	res := AdvanceResult{Advanced: true}
	var (
		next      engine.Round
		submitted int
		last      = sess.CurrentRound >= sess.RoundCount
	)
	err = o.store.Tx(ctx, func(tx store.Store) error {
		if err := tx.UpdateRound(ctx, round); err != nil {
			return fmt.Errorf("update round: %w", err)
		}
		byAuthor, err := o.ledger.With(tx).ByAuthor(ctx, round.ID)
		if err != nil {
			return err
		}
		submitted = countSubmitted(participants, byAuthor, o.ledger.IdeasPerRound())

		if last {
			sess.Status = engine.SessionCompleted
			res.PreviousRoundStatus = string(engine.SessionCompleted)
		} else {
			passed, err := passedIdeaMap(participants, byAuthor)
			if err != nil {
				return err
			}
			next = engine.NewRound(sess.ID, sess.CurrentRound+1, sess.RoundDuration)
			if err := next.Start(now); err != nil {
				return err
			}
			if err := tx.CreateRound(ctx, &next); err != nil {
				return fmt.Errorf("create round %d: %w", next.Number, err)
			}
			sess.CurrentRound = next.Number
			res.PreviousRoundStatus = string(engine.TimerFinished)
			res.PassedIdeaMap = passed
		}
		res.CurrentRound = sess.CurrentRound
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		action := actionRoundAdvanced
		if last {
			action = actionSessionCompleted
		}
		return o.audit(ctx, tx, sess.ID, userID, action, map[string]any{
			"finishedRound": round.Number,
			"trigger":       trigger,
			"submitted":     submitted,
		})
	})
	if errors.Is(err, store.ErrConflict) {
		// another instance finished this round first
		return noop, nil
	}
	if err != nil {
		return AdvanceResult{}, err
	}

	o.metrics.RoundAdvanced(trigger)
	o.log.Info("round finished",
		zap.String("session_id", sess.ID),
		zap.Int("round", round.Number),
		zap.String("trigger", trigger),
		zap.Int("submitted", submitted),
		zap.Int("participants", len(participants)))
	o.publish(engine.EvtRoundFinished, sess.ID, round.Number, RoundFinished{
		RoundNumber:    round.Number,
		Trigger:        trigger,
		SubmittedCount: submitted,
		TotalMembers:   len(participants),
	})

	if last {
		o.metrics.SessionCompleted()
		o.log.Info("session completed", zap.String("session_id", sess.ID))
		o.publish(engine.EvtSessionCompleted, sess.ID, round.Number, SessionCompleted{RoundCount: sess.RoundCount, LastRound: round.Number})
		return res, nil
	}
	o.publish(engine.EvtRoundStarted, sess.ID, next.Number, RoundStarted{
		RoundNumber:      next.Number,
		RoundCount:       sess.RoundCount,
		DurationSeconds:  int(next.Duration / time.Second),
		RemainingSeconds: next.RemainingSeconds(now),
		PassedIdeaMap:    res.PassedIdeaMap,
	})
	return res, nil
}

// passedIdeaMap gives every participant the ideas their predecessor wrote in
// the finished round. Participants whose predecessor submitted nothing get
// an empty list.
func passedIdeaMap(participants []string, byAuthor map[string][]engine.Idea) (map[string][]IdeaView, error) {
	out := make(map[string][]IdeaView, len(participants))
	for _, p := range participants {
		pred, err := engine.PredecessorOf(participants, p)
		if err != nil {
			return nil, err
		}
		out[p] = ideaViews(byAuthor[pred])
	}
	return out, nil
}

func countSubmitted(participants []string, byAuthor map[string][]engine.Idea, k int) int {
	n := 0
	for _, p := range participants {
		if len(byAuthor[p]) == k {
			n++
		}
	}
	return n
}

func (o *Orchestrator) stateChanged(action string, sess engine.Session, round engine.Round, now time.Time) StateChanged {
	return StateChanged{
		Action:           action,
		Status:           sess.Status,
		CurrentRound:     sess.CurrentRound,
		RemainingSeconds: round.RemainingSeconds(now),
	}
}
