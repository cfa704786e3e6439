package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/metrics"
	"github.com/umutsatir/brainstorming-application/internal/store"
)

type SubmitResult struct {
	Ideas   []IdeaView     `json:"ideas"`
	Advance *AdvanceResult `json:"advance,omitempty"`
}

// SubmitIdeas records the caller's ideas for the current round. When the
// submission completes the round, the round advances before the session
// lock is released.
func (o *Orchestrator) SubmitIdeas(ctx context.Context, caller engine.Caller, sessionID string, roundNumber int, texts []string) (SubmitResult, error) {
	if !caller.CanSubmit() {
		return SubmitResult{}, errNotSubmitter
	}
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	sess, round, err := o.openRound(ctx, sessionID, roundNumber)
	if err != nil {
		return SubmitResult{}, err
	}
	if sess.Status != engine.SessionRunning || round.TimerState != engine.TimerRunning {
		return SubmitResult{}, fmt.Errorf("%w: round %d is not accepting ideas", engine.ErrInvalidSubmission, roundNumber)
	}
	_, participants, err := o.loadTeam(ctx, o.store, sess.TeamID)
	if err != nil {
		return SubmitResult{}, err
	}

	var ideas []engine.Idea
	err = o.store.Tx(ctx, func(tx store.Store) error {
		var err error
		ideas, err = o.ledger.With(tx).Submit(ctx, round, sess.TeamID, participants, caller.UserID, texts)
		if err != nil {
			return err
		}
		return o.audit(ctx, tx, sess.ID, caller.UserID, actionIdeasSubmitted, map[string]any{
			"round": round.Number,
			"count": len(ideas),
		})
	})
	if err != nil {
		if errors.Is(err, engine.ErrNotAParticipant) {
			return SubmitResult{}, fmt.Errorf("%w: %v", engine.ErrUnauthorized, err)
		}
		return SubmitResult{}, err
	}
	o.metrics.IdeasSubmitted(len(ideas))

	submitted, err := o.ledger.SubmittedAuthors(ctx, round.ID)
	if err != nil {
		return SubmitResult{}, err
	}
	o.log.Debug("ideas submitted",
		zap.String("session_id", sess.ID),
		zap.Int("round", round.Number),
		zap.String("user_id", caller.UserID),
		zap.Int("submitted", len(submitted)))
	o.publish(engine.EvtIdeasSubmitted, sess.ID, round.Number, IdeasSubmitted{
		AuthorID:       caller.UserID,
		RoundNumber:    round.Number,
		SubmittedCount: len(submitted),
		TotalMembers:   len(participants),
	})

	res := SubmitResult{Ideas: ideaViews(ideas)}
	complete, err := o.ledger.Complete(ctx, round.ID, participants)
	if err != nil {
		return res, err
	}
	if complete {
		adv, err := o.advanceLocked(ctx, sess.ID, round.Number, metrics.TriggerSubmissions, caller.UserID)
		if err != nil {
			// The ideas are stored; the sweep finishes the round on timeout.
			o.log.Error("advance after complete round", zap.String("session_id", sess.ID), zap.Error(err))
			return res, nil
		}
		res.Advance = &adv
	}
	return res, nil
}

// WithdrawIdeas deletes the caller's submission for an open round.
func (o *Orchestrator) WithdrawIdeas(ctx context.Context, caller engine.Caller, sessionID string, roundNumber int) (int, error) {
	if !caller.CanSubmit() {
		return 0, errNotSubmitter
	}
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	sess, round, err := o.openRound(ctx, sessionID, roundNumber)
	if err != nil {
		return 0, err
	}
	var n int
	err = o.store.Tx(ctx, func(tx store.Store) error {
		var err error
		n, err = o.ledger.With(tx).Withdraw(ctx, round, caller.UserID)
		if err != nil {
			return err
		}
		return o.audit(ctx, tx, sess.ID, caller.UserID, actionIdeasWithdrawn, map[string]any{
			"round": round.Number,
			"count": n,
		})
	})
	if err != nil {
		return 0, err
	}

	_, participants, err := o.loadTeam(ctx, o.store, sess.TeamID)
	if err != nil {
		return n, err
	}
	submitted, err := o.ledger.SubmittedAuthors(ctx, round.ID)
	if err != nil {
		return n, err
	}
	o.publish(engine.EvtIdeasSubmitted, sess.ID, round.Number, IdeasSubmitted{
		AuthorID:       caller.UserID,
		RoundNumber:    round.Number,
		SubmittedCount: len(submitted),
		TotalMembers:   len(participants),
		Withdrawn:      true,
	})
	return n, nil
}

// EditIdea rewrites one idea. The author edits while the round is open; a
// leader or manager moderates after it has finished.
func (o *Orchestrator) EditIdea(ctx context.Context, caller engine.Caller, ideaID, text string) (IdeaView, error) {
	idea, err := o.ledger.Idea(ctx, ideaID)
	if err != nil {
		return IdeaView{}, err
	}
	unlock := o.locks.Lock(idea.SessionID)
	defer unlock()

	round, err := o.loadRound(ctx, o.store, idea.SessionID, idea.RoundNumber)
	if err != nil {
		return IdeaView{}, err
	}
	edited, err := o.ledger.Edit(ctx, caller, round, idea, text)
	if err != nil {
		return IdeaView{}, err
	}
	if err := o.audit(ctx, o.store, idea.SessionID, caller.UserID, actionIdeaEdited, map[string]any{
		"ideaId":     idea.ID,
		"round":      idea.RoundNumber,
		"moderation": idea.AuthorID != caller.UserID,
	}); err != nil {
		return IdeaView{}, err
	}
	return ideaView(edited), nil
}

// openRound loads a session and the round a submission targets. The round
// must be the current one of a session that has not completed.
func (o *Orchestrator) openRound(ctx context.Context, sessionID string, roundNumber int) (engine.Session, engine.Round, error) {
	sess, err := o.loadSession(ctx, o.store, sessionID)
	if err != nil {
		return engine.Session{}, engine.Round{}, err
	}
	switch sess.Status {
	case engine.SessionRunning, engine.SessionPaused:
	default:
		return engine.Session{}, engine.Round{}, fmt.Errorf("%w: session is %s", engine.ErrInvalidSubmission, sess.Status)
	}
	if roundNumber != sess.CurrentRound {
		return engine.Session{}, engine.Round{}, fmt.Errorf("%w: round %d is not the current round (%d)",
			engine.ErrInvalidSubmission, roundNumber, sess.CurrentRound)
	}
	round, err := o.loadRound(ctx, o.store, sess.ID, roundNumber)
	if err != nil {
		return engine.Session{}, engine.Round{}, err
	}
	return sess, round, nil
}
