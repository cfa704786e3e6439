// Package ledger records submitted ideas per round and author and answers
// submission-completeness questions.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/store"
)

type Ledger struct {
	store         store.Store
	ideasPerRound int
}

func New(s store.Store, ideasPerRound int) *Ledger {
	if ideasPerRound <= 0 {
		ideasPerRound = engine.DefaultIdeasPerRound
	}
	return &Ledger{store: s, ideasPerRound: ideasPerRound}
}

func (l *Ledger) IdeasPerRound() int { return l.ideasPerRound }

// With returns a ledger bound to s, typically a transaction.
func (l *Ledger) With(s store.Store) *Ledger {
	return &Ledger{store: s, ideasPerRound: l.ideasPerRound}
}

// Submit stores an author's whole submission for a round. participants is
// the rotation order; from round 2 on every idea records the author's
// predecessor as passedFromUser.
func (l *Ledger) Submit(ctx context.Context, round engine.Round, teamID string, participants []string, authorID string, texts []string) ([]engine.Idea, error) {
	if !round.IsOpen() {
		return nil, fmt.Errorf("%w: round %d is closed", engine.ErrInvalidSubmission, round.Number)
	}
	if !engine.IsParticipant(participants, authorID) {
		return nil, fmt.Errorf("%w: %s", engine.ErrNotAParticipant, authorID)
	}

	existing, err := l.store.ListIdeas(ctx, store.IdeaFilter{RoundID: round.ID, AuthorID: authorID})
	if err != nil {
		return nil, fmt.Errorf("load existing ideas: %w", err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: already submitted for round %d", engine.ErrInvalidSubmission, round.Number)
	}

	normalized, err := engine.NormalizeIdeas(texts, l.ideasPerRound)
	if err != nil {
		return nil, err
	}

	var passedFrom string
	if round.Number > 1 {
		passedFrom, err = engine.PredecessorOf(participants, authorID)
		if err != nil {
			return nil, err
		}
	}

	ideas := make([]engine.Idea, 0, len(normalized))
	for i, text := range normalized {
		ideas = append(ideas, engine.Idea{
			SessionID:      round.SessionID,
			RoundID:        round.ID,
			RoundNumber:    round.Number,
			TeamID:         teamID,
			AuthorID:       authorID,
			Position:       i,
			Text:           text,
			PassedFromUser: passedFrom,
		})
	}
	if err := l.store.InsertIdeas(ctx, ideas); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: already submitted for round %d", engine.ErrInvalidSubmission, round.Number)
		}
		return nil, fmt.Errorf("insert ideas: %w", err)
	}
	return l.store.ListIdeas(ctx, store.IdeaFilter{RoundID: round.ID, AuthorID: authorID})
}

// ByAuthor groups a round's ideas by author.
func (l *Ledger) ByAuthor(ctx context.Context, roundID string) (map[string][]engine.Idea, error) {
	ideas, err := l.store.ListIdeas(ctx, store.IdeaFilter{RoundID: roundID})
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	out := make(map[string][]engine.Idea)
	for _, idea := range ideas {
		out[idea.AuthorID] = append(out[idea.AuthorID], idea)
	}
	return out, nil
}

// SubmittedAuthors returns the authors holding exactly K ideas in the round.
func (l *Ledger) SubmittedAuthors(ctx context.Context, roundID string) (map[string]bool, error) {
	byAuthor, err := l.ByAuthor(ctx, roundID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(byAuthor))
	for author, ideas := range byAuthor {
		if len(ideas) == l.ideasPerRound {
			out[author] = true
		}
	}
	return out, nil
}

// Complete reports whether every participant has submitted. An empty roster
// is never complete.
func (l *Ledger) Complete(ctx context.Context, roundID string, participants []string) (bool, error) {
	if len(participants) == 0 {
		return false, nil
	}
	submitted, err := l.SubmittedAuthors(ctx, roundID)
	if err != nil {
		return false, err
	}
	for _, p := range participants {
		if !submitted[p] {
			return false, nil
		}
	}
	return true, nil
}

func (l *Ledger) IdeasOf(ctx context.Context, roundID, authorID string) ([]engine.Idea, error) {
	ideas, err := l.store.ListIdeas(ctx, store.IdeaFilter{RoundID: roundID, AuthorID: authorID})
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	return ideas, nil
}

func (l *Ledger) RoundIdeas(ctx context.Context, sessionID string, roundNumber int) ([]engine.Idea, error) {
	round, err := l.store.GetRound(ctx, sessionID, roundNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: round %d", engine.ErrNotFound, roundNumber)
		}
		return nil, fmt.Errorf("load round: %w", err)
	}
	ideas, err := l.store.ListIdeas(ctx, store.IdeaFilter{SessionID: sessionID, RoundID: round.ID})
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	return ideas, nil
}

func (l *Ledger) SessionIdeas(ctx context.Context, sessionID string) ([]engine.Idea, error) {
	ideas, err := l.store.ListIdeas(ctx, store.IdeaFilter{SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	return ideas, nil
}

func (l *Ledger) Idea(ctx context.Context, id string) (engine.Idea, error) {
	idea, err := l.store.GetIdea(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.Idea{}, fmt.Errorf("%w: idea %s", engine.ErrNotFound, id)
		}
		return engine.Idea{}, fmt.Errorf("load idea: %w", err)
	}
	return idea, nil
}

// Edit rewrites one idea. While the round is open only its author may edit;
// once the round is FINISHED only a leader or manager may, as moderation.
func (l *Ledger) Edit(ctx context.Context, caller engine.Caller, round engine.Round, idea engine.Idea, text string) (engine.Idea, error) {
	if round.IsOpen() {
		if idea.AuthorID != caller.UserID {
			return engine.Idea{}, fmt.Errorf("%w: only the author can edit an idea while the round is open", engine.ErrUnauthorized)
		}
	} else if !caller.CanControl() {
		return engine.Idea{}, fmt.Errorf("%w: round %d has ended, ideas cannot be edited", engine.ErrInvalidSubmission, round.Number)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return engine.Idea{}, fmt.Errorf("%w: idea is empty", engine.ErrInvalidSubmission)
	}
	siblings, err := l.IdeasOf(ctx, idea.RoundID, idea.AuthorID)
	if err != nil {
		return engine.Idea{}, err
	}
	for _, s := range siblings {
		if s.ID != idea.ID && strings.EqualFold(s.Text, text) {
			return engine.Idea{}, fmt.Errorf("%w: ideas must be unique", engine.ErrInvalidSubmission)
		}
	}

	idea.Text = text
	if err := l.store.UpdateIdea(ctx, idea); err != nil {
		return engine.Idea{}, fmt.Errorf("update idea: %w", err)
	}
	return l.Idea(ctx, idea.ID)
}

// Withdraw removes an author's whole submission from an open round so a
// corrected one can be sent.
func (l *Ledger) Withdraw(ctx context.Context, round engine.Round, authorID string) (int, error) {
	if !round.IsOpen() {
		return 0, fmt.Errorf("%w: round %d is closed", engine.ErrInvalidSubmission, round.Number)
	}
	n, err := l.store.DeleteIdeas(ctx, round.ID, authorID)
	if err != nil {
		return 0, fmt.Errorf("delete ideas: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: nothing submitted for round %d", engine.ErrNotFound, round.Number)
	}
	return n, nil
}
