package engine

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultIdeasPerRound = 3
	DefaultRoundCount    = 5
	DefaultTeamSize      = 6
	DefaultRoundDuration = 5 * time.Minute
)

func NewSession(teamID, topic string, roundCount int, roundDuration time.Duration) Session {
	if roundCount <= 0 {
		roundCount = DefaultRoundCount
	}
	if roundDuration <= 0 {
		roundDuration = DefaultRoundDuration
	}
	return Session{
		TeamID:        teamID,
		Topic:         topic,
		Status:        SessionPending,
		CurrentRound:  1,
		RoundCount:    roundCount,
		RoundDuration: roundDuration,
	}
}

// NormalizeIdeas trims a submission and checks it is exactly k non-empty,
// case-insensitively distinct texts.
func NormalizeIdeas(texts []string, k int) ([]string, error) {
	if len(texts) != k {
		return nil, fmt.Errorf("%w: must submit exactly %d ideas, got %d", ErrInvalidSubmission, k, len(texts))
	}
	out := make([]string, len(texts))
	seen := make(map[string]bool, len(texts))
	for i, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, fmt.Errorf("%w: idea %d is empty", ErrInvalidSubmission, i+1)
		}
		key := strings.ToLower(t)
		if seen[key] {
			return nil, fmt.Errorf("%w: ideas must be unique", ErrInvalidSubmission)
		}
		seen[key] = true
		out[i] = t
	}
	return out, nil
}

// CallerFor derives a user's capabilities against a team.
func CallerFor(t Team, userID string) Caller {
	c := Caller{UserID: userID}
	if userID == "" {
		return c
	}
	c.IsLeader = userID == t.LeaderID
	c.IsManager = userID == t.ManagerID
	for _, m := range t.Members {
		if m.UserID == userID {
			c.IsMember = true
			break
		}
	}
	return c
}
