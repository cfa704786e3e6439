package orchestrator

import "github.com/umutsatir/brainstorming-application/internal/engine"

// Event payloads carried on engine.Event.Payload.

type StateChanged struct {
	Action           string               `json:"action"`
	Status           engine.SessionStatus `json:"status"`
	CurrentRound     int                  `json:"currentRound"`
	RemainingSeconds int                  `json:"remainingSeconds"`
}

type RoundStarted struct {
	RoundNumber      int                   `json:"roundNumber"`
	RoundCount       int                   `json:"roundCount"`
	DurationSeconds  int                   `json:"durationSeconds"`
	RemainingSeconds int                   `json:"remainingSeconds"`
	PassedIdeaMap    map[string][]IdeaView `json:"passedIdeaMap,omitempty"`
}

type RoundFinished struct {
	RoundNumber    int    `json:"roundNumber"`
	Trigger        string `json:"trigger"`
	SubmittedCount int    `json:"submittedCount"`
	TotalMembers   int    `json:"totalMembers"`
}

type SessionCompleted struct {
	RoundCount int `json:"roundCount"`
	LastRound  int `json:"lastRound"`
}

type IdeasSubmitted struct {
	AuthorID       string `json:"authorId"`
	RoundNumber    int    `json:"roundNumber"`
	SubmittedCount int    `json:"submittedCount"`
	TotalMembers   int    `json:"totalMembers"`
	Withdrawn      bool   `json:"withdrawn,omitempty"`
}

type TimerTick struct {
	RoundNumber      int               `json:"roundNumber"`
	RemainingSeconds int               `json:"remainingSeconds"`
	TimerState       engine.TimerState `json:"timerState"`
}
