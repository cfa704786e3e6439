package engine

import (
	"fmt"
	"time"
)

// Round is one timed phase of a session. The timer is tracked as time
// consumed before the current running segment (Elapsed) plus the length of
// that segment (now - ResumedAt), so pausing never resets the countdown.
type Round struct {
	ID         string
	SessionID  string
	Number     int
	TimerState TimerState // empty until Start
	Duration   time.Duration
	StartTime  *time.Time
	ResumedAt  *time.Time
	Elapsed    time.Duration
	EndTime    *time.Time
	CreatedAt  time.Time
}

func NewRound(sessionID string, number int, duration time.Duration) Round {
	return Round{SessionID: sessionID, Number: number, Duration: duration}
}

func (r *Round) Start(now time.Time) error {
	if r.TimerState != "" {
		return fmt.Errorf("%w: round %d already %s", ErrInvalidTransition, r.Number, r.TimerState)
	}
	r.StartTime = &now
	r.ResumedAt = &now
	r.Elapsed = 0
	r.TimerState = TimerRunning
	return nil
}

func (r *Round) Pause(now time.Time) error {
	if r.TimerState != TimerRunning {
		return fmt.Errorf("%w: cannot pause round %d in state %q", ErrInvalidTransition, r.Number, r.TimerState)
	}
	r.Elapsed = r.ElapsedAt(now)
	r.ResumedAt = nil
	r.TimerState = TimerPaused
	return nil
}

func (r *Round) Resume(now time.Time) error {
	if r.TimerState != TimerPaused {
		return fmt.Errorf("%w: cannot resume round %d in state %q", ErrInvalidTransition, r.Number, r.TimerState)
	}
	r.ResumedAt = &now
	r.TimerState = TimerRunning
	return nil
}

// Finish closes the round. It reports false when the round was already
// FINISHED, which callers treat as "someone else advanced it".
func (r *Round) Finish(now time.Time) bool {
	if r.TimerState == TimerFinished {
		return false
	}
	r.Elapsed = r.ElapsedAt(now)
	r.ResumedAt = nil
	r.EndTime = &now
	r.TimerState = TimerFinished
	return true
}

func (r Round) ElapsedAt(now time.Time) time.Duration {
	elapsed := r.Elapsed
	if r.TimerState == TimerRunning && r.ResumedAt != nil {
		if seg := now.Sub(*r.ResumedAt); seg > 0 {
			elapsed += seg
		}
	}
	return elapsed
}

func (r Round) Remaining(now time.Time) time.Duration {
	switch r.TimerState {
	case TimerFinished:
		return 0
	case "":
		return r.Duration
	}
	return max(0, r.Duration-r.ElapsedAt(now))
}

// RemainingSeconds counts elapsed time in whole seconds, matching what
// clients render.
func (r Round) RemainingSeconds(now time.Time) int {
	switch r.TimerState {
	case TimerFinished:
		return 0
	case "":
		return int(r.Duration / time.Second)
	}
	elapsed := r.ElapsedAt(now).Truncate(time.Second)
	return max(0, int((r.Duration-elapsed)/time.Second))
}

func (r Round) Expired(now time.Time) bool {
	return r.TimerState == TimerRunning && r.Remaining(now) == 0
}

func (r Round) IsOpen() bool {
	return r.TimerState == TimerRunning || r.TimerState == TimerPaused
}
