package engine

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")
var ErrInvalidTransition = errors.New("invalid transition")
var ErrInvalidSubmission = errors.New("invalid submission")
var ErrUnauthorized = errors.New("unauthorized")
var ErrNotAParticipant = errors.New("not a participant")

type SessionStatus string

const (
	SessionPending   SessionStatus = "PENDING"
	SessionRunning   SessionStatus = "RUNNING"
	SessionPaused    SessionStatus = "PAUSED"
	SessionCompleted SessionStatus = "COMPLETED"
)

type TimerState string

const (
	TimerRunning  TimerState = "RUNNING"
	TimerPaused   TimerState = "PAUSED"
	TimerFinished TimerState = "FINISHED"
)

type Role string

const (
	RoleLeader  Role = "leader"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

type User struct {
	ID       string
	FullName string
}

// Member is a non-leader team seat. JoinSeq is the monotonic key that fixes
// rotation order among members.
type Member struct {
	UserID  string
	JoinSeq int64
}

type Team struct {
	ID        string
	Name      string
	LeaderID  string
	ManagerID string // owner of the event the team belongs to
	Capacity  int
	Members   []Member
}

type Session struct {
	ID            string
	TeamID        string
	Topic         string
	Status        SessionStatus
	CurrentRound  int
	RoundCount    int
	RoundDuration time.Duration
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Idea struct {
	ID             string
	SessionID      string
	RoundID        string
	RoundNumber    int
	TeamID         string
	AuthorID       string
	Position       int
	Text           string
	PassedFromUser string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type SessionLog struct {
	ID         string
	SessionID  string
	UserID     string
	ActionType string
	Payload    map[string]any
	CreatedAt  time.Time
}

// Caller carries the capabilities resolved for a user against one session's
// team. The engine only authorizes with these booleans.
type Caller struct {
	UserID    string
	IsLeader  bool
	IsManager bool
	IsMember  bool
}

func (c Caller) CanControl() bool { return c.IsLeader || c.IsManager }

func (c Caller) CanSubmit() bool { return c.IsLeader || c.IsMember }

func (c Caller) Role() (Role, bool) {
	switch {
	case c.IsLeader:
		return RoleLeader, true
	case c.IsManager:
		return RoleManager, true
	case c.IsMember:
		return RoleMember, true
	default:
		return "", false
	}
}

type EventKind string

const (
	EvtRoundStarted        EventKind = "round_started"
	EvtRoundFinished       EventKind = "round_finished"
	EvtSessionCompleted    EventKind = "session_completed"
	EvtIdeasSubmitted      EventKind = "ideas_submitted"
	EvtSessionStateChanged EventKind = "session_state_changed"
	EvtTimerTick           EventKind = "timer_tick"
	EvtUserJoined          EventKind = "user_joined"
	EvtUserLeft            EventKind = "user_left"
)

/*
	start    -> session_state_changed -> round_started(1)
	pause    -> session_state_changed
	resume   -> session_state_changed
	advance  -> round_finished(c) -> round_started(c+1) | session_completed
	complete -> round_finished(c) -> session_completed
	submit   -> ideas_submitted (-> advance when the round is complete)
	sweep    -> timer_tick | advance
*/

type Event struct {
	Kind      EventKind
	SessionID string
	Round     int
	At        time.Time
	Payload   any
}
