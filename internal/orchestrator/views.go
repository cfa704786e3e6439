package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/store"
)

type IdeaView struct {
	ID             string    `json:"id"`
	RoundNumber    int       `json:"roundNumber"`
	AuthorID       string    `json:"authorId"`
	Position       int       `json:"position"`
	Text           string    `json:"text"`
	PassedFromUser string    `json:"passedFromUser,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type SessionView struct {
	ID                   string               `json:"id"`
	TeamID               string               `json:"teamId"`
	Topic                string               `json:"topic"`
	Status               engine.SessionStatus `json:"status"`
	CurrentRound         int                  `json:"currentRound"`
	RoundCount           int                  `json:"roundCount"`
	RoundDurationSeconds int                  `json:"roundDurationSeconds"`
	CreatedAt            time.Time            `json:"createdAt"`
	UpdatedAt            time.Time            `json:"updatedAt"`
}

type RoundView struct {
	Number           int               `json:"number"`
	TimerState       engine.TimerState `json:"timerState"`
	DurationSeconds  int               `json:"durationSeconds"`
	RemainingSeconds int               `json:"remainingSeconds"`
	StartTime        *time.Time        `json:"startTime,omitempty"`
	EndTime          *time.Time        `json:"endTime,omitempty"`
}

type ParticipantStatus struct {
	UserID      string     `json:"userId"`
	FullName    string     `json:"fullName,omitempty"`
	IsLeader    bool       `json:"isLeader"`
	Submitted   bool       `json:"submitted"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
}

// SessionState is what one caller sees of a session right now.
type SessionState struct {
	Session          SessionView         `json:"session"`
	Role             engine.Role         `json:"role"`
	Round            *RoundView          `json:"round,omitempty"`
	RemainingSeconds int                 `json:"remainingSeconds"`
	Participants     []ParticipantStatus `json:"teamSubmissions"`
	PassedFrom       string              `json:"passedFrom,omitempty"`
	PreviousIdeas    []IdeaView          `json:"previousIdeas"`
	MyIdeas          []IdeaView          `json:"myIdeas"`
	IdeasPerRound    int                 `json:"ideasPerRound"`
	CanSubmit        bool                `json:"canSubmit"`
	IsRoundLocked    bool                `json:"isRoundLocked"`
}

type RoundDetail struct {
	SessionID      string              `json:"sessionId"`
	Round          RoundView           `json:"round"`
	Participants   []ParticipantStatus `json:"participants"`
	SubmittedCount int                 `json:"submittedCount"`
	TotalMembers   int                 `json:"totalMembers"`
}

type AuthorIdeas struct {
	AuthorID string     `json:"authorId"`
	FullName string     `json:"fullName,omitempty"`
	Ideas    []IdeaView `json:"ideas"`
}

type RoundIdeas struct {
	RoundNumber int           `json:"roundNumber"`
	Authors     []AuthorIdeas `json:"authors"`
}

type LogView struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId,omitempty"`
	ActionType string         `json:"actionType"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func ideaView(i engine.Idea) IdeaView {
	return IdeaView{
		ID:             i.ID,
		RoundNumber:    i.RoundNumber,
		AuthorID:       i.AuthorID,
		Position:       i.Position,
		Text:           i.Text,
		PassedFromUser: i.PassedFromUser,
		CreatedAt:      i.CreatedAt,
		UpdatedAt:      i.UpdatedAt,
	}
}

// ideaViews never returns nil so JSON renders an empty list.
func ideaViews(ideas []engine.Idea) []IdeaView {
	out := make([]IdeaView, 0, len(ideas))
	for _, i := range ideas {
		out = append(out, ideaView(i))
	}
	return out
}

func ViewOfSession(s engine.Session) SessionView {
	return SessionView{
		ID:                   s.ID,
		TeamID:               s.TeamID,
		Topic:                s.Topic,
		Status:               s.Status,
		CurrentRound:         s.CurrentRound,
		RoundCount:           s.RoundCount,
		RoundDurationSeconds: int(s.RoundDuration / time.Second),
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func roundView(r engine.Round, now time.Time) RoundView {
	return RoundView{
		Number:           r.Number,
		TimerState:       r.TimerState,
		DurationSeconds:  int(r.Duration / time.Second),
		RemainingSeconds: r.RemainingSeconds(now),
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
	}
}

func (o *Orchestrator) fullNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		u, err := o.store.GetUser(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		names[id] = u.FullName
	}
	return names, nil
}

func (o *Orchestrator) participantStatuses(team engine.Team, participants []string, byAuthor map[string][]engine.Idea, names map[string]string) ([]ParticipantStatus, int) {
	k := o.ledger.IdeasPerRound()
	out := make([]ParticipantStatus, 0, len(participants))
	submitted := 0
	for _, p := range participants {
		ps := ParticipantStatus{UserID: p, FullName: names[p], IsLeader: p == team.LeaderID}
		if ideas := byAuthor[p]; len(ideas) == k {
			ps.Submitted = true
			at := ideas[0].CreatedAt
			ps.SubmittedAt = &at
			submitted++
		}
		out = append(out, ps)
	}
	return out, submitted
}

// SessionState builds the caller's view: timer, team submission status, the
// ideas passed to the caller for this round and the caller's own ideas.
func (o *Orchestrator) SessionState(ctx context.Context, caller engine.Caller, sessionID string) (SessionState, error) {
	role, ok := caller.Role()
	if !ok {
		return SessionState{}, errNoRole
	}
	sess, err := o.loadSession(ctx, o.store, sessionID)
	if err != nil {
		return SessionState{}, err
	}
	team, participants, err := o.loadTeam(ctx, o.store, sess.TeamID)
	if err != nil {
		return SessionState{}, err
	}
	names, err := o.fullNames(ctx, participants)
	if err != nil {
		return SessionState{}, err
	}

	state := SessionState{
		Session:       ViewOfSession(sess),
		Role:          role,
		PreviousIdeas: []IdeaView{},
		MyIdeas:       []IdeaView{},
		IdeasPerRound: o.ledger.IdeasPerRound(),
		IsRoundLocked: true,
	}
	if sess.Status == engine.SessionPending {
		state.Participants, _ = o.participantStatuses(team, participants, nil, names)
		state.RemainingSeconds = int(sess.RoundDuration / time.Second)
		return state, nil
	}

	round, err := o.loadRound(ctx, o.store, sess.ID, sess.CurrentRound)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) && sess.Status == engine.SessionCompleted {
			// completed before it ever started
			state.Participants, _ = o.participantStatuses(team, participants, nil, names)
			return state, nil
		}
		return SessionState{}, err
	}
	now := o.now()
	rv := roundView(round, now)
	state.Round = &rv
	state.RemainingSeconds = rv.RemainingSeconds

	byAuthor, err := o.ledger.ByAuthor(ctx, round.ID)
	if err != nil {
		return SessionState{}, err
	}
	state.Participants, _ = o.participantStatuses(team, participants, byAuthor, names)

	isParticipant := engine.IsParticipant(participants, caller.UserID)
	if isParticipant {
		state.MyIdeas = ideaViews(byAuthor[caller.UserID])
		if sess.CurrentRound > 1 {
			pred, err := engine.PredecessorOf(participants, caller.UserID)
			if err != nil {
				return SessionState{}, err
			}
			prev, err := o.loadRound(ctx, o.store, sess.ID, sess.CurrentRound-1)
			if err != nil {
				return SessionState{}, err
			}
			prevIdeas, err := o.ledger.IdeasOf(ctx, prev.ID, pred)
			if err != nil {
				return SessionState{}, err
			}
			state.PassedFrom = pred
			state.PreviousIdeas = ideaViews(prevIdeas)
		}
	}

	submitted := len(byAuthor[caller.UserID]) > 0
	state.IsRoundLocked = sess.Status != engine.SessionRunning || round.TimerState != engine.TimerRunning
	state.CanSubmit = caller.CanSubmit() && isParticipant && !submitted && !state.IsRoundLocked
	return state, nil
}

func (o *Orchestrator) RoundDetail(ctx context.Context, caller engine.Caller, sessionID string, roundNumber int) (RoundDetail, error) {
	if _, ok := caller.Role(); !ok {
		return RoundDetail{}, errNoRole
	}
	sess, err := o.loadSession(ctx, o.store, sessionID)
	if err != nil {
		return RoundDetail{}, err
	}
	round, err := o.loadRound(ctx, o.store, sess.ID, roundNumber)
	if err != nil {
		return RoundDetail{}, err
	}
	team, participants, err := o.loadTeam(ctx, o.store, sess.TeamID)
	if err != nil {
		return RoundDetail{}, err
	}
	names, err := o.fullNames(ctx, participants)
	if err != nil {
		return RoundDetail{}, err
	}
	byAuthor, err := o.ledger.ByAuthor(ctx, round.ID)
	if err != nil {
		return RoundDetail{}, err
	}
	statuses, submitted := o.participantStatuses(team, participants, byAuthor, names)
	return RoundDetail{
		SessionID:      sess.ID,
		Round:          roundView(round, o.now()),
		Participants:   statuses,
		SubmittedCount: submitted,
		TotalMembers:   len(participants),
	}, nil
}

// RoundIdeas lists one round's ideas by author in rotation order. Leaders and
// managers see them at any time; members only once the round has finished.
func (o *Orchestrator) RoundIdeas(ctx context.Context, caller engine.Caller, sessionID string, roundNumber int) (RoundIdeas, error) {
	if _, ok := caller.Role(); !ok {
		return RoundIdeas{}, errNoRole
	}
	sess, err := o.loadSession(ctx, o.store, sessionID)
	if err != nil {
		return RoundIdeas{}, err
	}
	round, err := o.loadRound(ctx, o.store, sess.ID, roundNumber)
	if err != nil {
		return RoundIdeas{}, err
	}
	if !caller.CanControl() && round.TimerState != engine.TimerFinished {
		return RoundIdeas{}, fmt.Errorf("%w: round %d is still open", engine.ErrUnauthorized, roundNumber)
	}
	_, participants, err := o.loadTeam(ctx, o.store, sess.TeamID)
	if err != nil {
		return RoundIdeas{}, err
	}
	names, err := o.fullNames(ctx, participants)
	if err != nil {
		return RoundIdeas{}, err
	}
	ideas, err := o.ledger.RoundIdeas(ctx, sess.ID, roundNumber)
	if err != nil {
		return RoundIdeas{}, err
	}
	byAuthor := make(map[string][]engine.Idea)
	for _, idea := range ideas {
		byAuthor[idea.AuthorID] = append(byAuthor[idea.AuthorID], idea)
	}
	out := RoundIdeas{RoundNumber: roundNumber, Authors: []AuthorIdeas{}}
	for _, p := range participants {
		if list, ok := byAuthor[p]; ok {
			out.Authors = append(out.Authors, AuthorIdeas{AuthorID: p, FullName: names[p], Ideas: ideaViews(list)})
		}
	}
	return out, nil
}

// SessionIdeas groups every idea by round, then by author in rotation order.
func (o *Orchestrator) SessionIdeas(ctx context.Context, caller engine.Caller, sessionID string) ([]RoundIdeas, error) {
	if !caller.CanControl() {
		return nil, errNotController
	}
	sess, err := o.loadSession(ctx, o.store, sessionID)
	if err != nil {
		return nil, err
	}
	_, participants, err := o.loadTeam(ctx, o.store, sess.TeamID)
	if err != nil {
		return nil, err
	}
	names, err := o.fullNames(ctx, participants)
	if err != nil {
		return nil, err
	}
	ideas, err := o.ledger.SessionIdeas(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	byRound := make(map[int]map[string][]engine.Idea)
	for _, idea := range ideas {
		if byRound[idea.RoundNumber] == nil {
			byRound[idea.RoundNumber] = make(map[string][]engine.Idea)
		}
		byRound[idea.RoundNumber][idea.AuthorID] = append(byRound[idea.RoundNumber][idea.AuthorID], idea)
	}

	out := make([]RoundIdeas, 0, len(byRound))
	for n := 1; n <= sess.RoundCount; n++ {
		authors, ok := byRound[n]
		if !ok {
			continue
		}
		ri := RoundIdeas{RoundNumber: n}
		for _, p := range participants {
			if list, ok := authors[p]; ok {
				ri.Authors = append(ri.Authors, AuthorIdeas{AuthorID: p, FullName: names[p], Ideas: ideaViews(list)})
			}
		}
		out = append(out, ri)
	}
	return out, nil
}

func (o *Orchestrator) SessionLogs(ctx context.Context, caller engine.Caller, sessionID string) ([]LogView, error) {
	if !caller.CanControl() {
		return nil, errNotController
	}
	if _, err := o.loadSession(ctx, o.store, sessionID); err != nil {
		return nil, err
	}
	logs, err := o.store.ListLogs(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]LogView, 0, len(logs))
	for _, l := range logs {
		out = append(out, LogView{ID: l.ID, UserID: l.UserID, ActionType: l.ActionType, Payload: l.Payload, CreatedAt: l.CreatedAt})
	}
	return out, nil
}
