package postgres

import (
	"time"

	"github.com/umutsatir/brainstorming-application/internal/engine"
)

type userModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	FullName  string `gorm:"size:255;not null"`
	CreatedAt time.Time
}

func (userModel) TableName() string { return "users" }

type teamModel struct {
	ID        string            `gorm:"primaryKey;size:64"`
	Name      string            `gorm:"size:255;not null"`
	LeaderID  string            `gorm:"size:64;not null;index"`
	ManagerID string            `gorm:"size:64;index"`
	Capacity  int               `gorm:"not null;default:6"`
	Members   []teamMemberModel `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (teamModel) TableName() string { return "teams" }

type teamMemberModel struct {
	ID      uint   `gorm:"primaryKey"`
	TeamID  string `gorm:"size:64;not null;uniqueIndex:idx_team_member"`
	UserID  string `gorm:"size:64;not null;uniqueIndex:idx_team_member"`
	JoinSeq int64  `gorm:"not null"`
}

func (teamMemberModel) TableName() string { return "team_members" }

type sessionModel struct {
	ID              string `gorm:"primaryKey;size:64"`
	TeamID          string `gorm:"size:64;not null;index"`
	Topic           string `gorm:"size:255"`
	Status          string `gorm:"size:16;not null;index"`
	CurrentRound    int    `gorm:"not null;default:1"`
	RoundCount      int    `gorm:"not null;default:5"`
	RoundDurationMS int64  `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (sessionModel) TableName() string { return "sessions" }

type roundModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	SessionID  string `gorm:"size:64;not null;uniqueIndex:idx_session_round"`
	Number     int    `gorm:"not null;uniqueIndex:idx_session_round"`
	TimerState string `gorm:"size:16"`
	DurationMS int64  `gorm:"not null"`
	ElapsedMS  int64  `gorm:"not null;default:0"`
	StartTime  *time.Time
	ResumedAt  *time.Time
	EndTime    *time.Time
	CreatedAt  time.Time
}

func (roundModel) TableName() string { return "rounds" }

type ideaModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	SessionID      string `gorm:"size:64;not null;index"`
	RoundID        string `gorm:"size:64;not null;uniqueIndex:idx_round_author_position"`
	RoundNumber    int    `gorm:"not null"`
	TeamID         string `gorm:"size:64;not null"`
	AuthorID       string `gorm:"size:64;not null;uniqueIndex:idx_round_author_position"`
	Position       int    `gorm:"not null;uniqueIndex:idx_round_author_position"`
	Text           string `gorm:"type:text;not null"`
	PassedFromUser string `gorm:"size:64"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ideaModel) TableName() string { return "ideas" }

type sessionLogModel struct {
	ID         string         `gorm:"primaryKey;size:64"`
	SessionID  string         `gorm:"size:64;not null;index"`
	UserID     string         `gorm:"size:64"`
	ActionType string         `gorm:"size:100;not null"`
	Payload    map[string]any `gorm:"serializer:json"`
	CreatedAt  time.Time
}

func (sessionLogModel) TableName() string { return "session_logs" }

func allModels() []any {
	return []any{
		&userModel{}, &teamModel{}, &teamMemberModel{},
		&sessionModel{}, &roundModel{}, &ideaModel{}, &sessionLogModel{},
	}
}

func toTeam(m teamModel) engine.Team {
	t := engine.Team{
		ID:        m.ID,
		Name:      m.Name,
		LeaderID:  m.LeaderID,
		ManagerID: m.ManagerID,
		Capacity:  m.Capacity,
		Members:   make([]engine.Member, 0, len(m.Members)),
	}
	for _, mm := range m.Members {
		t.Members = append(t.Members, engine.Member{UserID: mm.UserID, JoinSeq: mm.JoinSeq})
	}
	return t
}

func fromSession(s engine.Session) sessionModel {
	return sessionModel{
		ID:              s.ID,
		TeamID:          s.TeamID,
		Topic:           s.Topic,
		Status:          string(s.Status),
		CurrentRound:    s.CurrentRound,
		RoundCount:      s.RoundCount,
		RoundDurationMS: s.RoundDuration.Milliseconds(),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func toSession(m sessionModel) engine.Session {
	return engine.Session{
		ID:            m.ID,
		TeamID:        m.TeamID,
		Topic:         m.Topic,
		Status:        engine.SessionStatus(m.Status),
		CurrentRound:  m.CurrentRound,
		RoundCount:    m.RoundCount,
		RoundDuration: time.Duration(m.RoundDurationMS) * time.Millisecond,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func fromRound(r engine.Round) roundModel {
	return roundModel{
		ID:         r.ID,
		SessionID:  r.SessionID,
		Number:     r.Number,
		TimerState: string(r.TimerState),
		DurationMS: r.Duration.Milliseconds(),
		ElapsedMS:  r.Elapsed.Milliseconds(),
		StartTime:  r.StartTime,
		ResumedAt:  r.ResumedAt,
		EndTime:    r.EndTime,
		CreatedAt:  r.CreatedAt,
	}
}

func toRound(m roundModel) engine.Round {
	return engine.Round{
		ID:         m.ID,
		SessionID:  m.SessionID,
		Number:     m.Number,
		TimerState: engine.TimerState(m.TimerState),
		Duration:   time.Duration(m.DurationMS) * time.Millisecond,
		Elapsed:    time.Duration(m.ElapsedMS) * time.Millisecond,
		StartTime:  m.StartTime,
		ResumedAt:  m.ResumedAt,
		EndTime:    m.EndTime,
		CreatedAt:  m.CreatedAt,
	}
}

func fromIdea(i engine.Idea) ideaModel {
	return ideaModel{
		ID:             i.ID,
		SessionID:      i.SessionID,
		RoundID:        i.RoundID,
		RoundNumber:    i.RoundNumber,
		TeamID:         i.TeamID,
		AuthorID:       i.AuthorID,
		Position:       i.Position,
		Text:           i.Text,
		PassedFromUser: i.PassedFromUser,
		CreatedAt:      i.CreatedAt,
		UpdatedAt:      i.UpdatedAt,
	}
}

func toIdea(m ideaModel) engine.Idea {
	return engine.Idea{
		ID:             m.ID,
		SessionID:      m.SessionID,
		RoundID:        m.RoundID,
		RoundNumber:    m.RoundNumber,
		TeamID:         m.TeamID,
		AuthorID:       m.AuthorID,
		Position:       m.Position,
		Text:           m.Text,
		PassedFromUser: m.PassedFromUser,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
