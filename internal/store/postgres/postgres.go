package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/store"
)

const uniqueViolation = "23505"

// Store implements store.Store on PostgreSQL through gorm.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects, sizes the pool and migrates the schema.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	log.Info("database ready")
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func (s *Store) Tx(ctx context.Context, fn func(store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) PutUser(ctx context.Context, u engine.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m := userModel{ID: u.ID, FullName: u.FullName}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name"}),
	}).Create(&m).Error
	return translate(err)
}

func (s *Store) PutTeam(ctx context.Context, t engine.Team) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := teamModel{ID: t.ID, Name: t.Name, LeaderID: t.LeaderID, ManagerID: t.ManagerID, Capacity: t.Capacity}
		err := tx.Omit("Members").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "leader_id", "manager_id", "capacity", "updated_at"}),
		}).Create(&m).Error
		if err != nil {
			return translate(err)
		}
		if err := tx.Where("team_id = ?", t.ID).Delete(&teamMemberModel{}).Error; err != nil {
			return translate(err)
		}
		if len(t.Members) == 0 {
			return nil
		}
		members := make([]teamMemberModel, 0, len(t.Members))
		for _, mem := range t.Members {
			members = append(members, teamMemberModel{TeamID: t.ID, UserID: mem.UserID, JoinSeq: mem.JoinSeq})
		}
		return translate(tx.Create(&members).Error)
	})
}

func (s *Store) GetTeam(ctx context.Context, id string) (engine.Team, error) {
	var m teamModel
	err := s.db.WithContext(ctx).Preload("Members").First(&m, "id = ?", id).Error
	if err != nil {
		return engine.Team{}, translate(err)
	}
	return toTeam(m), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (engine.User, error) {
	var m userModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return engine.User{}, translate(err)
	}
	return engine.User{ID: m.ID, FullName: m.FullName}, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *engine.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	m := fromSession(*sess)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translate(err)
	}
	sess.CreatedAt, sess.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (engine.Session, error) {
	var m sessionModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return engine.Session{}, translate(err)
	}
	return toSession(m), nil
}

func (s *Store) UpdateSession(ctx context.Context, sess engine.Session) error {
	m := fromSession(sess)
	res := s.db.WithContext(ctx).Model(&sessionModel{}).Where("id = ?", sess.ID).
		Select("status", "current_round", "round_count", "topic", "updated_at").
		Updates(map[string]any{
			"status":        m.Status,
			"current_round": m.CurrentRound,
			"round_count":   m.RoundCount,
			"topic":         m.Topic,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListSessionsByStatus(ctx context.Context, status engine.SessionStatus) ([]engine.Session, error) {
	var ms []sessionModel
	err := s.db.WithContext(ctx).Where("status = ?", string(status)).Order("created_at").Find(&ms).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]engine.Session, 0, len(ms))
	for _, m := range ms {
		out = append(out, toSession(m))
	}
	return out, nil
}

func (s *Store) CreateRound(ctx context.Context, r *engine.Round) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m := fromRound(*r)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translate(err)
	}
	r.CreatedAt = m.CreatedAt
	return nil
}

func (s *Store) GetRound(ctx context.Context, sessionID string, number int) (engine.Round, error) {
	var m roundModel
	err := s.db.WithContext(ctx).First(&m, "session_id = ? AND number = ?", sessionID, number).Error
	if err != nil {
		return engine.Round{}, translate(err)
	}
	return toRound(m), nil
}

func (s *Store) UpdateRound(ctx context.Context, r engine.Round) error {
	m := fromRound(r)
	q := s.db.WithContext(ctx).Model(&roundModel{}).Where("id = ?", r.ID)
	finishing := r.TimerState == engine.TimerFinished
	if finishing {
		q = q.Where("timer_state <> ?", string(engine.TimerFinished))
	}
	res := q.Select("timer_state", "duration_ms", "elapsed_ms", "start_time", "resumed_at", "end_time").
		Updates(&m)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		if finishing {
			return s.finishConflict(ctx, r.ID)
		}
		return store.ErrNotFound
	}
	return nil
}

// finishConflict tells a missing round apart from one another writer has
// already finished.
func (s *Store) finishConflict(ctx context.Context, id string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&roundModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return translate(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return fmt.Errorf("%w: round %s already finished", store.ErrConflict, id)
}

func (s *Store) ListRounds(ctx context.Context, sessionID string) ([]engine.Round, error) {
	var ms []roundModel
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("number").Find(&ms).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]engine.Round, 0, len(ms))
	for _, m := range ms {
		out = append(out, toRound(m))
	}
	return out, nil
}

func (s *Store) InsertIdeas(ctx context.Context, ideas []engine.Idea) error {
	if len(ideas) == 0 {
		return nil
	}
	ms := make([]ideaModel, 0, len(ideas))
	for _, idea := range ideas {
		if idea.ID == "" {
			idea.ID = uuid.NewString()
		}
		ms = append(ms, fromIdea(idea))
	}
	// A single multi-row INSERT is atomic on its own.
	return translate(s.db.WithContext(ctx).Create(&ms).Error)
}

func (s *Store) ListIdeas(ctx context.Context, f store.IdeaFilter) ([]engine.Idea, error) {
	q := s.db.WithContext(ctx).Model(&ideaModel{})
	if f.SessionID != "" {
		q = q.Where("session_id = ?", f.SessionID)
	}
	if f.RoundID != "" {
		q = q.Where("round_id = ?", f.RoundID)
	}
	if f.AuthorID != "" {
		q = q.Where("author_id = ?", f.AuthorID)
	}
	var ms []ideaModel
	if err := q.Order("round_number, created_at, position").Find(&ms).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]engine.Idea, 0, len(ms))
	for _, m := range ms {
		out = append(out, toIdea(m))
	}
	return out, nil
}

func (s *Store) GetIdea(ctx context.Context, id string) (engine.Idea, error) {
	var m ideaModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return engine.Idea{}, translate(err)
	}
	return toIdea(m), nil
}

func (s *Store) UpdateIdea(ctx context.Context, idea engine.Idea) error {
	res := s.db.WithContext(ctx).Model(&ideaModel{}).Where("id = ?", idea.ID).
		Updates(map[string]any{"text": idea.Text, "updated_at": time.Now()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteIdeas(ctx context.Context, roundID, authorID string) (int, error) {
	res := s.db.WithContext(ctx).Where("round_id = ? AND author_id = ?", roundID, authorID).Delete(&ideaModel{})
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *Store) AppendLog(ctx context.Context, l engine.SessionLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	m := sessionLogModel{
		ID:         l.ID,
		SessionID:  l.SessionID,
		UserID:     l.UserID,
		ActionType: l.ActionType,
		Payload:    l.Payload,
		CreatedAt:  l.CreatedAt,
	}
	return translate(s.db.WithContext(ctx).Create(&m).Error)
}

func (s *Store) ListLogs(ctx context.Context, sessionID string) ([]engine.SessionLog, error) {
	var ms []sessionLogModel
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at").Find(&ms).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]engine.SessionLog, 0, len(ms))
	for _, m := range ms {
		out = append(out, engine.SessionLog{
			ID:         m.ID,
			SessionID:  m.SessionID,
			UserID:     m.UserID,
			ActionType: m.ActionType,
			Payload:    m.Payload,
			CreatedAt:  m.CreatedAt,
		})
	}
	return out, nil
}
