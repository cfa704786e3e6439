package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/store"
)

type roundKey struct {
	sessionID string
	number    int
}

// Store keeps everything in process memory. It backs tests and
// single-instance deployments without DATABASE_URL.
type Store struct {
	mu       sync.RWMutex
	txMu     sync.Mutex
	users    map[string]engine.User
	teams    map[string]engine.Team
	sessions map[string]engine.Session
	rounds   map[roundKey]engine.Round
	ideas    []engine.Idea
	logs     []engine.SessionLog
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[string]engine.User),
		teams:    make(map[string]engine.Team),
		sessions: make(map[string]engine.Session),
		rounds:   make(map[roundKey]engine.Round),
		now:      time.Now,
	}
}

// Tx serializes fn against other transactions. Memory writes cannot fail
// half way, so there is nothing to roll back.
func (s *Store) Tx(ctx context.Context, fn func(store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s)
}

func (s *Store) PutUser(ctx context.Context, u engine.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) PutTeam(ctx context.Context, t engine.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Members = slices.Clone(t.Members)
	s.teams[t.ID] = t
	return nil
}

func (s *Store) GetTeam(ctx context.Context, id string) (engine.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return engine.Team{}, store.ErrNotFound
	}
	t.Members = slices.Clone(t.Members)
	return t, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (engine.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return engine.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *engine.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if _, exists := s.sessions[sess.ID]; exists {
		return store.ErrConflict
	}
	now := s.now()
	sess.CreatedAt, sess.UpdatedAt = now, now
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (engine.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return engine.Session{}, store.ErrNotFound
	}
	return sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, sess engine.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return store.ErrNotFound
	}
	sess.UpdatedAt = s.now()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) ListSessionsByStatus(ctx context.Context, status engine.SessionStatus) ([]engine.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.Session, 0)
	for _, sess := range s.sessions {
		if sess.Status == status {
			out = append(out, sess)
		}
	}
	slices.SortFunc(out, func(a, b engine.Session) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *Store) CreateRound(ctx context.Context, r *engine.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := roundKey{r.SessionID, r.Number}
	if _, exists := s.rounds[key]; exists {
		return store.ErrConflict
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = s.now()
	s.rounds[key] = *r
	return nil
}

func (s *Store) GetRound(ctx context.Context, sessionID string, number int) (engine.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rounds[roundKey{sessionID, number}]
	if !ok {
		return engine.Round{}, store.ErrNotFound
	}
	return r, nil
}

func (s *Store) UpdateRound(ctx context.Context, r engine.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := roundKey{r.SessionID, r.Number}
	prev, ok := s.rounds[key]
	if !ok || prev.ID != r.ID {
		return store.ErrNotFound
	}
	if r.TimerState == engine.TimerFinished && prev.TimerState == engine.TimerFinished {
		return store.ErrConflict
	}
	s.rounds[key] = r
	return nil
}

func (s *Store) ListRounds(ctx context.Context, sessionID string) ([]engine.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.Round, 0)
	for key, r := range s.rounds {
		if key.sessionID == sessionID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b engine.Round) int { return a.Number - b.Number })
	return out, nil
}

func (s *Store) InsertIdeas(ctx context.Context, ideas []engine.Idea) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, idea := range ideas {
		for _, existing := range s.ideas {
			if existing.RoundID == idea.RoundID && existing.AuthorID == idea.AuthorID {
				return store.ErrConflict
			}
		}
	}
	now := s.now()
	for _, idea := range ideas {
		if idea.ID == "" {
			idea.ID = uuid.NewString()
		}
		idea.CreatedAt, idea.UpdatedAt = now, now
		s.ideas = append(s.ideas, idea)
	}
	return nil
}

func (s *Store) ListIdeas(ctx context.Context, f store.IdeaFilter) ([]engine.Idea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.Idea, 0)
	for _, idea := range s.ideas {
		if f.SessionID != "" && idea.SessionID != f.SessionID {
			continue
		}
		if f.RoundID != "" && idea.RoundID != f.RoundID {
			continue
		}
		if f.AuthorID != "" && idea.AuthorID != f.AuthorID {
			continue
		}
		out = append(out, idea)
	}
	return out, nil
}

func (s *Store) GetIdea(ctx context.Context, id string) (engine.Idea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, idea := range s.ideas {
		if idea.ID == id {
			return idea, nil
		}
	}
	return engine.Idea{}, store.ErrNotFound
}

func (s *Store) UpdateIdea(ctx context.Context, idea engine.Idea) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.ideas {
		if s.ideas[i].ID == idea.ID {
			idea.UpdatedAt = s.now()
			s.ideas[i] = idea
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) DeleteIdeas(ctx context.Context, roundID, authorID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.ideas)
	s.ideas = slices.DeleteFunc(s.ideas, func(idea engine.Idea) bool {
		return idea.RoundID == roundID && idea.AuthorID == authorID
	})
	return before - len(s.ideas), nil
}

func (s *Store) AppendLog(ctx context.Context, l engine.SessionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	s.logs = append(s.logs, l)
	return nil
}

func (s *Store) ListLogs(ctx context.Context, sessionID string) ([]engine.SessionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.SessionLog, 0)
	for _, l := range s.logs {
		if l.SessionID == sessionID {
			out = append(out, l)
		}
	}
	return out, nil
}
