package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gamezone/internal/app/game"
)

// memRepository mirrors the conditional-update semantics of the SQL repository.
type memRepository struct {
	mu   sync.Mutex
	rows map[string]*Session
	now  func() time.Time

	failList        error
	failCreate      error
	failMarkEnded   map[string]error
	beforeMarkEnded func(id string)
	beforeCreate    func(s *Session)
	afterList       func()
}

func newMemRepository(now func() time.Time) *memRepository {
	return &memRepository{
		rows:          make(map[string]*Session),
		now:           now,
		failMarkEnded: make(map[string]error),
	}
}

func clone(s *Session) *Session {
	cp := *s
	if s.GroupID != nil {
		v := *s.GroupID
		cp.GroupID = &v
	}
	if s.UserID != nil {
		v := *s.UserID
		cp.UserID = &v
	}
	if s.EndedAt != nil {
		v := *s.EndedAt
		cp.EndedAt = &v
	}
	if s.ExitToken != nil {
		v := *s.ExitToken
		cp.ExitToken = &v
	}
	return &cp
}

func (m *memRepository) seed(rows ...*Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = r.StartedAt
		}
		m.rows[r.ID] = clone(r)
	}
}

func (m *memRepository) get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil
	}
	return clone(r)
}

func (m *memRepository) all() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, clone(r))
	}
	sortChain(out)
	return out
}

func (m *memRepository) Create(_ context.Context, s *Session) error {
	if hook := m.beforeCreate; hook != nil {
		m.beforeCreate = nil
		hook(s)
	}
	if m.failCreate != nil {
		return storageErr("create", m.failCreate)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[s.ID]; exists {
		return storageErr("create", errors.New("duplicate key"))
	}
	now := m.now()
	s.CreatedAt, s.UpdatedAt = now, now
	m.rows[s.ID] = clone(s)
	return nil
}

func (m *memRepository) GetByID(_ context.Context, id string) (*Session, error) {
	if r := m.get(id); r != nil {
		return r, nil
	}
	return nil, ErrNotFound
}

func (m *memRepository) filter(keep func(*Session) bool) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for _, r := range m.rows {
		if keep(r) {
			out = append(out, clone(r))
		}
	}
	sortChain(out)
	return out
}

func (m *memRepository) ListByGroup(_ context.Context, groupID string) ([]*Session, error) {
	return m.filter(func(r *Session) bool {
		return (r.GroupID != nil && *r.GroupID == groupID) || r.ID == groupID
	}), nil
}

func (m *memRepository) ListByExitToken(_ context.Context, token string) ([]*Session, error) {
	return m.filter(func(r *Session) bool {
		return r.ExitToken != nil && *r.ExitToken == token
	}), nil
}

func (m *memRepository) ListOverdue(_ context.Context, cutoff time.Time, limit int) ([]*Session, error) {
	if m.failList != nil {
		return nil, storageErr("list overdue", m.failList)
	}
	rows := m.filter(func(r *Session) bool {
		return r.Status == StatusActive && r.EndedAt == nil && r.EndsAt.Before(cutoff)
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].EndsAt.Before(rows[j].EndsAt) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *memRepository) List(_ context.Context, filter ListFilter) ([]*Session, error) {
	if m.failList != nil {
		return nil, storageErr("list", m.failList)
	}
	active := make(map[string]bool)
	firstCreated := make(map[string]time.Time)
	for _, r := range m.all() {
		key := r.GroupKey()
		if r.Status == StatusActive {
			active[key] = true
		}
		if t, ok := firstCreated[key]; !ok || r.CreatedAt.Before(t) {
			firstCreated[key] = r.CreatedAt
		}
	}

	var keys []string
	for key := range firstCreated {
		if filter.ActiveGroupsOnly && !active[key] {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return firstCreated[keys[i]].After(firstCreated[keys[j]])
	})
	if filter.GroupLimit > 0 && len(keys) > filter.GroupLimit {
		keys = keys[:filter.GroupLimit]
	}
	keep := make(map[string]bool, len(keys))
	for _, key := range keys {
		keep[key] = true
	}

	rows := m.filter(func(r *Session) bool { return keep[r.GroupKey()] })
	if hook := m.afterList; hook != nil {
		m.afterList = nil
		hook()
	}
	return rows, nil
}

func (m *memRepository) HasSuccessor(_ context.Context, groupID string, from time.Time, excludeID string) (bool, error) {
	rows := m.filter(func(r *Session) bool {
		return r.GroupID != nil && *r.GroupID == groupID && r.ID != excludeID && !r.StartedAt.Before(from)
	})
	return len(rows) > 0, nil
}

func (m *memRepository) MarkEnded(_ context.Context, id string, endedAt time.Time) (bool, error) {
	if hook := m.beforeMarkEnded; hook != nil {
		hook(id)
	}
	if err := m.failMarkEnded[id]; err != nil {
		return false, storageErr("close", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.EndedAt != nil {
		return false, nil
	}
	t := endedAt
	r.EndedAt = &t
	r.Status = StatusEnded
	r.UpdatedAt = m.now()
	return true, nil
}

func (m *memRepository) AssignGroup(_ context.Context, id, groupID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.GroupID != nil {
		return false, nil
	}
	g := groupID
	r.GroupID = &g
	return true, nil
}

func (m *memRepository) AssignExitToken(_ context.Context, id string, groupID *string, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if r.ExitToken != nil {
			continue
		}
		match := r.ID == id
		if groupID != nil && r.GroupID != nil && *r.GroupID == *groupID {
			match = true
		}
		if match {
			t := token
			r.ExitToken = &t
			n++
		}
	}
	return n, nil
}

func (m *memRepository) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

func (m *memRepository) Transaction(_ context.Context, fn func(tx Repository) error) error {
	return fn(m)
}

type fakeGames struct {
	mu    sync.Mutex
	games map[string]*game.Game
	err   error
}

func newFakeGames(games ...*game.Game) *fakeGames {
	f := &fakeGames{games: make(map[string]*game.Game)}
	for _, g := range games {
		f.games[g.ID] = g
	}
	return f
}

func (f *fakeGames) GetGame(_ context.Context, id string) (*game.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	g, ok := f.games[id]
	if !ok {
		return nil, game.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (f *fakeGames) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.games, id)
}
