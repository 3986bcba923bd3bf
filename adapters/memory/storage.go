package memory

import (
	"context"
	"fmt"
	"sync"

	"progresskit/core"
)

// Store is a concurrent in-memory Storage implementation. A per-user mutex
// is the critical section: update closures for the same user serialize,
// different users proceed in parallel.
type Store struct {
	users    sync.Map // map[core.UserID]*userRecord
	progress sync.Map // map[progressKey]*progressRecord
}

type userRecord struct {
	mu      sync.Mutex
	created bool
	state   core.UserState
}

type progressKey struct {
	user        core.UserID
	achievement core.AchievementID
}

type progressRecord struct {
	mu      sync.Mutex
	created bool
	row     core.AchievementProgress
}

func New() *Store { return &Store{} }

func (s *Store) getOrCreate(user core.UserID) *userRecord {
	if v, ok := s.users.Load(user); ok {
		return v.(*userRecord)
	}
	actual, _ := s.users.LoadOrStore(user, &userRecord{state: core.UserState{UserID: user}})
	return actual.(*userRecord)
}

func (s *Store) UpdateState(_ context.Context, user core.UserID, fn func(*core.UserState) error) (core.UserState, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	next := rec.state.Clone()
	if err := fn(&next); err != nil {
		return core.UserState{}, err
	}
	next.Version = rec.state.Version + 1
	rec.state = next
	rec.created = true
	return next.Clone(), nil
}

func (s *Store) GetState(_ context.Context, user core.UserID) (core.UserState, error) {
	v, ok := s.users.Load(user)
	if !ok {
		return core.UserState{}, fmt.Errorf("%w: user %s", core.ErrNotFound, user)
	}
	rec := v.(*userRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.created {
		return core.UserState{}, fmt.Errorf("%w: user %s", core.ErrNotFound, user)
	}
	return rec.state.Clone(), nil
}

func (s *Store) ListStates(_ context.Context) ([]core.UserState, error) {
	var out []core.UserState
	s.users.Range(func(_, v any) bool {
		rec := v.(*userRecord)
		rec.mu.Lock()
		if rec.created {
			out = append(out, rec.state.Clone())
		}
		rec.mu.Unlock()
		return true
	})
	return out, nil
}

func (s *Store) UpdateProgress(_ context.Context, user core.UserID, achievement core.AchievementID, fn func(*core.AchievementProgress, bool) error) (core.AchievementProgress, error) {
	key := progressKey{user: user, achievement: achievement}
	v, ok := s.progress.Load(key)
	if !ok {
		v, _ = s.progress.LoadOrStore(key, &progressRecord{})
	}
	rec := v.(*progressRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	next := cloneProgress(rec.row)
	if err := fn(&next, rec.created); err != nil {
		return core.AchievementProgress{}, err
	}
	rec.row = next
	rec.created = true
	return cloneProgress(next), nil
}

func (s *Store) GetProgress(_ context.Context, user core.UserID, achievement core.AchievementID) (core.AchievementProgress, error) {
	v, ok := s.progress.Load(progressKey{user: user, achievement: achievement})
	if !ok {
		return core.AchievementProgress{}, fmt.Errorf("%w: progress %s/%s", core.ErrNotFound, user, achievement)
	}
	rec := v.(*progressRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.created {
		return core.AchievementProgress{}, fmt.Errorf("%w: progress %s/%s", core.ErrNotFound, user, achievement)
	}
	return cloneProgress(rec.row), nil
}

func cloneProgress(p core.AchievementProgress) core.AchievementProgress {
	cp := p
	cp.Entries = make([]core.ProgressEntry, len(p.Entries))
	copy(cp.Entries, p.Entries)
	cp.Milestones = make([]core.Milestone, len(p.Milestones))
	copy(cp.Milestones, p.Milestones)
	return cp
}
