package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"progresskit/core"
)

// Store persists entire progression state to a single JSON file.
// Suitable for demos and small deployments.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	data fileData
}

type fileData struct {
	Users    map[string]core.UserState                      `json:"users"`
	Progress map[string]map[string]core.AchievementProgress `json:"progress"`
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: fileData{
		Users:    map[string]core.UserState{},
		Progress: map[string]map[string]core.AchievementProgress{},
	}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw fileData
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Users != nil {
		s.data.Users = raw.Users
	}
	if raw.Progress != nil {
		s.data.Progress = raw.Progress
	}
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) UpdateState(_ context.Context, user core.UserID, fn func(*core.UserState) error) (core.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.data.Users[string(user)]
	if !existed {
		prev = core.UserState{UserID: user}
	}
	next := prev.Clone()
	if err := fn(&next); err != nil {
		return core.UserState{}, err
	}
	next.Version = prev.Version + 1
	s.data.Users[string(user)] = next
	if err := s.persist(); err != nil {
		// roll the cache back so memory and disk stay in sync
		if existed {
			s.data.Users[string(user)] = prev
		} else {
			delete(s.data.Users, string(user))
		}
		return core.UserState{}, err
	}
	return next.Clone(), nil
}

func (s *Store) GetState(_ context.Context, user core.UserID) (core.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data.Users[string(user)]
	if !ok {
		return core.UserState{}, fmt.Errorf("%w: user %s", core.ErrNotFound, user)
	}
	return st.Clone(), nil
}

func (s *Store) ListStates(_ context.Context) ([]core.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.UserState, 0, len(s.data.Users))
	for _, st := range s.data.Users {
		out = append(out, st.Clone())
	}
	return out, nil
}

func (s *Store) UpdateProgress(_ context.Context, user core.UserID, achievement core.AchievementID, fn func(*core.AchievementProgress, bool) error) (core.AchievementProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.data.Progress[string(user)]
	prev, existed := rows[string(achievement)]
	next := prev
	if err := fn(&next, existed); err != nil {
		return core.AchievementProgress{}, err
	}
	if rows == nil {
		rows = map[string]core.AchievementProgress{}
		s.data.Progress[string(user)] = rows
	}
	rows[string(achievement)] = next
	if err := s.persist(); err != nil {
		if existed {
			rows[string(achievement)] = prev
		} else {
			delete(rows, string(achievement))
		}
		return core.AchievementProgress{}, err
	}
	return next, nil
}

func (s *Store) GetProgress(_ context.Context, user core.UserID, achievement core.AchievementID) (core.AchievementProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.Progress[string(user)][string(achievement)]
	if !ok {
		return core.AchievementProgress{}, fmt.Errorf("%w: progress %s/%s", core.ErrNotFound, user, achievement)
	}
	return p, nil
}
