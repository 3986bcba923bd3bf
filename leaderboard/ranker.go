package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"progresskit/core"
)

// WindowType names the cadence of a ranked window.
type WindowType string

const (
	WindowDaily   WindowType = "daily"
	WindowWeekly  WindowType = "weekly"
	WindowMonthly WindowType = "monthly"
	WindowAllTime WindowType = "all_time"
)

// WindowKey identifies one ranked snapshot: cadence, category, and the
// covered date range.
type WindowKey struct {
	Type     WindowType `json:"type"`
	Category string     `json:"category"`
	Start    time.Time  `json:"start"`
	End      time.Time  `json:"end"`
}

// String renders a stable key for logs and events.
func (k WindowKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Type, k.Category, k.Start.UTC().Format("2006-01-02"), k.End.UTC().Format("2006-01-02"))
}

// Ranking is one row of a snapshot.
type Ranking struct {
	UserID       core.UserID `json:"user_id"`
	Score        int64       `json:"score"`
	Achievements int         `json:"achievements"`
	Rank         int         `json:"rank"`
	// Change is previousRank - newRank for the same window key; 0 when the
	// user was absent from the prior snapshot.
	Change int `json:"change"`
}

// Snapshot is the ranked state of one window at one recompute.
type Snapshot struct {
	Key        WindowKey `json:"key"`
	Rankings   []Ranking `json:"rankings"`
	ComputedAt time.Time `json:"computed_at"`
}

// SnapshotStore keeps the latest snapshot per window key. Snapshots are
// append-only per window: a recompute replaces the current one but ranks are
// always derived against it.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: map[string]Snapshot{}}
}

func (s *SnapshotStore) Get(key WindowKey) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[key.String()]
	return snap, ok
}

func (s *SnapshotStore) Put(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.Key.String()] = snap
}

// StateSource yields every tracked user's progression state. The engine's
// storage satisfies it.
type StateSource interface {
	ListStates(ctx context.Context) ([]core.UserState, error)
}

// Ranker recomputes window snapshots from a full scan of user states. It is
// a batch operation: it reads eventually-consistent state copies and never
// blocks activity intake.
type Ranker struct {
	source StateSource
	store  *SnapshotStore
	clock  func() time.Time
}

func NewRanker(source StateSource, store *SnapshotStore) *Ranker {
	if store == nil {
		store = NewSnapshotStore()
	}
	return &Ranker{source: source, store: store, clock: time.Now}
}

// Store exposes the backing snapshot store.
func (r *Ranker) Store() *SnapshotStore { return r.store }

// Snapshot returns the current snapshot for a window, if one was computed.
func (r *Ranker) Snapshot(key WindowKey) (Snapshot, bool) { return r.store.Get(key) }

// Recompute rebuilds the full ranking for one window: scores sorted
// descending with user id as the deterministic tie-break, 1-based ranks, and
// per-user rank deltas against the window's previous snapshot.
func (r *Ranker) Recompute(ctx context.Context, key WindowKey) (Snapshot, error) {
	states, err := r.source.ListStates(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("scan states: %w", err)
	}

	rankings := make([]Ranking, 0, len(states))
	for _, st := range states {
		rankings = append(rankings, Ranking{
			UserID:       st.UserID,
			Score:        st.Points,
			Achievements: len(st.Achievements),
		})
	}
	sort.Slice(rankings, func(i, j int) bool {
		if rankings[i].Score == rankings[j].Score {
			return rankings[i].UserID < rankings[j].UserID
		}
		return rankings[i].Score > rankings[j].Score
	})

	prevRanks := map[core.UserID]int{}
	if prev, ok := r.store.Get(key); ok {
		for _, row := range prev.Rankings {
			prevRanks[row.UserID] = row.Rank
		}
	}
	for i := range rankings {
		rankings[i].Rank = i + 1
		if prev, ok := prevRanks[rankings[i].UserID]; ok {
			rankings[i].Change = prev - rankings[i].Rank
		}
	}

	snap := Snapshot{Key: key, Rankings: rankings, ComputedAt: r.clock().UTC()}
	r.store.Put(snap)
	return snap, nil
}
