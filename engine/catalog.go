package engine

import (
	"context"
	"sync"

	"progresskit/core"
)

// StaticCatalog is an in-memory Catalog validated at construction. Suitable
// when the catalogue ships with the application rather than an admin store.
type StaticCatalog struct {
	achievements []core.AchievementDefinition
	badges       []core.BadgeDefinition
}

// NewStaticCatalog validates every definition up front and fails fast on the
// first malformed entry.
func NewStaticCatalog(achievements []core.AchievementDefinition, badges []core.BadgeDefinition) (*StaticCatalog, error) {
	for _, a := range achievements {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}
	for _, b := range badges {
		if err := b.Validate(); err != nil {
			return nil, err
		}
	}
	return &StaticCatalog{achievements: achievements, badges: badges}, nil
}

func (c *StaticCatalog) Achievements(context.Context) ([]core.AchievementDefinition, error) {
	out := make([]core.AchievementDefinition, len(c.achievements))
	copy(out, c.achievements)
	return out, nil
}

func (c *StaticCatalog) Badges(context.Context) ([]core.BadgeDefinition, error) {
	out := make([]core.BadgeDefinition, len(c.badges))
	copy(out, c.badges)
	return out, nil
}

// AccumulatingStats is a StatsProvider that builds the content counters from
// the activity deltas the service feeds it. Deployments with a real content
// subsystem should implement StatsProvider against it instead.
type AccumulatingStats struct {
	mu    sync.Mutex
	stats map[core.UserID]core.Stats
}

func NewAccumulatingStats() *AccumulatingStats {
	return &AccumulatingStats{stats: map[core.UserID]core.Stats{}}
}

func (a *AccumulatingStats) UserStats(_ context.Context, user core.UserID) (core.Stats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats[user], nil
}

func (a *AccumulatingStats) RecordDelta(_ context.Context, user core.UserID, delta core.StatsDelta) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats[user] = a.stats[user].Apply(delta)
	return nil
}

var _ StatsProvider = (*AccumulatingStats)(nil)
var _ StatsRecorder = (*AccumulatingStats)(nil)
