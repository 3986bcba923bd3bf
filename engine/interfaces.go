package engine

import (
	"context"
	"time"

	"progresskit/core"
)

// Storage abstracts persistence for progression state. Mutations run through
// update closures: the closure observes a private copy of the current row,
// and the adapter commits it atomically or not at all. Adapters report
// exhausted contention as core.ErrConcurrencyConflict.
type Storage interface {
	// UpdateState applies fn to the user's state under a per-user critical
	// section, creating the initial state on first use. If fn returns an
	// error, nothing is persisted.
	UpdateState(ctx context.Context, user core.UserID, fn func(*core.UserState) error) (core.UserState, error)

	// GetState returns a copy of the user's state, or core.ErrNotFound.
	GetState(ctx context.Context, user core.UserID) (core.UserState, error)

	// ListStates returns a copy of every tracked user's state. Used by the
	// leaderboard ranker; intentionally not transactionally coupled to
	// concurrent updates.
	ListStates(ctx context.Context) ([]core.UserState, error)

	// UpdateProgress applies fn to the (user, achievement) progress row.
	// exists tells fn whether a row was already persisted; fn may populate
	// a fresh row or refuse with core.ErrNotFound.
	UpdateProgress(ctx context.Context, user core.UserID, achievement core.AchievementID, fn func(p *core.AchievementProgress, exists bool) error) (core.AchievementProgress, error)

	// GetProgress returns a copy of the progress row, or core.ErrNotFound.
	GetProgress(ctx context.Context, user core.UserID, achievement core.AchievementID) (core.AchievementProgress, error)
}

// Catalog supplies the externally authored achievement and badge
// definitions.
type Catalog interface {
	Achievements(ctx context.Context) ([]core.AchievementDefinition, error)
	Badges(ctx context.Context) ([]core.BadgeDefinition, error)
}

// StatsProvider supplies the content subsystem's per-user counters
// (lessons, exercises, perfect scores, cultural contributions). Engine-owned
// figures are overlaid separately.
type StatsProvider interface {
	UserStats(ctx context.Context, user core.UserID) (core.Stats, error)
}

// StatsRecorder is an optional upgrade of StatsProvider for deployments
// without an external tracker: the service feeds activity deltas back into
// it during intake.
type StatsRecorder interface {
	RecordDelta(ctx context.Context, user core.UserID, delta core.StatsDelta) error
}

// Clock injects time so streak and progress timestamps stay testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
