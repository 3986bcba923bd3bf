package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"progresskit/core"
)

// DefaultRetryAttempts bounds internal retries of contended state updates
// before core.ErrConcurrencyConflict surfaces to the caller.
const DefaultRetryAttempts = 3

// ProgressionService wires storage, catalogue, stats, and the event bus into
// the activity-intake pipeline: ledger update, streak, achievement
// evaluation, badge evaluation, all inside one per-user critical section.
type ProgressionService struct {
	storage       Storage
	bus           *EventBus
	catalog       Catalog
	stats         StatsProvider
	clock         Clock
	baseThreshold int64
	retryAttempts int
	lazyProgress  bool
	newID         func() string
}

// Option tweaks service behaviour.
type Option func(*ProgressionService)

// WithClock injects the time source used for streaks and timestamps.
func WithClock(c Clock) Option {
	return func(s *ProgressionService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithBaseThreshold sets the experience required to clear level 1.
func WithBaseThreshold(n int64) Option {
	return func(s *ProgressionService) {
		if n > 0 {
			s.baseThreshold = n
		}
	}
}

// WithRetryAttempts bounds internal retries on concurrency conflicts.
func WithRetryAttempts(n int) Option {
	return func(s *ProgressionService) {
		if n > 0 {
			s.retryAttempts = n
		}
	}
}

// WithLazyProgressInit controls whether UpdateProgress creates missing
// progress rows on first update (default) or fails with core.ErrNotFound.
func WithLazyProgressInit(enabled bool) Option {
	return func(s *ProgressionService) { s.lazyProgress = enabled }
}

func NewProgressionService(storage Storage, bus *EventBus, catalog Catalog, stats StatsProvider, opts ...Option) *ProgressionService {
	if storage == nil || bus == nil || catalog == nil || stats == nil {
		panic("NewProgressionService requires non-nil storage, bus, catalog, and stats")
	}
	s := &ProgressionService{
		storage:       storage,
		bus:           bus,
		catalog:       catalog,
		stats:         stats,
		clock:         SystemClock{},
		baseThreshold: core.DefaultBaseThreshold,
		retryAttempts: DefaultRetryAttempts,
		lazyProgress:  true,
		newID:         uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe convenience method.
func (s *ProgressionService) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *ProgressionService) Publish(ctx context.Context, ev core.Event) {
	s.bus.Publish(ctx, ev)
}

// RecordActivity is the single intake call: credits points, advances the
// streak, and runs achievement and badge evaluation, all applied atomically
// to the user's state. The stats delta carries the external counters this
// event moved.
func (s *ProgressionService) RecordActivity(ctx context.Context, user core.UserID, points int64, activity core.ActivityType, description string, delta core.StatsDelta) (core.UserState, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return core.UserState{}, err
	}
	if points < 0 {
		return core.UserState{}, fmt.Errorf("%w: %d", core.ErrInvalidAmount, points)
	}

	base, err := s.resolveStats(ctx, normalized, delta)
	if err != nil {
		return core.UserState{}, err
	}
	achievements, badges, err := s.catalogs(ctx)
	if err != nil {
		return core.UserState{}, err
	}

	var events []core.Event
	st, err := s.updateStateRetrying(ctx, normalized, func(st *core.UserState) error {
		events = events[:0] // closure may rerun on contention
		now := s.clock.Now()
		s.ensureInitialized(st, normalized, now)

		prevLevel, prevStreak := st.Level, st.Streak.Current
		if err := st.AddPoints(points, activity, description, s.newID(), now); err != nil {
			return err
		}
		st.Streak.Advance(now)

		events = append(events,
			core.NewActivityRecorded(normalized, activity, points, st.Points, now),
			core.NewPointsAdded(normalized, points, st.Points, now),
		)
		if st.Streak.Current > prevStreak {
			events = append(events, core.NewStreakExtended(normalized, st.Streak.Current, now))
		}

		unlockEvents, err := s.applyAchievements(st, achievements, base)
		if err != nil {
			return err
		}
		events = append(events, unlockEvents...)
		events = append(events, s.applyBadges(st, badges)...)

		if st.Level > prevLevel {
			events = append(events, core.NewLevelUp(normalized, st.Level, now))
		}
		return nil
	})
	if err != nil {
		return core.UserState{}, err
	}
	for _, ev := range events {
		s.bus.Publish(ctx, ev)
	}
	return st, nil
}

// GetState returns the user's progression state.
func (s *ProgressionService) GetState(ctx context.Context, user core.UserID) (core.UserState, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return core.UserState{}, err
	}
	return s.storage.GetState(ctx, normalized)
}

// EvaluateAchievements re-runs achievement evaluation against the user's
// current stats, outside activity intake. Evaluation is side-effect-free for
// definitions that do not newly qualify.
func (s *ProgressionService) EvaluateAchievements(ctx context.Context, user core.UserID) (core.UserState, error) {
	return s.evaluate(ctx, user, true, true)
}

// EvaluateBadges re-runs badge evaluation only.
func (s *ProgressionService) EvaluateBadges(ctx context.Context, user core.UserID) (core.UserState, error) {
	return s.evaluate(ctx, user, false, true)
}

func (s *ProgressionService) evaluate(ctx context.Context, user core.UserID, withAchievements, withBadges bool) (core.UserState, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return core.UserState{}, err
	}
	base, err := s.resolveStats(ctx, normalized, core.StatsDelta{})
	if err != nil {
		return core.UserState{}, err
	}
	achievements, badges, err := s.catalogs(ctx)
	if err != nil {
		return core.UserState{}, err
	}

	var events []core.Event
	st, err := s.updateStateRetrying(ctx, normalized, func(st *core.UserState) error {
		events = events[:0]
		s.ensureInitialized(st, normalized, s.clock.Now())
		if withAchievements {
			unlockEvents, err := s.applyAchievements(st, achievements, base)
			if err != nil {
				return err
			}
			events = append(events, unlockEvents...)
		}
		if withBadges {
			events = append(events, s.applyBadges(st, badges)...)
		}
		return nil
	})
	if err != nil {
		return core.UserState{}, err
	}
	for _, ev := range events {
		s.bus.Publish(ctx, ev)
	}
	return st, nil
}

// UpdateProgress accumulates incremental progress toward one achievement.
// On the row's first transition to completed, the achievement unlocks and
// its reward is credited exactly once. Updating an already-completed row
// persists the values and signals core.ErrAlreadyCompleted; it is a no-op
// for the reward, not a failure.
func (s *ProgressionService) UpdateProgress(ctx context.Context, user core.UserID, achievement core.AchievementID, updates []core.ProgressUpdate) (core.AchievementProgress, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return core.AchievementProgress{}, err
	}
	def, err := s.findAchievement(ctx, achievement)
	if err != nil {
		return core.AchievementProgress{}, err
	}
	targets := make(map[core.RequirementType]int64, len(def.Requirements))
	for _, r := range def.Requirements {
		targets[r.Type] = r.Target
	}

	var completedNow, alreadyDone bool
	p, err := s.storage.UpdateProgress(ctx, normalized, achievement, func(p *core.AchievementProgress, exists bool) error {
		completedNow, alreadyDone = false, false
		if !exists {
			if !s.lazyProgress {
				return fmt.Errorf("%w: progress for achievement %s", core.ErrNotFound, achievement)
			}
			*p = core.NewAchievementProgress(normalized, def)
		}
		alreadyDone = p.Completed
		completedNow = p.Apply(updates, targets, s.clock.Now())
		return nil
	})
	if err != nil {
		return core.AchievementProgress{}, err
	}

	if completedNow {
		if err := s.completeAchievement(ctx, normalized, def); err != nil {
			return p, err
		}
	}
	if alreadyDone {
		// The completing call may have flipped the row and then failed to
		// commit the unlock (contention exhausted). Re-run the unlock until
		// the state carries the achievement; unlock is idempotent, so the
		// reward still credits exactly once.
		if err := s.ensureUnlocked(ctx, normalized, def); err != nil {
			return p, err
		}
		return p, core.ErrAlreadyCompleted
	}
	return p, nil
}

// ensureUnlocked repairs a completed progress row whose achievement never
// reached the user state. It is a read-mostly check: when the unlock is
// already durable it touches nothing.
func (s *ProgressionService) ensureUnlocked(ctx context.Context, user core.UserID, def core.AchievementDefinition) error {
	st, err := s.storage.GetState(ctx, user)
	if err == nil && st.HasAchievement(def.ID) {
		return nil
	}
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}
	return s.completeAchievement(ctx, user, def)
}

// InitProgress explicitly creates the progress row for an achievement,
// regardless of the lazy-initialization setting.
func (s *ProgressionService) InitProgress(ctx context.Context, user core.UserID, achievement core.AchievementID) (core.AchievementProgress, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return core.AchievementProgress{}, err
	}
	def, err := s.findAchievement(ctx, achievement)
	if err != nil {
		return core.AchievementProgress{}, err
	}
	return s.storage.UpdateProgress(ctx, normalized, achievement, func(p *core.AchievementProgress, exists bool) error {
		if !exists {
			*p = core.NewAchievementProgress(normalized, def)
		}
		return nil
	})
}

// GetProgress returns the progress row for one achievement.
func (s *ProgressionService) GetProgress(ctx context.Context, user core.UserID, achievement core.AchievementID) (core.AchievementProgress, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return core.AchievementProgress{}, err
	}
	return s.storage.GetProgress(ctx, normalized, achievement)
}

// Storage exposes the underlying storage for collaborators such as the
// leaderboard ranker.
func (s *ProgressionService) Storage() Storage { return s.storage }

func (s *ProgressionService) Close() { s.bus.Close() }

// completeAchievement runs the unlock path after a progress row completes:
// unlock, reward credit, badge template, badge evaluation.
func (s *ProgressionService) completeAchievement(ctx context.Context, user core.UserID, def core.AchievementDefinition) error {
	_, badges, err := s.catalogs(ctx)
	if err != nil {
		return err
	}
	var events []core.Event
	_, err = s.updateStateRetrying(ctx, user, func(st *core.UserState) error {
		events = events[:0]
		now := s.clock.Now()
		s.ensureInitialized(st, user, now)
		prevLevel := st.Level
		unlockEvents, err := s.unlock(st, def)
		if err != nil {
			return err
		}
		events = append(events, unlockEvents...)
		events = append(events, s.applyBadges(st, badges)...)
		if st.Level > prevLevel {
			events = append(events, core.NewLevelUp(user, st.Level, now))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, ev := range events {
		s.bus.Publish(ctx, ev)
	}
	return nil
}

// applyAchievements unlocks every definition the stats newly satisfy.
// Engine-owned figures are re-overlaid after each unlock so reward credits
// feed later points/level requirements in the same pass.
func (s *ProgressionService) applyAchievements(st *core.UserState, defs []core.AchievementDefinition, base core.Stats) ([]core.Event, error) {
	var events []core.Event
	for _, def := range defs {
		if st.HasAchievement(def.ID) {
			continue
		}
		ok, err := def.Satisfied(base.WithState(*st))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		unlockEvents, err := s.unlock(st, def)
		if err != nil {
			return nil, err
		}
		events = append(events, unlockEvents...)
	}
	return events, nil
}

// unlock applies one achievement unlock to the state: append-only id set,
// reward credit through the ledger, and the badge template if carried.
func (s *ProgressionService) unlock(st *core.UserState, def core.AchievementDefinition) ([]core.Event, error) {
	now := s.clock.Now()
	if !st.UnlockAchievement(def.ID, now) {
		return nil, nil
	}
	if err := st.AddPoints(def.PointsReward, core.ActivityAchievementUnlocked, "Achievement unlocked: "+def.Name, s.newID(), now); err != nil {
		return nil, err
	}
	events := []core.Event{core.NewAchievementUnlocked(st.UserID, def.ID, def.PointsReward, now)}
	if def.Badge != nil {
		tpl := core.MergeBadgeTemplate(*def.Badge, def)
		if st.AwardBadge(tpl.ID, "Badge earned: "+tpl.Name, s.newID(), now) {
			events = append(events, core.NewBadgeAwarded(st.UserID, tpl.ID, now))
		}
	}
	return events, nil
}

// applyBadges awards every badge whose present conditions now hold.
func (s *ProgressionService) applyBadges(st *core.UserState, defs []core.BadgeDefinition) []core.Event {
	var events []core.Event
	now := s.clock.Now()
	for _, def := range defs {
		if st.HasBadge(def.ID) || !def.Satisfied(*st) {
			continue
		}
		if st.AwardBadge(def.ID, "Badge earned: "+def.Name, s.newID(), now) {
			events = append(events, core.NewBadgeAwarded(st.UserID, def.ID, now))
		}
	}
	return events
}

// ensureInitialized seeds the initial state the first time a user shows up.
func (s *ProgressionService) ensureInitialized(st *core.UserState, user core.UserID, now time.Time) {
	if st.Level == 0 {
		*st = core.NewUserState(user, s.baseThreshold, now)
	}
}

// resolveStats reads the external counters, feeding the delta back into a
// StatsRecorder first when the provider owns the counters itself.
func (s *ProgressionService) resolveStats(ctx context.Context, user core.UserID, delta core.StatsDelta) (core.Stats, error) {
	if rec, ok := s.stats.(StatsRecorder); ok {
		if err := rec.RecordDelta(ctx, user, delta); err != nil {
			return core.Stats{}, err
		}
		return s.stats.UserStats(ctx, user)
	}
	base, err := s.stats.UserStats(ctx, user)
	if err != nil {
		return core.Stats{}, err
	}
	return base.Apply(delta), nil
}

func (s *ProgressionService) catalogs(ctx context.Context) ([]core.AchievementDefinition, []core.BadgeDefinition, error) {
	achievements, err := s.catalog.Achievements(ctx)
	if err != nil {
		return nil, nil, err
	}
	badges, err := s.catalog.Badges(ctx)
	if err != nil {
		return nil, nil, err
	}
	return achievements, badges, nil
}

func (s *ProgressionService) findAchievement(ctx context.Context, id core.AchievementID) (core.AchievementDefinition, error) {
	achievements, err := s.catalog.Achievements(ctx)
	if err != nil {
		return core.AchievementDefinition{}, err
	}
	for _, def := range achievements {
		if def.ID == id {
			return def, nil
		}
	}
	return core.AchievementDefinition{}, fmt.Errorf("%w: achievement %s", core.ErrNotFound, id)
}

// updateStateRetrying retries contended updates with bounded attempts before
// surfacing core.ErrConcurrencyConflict. A failed attempt never partially
// applies; the closure reruns against the fresh state.
func (s *ProgressionService) updateStateRetrying(ctx context.Context, user core.UserID, fn func(*core.UserState) error) (core.UserState, error) {
	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		st, err := s.storage.UpdateState(ctx, user, fn)
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, core.ErrConcurrencyConflict) {
			return core.UserState{}, err
		}
		lastErr = err
	}
	return core.UserState{}, fmt.Errorf("update for %s exhausted %d attempts: %w", user, s.retryAttempts, lastErr)
}
