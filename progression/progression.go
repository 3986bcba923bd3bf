package progression

import (
	"context"

	mem "progresskit/adapters/memory"
	"progresskit/core"
	"progresskit/engine"
	"progresskit/realtime"
)

// Option configures the progression service builder.
type Option func(*config)

type config struct {
	storage       engine.Storage
	catalog       engine.Catalog
	stats         engine.StatsProvider
	clock         engine.Clock
	mode          engine.DispatchMode
	hub           *realtime.Hub
	baseThreshold int64
	retryAttempts int
	lazyProgress  *bool
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithCatalog sets the achievement and badge catalogue.
func WithCatalog(cat engine.Catalog) Option { return func(c *config) { c.catalog = cat } }

// WithStats sets the learning-stats provider.
func WithStats(sp engine.StatsProvider) Option { return func(c *config) { c.stats = sp } }

// WithClock injects the time source.
func WithClock(clk engine.Clock) Option { return func(c *config) { c.clock = clk } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithBaseThreshold sets the experience required to clear level 1.
func WithBaseThreshold(n int64) Option { return func(c *config) { c.baseThreshold = n } }

// WithRetryAttempts bounds internal retries on concurrency conflicts.
func WithRetryAttempts(n int) Option { return func(c *config) { c.retryAttempts = n } }

// WithLazyProgressInit controls whether progress rows are created on first
// update (the default) or must be initialized explicitly.
func WithLazyProgressInit(enabled bool) Option {
	return func(c *config) { c.lazyProgress = &enabled }
}

// New builds a configured ProgressionService. If not provided, defaults are used:
//   - storage: in-memory
//   - catalog: empty static catalogue
//   - stats: accumulating in-memory stats
//   - dispatch: async
func New(opts ...Option) *engine.ProgressionService {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}
	if cfg.catalog == nil {
		// NewStaticCatalog only fails on invalid definitions; empty is fine.
		cfg.catalog, _ = engine.NewStaticCatalog(nil, nil)
	}
	if cfg.stats == nil {
		cfg.stats = engine.NewAccumulatingStats()
	}

	var svcOpts []engine.Option
	if cfg.clock != nil {
		svcOpts = append(svcOpts, engine.WithClock(cfg.clock))
	}
	if cfg.baseThreshold > 0 {
		svcOpts = append(svcOpts, engine.WithBaseThreshold(cfg.baseThreshold))
	}
	if cfg.retryAttempts > 0 {
		svcOpts = append(svcOpts, engine.WithRetryAttempts(cfg.retryAttempts))
	}
	if cfg.lazyProgress != nil {
		svcOpts = append(svcOpts, engine.WithLazyProgressInit(*cfg.lazyProgress))
	}

	bus := engine.NewEventBus(cfg.mode)
	svc := engine.NewProgressionService(cfg.storage, bus, cfg.catalog, cfg.stats, svcOpts...)
	if cfg.hub != nil {
		// Bridge all primary events to realtime
		broadcast := func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) }
		bus.Subscribe(core.EventActivityRecorded, broadcast)
		bus.Subscribe(core.EventPointsAdded, broadcast)
		bus.Subscribe(core.EventLevelUp, broadcast)
		bus.Subscribe(core.EventStreakExtended, broadcast)
		bus.Subscribe(core.EventAchievementUnlocked, broadcast)
		bus.Subscribe(core.EventBadgeAwarded, broadcast)
		bus.Subscribe(core.EventLeaderboardRecomputed, broadcast)
	}
	return svc
}
