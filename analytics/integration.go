package analytics

import (
	"context"
	"fmt"
	"time"

	"progresskit/core"
	"progresskit/engine"
)

// AnalyticsService provides a complete analytics solution integrated with the
// progression engine.
type AnalyticsService struct {
	metrics    *ComprehensiveMetrics
	aggregator *AggregationEngine
	publisher  *StreamPublisher
	dashboard  *DashboardManager
	exporter   *ExportManager
}

// NewAnalyticsService creates a fully configured analytics service
func NewAnalyticsService() *AnalyticsService {
	metrics := NewComprehensiveMetrics()
	aggregator := NewAggregationEngine(metrics, 1*time.Hour)
	publisher := NewStreamPublisher(metrics)
	dashboard := NewDashboardManager(publisher, metrics, 100)
	exporter := NewExportManager(NewConsoleExporter("[ANALYTICS]"))

	return &AnalyticsService{
		metrics:    metrics,
		aggregator: aggregator,
		publisher:  publisher,
		dashboard:  dashboard,
		exporter:   exporter,
	}
}

// GetHook returns a hook that can be registered with the progression engine
func (as *AnalyticsService) GetHook() Hook {
	return as.publisher
}

// Attach subscribes the analytics pipeline to every progression event the
// service publishes. The returned function removes all subscriptions.
func (as *AnalyticsService) Attach(svc *engine.ProgressionService) func() {
	hook := as.GetHook()
	types := []core.EventType{
		core.EventActivityRecorded,
		core.EventPointsAdded,
		core.EventLevelUp,
		core.EventStreakExtended,
		core.EventAchievementUnlocked,
		core.EventBadgeAwarded,
		core.EventLeaderboardRecomputed,
	}
	cancels := make([]func(), 0, len(types))
	for _, typ := range types {
		cancels = append(cancels, svc.Subscribe(typ, func(ctx context.Context, e core.Event) {
			hook.OnEvent(e)
		}))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// Start begins background analytics processing
func (as *AnalyticsService) Start(ctx context.Context) {
	go as.aggregator.Start(ctx)
	go as.startPeriodicExport(ctx)
}

// startPeriodicExport periodically exports aggregated data
func (as *AnalyticsService) startPeriodicExport(ctx context.Context) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dailyData := as.aggregator.GetAllAggregatedData(PeriodDaily)
			if err := as.exporter.ExportData(ctx, dailyData); err != nil {
				fmt.Printf("Export error: %v\n", err)
			}
		}
	}
}

// GetRealtimeStats returns current real-time statistics
func (as *AnalyticsService) GetRealtimeStats() map[string]interface{} {
	return as.publisher.GetRealtimeStats()
}

// GetDashboardData returns data for live dashboards
func (as *AnalyticsService) GetDashboardData() *DashboardData {
	return as.dashboard.GetDashboardData()
}

// ForceAggregation triggers immediate aggregation (useful for testing)
func (as *AnalyticsService) ForceAggregation() error {
	return as.aggregator.AggregateNow()
}

// SubscribeToRealtime adds a subscriber for real-time events
func (as *AnalyticsService) SubscribeToRealtime(id string, subscriber StreamSubscriber) {
	as.publisher.Subscribe(id, subscriber)
}

// UnsubscribeFromRealtime removes a real-time subscriber
func (as *AnalyticsService) UnsubscribeFromRealtime(id string) {
	as.publisher.Unsubscribe(id)
}

// CreateAnalyticsServiceForTesting creates a minimal analytics setup for testing
func CreateAnalyticsServiceForTesting() *AnalyticsService {
	metrics := NewComprehensiveMetrics()
	aggregator := NewAggregationEngine(metrics, 1*time.Hour)
	publisher := NewStreamPublisher(metrics)
	dashboard := NewDashboardManager(publisher, metrics, 10)
	exporter := NewExportManager(NewConsoleExporter("[TEST]"))

	return &AnalyticsService{
		metrics:    metrics,
		aggregator: aggregator,
		publisher:  publisher,
		dashboard:  dashboard,
		exporter:   exporter,
	}
}

// AnalyticsConfig holds configuration for analytics services
type AnalyticsConfig struct {
	AggregationInterval time.Duration    `json:"aggregation_interval"`
	MaxRecentEvents     int              `json:"max_recent_events"`
	ExportInterval      time.Duration    `json:"export_interval"`
	EnableStreaming     bool             `json:"enable_streaming"`
	Exporters           []ExporterConfig `json:"exporters"`
}

// ExporterConfig holds configuration for individual exporters
type ExporterConfig struct {
	Type       string            `json:"type"` // "http", "segment", "console"
	Endpoint   string            `json:"endpoint,omitempty"`
	APIKey     string            `json:"api_key,omitempty"`
	BatchSize  int               `json:"batch_size,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// NewAnalyticsServiceWithConfig creates analytics service with custom configuration
func NewAnalyticsServiceWithConfig(config *AnalyticsConfig) *AnalyticsService {
	metrics := NewComprehensiveMetrics()
	aggregator := NewAggregationEngine(metrics, config.AggregationInterval)
	publisher := NewStreamPublisher(metrics)
	dashboard := NewDashboardManager(publisher, metrics, config.MaxRecentEvents)

	exporters := []Exporter{NewConsoleExporter("[ANALYTICS]")}
	for _, expConfig := range config.Exporters {
		switch expConfig.Type {
		case "http":
			if expConfig.BatchSize == 0 {
				expConfig.BatchSize = 10
			}
			exporters = append(exporters, NewHTTPExporter(expConfig.Endpoint, expConfig.APIKey, expConfig.BatchSize))
		case "segment":
			if expConfig.APIKey != "" {
				exporters = append(exporters, NewSegmentExporter(expConfig.APIKey))
			}
		}
	}

	return &AnalyticsService{
		metrics:    metrics,
		aggregator: aggregator,
		publisher:  publisher,
		dashboard:  dashboard,
		exporter:   NewExportManager(exporters...),
	}
}
