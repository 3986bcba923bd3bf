package analytics

import (
	"fmt"
	"sync"
	"time"

	"progresskit/core"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// DAU tracks daily active users.
type DAU struct {
	mu   sync.Mutex
	days map[string]map[core.UserID]struct{}
}

func NewDAU() *DAU { return &DAU{days: map[string]map[core.UserID]struct{}{}} }

func (d *DAU) OnEvent(e core.Event) {
	if e.UserID == "" {
		return
	}
	day := e.Time.UTC().Format("2006-01-02")
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.days[day]
	if m == nil {
		m = map[core.UserID]struct{}{}
		d.days[day] = m
	}
	m[e.UserID] = struct{}{}
}

func (d *DAU) Count(day string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.days[day])
}

// ComprehensiveMetrics provides comprehensive analytics tracking
type ComprehensiveMetrics struct {
	mu sync.RWMutex

	// User engagement metrics
	dailyActiveUsers   map[string]map[core.UserID]struct{}
	weeklyActiveUsers  map[string]map[core.UserID]struct{}
	monthlyActiveUsers map[string]map[core.UserID]struct{}

	// Points metrics
	pointsAwardedByDay      map[string]int64
	pointsAwardedByActivity map[core.ActivityType]int64

	// Badge metrics
	badgesAwardedByDay  map[string]int64
	badgesAwardedByType map[core.BadgeID]int64
	uniqueBadgeHolders  map[core.BadgeID]map[core.UserID]struct{}

	// Level metrics
	levelsReachedByDay map[string]int64
	levelDistribution  map[int64]int // level -> count of level-up events

	// Streak metrics
	streaksExtendedByDay map[string]int64
	longestStreakSeen    map[core.UserID]int

	// Achievement metrics
	achievementsUnlockedByDay map[string]int64
	achievementsByID          map[core.AchievementID]int64

	// Real-time counters (last 24 hours)
	realtimeCounters struct {
		pointsAwarded        int64
		badgesAwarded        int64
		levelsReached        int64
		achievementsUnlocked int64
		lastReset            time.Time
	}
}

func NewComprehensiveMetrics() *ComprehensiveMetrics {
	now := time.Now()
	cm := &ComprehensiveMetrics{
		dailyActiveUsers:          make(map[string]map[core.UserID]struct{}),
		weeklyActiveUsers:         make(map[string]map[core.UserID]struct{}),
		monthlyActiveUsers:        make(map[string]map[core.UserID]struct{}),
		pointsAwardedByDay:        make(map[string]int64),
		pointsAwardedByActivity:   make(map[core.ActivityType]int64),
		badgesAwardedByDay:        make(map[string]int64),
		badgesAwardedByType:       make(map[core.BadgeID]int64),
		uniqueBadgeHolders:        make(map[core.BadgeID]map[core.UserID]struct{}),
		levelsReachedByDay:        make(map[string]int64),
		levelDistribution:         make(map[int64]int),
		streaksExtendedByDay:      make(map[string]int64),
		longestStreakSeen:         make(map[core.UserID]int),
		achievementsUnlockedByDay: make(map[string]int64),
		achievementsByID:          make(map[core.AchievementID]int64),
	}
	cm.realtimeCounters.lastReset = now
	return cm
}

func (cm *ComprehensiveMetrics) OnEvent(e core.Event) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	day := e.Time.UTC().Format("2006-01-02")
	week := getWeekKey(e.Time)
	month := getMonthKey(e.Time)

	if e.UserID != "" {
		cm.trackUserEngagement(e.UserID, day, week, month)
	}

	switch e.Type {
	case core.EventActivityRecorded:
		if e.Points > 0 {
			cm.pointsAwardedByActivity[e.Activity] += e.Points
		}
	case core.EventPointsAdded:
		if e.Points > 0 {
			cm.pointsAwardedByDay[day] += e.Points
			cm.realtimeCounters.pointsAwarded += e.Points
		}
	case core.EventLevelUp:
		cm.levelsReachedByDay[day]++
		cm.levelDistribution[e.Level]++
		cm.realtimeCounters.levelsReached++
	case core.EventStreakExtended:
		cm.streaksExtendedByDay[day]++
		if e.Streak > cm.longestStreakSeen[e.UserID] {
			cm.longestStreakSeen[e.UserID] = e.Streak
		}
	case core.EventBadgeAwarded:
		cm.badgesAwardedByDay[day]++
		cm.badgesAwardedByType[e.Badge]++
		if cm.uniqueBadgeHolders[e.Badge] == nil {
			cm.uniqueBadgeHolders[e.Badge] = make(map[core.UserID]struct{})
		}
		cm.uniqueBadgeHolders[e.Badge][e.UserID] = struct{}{}
		cm.realtimeCounters.badgesAwarded++
	case core.EventAchievementUnlocked:
		cm.achievementsUnlockedByDay[day]++
		cm.achievementsByID[e.Achievement]++
		cm.realtimeCounters.achievementsUnlocked++
	}

	// Reset realtime counters if needed (every 24 hours)
	if time.Since(cm.realtimeCounters.lastReset) > 24*time.Hour {
		cm.realtimeCounters.pointsAwarded = 0
		cm.realtimeCounters.badgesAwarded = 0
		cm.realtimeCounters.levelsReached = 0
		cm.realtimeCounters.achievementsUnlocked = 0
		cm.realtimeCounters.lastReset = time.Now()
	}
}

func (cm *ComprehensiveMetrics) trackUserEngagement(userID core.UserID, day, week, month string) {
	if cm.dailyActiveUsers[day] == nil {
		cm.dailyActiveUsers[day] = make(map[core.UserID]struct{})
	}
	cm.dailyActiveUsers[day][userID] = struct{}{}

	if cm.weeklyActiveUsers[week] == nil {
		cm.weeklyActiveUsers[week] = make(map[core.UserID]struct{})
	}
	cm.weeklyActiveUsers[week][userID] = struct{}{}

	if cm.monthlyActiveUsers[month] == nil {
		cm.monthlyActiveUsers[month] = make(map[core.UserID]struct{})
	}
	cm.monthlyActiveUsers[month][userID] = struct{}{}
}

// GetDailyActiveUsers returns the count of daily active users for a specific day
func (cm *ComprehensiveMetrics) GetDailyActiveUsers(day string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.dailyActiveUsers[day])
}

// GetWeeklyActiveUsers returns the count of weekly active users for a specific week
func (cm *ComprehensiveMetrics) GetWeeklyActiveUsers(week string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.weeklyActiveUsers[week])
}

// GetMonthlyActiveUsers returns the count of monthly active users for a specific month
func (cm *ComprehensiveMetrics) GetMonthlyActiveUsers(month string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.monthlyActiveUsers[month])
}

// GetPointsAwardedByDay returns total points awarded on a specific day
func (cm *ComprehensiveMetrics) GetPointsAwardedByDay(day string) int64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.pointsAwardedByDay[day]
}

// GetPointsAwardedByActivity returns total points awarded for one activity kind
func (cm *ComprehensiveMetrics) GetPointsAwardedByActivity(activity core.ActivityType) int64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.pointsAwardedByActivity[activity]
}

// GetBadgesAwardedByDay returns total badges awarded on a specific day
func (cm *ComprehensiveMetrics) GetBadgesAwardedByDay(day string) int64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.badgesAwardedByDay[day]
}

// GetBadgesAwardedByType returns total badges awarded of a specific type
func (cm *ComprehensiveMetrics) GetBadgesAwardedByType(badge core.BadgeID) int64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.badgesAwardedByType[badge]
}

// GetUniqueBadgeHolders returns the count of unique users who have a specific badge
func (cm *ComprehensiveMetrics) GetUniqueBadgeHolders(badge core.BadgeID) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.uniqueBadgeHolders[badge])
}

// GetLevelsReachedByDay returns how many level-ups happened on a specific day
func (cm *ComprehensiveMetrics) GetLevelsReachedByDay(day string) int64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.levelsReachedByDay[day]
}

// GetStreaksExtendedByDay returns how many streak extensions happened on a specific day
func (cm *ComprehensiveMetrics) GetStreaksExtendedByDay(day string) int64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.streaksExtendedByDay[day]
}

// GetAchievementsUnlockedByDay returns how many unlocks happened on a specific day
func (cm *ComprehensiveMetrics) GetAchievementsUnlockedByDay(day string) int64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.achievementsUnlockedByDay[day]
}

// GetAchievementUnlocks returns how many times one achievement was unlocked
func (cm *ComprehensiveMetrics) GetAchievementUnlocks(id core.AchievementID) int64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.achievementsByID[id]
}

// GetLongestStreak returns the longest streak observed for a user
func (cm *ComprehensiveMetrics) GetLongestStreak(user core.UserID) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.longestStreakSeen[user]
}

// GetRealtimeStats returns real-time statistics for the last 24 hours
func (cm *ComprehensiveMetrics) GetRealtimeStats() (points int64, badges int64, levels int64) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.realtimeCounters.pointsAwarded,
		cm.realtimeCounters.badgesAwarded,
		cm.realtimeCounters.levelsReached
}

// GetTopActivities returns aggregated metrics for reporting
func (cm *ComprehensiveMetrics) GetTopActivities(limit int) map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	result := make(map[string]interface{})

	top := make([]struct {
		activity core.ActivityType
		points   int64
	}, 0, len(cm.pointsAwardedByActivity))

	for activity, points := range cm.pointsAwardedByActivity {
		top = append(top, struct {
			activity core.ActivityType
			points   int64
		}{activity, points})
	}

	// Sort by points (simple bubble sort for small datasets)
	for i := 0; i < len(top); i++ {
		for j := i + 1; j < len(top); j++ {
			if top[i].points < top[j].points {
				top[i], top[j] = top[j], top[i]
			}
		}
	}

	if len(top) > limit {
		top = top[:limit]
	}

	topData := make([]map[string]interface{}, len(top))
	for i, ta := range top {
		topData[i] = map[string]interface{}{
			"activity": ta.activity,
			"points":   ta.points,
		}
	}

	result["top_activities_by_points"] = topData
	result["total_points_awarded"] = sumActivityPoints(cm.pointsAwardedByActivity)
	result["total_badges_awarded"] = sumBadgeCounts(cm.badgesAwardedByType)

	return result
}

// Helper functions
func getWeekKey(t time.Time) string {
	tt := t.UTC()
	year, week := tt.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func getMonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func sumActivityPoints(m map[core.ActivityType]int64) int64 {
	var total int64
	for _, v := range m {
		total += v
	}
	return total
}

func sumBadgeCounts(m map[core.BadgeID]int64) int64 {
	var total int64
	for _, v := range m {
		total += v
	}
	return total
}
