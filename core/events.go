package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventActivityRecorded      EventType = "activity_recorded"
	EventPointsAdded           EventType = "points_added"
	EventLevelUp               EventType = "level_up"
	EventStreakExtended        EventType = "streak_extended"
	EventAchievementUnlocked   EventType = "achievement_unlocked"
	EventBadgeAwarded          EventType = "badge_awarded"
	EventLeaderboardRecomputed EventType = "leaderboard_recomputed"
)

// Event represents an immutable domain event.
type Event struct {
	Type        EventType      `json:"type"`
	Time        time.Time      `json:"time"`
	UserID      UserID         `json:"user_id,omitempty"`
	Activity    ActivityType   `json:"activity,omitempty"`
	Points      int64          `json:"points,omitempty"`
	Total       int64          `json:"total,omitempty"`
	Level       int64          `json:"level,omitempty"`
	Streak      int            `json:"streak,omitempty"`
	Achievement AchievementID  `json:"achievement,omitempty"`
	Badge       BadgeID        `json:"badge,omitempty"`
	Window      string         `json:"window,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Constructors take the event time from the caller so publishers running
// under an injected clock produce deterministic timestamps.

func NewActivityRecorded(user UserID, activity ActivityType, points int64, total int64, now time.Time) Event {
	return Event{Type: EventActivityRecorded, Time: now.UTC(), UserID: user, Activity: activity, Points: points, Total: total}
}

func NewPointsAdded(user UserID, points int64, total int64, now time.Time) Event {
	return Event{Type: EventPointsAdded, Time: now.UTC(), UserID: user, Points: points, Total: total}
}

func NewLevelUp(user UserID, level int64, now time.Time) Event {
	return Event{Type: EventLevelUp, Time: now.UTC(), UserID: user, Level: level}
}

func NewStreakExtended(user UserID, streak int, now time.Time) Event {
	return Event{Type: EventStreakExtended, Time: now.UTC(), UserID: user, Streak: streak}
}

func NewAchievementUnlocked(user UserID, achievement AchievementID, reward int64, now time.Time) Event {
	return Event{Type: EventAchievementUnlocked, Time: now.UTC(), UserID: user, Achievement: achievement, Points: reward}
}

func NewBadgeAwarded(user UserID, badge BadgeID, now time.Time) Event {
	return Event{Type: EventBadgeAwarded, Time: now.UTC(), UserID: user, Badge: badge}
}

func NewLeaderboardRecomputed(window string, entries int, now time.Time) Event {
	return Event{Type: EventLeaderboardRecomputed, Time: now.UTC(), Window: window, Metadata: map[string]any{"entries": entries}}
}
