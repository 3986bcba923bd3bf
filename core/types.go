package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// UserID uniquely identifies a learner in the progression domain.
type UserID string

// AchievementID identifies a catalogue achievement.
type AchievementID string

// BadgeID identifies a catalogue badge.
type BadgeID string

// ActivityType classifies the activity that produced a point award.
type ActivityType string

const (
	ActivityLessonCompleted      ActivityType = "lesson_completed"
	ActivityExerciseCompleted    ActivityType = "exercise_completed"
	ActivityCulturalContribution ActivityType = "cultural_contribution"
	ActivityAchievementUnlocked  ActivityType = "achievement_unlocked"
	ActivityBadgeAwarded         ActivityType = "badge_awarded"
)

// RecentActivityCap bounds the recent-activity feed kept on a user state.
const RecentActivityCap = 10

// ActivityRecord is one entry in a user's recent-activity feed.
type ActivityRecord struct {
	ID          string       `json:"id"`
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
	Points      int64        `json:"points"`
	Timestamp   time.Time    `json:"timestamp"`
}

// UserState is a snapshot of a learner's progression: points, level curve
// position, unlocked achievements and badges, streak, and recent activity.
// Implementations should return deep copies to maintain immutability guarantees.
type UserState struct {
	UserID                UserID                      `json:"user_id"`
	Points                int64                       `json:"points"`
	Experience            int64                       `json:"experience"`
	Level                 int64                       `json:"level"`
	ExperienceToNextLevel int64                       `json:"experience_to_next_level"`
	Achievements          map[AchievementID]time.Time `json:"achievements"`
	Badges                map[BadgeID]time.Time       `json:"badges"`
	Streak                Streak                      `json:"streak"`
	RecentActivity        []ActivityRecord            `json:"recent_activity"`
	Updated               time.Time                   `json:"updated"`
	// Version is a storage-owned token for optimistic concurrency control.
	Version int64 `json:"version"`
}

// NewUserState returns the initial state for a user: level 1, no points,
// baseThreshold experience required for the first level-up.
func NewUserState(user UserID, baseThreshold int64, now time.Time) UserState {
	if baseThreshold <= 0 {
		baseThreshold = DefaultBaseThreshold
	}
	return UserState{
		UserID:                user,
		Level:                 1,
		ExperienceToNextLevel: baseThreshold,
		Achievements:          map[AchievementID]time.Time{},
		Badges:                map[BadgeID]time.Time{},
		Updated:               now.UTC(),
	}
}

// Clone returns a deep copy of the state to uphold immutability.
func (s UserState) Clone() UserState {
	cp := s
	cp.Achievements = make(map[AchievementID]time.Time, len(s.Achievements))
	for k, v := range s.Achievements {
		cp.Achievements[k] = v
	}
	cp.Badges = make(map[BadgeID]time.Time, len(s.Badges))
	for k, v := range s.Badges {
		cp.Badges[k] = v
	}
	cp.RecentActivity = make([]ActivityRecord, len(s.RecentActivity))
	copy(cp.RecentActivity, s.RecentActivity)
	return cp
}

// HasAchievement reports whether the achievement is already unlocked.
func (s UserState) HasAchievement(id AchievementID) bool {
	_, ok := s.Achievements[id]
	return ok
}

// HasBadge reports whether the badge is already awarded.
func (s UserState) HasBadge(id BadgeID) bool {
	_, ok := s.Badges[id]
	return ok
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// NormalizeUserID trims and lowercases user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty user id")
	}
	return UserID(strings.ToLower(s)), nil
}

// ValidateID ensures a non-empty catalogue identifier with a simple charset
// check: alnum, dash, underscore.
func ValidateID(id string) error {
	s := strings.TrimSpace(id)
	if s == "" {
		return errors.New("empty id")
	}
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			continue
		}
		return errors.New("invalid id: " + id)
	}
	return nil
}
