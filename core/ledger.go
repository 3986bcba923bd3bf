package core

import (
	"fmt"
	"time"
)

// DefaultBaseThreshold is the experience required to clear level 1 unless
// configured otherwise.
const DefaultBaseThreshold int64 = 100

// AddPoints credits points to the state's ledger: Points and Experience both
// grow by the award, the level curve cascades, and an activity record is
// prepended to the recent feed. Negative awards fail with ErrInvalidAmount;
// administrative corrections go through a separate path, not this one.
func (s *UserState) AddPoints(points int64, activity ActivityType, description string, recordID string, now time.Time) error {
	if points < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, points)
	}
	total, err := AddSafe(s.Points, points)
	if err != nil {
		return err
	}
	exp, err := AddSafe(s.Experience, points)
	if err != nil {
		return err
	}
	s.Points = total
	s.Experience = exp
	s.advanceLevel()
	s.appendActivity(ActivityRecord{
		ID:          recordID,
		Type:        activity,
		Description: description,
		Points:      points,
		Timestamp:   now.UTC(),
	})
	s.Updated = now.UTC()
	return nil
}

// advanceLevel settles the level curve after an experience increase. Each
// level-up consumes the current threshold and grows the next by half again.
// On return, 0 <= Experience < ExperienceToNextLevel. A single large award
// may clear several levels in one call.
func (s *UserState) advanceLevel() {
	if s.ExperienceToNextLevel <= 0 {
		s.ExperienceToNextLevel = DefaultBaseThreshold
	}
	for s.Experience >= s.ExperienceToNextLevel {
		s.Experience -= s.ExperienceToNextLevel
		s.Level++
		s.ExperienceToNextLevel = s.ExperienceToNextLevel * 3 / 2
	}
}

// UnlockAchievement adds the achievement to the unlocked set. It reports
// whether the set changed; the set is append-only and never shrinks.
func (s *UserState) UnlockAchievement(id AchievementID, now time.Time) bool {
	if s.HasAchievement(id) {
		return false
	}
	if s.Achievements == nil {
		s.Achievements = map[AchievementID]time.Time{}
	}
	s.Achievements[id] = now.UTC()
	s.Updated = now.UTC()
	return true
}

// AwardBadge adds the badge and appends a zero-point activity record. Badges
// carry no points. It reports whether the set changed.
func (s *UserState) AwardBadge(id BadgeID, description string, recordID string, now time.Time) bool {
	if s.HasBadge(id) {
		return false
	}
	if s.Badges == nil {
		s.Badges = map[BadgeID]time.Time{}
	}
	s.Badges[id] = now.UTC()
	s.appendActivity(ActivityRecord{
		ID:          recordID,
		Type:        ActivityBadgeAwarded,
		Description: description,
		Timestamp:   now.UTC(),
	})
	s.Updated = now.UTC()
	return true
}

func (s *UserState) appendActivity(rec ActivityRecord) {
	s.RecentActivity = append([]ActivityRecord{rec}, s.RecentActivity...)
	if len(s.RecentActivity) > RecentActivityCap {
		s.RecentActivity = s.RecentActivity[:RecentActivityCap]
	}
}
