package core

import "fmt"

// RequirementType names a stat an achievement requirement is measured
// against. Each type maps to one accessor in statAccessors; adding a type is
// a table edit, not a new branch.
type RequirementType string

const (
	ReqLessonsCompleted      RequirementType = "lessons_completed"
	ReqExercisesCompleted    RequirementType = "exercises_completed"
	ReqPerfectScores         RequirementType = "perfect_scores"
	ReqCulturalContributions RequirementType = "cultural_contributions"
	ReqLearningStreak        RequirementType = "learning_streak"
	ReqPointsEarned          RequirementType = "points_earned"
	ReqLevelReached          RequirementType = "level_reached"
)

// Stats aggregates everything requirement dispatch can read: counters owned
// by the external content subsystem plus engine-owned progression figures.
type Stats struct {
	LessonsCompleted      int64 `json:"lessons_completed"`
	ExercisesCompleted    int64 `json:"exercises_completed"`
	PerfectScores         int64 `json:"perfect_scores"`
	CulturalContributions int64 `json:"cultural_contributions"`
	LearningStreak        int64 `json:"learning_streak"`
	PointsEarned          int64 `json:"points_earned"`
	LevelReached          int64 `json:"level_reached"`
}

// StatsDelta carries the external counter increments attached to a single
// activity event.
type StatsDelta struct {
	LessonsCompleted      int64 `json:"lessons_completed,omitempty"`
	ExercisesCompleted    int64 `json:"exercises_completed,omitempty"`
	PerfectScores         int64 `json:"perfect_scores,omitempty"`
	CulturalContributions int64 `json:"cultural_contributions,omitempty"`
}

// Apply adds the delta's counters to the stats.
func (s Stats) Apply(d StatsDelta) Stats {
	s.LessonsCompleted += d.LessonsCompleted
	s.ExercisesCompleted += d.ExercisesCompleted
	s.PerfectScores += d.PerfectScores
	s.CulturalContributions += d.CulturalContributions
	return s
}

// WithState overlays the engine-owned figures from a user state.
func (s Stats) WithState(st UserState) Stats {
	s.LearningStreak = int64(st.Streak.Current)
	s.PointsEarned = st.Points
	s.LevelReached = st.Level
	return s
}

var statAccessors = map[RequirementType]func(Stats) int64{
	ReqLessonsCompleted:      func(s Stats) int64 { return s.LessonsCompleted },
	ReqExercisesCompleted:    func(s Stats) int64 { return s.ExercisesCompleted },
	ReqPerfectScores:         func(s Stats) int64 { return s.PerfectScores },
	ReqCulturalContributions: func(s Stats) int64 { return s.CulturalContributions },
	ReqLearningStreak:        func(s Stats) int64 { return s.LearningStreak },
	ReqPointsEarned:          func(s Stats) int64 { return s.PointsEarned },
	ReqLevelReached:          func(s Stats) int64 { return s.LevelReached },
}

// KnownRequirementType reports whether t has a stat accessor.
func KnownRequirementType(t RequirementType) bool {
	_, ok := statAccessors[t]
	return ok
}

// StatFor resolves the current value of the stat a requirement type reads.
// Unknown types indicate malformed catalogue data.
func StatFor(t RequirementType, s Stats) (int64, error) {
	fn, ok := statAccessors[t]
	if !ok {
		return 0, fmt.Errorf("%w: unknown requirement type %q", ErrInvalidDefinition, t)
	}
	return fn(s), nil
}
