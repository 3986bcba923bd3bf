package core

import "time"

// ProgressEntry is one named counter inside an achievement's accumulated
// progress, keyed uniquely by requirement type.
type ProgressEntry struct {
	Type        RequirementType `json:"type"`
	Current     int64           `json:"current"`
	Target      int64           `json:"target"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Milestone is a named threshold within an achievement's progress. Achieved
// is set once and never reset.
type Milestone struct {
	Name      string `json:"name"`
	Threshold int64  `json:"threshold"`
	Achieved  bool   `json:"achieved"`
}

// AchievementProgress accumulates multi-requirement progress toward one
// achievement for one user. Created lazily on first interaction.
type AchievementProgress struct {
	UserID        UserID          `json:"user_id"`
	AchievementID AchievementID   `json:"achievement_id"`
	Entries       []ProgressEntry `json:"entries"`
	Percentage    int             `json:"percentage"`
	Completed     bool            `json:"completed"`
	CompletedAt   time.Time       `json:"completed_at"`
	Milestones    []Milestone     `json:"milestones,omitempty"`
}

// ProgressUpdate sets the current value of one requirement counter.
type ProgressUpdate struct {
	Type    RequirementType `json:"type"`
	Current int64           `json:"current"`
}

// NewAchievementProgress initializes an empty progress row from the
// achievement's requirements.
func NewAchievementProgress(user UserID, def AchievementDefinition) AchievementProgress {
	p := AchievementProgress{UserID: user, AchievementID: def.ID}
	for _, r := range def.Requirements {
		p.Entries = append(p.Entries, ProgressEntry{Type: r.Type, Target: r.Target})
	}
	return p
}

// Apply sets the counters named by the updates, finding or appending the
// entry for each requirement type, and recomputes the completion figure.
// It reports whether the row transitioned to completed on this call; rows
// already completed keep absorbing values but never transition again.
func (p *AchievementProgress) Apply(updates []ProgressUpdate, targets map[RequirementType]int64, now time.Time) bool {
	for _, u := range updates {
		idx := -1
		for i := range p.Entries {
			if p.Entries[i].Type == u.Type {
				idx = i
				break
			}
		}
		if idx < 0 {
			p.Entries = append(p.Entries, ProgressEntry{Type: u.Type, Target: targets[u.Type]})
			idx = len(p.Entries) - 1
		}
		p.Entries[idx].Current = u.Current
		if t, ok := targets[u.Type]; ok {
			p.Entries[idx].Target = t
		}
		p.Entries[idx].LastUpdated = now.UTC()
	}
	p.advanceMilestones()
	p.Percentage = CalculateCompletion(p.Entries)
	if p.Completed || p.Percentage < 100 {
		return false
	}
	p.Completed = true
	p.CompletedAt = now.UTC()
	return true
}

// advanceMilestones flips milestones whose threshold the summed progress has
// reached. Flags are monotone: once achieved, never reset.
func (p *AchievementProgress) advanceMilestones() {
	var sum int64
	for _, e := range p.Entries {
		sum += e.Current
	}
	for i := range p.Milestones {
		if !p.Milestones[i].Achieved && sum >= p.Milestones[i].Threshold {
			p.Milestones[i].Achieved = true
		}
	}
}

// CalculateCompletion returns 100 when every entry has reached its target
// and 0 otherwise. Completion is deliberately all-or-nothing: the field is a
// percentage in name only, and changing this to interpolate would shift
// unlock timing for existing catalogues.
func CalculateCompletion(entries []ProgressEntry) int {
	if len(entries) == 0 {
		return 0
	}
	for _, e := range entries {
		if e.Current < e.Target {
			return 0
		}
	}
	return 100
}
