package core

import "fmt"

// Tier grades achievements from common to exceptional.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Requirement is one condition inside an achievement definition: the named
// stat must reach Target.
type Requirement struct {
	Type        RequirementType `json:"type"`
	Target      int64           `json:"target"`
	Description string          `json:"description,omitempty"`
}

// Satisfied reports whether the requirement holds against the stats.
func (r Requirement) Satisfied(s Stats) (bool, error) {
	current, err := StatFor(r.Type, s)
	if err != nil {
		return false, err
	}
	return current >= r.Target, nil
}

// BadgeTemplate is a partial badge carried by an achievement and granted on
// unlock. Empty fields are filled from the achievement at grant time.
type BadgeTemplate struct {
	ID   BadgeID `json:"id,omitempty"`
	Name string  `json:"name,omitempty"`
	Tier Tier    `json:"tier,omitempty"`
}

// AchievementDefinition is an externally authored catalogue entry, immutable
// at evaluation time.
type AchievementDefinition struct {
	ID           AchievementID  `json:"id"`
	Name         string         `json:"name"`
	Category     string         `json:"category,omitempty"`
	Tier         Tier           `json:"tier,omitempty"`
	Requirements []Requirement  `json:"requirements"`
	PointsReward int64          `json:"points_reward"`
	Secret       bool           `json:"secret,omitempty"`
	Badge        *BadgeTemplate `json:"badge,omitempty"`
}

// Validate fails fast on malformed definitions so evaluation never has to
// skip entries silently.
func (d AchievementDefinition) Validate() error {
	if err := ValidateID(string(d.ID)); err != nil {
		return fmt.Errorf("%w: achievement id: %v", ErrInvalidDefinition, err)
	}
	if len(d.Requirements) == 0 {
		return fmt.Errorf("%w: achievement %s has no requirements", ErrInvalidDefinition, d.ID)
	}
	for _, r := range d.Requirements {
		if !KnownRequirementType(r.Type) {
			return fmt.Errorf("%w: achievement %s: unknown requirement type %q", ErrInvalidDefinition, d.ID, r.Type)
		}
		if r.Target <= 0 {
			return fmt.Errorf("%w: achievement %s: requirement %s target must be positive", ErrInvalidDefinition, d.ID, r.Type)
		}
	}
	if d.PointsReward < 0 {
		return fmt.Errorf("%w: achievement %s: negative points reward", ErrInvalidDefinition, d.ID)
	}
	return nil
}

// Satisfied reports whether every requirement holds against the stats.
func (d AchievementDefinition) Satisfied(s Stats) (bool, error) {
	for _, r := range d.Requirements {
		ok, err := r.Satisfied(s)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// MergeBadgeTemplate fills a badge template's empty fields from the owning
// achievement. Defaults: ID from the achievement id, Name from the
// achievement name, Tier from the achievement tier (bronze when both are
// empty).
func MergeBadgeTemplate(tpl BadgeTemplate, def AchievementDefinition) BadgeTemplate {
	if tpl.ID == "" {
		tpl.ID = BadgeID(def.ID)
	}
	if tpl.Name == "" {
		tpl.Name = def.Name
	}
	if tpl.Tier == "" {
		tpl.Tier = def.Tier
	}
	if tpl.Tier == "" {
		tpl.Tier = TierBronze
	}
	return tpl
}

// BadgeRequirements gates a catalogue badge. Zero values mean the condition
// is absent; all present conditions are AND-ed.
type BadgeRequirements struct {
	Achievements []AchievementID `json:"achievements,omitempty"`
	Points       int64           `json:"points,omitempty"`
	Level        int64           `json:"level,omitempty"`
}

// BadgeDefinition is a catalogue badge awarded when its requirements hold.
// Badges award no points.
type BadgeDefinition struct {
	ID           BadgeID           `json:"id"`
	Name         string            `json:"name"`
	Tier         Tier              `json:"tier,omitempty"`
	Requirements BadgeRequirements `json:"requirements"`
}

// Validate fails fast on malformed badge definitions.
func (d BadgeDefinition) Validate() error {
	if err := ValidateID(string(d.ID)); err != nil {
		return fmt.Errorf("%w: badge id: %v", ErrInvalidDefinition, err)
	}
	if d.Requirements.Points < 0 || d.Requirements.Level < 0 {
		return fmt.Errorf("%w: badge %s: negative requirement", ErrInvalidDefinition, d.ID)
	}
	for _, a := range d.Requirements.Achievements {
		if err := ValidateID(string(a)); err != nil {
			return fmt.Errorf("%w: badge %s: %v", ErrInvalidDefinition, d.ID, err)
		}
	}
	return nil
}

// Satisfied checks the badge's present conditions against a user state.
func (d BadgeDefinition) Satisfied(st UserState) bool {
	for _, a := range d.Requirements.Achievements {
		if !st.HasAchievement(a) {
			return false
		}
	}
	if d.Requirements.Points > 0 && st.Points < d.Requirements.Points {
		return false
	}
	if d.Requirements.Level > 0 && st.Level < d.Requirements.Level {
		return false
	}
	return true
}
