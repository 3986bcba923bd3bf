package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Streak mirrors the streak portion of a user state.
type Streak struct {
	Current      int       `json:"current"`
	Longest      int       `json:"longest"`
	LastActivity time.Time `json:"last_activity"`
}

// ActivityRecord is one entry of the recent-activity feed.
type ActivityRecord struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Points      int64     `json:"points"`
	Timestamp   time.Time `json:"timestamp"`
}

// UserState mirrors the public JSON surface of a learner's progression state.
type UserState struct {
	UserID                string               `json:"user_id"`
	Points                int64                `json:"points"`
	Experience            int64                `json:"experience"`
	Level                 int64                `json:"level"`
	ExperienceToNextLevel int64                `json:"experience_to_next_level"`
	Achievements          map[string]time.Time `json:"achievements"`
	Badges                map[string]time.Time `json:"badges"`
	Streak                Streak               `json:"streak"`
	RecentActivity        []ActivityRecord     `json:"recent_activity"`
	Updated               time.Time            `json:"updated"`
	Version               int64                `json:"version"`
}

// StatsDelta carries lifetime-stat increments alongside a recorded activity.
type StatsDelta struct {
	LessonsCompleted      int64 `json:"lessons_completed,omitempty"`
	ExercisesCompleted    int64 `json:"exercises_completed,omitempty"`
	PerfectScores         int64 `json:"perfect_scores,omitempty"`
	CulturalContributions int64 `json:"cultural_contributions,omitempty"`
}

// Activity describes one learner action to record.
type Activity struct {
	Type        string     `json:"type"`
	Points      int64      `json:"points"`
	Description string     `json:"description"`
	Stats       StatsDelta `json:"stats"`
}

// ProgressEntry is one requirement row of an achievement's progress.
type ProgressEntry struct {
	Type        string    `json:"type"`
	Current     int64     `json:"current"`
	Target      int64     `json:"target"`
	LastUpdated time.Time `json:"last_updated"`
}

// Milestone marks a named threshold within an achievement's progress.
type Milestone struct {
	Name      string `json:"name"`
	Threshold int64  `json:"threshold"`
	Achieved  bool   `json:"achieved"`
}

// Progress mirrors the per-achievement progress row.
type Progress struct {
	UserID        string          `json:"user_id"`
	AchievementID string          `json:"achievement_id"`
	Entries       []ProgressEntry `json:"entries"`
	Percentage    int             `json:"percentage"`
	Completed     bool            `json:"completed"`
	CompletedAt   time.Time       `json:"completed_at"`
	Milestones    []Milestone     `json:"milestones,omitempty"`
}

// ProgressUpdate raises one requirement counter to a new absolute value.
type ProgressUpdate struct {
	Type    string `json:"type"`
	Current int64  `json:"current"`
}

// WindowKey selects a ranking window for recompute requests.
type WindowKey struct {
	Type     string    `json:"type"`
	Category string    `json:"category"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Ranking is one row of a leaderboard snapshot.
type Ranking struct {
	UserID       string `json:"user_id"`
	Score        int64  `json:"score"`
	Achievements int    `json:"achievements"`
	Rank         int    `json:"rank"`
	Change       int    `json:"change"`
}

// Snapshot is a ranked window as returned by a recompute.
type Snapshot struct {
	Key        WindowKey `json:"key"`
	Rankings   []Ranking `json:"rankings"`
	ComputedAt time.Time `json:"computed_at"`
}

// Entry is one row of the live leaderboard.
type Entry struct {
	User  string `json:"User"`
	Score int64  `json:"Score"`
}

// Event mirrors the progression event stream payload.
type Event struct {
	Type        string         `json:"type"`
	Time        time.Time      `json:"time"`
	UserID      string         `json:"user_id,omitempty"`
	Activity    string         `json:"activity,omitempty"`
	Points      int64          `json:"points,omitempty"`
	Total       int64          `json:"total,omitempty"`
	Level       int64          `json:"level,omitempty"`
	Streak      int            `json:"streak,omitempty"`
	Achievement string         `json:"achievement,omitempty"`
	Badge       string         `json:"badge,omitempty"`
	Window      string         `json:"window,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// APIError is the error body returned by the server for non-2xx responses.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed: status %d", e.StatusCode)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		body, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")
