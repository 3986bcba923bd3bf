package core

import "time"

// Streak tracks consecutive calendar days with at least one qualifying
// activity. Days are compared in UTC.
type Streak struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
	// LastActivity is the UTC midnight of the most recent qualifying day.
	// Zero means the user has never been active.
	LastActivity time.Time `json:"last_activity"`
}

// DayOf truncates t to UTC midnight, the calendar-day granularity streaks
// are measured at.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Advance records a qualifying activity at time t. A second activity on the
// same day is a no-op; activity on the following day extends the streak; a
// gap of more than one day resets it to 1. Longest never decreases.
func (st *Streak) Advance(t time.Time) {
	day := DayOf(t)
	switch {
	case st.LastActivity.IsZero():
		st.Current = 1
	case day.Equal(st.LastActivity):
		// already counted today
	case day.Equal(st.LastActivity.AddDate(0, 0, 1)):
		st.Current++
	case day.After(st.LastActivity):
		st.Current = 1
	default:
		// clock went backwards; keep the streak untouched
		return
	}
	st.LastActivity = day
	if st.Current > st.Longest {
		st.Longest = st.Current
	}
}
