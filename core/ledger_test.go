package core

import (
	"errors"
	"testing"
	"time"
)

func TestAddPointsRejectsNegative(t *testing.T) {
	st := NewUserState("alice", 100, time.Now())
	err := st.AddPoints(-5, ActivityLessonCompleted, "bad", "r1", time.Now())
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if st.Points != 0 || st.Experience != 0 {
		t.Fatal("failed award must not touch the ledger")
	}
}

func TestLevelCurveScenario(t *testing.T) {
	// 250 points from level 1 with a 100 base: 100 clears level 1, 150
	// clears level 2, leaving 0 toward the 225 threshold.
	st := NewUserState("alice", 100, time.Now())
	if err := st.AddPoints(250, ActivityLessonCompleted, "big award", "r1", time.Now()); err != nil {
		t.Fatal(err)
	}
	if st.Level != 3 {
		t.Fatalf("level = %d, want 3", st.Level)
	}
	if st.Experience != 0 {
		t.Fatalf("experience = %d, want 0", st.Experience)
	}
	if st.ExperienceToNextLevel != 225 {
		t.Fatalf("threshold = %d, want 225", st.ExperienceToNextLevel)
	}
	if st.Points != 250 {
		t.Fatalf("points = %d, want 250", st.Points)
	}
}

func TestLevelCurveInvariant(t *testing.T) {
	st := NewUserState("alice", 100, time.Now())
	for i, award := range []int64{1, 99, 37, 1000, 0, 12345, 7} {
		if err := st.AddPoints(award, ActivityExerciseCompleted, "x", "r", time.Now()); err != nil {
			t.Fatal(err)
		}
		if st.Experience < 0 || st.Experience >= st.ExperienceToNextLevel {
			t.Fatalf("award %d: experience %d outside [0, %d)", i, st.Experience, st.ExperienceToNextLevel)
		}
	}
}

func TestLedgerAdditivity(t *testing.T) {
	now := time.Now()
	split := NewUserState("alice", 100, now)
	whole := NewUserState("alice", 100, now)

	if err := split.AddPoints(120, ActivityLessonCompleted, "a", "r1", now); err != nil {
		t.Fatal(err)
	}
	if err := split.AddPoints(230, ActivityLessonCompleted, "b", "r2", now); err != nil {
		t.Fatal(err)
	}
	if err := whole.AddPoints(350, ActivityLessonCompleted, "ab", "r3", now); err != nil {
		t.Fatal(err)
	}

	if split.Points != whole.Points || split.Experience != whole.Experience ||
		split.Level != whole.Level || split.ExperienceToNextLevel != whole.ExperienceToNextLevel {
		t.Fatalf("p1+p2 diverged from one call: %+v vs %+v", split, whole)
	}
}

func TestRecentActivityCapped(t *testing.T) {
	st := NewUserState("alice", 100, time.Now())
	for i := 0; i < RecentActivityCap+5; i++ {
		if err := st.AddPoints(1, ActivityExerciseCompleted, "x", "r", time.Now()); err != nil {
			t.Fatal(err)
		}
	}
	if len(st.RecentActivity) != RecentActivityCap {
		t.Fatalf("feed length = %d, want %d", len(st.RecentActivity), RecentActivityCap)
	}
}

func TestRecentActivityMostRecentFirst(t *testing.T) {
	st := NewUserState("alice", 100, time.Now())
	_ = st.AddPoints(1, ActivityLessonCompleted, "first", "r1", time.Now())
	_ = st.AddPoints(2, ActivityLessonCompleted, "second", "r2", time.Now())
	if st.RecentActivity[0].Description != "second" {
		t.Fatal("newest entry should be first")
	}
}
