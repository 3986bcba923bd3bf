package core

import (
	"math"
	"testing"
	"time"
)

func TestAddSafe(t *testing.T) {
	if v, err := AddSafe(10, 5); err != nil || v != 15 {
		t.Fatalf("got %v %v", v, err)
	}
	if _, err := AddSafe(math.MaxInt64, 1); err == nil {
		t.Fatalf("expected overflow")
	}
}

func TestNormalizeUserID(t *testing.T) {
	id, err := NormalizeUserID(" Alice ")
	if err != nil || id != "alice" {
		t.Fatalf("got %v %v", id, err)
	}
	if _, err := NormalizeUserID("   "); err == nil {
		t.Fatalf("expected empty error")
	}
}

func TestValidateID(t *testing.T) {
	if err := ValidateID("first_lesson-1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := ValidateID("bad id"); err == nil {
		t.Fatalf("expected invalid id err")
	}
}

func TestNewUserState(t *testing.T) {
	st := NewUserState("alice", 0, time.Now())
	if st.Level != 1 {
		t.Fatal("initial level should be 1")
	}
	if st.ExperienceToNextLevel != DefaultBaseThreshold {
		t.Fatalf("expected default threshold, got %d", st.ExperienceToNextLevel)
	}
}

func TestCloneIsDeep(t *testing.T) {
	st := NewUserState("alice", 100, time.Now())
	st.Achievements["a1"] = time.Now()
	st.RecentActivity = []ActivityRecord{{ID: "r1"}}

	cp := st.Clone()
	cp.Achievements["a2"] = time.Now()
	cp.RecentActivity[0].ID = "mutated"

	if st.HasAchievement("a2") {
		t.Fatal("clone shares achievement map")
	}
	if st.RecentActivity[0].ID != "r1" {
		t.Fatal("clone shares activity slice")
	}
}
