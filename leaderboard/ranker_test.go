package leaderboard

import (
	"context"
	"testing"
	"time"

	"progresskit/core"
)

type staticSource struct {
	states []core.UserState
}

func (s *staticSource) ListStates(ctx context.Context) ([]core.UserState, error) {
	return s.states, nil
}

func stateWith(user string, points int64, achievements int) core.UserState {
	st := core.NewUserState(core.UserID(user), 100, time.Now())
	st.Points = points
	for i := 0; i < achievements; i++ {
		st.Achievements[core.AchievementID(user+"-a"+string(rune('0'+i)))] = time.Now()
	}
	return st
}

func weekKey() WindowKey {
	return WindowKey{
		Type:     WindowWeekly,
		Category: "overall",
		Start:    time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestRecomputeOrdersByScoreThenUser(t *testing.T) {
	src := &staticSource{states: []core.UserState{
		stateWith("carla", 50, 1),
		stateWith("ana", 200, 3),
		stateWith("beto", 50, 0),
		stateWith("diego", 120, 2),
	}}
	ranker := NewRanker(src, nil)

	snap, err := ranker.Recompute(context.Background(), weekKey())
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	want := []core.UserID{"ana", "diego", "beto", "carla"}
	if len(snap.Rankings) != len(want) {
		t.Fatalf("expected %d rankings, got %d", len(want), len(snap.Rankings))
	}
	for i, user := range want {
		row := snap.Rankings[i]
		if row.UserID != user {
			t.Errorf("rank %d: expected %s, got %s", i+1, user, row.UserID)
		}
		if row.Rank != i+1 {
			t.Errorf("expected rank %d, got %d", i+1, row.Rank)
		}
	}
}

func TestRecomputeRanksArePermutation(t *testing.T) {
	src := &staticSource{states: []core.UserState{
		stateWith("u1", 10, 0),
		stateWith("u2", 10, 0),
		stateWith("u3", 30, 0),
		stateWith("u4", 20, 0),
		stateWith("u5", 10, 0),
	}}
	ranker := NewRanker(src, nil)

	snap, err := ranker.Recompute(context.Background(), weekKey())
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	seen := map[int]bool{}
	for _, row := range snap.Rankings {
		if row.Rank < 1 || row.Rank > len(snap.Rankings) {
			t.Errorf("rank %d out of range", row.Rank)
		}
		if seen[row.Rank] {
			t.Errorf("duplicate rank %d", row.Rank)
		}
		seen[row.Rank] = true
	}
}

func TestRecomputeChangeAgainstPreviousSnapshot(t *testing.T) {
	src := &staticSource{states: []core.UserState{
		stateWith("ana", 100, 0),
		stateWith("beto", 50, 0),
	}}
	ranker := NewRanker(src, nil)
	key := weekKey()

	first, err := ranker.Recompute(context.Background(), key)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	for _, row := range first.Rankings {
		if row.Change != 0 {
			t.Errorf("first snapshot: expected change 0 for %s, got %d", row.UserID, row.Change)
		}
	}

	// beto overtakes ana and carla appears for the first time.
	src.states = []core.UserState{
		stateWith("ana", 100, 0),
		stateWith("beto", 150, 0),
		stateWith("carla", 120, 0),
	}
	second, err := ranker.Recompute(context.Background(), key)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	changes := map[core.UserID]int{}
	for _, row := range second.Rankings {
		changes[row.UserID] = row.Change
	}
	if changes["beto"] != 1 {
		t.Errorf("expected beto change +1, got %d", changes["beto"])
	}
	if changes["ana"] != -2 {
		t.Errorf("expected ana change -2, got %d", changes["ana"])
	}
	if changes["carla"] != 0 {
		t.Errorf("expected carla change 0 for first appearance, got %d", changes["carla"])
	}
}

func TestSnapshotIsolatedPerWindowKey(t *testing.T) {
	src := &staticSource{states: []core.UserState{stateWith("ana", 10, 0)}}
	ranker := NewRanker(src, nil)

	daily := WindowKey{Type: WindowDaily, Category: "overall", Start: time.Now().UTC(), End: time.Now().UTC()}
	if _, err := ranker.Recompute(context.Background(), weekKey()); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if _, ok := ranker.Snapshot(daily); ok {
		t.Fatal("daily window should have no snapshot")
	}
	if _, ok := ranker.Snapshot(weekKey()); !ok {
		t.Fatal("weekly window should have a snapshot")
	}
}
