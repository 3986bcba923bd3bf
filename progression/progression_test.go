package progression

import (
	"context"
	"testing"
	"time"

	mem "progresskit/adapters/memory"
	"progresskit/core"
	"progresskit/engine"
	"progresskit/realtime"
)

func TestNewDefaultsAndOptions(t *testing.T) {
	hub := realtime.NewHub()
	svc := New(
		WithRealtime(hub),
		WithStorage(mem.New()),
		WithDispatchMode(engine.DispatchSync),
	)

	// basic operation
	st, err := svc.RecordActivity(context.Background(), "alice", 5, core.ActivityLessonCompleted, "intro lesson", core.StatsDelta{LessonsCompleted: 1})
	if err != nil || st.Points != 5 {
		t.Fatalf("record activity points=%d err=%v", st.Points, err)
	}

	// realtime bridge should receive event
	_, ch := hub.Subscribe(1)
	svc.Publish(context.Background(), core.NewPointsAdded("alice", 5, 10, time.Now()))
	ev := <-ch
	if ev.UserID != "alice" || ev.Type != core.EventPointsAdded {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestNewWithoutOptions(t *testing.T) {
	svc := New(WithDispatchMode(engine.DispatchSync))
	st, err := svc.RecordActivity(context.Background(), "bob", 3, core.ActivityExerciseCompleted, "", core.StatsDelta{ExercisesCompleted: 1})
	if err != nil {
		t.Fatalf("default storage record: %v", err)
	}
	if st.Points != 3 || st.Level != 1 {
		t.Fatalf("unexpected state: points=%d level=%d", st.Points, st.Level)
	}

	got, err := svc.GetState(context.Background(), "bob")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if got.Points != 3 {
		t.Fatalf("expected 3 points, got %d", got.Points)
	}
}

func TestNewWithTuningOptions(t *testing.T) {
	svc := New(
		WithDispatchMode(engine.DispatchSync),
		WithBaseThreshold(10),
	)
	st, err := svc.RecordActivity(context.Background(), "carla", 10, core.ActivityLessonCompleted, "", core.StatsDelta{LessonsCompleted: 1})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if st.Level != 2 {
		t.Fatalf("expected level 2 with threshold 10, got %d", st.Level)
	}
}
