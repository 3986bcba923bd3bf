package sdk

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	mem "progresskit/adapters/memory"
	"progresskit/api/httpapi"
	"progresskit/core"
	"progresskit/engine"
	"progresskit/leaderboard"
	"progresskit/realtime"
)

// newTestServer stands up a full API stack backed by in-memory storage so the
// SDK exercises the real routes rather than a hand-written stub.
func newTestServer(t *testing.T) (*httptest.Server, *engine.ProgressionService) {
	t.Helper()
	catalog, err := engine.NewStaticCatalog([]core.AchievementDefinition{
		{
			ID:   "first_steps",
			Name: "First Steps",
			Requirements: []core.Requirement{
				{Type: core.ReqLessonsCompleted, Target: 5},
			},
			PointsReward: 25,
		},
	}, nil)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	svc := engine.NewProgressionService(
		mem.New(),
		engine.NewEventBus(engine.DispatchSync),
		catalog,
		engine.NewAccumulatingStats(),
	)

	hub := realtime.NewHub()
	cancel := svc.Subscribe(core.EventPointsAdded, func(ctx context.Context, evt core.Event) {
		hub.Broadcast(ctx, evt)
	})
	ranker := leaderboard.NewRanker(svc.Storage(), nil)
	board := leaderboard.NewSkipList()

	handler := httpapi.NewMux(svc, hub, ranker, board, httpapi.Options{PathPrefix: "/api"})
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, svc
}

func TestClient_RecordActivityAndGetUser(t *testing.T) {
	srv, _ := newTestServer(t)

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	st, err := client.RecordActivity(ctx, "alice", Activity{
		Type:        string(core.ActivityLessonCompleted),
		Points:      50,
		Description: "completed greetings lesson",
		Stats:       StatsDelta{LessonsCompleted: 1},
	})
	if err != nil {
		t.Fatalf("record activity: %v", err)
	}
	if st.Points != 50 || st.Streak.Current != 1 {
		t.Fatalf("unexpected state: %+v", st)
	}

	got, err := client.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.UserID != "alice" || got.Points != 50 {
		t.Fatalf("unexpected state: %+v", got)
	}
	if len(got.RecentActivity) != 1 || got.RecentActivity[0].Type != string(core.ActivityLessonCompleted) {
		t.Fatalf("unexpected recent activity: %+v", got.RecentActivity)
	}
}

func TestClient_GetUserNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.GetUser(context.Background(), "nobody")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 404 || apiErr.Code != "not_found" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestClient_ProgressFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	if _, err := client.RecordActivity(ctx, "bob", Activity{
		Type:   string(core.ActivityLessonCompleted),
		Points: 10,
		Stats:  StatsDelta{LessonsCompleted: 1},
	}); err != nil {
		t.Fatalf("record activity: %v", err)
	}

	row, already, err := client.UpdateProgress(ctx, "bob", "first_steps", []ProgressUpdate{
		{Type: string(core.ReqLessonsCompleted), Current: 3},
	})
	if err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if already {
		t.Fatal("achievement should not be completed yet")
	}
	if len(row.Entries) != 1 || row.Entries[0].Current != 3 {
		t.Fatalf("unexpected progress: %+v", row)
	}

	got, err := client.GetProgress(ctx, "bob", "first_steps")
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if got.Entries[0].Current != 3 || got.Completed {
		t.Fatalf("unexpected progress: %+v", got)
	}

	// Completing the requirement flips the row; a further update is a no-op.
	if _, _, err := client.UpdateProgress(ctx, "bob", "first_steps", []ProgressUpdate{
		{Type: string(core.ReqLessonsCompleted), Current: 5},
	}); err != nil {
		t.Fatalf("complete progress: %v", err)
	}
	_, already, err = client.UpdateProgress(ctx, "bob", "first_steps", []ProgressUpdate{
		{Type: string(core.ReqLessonsCompleted), Current: 6},
	})
	if err != nil {
		t.Fatalf("repeat update: %v", err)
	}
	if !already {
		t.Fatal("expected already_completed flag")
	}
}

func TestClient_LeaderboardAndHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	for user, points := range map[string]int64{"ana": 30, "beto": 10} {
		if _, err := client.RecordActivity(ctx, user, Activity{
			Type:   string(core.ActivityExerciseCompleted),
			Points: points,
		}); err != nil {
			t.Fatalf("record activity for %s: %v", user, err)
		}
	}

	snap, err := client.RecomputeLeaderboard(ctx, WindowKey{})
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if len(snap.Rankings) != 2 || snap.Rankings[0].UserID != "ana" || snap.Rankings[0].Rank != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	health, err := client.Health(ctx)
	if err != nil || health.Status != "healthy" {
		t.Fatalf("health: %+v err=%v", health, err)
	}
}

func TestClient_SubscribeEvents(t *testing.T) {
	srv, svc := newTestServer(t)

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := client.SubscribeEvents(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Give the hub a moment to register the connection before publishing.
	time.Sleep(50 * time.Millisecond)
	if _, err := svc.RecordActivity(ctx, "carla", 10, core.ActivityLessonCompleted, "", core.StatsDelta{}); err != nil {
		t.Fatalf("record activity: %v", err)
	}

	select {
	case evt := <-events:
		if evt.Type != string(core.EventPointsAdded) {
			t.Fatalf("unexpected event type: %s", evt.Type)
		}
		if evt.UserID != "carla" || evt.Total != 10 {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}
