package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	mem "progresskit/adapters/memory"
	"progresskit/core"
	"progresskit/engine"
	"progresskit/leaderboard"
)

func newTestService(t *testing.T) *engine.ProgressionService {
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
	return engine.NewProgressionService(
		mem.New(),
		engine.NewEventBus(engine.DispatchSync),
		catalog,
		engine.NewAccumulatingStats(),
	)
}

func postActivity(t *testing.T, handler http.Handler, user string, points int64) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"type":   core.ActivityLessonCompleted,
		"points": points,
		"stats":  map[string]int64{"lessons_completed": 1},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/users/"+user+"/activities", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRecordActivitySuccess(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, nil, Options{PathPrefix: "/api"})

	rec := postActivity(t, handler, "alice", 10)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var st core.UserState
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.Points != 10 {
		t.Fatalf("expected 10 points, got %d", st.Points)
	}
	if st.Streak.Current != 1 {
		t.Fatalf("expected streak 1, got %d", st.Streak.Current)
	}
}

func TestRecordActivityValidation(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, nil, Options{PathPrefix: "/api"})

	body, _ := json.Marshal(map[string]any{"type": "lesson_completed", "points": -5})
	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/activities", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	body, _ = json.Marshal(map[string]any{"points": 5})
	req = httptest.NewRequest(http.MethodPost, "/api/users/alice/activities", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing type, got %d", rec.Code)
	}
}

func TestGetUserNotFound(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/users/ghost", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestProgressFlow(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, nil, Options{PathPrefix: "/api"})

	// seed the user
	if rec := postActivity(t, handler, "alice", 10); rec.Code != http.StatusOK {
		t.Fatalf("seed activity: %d", rec.Code)
	}

	body, _ := json.Marshal(progressRequest{Updates: []core.ProgressUpdate{
		{Type: core.ReqLessonsCompleted, Current: 3},
	}})
	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/progress/first_steps", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update progress: %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/users/alice/progress/first_steps", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get progress: %d", rec.Code)
	}
	var row core.AchievementProgress
	if err := json.Unmarshal(rec.Body.Bytes(), &row); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if row.Percentage != 0 {
		t.Fatalf("expected 0 percent before completion, got %d", row.Percentage)
	}
}

func TestProgressUnknownAchievement(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, nil, Options{PathPrefix: "/api"})

	body, _ := json.Marshal(progressRequest{Updates: []core.ProgressUpdate{
		{Type: core.ReqLessonsCompleted, Current: 1},
	}})
	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/progress/nope", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestLeaderboardEndpoints(t *testing.T) {
	svc := newTestService(t)
	ranker := leaderboard.NewRanker(svc.Storage(), nil)
	board := leaderboard.NewSkipList()
	handler := NewMux(svc, nil, ranker, board, Options{PathPrefix: "/api"})

	postActivity(t, handler, "alice", 30)
	postActivity(t, handler, "bob", 10)
	board.Update("alice", 30)
	board.Update("bob", 10)

	body, _ := json.Marshal(recomputeRequest{Type: leaderboard.WindowAllTime, Category: "overall"})
	req := httptest.NewRequest(http.MethodPost, "/api/leaderboard/recompute", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("recompute: %d: %s", rec.Code, rec.Body.String())
	}
	var snap leaderboard.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Rankings) != 2 || snap.Rankings[0].UserID != "alice" {
		t.Fatalf("unexpected snapshot: %+v", snap.Rankings)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/leaderboard/top?n=1", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("top: %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, nil, Options{PathPrefix: "/api", APIKeys: []string{"secret"}})

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, nil, Options{
		PathPrefix:       "/api",
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   2,
	})

	var lastCode int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", lastCode)
	}
}
