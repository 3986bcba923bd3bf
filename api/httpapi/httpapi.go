package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	wsadapter "progresskit/adapters/websocket"
	"progresskit/core"
	"progresskit/engine"
	"progresskit/leaderboard"
	"progresskit/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
}

type activityRequest struct {
	Type        core.ActivityType `json:"type"`
	Points      int64             `json:"points"`
	Description string            `json:"description"`
	Stats       core.StatsDelta   `json:"stats"`
}

type progressRequest struct {
	Updates []core.ProgressUpdate `json:"updates"`
}

type recomputeRequest struct {
	Type     leaderboard.WindowType `json:"type"`
	Category string                 `json:"category"`
	Start    time.Time              `json:"start"`
	End      time.Time              `json:"end"`
}

// NewMux builds an http.Handler exposing the progression REST API and WebSocket stream.
// Routes:
//   - POST {prefix}/users/{id}/activities
//   - GET  {prefix}/users/{id}
//   - POST {prefix}/users/{id}/evaluate
//   - GET  {prefix}/users/{id}/progress/{achievement}
//   - POST {prefix}/users/{id}/progress/{achievement}
//   - POST {prefix}/users/{id}/progress/{achievement}/init
//   - POST {prefix}/leaderboard/recompute
//   - GET  {prefix}/leaderboard/top?n=10
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws
func NewMux(svc *engine.ProgressionService, hub *realtime.Hub, ranker *leaderboard.Ranker, board leaderboard.Board, opts Options) http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/healthz"), func(w http.ResponseWriter, r *http.Request) {
		healthCheck(w, r, svc)
	})

	// WebSocket events
	if hub != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(hub))
	}

	// Leaderboard API
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/leaderboard/recompute"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		if ranker == nil {
			writeError(w, http.StatusNotImplemented, "unavailable", "leaderboard not configured", nil)
			return
		}
		var req recomputeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "body must be valid JSON", nil)
			return
		}
		if req.Type == "" {
			req.Type = leaderboard.WindowAllTime
		}
		if req.Category == "" {
			req.Category = "overall"
		}
		key := leaderboard.WindowKey{Type: req.Type, Category: req.Category, Start: req.Start, End: req.End}
		snap, err := ranker.Recompute(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		svc.Publish(r.Context(), core.NewLeaderboardRecomputed(key.String(), len(snap.Rankings), snap.ComputedAt))
		writeJSON(w, snap)
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/leaderboard/top"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		if board == nil {
			writeError(w, http.StatusNotImplemented, "unavailable", "leaderboard not configured", nil)
			return
		}
		n := 10
		if raw := r.URL.Query().Get("n"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_n", "n must be a positive integer", nil)
				return
			}
			n = parsed
		}
		writeJSON(w, map[string]any{"entries": board.TopN(n)})
	})

	// Users API
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/users/"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, opts.PathPrefix)
		if path == "" || path[0] != '/' {
			path = "/" + path
		}
		parts := split(path, '/')
		if len(parts) < 2 {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		user, err := core.NormalizeUserID(core.UserID(parts[1]))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
			return
		}
		switch r.Method {
		case http.MethodPost:
			if len(parts) == 3 && parts[2] == "activities" {
				handleRecordActivity(w, r, svc, user)
				return
			}
			if len(parts) == 3 && parts[2] == "evaluate" {
				st, err := svc.EvaluateAchievements(r.Context(), user)
				if err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, st)
				return
			}
			if len(parts) == 4 && parts[2] == "progress" {
				handleUpdateProgress(w, r, svc, user, core.AchievementID(parts[3]))
				return
			}
			if len(parts) == 5 && parts[2] == "progress" && parts[4] == "init" {
				row, err := svc.InitProgress(r.Context(), user, core.AchievementID(parts[3]))
				if err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, row)
				return
			}
		case http.MethodGet:
			if len(parts) == 4 && parts[2] == "progress" {
				row, err := svc.GetProgress(r.Context(), user, core.AchievementID(parts[3]))
				if err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, row)
				return
			}
			if len(parts) == 2 {
				st, err := svc.GetState(r.Context(), user)
				if err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, st)
				return
			}
		}
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

func handleRecordActivity(w http.ResponseWriter, r *http.Request, svc *engine.ProgressionService, user core.UserID) {
	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "body must be valid JSON", nil)
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "invalid_type", "activity type is required", nil)
		return
	}
	st, err := svc.RecordActivity(r.Context(), user, req.Points, req.Type, req.Description, req.Stats)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, st)
}

func handleUpdateProgress(w http.ResponseWriter, r *http.Request, svc *engine.ProgressionService, user core.UserID, achievement core.AchievementID) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "body must be valid JSON", nil)
		return
	}
	row, err := svc.UpdateProgress(r.Context(), user, achievement, req.Updates)
	if errors.Is(err, core.ErrAlreadyCompleted) {
		writeJSON(w, map[string]any{"progress": row, "already_completed": true})
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, row)
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrInvalidDefinition):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, core.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
	}
}

// Helpers

// healthCheck verifies the service is working properly
func healthCheck(w http.ResponseWriter, r *http.Request, svc *engine.ProgressionService) {
	ctx := r.Context()

	// Storage probe; a missing user is still a healthy storage round trip.
	dummyUser := core.UserID("healthcheck_probe")
	_, err := svc.GetState(ctx, dummyUser)
	if errors.Is(err, core.ErrNotFound) {
		err = nil
	}

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"storage": "ok",
		},
	}

	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, status)
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func split(p string, sep rune) []string {
	var parts []string
	cur := make([]rune, 0, len(p))
	// trim leading '/'
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	for _, r := range p {
		if r == sep {
			if len(cur) > 0 {
				parts = append(parts, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}
	return parts
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAPIKeyAuth enforces a shared API key list.
func withAPIKeyAuth(next http.Handler, apiKeys []string) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
			return
		}
		if _, ok := allowed[key]; !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	if b.tokens < 1 {
		b.last = now
		return false
	}
	b.tokens--
	b.last = now
	return true
}
