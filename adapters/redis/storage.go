package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"progresskit/core"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// casAttempts bounds optimistic retries inside one UpdateState call before
// the conflict surfaces to the engine's own retry loop.
const casAttempts = 5

// Store implements the engine.Storage interface using Redis as the backend.
// Data structure:
// - user:{user_id}:state -> JSON blob of UserState, version field inside
// - progress:{user_id}:{achievement_id} -> JSON blob of AchievementProgress
//
// Writes go through Lua compare-and-swap scripts keyed on the stored
// version (states) or the prior raw value (progress rows), so concurrent
// writers never interleave partial updates.
type Store struct {
	client *redis.Client
}

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func userStateKey(userID core.UserID) string {
	return fmt.Sprintf("user:%s:state", userID)
}

func progressKey(userID core.UserID, achievement core.AchievementID) string {
	return fmt.Sprintf("progress:%s:%s", userID, achievement)
}

// casStateScript swaps the state blob only when the stored version still
// matches what the writer read.
var casStateScript = redis.NewScript(`
	local cur = redis.call('GET', KEYS[1])
	local ver = 0
	if cur then
		ver = cjson.decode(cur)['version']
	end
	if ver ~= tonumber(ARGV[1]) then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[2])
	return 1
`)

// casValueScript swaps a blob only when the prior raw value is unchanged.
// ARGV[1] is the expected prior value, empty string for "absent".
var casValueScript = redis.NewScript(`
	local cur = redis.call('GET', KEYS[1])
	if cur == false then
		cur = ''
	end
	if cur ~= ARGV[1] then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[2])
	return 1
`)

func (s *Store) UpdateState(ctx context.Context, user core.UserID, fn func(*core.UserState) error) (core.UserState, error) {
	key := userStateKey(user)
	for attempt := 0; attempt < casAttempts; attempt++ {
		prev, exists, err := s.readState(ctx, user)
		if err != nil {
			return core.UserState{}, err
		}
		if !exists {
			prev = core.UserState{UserID: user}
		}
		next := prev.Clone()
		if err := fn(&next); err != nil {
			return core.UserState{}, err
		}
		next.Version = prev.Version + 1
		blob, err := json.Marshal(next)
		if err != nil {
			return core.UserState{}, err
		}
		swapped, err := casStateScript.Run(ctx, s.client, []string{key}, prev.Version, blob).Int64()
		if err != nil {
			return core.UserState{}, fmt.Errorf("failed to swap state: %w", err)
		}
		if swapped == 1 {
			return next, nil
		}
	}
	return core.UserState{}, fmt.Errorf("%w: state for %s", core.ErrConcurrencyConflict, user)
}

func (s *Store) GetState(ctx context.Context, user core.UserID) (core.UserState, error) {
	st, exists, err := s.readState(ctx, user)
	if err != nil {
		return core.UserState{}, err
	}
	if !exists {
		return core.UserState{}, fmt.Errorf("%w: user %s", core.ErrNotFound, user)
	}
	return st, nil
}

func (s *Store) readState(ctx context.Context, user core.UserID) (core.UserState, bool, error) {
	data, err := s.client.Get(ctx, userStateKey(user)).Bytes()
	if err == redis.Nil {
		return core.UserState{}, false, nil
	}
	if err != nil {
		return core.UserState{}, false, fmt.Errorf("failed to read state: %w", err)
	}
	var st core.UserState
	if err := json.Unmarshal(data, &st); err != nil {
		return core.UserState{}, false, fmt.Errorf("corrupt state blob for %s: %w", user, err)
	}
	return st, true, nil
}

func (s *Store) ListStates(ctx context.Context) ([]core.UserState, error) {
	keys, err := s.client.Keys(ctx, "user:*:state").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list state keys: %w", err)
	}
	out := make([]core.UserState, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue // key expired between KEYS and GET
		}
		var st core.UserState
		if err := json.Unmarshal(data, &st); err != nil {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Store) UpdateProgress(ctx context.Context, user core.UserID, achievement core.AchievementID, fn func(*core.AchievementProgress, bool) error) (core.AchievementProgress, error) {
	key := progressKey(user, achievement)
	for attempt := 0; attempt < casAttempts; attempt++ {
		prevRaw, err := s.client.Get(ctx, key).Bytes()
		exists := true
		if err == redis.Nil {
			prevRaw, exists = nil, false
		} else if err != nil {
			return core.AchievementProgress{}, fmt.Errorf("failed to read progress: %w", err)
		}

		var row core.AchievementProgress
		if exists {
			if err := json.Unmarshal(prevRaw, &row); err != nil {
				return core.AchievementProgress{}, fmt.Errorf("corrupt progress blob %s: %w", key, err)
			}
		}
		if err := fn(&row, exists); err != nil {
			return core.AchievementProgress{}, err
		}
		blob, err := json.Marshal(row)
		if err != nil {
			return core.AchievementProgress{}, err
		}
		swapped, err := casValueScript.Run(ctx, s.client, []string{key}, string(prevRaw), blob).Int64()
		if err != nil {
			return core.AchievementProgress{}, fmt.Errorf("failed to swap progress: %w", err)
		}
		if swapped == 1 {
			return row, nil
		}
	}
	return core.AchievementProgress{}, fmt.Errorf("%w: progress %s/%s", core.ErrConcurrencyConflict, user, achievement)
}

func (s *Store) GetProgress(ctx context.Context, user core.UserID, achievement core.AchievementID) (core.AchievementProgress, error) {
	data, err := s.client.Get(ctx, progressKey(user, achievement)).Bytes()
	if err == redis.Nil {
		return core.AchievementProgress{}, fmt.Errorf("%w: progress %s/%s", core.ErrNotFound, user, achievement)
	}
	if err != nil {
		return core.AchievementProgress{}, fmt.Errorf("failed to read progress: %w", err)
	}
	var row core.AchievementProgress
	if err := json.Unmarshal(data, &row); err != nil {
		return core.AchievementProgress{}, fmt.Errorf("corrupt progress blob: %w", err)
	}
	return row, nil
}
