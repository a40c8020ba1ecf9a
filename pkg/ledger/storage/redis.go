package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"momentum-hq/engine/pkg/ledger"
)

// redisUpsertScript applies a delta to a ledger hash atomically.
// KEYS[1] = ledger key
// ARGV[1] = monthly budget
// ARGV[2] = spend
// ARGV[3] = tier3 calls
// ARGV[4] = unix seconds
// ARGV[5] = week key
// ARGV[6] = month key
// ARGV[7] = guarded (0/1)
// ARGV[8] = guard budget
// ARGV[9] = check tier3 (0/1)
// ARGV[10] = tier3 limit
// Returns {0} when the guard rejects, otherwise {1, fields...}.
var redisUpsertScript = redis.NewScript(`
local key = KEYS[1]
local budget = tonumber(ARGV[1])
local spend = tonumber(ARGV[2])
local calls = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local week = ARGV[5]
local month = ARGV[6]

local state = redis.call("HMGET", key, "month_spend", "lifetime_spend", "t3_week", "t3_month", "last_t3", "week_key", "month_key")
local month_spend = tonumber(state[1]) or 0
local lifetime = tonumber(state[2]) or 0
local t3_week = tonumber(state[3]) or 0
local t3_month = tonumber(state[4]) or 0
local last_t3 = state[5] or ""

-- Roll over stale windows
if state[6] ~= week then
    t3_week = 0
end
if state[7] ~= month then
    month_spend = 0
    t3_month = 0
end

if ARGV[7] == "1" then
    if month_spend >= tonumber(ARGV[8]) then
        return {0}
    end
    if ARGV[9] == "1" and t3_week >= tonumber(ARGV[10]) then
        return {0}
    end
end

month_spend = month_spend + spend
lifetime = lifetime + spend
if calls > 0 then
    t3_week = t3_week + calls
    t3_month = t3_month + calls
    last_t3 = tostring(now)
end
local exceeded = 0
if month_spend >= budget then
    exceeded = 1
end

redis.call("HSET", key,
    "budget", ARGV[1],
    "month_spend", tostring(month_spend),
    "lifetime_spend", tostring(lifetime),
    "t3_week", t3_week,
    "t3_month", t3_month,
    "last_t3", last_t3,
    "exceeded", exceeded,
    "week_key", week,
    "month_key", month,
    "updated_at", ARGV[4])

return {1, tostring(month_spend), tostring(lifetime), t3_week, t3_month, last_t3, exceeded}
`)

// redisResetScript zeroes window counters on one hash if its window key is
// stale.
// KEYS[1] = ledger key
// ARGV[1] = "week" or "month"
// ARGV[2] = current window key
// ARGV[3] = unix seconds
var redisResetScript = redis.NewScript(`
local key = KEYS[1]
local field = ARGV[1] .. "_key"
local current = redis.call("HGET", key, field)
if not current or current == ARGV[2] then
    return 0
end
if ARGV[1] == "week" then
    redis.call("HSET", key, "t3_week", 0, "week_key", ARGV[2], "updated_at", ARGV[3])
else
    redis.call("HSET", key, "month_spend", "0", "t3_month", 0, "exceeded", 0, "month_key", ARGV[2], "updated_at", ARGV[3])
end
return 1
`)

// RedisStore implements ledger.Store with one Redis hash per user.
//
// Upsert runs as a Lua script, which Redis executes atomically, so the guard
// check and the increment cannot interleave with another request.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig configures the Redis ledger store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisStore creates a store backed by Redis.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreFromClient(rdb, cfg.KeyPrefix)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "momentum:ledger:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

// Get loads the user's hash.
func (s *RedisStore) Get(ctx context.Context, userID string) (*ledger.Ledger, error) {
	fields, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ledger get: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	l := &ledger.Ledger{
		UserID:               userID,
		MonthlyBudgetUSD:     parseFloat(fields["budget"]),
		CurrentMonthSpendUSD: parseFloat(fields["month_spend"]),
		LifetimeSpendUSD:     parseFloat(fields["lifetime_spend"]),
		Tier3CallsThisWeek:   int(parseFloat(fields["t3_week"])),
		Tier3CallsThisMonth:  int(parseFloat(fields["t3_month"])),
		LastTier3CallAt:      parseUnix(fields["last_t3"]),
		BudgetExceeded:       fields["exceeded"] == "1",
		WeekKey:              fields["week_key"],
		MonthKey:             fields["month_key"],
	}
	if at := parseUnix(fields["updated_at"]); at != nil {
		l.UpdatedAt = *at
	}
	return l, nil
}

// Upsert runs the delta script.
func (s *RedisStore) Upsert(ctx context.Context, userID string, d ledger.Delta) (*ledger.Ledger, error) {
	at := d.At.UTC()
	var guard ledger.Guard
	if d.Guard != nil {
		guard = *d.Guard
	}

	res, err := redisUpsertScript.Run(ctx, s.client, []string{s.key(userID)},
		formatFloat(d.MonthlyBudgetUSD),
		formatFloat(d.SpendUSD),
		d.Tier3Calls,
		at.Unix(),
		ledger.WeekKey(at),
		ledger.MonthKey(at),
		boolArg(d.Guard != nil),
		formatFloat(guard.MonthlyBudgetUSD),
		boolArg(guard.CheckTier3),
		guard.Tier3WeeklyLimit,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ledger upsert: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) == 0 {
		return nil, fmt.Errorf("invalid response from lua script")
	}
	if applied, _ := results[0].(int64); applied == 0 {
		return nil, ledger.ErrGuardFailed
	}
	if len(results) != 7 {
		return nil, fmt.Errorf("invalid response from lua script")
	}

	l := &ledger.Ledger{
		UserID:               userID,
		MonthlyBudgetUSD:     d.MonthlyBudgetUSD,
		CurrentMonthSpendUSD: parseFloat(toString(results[1])),
		LifetimeSpendUSD:     parseFloat(toString(results[2])),
		Tier3CallsThisWeek:   int(toInt(results[3])),
		Tier3CallsThisMonth:  int(toInt(results[4])),
		LastTier3CallAt:      parseUnix(toString(results[5])),
		BudgetExceeded:       toInt(results[6]) == 1,
		WeekKey:              ledger.WeekKey(at),
		MonthKey:             ledger.MonthKey(at),
		UpdatedAt:            time.Unix(at.Unix(), 0).UTC(),
	}
	return l, nil
}

// ResetWeekly resets every stale hash under the prefix.
func (s *RedisStore) ResetWeekly(ctx context.Context, now time.Time) (int64, error) {
	return s.reset(ctx, "week", ledger.WeekKey(now), now)
}

// ResetMonthly resets every stale hash under the prefix.
func (s *RedisStore) ResetMonthly(ctx context.Context, now time.Time) (int64, error) {
	return s.reset(ctx, "month", ledger.MonthKey(now), now)
}

func (s *RedisStore) reset(ctx context.Context, window, current string, now time.Time) (int64, error) {
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return total, fmt.Errorf("redis ledger scan: %w", err)
		}
		for _, key := range keys {
			n, err := redisResetScript.Run(ctx, s.client, []string{key}, window, current, now.Unix()).Int64()
			if err != nil {
				return total, fmt.Errorf("redis ledger reset %s: %w", key, err)
			}
			total += n
		}
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseUnix(s string) *time.Time {
	if s == "" {
		return nil
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}

func toInt(v interface{}) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	default:
		return 0
	}
}
