package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var promoteScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, item in ipairs(items) do
	redis.call('ZREM', KEYS[1], item)
	redis.call('LPUSH', KEYS[2], item)
end
return #items
`)

var requeueScript = redis.NewScript(`
local n = 0
while redis.call('RPOPLPUSH', KEYS[1], KEYS[2]) do
	n = n + 1
end
return n
`)

// RedisQueue keeps tasks in four keys: a ready list, a processing list for
// in-flight deliveries, a delayed sorted set scored by due time, and a dead list.
type RedisQueue struct {
	rdb        *redis.Client
	ready      string
	processing string
	delayed    string
	dead       string
}

func NewRedisQueue(rdb *redis.Client, name string) *RedisQueue {
	return &RedisQueue{
		rdb:        rdb,
		ready:      name + ":ready",
		processing: name + ":processing",
		delayed:    name + ":delayed",
		dead:       name + ":dead",
	}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, t *Task) error {
	raw, err := t.encode()
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.ready, raw).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	t.raw = raw
	return nil
}

// Dequeue blocks up to timeout for a task and moves it to the processing list.
// It returns nil, nil when nothing arrived.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	raw, err := q.rdb.BLMove(ctx, q.ready, q.processing, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue task: %w", err)
	}
	t, err := decodeTask(raw)
	if err != nil {
		// Unreadable entries would block recovery forever; park them.
		if _, perr := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.LRem(ctx, q.processing, 1, raw)
			p.LPush(ctx, q.dead, raw)
			return nil
		}); perr != nil {
			slog.Error("park undecodable task failed", "dead", q.dead, "error", perr)
		}
		return nil, err
	}
	return t, nil
}

func (q *RedisQueue) Ack(ctx context.Context, t *Task) error {
	return q.rdb.LRem(ctx, q.processing, 1, t.raw).Err()
}

// Retry records the failure and schedules the task after delay.
func (q *RedisQueue) Retry(ctx context.Context, t *Task, delay time.Duration, cause error) error {
	old := t.raw
	t.Retries++
	if cause != nil {
		t.LastError = cause.Error()
	}
	raw, err := t.encode()
	if err != nil {
		return err
	}
	due := time.Now().Add(delay)
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.processing, 1, old)
		p.ZAdd(ctx, q.delayed, redis.Z{Score: float64(due.UnixMilli()), Member: raw})
		return nil
	})
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	t.raw = raw
	return nil
}

// Bury moves the task to the dead letter list.
func (q *RedisQueue) Bury(ctx context.Context, t *Task, cause error) error {
	old := t.raw
	if cause != nil {
		t.LastError = cause.Error()
	}
	raw, err := t.encode()
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.processing, 1, old)
		p.LPush(ctx, q.dead, raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("bury task: %w", err)
	}
	t.raw = raw
	return nil
}

// PromoteDue moves delayed tasks whose due time has passed onto the ready list.
func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb, []string{q.delayed, q.ready}, now.UnixMilli(), 100).Int()
	if err != nil {
		return 0, fmt.Errorf("promote delayed: %w", err)
	}
	return n, nil
}

// RecoverProcessing returns orphaned in-flight tasks to the ready list. Call it
// once at worker start; deliveries are at-least-once and handlers must tolerate repeats.
func (q *RedisQueue) RecoverProcessing(ctx context.Context) (int, error) {
	n, err := requeueScript.Run(ctx, q.rdb, []string{q.processing, q.ready}).Int()
	if err != nil {
		return 0, fmt.Errorf("recover processing: %w", err)
	}
	return n, nil
}

type Depth struct {
	Ready      int64 `json:"ready"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

func (q *RedisQueue) Depth(ctx context.Context) (Depth, error) {
	var d Depth
	cmds, err := q.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.LLen(ctx, q.ready)
		p.LLen(ctx, q.processing)
		p.ZCard(ctx, q.delayed)
		p.LLen(ctx, q.dead)
		return nil
	})
	if err != nil {
		return d, err
	}
	d.Ready = cmds[0].(*redis.IntCmd).Val()
	d.Processing = cmds[1].(*redis.IntCmd).Val()
	d.Delayed = cmds[2].(*redis.IntCmd).Val()
	d.Dead = cmds[3].(*redis.IntCmd).Val()
	return d, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
