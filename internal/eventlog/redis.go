package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// RedisConfig configures the Redis Streams-backed Log.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	MaxLen   int64 // approximate per-stream retention cap; 0 means unbounded
}

// Redis is a Log backed by Redis Streams: XADD for publish, consumer
// groups for delivery, XACK/XPENDING/XCLAIM for the PEL contract.
// Grounded in internal/store/redis/{reader,writer}.go.
type Redis struct {
	client *goredis.Client
	maxLen int64
}

// NewRedis dials Redis and pings it before returning.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("eventlog: redis ping: %w", err)
	}

	slog.Info("connected to redis", "addr", cfg.Addr)
	return &Redis{client: client, maxLen: cfg.MaxLen}, nil
}

func (r *Redis) Publish(ctx context.Context, stream string, payload []byte) (string, error) {
	args := &goredis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"data": payload},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	id, err := r.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("eventlog: xadd %s: %w", stream, err)
	}
	return id, nil
}

func (r *Redis) EnsureGroup(ctx context.Context, stream, group string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("eventlog: xgroup create %s/%s: %w", stream, group, err)
	}
	return nil
}

func (r *Redis) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Entry, error) {
	res, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("eventlog: xreadgroup %s/%s: %w", stream, group, err)
	}

	var entries []Entry
	for _, s := range res {
		for _, msg := range s.Messages {
			data, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			entries = append(entries, Entry{ID: msg.ID, Payload: []byte(data)})
		}
	}
	return entries, nil
}

func (r *Redis) Ack(ctx context.Context, stream, group, id string) error {
	if err := r.client.XAck(ctx, stream, group, id).Err(); err != nil {
		return fmt.Errorf("eventlog: xack %s/%s/%s: %w", stream, group, id, err)
	}
	return nil
}

func (r *Redis) StreamLength(ctx context.Context, stream string) (int64, error) {
	n, err := r.client.XLen(ctx, stream).Result()
	if err != nil {
		return 0, fmt.Errorf("eventlog: xlen %s: %w", stream, err)
	}
	return n, nil
}

func (r *Redis) PendingCount(ctx context.Context, stream, group string) (int64, error) {
	summary, err := r.client.XPending(ctx, stream, group).Result()
	if err != nil {
		if err == goredis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("eventlog: xpending %s/%s: %w", stream, group, err)
	}
	return summary.Count, nil
}

func (r *Redis) ReclaimStale(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]Entry, error) {
	pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
		Idle:   minIdle,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("eventlog: xpendingext %s/%s: %w", stream, group, err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
	}

	claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("eventlog: xclaim %s/%s: %w", stream, group, err)
	}

	entries := make([]Entry, 0, len(claimed))
	for _, msg := range claimed {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{ID: msg.ID, Payload: []byte(data)})
	}
	return entries, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Log = (*Redis)(nil)
