package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ Lease = (*RedisLease)(nil)

// releaseScript deletes the key only while it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease is used when several schedulers share one artifact store.
type RedisLease struct {
	client redis.UniversalClient
	name   string
	ttl    time.Duration
}

func NewRedisLease(client redis.UniversalClient, name string, ttl time.Duration) *RedisLease {
	return &RedisLease{
		client: client,
		name:   name,
		ttl:    ttl,
	}
}

// NewRedisClient connects to addr and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func (l *RedisLease) Key() string {
	return "service-alerts:lease:" + l.name
}

func (l *RedisLease) Acquire(ctx context.Context) (func(), error) {
	holder := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.Key(), holder, l.ttl).Result()
	if err != nil {
		return nil, unavailable("acquire redis lease", err)
	}
	if !ok {
		current, err := l.client.Get(ctx, l.Key()).Result()
		if err != nil && err != redis.Nil {
			return nil, unavailable("read redis lease", err)
		}
		return nil, fmt.Errorf("%w: lease %q held by %s", ErrRunInProgress, l.name, current)
	}

	slog.Debug("Run lease acquired", "lease", l.Key(), "holder", holder, "ttl", l.ttl)

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := releaseScript.Run(ctx, l.client, []string{l.Key()}, holder).Err(); err != nil {
			slog.Error("Failed to release run lease", "lease", l.Key(), "holder", holder, "error", err)
			return
		}
		slog.Debug("Run lease released", "lease", l.Key(), "holder", holder)
	}

	return release, nil
}
