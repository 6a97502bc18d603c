package drivers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Veraticus/gradebot/internal/session"
)

// Kind names a store driver.
type Kind string

// Store drivers.
const (
	KindMemory Kind = "memory"
	KindRedis  Kind = "redis"
	KindSQLite Kind = "sqlite"
)

// ErrInvalidKind is returned for an unknown driver name.
var ErrInvalidKind = errors.New("invalid session store type")

// Options configures Open.
type Options struct {
	Kind       Kind
	RedisURL   string
	SQLitePath string
	TTL        time.Duration
}

// Open builds the store selected by opts. Redis connectivity is verified
// before returning.
func Open(ctx context.Context, opts Options) (session.Store, error) {
	switch opts.Kind {
	case KindMemory, "":
		return NewMemoryStore(), nil

	case KindRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis session store: REDIS_URL is required")
		}
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedisStore(client, opts.TTL), nil

	case KindSQLite:
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite session store: SQLITE_PATH is required")
		}
		return NewSQLiteStore(opts.SQLitePath)

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, opts.Kind)
	}
}
