package serverstate

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisKey = "chatrelay:state"

// RedisStore implements Store backed by a Redis deployment.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore connects to the given Redis URL and returns a Store.
// The key is initialized to "not_ready" if it does not exist yet.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	opts, err := parseRedisURL(addr)
	if err != nil {
		return nil, err
	}
	c := redis.NewUniversalClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	b, _ := json.Marshal(State{Status: StatusNotReady})
	if err := c.SetNX(ctx, redisKey, b, 0).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis init state: %w", err)
	}
	return &RedisStore{client: c, key: redisKey}, nil
}

// parseRedisURL parses addr into UniversalOptions supporting single, cluster,
// and sentinel Redis deployments. If no scheme is present, addr is treated as
// a plain host:port string.
func parseRedisURL(addr string) (*redis.UniversalOptions, error) {
	if !strings.Contains(addr, "://") {
		return &redis.UniversalOptions{Addrs: []string{addr}}, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	opts := &redis.UniversalOptions{}
	if u.User != nil {
		opts.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			opts.Password = pw
		}
	}
	opts.Addrs = strings.Split(u.Host, ",")

	q := u.Query()
	parseDB := func(v string) error {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("redis: invalid db: %w", err)
		}
		opts.DB = db
		return nil
	}
	switch u.Scheme {
	case "redis", "rediss":
		if p := strings.TrimPrefix(u.Path, "/"); p != "" {
			if err := parseDB(p); err != nil {
				return nil, err
			}
		} else if v := q.Get("db"); v != "" {
			if err := parseDB(v); err != nil {
				return nil, err
			}
		}
	case "redis-sentinel", "rediss-sentinel":
		opts.MasterName = strings.TrimPrefix(u.Path, "/")
		if v := q.Get("db"); v != "" {
			if err := parseDB(v); err != nil {
				return nil, err
			}
		}
		opts.SentinelUsername = q.Get("sentinel_username")
		opts.SentinelPassword = q.Get("sentinel_password")
	default:
		return nil, fmt.Errorf("redis: invalid URL scheme: %s", u.Scheme)
	}
	if strings.HasPrefix(u.Scheme, "rediss") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// Load reads the state. A missing key reads as "not_ready".
func (r *RedisStore) Load(ctx context.Context) (State, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{Status: StatusNotReady}, nil
	}
	if err != nil {
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, fmt.Errorf("decode server state: %w", err)
	}
	return st, nil
}

// Save writes the state.
func (r *RedisStore) Save(ctx context.Context, s State) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, b, 0).Err()
}

// Close releases the Redis connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
