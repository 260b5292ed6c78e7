package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"adstudio/internal/view"
)

type RedisOptions struct {
	Prefix string
	TTL    time.Duration
}

type RedisPersister struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisPersister(client redis.Cmdable, opts RedisOptions) *RedisPersister {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "adstudio:view:"
	}
	return &RedisPersister{client: client, prefix: prefix, ttl: opts.TTL}
}

// Connect parses a redis:// or rediss:// URL and pings the server.
func Connect(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (p *RedisPersister) Load(ctx context.Context, key string) (view.Snapshot, bool, error) {
	data, err := p.client.Get(ctx, p.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return view.Snapshot{}, false, nil
	}
	if err != nil {
		return view.Snapshot{}, false, fmt.Errorf("redis get: %w", err)
	}

	var snap view.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return view.Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// Save stores the snapshot. A Form snapshot deletes the key instead, since
// an empty view is the default for an unknown session.
func (p *RedisPersister) Save(ctx context.Context, key string, snap view.Snapshot) error {
	if snap.Kind == view.KindForm {
		if err := p.client.Del(ctx, p.prefix+key).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := p.client.Set(ctx, p.prefix+key, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
