package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	goredis "github.com/redis/go-redis/v9"

	"github.com/opentool-run/interact/state"
)

// RedisConfig configures the distributed Store backend.
type RedisConfig struct {
	// Addr is the Redis server address ("host:port").
	Addr string
	// Prefix namespaces every key this store touches; defaults to "interact".
	Prefix string
	// ExpirationEvents enables subscribing to Redis keyspace notifications
	// for the configured DB so OnExpired fires on server-side TTL
	// eviction. Requires the server have
	// `notify-keyspace-events` including "Ex" enabled (the store does not
	// set this itself — it is a server-wide setting).
	ExpirationEvents bool
	DB               int
}

// Redis is a Store backed by a remote key/value store with server-side
// TTL, satisfying the same clone-on-read and per-key TTL contract as
// Memory, so the manager can switch backends without behavior change
// (spec.md §4.4).
type Redis struct {
	client *goredis.Client
	prefix string
	enc    *zstd.Encoder
	dec    *zstd.Decoder

	mu       sync.Mutex
	onExpire func(id string)
	onDelete func(id string)

	cancel context.CancelFunc
}

// NewRedis connects to cfg.Addr and, if cfg.ExpirationEvents is set,
// starts a background subscriber demultiplexing expired-key notifications
// to OnExpired.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "interact"
	}

	client := goredis.NewClient(&goredis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("store: create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("store: create zstd decoder: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Redis{client: client, prefix: prefix, enc: enc, dec: dec, cancel: cancel}

	if cfg.ExpirationEvents {
		go r.subscribeExpired(ctx, cfg.DB)
	}
	return r, nil
}

func (r *Redis) key(id string) string {
	return r.prefix + ":" + id
}

func (r *Redis) idFromKey(key string) (string, bool) {
	prefix := r.prefix + ":"
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	return strings.TrimPrefix(key, prefix), true
}

func (r *Redis) subscribeExpired(ctx context.Context, db int) {
	channel := fmt.Sprintf("__keyevent@%d__:expired", db)
	pubsub := r.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			id, ok := r.idFromKey(msg.Payload)
			if !ok {
				continue
			}
			r.mu.Lock()
			cb := r.onExpire
			r.mu.Unlock()
			if cb != nil {
				cb(id)
			}
		}
	}
}

func (r *Redis) Set(ctx context.Context, id string, s *state.State, ttl time.Duration) error {
	clone, err := s.Clone()
	if err != nil {
		return err
	}
	data, err := marshalState(clone)
	if err != nil {
		return err
	}
	compressed := r.enc.EncodeAll(data, nil)
	return r.client.Set(ctx, r.key(id), compressed, ttl).Err()
}

func (r *Redis) Get(ctx context.Context, id string) (*state.State, bool, error) {
	compressed, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	data, err := r.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false, fmt.Errorf("store: decompress snapshot: %w", err)
	}
	state, err := unmarshalState(data)
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

func (r *Redis) Has(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(id)).Result()
	return n > 0, err
}

func (r *Redis) Delete(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return false, err
	}
	deleted := n > 0

	r.mu.Lock()
	cb := r.onDelete
	r.mu.Unlock()
	if deleted && cb != nil {
		cb(id)
	}
	return deleted, nil
}

// Keys scans the keyspace under the store's prefix using SCAN rather
// than KEYS, so a large keyspace never blocks the server (spec.md §4.4).
func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	var ids []string
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		if id, ok := r.idFromKey(iter.Val()); ok {
			ids = append(ids, id)
		}
	}
	return ids, iter.Err()
}

// Count uses the same cursor-based SCAN as Keys rather than a blocking
// DBSIZE/KEYS call.
func (r *Redis) Count(ctx context.Context) (int, error) {
	keys, err := r.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (r *Redis) Close() error {
	r.cancel()
	return r.client.Close()
}

func (r *Redis) OnExpired(cb func(id string)) {
	r.mu.Lock()
	r.onExpire = cb
	r.mu.Unlock()
}

func (r *Redis) OnDeleted(cb func(id string)) {
	r.mu.Lock()
	r.onDelete = cb
	r.mu.Unlock()
}
