package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/limaJavier/coursetable/pkg/config"
	appErrors "github.com/limaJavier/coursetable/pkg/errors"
)

// RedisStore keeps the ledger document under a single key. Saves run inside WATCH/MULTI so that
// a concurrent writer aborts the transaction instead of being overwritten.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// NewRedisClient returns a client that has answered a ping.
func NewRedisClient(settings config.RedisSettings) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     settings.Addr,
		Password: settings.Password,
		DB:       settings.DB,
	})

	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", settings.Addr, err)
	}
	return client, nil
}

func (store *RedisStore) Load(ctx context.Context) (Ledger, error) {
	return store.get(ctx, store.client)
}

func (store *RedisStore) Save(ctx context.Context, ledger Ledger) error {
	return store.swap(ctx, func(current Ledger) (Ledger, error) {
		if current.Version != ledger.Version {
			return Ledger{}, versionConflict(current.Version, ledger.Version)
		}
		saved := ledger.Clone()
		saved.Version++
		return saved, nil
	})
}

func (store *RedisStore) Reset(ctx context.Context) error {
	return store.swap(ctx, func(current Ledger) (Ledger, error) {
		empty := New()
		empty.Version = current.Version + 1
		return empty, nil
	})
}

// swap replaces the stored document with next(current) atomically.
func (store *RedisStore) swap(ctx context.Context, next func(current Ledger) (Ledger, error)) error {
	err := store.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := store.get(ctx, tx)
		if err != nil {
			return err
		}
		replacement, err := next(current)
		if err != nil {
			return err
		}
		payload, err := encode(replacement)
		if err != nil {
			return fmt.Errorf("encode ledger: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, store.key, payload, 0)
			return nil
		})
		return err
	}, store.key)

	if errors.Is(err, redis.TxFailedErr) {
		return appErrors.Clone(appErrors.ErrVersionConflict, fmt.Sprintf("redis key %s changed during save", store.key))
	}
	if errors.Is(err, appErrors.ErrVersionConflict) {
		return err
	}
	if err != nil {
		return fmt.Errorf("redis set %s: %w", store.key, err)
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (store *RedisStore) get(ctx context.Context, client getter) (Ledger, error) {
	raw, err := client.Get(ctx, store.key).Bytes()
	if err == redis.Nil {
		return New(), nil
	}
	if err != nil {
		return Ledger{}, fmt.Errorf("redis get %s: %w", store.key, err)
	}
	return decode(raw)
}
