package ledger

import (
	"context"
	"fmt"

	"github.com/limaJavier/coursetable/pkg/config"
	appErrors "github.com/limaJavier/coursetable/pkg/errors"
)

// Open builds the store named by settings. The returned closer releases its connections.
func Open(ctx context.Context, settings config.LedgerSettings) (Store, func() error, error) {
	noop := func() error { return nil }

	switch settings.Backend {
	case config.LedgerMemory:
		return NewMemoryStore(), noop, nil
	case config.LedgerFile, "":
		path := settings.Path
		if path == "" {
			path = "usage_ledger.json"
		}
		return NewFileStore(path), noop, nil
	case config.LedgerRedis:
		client, err := NewRedisClient(settings.Redis)
		if err != nil {
			return nil, nil, err
		}
		key := settings.Redis.Key
		if key == "" {
			key = "coursetable:ledger"
		}
		return NewRedisStore(client, key), client.Close, nil
	case config.LedgerPostgres:
		db, err := NewPostgres(settings.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("connect ledger database: %w", err)
		}
		store := NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil
	}
	return nil, nil, appErrors.Validation("ledger.backend", fmt.Sprintf("unknown backend %q", settings.Backend))
}
