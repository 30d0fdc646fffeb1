package ledger

import (
	"context"
	"fmt"
	"sync"

	appErrors "github.com/limaJavier/coursetable/pkg/errors"
)

// MemoryStore keeps the ledger in process; used by tests and one-shot runs.
type MemoryStore struct {
	mu     sync.Mutex
	ledger Ledger
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ledger: New()}
}

func (store *MemoryStore) Load(_ context.Context) (Ledger, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.ledger.Clone(), nil
}

func (store *MemoryStore) Save(_ context.Context, ledger Ledger) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.ledger.Version != ledger.Version {
		return versionConflict(store.ledger.Version, ledger.Version)
	}
	saved := ledger.Clone()
	saved.Version++
	store.ledger = saved
	return nil
}

func (store *MemoryStore) Reset(_ context.Context) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	empty := New()
	empty.Version = store.ledger.Version + 1
	store.ledger = empty
	return nil
}

func versionConflict(stored, loaded int64) error {
	return appErrors.Clone(appErrors.ErrVersionConflict, fmt.Sprintf("ledger is at version %d, run loaded version %d", stored, loaded))
}
