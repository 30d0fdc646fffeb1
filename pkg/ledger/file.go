package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the ledger as a JSON document on disk. Writes go through a temporary file and a rename.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (store *FileStore) Load(_ context.Context) (Ledger, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.read()
}

func (store *FileStore) Save(_ context.Context, ledger Ledger) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	current, err := store.read()
	if err != nil {
		return err
	}
	if current.Version != ledger.Version {
		return versionConflict(current.Version, ledger.Version)
	}
	saved := ledger.Clone()
	saved.Version++
	return store.write(saved)
}

func (store *FileStore) Reset(_ context.Context) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	current, err := store.read()
	if err != nil {
		return err
	}
	empty := New()
	empty.Version = current.Version + 1
	return store.write(empty)
}

func (store *FileStore) read() (Ledger, error) {
	data, err := os.ReadFile(store.path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return Ledger{}, fmt.Errorf("read ledger %s: %w", store.path, err)
	}
	if len(data) == 0 {
		return New(), nil
	}
	return decode(data)
}

func (store *FileStore) write(ledger Ledger) error {
	data, err := encode(ledger)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(store.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger directory %s: %w", dir, err)
	}
	temp, err := os.CreateTemp(dir, filepath.Base(store.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write ledger %s: %w", store.path, err)
	}
	defer os.Remove(temp.Name())

	if _, err := temp.Write(data); err != nil {
		temp.Close()
		return fmt.Errorf("write ledger %s: %w", store.path, err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("write ledger %s: %w", store.path, err)
	}
	if err := os.Rename(temp.Name(), store.path); err != nil {
		return fmt.Errorf("replace ledger %s: %w", store.path, err)
	}
	return nil
}
