package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sheetbase/sheetbase/internal/backend"
	"github.com/sheetbase/sheetbase/internal/storage"
)

// ObjectPersister keeps the snapshot as a single object. Saves are
// conditional on the ETag seen at the last load or save, so two servers
// pointed at the same key cannot silently overwrite each other.
type ObjectPersister struct {
	store storage.ObjectStorage
	key   string

	mu   sync.Mutex
	etag string
}

// NewObjectPersister stores snapshots under key.
func NewObjectPersister(store storage.ObjectStorage, key string) *ObjectPersister {
	if key == "" {
		key = "snapshots/sheetbase.snap"
	}
	return &ObjectPersister{store: store, key: key}
}

func (p *ObjectPersister) Load(ctx context.Context) (*backend.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, etag, err := p.store.Get(ctx, p.key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		p.etag = ""
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persist: failed to read %s: %w", p.key, err)
	}

	var snap backend.Snapshot
	if err := DecodeFrame(data, &snap); err != nil {
		return nil, fmt.Errorf("persist: %s: %w", p.key, err)
	}
	p.etag = etag
	return &snap, nil
}

func (p *ObjectPersister) Save(ctx context.Context, snap *backend.Snapshot) error {
	data, err := EncodeFrame(snap)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	etag, err := p.store.ConditionalPut(ctx, p.key, data, p.etag)
	if err != nil {
		if errors.Is(err, storage.ErrPreconditionFailed) {
			return fmt.Errorf("persist: %s was changed by another writer: %w", p.key, err)
		}
		return fmt.Errorf("persist: failed to write %s: %w", p.key, err)
	}
	p.etag = etag
	return nil
}

func (p *ObjectPersister) Close() error { return nil }
