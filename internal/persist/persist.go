// Package persist saves and restores backend snapshots. Snapshots are
// framed as a magic header, a murmur3 checksum of the uncompressed JSON
// and the snappy-compressed JSON body.
package persist

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"

	"github.com/sheetbase/sheetbase/internal/backend"
)

// Persister stores engine snapshots.
type Persister interface {
	// Load returns the last saved snapshot, or nil when none exists.
	Load(ctx context.Context) (*backend.Snapshot, error)

	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap *backend.Snapshot) error

	Close() error
}

// ErrCorrupt is returned when a stored snapshot fails its checksum.
var ErrCorrupt = errors.New("persist: snapshot corrupted")

var frameMagic = [4]byte{'S', 'B', 'S', '1'}

const frameHeaderSize = 8

// EncodeFrame serializes v as a checksummed, compressed frame.
func EncodeFrame(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("persist: marshal: %w", err)
	}
	compressed := snappy.Encode(nil, raw)

	buf := make([]byte, frameHeaderSize+len(compressed))
	copy(buf[0:4], frameMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], murmur3.Sum32(raw))
	copy(buf[frameHeaderSize:], compressed)
	return buf, nil
}

// DecodeFrame verifies and decodes a frame written by EncodeFrame.
func DecodeFrame(data []byte, v any) error {
	if len(data) < frameHeaderSize || [4]byte(data[0:4]) != frameMagic {
		return fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	raw, err := snappy.Decode(nil, data[frameHeaderSize:])
	if err != nil {
		return fmt.Errorf("%w: snappy decompress failed: %v", ErrCorrupt, err)
	}
	if murmur3.Sum32(raw) != binary.LittleEndian.Uint32(data[4:8]) {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("persist: unmarshal: %w", err)
	}
	return nil
}

// Memory keeps nothing; the engine starts empty on every run.
type Memory struct{}

func (Memory) Load(context.Context) (*backend.Snapshot, error) { return nil, nil }

func (Memory) Save(context.Context, *backend.Snapshot) error { return nil }

func (Memory) Close() error { return nil }

// Syncer writes engine snapshots to a persister whenever the engine has
// changed since the last save.
type Syncer struct {
	engine    *backend.Engine
	persister Persister
	interval  time.Duration

	mu    sync.Mutex
	saved uint64
}

// NewSyncer creates a syncer that checks for changes every interval.
func NewSyncer(engine *backend.Engine, p Persister, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Syncer{engine: engine, persister: p, interval: interval}
}

// Restore loads the stored snapshot into the engine.
func (s *Syncer) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.persister.Load(ctx)
	if err != nil {
		return err
	}
	if snap != nil {
		if err := s.engine.Restore(snap); err != nil {
			return err
		}
		log.Printf("persist: restored %d stores", len(snap.Stores))
	}
	s.saved = s.engine.Version()
	return nil
}

// Flush saves a snapshot if the engine changed since the last save.
func (s *Syncer) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := s.engine.Version()
	if version == s.saved {
		return nil
	}
	if err := s.persister.Save(ctx, s.engine.Snapshot()); err != nil {
		return err
	}
	s.saved = version
	return nil
}

// Run flushes on every tick until ctx is done.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				log.Printf("[WARN] persist: snapshot save failed: %v", err)
			}
		}
	}
}
