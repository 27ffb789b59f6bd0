// Package dedup tracks which records have been fully processed.
//
// The set only grows. At startup it is seeded with the union of the
// checkpoint's processed ids, the standalone cache file, and the optional
// Redis mirror.
package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/fsutil"
)

// cacheFile is the on-disk layout of the processed-id cache.
type cacheFile struct {
	IDs       []crawler.RecordID `json:"ids"`
	Timestamp string             `json:"timestamp"`
}

// Set implements crawler.Deduplicator.
type Set struct {
	mu      sync.RWMutex
	ids     map[crawler.RecordID]time.Time
	pending []crawler.RecordID

	fs     afero.Fs
	path   string
	clock  crawler.Clock
	mirror Mirror
	logger *zap.Logger
}

// Option customizes a Set.
type Option func(*Set)

// WithMirror replicates processed ids to m.
func WithMirror(m Mirror) Option {
	return func(s *Set) { s.mirror = m }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Set) { s.logger = l }
}

// New returns an empty set persisted to path on fsys.
func New(fsys afero.Fs, path string, clock crawler.Clock, opts ...Option) *Set {
	s := &Set{
		ids:    make(map[crawler.RecordID]time.Time),
		fs:     fsys,
		path:   path,
		clock:  clock,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed merges every persisted source into the set. Ids found only in the
// cache file or mirror are stamped with the cache timestamp. A missing or
// unreadable cache file is logged and skipped.
func (s *Set) Seed(ctx context.Context, fromCheckpoint map[crawler.RecordID]time.Time) error {
	s.mu.Lock()
	for id, at := range fromCheckpoint {
		s.markLocked(id, at, false)
	}
	s.mu.Unlock()

	ids, stamp, err := s.readCache()
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		s.logger.Warn("processed-id cache unreadable, continuing with checkpoint ids",
			zap.String("path", s.path), zap.Error(err))
	default:
		s.mu.Lock()
		for _, id := range ids {
			s.markLocked(id, stamp, false)
		}
		s.mu.Unlock()
	}

	if s.mirror != nil {
		members, err := s.mirror.Members(ctx)
		if err != nil {
			return fmt.Errorf("load mirror: %w", err)
		}
		now := s.clock.Now()
		s.mu.Lock()
		for _, id := range members {
			s.markLocked(id, now, false)
		}
		s.mu.Unlock()
	}

	s.logger.Info("dedup set seeded",
		zap.Int("checkpoint_ids", len(fromCheckpoint)),
		zap.Int("cache_ids", len(ids)),
		zap.Int("total", s.Len()))
	return nil
}

// Seen implements crawler.Deduplicator.
func (s *Set) Seen(id crawler.RecordID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Mark implements crawler.Deduplicator. Marking an id twice keeps the first
// timestamp.
func (s *Set) Mark(id crawler.RecordID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markLocked(id, at, true)
}

func (s *Set) markLocked(id crawler.RecordID, at time.Time, replicate bool) {
	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = at
	if replicate {
		s.pending = append(s.pending, id)
	}
}

// Len implements crawler.Deduplicator.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Snapshot implements crawler.Deduplicator.
func (s *Set) Snapshot() map[crawler.RecordID]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.ids)
}

// Persist writes the cache file and pushes newly marked ids to the mirror.
// Mirror failures are logged; the ids stay pending for the next call.
func (s *Set) Persist(ctx context.Context) error {
	s.mu.RLock()
	ids := slices.Sorted(maps.Keys(s.ids))
	pending := slices.Clone(s.pending)
	s.mu.RUnlock()

	data, err := json.MarshalIndent(cacheFile{
		IDs:       ids,
		Timestamp: crawler.FormatTimestamp(s.clock.Now()),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode processed ids: %w", err)
	}
	if err := fsutil.WriteAtomic(s.fs, s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: processed-id cache: %w", crawler.ErrPersistence, err)
	}

	if s.mirror == nil || len(pending) == 0 {
		return nil
	}
	if err := s.mirror.Add(ctx, pending...); err != nil {
		s.logger.Warn("processed-id mirror update failed", zap.Int("pending", len(pending)), zap.Error(err))
		return nil
	}
	s.mu.Lock()
	s.pending = s.pending[len(pending):]
	s.mu.Unlock()
	return nil
}

func (s *Set) readCache() ([]crawler.RecordID, time.Time, error) {
	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, time.Time{}, err
	}
	var cf cacheFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	stamp, ok := crawler.ParseTimestamp(cf.Timestamp)
	if !ok {
		stamp = s.clock.Now()
	}
	return cf.IDs, stamp, nil
}
