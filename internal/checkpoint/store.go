// Package checkpoint persists crawl progress with atomic replace semantics.
//
// Save writes a side file, rotates the current primary into the backup slot
// and renames the side file over the primary. Load reads the primary, then
// the backup, then falls back to a fresh checkpoint.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/fsutil"
)

// Store implements crawler.CheckpointStore on an afero filesystem.
type Store struct {
	fs          afero.Fs
	path        string
	backup      string
	startRegion int
	clock       crawler.Clock
	logger      *zap.Logger
}

// NewStore returns a store writing path and rotating into backup. Fresh
// checkpoints start at startRegion.
func NewStore(fsys afero.Fs, path, backup string, startRegion int, clock crawler.Clock, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		fs:          fsys,
		path:        path,
		backup:      backup,
		startRegion: startRegion,
		clock:       clock,
		logger:      logger,
	}
}

// Path returns the primary checkpoint path.
func (s *Store) Path() string {
	return s.path
}

// Load implements crawler.CheckpointStore. It never fails on unreadable
// files; it only reports filesystem errors other than absence.
func (s *Store) Load(_ context.Context) (crawler.Checkpoint, error) {
	var firstErr error
	for _, path := range []string{s.path, s.backup} {
		cp, err := s.read(path)
		if err == nil {
			if path == s.backup {
				s.logger.Warn("restored checkpoint from backup", zap.String("path", path))
			}
			return cp, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("checkpoint unreadable", zap.String("path", path), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		s.logger.Warn("starting from a fresh checkpoint", zap.Int("region_index", s.startRegion))
	}
	return crawler.NewCheckpoint(s.startRegion), nil
}

// Save implements crawler.CheckpointStore.
func (s *Store) Save(_ context.Context, cp crawler.Checkpoint) error {
	if cp.SavedAt.IsZero() {
		cp.SavedAt = s.clock.Now()
	}
	data, err := json.MarshalIndent(encode(cp), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode checkpoint: %w", crawler.ErrPersistence, err)
	}
	if err := fsutil.WriteRotating(s.fs, s.path, s.backup, data, 0o644); err != nil {
		return fmt.Errorf("%w: save checkpoint: %w", crawler.ErrPersistence, err)
	}
	s.logger.Debug("checkpoint saved",
		zap.Int("region_index", cp.RegionIndex),
		zap.Int("page_index", cp.PageIndex),
		zap.Int("processed", len(cp.ProcessedIDs)))
	return nil
}

// minimalFile is the shape written when a full save failed.
type minimalFile struct {
	Timestamp           string `json:"timestamp"`
	ErrorDuringShutdown string `json:"error_during_shutdown"`
	RegionIndex         int    `json:"region_index"`
	PageIndex           int    `json:"page_index"`
}

// SaveMinimal implements crawler.CheckpointStore. It records only the
// position; processed ids survive in the dedup cache file.
func (s *Store) SaveMinimal(_ context.Context, cp crawler.Checkpoint, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	data, err := json.Marshal(minimalFile{
		Timestamp:           crawler.FormatTimestamp(s.clock.Now()),
		ErrorDuringShutdown: msg,
		RegionIndex:         cp.RegionIndex,
		PageIndex:           cp.PageIndex,
	})
	if err != nil {
		return fmt.Errorf("%w: encode minimal checkpoint: %w", crawler.ErrPersistence, err)
	}
	// A failed write leaves the previous primary in place.
	if err := fsutil.WriteAtomic(s.fs, s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: minimal checkpoint: %w", crawler.ErrPersistence, err)
	}
	return nil
}

// Reset removes the primary and backup files.
func (s *Store) Reset(_ context.Context) error {
	for _, path := range []string{s.path, s.backup, s.path + fsutil.TempSuffix} {
		if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

func (s *Store) read(path string) (crawler.Checkpoint, error) {
	raw, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return crawler.Checkpoint{}, err
	}
	cp, err := decode(raw, s.startRegion)
	if err != nil {
		return crawler.Checkpoint{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return cp, nil
}

// file is the on-disk checkpoint. The current_* keys and list-form
// processed_companies are accepted from older state files.
type file struct {
	RegionIndex       *int            `json:"region_index,omitempty"`
	PageIndex         *int            `json:"page_index,omitempty"`
	LegacyRegionIndex *int            `json:"current_state_index,omitempty"`
	LegacyPageIndex   *int            `json:"current_page,omitempty"`
	Timestamp         string          `json:"timestamp"`
	Processed         json.RawMessage `json:"processed_companies,omitempty"`
	CompletedRegions  []string        `json:"completed_regions,omitempty"`
}

func encode(cp crawler.Checkpoint) file {
	processed := make(map[crawler.RecordID]string, len(cp.ProcessedIDs))
	for id, at := range cp.ProcessedIDs {
		processed[id] = crawler.FormatTimestamp(at)
	}
	// Marshalling a map of strings cannot fail.
	raw, _ := json.Marshal(processed)
	return file{
		RegionIndex:      &cp.RegionIndex,
		PageIndex:        &cp.PageIndex,
		Timestamp:        crawler.FormatTimestamp(cp.SavedAt),
		Processed:        raw,
		CompletedRegions: cp.CompletedRegions,
	}
}

func decode(raw []byte, startRegion int) (crawler.Checkpoint, error) {
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return crawler.Checkpoint{}, err
	}
	cp := crawler.NewCheckpoint(startRegion)
	switch {
	case f.RegionIndex != nil:
		cp.RegionIndex = *f.RegionIndex
	case f.LegacyRegionIndex != nil:
		cp.RegionIndex = *f.LegacyRegionIndex
	}
	switch {
	case f.PageIndex != nil:
		cp.PageIndex = *f.PageIndex
	case f.LegacyPageIndex != nil:
		cp.PageIndex = *f.LegacyPageIndex
	}
	if cp.RegionIndex < 0 || cp.PageIndex < 0 {
		return crawler.Checkpoint{}, fmt.Errorf("negative position region=%d page=%d", cp.RegionIndex, cp.PageIndex)
	}
	saved, _ := crawler.ParseTimestamp(f.Timestamp)
	cp.SavedAt = saved
	cp.CompletedRegions = f.CompletedRegions

	if len(f.Processed) == 0 || string(f.Processed) == "null" {
		return cp, nil
	}
	var stamped map[crawler.RecordID]string
	if err := json.Unmarshal(f.Processed, &stamped); err == nil {
		for id, ts := range stamped {
			at, ok := crawler.ParseTimestamp(ts)
			if !ok {
				at = saved
			}
			cp.ProcessedIDs[id] = at
		}
		return cp, nil
	}
	var listed []crawler.RecordID
	if err := json.Unmarshal(f.Processed, &listed); err != nil {
		return crawler.Checkpoint{}, fmt.Errorf("processed_companies: %w", err)
	}
	for _, id := range listed {
		cp.ProcessedIDs[id] = saved
	}
	return cp, nil
}

// Age reports how long ago cp was saved.
func Age(cp crawler.Checkpoint, now time.Time) time.Duration {
	if cp.SavedAt.IsZero() {
		return 0
	}
	return now.Sub(cp.SavedAt)
}
