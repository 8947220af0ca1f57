package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"

	"github.com/vertextoedge/safefetch/internal/domain"
	"github.com/vertextoedge/safefetch/internal/port"
)

// Manager owns the base directory: path resolution, staging files and
// promotion to final names
type Manager struct {
	baseDir string
}

// Ensure Manager implements port.PartialStore
var _ port.PartialStore = (*Manager)(nil)

// NewManager creates a new filesystem manager rooted at baseDir.
// "~" is expanded and the directory is created if missing.
func NewManager(baseDir string) (*Manager, error) {
	expanded, err := homedir.Expand(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand base dir: %w", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base dir: %w", err)
	}

	// Ensure base directory exists
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base dir: %w", err)
	}

	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base dir: %w", err)
	}

	return &Manager{baseDir: real}, nil
}

// BaseDir returns the real path of the base directory
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// Decide picks skip, resume or fresh without any network access
func (m *Manager) Decide(rp domain.ResolvedPath, expectedSize int64) (domain.Decision, error) {
	target, err := snapshot(rp.Target)
	if err != nil {
		return domain.Decision{}, err
	}
	staging, err := snapshot(rp.Staging)
	if err != nil {
		return domain.Decision{}, err
	}

	d := domain.Decision{Kind: domain.DecideFresh, Target: target, Staging: staging}
	switch {
	case target.Exists && expectedSize >= 0 && target.Size == expectedSize:
		d.Kind = domain.DecideSkip
	case !target.Exists && staging.Size > 0:
		d.Kind = domain.DecideResume
		d.Offset = staging.Size
	}
	return d, nil
}

// OpenStaging opens the staging file for append at offset
func (m *Manager) OpenStaging(rp domain.ResolvedPath, offset int64) (port.StagingWriter, error) {
	sf := &stagingFile{path: rp.Staging}
	if offset == 0 {
		// Created or truncated on first write
		sf.fresh = true
		return sf, nil
	}

	f, err := os.OpenFile(rp.Staging, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open staging file for resume: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat staging file: %w", err)
	}
	if info.Size() != offset {
		f.Close()
		return nil, fmt.Errorf("staging file %s is %d bytes, expected %d", rp.Staging, info.Size(), offset)
	}

	sf.f = f
	sf.size = offset
	return sf, nil
}

// StagingInfo returns the staging file snapshot
func (m *Manager) StagingInfo(rp domain.ResolvedPath) (domain.Snapshot, error) {
	return snapshot(rp.Staging)
}

// Timestamp sets the staging file mtime to the server modification time
func (m *Manager) Timestamp(rp domain.ResolvedPath, mtime time.Time) error {
	if mtime.IsZero() {
		return nil
	}
	if err := os.Chtimes(rp.Staging, mtime, mtime); err != nil {
		return fmt.Errorf("failed to timestamp staging file: %w", err)
	}
	return nil
}

// DiscardIfStale removes the staging file unless it holds at least keepBytes.
// An empty staging file is always removed.
func (m *Manager) DiscardIfStale(rp domain.ResolvedPath, keepBytes int64) (bool, error) {
	snap, err := snapshot(rp.Staging)
	if err != nil || !snap.Exists {
		return false, err
	}
	if snap.Size > 0 && snap.Size >= keepBytes {
		return false, nil
	}
	if err := m.Remove(rp); err != nil {
		return false, err
	}
	return true, nil
}

// Promote atomically renames the staging file to the target. A target that
// changed since snap was taken and whose size differs from verifiedSize is
// left alone.
func (m *Manager) Promote(rp domain.ResolvedPath, verifiedSize int64, snap domain.Snapshot) error {
	current, err := snapshot(rp.Target)
	if err != nil {
		return &domain.PromotionError{Target: rp.Target, Err: err}
	}
	if current.Exists && !current.Same(snap) && current.Size != verifiedSize {
		return &domain.PromotionError{Target: rp.Target, Conflict: true}
	}

	if err := os.Rename(rp.Staging, rp.Target); err != nil {
		return &domain.PromotionError{Target: rp.Target, Err: err}
	}
	return nil
}

// Remove deletes the staging file
func (m *Manager) Remove(rp domain.ResolvedPath) error {
	if err := os.Remove(rp.Staging); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete staging file: %w", err)
	}
	return nil
}

// RemoveIfEmpty deletes the staging file if it holds zero bytes
func (m *Manager) RemoveIfEmpty(rp domain.ResolvedPath) (bool, error) {
	snap, err := snapshot(rp.Staging)
	if err != nil || !snap.Exists || snap.Size > 0 {
		return false, err
	}
	if err := m.Remove(rp); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureSpace checks that needed bytes fit on the base filesystem.
// It is a no-op where disk usage cannot be read.
func (m *Manager) EnsureSpace(needed int64) error {
	if needed <= 0 {
		return nil
	}
	free, err := availableBytes(m.baseDir)
	if err != nil {
		return nil
	}
	if uint64(needed) > free {
		return fmt.Errorf("%w: need %s, %s free under %s", domain.ErrInsufficientSpace,
			humanize.IBytes(uint64(needed)), humanize.IBytes(free), m.baseDir)
	}
	return nil
}

// CleanOldPartFiles removes staging files older than the specified duration
func (m *Manager) CleanOldPartFiles(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.Walk(m.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() && filepath.Ext(path) == domain.PartSuffix {
			if info.ModTime().Before(threshold) {
				if removeErr := os.Remove(path); removeErr == nil {
					count++
				}
			}
		}
		return nil
	})
	return count, err
}

func snapshot(path string) (domain.Snapshot, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Snapshot{}, nil
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return domain.Snapshot{Exists: true, Size: info.Size(), ModTime: info.ModTime()}, nil
}
