package port

import (
	"io"
	"time"

	"github.com/vertextoedge/safefetch/internal/domain"
)

// StagingWriter is an open staging file owned by one transfer attempt.
type StagingWriter interface {
	io.Writer

	// Truncate discards everything staged so far.
	Truncate() error

	// Size returns the current staging length.
	Size() int64

	// Sync flushes the staging file to disk, creating it if nothing was
	// written yet.
	Sync() error

	Close() error
}

// PartialStore defines the filesystem operations behind a download
type PartialStore interface {
	// BaseDir returns the real path of the base directory
	BaseDir() string

	// Resolve proves relPath stays under the base directory and creates
	// missing parent directories
	Resolve(relPath string) (domain.ResolvedPath, error)

	// Decide inspects target and staging files; no network access
	Decide(rp domain.ResolvedPath, expectedSize int64) (domain.Decision, error)

	// OpenStaging opens the staging file for append at offset.
	// Offset 0 does not truncate until the writer is first written to.
	OpenStaging(rp domain.ResolvedPath, offset int64) (StagingWriter, error)

	// StagingInfo returns the staging file snapshot
	StagingInfo(rp domain.ResolvedPath) (domain.Snapshot, error)

	// Timestamp sets the staging file mtime to the server modification time
	Timestamp(rp domain.ResolvedPath, mtime time.Time) error

	// DiscardIfStale removes the staging file unless it holds at least keepBytes
	// Returns true if the file was removed
	DiscardIfStale(rp domain.ResolvedPath, keepBytes int64) (bool, error)

	// Promote atomically renames the staging file to the target
	Promote(rp domain.ResolvedPath, verifiedSize int64, snap domain.Snapshot) error

	// Remove deletes the staging file
	Remove(rp domain.ResolvedPath) error

	// RemoveIfEmpty deletes the staging file if it holds zero bytes
	RemoveIfEmpty(rp domain.ResolvedPath) (bool, error)

	// EnsureSpace fails with domain.ErrInsufficientSpace if needed bytes do
	// not fit on the base directory's filesystem
	EnsureSpace(needed int64) error

	// CleanOldPartFiles removes staging files older than the specified duration
	// Returns the number of files deleted
	CleanOldPartFiles(olderThan time.Duration) (int, error)
}

// PartCleaner removes abandoned staging files
type PartCleaner interface {
	CleanOldPartFiles(olderThan time.Duration) (int, error)
}
