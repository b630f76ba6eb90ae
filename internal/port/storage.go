package port

import (
	"os"
	"time"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// Storage places transfer bytes on the local filesystem. Every path is
// derived from the transfer identity alone.
type Storage interface {
	// RootDir returns the storage root directory
	RootDir() string

	// PathFor returns the final location for a transfer identity
	PathFor(id string) string

	// TempPath returns the partial-data location for one fetch attempt
	TempPath(id, attempt string) string

	// OpenTemp opens a temp file for writing. With resume set an existing
	// file is opened for append and its size returned; otherwise the file
	// is created or truncated.
	OpenTemp(tempPath string, resume bool) (*os.File, int64, error)

	// Persist moves a completed temp file to the final location for id
	// Returns: final path, size, error
	Persist(id, tempPath string) (string, int64, error)

	// DeleteFile removes a stored file
	DeleteFile(path string) error

	// FileExists checks if a stored file exists
	FileExists(path string) bool

	// GetTempFileInfo returns size and modification time of a temp file
	GetTempFileInfo(tempPath string) (int64, time.Time, error)

	// DeleteTempFile removes a temporary file
	DeleteTempFile(tempPath string) error

	// GetCacheSize returns total size of stored files
	GetCacheSize() (int64, error)

	// GetDiskUsage returns disk usage statistics
	GetDiskUsage() (*DiskUsage, error)

	// CleanOldTempFiles removes temp files older than the specified duration,
	// except those belonging to the keep identities.
	// Returns the number of files deleted
	CleanOldTempFiles(olderThan time.Duration, keep ...string) (int, error)
}
