package filesystem

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/vertextoedge/halftunes/internal/port"
)

const (
	tempSuffix      = ".downloading"
	maxNameLength   = 64
	defaultFileName = "preview"
)

// Manager handles local filesystem operations
type Manager struct {
	rootDir string
}

// Ensure Manager implements port.Storage
var _ port.Storage = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(rootDir string) (*Manager, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("storage root dir is required")
	}
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root dir: %w", err)
	}

	return &Manager{rootDir: rootDir}, nil
}

// RootDir returns the storage root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// PathFor returns <root>/<hh>/<sha1>-<name> where hh is the first byte of
// the identity hash. Distinct identities never share a path.
func (m *Manager) PathFor(id string) string {
	sum := sha1.Sum([]byte(id))
	digest := hex.EncodeToString(sum[:])
	return filepath.Join(m.rootDir, digest[:2], digest+"-"+fileNameFor(id))
}

// TempPath returns the partial-data path for one fetch attempt
func (m *Manager) TempPath(id, attempt string) string {
	return m.PathFor(id) + "." + attempt + tempSuffix
}

// EnsureDir ensures the directory for a file path exists
func (m *Manager) EnsureDir(filePath string) error {
	return os.MkdirAll(filepath.Dir(filePath), 0755)
}

// OpenTemp opens a temp file for writing
func (m *Manager) OpenTemp(tempPath string, resume bool) (*os.File, int64, error) {
	if err := m.EnsureDir(tempPath); err != nil {
		return nil, 0, fmt.Errorf("failed to create parent dir: %w", err)
	}

	if resume {
		if info, err := os.Stat(tempPath); err == nil {
			f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to open temp file for resume: %w", err)
			}
			return f, info.Size(), nil
		}
	}

	f, err := os.Create(tempPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	return f, 0, nil
}

// Persist renames a completed temp file to the final path for id,
// replacing any earlier copy.
func (m *Manager) Persist(id, tempPath string) (string, int64, error) {
	info, err := os.Stat(tempPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat temp file: %w", err)
	}

	finalPath := m.PathFor(id)
	if err := m.EnsureDir(finalPath); err != nil {
		return "", 0, fmt.Errorf("failed to create parent dir: %w", err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return finalPath, info.Size(), nil
}

// DeleteFile removes a stored file
func (m *Manager) DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// FileExists checks if a stored file exists
func (m *Manager) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetTempFileInfo returns size and modification time of a temp file
// Returns error if file does not exist
func (m *Manager) GetTempFileInfo(tempPath string) (int64, time.Time, error) {
	info, err := os.Stat(tempPath)
	if err != nil {
		return 0, time.Time{}, err
	}
	return info.Size(), info.ModTime(), nil
}

// DeleteTempFile removes a temporary file
func (m *Manager) DeleteTempFile(tempPath string) error {
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete temp file: %w", err)
	}
	return nil
}

// GetCacheSize returns total size of stored files, temp files excluded
func (m *Manager) GetCacheSize() (int64, error) {
	var size int64
	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && !strings.HasSuffix(path, tempSuffix) {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// CleanOldTempFiles removes temp files older than the specified duration.
// Temp files of any attempt of the keep identities are left in place.
func (m *Manager) CleanOldTempFiles(olderThan time.Duration, keep ...string) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	owners := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		owners[m.PathFor(id)] = struct{}{}
	}

	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, tempSuffix) || !info.ModTime().Before(threshold) {
			return nil
		}
		if _, ok := owners[tempOwner(path)]; ok {
			return nil
		}
		if removeErr := os.Remove(path); removeErr == nil {
			count++
		}
		return nil
	})
	return count, err
}

// tempOwner strips the attempt and suffix from a temp path, leaving the
// final path of the identity it belongs to
func tempOwner(tempPath string) string {
	base := strings.TrimSuffix(tempPath, tempSuffix)
	if i := strings.LastIndex(base, "."); i > 0 {
		return base[:i]
	}
	return base
}

// fileNameFor returns a filesystem-safe version of the identity's last
// URL path component
func fileNameFor(id string) string {
	name := ""
	if u, err := url.Parse(id); err == nil && u.Path != "" {
		name = path.Base(u.Path)
	}
	if name == "" || name == "/" || name == "." {
		return defaultFileName
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	safe := strings.TrimLeft(b.String(), ".")
	if safe == "" {
		return defaultFileName
	}
	if len(safe) > maxNameLength {
		safe = safe[len(safe)-maxNameLength:]
	}
	return safe
}
