// Package workspace allocates isolated on-disk working areas for a run.
//
// A run owns one root directory; every repository processed during the run
// gets its own subdirectory under that root. Workspaces are kept after the
// run so the operator can inspect what happened; cleanup only occurs when a
// caller asks for it.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// AllocationError reports a filesystem refusal while creating a workspace
// directory (permissions, disk full, path collisions that cannot be resolved).
type AllocationError struct {
	Path string
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("workspace allocation failed for %s: %v", e.Path, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// Manager creates run roots and per-repository subdirectories.
type Manager struct {
	// BaseDir is the parent for run roots. Empty means the system temp dir.
	BaseDir string
}

func NewManager(baseDir string) *Manager {
	return &Manager{BaseDir: baseDir}
}

// NewRunID returns a fresh identifier suitable for naming a run root.
func NewRunID() string {
	return uuid.NewString()
}

// Allocate creates and returns the root directory for one run.
func (m *Manager) Allocate(runID string) (string, error) {
	base := m.BaseDir
	if base == "" {
		base = os.TempDir()
	}
	root := filepath.Join(base, "roller-"+runID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", &AllocationError{Path: root, Err: err}
	}
	return root, nil
}

// AllocateRepoDir creates a unique subdirectory for one repository under a
// run root. Two repositories may share a derived name; the second and later
// callers get a numeric suffix. os.Mkdir is the atomicity guarantee here, so
// concurrent pipelines can allocate safely.
func (m *Manager) AllocateRepoDir(root, repoName string) (string, error) {
	const maxAttempts = 1000

	for i := 1; i <= maxAttempts; i++ {
		name := repoName
		if i > 1 {
			name = fmt.Sprintf("%s-%d", repoName, i)
		}
		dir := filepath.Join(root, name)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if os.IsExist(err) {
			continue
		}
		return "", &AllocationError{Path: dir, Err: err}
	}
	return "", &AllocationError{
		Path: filepath.Join(root, repoName),
		Err:  fmt.Errorf("no free directory name after %d attempts", maxAttempts),
	}
}

// Cleanup removes a run root and everything under it.
func (m *Manager) Cleanup(root string) error {
	if root == "" {
		return nil
	}
	return os.RemoveAll(root)
}
