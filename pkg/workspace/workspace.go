package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ErrWorkspaceUnavailable indicates a workspace directory could not be created.
var ErrWorkspaceUnavailable = errors.New("workspace unavailable")

// ErrInvalidFileName indicates a file name that would escape the workspace.
var ErrInvalidFileName = errors.New("invalid workspace file name")

// Manager allocates ephemeral evaluation directories under a root directory.
type Manager struct {
	root   string
	prefix string
}

// Workspace is a single evaluation directory owned by exactly one run.
type Workspace struct {
	dir string
}

// NewManager creates a manager rooted at root. An empty root falls back to the OS temp dir.
func NewManager(root, prefix string) *Manager {
	if strings.TrimSpace(root) == "" {
		root = os.TempDir()
	}
	if prefix == "" {
		prefix = "judge-"
	}
	return &Manager{root: root, prefix: prefix}
}

// Root returns the parent directory that holds every workspace.
func (m *Manager) Root() string {
	return m.root
}

// Acquire creates a new, uniquely named workspace directory.
func (m *Manager) Acquire() (*Workspace, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: prepare root: %v", ErrWorkspaceUnavailable, err)
	}

	dir, err := os.MkdirTemp(m.root, m.prefix+uuid.NewString()+"-")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspaceUnavailable, err)
	}

	return &Workspace{dir: dir}, nil
}

// Release removes the workspace tree. Every entry that cannot be removed is reported;
// removal continues past failures so the caller can always finalize its work.
func (m *Manager) Release(ws *Workspace) []error {
	if ws == nil || ws.dir == "" {
		return nil
	}

	if err := os.RemoveAll(ws.dir); err == nil {
		return nil
	}

	var paths []string
	var failures []error
	walkErr := filepath.WalkDir(ws.dir, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			failures = append(failures, fmt.Errorf("walk %s: %w", path, err))
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if walkErr != nil {
		failures = append(failures, walkErr)
	}

	// deepest entries first so directories are empty when we reach them
	sort.Slice(paths, func(i, j int) bool { return len(paths[i]) > len(paths[j]) })
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			failures = append(failures, fmt.Errorf("remove %s: %w", path, err))
		}
	}

	return failures
}

// Dir returns the absolute path of the workspace.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path resolves name inside the workspace.
func (w *Workspace) Path(name string) (string, error) {
	clean := filepath.Clean(name)
	if name == "" || filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	return filepath.Join(w.dir, clean), nil
}

// WriteFile materialises content as name inside the workspace.
func (w *Workspace) WriteFile(name, content string) (string, error) {
	path, err := w.Path(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}
