package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	logx "github.com/luminalab/datagen/pkg/logger"
)

// Manager is the persistent code-execution environment shared by the Coder,
// Visualization, Search and Refiner nodes. It is owned by the workflow run as a
// whole and released exactly once by the terminal Cleanup node.
type Manager interface {
	// ListFiles returns the names of all files currently in the workspace.
	ListFiles(ctx context.Context) ([]string, error)

	// ReadFile returns the file contents and whether the file exists.
	ReadFile(ctx context.Context, name string) ([]byte, bool, error)

	// WriteFile creates or overwrites a workspace file.
	WriteFile(ctx context.Context, name string, data []byte) error

	// Execute runs a shell command inside the workspace and returns its
	// combined output.
	Execute(ctx context.Context, command string) (string, error)

	// Cleanup releases the environment. It must be safe to call more than
	// once; only the first call does work.
	Cleanup(ctx context.Context) error
}

// Local is a workspace-directory implementation of Manager. Commands run with
// the workspace as their working directory.
type Local struct {
	dir string

	mu       sync.Mutex
	released bool
}

// NewLocal creates (if needed) and wraps a workspace directory.
func NewLocal(dir string) (*Local, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("sandbox workspace dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox workspace: %w", err)
	}
	return &Local{dir: dir}, nil
}

// Dir returns the workspace path.
func (l *Local) Dir() string {
	return l.dir
}

func (l *Local) ListFiles(ctx context.Context) ([]string, error) {
	if err := l.guard(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list sandbox files: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (l *Local) ReadFile(ctx context.Context, name string) ([]byte, bool, error) {
	if err := l.guard(); err != nil {
		return nil, false, err
	}
	path, err := l.safePath(name)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read sandbox file %q: %w", name, err)
	}
	return data, true, nil
}

func (l *Local) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := l.guard(); err != nil {
		return err
	}
	path, err := l.safePath(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sandbox file %q: %w", name, err)
	}
	return nil
}

func (l *Local) Execute(ctx context.Context, command string) (string, error) {
	if err := l.guard(); err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = l.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		// The output usually carries the diagnostic the agent needs.
		return string(out), fmt.Errorf("execute %q: %w", command, err)
	}
	return string(out), nil
}

// Cleanup removes the workspace directory. Subsequent calls are no-ops.
func (l *Local) Cleanup(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true
	if err := os.RemoveAll(l.dir); err != nil {
		return fmt.Errorf("remove sandbox workspace: %w", err)
	}
	logx.Debug().Str("dir", l.dir).Msg("Sandbox workspace released")
	return nil
}

func (l *Local) guard() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return fmt.Errorf("sandbox already released")
	}
	return nil
}

// safePath confines file access to the workspace directory.
func (l *Local) safePath(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("file name is empty")
	}
	if filepath.IsAbs(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("file name %q escapes the workspace", name)
	}
	return filepath.Join(l.dir, name), nil
}

var _ Manager = (*Local)(nil)
