// Package spill manages the numbered temporary run files an external
// sort writes when its in-core buffer fills.
package spill

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/segmentio/ksuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Registry owns an exclusive directory of run files.  Runs are named
// by dense integer ids in creation order.  Concurrent engines get
// disjoint directories, so removal never races another process.
type Registry struct {
	dir    string
	logger *zap.Logger
	paths  []string // indexed by run id, empty once removed
}

// NewRegistry creates the registry's directory under tempDir, which
// must exist.  An empty tempDir means the system temp directory.
func NewRegistry(tempDir string, logger *zap.Logger) (*Registry, error) {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Join(tempDir, "flowseam-"+ksuid.New().String())
	if err := os.Mkdir(dir, 0700); err != nil {
		return nil, fmt.Errorf("spill directory: %w", err)
	}
	logger.Debug("spill directory created", zap.String("dir", dir))
	return &Registry{dir: dir, logger: logger}, nil
}

// Dir returns the registry's directory, or the empty string after
// Cleanup.
func (r *Registry) Dir() string {
	return r.dir
}

// Create opens a new run for writing and returns its id.
func (r *Registry) Create() (*RunWriter, int, error) {
	id := len(r.paths)
	path := filepath.Join(r.dir, fmt.Sprintf("run-%04d.sf", id))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, -1, err
	}
	r.paths = append(r.paths, path)
	r.logger.Debug("run created", zap.Int("run", id), zap.String("path", path))
	return newRunWriter(id, f), id, nil
}

// Open opens run id for reading with its lookahead primed.  Resource
// exhaustion such as EMFILE surfaces in the returned error's wrap
// chain for the caller to test.
func (r *Registry) Open(id int) (*RunReader, error) {
	path, err := r.path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rr, err := newRunReader(id, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return rr, nil
}

// Remove deletes run id's file.  Removing a run twice is not an error.
func (r *Registry) Remove(id int) error {
	path, err := r.path(id)
	if err != nil {
		return err
	}
	if path == "" {
		return nil
	}
	r.paths[id] = ""
	r.logger.Debug("run removed", zap.Int("run", id))
	return os.Remove(path)
}

func (r *Registry) path(id int) (string, error) {
	if id < 0 || id >= len(r.paths) {
		return "", fmt.Errorf("unknown run %d", id)
	}
	return r.paths[id], nil
}

// Cleanup removes any surviving runs and the registry directory.  It
// is safe to call more than once and after partial failures.
func (r *Registry) Cleanup() error {
	if r.dir == "" {
		return nil
	}
	var err error
	for id, path := range r.paths {
		if path == "" {
			continue
		}
		r.paths[id] = ""
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = multierr.Append(err, rmErr)
		}
	}
	if rmErr := os.Remove(r.dir); rmErr != nil && !os.IsNotExist(rmErr) {
		err = multierr.Append(err, rmErr)
	}
	r.logger.Debug("spill directory removed", zap.String("dir", r.dir), zap.Error(err))
	r.dir = ""
	return err
}
