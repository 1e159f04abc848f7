package metamodel

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

// Loader reads the model file and re-parses it only when its modification
// time or size changes.
type Loader struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	size    int64
	model   *Model
	err     error
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

func (l *Loader) Path() string { return l.path }

// Load returns the current model. A missing path or file yields (nil, nil);
// an invalid file yields (nil, err) until the file changes.
func (l *Loader) Load() (*Model, error) {
	if l.path == "" {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := os.Stat(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		l.reset()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat model: %w", err)
	}
	if l.size == info.Size() && l.modTime.Equal(info.ModTime()) && (l.model != nil || l.err != nil) {
		return l.model, l.err
	}

	l.modTime, l.size = info.ModTime(), info.Size()
	data, err := os.ReadFile(l.path)
	if err != nil {
		l.model, l.err = nil, fmt.Errorf("read model: %w", err)
		return nil, l.err
	}
	l.model, l.err = Parse(data)
	return l.model, l.err
}

func (l *Loader) reset() {
	l.modTime, l.size, l.model, l.err = time.Time{}, 0, nil, nil
}
