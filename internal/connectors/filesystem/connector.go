// Package filesystem lists and watches local files for ingestion.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/jam/internal/logger"
)

// ChangeType identifies what happened to a watched file.
type ChangeType string

const (
	// ChangeCreated is a new file.
	ChangeCreated ChangeType = "created"
	// ChangeUpdated is a file whose content was written.
	ChangeUpdated ChangeType = "updated"
	// ChangeDeleted is a file that was removed or renamed away.
	ChangeDeleted ChangeType = "deleted"
)

// Change is a single file event.
type Change struct {
	Type ChangeType
	Path string
}

// ErrClosed is returned by Watch after Close.
var ErrClosed = errors.New("filesystem connector closed")

// Connector walks and watches the files under one root.
// Hidden files and directories are skipped.
type Connector struct {
	root string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// New creates a connector rooted at root. root may also name a single file.
func New(root string) *Connector {
	return &Connector{root: root}
}

// Root returns the path the connector was created with.
func (c *Connector) Root() string {
	return c.root
}

// Files returns every visible regular file under the root in lexical order.
func (c *Connector) Files(ctx context.Context) ([]string, error) {
	info, err := os.Stat(c.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("path does not exist: %s", c.root)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{c.root}, nil
	}

	var files []string
	err = filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path != c.root && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	logger.Debug("filesystem: %d files under %s", len(files), c.root)
	return files, nil
}

// Watch reports file changes under the root until ctx is done or the
// connector is closed. New subdirectories are watched as they appear.
func (c *Connector) Watch(ctx context.Context) (<-chan Change, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.watcher != nil {
		return nil, errors.New("filesystem connector is already watching")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := c.addTree(watcher, c.root); err != nil {
		watcher.Close()
		return nil, err
	}
	c.watcher = watcher

	changes := make(chan Change)
	go c.run(ctx, watcher, changes)
	return changes, nil
}

func (c *Connector) run(ctx context.Context, watcher *fsnotify.Watcher, changes chan<- Change) {
	defer close(changes)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !isHidden(filepath.Base(event.Name)) {
					if err := c.addTree(watcher, event.Name); err != nil {
						logger.Warn("filesystem: watch %s: %v", event.Name, err)
					}
				}
			}
			change := c.handleFsEvent(event)
			if change == nil {
				continue
			}
			select {
			case changes <- *change:
			case <-ctx.Done():
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("filesystem: watcher error: %v", err)
		}
	}
}

// addTree watches dir and every visible directory below it.
func (c *Connector) addTree(watcher *fsnotify.Watcher, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return watcher.Add(filepath.Dir(dir))
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// handleFsEvent maps an fsnotify event to a Change, or nil when the event
// is for a directory, a hidden path, a file outside a single-file root,
// or carries only a chmod.
func (c *Connector) handleFsEvent(event fsnotify.Event) *Change {
	base := c.root
	if info, err := os.Stat(c.root); err == nil && !info.IsDir() {
		if filepath.Clean(event.Name) != filepath.Clean(c.root) {
			return nil
		}
		base = filepath.Dir(c.root)
	}
	if rel, err := filepath.Rel(base, event.Name); err != nil || isHidden(rel) {
		return nil
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return &Change{Type: ChangeDeleted, Path: event.Name}
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		changeType := ChangeUpdated
		if event.Has(fsnotify.Create) {
			changeType = ChangeCreated
		}
		return &Change{Type: changeType, Path: event.Name}
	default:
		return nil
	}
}

// Close stops watching. It is safe to call more than once.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.watcher == nil {
		return nil
	}
	return c.watcher.Close()
}

// isHidden reports whether any element of path starts with a dot.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}
