package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestConnector_Files(t *testing.T) {
	t.Run("lists visible files recursively in order", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "b.txt"), "b")
		writeFile(t, filepath.Join(dir, "a.md"), "# a")
		writeFile(t, filepath.Join(dir, "sub", "c.html"), "<p>c</p>")
		writeFile(t, filepath.Join(dir, ".hidden.txt"), "hidden")
		writeFile(t, filepath.Join(dir, ".git", "config"), "hidden")

		files, err := New(dir).Files(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []string{
			filepath.Join(dir, "a.md"),
			filepath.Join(dir, "b.txt"),
			filepath.Join(dir, "sub", "c.html"),
		}, files)
	})

	t.Run("single file root", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "one.txt")
		writeFile(t, path, "one")

		files, err := New(path).Files(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{path}, files)
	})

	t.Run("non-existent path", func(t *testing.T) {
		_, err := New("/non/existent/path").Files(context.Background())
		assert.ErrorContains(t, err, "does not exist")
	})

	t.Run("cancelled context", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "a.txt"), "a")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := New(dir).Files(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{".hidden", true},
		{"path/to/.hidden", true},
		{"dir/.git/config", true},
		{"/home/user/.ssh/id_rsa", true},
		{"visible.txt", false},
		{"path/to/file.txt", false},
		{".", false},
		{"../up/file.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, isHidden(tt.path))
		})
	}
}

func TestHandleFsEvent(t *testing.T) {
	tests := []struct {
		name         string
		setupFile    bool
		setupDir     bool
		hidden       bool
		operation    fsnotify.Op
		expectedType ChangeType
	}{
		{name: "create file", setupFile: true, operation: fsnotify.Create, expectedType: ChangeCreated},
		{name: "write file", setupFile: true, operation: fsnotify.Write, expectedType: ChangeUpdated},
		{name: "write and chmod", setupFile: true, operation: fsnotify.Write | fsnotify.Chmod, expectedType: ChangeUpdated},
		{name: "remove file", operation: fsnotify.Remove, expectedType: ChangeDeleted},
		{name: "rename file", operation: fsnotify.Rename, expectedType: ChangeDeleted},
		{name: "chmod only", setupFile: true, operation: fsnotify.Chmod},
		{name: "create directory", setupDir: true, operation: fsnotify.Create},
		{name: "hidden file", setupFile: true, hidden: true, operation: fsnotify.Create},
		{name: "hidden remove", hidden: true, operation: fsnotify.Remove},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			name := "test.txt"
			if tt.hidden {
				name = ".hidden.txt"
			}
			path := filepath.Join(dir, name)
			switch {
			case tt.setupDir:
				require.NoError(t, os.Mkdir(path, 0755))
			case tt.setupFile:
				writeFile(t, path, "content")
			}

			change := New(dir).handleFsEvent(fsnotify.Event{Name: path, Op: tt.operation})

			if tt.expectedType == "" {
				assert.Nil(t, change)
				return
			}
			require.NotNil(t, change)
			assert.Equal(t, tt.expectedType, change.Type)
			assert.Equal(t, path, change.Path)
		})
	}

	t.Run("single file root ignores siblings", func(t *testing.T) {
		dir := t.TempDir()
		root := filepath.Join(dir, "root.txt")
		sibling := filepath.Join(dir, "other.txt")
		writeFile(t, root, "r")
		writeFile(t, sibling, "s")

		c := New(root)
		assert.Nil(t, c.handleFsEvent(fsnotify.Event{Name: sibling, Op: fsnotify.Write}))
		assert.NotNil(t, c.handleFsEvent(fsnotify.Event{Name: root, Op: fsnotify.Write}))
	})
}

func TestConnector_Watch(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := c.Watch(ctx)
	require.NoError(t, err)

	_, err = c.Watch(ctx)
	assert.Error(t, err, "a connector watches once")

	path := filepath.Join(dir, "new-file.txt")
	writeFile(t, path, "content")

	select {
	case change := <-changes:
		assert.Equal(t, path, change.Path)
		assert.Contains(t, []ChangeType{ChangeCreated, ChangeUpdated}, change.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for file change event")
	}

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Watch(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
