package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/printhost/internal/logging"
	"github.com/muurk/printhost/internal/settings"
)

// FileStorage is a settings.Storage backed by a single file
type FileStorage struct {
	path   string
	format Format

	// mu serializes file operations
	mu sync.Mutex
}

// NewFileStorage creates a storage for path. The format follows the extension.
func NewFileStorage(path string) (*FileStorage, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	return &FileStorage{path: path, format: format}, nil
}

// Path returns the settings file path
func (f *FileStorage) Path() string {
	return f.path
}

// Format returns the file format
func (f *FileStorage) Format() Format {
	return f.format
}

// Load reads the settings file. A missing file yields an empty tree.
func (f *FileStorage) Load(ctx context.Context) (settings.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		logging.Debug("Settings file does not exist yet", zap.String("path", f.path))
		return settings.Tree{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	tree, err := f.format.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}
	return tree, nil
}

// Save writes the tree atomically
func (f *FileStorage) Save(ctx context.Context, tree settings.Tree) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.format.Encode(tree, f.header())
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	// Write to a temporary file in the same directory first so the rename is atomic
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary settings file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temporary settings file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temporary settings file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		cleanup()
		return fmt.Errorf("failed to set settings file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary settings file: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save settings file: %w", err)
	}

	logging.Debug("Settings file written",
		zap.String("path", f.path),
		zap.String("format", f.format.String()),
		zap.Int("bytes", len(data)),
	)
	return nil
}

func (f *FileStorage) header() string {
	return "printhost settings file\n" +
		"Only values that differ from the built-in defaults are stored here.\n" +
		"Edits made while the server runs are picked up automatically.\n" +
		"\n" +
		"Location: " + f.path
}
