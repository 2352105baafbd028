package scripts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/printhost/internal/logging"
)

// SnippetsName is the reserved per-category container of fragments
const SnippetsName = "snippets"

// CategoryGCode is the category of printer lifecycle scripts
const CategoryGCode = "gcode"

var (
	// ErrReservedName indicates an attempt to save a script named "snippets"
	ErrReservedName = errors.New("reserved script name")

	// ErrInvalidName indicates a category or name that is not a plain file name
	ErrInvalidName = errors.New("invalid script name")

	// ErrScriptNotFound indicates a script that is neither stored nor built in
	ErrScriptNotFound = errors.New("script not found")
)

// Store is a file-backed script store with compiled-in defaults
type Store struct {
	dir      string
	renderer Renderer
	defaults map[string]map[string]string
	snippets map[string]map[string]string
	log      *zap.Logger

	mu sync.RWMutex
}

// Option configures a Store
type Option func(*Store)

// WithRenderer replaces the template renderer
func WithRenderer(r Renderer) Option {
	return func(s *Store) {
		s.renderer = r
	}
}

// WithDefaults replaces the compiled-in scripts and snippets
func WithDefaults(scripts, snippets map[string]map[string]string) Option {
	return func(s *Store) {
		s.defaults = scripts
		s.snippets = snippets
	}
}

// NewStore creates a store rooted at dir
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:      dir,
		renderer: TemplateRenderer{},
		defaults: DefaultScripts(),
		snippets: DefaultSnippets(),
		log:      logging.Named("scripts"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the store's root directory
func (s *Store) Dir() string {
	return s.dir
}

// List returns the sorted names of all scripts in category, stored and
// built in. "snippets" is never included. A category without a directory
// is not an error.
func (s *Store) List(category string) ([]string, error) {
	if err := validName(category); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make(map[string]struct{})
	for name := range s.defaults[category] {
		names[name] = struct{}{}
	}

	stored, err := s.listFiles(filepath.Join(s.dir, category))
	if err != nil {
		return nil, err
	}
	for _, name := range stored {
		names[name] = struct{}{}
	}
	delete(names, SnippetsName)

	return sortedKeys(names), nil
}

// Load returns the raw source of a script: the stored file if present,
// else the built-in default
func (s *Store) Load(category, name string) (string, error) {
	if err := validName(category); err != nil {
		return "", err
	}
	if err := validName(name); err != nil {
		return "", err
	}
	if name == SnippetsName {
		return "", fmt.Errorf("%w: %s", ErrReservedName, name)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadLocked(filepath.Join(s.dir, category, name), s.defaults[category][name], category+"/"+name)
}

func (s *Store) loadLocked(path, fallback, label string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read script %s: %w", label, err)
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("%w: %s", ErrScriptNotFound, label)
}

// Save stores a script after normalizing line endings to LF. It reports
// whether the stored source changed.
func (s *Store) Save(category, name, content string) (bool, error) {
	if err := validName(category); err != nil {
		return false, err
	}
	if err := validName(name); err != nil {
		return false, err
	}
	if name == SnippetsName {
		return false, fmt.Errorf("%w: %s/%s", ErrReservedName, category, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(filepath.Join(s.dir, category), name, s.defaults[category][name], content)
}

// Snippets returns every snippet of category, stored and built in
func (s *Store) Snippets(category string) (map[string]string, error) {
	if err := validName(category); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snippetsLocked(category)
}

func (s *Store) snippetsLocked(category string) (map[string]string, error) {
	out := make(map[string]string)
	for name, src := range s.snippets[category] {
		out[name] = src
	}

	dir := filepath.Join(s.dir, category, SnippetsName)
	names, err := s.listFiles(dir)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read snippet %s/%s: %w", category, name, err)
		}
		out[name] = string(data)
	}
	return out, nil
}

// SaveSnippet stores a snippet of category, normalizing line endings
func (s *Store) SaveSnippet(category, name, content string) (bool, error) {
	if err := validName(category); err != nil {
		return false, err
	}
	if err := validName(name); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(filepath.Join(s.dir, category, SnippetsName), name, s.snippets[category][name], content)
}

// Render loads a script and executes it with vars
func (s *Store) Render(category, name string, vars map[string]any) (string, error) {
	source, err := s.Load(category, name)
	if err != nil {
		return "", err
	}
	snippets, err := s.Snippets(category)
	if err != nil {
		return "", err
	}
	return s.renderer.Render(category+"/"+name, source, snippets, vars)
}

func (s *Store) saveLocked(dir, name, fallback, content string) (bool, error) {
	content = NormalizeLineEndings(content)
	path := filepath.Join(dir, name)

	current, err := s.loadLocked(path, fallback, name)
	if err == nil && current == content {
		return false, nil
	}
	if err != nil && !errors.Is(err, ErrScriptNotFound) {
		return false, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create script directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("failed to write temporary script file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return false, fmt.Errorf("failed to save script: %w", err)
	}

	s.log.Info("Script saved", zap.String("path", path), zap.Int("bytes", len(content)))
	return true, nil
}

// listFiles returns the regular, non-hidden files in dir. A missing
// directory yields nothing.
func (s *Store) listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts in %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// NormalizeLineEndings converts CRLF and bare CR line endings to LF
func NormalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, `/\`) || strings.HasSuffix(name, ".tmp") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
