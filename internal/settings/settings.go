package settings

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/muurk/printhost/internal/logging"
)

// Settings is the settings engine: compiled-in defaults, a persisted
// override layer on top, typed accessors and transactional writes.
type Settings struct {
	defaults Tree
	storage  Storage
	obf      Obfuscator
	log      *zap.Logger
	metrics  *metrics
	reg      prometheus.Registerer

	// txMu serializes writers; mu guards the published overrides pointer
	txMu      sync.Mutex
	mu        sync.RWMutex
	overrides Tree
	dirty     bool

	watchMu  sync.Mutex
	watchers []boolWatcher

	coercions atomic.Int64
}

type boolWatcher struct {
	path Path
	fn   func(old, new bool)
}

// Option configures a Settings
type Option func(*Settings)

// WithDefaults replaces the compiled-in default tree
func WithDefaults(defaults Tree) Option {
	return func(s *Settings) {
		s.defaults = defaults
	}
}

// WithExtraDefaults merges extra on top of the default tree. Extensions use
// it to contribute their plugins.<id> sub-trees.
func WithExtraDefaults(extra Tree) Option {
	return func(s *Settings) {
		s.defaults = Merge(s.defaults, extra)
	}
}

// WithObfuscator sets the codec used by SetEncrypted
func WithObfuscator(obf Obfuscator) Option {
	return func(s *Settings) {
		s.obf = obf
	}
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(s *Settings) {
		s.log = log
	}
}

// WithRegisterer registers the engine's Prometheus collectors on reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Settings) {
		s.reg = reg
	}
}

// New creates a Settings over storage. Call Load before use.
func New(storage Storage, opts ...Option) (*Settings, error) {
	s := &Settings{
		defaults:  DefaultTree(),
		storage:   storage,
		obf:       Base64Obfuscator{},
		overrides: Tree{},
		metrics:   newMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Named("settings")
	}

	defaults, err := NormalizeTree(s.defaults)
	if err != nil {
		return nil, fmt.Errorf("invalid default settings: %w", err)
	}
	s.defaults = defaults

	if s.reg != nil {
		if err := s.metrics.register(s.reg); err != nil {
			return nil, fmt.Errorf("failed to register settings metrics: %w", err)
		}
	}
	return s, nil
}

// Load reads the override layer from storage. Watchers are not notified;
// callers apply the loaded state themselves.
func (s *Settings) Load(ctx context.Context) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tree, err := s.loadStorage(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.overrides = tree
	s.dirty = false
	s.mu.Unlock()

	s.log.Info("Settings loaded", zap.Int("top_level_overrides", len(tree)))
	return nil
}

func (s *Settings) loadStorage(ctx context.Context) (Tree, error) {
	raw, err := s.storage.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	tree, err := NormalizeTree(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return tree, nil
}

// Snapshot returns a consistent read-only view of the current settings
func (s *Settings) Snapshot() *View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &View{defaults: s.defaults, overrides: s.overrides, obf: s.obf}
}

// Transact runs fn against a staged copy of the overrides. If fn fails,
// every staged write is discarded and its error returned. Otherwise the
// staged tree is published, persisted when anything changed, and boolean
// watchers fire once with the values from before and after the transaction.
//
// changed is true when the effective settings changed or a pending commit
// was flushed. On a persistence failure the in-memory state keeps the new
// values and a *PersistenceError is returned.
func (s *Settings) Transact(ctx context.Context, fn func(tx *Tx) error) (changed bool, err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	before := s.Snapshot()
	tx := newTx(s, s.defaults, before.overrides)

	if err := fn(tx); err != nil {
		tx.Seal()
		s.metrics.rollbacks.Inc()
		s.log.Warn("Settings transaction rolled back", zap.Error(err))
		return false, err
	}
	tx.Seal()

	tx.mu.Lock()
	staged, txChanged := tx.staged, tx.changed
	tx.mu.Unlock()

	if txChanged && !Equal(before.overrides, staged) {
		s.mu.Lock()
		s.overrides = staged
		s.dirty = true
		s.mu.Unlock()
		s.metrics.commits.Inc()
		changed = true
	}

	saved, err := s.saveLocked(ctx)
	s.notify(before, s.Snapshot())
	if err != nil {
		return changed, err
	}
	return changed || saved, nil
}

// Save persists the override layer if it has uncommitted changes. It
// reports whether anything was written; a second call without intervening
// changes is a no-op.
func (s *Settings) Save(ctx context.Context) (bool, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.saveLocked(ctx)
}

func (s *Settings) saveLocked(ctx context.Context) (bool, error) {
	s.mu.RLock()
	dirty, snapshot := s.dirty, s.overrides
	s.mu.RUnlock()

	if !dirty {
		return false, nil
	}

	if err := s.storage.Save(ctx, snapshot); err != nil {
		s.metrics.saves.WithLabelValues("error").Inc()
		s.log.Error("Failed to save settings", zap.Error(err))
		return false, &PersistenceError{Err: err}
	}

	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	s.metrics.saves.WithLabelValues("ok").Inc()
	s.log.Info("Settings saved")
	return true, nil
}

// Dirty reports whether there are changes not yet persisted
func (s *Settings) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Reload re-reads storage and replaces the override layer when it differs
// from the current one, notifying boolean watchers. It reports whether the
// overrides changed. Nothing is reloaded while applied changes are still
// unsaved.
func (s *Settings) Reload(ctx context.Context) (bool, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if s.Dirty() {
		s.log.Warn("Skipping settings reload, unsaved changes pending")
		return false, nil
	}

	tree, err := s.loadStorage(ctx)
	if err != nil {
		return false, err
	}

	before := s.Snapshot()
	if Equal(before.overrides, tree) {
		return false, nil
	}

	s.mu.Lock()
	s.overrides = tree
	s.dirty = false
	s.mu.Unlock()
	s.metrics.reloads.Inc()
	s.log.Info("Settings reloaded from storage")

	s.notify(before, s.Snapshot())
	return true, nil
}

// Close flushes pending changes
func (s *Settings) Close(ctx context.Context) error {
	_, err := s.Save(ctx)
	return err
}

// WatchBoolean registers fn to be called when the effective boolean at p
// differs between the start and the end of a transaction or reload.
// Intermediate writes within one transaction are not observed.
func (s *Settings) WatchBoolean(p Path, fn func(old, new bool)) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.watchers = append(s.watchers, boolWatcher{path: p.Child(), fn: fn})
}

func (s *Settings) notify(before, after *View) {
	s.watchMu.Lock()
	watchers := append([]boolWatcher(nil), s.watchers...)
	s.watchMu.Unlock()

	for _, w := range watchers {
		old, updated := before.GetBoolean(w.path), after.GetBoolean(w.path)
		if old != updated {
			s.log.Debug("Boolean setting transitioned",
				zap.Stringer("path", w.path),
				zap.Bool("old", old),
				zap.Bool("new", updated),
			)
			w.fn(old, updated)
		}
	}
}

// CoercionFailures returns how many typed setter calls failed to coerce
func (s *Settings) CoercionFailures() int64 {
	return s.coercions.Load()
}

func (s *Settings) coercionFailed(p Path, kind string, v any) error {
	s.coercions.Add(1)
	s.metrics.coercionFailures.WithLabelValues(kind).Inc()
	s.log.Warn("Ignoring uncoercible setting value",
		zap.Stringer("path", p),
		zap.String("kind", kind),
		zap.Any("value", v),
	)
	return &CoercionError{Path: p.Child(), Kind: kind, Value: v}
}

// Defaults returns a copy of the default tree
func (s *Settings) Defaults() Tree {
	return Clone(s.defaults)
}

// Get reads the current effective value at p
func (s *Settings) Get(p Path) any {
	return s.Snapshot().Get(p)
}

// GetBoolean reads the current effective boolean at p
func (s *Settings) GetBoolean(p Path) bool {
	return s.Snapshot().GetBoolean(p)
}

// GetInt reads the current effective int at p
func (s *Settings) GetInt(p Path) int {
	return s.Snapshot().GetInt(p)
}

// GetFloat reads the current effective float at p
func (s *Settings) GetFloat(p Path) float64 {
	return s.Snapshot().GetFloat(p)
}

// GetString reads the current effective string at p
func (s *Settings) GetString(p Path) string {
	return s.Snapshot().GetString(p)
}
