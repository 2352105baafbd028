package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/muurk/printhost/internal/logging"
	"github.com/muurk/printhost/internal/settings"
)

// DefaultHookTimeout bounds every hook call unless WithHookTimeout says otherwise
const DefaultHookTimeout = 5 * time.Second

const (
	hookLoad = "on_settings_load"
	hookSave = "on_settings_save"
)

// Registry is the explicit table of loaded extensions
type Registry struct {
	plugins *xsync.MapOf[string, Plugin]
	timeout time.Duration
	log     *zap.Logger
	reg     prometheus.Registerer
	metrics *metrics

	mu    sync.Mutex
	order []string
}

// Option configures a Registry
type Option func(*Registry)

// WithHookTimeout sets the maximum duration of a single hook call
func WithHookTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.timeout = d
	}
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

// WithRegisterer registers the hook counters on reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Registry) {
		r.reg = reg
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{
		plugins: xsync.NewMapOf[string, Plugin](),
		timeout: DefaultHookTimeout,
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logging.Named("plugin")
	}
	if r.timeout <= 0 {
		r.timeout = DefaultHookTimeout
	}
	if r.reg != nil {
		if err := r.reg.Register(r.metrics.hooks); err != nil {
			return nil, fmt.Errorf("failed to register plugin metrics: %w", err)
		}
	}
	return r, nil
}

// Register adds p to the table
func (r *Registry) Register(p Plugin) error {
	id := p.Identifier()
	if id == "" || strings.Contains(id, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	if _, loaded := r.plugins.LoadOrStore(id, p); loaded {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, id)
	}

	r.mu.Lock()
	r.order = append(r.order, id)
	sort.Strings(r.order)
	r.mu.Unlock()

	r.log.Info("Plugin registered", zap.String("plugin", id))
	return nil
}

// Lookup returns the plugin registered under id
func (r *Registry) Lookup(id string) (Plugin, bool) {
	return r.plugins.Load(id)
}

// Plugins returns every registered plugin ordered by identifier
func (r *Registry) Plugins() []Plugin {
	r.mu.Lock()
	ids := append([]string(nil), r.order...)
	r.mu.Unlock()

	out := make([]Plugin, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.plugins.Load(id); ok {
			out = append(out, p)
		}
	}
	return out
}

// Defaults returns the plugins.<id> default sub-trees, ready for
// settings.WithExtraDefaults
func (r *Registry) Defaults() settings.Tree {
	section := settings.Tree{}
	for _, p := range r.Plugins() {
		d, ok := p.(SettingsDefaulter)
		if !ok {
			continue
		}
		if defaults := d.SettingsDefaults(); defaults != nil {
			section[p.Identifier()] = settings.Clone(defaults)
		}
	}
	return settings.Tree{settings.PathPlugins[0]: section}
}

// CollectSettings calls every loader once against view and returns the
// contributions keyed by identifier. Failed, timed-out and empty
// contributions are left out.
func (r *Registry) CollectSettings(ctx context.Context, view *settings.View) map[string]any {
	out := make(map[string]any)
	for _, p := range r.Plugins() {
		loader, ok := p.(SettingsLoader)
		if !ok {
			continue
		}
		id := p.Identifier()
		scoped := view.Scope(settings.PathPlugins.Child(id))

		result, err := runHook(ctx, r.timeout, id, hookLoad, func(ctx context.Context) (map[string]any, error) {
			return loader.OnSettingsLoad(ctx, scoped)
		})
		r.observe(id, hookLoad, err)
		if err != nil || len(result) == 0 {
			continue
		}

		delete(result, "__enabled")
		out[id] = result
	}
	return out
}

// DispatchSave hands each registered saver named in payload its
// sub-payload. Every hook runs on a fork of tx scoped to plugins.<id>; the
// fork is adopted when the hook succeeds and sealed otherwise. The returned
// errors are informational: they have already been logged and counted.
func (r *Registry) DispatchSave(ctx context.Context, tx *settings.Tx, payload map[string]any) []error {
	var failures []error
	for _, id := range settings.Keys(payload) {
		p, ok := r.plugins.Load(id)
		if !ok {
			r.log.Debug("Ignoring settings for unknown plugin", zap.String("plugin", id))
			continue
		}
		saver, ok := p.(SettingsSaver)
		if !ok {
			continue
		}

		data, ok := payload[id].(map[string]any)
		if !ok {
			err := &HookError{Plugin: id, Hook: hookSave, Err: ErrInvalidPayload}
			r.observe(id, hookSave, err)
			failures = append(failures, err)
			continue
		}

		fork := tx.Fork()
		scoped := fork.Scope(settings.PathPlugins.Child(id))
		copied := settings.Clone(data)

		_, err := runHook(ctx, r.timeout, id, hookSave, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, saver.OnSettingsSave(ctx, scoped, copied)
		})
		if err != nil {
			fork.Seal()
		} else if adoptErr := tx.Adopt(fork); adoptErr != nil {
			err = &HookError{Plugin: id, Hook: hookSave, Err: adoptErr}
		}
		r.observe(id, hookSave, err)
		if err != nil {
			failures = append(failures, err)
		}
	}
	return failures
}

func (r *Registry) observe(id, hook string, err error) {
	r.metrics.observe(hook, err)

	switch {
	case err == nil:
		return
	case IsTimeout(err):
		r.log.Warn("Plugin hook timed out",
			zap.String("plugin", id),
			zap.String("hook", hook),
			zap.Duration("timeout", r.timeout),
		)
	default:
		r.log.Error("Plugin hook failed",
			zap.String("plugin", id),
			zap.String("hook", hook),
			zap.Error(err),
		)
	}
}

type hookResult[T any] struct {
	value T
	err   error
}

// runHook calls fn with a deadline and reports any failure as a *HookError.
// A panic in fn counts as a failure. On timeout fn keeps running but its
// result is discarded.
func runHook[T any](ctx context.Context, timeout time.Duration, id, hook string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan hookResult[T], 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- hookResult[T]{err: fmt.Errorf("%w: %v", ErrHookPanic, rec)}
			}
		}()
		value, err := fn(ctx)
		done <- hookResult[T]{value: value, err: err}
	}()

	var zero T
	select {
	case res := <-done:
		if res.err != nil {
			return zero, &HookError{Plugin: id, Hook: hook, Err: res.err}
		}
		return res.value, nil
	case <-ctx.Done():
		return zero, &HookError{
			Plugin:  id,
			Hook:    hook,
			Err:     ctx.Err(),
			Timeout: errors.Is(ctx.Err(), context.DeadlineExceeded),
		}
	}
}
