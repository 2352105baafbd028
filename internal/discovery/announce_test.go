package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/muurk/printhost/internal/events"
	"github.com/muurk/printhost/internal/plugin"
	"github.com/muurk/printhost/internal/settings"
	"github.com/muurk/printhost/internal/version"
)

type fakeZeroconf struct {
	mu        sync.Mutex
	err       error
	announced chan announcement
	shutdowns int
}

func newFakeZeroconf() *fakeZeroconf {
	return &fakeZeroconf{announced: make(chan announcement, 8)}
}

func (f *fakeZeroconf) register(name string, port int, text []string) (registration, error) {
	f.announced <- announcement{Name: name, Port: port, Text: text}
	if f.err != nil {
		return nil, f.err
	}
	return f, nil
}

func (f *fakeZeroconf) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
}

func (f *fakeZeroconf) Shutdowns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdowns
}

func (f *fakeZeroconf) next(t *testing.T) announcement {
	t.Helper()
	select {
	case a := <-f.announced:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("no announcement")
		return announcement{}
	}
}

func newAnnouncerEngine(t *testing.T, opts ...AnnouncerOption) (*Announcer, *plugin.Registry, *settings.Settings, *fakeZeroconf) {
	t.Helper()

	announcer := NewAnnouncer(5000, append([]AnnouncerOption{WithAnnouncerLogger(zap.NewNop())}, opts...)...)
	announcer.hostname = func() (string, error) { return "octopi.lan", nil }
	fake := newFakeZeroconf()
	announcer.register = fake.register

	reg, err := plugin.NewRegistry(plugin.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	require.NoError(t, reg.Register(announcer))

	engine, err := settings.New(settings.NewMemoryStorage(nil),
		settings.WithExtraDefaults(reg.Defaults()),
		settings.WithLogger(zap.NewNop()),
	)
	require.NoError(t, err)
	require.NoError(t, engine.Load(context.Background()))
	return announcer, reg, engine, fake
}

func TestAnnouncementDefaults(t *testing.T) {
	announcer, _, engine, _ := newAnnouncerEngine(t)

	got := announcer.announcement(engine)
	assert.Equal(t, "printhost on octopi", got.Name)
	assert.Equal(t, 5000, got.Port)
	assert.Equal(t, []string{"path=/", "version=" + version.Version}, got.Text)
}

func TestAnnouncementHostnameFailure(t *testing.T) {
	announcer, _, engine, _ := newAnnouncerEngine(t)
	announcer.hostname = func() (string, error) { return "", errors.New("no hostname") }

	assert.Equal(t, "printhost on unknown", announcer.announcement(engine).Name)
}

func TestSettingsSaveValidates(t *testing.T) {
	ctx := context.Background()
	announcer, reg, engine, _ := newAnnouncerEngine(t)

	for _, tc := range []struct {
		name    string
		payload map[string]any
		want    error
	}{
		{"port too large", map[string]any{"publicPort": 70000}, ErrInvalidPort},
		{"port not a number", map[string]any{"publicPort": "http"}, ErrInvalidPort},
		{"relative prefix", map[string]any{"pathPrefix": "printer"}, ErrInvalidPathPrefix},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Transact(ctx, func(tx *settings.Tx) error {
				errs := reg.DispatchSave(ctx, tx, map[string]any{PluginID: tc.payload})
				require.Len(t, errs, 1)
				assert.ErrorIs(t, errs[0], tc.want)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, 5000, announcer.announcement(engine).Port)
		})
	}

	_, err := engine.Transact(ctx, func(tx *settings.Tx) error {
		assert.Empty(t, reg.DispatchSave(ctx, tx, map[string]any{PluginID: map[string]any{
			"publicName": "Workshop",
			"publicPort": "8080",
			"pathPrefix": "/printer/",
		}}))
		return nil
	})
	require.NoError(t, err)

	got := announcer.announcement(engine)
	assert.Equal(t, "Workshop", got.Name)
	assert.Equal(t, 8080, got.Port)
	assert.Equal(t, "path=/printer/", got.Text[0])
	assert.Equal(t, 8080, engine.Snapshot().Get(settings.MustParsePath("plugins.discovery.publicPort")))
}

func TestTaskReannouncesOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus(events.WithBusLogger(zap.NewNop()))
	announcer, _, engine, fake := newAnnouncerEngine(t, WithBus(bus))

	done := make(chan error, 1)
	go func() { done <- announcer.Task(engine)(ctx) }()

	first := fake.next(t)
	assert.Equal(t, "printhost on octopi", first.Name)

	_, err := engine.Transact(ctx, func(tx *settings.Tx) error {
		return tx.Set(settings.MustParsePath("plugins.discovery.publicName"), "Workshop")
	})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, events.New(events.SettingsUpdated, nil)))

	second := fake.next(t)
	assert.Equal(t, "Workshop", second.Name)
	assert.Equal(t, 5000, second.Port)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not stop")
	}
	assert.Equal(t, 2, fake.Shutdowns())
	assert.Empty(t, fake.announced)
}

func TestTaskSurvivesRegistrationFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	announcer, _, engine, fake := newAnnouncerEngine(t)
	fake.err = errors.New("no multicast")

	done := make(chan error, 1)
	go func() { done <- announcer.Task(engine)(ctx) }()

	fake.next(t)
	select {
	case err := <-done:
		t.Fatalf("task stopped early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, fake.Shutdowns())
}
