package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSettings(t *testing.T, initial Tree, opts ...Option) (*Settings, *MemoryStorage) {
	t.Helper()
	store := NewMemoryStorage(initial)
	s, err := New(store, opts...)
	require.NoError(t, err)
	require.NoError(t, s.Load(context.Background()))
	return s, store
}

var bitrate = Path{"webcam", "bitrate"}

func TestResolveFallsBackToDefaults(t *testing.T) {
	s, _ := newTestSettings(t, nil)

	val, origin := s.Snapshot().Resolve(bitrate)
	assert.Equal(t, "5000k", val)
	assert.Equal(t, OriginDefault, origin)

	_, origin = s.Snapshot().Resolve(Path{"webcam", "nope"})
	assert.Equal(t, OriginNone, origin)
}

func TestSetDoesNotMutateDefaults(t *testing.T) {
	s, _ := newTestSettings(t, nil)
	before := s.Snapshot()

	changed, err := s.Transact(context.Background(), func(tx *Tx) error {
		return tx.Set(bitrate, "8000k")
	})
	require.NoError(t, err)
	assert.True(t, changed)

	val, origin := s.Snapshot().Resolve(bitrate)
	assert.Equal(t, "8000k", val)
	assert.Equal(t, OriginOverride, origin)

	assert.Equal(t, "5000k", s.Defaults()["webcam"].(Tree)["bitrate"])
	assert.Equal(t, "5000k", before.GetString(bitrate), "earlier snapshot must not observe the write")
}

func TestSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSettings(t, nil)

	_, err := s.Transact(ctx, func(tx *Tx) error {
		return tx.Set(bitrate, "8000k")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Saves())

	saved, err := s.Save(ctx)
	require.NoError(t, err)
	assert.False(t, saved)

	saved, err = s.Save(ctx)
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Equal(t, 1, store.Saves())
}

func TestUnchangedTransactionDoesNotSave(t *testing.T) {
	s, store := newTestSettings(t, nil)

	changed, err := s.Transact(context.Background(), func(tx *Tx) error {
		return tx.Set(bitrate, "5000k")
	})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 0, store.Saves())
}

func TestBooleanRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSettings(t, nil)
	p := Path{"serial", "autoconnect"}

	_, err := s.Transact(ctx, func(tx *Tx) error { return tx.SetBoolean(p, true) })
	require.NoError(t, err)
	assert.True(t, s.GetBoolean(p))

	_, err = s.Transact(ctx, func(tx *Tx) error { return tx.SetBoolean(p, false) })
	require.NoError(t, err)
	assert.False(t, s.GetBoolean(p))

	_, err = s.Transact(ctx, func(tx *Tx) error { return tx.SetBoolean(p, "yes please") })
	require.NoError(t, err)
	assert.True(t, s.GetBoolean(p))

	_, err = s.Transact(ctx, func(tx *Tx) error { return tx.SetBoolean(p, "0") })
	require.NoError(t, err)
	assert.False(t, s.GetBoolean(p))
}

func TestLookupDistinguishesAbsentFromFalse(t *testing.T) {
	s, _ := newTestSettings(t, nil)
	v := s.Snapshot()

	b, ok := v.LookupBoolean(Path{"serial", "autoconnect"})
	assert.False(t, b)
	assert.True(t, ok)

	b, ok = v.LookupBoolean(Path{"serial", "missing"})
	assert.False(t, b)
	assert.False(t, ok)
}

func TestCoercionFailureKeepsValue(t *testing.T) {
	s, store := newTestSettings(t, nil)
	p := Path{"printerParameters", "defaultExtrusionLength"}
	require.Equal(t, 5, s.GetInt(p))

	changed, err := s.Transact(context.Background(), func(tx *Tx) error {
		err := tx.SetInt(p, "not-a-number")
		assert.ErrorIs(t, err, ErrCoercion)

		var ce *CoercionError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "int", ce.Kind)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 5, s.GetInt(p))
	assert.Equal(t, int64(1), s.CoercionFailures())
	assert.Equal(t, 0, store.Saves())
}

func TestSetIntParsesNumericStrings(t *testing.T) {
	s, _ := newTestSettings(t, nil)
	p := Path{"serial", "timeout", "connection"}

	_, err := s.Transact(context.Background(), func(tx *Tx) error {
		if err := tx.SetInt(PathSerialBaud, "115200"); err != nil {
			return err
		}
		return tx.SetFloat(p, "7.5")
	})
	require.NoError(t, err)
	assert.Equal(t, 115200, s.GetInt(PathSerialBaud))
	assert.Equal(t, 7.5, s.GetFloat(p))
}

func TestSetToDefaultRemovesOverride(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSettings(t, nil)

	_, err := s.Transact(ctx, func(tx *Tx) error { return tx.Set(bitrate, "8000k") })
	require.NoError(t, err)
	require.Contains(t, store.Tree(), "webcam")

	changed, err := s.Transact(ctx, func(tx *Tx) error { return tx.Set(bitrate, "5000k") })
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotContains(t, store.Tree(), "webcam")
	assert.Equal(t, OriginDefault, s.Snapshot().Origin(bitrate))
}

func TestMapValuesMergeOverDefaults(t *testing.T) {
	s, store := newTestSettings(t, nil)

	_, err := s.Transact(context.Background(), func(tx *Tx) error {
		return tx.Set(Path{"serial", "timeout"}, map[string]any{"connection": 10, "detection": 0.5})
	})
	require.NoError(t, err)

	assert.Equal(t, 10.0, s.GetFloat(Path{"serial", "timeout", "connection"}))
	assert.Equal(t, 0.5, s.GetFloat(Path{"serial", "timeout", "detection"}))
	assert.Equal(t, 30.0, s.GetFloat(Path{"serial", "timeout", "communication"}))

	stored := store.Tree()["serial"].(Tree)["timeout"].(Tree)
	assert.Equal(t, Tree{"connection": 10}, stored, "entries equal to the default are not persisted")
}

func TestRollbackDiscardsStagedWrites(t *testing.T) {
	s, store := newTestSettings(t, nil)
	boom := errors.New("boom")

	changed, err := s.Transact(context.Background(), func(tx *Tx) error {
		require.NoError(t, tx.Set(bitrate, "8000k"))
		assert.Equal(t, "8000k", tx.GetString(bitrate), "staged writes are readable inside the transaction")
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, changed)
	assert.Equal(t, "5000k", s.GetString(bitrate))
	assert.Equal(t, 0, store.Saves())
}

func TestPersistenceFailureKeepsInMemoryState(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSettings(t, nil)
	store.SetFailSave(ErrStorageUnavailable)

	changed, err := s.Transact(ctx, func(tx *Tx) error { return tx.Set(bitrate, "8000k") })
	assert.True(t, changed)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, "8000k", s.GetString(bitrate))
	assert.True(t, s.Dirty())

	store.SetFailSave(nil)
	saved, err := s.Save(ctx)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.False(t, s.Dirty())
	assert.Equal(t, "8000k", store.Tree()["webcam"].(Tree)["bitrate"])
}

func TestReloadKeepsUnsavedChanges(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSettings(t, nil)
	store.SetFailSave(ErrStorageUnavailable)

	_, err := s.Transact(ctx, func(tx *Tx) error { return tx.SetBoolean(PathSerialLog, true) })
	require.ErrorIs(t, err, ErrPersistence)
	require.True(t, s.Dirty())

	store.SetFailSave(nil)
	require.NoError(t, store.Save(ctx, Tree{"serial": Tree{"log": false}, "webcam": Tree{"bitrate": "1k"}}))

	changed, err := s.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, s.Dirty())
	assert.True(t, s.GetBoolean(PathSerialLog))
	assert.Equal(t, "5000k", s.GetString(bitrate))

	saved, err := s.Save(ctx)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, true, store.Tree()["serial"].(Tree)["log"])
}

func TestBooleanWatcherSeesNetTransition(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSettings(t, nil)

	var calls []string
	s.WatchBoolean(PathSerialLog, func(old, new bool) {
		calls = append(calls, fmt.Sprintf("%v->%v", old, new))
	})

	_, err := s.Transact(ctx, func(tx *Tx) error { return tx.SetBoolean(PathSerialLog, true) })
	require.NoError(t, err)
	assert.Equal(t, []string{"false->true"}, calls)

	_, err = s.Transact(ctx, func(tx *Tx) error {
		if err := tx.SetBoolean(PathSerialLog, false); err != nil {
			return err
		}
		return tx.SetBoolean(PathSerialLog, true)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"false->true"}, calls, "a toggle that nets out must not fire")

	_, err = s.Transact(ctx, func(tx *Tx) error { return tx.SetBoolean(PathSerialLog, false) })
	require.NoError(t, err)
	assert.Equal(t, []string{"false->true", "true->false"}, calls)
}

func TestForkAdoptAndSeal(t *testing.T) {
	s, _ := newTestSettings(t, nil)
	kept := Path{"plugins", "kept", "value"}
	dropped := Path{"plugins", "dropped", "value"}

	_, err := s.Transact(context.Background(), func(tx *Tx) error {
		child := tx.Fork()
		require.NoError(t, child.Set(kept, "yes"))
		assert.Empty(t, tx.GetString(kept), "fork writes stay private until adopted")
		require.NoError(t, tx.Adopt(child))
		assert.ErrorIs(t, child.Set(kept, "again"), ErrTxClosed)

		abandoned := tx.Fork()
		require.NoError(t, abandoned.Set(dropped, "yes"))
		abandoned.Seal()
		assert.ErrorIs(t, abandoned.Set(dropped, "late"), ErrTxClosed)
		assert.ErrorIs(t, tx.Adopt(abandoned), ErrTxClosed)

		other := newTx(s, s.defaults, Tree{})
		assert.ErrorIs(t, tx.Adopt(other.Fork()), ErrForeignTx)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "yes", s.GetString(kept))
	assert.False(t, s.Snapshot().Has(dropped))
}

func TestScopedWriter(t *testing.T) {
	s, _ := newTestSettings(t, nil)

	_, err := s.Transact(context.Background(), func(tx *Tx) error {
		w := tx.Scope(Path{"plugins", "demo"})
		if err := w.Set(Path{"mode"}, "eco"); err != nil {
			return err
		}
		assert.Equal(t, "eco", w.GetString(Path{"mode"}))
		return nil
	})
	require.NoError(t, err)

	r := s.Snapshot().Scope(Path{"plugins", "demo"})
	assert.Equal(t, "eco", r.GetString(Path{"mode"}))
	assert.Equal(t, "eco", s.GetString(Path{"plugins", "demo", "mode"}))
}

func TestSetEncrypted(t *testing.T) {
	s, store := newTestSettings(t, nil)

	_, err := s.Transact(context.Background(), func(tx *Tx) error {
		return tx.SetEncrypted(PathAPIKey, "0123456789ABCDEF")
	})
	require.NoError(t, err)

	assert.Equal(t, "0123456789ABCDEF", s.GetString(PathAPIKey))
	stored := store.Tree()["api"].(Tree)["key"].(string)
	assert.True(t, strings.HasPrefix(stored, obfuscatedPrefix))
	assert.NotContains(t, stored, "0123456789ABCDEF")

	changed, err := s.Transact(context.Background(), func(tx *Tx) error {
		return tx.SetEncrypted(PathAPIKey, "0123456789ABCDEF")
	})
	require.NoError(t, err)
	assert.False(t, changed, "re-encoding the same secret is not a change")
}

func TestPlainStringsKeepObfuscationMarkers(t *testing.T) {
	s, store := newTestSettings(t, nil)
	name := MustParsePath("appearance.name")
	encoded := Base64Obfuscator{}.Encode("hi")

	for _, plain := range []string{encoded, plainPrefix + "x", "$plain$" + encoded} {
		_, err := s.Transact(context.Background(), func(tx *Tx) error {
			return tx.Set(name, plain)
		})
		require.NoError(t, err)
		assert.Equal(t, plain, s.GetString(name))
		assert.Equal(t, plain, s.Get(name))
	}

	_, err := s.Transact(context.Background(), func(tx *Tx) error {
		return tx.Set(MustParsePath("system.actions"), []any{Tree{"command": encoded}})
	})
	require.NoError(t, err)
	assert.Equal(t, []any{Tree{"command": encoded}}, s.Get(MustParsePath("system.actions")))

	reloaded, err := New(store)
	require.NoError(t, err)
	require.NoError(t, reloaded.Load(context.Background()))
	assert.Equal(t, "$plain$"+encoded, reloaded.GetString(name))
}

func TestReload(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSettings(t, nil)

	var transitions int
	s.WatchBoolean(PathSerialLog, func(old, new bool) { transitions++ })

	require.NoError(t, store.Save(ctx, Tree{"serial": Tree{"log": true}}))

	changed, err := s.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, s.GetBoolean(PathSerialLog))
	assert.Equal(t, 1, transitions)

	changed, err = s.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, transitions)
}

func TestLoadNormalizesStoredValues(t *testing.T) {
	s, _ := newTestSettings(t, Tree{
		"serial": map[string]any{
			"baudrate":        int64(250000),
			"additionalPorts": []string{"/dev/ttyAMA0"},
		},
	})

	assert.Equal(t, 250000, s.Get(PathSerialBaud))
	assert.Equal(t, []any{"/dev/ttyAMA0"}, s.Get(PathExtraPorts))
	assert.Equal(t, []string{"/dev/ttyAMA0"}, s.Snapshot().GetStringSlice(PathExtraPorts))
}

func TestExtraDefaults(t *testing.T) {
	s, _ := newTestSettings(t, nil, WithExtraDefaults(Tree{
		"plugins": Tree{"demo": Tree{"mode": "eco"}},
	}))

	assert.Equal(t, "eco", s.GetString(Path{"plugins", "demo", "mode"}))
	assert.Equal(t, "5000k", s.GetString(bitrate))
}

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(NewMemoryStorage(nil), WithRegisterer(reg))
	require.NoError(t, err)

	_, err = New(NewMemoryStorage(nil), WithRegisterer(reg))
	assert.Error(t, err, "registering twice on one registry must fail")
}

func TestInvalidPathIsRejected(t *testing.T) {
	s, _ := newTestSettings(t, nil)

	_, err := s.Transact(context.Background(), func(tx *Tx) error {
		return tx.Set(Path{"serial", "", "x"}, 1)
	})
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = s.Transact(context.Background(), func(tx *Tx) error {
		return tx.Set(nil, 1)
	})
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSettings(t, nil)
	a, b := Path{"test", "a"}, Path{"test", "b"}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				v := s.Snapshot()
				if v.GetInt(a) != v.GetInt(b) {
					t.Errorf("torn read: a=%d b=%d", v.GetInt(a), v.GetInt(b))
					return
				}
			}
		}()
	}

	for i := 1; i <= 50; i++ {
		_, err := s.Transact(ctx, func(tx *Tx) error {
			if err := tx.Set(a, i); err != nil {
				return err
			}
			return tx.Set(b, i)
		})
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 50, s.GetInt(a))
}
