package plugin

import (
	"context"

	"github.com/muurk/printhost/internal/settings"
)

// Plugin is a registered extension
type Plugin interface {
	Identifier() string
}

// SettingsLoader contributes the extension's section of a settings read.
// The reader is scoped to plugins.<id>. A nil or empty result contributes
// nothing.
type SettingsLoader interface {
	OnSettingsLoad(ctx context.Context, r settings.Reader) (map[string]any, error)
}

// SettingsSaver applies the extension's section of a settings write. The
// writer is scoped to plugins.<id> and data is a private copy of the
// sub-payload.
type SettingsSaver interface {
	OnSettingsSave(ctx context.Context, w settings.Writer, data map[string]any) error
}

// SettingsDefaulter provides the default sub-tree at plugins.<id>
type SettingsDefaulter interface {
	SettingsDefaults() map[string]any
}

// Base implements every capability with the default behaviour: reads return
// the whole effective sub-tree and writes store each top-level key of the
// payload. Embed it and override what differs.
type Base struct {
	ID              string
	DefaultSettings map[string]any
}

// Identifier implements Plugin
func (b *Base) Identifier() string {
	return b.ID
}

// SettingsDefaults implements SettingsDefaulter
func (b *Base) SettingsDefaults() map[string]any {
	return settings.Clone(b.DefaultSettings)
}

// OnSettingsLoad implements SettingsLoader
func (b *Base) OnSettingsLoad(ctx context.Context, r settings.Reader) (map[string]any, error) {
	tree, _ := r.Get(nil).(settings.Tree)
	return tree, nil
}

// OnSettingsSave implements SettingsSaver
func (b *Base) OnSettingsSave(ctx context.Context, w settings.Writer, data map[string]any) error {
	for _, key := range settings.Keys(data) {
		if err := w.Set(settings.Path{key}, data[key]); err != nil {
			return err
		}
	}
	return nil
}
