// Package plugin implements the extension settings protocol.
//
// Extensions are registered explicitly on a Registry and identified by a
// single path segment. Each extension owns the sub-tree plugins.<id> of the
// settings engine and may implement any of three capabilities:
//
//   - SettingsDefaulter contributes the default sub-tree
//   - SettingsLoader contributes the sub-tree returned by reads
//   - SettingsSaver applies the sub-payload of a write
//
// # Isolation
//
// Hooks run with a bounded duration. A loader that fails, panics or times
// out contributes nothing to the read. A saver runs on a forked transaction
// scoped to its own sub-tree; its writes are adopted only when it returns
// nil in time. A failing saver is logged and counted and never aborts the
// surrounding transaction.
//
// # Usage
//
//	reg, _ := plugin.NewRegistry(plugin.WithHookTimeout(2 * time.Second))
//	_ = reg.Register(&plugin.Base{ID: "discovery"})
//	s, _ := settings.New(storage, settings.WithExtraDefaults(reg.Defaults()))
package plugin
