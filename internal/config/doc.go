// Package config provides settings file storage for the printhost server.
//
// This package persists the override layer of the settings engine to a single
// file in the printhost base directory, and watches that file so edits made
// by hand are picked up without a restart. The base directory follows
// OS-specific conventions.
//
// # Base Directory Location
//
// The base directory is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/printhost or $HOME/.config/printhost
//   - macOS: $HOME/.config/printhost
//   - Windows: %LOCALAPPDATA%\printhost
//
// # File Formats
//
// The format is chosen from the file extension:
//   - .yaml, .yml: YAML (default, config.yaml)
//   - .toml: TOML
//   - .json: JSON
//
// YAML and TOML files start with a comment header. TOML has no null, so
// null-valued overrides are dropped when writing TOML.
//
// # Usage Example
//
//	store, err := config.NewFileStorage(filepath.Join(baseDir, config.DefaultFileName))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s, err := settings.New(store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := s.Load(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Atomic Writes
//
// Save writes to a temporary file in the same directory, syncs it, and renames
// it over the settings file, so readers never observe a partially written
// file. The temporary file is removed on any failure.
//
// # Watching
//
// Watcher reports external modifications of the settings file after a short
// debounce:
//
//	w := config.NewWatcher(store.Path(), 0)
//	go w.Run(ctx, func() {
//	    if _, err := s.Reload(ctx); err != nil {
//	        logging.Warn("Reload failed", zap.Error(err))
//	    }
//	})
//
// # Thread Safety
//
// FileStorage serializes its own file operations and is safe for concurrent use.
package config
