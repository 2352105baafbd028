// Package settings implements the printhost settings engine.
//
// Settings are a tree of nested maps addressed by Path. Two layers make up
// the effective configuration: compiled-in defaults, which never change at
// runtime, and an override layer persisted through a Storage. Reads fall
// back from the override to the default; maps present in both layers are
// deep-merged.
//
// # Reading
//
// Snapshot returns an immutable View. All reads through one View see the
// same state, even while a writer commits:
//
//	v := s.Snapshot()
//	port := v.GetString(settings.Path{"serial", "port"})
//	timeout := v.GetFloat(settings.Path{"serial", "timeout", "connection"})
//
// The typed getters coerce the stored value. GetInt and GetFloat fall back to
// the default when the stored value does not parse. The Lookup variants also
// report whether the path is configured at all.
//
// # Writing
//
// All writes happen inside Transact. Writes are staged on a private copy and
// become visible atomically when the callback returns nil; an error discards
// every staged write:
//
//	changed, err := s.Transact(ctx, func(tx *settings.Tx) error {
//	    if err := tx.SetBoolean(settings.Path{"serial", "log"}, true); err != nil {
//	        return err
//	    }
//	    return tx.SetInt(settings.Path{"serial", "baudrate"}, "115200")
//	})
//
// Writing a value equal to the default removes the override, so the
// persisted file only holds what differs. A transaction is marked changed
// only when an effective value differs afterwards, and only changed
// transactions are persisted.
//
// SetInt and SetFloat return a *CoercionError for values that do not parse
// and leave the stored value alone. Callers that treat such input as best
// effort ignore the error and carry on; CoercionFailures counts them.
//
// # Savepoints
//
// Fork creates a child transaction starting from the parent's staged state.
// Adopt folds the child back; Seal abandons it and makes later writes fail.
// Each extension save hook runs on its own fork, so a failing hook cannot
// leave half its writes behind.
//
// # Watchers
//
// WatchBoolean registers a callback for transitions of a boolean setting. It
// fires once per transaction or reload, comparing the value before the
// transaction with the value after it.
package settings
