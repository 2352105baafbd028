package settings

import (
	"sync"

	"go.uber.org/zap"
)

// Writer is the write side of the settings engine. Tx and scoped transactions
// implement it. Reads through a Writer observe the staged state.
type Writer interface {
	Reader
	Set(p Path, v any) error
	SetEncrypted(p Path, plain string) error
	SetBoolean(p Path, v any) error
	SetInt(p Path, v any) error
	SetFloat(p Path, v any) error
	SetString(p Path, v any) error
	Remove(p Path) error
}

// Tx is a write transaction. Writes go to a private copy of the override
// layer that becomes visible to readers only when Settings.Transact commits.
//
// A Tx is safe for concurrent use, but a parent must not be written while a
// fork of it is outstanding: Adopt replaces the parent's staged tree.
type Tx struct {
	s        *Settings
	defaults Tree
	parent   *Tx

	mu      sync.Mutex
	staged  Tree
	changed bool
	closed  bool
}

func newTx(s *Settings, defaults, overrides Tree) *Tx {
	return &Tx{
		s:        s,
		defaults: defaults,
		staged:   Clone(overrides),
	}
}

// viewLocked reads the staged tree. The caller holds tx.mu.
func (tx *Tx) viewLocked() *View {
	return &View{defaults: tx.defaults, overrides: tx.staged, obf: tx.s.obf}
}

func (tx *Tx) read(fn func(v *View)) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	fn(tx.viewLocked())
}

// Changed reports whether any write so far changed an effective value
func (tx *Tx) Changed() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.changed
}

// Set stores v at p. A value equal to the default removes the override
// instead. The transaction is marked changed only when the effective value
// at p differs afterwards.
func (tx *Tx) Set(p Path, v any) error {
	n, err := Normalize(v)
	if err != nil {
		return err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.setLocked(p, conceal(tx.s.obf, n))
}

func (tx *Tx) setLocked(p Path, stored any) error {
	if tx.closed {
		return ErrTxClosed
	}
	if err := p.writable(); err != nil {
		return err
	}

	view := tx.viewLocked()
	before := view.Get(p)

	setIn(tx.staged, p, stored)
	dv, hasDefault := lookup(tx.defaults, p)
	if m, ok := stored.(Tree); ok {
		if dm, ok := dv.(Tree); ok && hasDefault {
			pruneDefaults(m, dm)
			if len(m) == 0 {
				deleteIn(tx.staged, p)
			}
		}
	} else if hasDefault && Equal(reveal(tx.s.obf, cloneValue(stored)), dv) {
		deleteIn(tx.staged, p)
	}

	if !Equal(before, view.Get(p)) {
		tx.changed = true
		tx.s.log.Debug("Setting staged", zap.Stringer("path", p))
	}
	return nil
}

// SetEncrypted stores plain obfuscated. Change detection compares plain text.
func (tx *Tx) SetEncrypted(p Path, plain string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.setLocked(p, tx.s.obf.Encode(plain))
}

// SetBoolean coerces v with Truthy and stores the result
func (tx *Tx) SetBoolean(p Path, v any) error {
	return tx.Set(p, Truthy(v))
}

// SetInt stores v as an int. An uncoercible v leaves the stored value
// unchanged and returns a *CoercionError.
func (tx *Tx) SetInt(p Path, v any) error {
	n, ok := ParseInt(v)
	if !ok {
		return tx.s.coercionFailed(p, "int", v)
	}
	return tx.Set(p, n)
}

// SetFloat stores v as a float64, failing the same way SetInt does
func (tx *Tx) SetFloat(p Path, v any) error {
	f, ok := ParseFloat(v)
	if !ok {
		return tx.s.coercionFailed(p, "float", v)
	}
	return tx.Set(p, f)
}

// SetString stores v rendered as a string. nil is stored as nil.
func (tx *Tx) SetString(p Path, v any) error {
	if v == nil {
		return tx.Set(p, nil)
	}
	return tx.Set(p, Stringify(v))
}

// Remove deletes the override at p, reverting it to the default
func (tx *Tx) Remove(p Path) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return ErrTxClosed
	}
	if err := p.writable(); err != nil {
		return err
	}

	view := tx.viewLocked()
	before := view.Get(p)
	if deleteIn(tx.staged, p) && !Equal(before, view.Get(p)) {
		tx.changed = true
	}
	return nil
}

// Fork returns a savepoint: a child transaction starting from the current
// staged state. Its writes reach the parent only through Adopt.
func (tx *Tx) Fork() *Tx {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return &Tx{
		s:        tx.s,
		defaults: tx.defaults,
		parent:   tx,
		staged:   Clone(tx.staged),
		closed:   tx.closed,
	}
}

// Adopt folds a fork's writes into tx and closes the fork
func (tx *Tx) Adopt(child *Tx) error {
	if child.parent != tx {
		return ErrForeignTx
	}

	child.mu.Lock()
	if child.closed {
		child.mu.Unlock()
		return ErrTxClosed
	}
	child.closed = true
	staged, changed := child.staged, child.changed
	child.mu.Unlock()

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return ErrTxClosed
	}
	tx.staged = staged
	tx.changed = tx.changed || changed
	return nil
}

// Seal closes tx. Later writes fail with ErrTxClosed; reads keep working.
func (tx *Tx) Seal() {
	tx.mu.Lock()
	tx.closed = true
	tx.mu.Unlock()
}

// Scope returns a Writer whose paths are relative to prefix
func (tx *Tx) Scope(prefix Path) Writer {
	prefix = prefix.Child()
	return &scopedWriter{scopedReader: scopedReader{r: tx, prefix: prefix}, w: tx}
}

// Resolve implements Reader against the staged state
func (tx *Tx) Resolve(p Path) (val any, origin Origin) {
	tx.read(func(v *View) { val, origin = v.Resolve(p) })
	return
}

// Get implements Reader against the staged state
func (tx *Tx) Get(p Path) (val any) {
	tx.read(func(v *View) { val = v.Get(p) })
	return
}

func (tx *Tx) GetBoolean(p Path) (b bool) {
	tx.read(func(v *View) { b = v.GetBoolean(p) })
	return
}

func (tx *Tx) LookupBoolean(p Path) (b bool, ok bool) {
	tx.read(func(v *View) { b, ok = v.LookupBoolean(p) })
	return
}

func (tx *Tx) GetInt(p Path) (n int) {
	tx.read(func(v *View) { n = v.GetInt(p) })
	return
}

func (tx *Tx) LookupInt(p Path) (n int, ok bool) {
	tx.read(func(v *View) { n, ok = v.LookupInt(p) })
	return
}

func (tx *Tx) GetFloat(p Path) (f float64) {
	tx.read(func(v *View) { f = v.GetFloat(p) })
	return
}

func (tx *Tx) LookupFloat(p Path) (f float64, ok bool) {
	tx.read(func(v *View) { f, ok = v.LookupFloat(p) })
	return
}

func (tx *Tx) GetString(p Path) (s string) {
	tx.read(func(v *View) { s = v.GetString(p) })
	return
}

func (tx *Tx) LookupString(p Path) (s string, ok bool) {
	tx.read(func(v *View) { s, ok = v.LookupString(p) })
	return
}

func (tx *Tx) GetStringSlice(p Path) (out []string) {
	tx.read(func(v *View) { out = v.GetStringSlice(p) })
	return
}

type scopedWriter struct {
	scopedReader
	w Writer
}

func (s *scopedWriter) Set(p Path, v any) error {
	return s.w.Set(s.prefix.Join(p), v)
}

func (s *scopedWriter) SetEncrypted(p Path, plain string) error {
	return s.w.SetEncrypted(s.prefix.Join(p), plain)
}

func (s *scopedWriter) SetBoolean(p Path, v any) error {
	return s.w.SetBoolean(s.prefix.Join(p), v)
}

func (s *scopedWriter) SetInt(p Path, v any) error {
	return s.w.SetInt(s.prefix.Join(p), v)
}

func (s *scopedWriter) SetFloat(p Path, v any) error {
	return s.w.SetFloat(s.prefix.Join(p), v)
}

func (s *scopedWriter) SetString(p Path, v any) error {
	return s.w.SetString(s.prefix.Join(p), v)
}

func (s *scopedWriter) Remove(p Path) error {
	return s.w.Remove(s.prefix.Join(p))
}
