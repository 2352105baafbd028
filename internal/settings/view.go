package settings

// Origin tells which layer an effective value came from
type Origin int

const (
	// OriginNone means the path is set in neither layer
	OriginNone Origin = iota
	// OriginOverride means the persisted override layer holds the value
	OriginOverride
	// OriginDefault means the value comes from the compiled-in defaults
	OriginDefault
)

// String returns the origin name
func (o Origin) String() string {
	switch o {
	case OriginOverride:
		return "override"
	case OriginDefault:
		return "default"
	default:
		return "none"
	}
}

// Reader is the read side of the settings engine. View, Tx and their scoped
// variants implement it.
type Reader interface {
	Resolve(p Path) (any, Origin)
	Get(p Path) any
	GetBoolean(p Path) bool
	LookupBoolean(p Path) (bool, bool)
	GetInt(p Path) int
	LookupInt(p Path) (int, bool)
	GetFloat(p Path) float64
	LookupFloat(p Path) (float64, bool)
	GetString(p Path) string
	LookupString(p Path) (string, bool)
	GetStringSlice(p Path) []string
}

// View is an immutable snapshot of the effective settings. Both trees are
// shared with the engine and never mutated after the View is taken.
type View struct {
	defaults  Tree
	overrides Tree
	obf       Obfuscator
}

// Resolve returns a copy of the effective value at p and the layer it came
// from. When both layers hold a map, the result is their deep merge.
// Obfuscated strings are returned encoded.
func (v *View) Resolve(p Path) (any, Origin) {
	dv, dok := lookup(v.defaults, p)
	ov, ook := lookup(v.overrides, p)
	if ook {
		if om, ok := ov.(Tree); ok {
			if dm, ok := dv.(Tree); ok && dok {
				return Merge(dm, om), OriginOverride
			}
		}
		return cloneValue(ov), OriginOverride
	}
	if dok {
		return cloneValue(dv), OriginDefault
	}
	return nil, OriginNone
}

// Get returns a copy of the effective value at p with obfuscated strings decoded
func (v *View) Get(p Path) any {
	val, _ := v.Resolve(p)
	return reveal(v.obf, val)
}

// Has reports whether p is set in either layer
func (v *View) Has(p Path) bool {
	_, origin := v.Resolve(p)
	return origin != OriginNone
}

// Origin returns the layer the effective value at p comes from
func (v *View) Origin(p Path) Origin {
	_, origin := v.Resolve(p)
	return origin
}

// GetBoolean returns the effective value at p coerced to bool; absence is false
func (v *View) GetBoolean(p Path) bool {
	b, _ := v.LookupBoolean(p)
	return b
}

// LookupBoolean is GetBoolean that also reports whether p is configured at all
func (v *View) LookupBoolean(p Path) (bool, bool) {
	val, origin := v.Resolve(p)
	if origin == OriginNone {
		return false, false
	}
	return Truthy(reveal(v.obf, val)), true
}

// GetInt returns the effective value at p as an int. An unparsable value
// falls back to the default at p, then to zero.
func (v *View) GetInt(p Path) int {
	n, _ := v.LookupInt(p)
	return n
}

// LookupInt is GetInt that also reports whether an integer reading exists
func (v *View) LookupInt(p Path) (int, bool) {
	if n, ok := ParseInt(v.Get(p)); ok {
		return n, true
	}
	if dv, ok := lookup(v.defaults, p); ok {
		if n, ok := ParseInt(dv); ok {
			return n, true
		}
	}
	return 0, false
}

// GetFloat returns the effective value at p as a float64, with the same
// fallback as GetInt
func (v *View) GetFloat(p Path) float64 {
	f, _ := v.LookupFloat(p)
	return f
}

// LookupFloat is GetFloat that also reports whether a numeric reading exists
func (v *View) LookupFloat(p Path) (float64, bool) {
	if f, ok := ParseFloat(v.Get(p)); ok {
		return f, true
	}
	if dv, ok := lookup(v.defaults, p); ok {
		if f, ok := ParseFloat(dv); ok {
			return f, true
		}
	}
	return 0, false
}

// GetString returns the effective value at p rendered as a string
func (v *View) GetString(p Path) string {
	s, _ := v.LookupString(p)
	return s
}

// LookupString is GetString that also reports whether p is configured
func (v *View) LookupString(p Path) (string, bool) {
	val, origin := v.Resolve(p)
	if origin == OriginNone {
		return "", false
	}
	return Stringify(reveal(v.obf, val)), true
}

// GetStringSlice returns the list at p with every element stringified. A
// scalar yields a one-element slice; absence or nil yields nil.
func (v *View) GetStringSlice(p Path) []string {
	switch val := v.Get(p).(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, Stringify(item))
		}
		return out
	case Tree:
		return nil
	default:
		return []string{Stringify(val)}
	}
}

// Scope returns a Reader whose paths are relative to prefix
func (v *View) Scope(prefix Path) Reader {
	return &scopedReader{r: v, prefix: prefix.Child()}
}

// Tree returns the full effective tree
func (v *View) Tree() Tree {
	t, _ := v.Get(nil).(Tree)
	if t == nil {
		return Tree{}
	}
	return t
}

// Overrides returns a copy of the override layer as stored
func (v *View) Overrides() Tree {
	return Clone(v.overrides)
}

// Defaults returns a copy of the default layer
func (v *View) Defaults() Tree {
	return Clone(v.defaults)
}

type scopedReader struct {
	r      Reader
	prefix Path
}

func (s *scopedReader) Resolve(p Path) (any, Origin) {
	return s.r.Resolve(s.prefix.Join(p))
}

func (s *scopedReader) Get(p Path) any {
	return s.r.Get(s.prefix.Join(p))
}

func (s *scopedReader) GetBoolean(p Path) bool {
	return s.r.GetBoolean(s.prefix.Join(p))
}

func (s *scopedReader) LookupBoolean(p Path) (bool, bool) {
	return s.r.LookupBoolean(s.prefix.Join(p))
}

func (s *scopedReader) GetInt(p Path) int {
	return s.r.GetInt(s.prefix.Join(p))
}

func (s *scopedReader) LookupInt(p Path) (int, bool) {
	return s.r.LookupInt(s.prefix.Join(p))
}

func (s *scopedReader) GetFloat(p Path) float64 {
	return s.r.GetFloat(s.prefix.Join(p))
}

func (s *scopedReader) LookupFloat(p Path) (float64, bool) {
	return s.r.LookupFloat(s.prefix.Join(p))
}

func (s *scopedReader) GetString(p Path) string {
	return s.r.GetString(s.prefix.Join(p))
}

func (s *scopedReader) LookupString(p Path) (string, bool) {
	return s.r.LookupString(s.prefix.Join(p))
}

func (s *scopedReader) GetStringSlice(p Path) []string {
	return s.r.GetStringSlice(s.prefix.Join(p))
}
