package settings

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Tree is a nested settings map. Leaves are bool, int, float64, string, nil
// or []any; inner nodes are Trees.
type Tree = map[string]any

// Normalize converts a decoded value into the canonical forms stored in a
// Tree. Every integer kind becomes int, float32 becomes float64, typed slices
// become []any and string-keyed maps become Trees.
func Normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, int, float64:
		return val, nil
	case int8:
		return int(val), nil
	case int16:
		return int(val), nil
	case int32:
		return int(val), nil
	case int64:
		return int(val), nil
	case uint:
		return int(val), nil
	case uint8:
		return int(val), nil
	case uint16:
		return int(val), nil
	case uint32:
		return int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int", ErrUnsupportedValue, val)
		}
		return int(val), nil
	case float32:
		return float64(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedValue, val)
		}
		return f, nil
	case map[string]any:
		out := make(Tree, len(val))
		for k, child := range val {
			n, err := Normalize(child)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	case map[string]string:
		out := make(Tree, len(val))
		for k, child := range val {
			out[k] = child
		}
		return out, nil
	case map[any]any:
		out := make(Tree, len(val))
		for k, child := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%w: non-string key %v", ErrUnsupportedValue, k)
			}
			n, err := Normalize(child)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			n, err := Normalize(child)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	}

	// Remaining typed slices ([]string, []int, ...) go through reflection
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			n, err := Normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

// NormalizeTree normalizes every value of t into a fresh Tree
func NormalizeTree(t map[string]any) (Tree, error) {
	if t == nil {
		return Tree{}, nil
	}
	n, err := Normalize(t)
	if err != nil {
		return nil, err
	}
	return n.(Tree), nil
}

// Clone deep-copies a Tree
func Clone(t Tree) Tree {
	if t == nil {
		return nil
	}
	return cloneValue(t).(Tree)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Tree:
		out := make(Tree, len(val))
		for k, child := range val {
			out[k] = cloneValue(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = cloneValue(child)
		}
		return out
	default:
		return val
	}
}

// Merge returns a new tree with over deep-merged on top of base. Maps present
// on both sides merge recursively; any other value from over replaces base.
func Merge(base, over Tree) Tree {
	out := Clone(base)
	if out == nil {
		out = Tree{}
	}
	for k, ov := range over {
		if om, ok := ov.(Tree); ok {
			if bm, ok := out[k].(Tree); ok {
				out[k] = Merge(bm, om)
				continue
			}
		}
		out[k] = cloneValue(ov)
	}
	return out
}

// Equal compares two settings values. Numbers compare by value across int
// and float64.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if fa, ok := asNumber(a); ok {
		fb, ok := asNumber(b)
		return ok && fa == fb
	}

	switch va := a.(type) {
	case Tree:
		vb, ok := b.(Tree)
		if !ok || len(va) != len(vb) {
			return false
		}
		for k, x := range va {
			y, ok := vb[k]
			if !ok || !Equal(x, y) {
				return false
			}
		}
		return true
	case []any:
		vb, ok := b.([]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if !Equal(va[i], vb[i]) {
				return false
			}
		}
		return true
	case bool, string:
		return a == b
	default:
		return reflect.DeepEqual(a, b)
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// lookup walks t along p. It stops at the first missing key or non-map
// intermediate.
func lookup(t Tree, p Path) (any, bool) {
	if len(p) == 0 {
		return t, t != nil
	}
	var cur any = t
	for _, seg := range p {
		m, ok := cur.(Tree)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setIn stores v at p, creating intermediate maps. Scalars sitting where an
// intermediate map is needed are replaced.
func setIn(t Tree, p Path, v any) {
	cur := t
	for _, seg := range p[:len(p)-1] {
		next, ok := cur[seg].(Tree)
		if !ok {
			next = Tree{}
			cur[seg] = next
		}
		cur = next
	}
	cur[p[len(p)-1]] = v
}

// deleteIn removes p from t and prunes parents left empty. It reports whether
// anything was removed.
func deleteIn(t Tree, p Path) bool {
	if len(p) == 0 {
		return false
	}
	if len(p) == 1 {
		if _, ok := t[p[0]]; !ok {
			return false
		}
		delete(t, p[0])
		return true
	}
	child, ok := t[p[0]].(Tree)
	if !ok {
		return false
	}
	removed := deleteIn(child, p[1:])
	if removed && len(child) == 0 {
		delete(t, p[0])
	}
	return removed
}

// pruneDefaults drops every entry of over that equals the matching default,
// so only real overrides are persisted.
func pruneDefaults(over, def Tree) {
	for k, ov := range over {
		dv, ok := def[k]
		if !ok {
			continue
		}
		om, oIsMap := ov.(Tree)
		dm, dIsMap := dv.(Tree)
		if oIsMap && dIsMap {
			pruneDefaults(om, dm)
			if len(om) == 0 {
				delete(over, k)
			}
			continue
		}
		if Equal(ov, dv) {
			delete(over, k)
		}
	}
}

// Keys returns the sorted keys of t
func Keys(t Tree) []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
