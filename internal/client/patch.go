package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/muurk/printhost/internal/settings"
)

// ErrInvalidAssignment is returned for a malformed path=value argument
var ErrInvalidAssignment = errors.New("invalid assignment")

// BuildPatch turns "path=value" arguments into a nested settings patch.
// Values are read as JSON when they parse, so true, 42 and ["a"] keep their
// types; anything else is sent as a string.
func BuildPatch(assignments []string) (map[string]any, error) {
	patch := map[string]any{}
	for _, a := range assignments {
		key, raw, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q has no '='", ErrInvalidAssignment, a)
		}
		p, err := settings.ParsePath(strings.TrimSpace(key))
		if err != nil || len(p) == 0 {
			return nil, fmt.Errorf("%w: bad path %q", ErrInvalidAssignment, key)
		}
		if err := setPatch(patch, p, parseValue(raw)); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAssignment, err)
		}
	}
	return patch, nil
}

func parseValue(raw string) any {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	normalized, err := settings.Normalize(v)
	if err != nil {
		return raw
	}
	return normalized
}

func setPatch(patch map[string]any, p settings.Path, v any) error {
	cur := patch
	for i, seg := range p[:len(p)-1] {
		next, exists := cur[seg]
		if !exists {
			child := map[string]any{}
			cur[seg] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%s is already set to a value", p[:i+1])
		}
		cur = child
	}
	cur[p[len(p)-1]] = v
	return nil
}

// Lookup returns the value at p inside a settings document
func Lookup(doc map[string]any, p settings.Path) (any, bool) {
	var cur any = doc
	for _, seg := range p {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}
