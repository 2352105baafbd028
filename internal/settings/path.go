package settings

import (
	"fmt"
	"strings"
)

// Path addresses a value in the settings tree as an ordered list of keys,
// e.g. {"serial", "timeout", "connection"}. The empty path addresses the root
// and is only valid for reads.
type Path []string

// ParsePath parses the dotted form of a path ("serial.timeout.connection")
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}
	p := Path(strings.Split(s, "."))
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// MustParsePath is ParsePath for compile-time constants. It panics on error.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate rejects paths containing empty segments
func (p Path) Validate() error {
	for i, seg := range p {
		if seg == "" {
			return fmt.Errorf("%w: empty segment at position %d in %q", ErrInvalidPath, i, p.String())
		}
	}
	return nil
}

// String returns the dotted form of the path
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Child returns a new path with segs appended. The receiver is never modified.
func (p Path) Child(segs ...string) Path {
	out := make(Path, 0, len(p)+len(segs))
	out = append(out, p...)
	return append(out, segs...)
}

// Join returns a new path with other appended
func (p Path) Join(other Path) Path {
	return p.Child(other...)
}

// Equal reports whether both paths have the same segments
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// writable validates a path that is about to be written. The root cannot be
// replaced through a setter.
func (p Path) writable() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: cannot write the root", ErrInvalidPath)
	}
	return p.Validate()
}
