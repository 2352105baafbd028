package settings

import (
	"errors"
	"math"
	"testing"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, false},
		{"true", true, true},
		{"false", false, false},
		{"empty string", "", false},
		{"false string", "false", false},
		{"False string", " False ", false},
		{"zero string", "0", false},
		{"other string", "no", true},
		{"true string", "true", true},
		{"zero int", 0, false},
		{"int", 3, true},
		{"zero float", 0.0, false},
		{"float", 0.1, true},
		{"int64", int64(2), true},
		{"empty list", []any{}, false},
		{"list", []any{1}, true},
		{"empty map", Tree{}, false},
		{"typed slice", []string{"a"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truthy(tt.in); got != tt.want {
				t.Errorf("Truthy(%#v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in     any
		want   int
		wantOK bool
	}{
		{42, 42, true},
		{"42", 42, true},
		{" 7 ", 7, true},
		{"4.7", 4, true},
		{4.7, 4, true},
		{true, 1, true},
		{int32(9), 9, true},
		{"not-a-number", 0, false},
		{nil, 0, false},
		{[]any{1}, 0, false},
		{1e20, 0, false},
		{-1e20, 0, false},
		{math.Inf(1), 0, false},
		{"99999999999999999999", 0, false},
		{"-99999999999999999999", 0, false},
		{"1e20", 0, false},
		{"-2.5", -2, true},
	}

	for _, tt := range tests {
		got, ok := ParseInt(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseInt(%#v) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{1.5, 1.5, true},
		{"1.5", 1.5, true},
		{2, 2, true},
		{float32(0.5), 0.5, true},
		{"NaN", 0, false},
		{"abc", 0, false},
		{Tree{}, 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseFloat(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseFloat(%#v) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{true, "true"},
		{12, "12"},
		{2.5, "2.5"},
		{30.0, "30"},
	}

	for _, tt := range tests {
		if got := Stringify(tt.in); got != tt.want {
			t.Errorf("Stringify(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePath(t *testing.T) {
	p, err := ParsePath("serial.timeout.connection")
	if err != nil {
		t.Fatalf("ParsePath() error = %v", err)
	}
	if !p.Equal(Path{"serial", "timeout", "connection"}) {
		t.Errorf("ParsePath() = %v", p)
	}
	if p.String() != "serial.timeout.connection" {
		t.Errorf("String() = %q", p.String())
	}

	for _, bad := range []string{"a..b", ".a", "a."} {
		if _, err := ParsePath(bad); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("ParsePath(%q) error = %v, want ErrInvalidPath", bad, err)
		}
	}

	root, err := ParsePath("")
	if err != nil || len(root) != 0 {
		t.Errorf("ParsePath(\"\") = (%v, %v), want empty root path", root, err)
	}
}

func TestChildDoesNotAlias(t *testing.T) {
	base := make(Path, 1, 4)
	base[0] = "plugins"

	a := base.Child("a")
	b := base.Child("b")
	if a[1] != "a" || b[1] != "b" {
		t.Errorf("Child() aliased the parent backing array: a=%v b=%v", a, b)
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize(map[string]any{
		"ports": []string{"/dev/ttyUSB0"},
		"baud":  uint16(57600),
		"ratio": float32(0.25),
		"nest":  map[string]string{"k": "v"},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	want := Tree{
		"ports": []any{"/dev/ttyUSB0"},
		"baud":  57600,
		"ratio": 0.25,
		"nest":  Tree{"k": "v"},
	}
	if !Equal(got, want) {
		t.Errorf("Normalize() = %#v, want %#v", got, want)
	}

	if _, err := Normalize(struct{}{}); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("Normalize(struct) error = %v, want ErrUnsupportedValue", err)
	}
}

func TestEqualComparesNumbersByValue(t *testing.T) {
	if !Equal(5, 5.0) {
		t.Error("Equal(5, 5.0) = false, want true")
	}
	if Equal(5, "5") {
		t.Error("Equal(5, \"5\") = true, want false")
	}
	if !Equal(Tree{"a": []any{1, "x"}}, Tree{"a": []any{1.0, "x"}}) {
		t.Error("Equal on nested trees = false, want true")
	}
	if Equal(Tree{"a": 1}, Tree{"a": 1, "b": 2}) {
		t.Error("Equal on trees of different size = true, want false")
	}
}

func TestDeleteInPrunesEmptyParents(t *testing.T) {
	tree := Tree{"a": Tree{"b": Tree{"c": 1}}, "keep": true}

	if !deleteIn(tree, Path{"a", "b", "c"}) {
		t.Fatal("deleteIn() = false, want true")
	}
	if _, ok := tree["a"]; ok {
		t.Errorf("empty parents not pruned: %#v", tree)
	}
	if deleteIn(tree, Path{"missing", "x"}) {
		t.Error("deleteIn() on missing path = true, want false")
	}
}

func TestBase64Obfuscator(t *testing.T) {
	var obf Base64Obfuscator

	encoded := obf.Encode("secret")
	if encoded == "secret" {
		t.Fatal("Encode() returned plain text")
	}
	plain, ok := obf.Decode(encoded)
	if !ok || plain != "secret" {
		t.Errorf("Decode() = (%q, %v), want (\"secret\", true)", plain, ok)
	}
	if _, ok := obf.Decode("secret"); ok {
		t.Error("Decode() accepted a string without the marker")
	}
}
