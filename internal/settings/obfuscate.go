package settings

import (
	"encoding/base64"
	"strings"
)

// Obfuscator encodes secrets written with SetEncrypted so they are not
// stored as plain text. It is a reversible encoding, not encryption.
type Obfuscator interface {
	Encode(plain string) string
	// Decode reports false when s was not produced by Encode
	Decode(s string) (string, bool)
}

// obfuscatedPrefix marks encoded strings in the stored tree
const obfuscatedPrefix = "$obf$"

// Base64Obfuscator is the default Obfuscator
type Base64Obfuscator struct{}

// Encode implements Obfuscator
func (Base64Obfuscator) Encode(plain string) string {
	return obfuscatedPrefix + base64.StdEncoding.EncodeToString([]byte(plain))
}

// Decode implements Obfuscator
func (Base64Obfuscator) Decode(s string) (string, bool) {
	if !strings.HasPrefix(s, obfuscatedPrefix) {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, obfuscatedPrefix))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// plainPrefix escapes stored plain strings that would otherwise decode as
// obfuscated
const plainPrefix = "$plain$"

// conceal escapes every plain string inside v that reveal would alter. v
// must already be a copy.
func conceal(obf Obfuscator, v any) any {
	switch val := v.(type) {
	case string:
		if _, ok := obf.Decode(val); ok || strings.HasPrefix(val, plainPrefix) {
			return plainPrefix + val
		}
		return val
	case Tree:
		for k, child := range val {
			val[k] = conceal(obf, child)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = conceal(obf, child)
		}
		return val
	default:
		return val
	}
}

// reveal decodes every obfuscated string inside v and unescapes plain ones.
// v must already be a copy.
func reveal(obf Obfuscator, v any) any {
	switch val := v.(type) {
	case string:
		if plain, ok := strings.CutPrefix(val, plainPrefix); ok {
			return plain
		}
		if plain, ok := obf.Decode(val); ok {
			return plain
		}
		return val
	case Tree:
		for k, child := range val {
			val[k] = reveal(obf, child)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = reveal(obf, child)
		}
		return val
	default:
		return val
	}
}
