package settings

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Truthy coerces any settings value to a boolean. Strings are true unless
// empty, "false" or "0"; numbers are true when non-zero; lists and maps are
// true when non-empty.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		return s != "" && s != "false" && s != "0"
	case int:
		return val != 0
	case float64:
		return val != 0 && !math.IsNaN(val)
	case []any:
		return len(val) > 0
	case Tree:
		return len(val) > 0
	}
	if n, err := Normalize(v); err == nil {
		return Truthy(n)
	}
	return true
}

// ParseInt coerces v to an int. Floats are truncated; numeric strings are
// parsed. The second result is false when v has no integer reading.
func ParseInt(v any) (int, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case int:
		return val, true
	case float64:
		return floatToInt(val)
	case string:
		s := strings.TrimSpace(val)
		i, err := strconv.ParseInt(s, 10, 0)
		if err == nil {
			return int(i), true
		}
		if errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToInt(f)
		}
		return 0, false
	case nil, []any, Tree:
		return 0, false
	}
	if n, err := Normalize(v); err == nil {
		switch n.(type) {
		case int, float64, string:
			return ParseInt(n)
		}
	}
	return 0, false
}

// floatToInt truncates f, failing for values an int cannot hold
func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || f >= maxIntFloat || f < -maxIntFloat {
		return 0, false
	}
	return int(f), true
}

// maxIntFloat is 2^(bits-1), the first float64 past the int range
const maxIntFloat = float64(1 << (strconv.IntSize - 1))

// ParseFloat coerces v to a float64 the same way ParseInt does
func ParseFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case int:
		return float64(val), true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, false
		}
		return val, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case nil, []any, Tree:
		return 0, false
	}
	if n, err := Normalize(v); err == nil {
		switch n.(type) {
		case int, float64, string:
			return ParseFloat(n)
		}
	}
	return 0, false
}

// Stringify renders a scalar settings value as a string. nil renders empty.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
