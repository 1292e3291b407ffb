package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// IsEmpty reports whether a legacy value should be treated as absent.
// nil, blank strings and empty slices/maps are empty; false and 0 are values.
func IsEmpty(val interface{}) bool {
	switch v := val.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []interface{}:
		for _, item := range v {
			if !IsEmpty(item) {
				return false
			}
		}
		return true
	case []string:
		for _, item := range v {
			if !IsEmpty(item) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		return len(v) == 0
	case primitive.A:
		return IsEmpty([]interface{}(v))
	default:
		return false
	}
}

// NormalizeArray turns a scalar-or-array legacy value into a slice with
// empty elements removed.
func NormalizeArray(val interface{}) []interface{} {
	var items []interface{}
	switch v := val.(type) {
	case nil:
		return []interface{}{}
	case []interface{}:
		items = v
	case primitive.A:
		items = []interface{}(v)
	case []string:
		items = make([]interface{}, 0, len(v))
		for _, s := range v {
			items = append(items, s)
		}
	default:
		items = []interface{}{v}
	}

	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		if !IsEmpty(item) {
			out = append(out, item)
		}
	}
	return out
}

// GetFirst returns the first non-empty element of a multi-value field,
// or the value itself when it is a scalar.
func GetFirst(val interface{}) interface{} {
	items := NormalizeArray(val)
	if len(items) == 0 {
		return nil
	}
	return items[0]
}

// ToString renders scalars as strings. Multi-value fields yield their first element.
func ToString(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case []interface{}, primitive.A, []string:
		return ToString(GetFirst(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ParseNumber extracts a float from numbers and from legacy strings such
// as "1,200 W" or "25 mph".
func ParseNumber(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case bool:
		return 0, fmt.Errorf("cannot convert bool to number")
	case []interface{}, primitive.A, []string:
		first := GetFirst(v)
		if first == nil {
			return 0, fmt.Errorf("empty list has no number")
		}
		return ParseNumber(first)
	}

	s := strings.ReplaceAll(ToString(val), ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty value is not a number")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	match := numberPattern.FindString(s)
	if match == "" {
		return 0, fmt.Errorf("no number in %q", s)
	}
	return strconv.ParseFloat(match, 64)
}

// ToBool understands the checkbox conventions of the legacy schema.
func ToBool(val interface{}) bool {
	switch v := val.(type) {
	case bool:
		return v
	case nil:
		return false
	case float64:
		return v != 0
	case int:
		return v != 0
	case []interface{}, primitive.A, []string:
		return len(NormalizeArray(v)) > 0
	}
	switch strings.ToLower(ToString(val)) {
	case "", "0", "false", "no", "off", "n":
		return false
	default:
		return true
	}
}

// ConvertDateTime parses the date layouts the legacy API emits.
func ConvertDateTime(val interface{}) (time.Time, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case primitive.DateTime:
		return v.Time(), nil
	case []byte:
		return ConvertDateTime(string(v))
	case string:
		s := strings.TrimSpace(v)
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"2006-01-02",
		}
		for _, f := range formats {
			if t, err := time.Parse(f, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unable to parse datetime: %s", v)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to datetime", val)
	}
}

func ConvertToInt(val interface{}) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		i, err := v.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(strings.TrimSpace(v))
	case []byte:
		return strconv.Atoi(strings.TrimSpace(string(v)))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

// IsNumeric reports whether s is a plain non-negative integer.
func IsNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
