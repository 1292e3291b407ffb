package models

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/BartekS5/catalog-migrator/pkg/utils"
)

// FieldBag is the untyped key/value map of the legacy flat schema.
// All reads go through the accessors below so that presence and emptiness
// are judged the same way everywhere.
type FieldBag map[string]interface{}

// UnmarshalJSON accepts an object. The legacy API encodes an empty bag as
// false or [], both of which decode to an empty bag.
func (b *FieldBag) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		*b = FieldBag{}
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	*b = FieldBag(m)
	return nil
}

// Get returns the raw value for key. Dotted keys walk nested objects when
// no literal key of that name exists.
func (b FieldBag) Get(key string) (interface{}, bool) {
	if b == nil {
		return nil, false
	}
	if v, ok := b[key]; ok {
		return v, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}

	var cur interface{} = map[string]interface{}(b)
	for _, part := range strings.Split(key, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether key holds a non-empty value.
func (b FieldBag) Has(key string) bool {
	v, ok := b.Get(key)
	return ok && !utils.IsEmpty(v)
}

func (b FieldBag) String(key, def string) string {
	v, ok := b.Get(key)
	if !ok || utils.IsEmpty(v) {
		return def
	}
	return utils.ToString(v)
}

func (b FieldBag) Float(key string, def float64) float64 {
	v, ok := b.Get(key)
	if !ok {
		return def
	}
	f, err := utils.ParseNumber(v)
	if err != nil {
		return def
	}
	return f
}

func (b FieldBag) Int(key string, def int) int {
	return int(b.Float(key, float64(def)))
}

func (b FieldBag) Bool(key string) bool {
	v, _ := b.Get(key)
	return utils.ToBool(v)
}

// Array returns the value as a slice, wrapping scalars.
func (b FieldBag) Array(key string) []interface{} {
	v, _ := b.Get(key)
	return utils.NormalizeArray(v)
}

// First returns the first non-empty element of a multi-value field.
func (b FieldBag) First(key string) interface{} {
	v, _ := b.Get(key)
	return utils.GetFirst(v)
}

// Sub returns a nested object as a FieldBag.
func (b FieldBag) Sub(key string) FieldBag {
	v, _ := b.Get(key)
	m, ok := asMap(v)
	if !ok {
		return FieldBag{}
	}
	return FieldBag(m)
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case FieldBag:
		return m, true
	default:
		return nil, false
	}
}
