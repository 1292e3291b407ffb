package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		val  interface{}
		want bool
	}{
		{"nil", nil, true},
		{"blank string", "   ", true},
		{"string", "x", false},
		{"empty list", []interface{}{}, true},
		{"list of blanks", []interface{}{"", nil}, true},
		{"list with value", []interface{}{"", "a"}, false},
		{"empty map", map[string]interface{}{}, true},
		{"false is a value", false, false},
		{"zero is a value", 0.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEmpty(tt.val))
		})
	}
}

func TestNormalizeArray(t *testing.T) {
	assert.Equal(t, []interface{}{"a"}, NormalizeArray("a"))
	assert.Equal(t, []interface{}{"a", "b"}, NormalizeArray([]interface{}{"a", "", "b"}))
	assert.Equal(t, []interface{}{"x"}, NormalizeArray([]string{"x", " "}))
	assert.Empty(t, NormalizeArray(nil))
	assert.Empty(t, NormalizeArray(""))
}

func TestGetFirst(t *testing.T) {
	assert.Equal(t, "b", GetFirst([]interface{}{"", "b", "c"}))
	assert.Equal(t, 42.0, GetFirst(42.0))
	assert.Nil(t, GetFirst([]interface{}{}))
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		val     interface{}
		want    float64
		wantErr bool
	}{
		{val: 12.5, want: 12.5},
		{val: "25", want: 25},
		{val: "1,200 W", want: 1200},
		{val: "up to 40 miles", want: 40},
		{val: []interface{}{"48V"}, want: 48},
		{val: "n/a", wantErr: true},
		{val: "", wantErr: true},
		{val: true, wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseNumber(tt.val)
		if tt.wantErr {
			assert.Error(t, err, "value %v", tt.val)
			continue
		}
		require.NoError(t, err, "value %v", tt.val)
		assert.Equal(t, tt.want, got)
	}
}

func TestToBool(t *testing.T) {
	assert.True(t, ToBool("yes"))
	assert.True(t, ToBool(1.0))
	assert.True(t, ToBool([]interface{}{"on"}))
	assert.False(t, ToBool("0"))
	assert.False(t, ToBool(""))
	assert.False(t, ToBool([]interface{}{}))
}

func TestConvertDateTime(t *testing.T) {
	got, err := ConvertDateTime("2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = ConvertDateTime("2025-03-04 10:11:12")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Day())

	_, err = ConvertDateTime("yesterday")
	assert.Error(t, err)
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, IsNumeric("123"))
	assert.False(t, IsNumeric("12a"))
	assert.False(t, IsNumeric(""))
}
