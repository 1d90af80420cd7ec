package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("x")
	var _ Value = Int(42)
	var _ Value = Bool(true)
	var _ Value = Array{String("a"), Int(1)}
	var _ Value = Object{"k": String("v")}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"ints", Int(0x41), Int(0x41), true},
		{"int mismatch", Int(0x41), Int(0x42), false},
		{"int vs string", Int(1), String("1"), false},
		{"nil is null", nil, Null{}, true},
		{"null vs int", Null{}, Int(0), false},
		{"nested equal",
			Object{"a": Array{Int(1), String("x")}, "b": Bool(true)},
			Object{"b": Bool(true), "a": Array{Int(1), String("x")}},
			true},
		{"nested differ",
			Object{"a": Array{Int(1), String("x")}},
			Object{"a": Array{Int(1), String("y")}},
			false},
		{"array length", Array{Int(1)}, Array{Int(1), Int(2)}, false},
		{"object missing key", Object{"a": Int(1)}, Object{"b": Int(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a))
		})
	}
}

func TestUnmarshal(t *testing.T) {
	v, err := Unmarshal([]byte(`{"byte": 88, "tags": ["a", true, null]}`))
	require.NoError(t, err)

	want := Object{
		"byte": Int(88),
		"tags": Array{String("a"), Bool(true), Null{}},
	}
	assert.True(t, Equal(want, v), "got %s", Format(v))
}

func TestUnmarshalRejectsFloats(t *testing.T) {
	_, err := Unmarshal([]byte(`1.5`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are not allowed")

	_, err = Unmarshal([]byte(`{"x": [2e3]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "object[\"x\"]")
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"n":   88,
		"f":   float64(3),
		"u":   uint8(0xFF),
		"arr": []any{"s", json.Number("7")},
		"yml": map[any]any{"k": true},
	})
	require.NoError(t, err)

	want := Object{
		"n":   Int(88),
		"f":   Int(3),
		"u":   Int(255),
		"arr": Array{String("s"), Int(7)},
		"yml": Object{"k": Bool(true)},
	}
	assert.True(t, Equal(want, v), "got %s", Format(v))

	_, err = FromAny(map[any]any{1: "x"})
	assert.Error(t, err)

	_, err = FromAny(2.5)
	assert.Error(t, err)

	_, err = FromAny(struct{}{})
	assert.Error(t, err)
}

func TestToAnyRoundTrip(t *testing.T) {
	v := Object{"a": Array{Int(1), Null{}}, "b": String("x")}
	back, err := FromAny(ToAny(v))
	require.NoError(t, err)
	assert.True(t, Equal(v, back))
}

func TestSortedKeys(t *testing.T) {
	obj := Object{"a": Int(1), "A": Int(2), "aa": Int(3), "Aa": Int(4), "AA": Int(5), "aA": Int(6)}
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}
