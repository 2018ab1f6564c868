package script

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueText(t *testing.T) {
	assert.Equal(t, "42", Number(42).Text())
	assert.Equal(t, "-3", Number(-3).Text())
	assert.Equal(t, "2.5", Number(2.5).Text())
	assert.Equal(t, "true", Bool(true).Text())
	assert.Equal(t, "hello", String("hello").Text())
	assert.Equal(t, "[1, two, false]", Array(Number(1), String("two"), Bool(false)).Text())
	assert.Equal(t, "{a: 1, b: 2}", MapValue(map[string]Value{"b": Number(2), "a": Number(1)}).Text())
}

func TestValueCloneIsDeep(t *testing.T) {
	inner := MapValue(map[string]Value{"hp": Number(10)})
	original := Array(inner)
	clone := original.Clone()

	arr, ok := clone.AsArray()
	require.True(t, ok)
	obj, ok := arr[0].AsMap()
	require.True(t, ok)
	obj["hp"] = Number(99)

	srcArr, _ := original.AsArray()
	srcObj, _ := srcArr[0].AsMap()
	assert.True(t, srcObj["hp"].Equal(Number(10)))
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Number(1).Equal(Number(1)))
	assert.False(t, Number(1).Equal(String("1")))
	assert.True(t, Number(math.NaN()).Equal(Number(math.NaN())))
	assert.True(t, Array(Number(1), Number(2)).Equal(Array(Number(1), Number(2))))
	assert.False(t, Array(Number(1)).Equal(Array(Number(1), Number(2))))
	assert.True(t,
		MapValue(map[string]Value{"a": Bool(true)}).Equal(MapValue(map[string]Value{"a": Bool(true)})))
	assert.False(t,
		MapValue(map[string]Value{"a": Bool(true)}).Equal(MapValue(map[string]Value{"b": Bool(true)})))
}

func TestValueJSONRoundTrip(t *testing.T) {
	raw := map[string]any{
		"name":  "elva",
		"hp":    float64(12),
		"alive": true,
		"tags":  []any{"brave", "quick"},
	}
	v, err := FromJSON(raw)
	require.NoError(t, err)

	back, err := FromJSON(v.ToJSON())
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}

func TestFromJSONRejectsNull(t *testing.T) {
	_, err := FromJSON(nil)
	require.Error(t, err)
	assert.Equal(t, CodeValueUnsupported, ErrorCode(err))
}
