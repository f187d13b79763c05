package cache_test

import (
	"encoding/json"
	"testing"

	"stratus-backend/domain/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_JSONRoundTrip(t *testing.T) {
	// Arrange
	original := cache.Map(map[string]cache.Value{
		"name":    cache.String("sg-1"),
		"port":    cache.Number(443),
		"enabled": cache.Bool(true),
		"tags":    cache.Strings("prod", "edge"),
		"empty":   cache.Null(),
	})

	// Act
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded cache.Value
	err = json.Unmarshal(data, &decoded)

	// Assert
	require.NoError(t, err)
	m, ok := decoded.AsMap()
	require.True(t, ok)

	name, ok := m["name"].AsString()
	assert.True(t, ok)
	assert.Equal(t, "sg-1", name)

	port, ok := m["port"].AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 443.0, port)

	enabled, ok := m["enabled"].AsBool()
	assert.True(t, ok)
	assert.True(t, enabled)

	assert.Equal(t, []string{"prod", "edge"}, m["tags"].AsStrings())
	assert.Equal(t, cache.KindNull, m["empty"].Kind())
}

func TestFromInterface_WidensIntegers(t *testing.T) {
	v, err := cache.FromInterface(42)
	require.NoError(t, err)

	n, ok := v.AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 42.0, n)
}

func TestFromInterface_RejectsUnsupportedType(t *testing.T) {
	_, err := cache.FromInterface(make(chan int))

	assert.Error(t, err)
}

func TestAttributes_CloneIsIndependent(t *testing.T) {
	// Arrange
	attrs, err := cache.AttributesFrom(map[string]any{
		"region": "us-east",
		"nested": map[string]any{"a": 1.0},
	})
	require.NoError(t, err)

	// Act
	cloned := attrs.Clone()
	cloned["region"] = cache.String("us-west")

	// Assert
	region, _ := attrs["region"].AsString()
	assert.Equal(t, "us-east", region)
}

func TestValue_AsStringsSkipsNonStrings(t *testing.T) {
	v := cache.Sequence(cache.String("sg-1"), cache.Number(2), cache.String("sg-3"))

	assert.Equal(t, []string{"sg-1", "sg-3"}, v.AsStrings())
}
