package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInt64List(t *testing.T) {
	got, err := ParseInt64List("1, 137,,56")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 137, 56}, got)

	_, err = ParseInt64List("1,abc")
	assert.Error(t, err)

	got, err = ParseInt64List("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMustGetJSONString(t *testing.T) {
	assert.Equal(t, "{}", MustGetJSONString(nil))
	assert.Equal(t, `{"a":1}`, MustGetJSONString(map[string]int{"a": 1}))
	assert.Equal(t, "{}", MustGetJSONString(make(chan int)))
}

func TestNewCutUUIDString(t *testing.T) {
	id := NewCutUUIDString()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")
}
