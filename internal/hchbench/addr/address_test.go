package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressZeroValue(t *testing.T) {
	var a Address
	assert.True(t, a.IsZero())
	assert.Equal(t, uint64(0), a.ID())
	assert.Equal(t, "$0", a.String())
}

func TestAddressString(t *testing.T) {
	a := New(42)
	assert.False(t, a.IsZero())
	assert.Equal(t, "$42", a.String())
}

func TestAddressJSONRoundTrip(t *testing.T) {
	a := New(7)
	data, err := a.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "7", string(data))

	var b Address
	require.NoError(t, b.UnmarshalJSON(data))
	assert.Equal(t, a, b)
}

func TestAddressEquality(t *testing.T) {
	assert.Equal(t, New(5), New(5))
	assert.NotEqual(t, New(5), New(6))
}
