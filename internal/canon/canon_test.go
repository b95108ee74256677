package canon

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeIsDeterministicUnderKeyOrder(t *testing.T) {
	a := map[string]interface{}{"b": "2", "a": "1", "c": int64(3)}
	b := map[string]interface{}{"c": int64(3), "a": "1", "b": "2"}

	encA, err := Encode(a)
	require.NoError(t, err)
	encB, err := Encode(b)
	require.NoError(t, err)
	assert.Equal(t, encA, encB)
}

func TestEncodeOmitsUnsetFields(t *testing.T) {
	withNil := map[string]interface{}{"a": "1", "b": nil}
	without := map[string]interface{}{"a": "1"}

	encWithNil, err := Encode(withNil)
	require.NoError(t, err)
	encWithout, err := Encode(without)
	require.NoError(t, err)
	assert.Equal(t, encWithout, encWithNil)
}

func TestEncodeRejectsExplicitNullInArray(t *testing.T) {
	_, err := Encode(map[string]interface{}{"a": []interface{}{"x", nil}})
	require.Error(t, err)
	var encErr *EncodeError
	require.ErrorAs(t, err, &encErr)
}

func TestEncodeRejectsNonFiniteNumber(t *testing.T) {
	_, err := Encode(map[string]interface{}{"a": math.Inf(1)})
	require.Error(t, err)
}

func TestCIDStableAcrossCalls(t *testing.T) {
	v := map[string]interface{}{"interface": "Records", "method": "Write"}
	c1, err := CID(v)
	require.NoError(t, err)
	c2, err := CID(v)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestCIDOfBytesDiffersFromCIDOfStructuredValue(t *testing.T) {
	raw := []byte("hello world")
	cRaw, err := CIDOfBytes(raw)
	require.NoError(t, err)

	cStruct, err := CID(map[string]interface{}{"data": raw})
	require.NoError(t, err)
	assert.NotEqual(t, cRaw, cStruct)
}

func TestParseCIDRoundTrips(t *testing.T) {
	v := map[string]interface{}{"a": "1"}
	c, err := CID(v)
	require.NoError(t, err)
	parsed, err := ParseCID(c)
	require.NoError(t, err)
	assert.Equal(t, c, parsed)
}

func TestParseCIDRejectsGarbage(t *testing.T) {
	_, err := ParseCID("not-a-cid")
	require.Error(t, err)
}
