package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqualityRangeBoundaryIncludesEnds(t *testing.T) {
	f := Filter{"n": Range(map[Comparator]Scalar{GTE: Number(1), LTE: Number(1)})}
	assert.True(t, f.Matches(map[string]Scalar{"n": Number(1)}))
}

func TestBooleanNeverMatchesStringSpelling(t *testing.T) {
	f := Filter{"published": Equality(Bool(true))}
	assert.False(t, f.Matches(map[string]Scalar{"published": String("true")}))
	assert.True(t, f.Matches(map[string]Scalar{"published": Bool(true)}))
}

func TestSafeIntegerBoundsSortCorrectly(t *testing.T) {
	max := EncodeKey(Number(9007199254740991))  // MAX_SAFE_INTEGER
	min := EncodeKey(Number(-9007199254740991)) // MIN_SAFE_INTEGER
	zero := EncodeKey(Number(0))
	assert.True(t, min < zero)
	assert.True(t, zero < max)
}

func TestFilterSetIsDisjunction(t *testing.T) {
	fs := Set{
		Filter{"schema": Equality(String("a"))},
		Filter{"schema": Equality(String("b"))},
	}
	assert.True(t, fs.Matches(map[string]Scalar{"schema": String("b")}))
	assert.False(t, fs.Matches(map[string]Scalar{"schema": String("c")}))
}

func TestEmptyFilterSetMatchesEverything(t *testing.T) {
	assert.True(t, Set{}.Matches(map[string]Scalar{"schema": String("c")}))
}

func TestSelectProbePrefersEqualityOverRange(t *testing.T) {
	fs := Set{Filter{
		"dateCreated": Range(map[Comparator]Scalar{GT: Number(0)}),
		"recordId":    Equality(String("abc")),
	}}
	prop, ok := SelectProbeProperty(fs)
	assert.True(t, ok)
	assert.Equal(t, "recordId", prop)
}

func TestSelectProbeOnEmptySetReturnsFalse(t *testing.T) {
	_, ok := SelectProbeProperty(Set{})
	assert.False(t, ok)
}
