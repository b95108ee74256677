// Package filter implements the equality/one-of/range filter grammar and the
// encoded index keys it compiles to, grounded on the teacher's
// massifs/storageschema package: that package turns a storage path into an
// object index (ObjectIndexFromPath); here we turn a scalar value into an
// ordered index key, the same "value <-> sortable key" duality.
package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags which alternative of Scalar is populated.
type Kind uint8

const (
	KindString Kind = iota
	KindNumber
	KindBool
)

// Scalar is the tagged variant the store boundary's open string -> scalar
// index map is built from internally.
type Scalar struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
}

func String(s string) Scalar { return Scalar{Kind: KindString, Str: s} }
func Number(n float64) Scalar { return Scalar{Kind: KindNumber, Num: n} }
func Bool(b bool) Scalar      { return Scalar{Kind: KindBool, Bool: b} }

// Equal reports whether two scalars are identical in kind and value.
// Booleans never equal strings, even "true"/"false".
func (s Scalar) Equal(o Scalar) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case KindString:
		return s.Str == o.Str
	case KindNumber:
		return s.Num == o.Num
	case KindBool:
		return s.Bool == o.Bool
	default:
		return false
	}
}

// Compare orders two same-kind scalars; booleans compare false < true.
// Comparing across kinds always returns 0 (neither bound is satisfied by
// range filters across mismatched kinds).
func (s Scalar) Compare(o Scalar) int {
	if s.Kind != o.Kind {
		return 0
	}
	switch s.Kind {
	case KindString:
		return strings.Compare(s.Str, o.Str)
	case KindNumber:
		switch {
		case s.Num < o.Num:
			return -1
		case s.Num > o.Num:
			return 1
		default:
			return 0
		}
	case KindBool:
		if s.Bool == o.Bool {
			return 0
		}
		if !s.Bool && o.Bool {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// numberKeyWidth bounds the fixed-width zero-padded decimal encoding so
// that byte order equals numeric order up to JS's MAX_SAFE_INTEGER (2^53-1).
const numberKeyWidth = 16 // len(strconv.FormatInt(1<<53, 10)) == 16

// EncodeKey produces the ordered, lexicographically-comparable byte
// encoding of s: numbers as fixed-width
// zero-padded decimal with a "!"-prefixed complement for negatives so sort
// order matches numeric order across the full safe-integer range; strings
// as JSON-quoted values; booleans as the literal words true/false.
func EncodeKey(s Scalar) string {
	switch s.Kind {
	case KindString:
		return strconv.Quote(s.Str)
	case KindBool:
		if s.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return encodeNumberKey(s.Num)
	default:
		return ""
	}
}

func encodeNumberKey(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		n = 0
	}
	if n >= 0 {
		return fmt.Sprintf("%0*d", numberKeyWidth, int64(n))
	}
	// Negative numbers: complement against the maximum representable
	// magnitude so that more-negative values sort lexicographically
	// smaller, then prefix with "!" so any negative key sorts before every
	// non-negative key (which start with a digit, all > '!' in ASCII).
	maxMag := int64(1)
	for i := 0; i < numberKeyWidth; i++ {
		maxMag *= 10
	}
	complement := maxMag + int64(n) // n is negative
	return "!" + fmt.Sprintf("%0*d", numberKeyWidth, complement)
}
