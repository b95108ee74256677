package record

import (
	"fmt"

	"github.com/datatrails/go-dwn/dwn/message"
)

// ErrImmutablePropertyChanged is returned by VerifyEqualityOfImmutableProperties.
type ErrImmutablePropertyChanged struct {
	Property string
}

func (e *ErrImmutablePropertyChanged) Error() string {
	return fmt.Sprintf("record: immutable property %q differs from the initial write", e.Property)
}

// mutableProperties is the fixed set of descriptor properties a subsequent
// write may change. Every other property must match the initial write byte
// for byte.
var mutableProperties = map[string]bool{
	"dataCid":       true,
	"dataSize":      true,
	"datePublished": true,
	"published":     true,
	"messageTimestamp": true,
}

// VerifyEqualityOfImmutableProperties checks a candidate write against the
// record's initial write: every descriptor property outside the mutable set
// must be byte-identical between initial and candidate.
func VerifyEqualityOfImmutableProperties(initial, candidate *message.Descriptor) error {
	a := initial.Canonical()
	b := candidate.Canonical()

	keys := make(map[string]bool, len(a)+len(b))
	for k := range a {
		keys[k] = true
	}
	for k := range b {
		keys[k] = true
	}

	for k := range keys {
		if mutableProperties[k] {
			continue
		}
		av, aok := a[k]
		bv, bok := b[k]
		if aok != bok {
			return &ErrImmutablePropertyChanged{Property: k}
		}
		if aok && !deepEqual(av, bv) {
			return &ErrImmutablePropertyChanged{Property: k}
		}
	}
	return nil
}

// deepEqual compares the limited value domain internal/canon produces:
// strings, bools, numbers, maps, and slices of those.
func deepEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if !deepEqual(v, bv[k]) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// IsInitialWrite reports whether descriptor/author compute to recordID,
// i.e. whether this write is the record's initial write.
func IsInitialWrite(descriptor *message.Descriptor, author, recordID string) (bool, error) {
	computed, err := message.ComputeRecordID(descriptor, author)
	if err != nil {
		return false, err
	}
	return computed == recordID, nil
}
