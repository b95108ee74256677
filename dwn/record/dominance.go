// Package record implements the per-record state machine:
// initial-write detection, the dominance tie-break, immutable-property
// enforcement, and the absent/present/deleted transitions. Grounded on the
// teacher's massifs/massifcontext2.go and massifs/massifcontextverified.go,
// which apply an analogous "is this candidate consistent with, and does it
// extend, the currently accepted state" check before committing.
package record

import (
	"github.com/datatrails/go-dwn/dwn/message"
)

// Dominant implements the dominance function: larger
// messageTimestamp wins; on a tie, the lexicographically larger messageCid
// wins. Ties occur only when two writers raced on the same recordId.
func Dominant(a, b *message.Message) (*message.Message, error) {
	cmp, err := Compare(a, b)
	if err != nil {
		return nil, err
	}
	if cmp >= 0 {
		return a, nil
	}
	return b, nil
}

// Compare returns -1, 0, or 1 as a's (timestamp, messageCid) precedes,
// ties, or follows b's, implementing the tie-break rule as a total
// order usable directly as a sort comparator.
func Compare(a, b *message.Message) (int, error) {
	if c := message.CompareTimestamps(a.Descriptor.MessageTimestamp, b.Descriptor.MessageTimestamp); c != 0 {
		return c, nil
	}
	aCID, err := a.MessageCID()
	if err != nil {
		return 0, err
	}
	bCID, err := b.MessageCID()
	if err != nil {
		return 0, err
	}
	switch {
	case aCID > bCID:
		return 1, nil
	case aCID < bCID:
		return -1, nil
	default:
		return 0, nil
	}
}
