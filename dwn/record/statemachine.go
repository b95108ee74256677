package record

import (
	"github.com/datatrails/go-dwn/dwn/message"
)

// State names which of the three states (absent, present, deleted) a
// recordId currently occupies, as observed by a handler via the MessageStore (this package
// never touches storage itself — it is handed whatever the handler already
// looked up, the same separation the teacher keeps between a MassifContext
// and the MassifCommitter that decides whether to commit it).
type State int

const (
	StateAbsent State = iota
	StatePresent
	StateDeleted
)

// WriteDecision is the result of evaluating an incoming RecordsWrite against
// the record's current state.
type WriteDecision struct {
	Accept     bool
	IsInitial  bool
	RejectCode string // set when Accept is false: "NoInitialWrite", "ImmutableProperty", "NotDominant"
}

// DecideWrite implements the RecordsWrite transitions.
//
//   - state==StateAbsent: accept iff incoming is the initial write.
//   - state==StatePresent: accept iff incoming's immutable properties match
//     initialWrite's and incoming dominates currentDominant.
//   - state==StateDeleted: accept iff incoming dominates currentDominant
//     (which here is the tombstone) under the same tie-break; immutable
//     properties are still checked against initialWrite.
func DecideWrite(state State, initialWrite, currentDominant, incoming *message.Message, author string) (WriteDecision, error) {
	if state == StateAbsent {
		isInitial, err := IsInitialWrite(&incoming.Descriptor, author, incoming.RecordID)
		if err != nil {
			return WriteDecision{}, err
		}
		if !isInitial {
			return WriteDecision{Accept: false, RejectCode: "NoInitialWrite"}, nil
		}
		return WriteDecision{Accept: true, IsInitial: true}, nil
	}

	// StatePresent or StateDeleted: initialWrite and currentDominant must
	// both be supplied by the caller.
	if err := VerifyEqualityOfImmutableProperties(&initialWrite.Descriptor, &incoming.Descriptor); err != nil {
		return WriteDecision{Accept: false, RejectCode: "ImmutableProperty"}, nil
	}

	cmp, err := Compare(incoming, currentDominant)
	if err != nil {
		return WriteDecision{}, err
	}
	if cmp <= 0 {
		return WriteDecision{Accept: false, RejectCode: "NotDominant"}, nil
	}
	return WriteDecision{Accept: true}, nil
}

// DeleteDecision is the result of evaluating an incoming RecordsDelete.
type DeleteDecision struct {
	Accept     bool
	RejectCode string
}

// DecideDelete implements the RecordsDelete transition: accept iff
// the incoming tombstone dominates the record's current dominant write
// under the same tie-break rule used for writes.
func DecideDelete(currentDominant, incoming *message.Message) (DeleteDecision, error) {
	cmp, err := Compare(incoming, currentDominant)
	if err != nil {
		return DeleteDecision{}, err
	}
	if cmp <= 0 {
		return DeleteDecision{Accept: false, RejectCode: "NotDominant"}, nil
	}
	return DeleteDecision{Accept: true}, nil
}

// PrunedWrites returns the messageCids of allWrites that are neither the
// initial write nor the newly dominant write: the "prior writes other
// than the initial write are pruned" garbage-collection rule, applied both
// when a newer write becomes dominant and when a tombstone becomes
// dominant.
func PrunedWrites(initialCID, newDominantCID string, allWrites []*message.Message) ([]string, error) {
	var pruned []string
	for _, w := range allWrites {
		cid, err := w.MessageCID()
		if err != nil {
			return nil, err
		}
		if cid == initialCID || cid == newDominantCID {
			continue
		}
		pruned = append(pruned, cid)
	}
	return pruned, nil
}
