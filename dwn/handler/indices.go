package handler

import (
	"github.com/datatrails/go-dwn/dwn/filter"
	"github.com/datatrails/go-dwn/dwn/message"
	"github.com/datatrails/go-dwn/dwn/store"
	"github.com/datatrails/go-dwn/internal/jws"
)

// buildIndices materializes the store.Indices a message is put under: every
// descriptor field it carries, plus the synthetic keys author, recordId,
// entryId, contextId?, attester?, isLatestBaseState, and a
// published boolean coerced from descriptor.published (absent means false,
// not "unknown").
func buildIndices(m *message.Message, entryID, attester string, isLatestBaseState bool) store.Indices {
	idx := make(store.Indices)
	for k, v := range m.Descriptor.Canonical() {
		s, ok := toScalar(v)
		if !ok {
			continue
		}
		idx[k] = s
	}
	idx["published"] = filter.Bool(m.Descriptor.Published != nil && *m.Descriptor.Published)
	idx["author"] = filter.String(m.Author)
	idx["entryId"] = filter.String(entryID)
	idx["isLatestBaseState"] = filter.Bool(isLatestBaseState)
	if m.RecordID != "" {
		idx["recordId"] = filter.String(m.RecordID)
	}
	if m.ContextID != "" {
		idx["contextId"] = filter.String(m.ContextID)
	}
	if attester != "" {
		idx["attester"] = filter.String(attester)
	}
	return idx
}

func toScalar(v interface{}) (filter.Scalar, bool) {
	switch t := v.(type) {
	case string:
		return filter.String(t), true
	case bool:
		return filter.Bool(t), true
	case int64:
		return filter.Number(float64(t)), true
	case float64:
		return filter.Number(t), true
	default:
		// definition, dateSort's zero value, and other non-scalar or
		// compound canonical fields are not independently indexed; they
		// are reachable through the stored message body itself.
		return filter.Scalar{}, false
	}
}

// attesterOf returns the DID that produced m's attestation, or "" if m
// carries none.
func attesterOf(m *message.Message) string {
	if m.Attestation == nil || len(m.Attestation.Signatures) == 0 {
		return ""
	}
	did, err := jws.ExtractSignerDID(m.Attestation.Signatures[0])
	if err != nil {
		return ""
	}
	return did
}
