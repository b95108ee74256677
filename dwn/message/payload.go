package message

import (
	"github.com/datatrails/go-dwn/internal/canon"
	"github.com/datatrails/go-dwn/internal/jws"
)

// SignaturePayload is the method-specific object a general JWS's detached
// payload encodes: it at minimum carries descriptorCid, and for
// records recordId and the optional fields below.
type SignaturePayload struct {
	DescriptorCID       string
	RecordID            string
	ContextID           string
	AttestationCID      string
	EncryptionCID       string
	DelegatedGrantID    string
	PermissionsGrantID  string
	ProtocolRole        string
}

func (p SignaturePayload) canonical() map[string]interface{} {
	out := map[string]interface{}{"descriptorCid": p.DescriptorCID}
	setIfNotEmpty(out, "recordId", p.RecordID)
	setIfNotEmpty(out, "contextId", p.ContextID)
	setIfNotEmpty(out, "attestationCid", p.AttestationCID)
	setIfNotEmpty(out, "encryptionCid", p.EncryptionCID)
	setIfNotEmpty(out, "delegatedGrantId", p.DelegatedGrantID)
	setIfNotEmpty(out, "permissionsGrantId", p.PermissionsGrantID)
	setIfNotEmpty(out, "protocolRole", p.ProtocolRole)
	return out
}

// Encode canonically encodes p for signing (the bytes that become a
// GeneralJWS's detached payload).
func (p SignaturePayload) Encode() ([]byte, error) {
	return canon.Encode(p.canonical())
}

// DecodeSignaturePayload decodes a GeneralJWS's payload back into a
// SignaturePayload, as the validator does to compare against the message
// body's own recordId/contextId/etc.
func DecodeSignaturePayload(g *jws.GeneralJWS) (SignaturePayload, error) {
	fields, err := jws.DecodePayload(g)
	if err != nil {
		return SignaturePayload{}, err
	}
	return SignaturePayload{
		DescriptorCID:      stringField(fields, "descriptorCid"),
		RecordID:           stringField(fields, "recordId"),
		ContextID:          stringField(fields, "contextId"),
		AttestationCID:     stringField(fields, "attestationCid"),
		EncryptionCID:      stringField(fields, "encryptionCid"),
		DelegatedGrantID:   stringField(fields, "delegatedGrantId"),
		PermissionsGrantID: stringField(fields, "permissionsGrantId"),
		ProtocolRole:       stringField(fields, "protocolRole"),
	}, nil
}

func stringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
