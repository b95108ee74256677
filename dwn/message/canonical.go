package message

import (
	"github.com/datatrails/go-dwn/internal/canon"
)

// Canonical returns d's canonical field bag: every descriptor property the
// message actually sets, keyed exactly as on the wire. Unset fields are
// simply absent from the map (not encoded as explicit null); internal/canon's
// Encode further sorts keys and rejects any value outside the supported
// schema domain.
func (d *Descriptor) Canonical() map[string]interface{} {
	out := map[string]interface{}{
		"interface":        string(d.Interface),
		"method":           string(d.Method),
		"messageTimestamp": d.MessageTimestamp,
	}
	setIfNotEmpty(out, "protocol", d.Protocol)
	setIfNotEmpty(out, "protocolPath", d.ProtocolPath)
	setIfNotEmpty(out, "schema", d.Schema)
	setIfNotEmpty(out, "recipient", d.Recipient)
	setIfNotEmpty(out, "parentId", d.ParentID)
	setIfNotEmpty(out, "dataCid", d.DataCID)
	if d.DataSizeSet {
		out["dataSize"] = d.DataSize
	}
	setIfNotEmpty(out, "dateCreated", d.DateCreated)
	if d.Published != nil {
		out["published"] = *d.Published
	}
	setIfNotEmpty(out, "datePublished", d.DatePublished)
	setIfNotEmpty(out, "dataFormat", d.DataFormat)
	if d.Definition != nil {
		out["definition"] = d.Definition.canonical()
	}
	setIfNotEmpty(out, "dateSort", string(d.DateSort))
	return out
}

func setIfNotEmpty(m map[string]interface{}, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func (pd *ProtocolDefinition) canonical() map[string]interface{} {
	types := map[string]interface{}{}
	for path, t := range pd.Types {
		td := map[string]interface{}{}
		setIfNotEmpty(td, "schema", t.Schema)
		if len(t.DataFormats) > 0 {
			formats := make([]interface{}, len(t.DataFormats))
			for i, f := range t.DataFormats {
				formats[i] = f
			}
			td["dataFormats"] = formats
		}
		types[path] = td
	}
	structure := map[string]interface{}{}
	for path, rs := range pd.Structure {
		structure[path] = rs.canonical()
	}
	return map[string]interface{}{
		"protocol":  pd.Protocol,
		"published": pd.Published,
		"types":     types,
		"structure": structure,
	}
}

func (rs RuleSet) canonical() map[string]interface{} {
	out := map[string]interface{}{}
	if rs.Role {
		out["$role"] = true
	}
	if len(rs.Actions) > 0 {
		actions := make([]interface{}, len(rs.Actions))
		for i, a := range rs.Actions {
			am := map[string]interface{}{"can": string(a.Action)}
			setIfNotEmpty(am, "who", string(a.Who))
			setIfNotEmpty(am, "of", a.OfPath)
			setIfNotEmpty(am, "role", a.Role)
			actions[i] = am
		}
		out["$actions"] = actions
	}
	for path, child := range rs.Children {
		out[path] = child.canonical()
	}
	return out
}

// DescriptorCID is the CID of the descriptor alone.
func (m *Message) DescriptorCID() (string, error) {
	return canon.CID(m.Descriptor.Canonical())
}

// Canonical returns the message's full canonical field bag: descriptor,
// authorization, and any attached sub-objects (recordId, contextId,
// attestation, encryption, encodedData), used to compute messageCid.
func (m *Message) Canonical() (map[string]interface{}, error) {
	out := map[string]interface{}{
		"descriptor": m.Descriptor.Canonical(),
	}

	auth := map[string]interface{}{
		"signature": m.Authorization.Signature.Canonical(),
	}
	if m.Authorization.OwnerSignature != nil {
		auth["ownerSignature"] = m.Authorization.OwnerSignature.Canonical()
	}
	if m.Authorization.AuthorDelegatedGrant != nil {
		grantCanon, err := m.Authorization.AuthorDelegatedGrant.Canonical()
		if err != nil {
			return nil, err
		}
		auth["authorDelegatedGrant"] = grantCanon
	}
	out["authorization"] = auth

	setIfNotEmpty(out, "recordId", m.RecordID)
	setIfNotEmpty(out, "contextId", m.ContextID)
	if m.Attestation != nil {
		out["attestation"] = m.Attestation.Canonical()
	}
	if len(m.Encryption) > 0 {
		out["encryption"] = m.Encryption
	}
	setIfNotEmpty(out, "encodedData", m.EncodedData)
	return out, nil
}

// MessageCID is the CID of the entire canonical message.
func (m *Message) MessageCID() (string, error) {
	c, err := m.Canonical()
	if err != nil {
		return "", err
	}
	return canon.CID(c)
}

// ComputeRecordID computes recordId == CID(descriptor ∪ { author }).
func ComputeRecordID(d *Descriptor, author string) (string, error) {
	c := d.Canonical()
	c["author"] = author
	return canon.CID(c)
}
