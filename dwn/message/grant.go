package message

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// GrantScope is the scope a PermissionsGrant record carries: the
// interface/method it authorizes, and the optional protocol-shaped
// narrowing that limits it to one protocol's records.
type GrantScope struct {
	Interface    Interface `json:"interface"`
	Method       Method    `json:"method"`
	Protocol     string    `json:"protocol,omitempty"`
	ContextID    string    `json:"contextId,omitempty"`
	ProtocolPath string    `json:"protocolPath,omitempty"`
	Schema       string    `json:"schema,omitempty"`
}

// GrantData is the application data of a PermissionsGrant record: a
// RecordsWrite in the permission protocol whose encodedData decodes to this
// shape. Delegated is set when the grant additionally authorizes the
// grantee to sign messages as the grantor.
type GrantData struct {
	Scope       GrantScope `json:"scope"`
	GrantedBy   string     `json:"grantedBy"`
	GrantedTo   string     `json:"grantedTo"`
	DateExpires string     `json:"dateExpires,omitempty"`
	Delegated   bool       `json:"delegated,omitempty"`
}

// ErrNotAGrant is returned by DecodeGrant when the message carries no
// decodable grant data.
var ErrNotAGrant = errors.New("message: not a permission grant")

// DecodeGrant decodes m's encodedData as GrantData. m is expected to be the
// RecordsWrite that authored a PermissionsGrant record.
func DecodeGrant(m *Message) (GrantData, error) {
	if m.EncodedData == "" {
		return GrantData{}, ErrNotAGrant
	}
	raw, err := base64.RawURLEncoding.DecodeString(m.EncodedData)
	if err != nil {
		return GrantData{}, err
	}
	var g GrantData
	if err := json.Unmarshal(raw, &g); err != nil {
		return GrantData{}, err
	}
	return g, nil
}

// Expired reports whether the grant's dateExpires, if set, is at or before
// now (formatted per FormatTimestamp).
func (g GrantData) Expired(now string) bool {
	if g.DateExpires == "" {
		return false
	}
	return CompareTimestamps(g.DateExpires, now) <= 0
}
