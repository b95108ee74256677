// Package message defines the typed shapes for every DWN interface/method
// and the canonicalization rules that turn those
// shapes into the byte domain internal/canon understands. It plays the role
// massifs/logformat.go and massifs/indexformat_v2.go play for the teacher:
// the wire shapes of the log, kept deliberately close to the bytes that get
// hashed.
package message

import (
	"github.com/datatrails/go-dwn/internal/jws"
)

// Interface names the top-level DWN interface a message belongs to.
type Interface string

const (
	InterfaceRecords   Interface = "Records"
	InterfaceProtocols Interface = "Protocols"
	InterfaceMessages  Interface = "Messages"
)

// Method names the operation within an Interface.
type Method string

const (
	MethodWrite     Method = "Write"
	MethodRead      Method = "Read"
	MethodQuery     Method = "Query"
	MethodDelete    Method = "Delete"
	MethodSubscribe Method = "Subscribe"
	MethodConfigure Method = "Configure"
	MethodGet       Method = "Get"
)

// DateSort enumerates the RecordsQuery sort orders.
type DateSort string

const (
	SortCreatedAscending   DateSort = "CreatedAscending"
	SortCreatedDescending  DateSort = "CreatedDescending"
	SortPublishedAscending DateSort = "PublishedAscending"
	SortPublishedDescending DateSort = "PublishedDescending"
)

// Descriptor is the canonical, signed metadata common to every message,
// widened with every interface/method-specific field each message type
// needs. Fields
// left at their Go zero value are treated as "unset" and omitted from the
// canonical encoding (internal/canon's sanitize step already drops bare
// nils; for descriptors we additionally drop zero-value strings/ints via
// Canonical(), since a Descriptor is a flat struct rather than a map).
type Descriptor struct {
	Interface        Interface `json:"interface"`
	Method           Method    `json:"method"`
	MessageTimestamp string    `json:"messageTimestamp"`

	// Records
	Protocol      string `json:"protocol,omitempty"`
	ProtocolPath  string `json:"protocolPath,omitempty"`
	Schema        string `json:"schema,omitempty"`
	Recipient     string `json:"recipient,omitempty"`
	ParentID      string `json:"parentId,omitempty"`
	DataCID       string `json:"dataCid,omitempty"`
	DataSize      int64  `json:"dataSize,omitempty"`
	DataSizeSet   bool   `json:"-"`
	DateCreated   string `json:"dateCreated,omitempty"`
	Published     *bool  `json:"published,omitempty"`
	DatePublished string `json:"datePublished,omitempty"`
	DataFormat    string `json:"dataFormat,omitempty"`

	// RecordsQuery / RecordsRead / MessagesQuery filters travel outside the
	// descriptor's canonical identity surface (they are query parameters,
	// not signed record state) and are modeled in package filter.

	// Protocols
	Definition *ProtocolDefinition `json:"definition,omitempty"`

	// RecordsQuery
	DateSort DateSort `json:"dateSort,omitempty"`
}

// ProtocolDefinition is the body of a ProtocolsConfigure descriptor: a tree
// of allowed protocolPaths and their rules.
type ProtocolDefinition struct {
	Protocol  string                    `json:"protocol"`
	Published bool                      `json:"published"`
	Types     map[string]TypeDefinition `json:"types"`
	Structure map[string]RuleSet        `json:"structure"`
}

// TypeDefinition constrains the schema/dataFormats a protocolPath may use.
type TypeDefinition struct {
	Schema      string   `json:"schema,omitempty"`
	DataFormats []string `json:"dataFormats,omitempty"`
}

// RuleSet is one node of the protocol's rule tree: an optional role marker,
// the actions permitted at this path, and nested child paths.
type RuleSet struct {
	Role     bool                `json:"$role,omitempty"`
	Actions  []ActionRule        `json:"$actions,omitempty"`
	Children map[string]RuleSet  `json:"-"`
}

// ActionRule grants one of create|update|delete|query|subscribe|read to a
// Who (anyone, author of X, recipient of X, or a named role).
type ActionRule struct {
	Action Action `json:"can"`
	Who    Who    `json:"who,omitempty"`
	OfPath string `json:"of,omitempty"`
	Role   string `json:"role,omitempty"`
}

type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionQuery     Action = "query"
	ActionSubscribe Action = "subscribe"
	ActionRead      Action = "read"
)

type Who string

const (
	WhoAnyone    Who = "anyone"
	WhoAuthor    Who = "author"
	WhoRecipient Who = "recipient"
	WhoRole      Who = "role"
)

// Authorization wraps the one or two detached signatures a message carries:
// the author's signature, and optionally the owner's, when a delegate or a
// distinct owner is writing on the author's behalf.
type Authorization struct {
	Signature            jws.GeneralJWS  `json:"signature"`
	OwnerSignature        *jws.GeneralJWS `json:"ownerSignature,omitempty"`
	AuthorDelegatedGrant  *Message        `json:"authorDelegatedGrant,omitempty"`
}

// Message is the full wire shape of a DWN message.
type Message struct {
	Descriptor    Descriptor             `json:"descriptor"`
	Authorization Authorization          `json:"authorization"`

	RecordID    string                 `json:"recordId,omitempty"`
	ContextID   string                 `json:"contextId,omitempty"`
	Attestation *jws.GeneralJWS        `json:"attestation,omitempty"`
	Encryption  map[string]interface{} `json:"encryption,omitempty"`
	EncodedData string                `json:"encodedData,omitempty"`

	// Author is the DID validate.Validator resolved from
	// authorization.signature. It travels with the message once resolved so
	// later stages (authz, indexing) don't need to re-verify the signature
	// to learn who signed it. Not part of the wire shape or canonical
	// encoding.
	Author string `json:"-"`
}

// IsRecordsWrite reports whether m is a Records/Write message.
func (m *Message) IsRecordsWrite() bool {
	return m.Descriptor.Interface == InterfaceRecords && m.Descriptor.Method == MethodWrite
}

// IsRecordsDelete reports whether m is a Records/Delete message (tombstone).
func (m *Message) IsRecordsDelete() bool {
	return m.Descriptor.Interface == InterfaceRecords && m.Descriptor.Method == MethodDelete
}

// IsProtocolsConfigure reports whether m installs a protocol definition.
func (m *Message) IsProtocolsConfigure() bool {
	return m.Descriptor.Interface == InterfaceProtocols && m.Descriptor.Method == MethodConfigure
}
