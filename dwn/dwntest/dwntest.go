// Package dwntest builds the shared fixtures every handler and query test
// needs: a deterministic DID registry standing in for a real resolver, a
// fully wired in-memory engine.Engine, and helpers that produce genuinely
// signed messages (validate.Validator runs real JWS verification, so a bare
// struct literal message never survives the pipeline). Grounded on the
// teacher's mmrtesting package, which plays the same role for massif
// fixtures: deterministic key material plus builders over the real wire
// types rather than mocks of them.
package dwntest

import (
	"fmt"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/datatrails/go-dwn/dwn/engine"
	"github.com/datatrails/go-dwn/dwn/message"
	"github.com/datatrails/go-dwn/internal/canon"
	"github.com/datatrails/go-dwn/internal/didkey"
	"github.com/datatrails/go-dwn/internal/jws"
)

// Harness bundles a DID registry with a fully wired in-memory engine. Every
// identity minted from it is resolvable by the engine's validator.
type Harness struct {
	Registry *didkey.Registry
	Engine   *engine.Engine
}

// New builds a Harness over a fresh in-memory engine.
func New() *Harness {
	logger.New("NOOP")
	reg := didkey.NewRegistry()
	return &Harness{
		Registry: reg,
		Engine:   engine.NewInMemory(logger.Sugar, reg.Resolve, engine.Config{}),
	}
}

// Identity mints a new resolvable DID.
func (h *Harness) Identity() *didkey.Identity {
	id, err := h.Registry.NewIdentity()
	if err != nil {
		panic(err)
	}
	return id
}

// Now formats the current instant in wire form, the timestamp callers stamp
// onto descriptors they don't want to set explicitly.
func Now() string {
	return message.FormatTimestamp(time.Now())
}

// sign produces a general JWS over d's descriptorCid plus the given
// sub-identifiers, the shared step every builder below funnels through.
func sign(signer *didkey.Identity, d *message.Descriptor, recordID, contextID, delegatedGrantID, permissionsGrantID string) (jws.GeneralJWS, error) {
	descCID, err := (&message.Message{Descriptor: *d}).DescriptorCID()
	if err != nil {
		return jws.GeneralJWS{}, err
	}
	payload := message.SignaturePayload{
		DescriptorCID:      descCID,
		RecordID:           recordID,
		ContextID:          contextID,
		DelegatedGrantID:   delegatedGrantID,
		PermissionsGrantID: permissionsGrantID,
	}
	encoded, err := payload.Encode()
	if err != nil {
		return jws.GeneralJWS{}, err
	}
	g, err := jws.Sign(encoded, signer.Signer())
	if err != nil {
		return jws.GeneralJWS{}, err
	}
	return *g, nil
}

// WriteOptions configures RecordsWrite returned by NewWrite/UpdateWrite.
type WriteOptions struct {
	Protocol     string
	ProtocolPath string
	ParentID     string
	Schema       string
	Recipient    string
	Published    bool
	DataFormat   string
	// PermissionsGrantID, when set, authorizes this write under a
	// previously granted permission rather than a protocol rule or
	// ownership check.
	PermissionsGrantID string
}

// NewWrite signs a brand-new initial RecordsWrite authored by signer. The
// recordId (and, for a protocol context root, the matching contextId) is
// computed from the descriptor and signer's DID exactly as
// message.ComputeRecordID defines.
func NewWrite(signer *didkey.Identity, opts WriteOptions, data []byte) (*message.Message, error) {
	ts := Now()
	d := message.Descriptor{
		Interface:        message.InterfaceRecords,
		Method:           message.MethodWrite,
		MessageTimestamp: ts,
		DateCreated:      ts,
		Protocol:         opts.Protocol,
		ProtocolPath:     opts.ProtocolPath,
		ParentID:         opts.ParentID,
		Schema:           opts.Schema,
		Recipient:        opts.Recipient,
		DataFormat:       opts.DataFormat,
	}
	if opts.Published {
		published := true
		d.Published = &published
		d.DatePublished = ts
	}
	if err := attachData(&d, data); err != nil {
		return nil, err
	}

	recordID, err := message.ComputeRecordID(&d, signer.DID)
	if err != nil {
		return nil, err
	}

	contextID := ""
	if d.Protocol != "" && d.ParentID == "" {
		contextID = recordID
	}

	sig, err := sign(signer, &d, recordID, contextID, "", opts.PermissionsGrantID)
	if err != nil {
		return nil, err
	}
	return &message.Message{
		Descriptor:    d,
		Authorization: message.Authorization{Signature: sig},
		RecordID:      recordID,
		ContextID:     contextID,
	}, nil
}

// UpdateWrite signs a RecordsWrite updating prior: it carries prior's
// recordId/contextId/dateCreated/protocol/protocolPath/recipient forward
// (the immutable properties) and a fresh messageTimestamp, with opts
// supplying whatever the update actually changes (schema, published, data).
func UpdateWrite(signer *didkey.Identity, prior *message.Message, opts WriteOptions, data []byte) (*message.Message, error) {
	ts := Now()
	d := message.Descriptor{
		Interface:        message.InterfaceRecords,
		Method:           message.MethodWrite,
		MessageTimestamp: ts,
		DateCreated:      prior.Descriptor.DateCreated,
		Protocol:         prior.Descriptor.Protocol,
		ProtocolPath:     prior.Descriptor.ProtocolPath,
		ParentID:         prior.Descriptor.ParentID,
		Schema:           orDefault(opts.Schema, prior.Descriptor.Schema),
		Recipient:        prior.Descriptor.Recipient,
		DataFormat:       orDefault(opts.DataFormat, prior.Descriptor.DataFormat),
	}
	if opts.Published {
		published := true
		d.Published = &published
		d.DatePublished = ts
	}
	if err := attachData(&d, data); err != nil {
		return nil, err
	}

	sig, err := sign(signer, &d, prior.RecordID, prior.ContextID, "", opts.PermissionsGrantID)
	if err != nil {
		return nil, err
	}
	return &message.Message{
		Descriptor:    d,
		Authorization: message.Authorization{Signature: sig},
		RecordID:      prior.RecordID,
		ContextID:     prior.ContextID,
	}, nil
}

// NewDelete signs a RecordsDelete tombstoning prior.
func NewDelete(signer *didkey.Identity, prior *message.Message) (*message.Message, error) {
	d := message.Descriptor{
		Interface:        message.InterfaceRecords,
		Method:           message.MethodDelete,
		MessageTimestamp: Now(),
	}
	sig, err := sign(signer, &d, prior.RecordID, prior.ContextID, "", "")
	if err != nil {
		return nil, err
	}
	return &message.Message{
		Descriptor:    d,
		Authorization: message.Authorization{Signature: sig},
		RecordID:      prior.RecordID,
		ContextID:     prior.ContextID,
	}, nil
}

// NewConfigure signs a ProtocolsConfigure installing def, authored and owned
// by signer (the tenant configuring its own DWN).
func NewConfigure(signer *didkey.Identity, def *message.ProtocolDefinition) (*message.Message, error) {
	d := message.Descriptor{
		Interface:        message.InterfaceProtocols,
		Method:           message.MethodConfigure,
		MessageTimestamp: Now(),
		Definition:       def,
	}
	sig, err := sign(signer, &d, "", "", "", "")
	if err != nil {
		return nil, err
	}
	return &message.Message{
		Descriptor:    d,
		Authorization: message.Authorization{Signature: sig},
	}, nil
}

// NewRead signs a RecordsRead for recordID.
func NewRead(signer *didkey.Identity, recordID string) (*message.Message, error) {
	d := message.Descriptor{
		Interface:        message.InterfaceRecords,
		Method:           message.MethodRead,
		MessageTimestamp: Now(),
	}
	sig, err := sign(signer, &d, recordID, "", "", "")
	if err != nil {
		return nil, err
	}
	return &message.Message{Descriptor: d, Authorization: message.Authorization{Signature: sig}, RecordID: recordID}, nil
}

// NewQuery signs a RecordsQuery.
func NewQuery(signer *didkey.Identity) (*message.Message, error) {
	d := message.Descriptor{
		Interface:        message.InterfaceRecords,
		Method:           message.MethodQuery,
		MessageTimestamp: Now(),
	}
	sig, err := sign(signer, &d, "", "", "", "")
	if err != nil {
		return nil, err
	}
	return &message.Message{Descriptor: d, Authorization: message.Authorization{Signature: sig}}, nil
}

// NewSubscribe signs a RecordsSubscribe.
func NewSubscribe(signer *didkey.Identity) (*message.Message, error) {
	d := message.Descriptor{
		Interface:        message.InterfaceRecords,
		Method:           message.MethodSubscribe,
		MessageTimestamp: Now(),
	}
	sig, err := sign(signer, &d, "", "", "", "")
	if err != nil {
		return nil, err
	}
	return &message.Message{Descriptor: d, Authorization: message.Authorization{Signature: sig}}, nil
}

func attachData(d *message.Descriptor, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("dwntest: a RecordsWrite needs a non-empty data payload")
	}
	cid, err := canon.CIDOfBytes(data)
	if err != nil {
		return err
	}
	d.DataCID = cid
	d.DataSize = int64(len(data))
	d.DataSizeSet = true
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
