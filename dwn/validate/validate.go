// Package validate implements the ordered sequence of
// signature and structural integrity checks applied to every inbound
// message before authorization. Grounded on the teacher's
// massifs/rootsigverify.go (verify signature, then verify the signed
// structure's internal consistency) and massifs/checkpoint.go (a signed
// envelope wrapping a structural payload that must itself check out).
package validate

import (
	"context"
	"fmt"

	"github.com/datatrails/go-dwn/dwn/dwnerr"
	"github.com/datatrails/go-dwn/dwn/message"
	"github.com/datatrails/go-dwn/internal/canon"
	"github.com/datatrails/go-dwn/internal/jws"
)

// Validator runs the full integrity pipeline over an inbound message.
type Validator struct {
	Resolver jws.Resolver
}

// New builds a Validator resolving verification keys through resolver.
func New(resolver jws.Resolver) *Validator {
	return &Validator{Resolver: resolver}
}

// Validate runs the full eight-step integrity pipeline against m, returning
// the author DID (the DID that produced authorization.signature) and the
// owner DID (the DID that produced authorization.ownerSignature, or "" if
// the message carries none) on success, or a *dwnerr.Error on the first
// failing step.
func (v *Validator) Validate(ctx context.Context, m *message.Message) (author, owner string, err error) {
	if err := schemaCheck(m); err != nil {
		return "", "", err
	}

	descriptorCID, err := m.DescriptorCID()
	if err != nil {
		return "", "", dwnerr.Internal("DescriptorCIDError", err)
	}

	author, authorPayload, err := v.verifySignature(ctx, m.Authorization.Signature, descriptorCID)
	if err != nil {
		return "", "", err
	}

	if m.Authorization.OwnerSignature != nil {
		owner, _, err = v.verifySignature(ctx, *m.Authorization.OwnerSignature, descriptorCID)
		if err != nil {
			return "", "", err
		}
	}

	if err := checkDelegatedGrantCoherence(m, authorPayload); err != nil {
		return "", "", err
	}

	if err := checkSubObjectCIDs(m, authorPayload); err != nil {
		return "", "", err
	}

	if m.Attestation != nil {
		if err := checkAttestation(ctx, v, m, descriptorCID); err != nil {
			return "", "", err
		}
	}

	if err := checkRecordIdentity(m, authorPayload, author); err != nil {
		return "", "", err
	}

	if err := checkNormalizedURLsAndTimestamps(m); err != nil {
		return "", "", err
	}

	return author, owner, nil
}

func schemaCheck(m *message.Message) error {
	if m.Descriptor.Interface == "" || m.Descriptor.Method == "" {
		return dwnerr.BadRequest("MissingInterfaceOrMethod", fmt.Errorf("descriptor must set interface and method"))
	}
	if m.Descriptor.MessageTimestamp == "" {
		return dwnerr.BadRequest("MissingMessageTimestamp", fmt.Errorf("descriptor.messageTimestamp is required"))
	}
	if len(m.Authorization.Signature.Signatures) == 0 {
		return dwnerr.BadRequest("MissingSignature", fmt.Errorf("authorization.signature is required"))
	}
	switch m.Descriptor.Interface {
	case message.InterfaceRecords:
		if m.Descriptor.Method == message.MethodWrite {
			hasData := m.Descriptor.DataCID != "" || m.EncodedData != ""
			if !hasData {
				return dwnerr.BadRequest("MissingData", fmt.Errorf("a RecordsWrite needs either dataCid or inline data"))
			}
			if m.Descriptor.DataCID != "" && !m.Descriptor.DataSizeSet {
				return dwnerr.BadRequest("MissingDataSize", fmt.Errorf("dataSize is required whenever dataCid is set"))
			}
		}
	case message.InterfaceProtocols:
		if m.Descriptor.Method == message.MethodConfigure && m.Descriptor.Definition == nil {
			return dwnerr.BadRequest("MissingDefinition", fmt.Errorf("a ProtocolsConfigure needs a definition"))
		}
	case message.InterfaceMessages:
		// MessagesQuery/Get/Subscribe carry no record-shaped body to check here.
	default:
		return dwnerr.BadRequest("UnknownInterface", fmt.Errorf("unknown interface %q", m.Descriptor.Interface))
	}
	return nil
}

// verifySignature verifies one general JWS against descriptorCID, returning
// the signer DID (of the signature's first entry) and its decoded payload.
func (v *Validator) verifySignature(ctx context.Context, g jws.GeneralJWS, descriptorCID string) (string, message.SignaturePayload, error) {
	if len(g.Signatures) == 0 {
		return "", message.SignaturePayload{}, dwnerr.BadRequest("MalformedSignature", jws.ErrMalformedJws)
	}

	if err := jws.Verify(ctx, &g, v.Resolver); err != nil {
		return "", message.SignaturePayload{}, dwnerr.Unauthorized("BadSignature", err)
	}

	payload, err := message.DecodeSignaturePayload(&g)
	if err != nil {
		return "", message.SignaturePayload{}, dwnerr.BadRequest("MalformedPayload", err)
	}
	if payload.DescriptorCID != descriptorCID {
		return "", message.SignaturePayload{}, dwnerr.BadRequest("DescriptorCidMismatch",
			fmt.Errorf("signature payload descriptorCid %q does not match computed %q", payload.DescriptorCID, descriptorCID))
	}

	did, err := jws.ExtractSignerDID(g.Signatures[0])
	if err != nil {
		return "", message.SignaturePayload{}, dwnerr.BadRequest("MalformedKid", err)
	}
	return did, payload, nil
}

func checkDelegatedGrantCoherence(m *message.Message, payload message.SignaturePayload) error {
	hasGrant := m.Authorization.AuthorDelegatedGrant != nil
	hasGrantID := payload.DelegatedGrantID != ""
	if hasGrant != hasGrantID {
		return dwnerr.BadRequest("DelegatedGrantMismatch",
			fmt.Errorf("authorDelegatedGrant present=%v but delegatedGrantId present=%v", hasGrant, hasGrantID))
	}
	return nil
}

func checkSubObjectCIDs(m *message.Message, payload message.SignaturePayload) error {
	if m.Attestation != nil {
		cid, err := attestationCID(m.Attestation)
		if err != nil {
			return dwnerr.Internal("AttestationCidError", err)
		}
		if payload.AttestationCID != cid {
			return dwnerr.BadRequest("AttestationCidMismatch", fmt.Errorf("signature payload attestationCid does not match the attached attestation"))
		}
	}
	if m.Encryption != nil {
		cid, err := encryptionCID(m.Encryption)
		if err != nil {
			return dwnerr.Internal("EncryptionCidError", err)
		}
		if payload.EncryptionCID != cid {
			return dwnerr.BadRequest("EncryptionCidMismatch", fmt.Errorf("signature payload encryptionCid does not match the attached encryption object"))
		}
	}
	return nil
}

// checkAttestation requires exactly one signer, and its
// payload contains only descriptorCid == cid(descriptor). Multi-attester
// support is a deferred TODO in the source corpus and is not implemented
// here.
func checkAttestation(ctx context.Context, v *Validator, m *message.Message, descriptorCID string) error {
	att := m.Attestation
	if len(att.Signatures) != 1 {
		return dwnerr.BadRequest("MultiAttesterNotSupported", fmt.Errorf("attestation must carry exactly one signature, got %d", len(att.Signatures)))
	}
	if err := jws.Verify(ctx, att, v.Resolver); err != nil {
		return dwnerr.Unauthorized("BadAttestationSignature", err)
	}
	fields, err := jws.DecodePayload(att)
	if err != nil {
		return dwnerr.BadRequest("MalformedAttestationPayload", err)
	}
	if len(fields) != 1 {
		return dwnerr.BadRequest("AttestationPayloadShape", fmt.Errorf("attestation payload must contain only descriptorCid"))
	}
	got, _ := fields["descriptorCid"].(string)
	if got != descriptorCID {
		return dwnerr.BadRequest("AttestationDescriptorCidMismatch", fmt.Errorf("attestation descriptorCid does not match the message descriptor"))
	}
	return nil
}

func checkRecordIdentity(m *message.Message, payload message.SignaturePayload, author string) error {
	if m.Descriptor.Interface != message.InterfaceRecords {
		return nil
	}

	if payload.RecordID != "" && payload.RecordID != m.RecordID {
		return dwnerr.BadRequest("RecordIdMismatch", fmt.Errorf("signature payload recordId does not match message recordId"))
	}
	if payload.ContextID != "" && payload.ContextID != m.ContextID {
		return dwnerr.BadRequest("ContextIdMismatch", fmt.Errorf("signature payload contextId does not match message contextId"))
	}

	if m.Descriptor.Method != message.MethodWrite {
		return nil
	}

	computedRecordID, err := message.ComputeRecordID(&m.Descriptor, author)
	if err != nil {
		return dwnerr.Internal("RecordIdComputeError", err)
	}
	isInitialWrite := computedRecordID == m.RecordID
	if isInitialWrite {
		if m.Descriptor.MessageTimestamp != m.Descriptor.DateCreated {
			return dwnerr.BadRequest("InitialWriteTimestampMismatch",
				fmt.Errorf("an initial write's messageTimestamp must equal dateCreated"))
		}
		isContextRoot := m.Descriptor.Protocol != "" && m.Descriptor.ParentID == ""
		if isContextRoot && m.ContextID != computedRecordID {
			return dwnerr.BadRequest("ContextIdNotEntryId",
				fmt.Errorf("a protocol context root's contextId must equal its own entryId"))
		}
	}
	return nil
}

func checkNormalizedURLsAndTimestamps(m *message.Message) error {
	if m.Descriptor.Protocol != "" && !message.IsNormalizedProtocolURL(m.Descriptor.Protocol) {
		return dwnerr.BadRequest("ProtocolUrlNotNormalized", message.ErrInvalidURL)
	}
	if _, err := message.ParseTimestamp(m.Descriptor.MessageTimestamp); err != nil {
		return dwnerr.BadRequest("MalformedTimestamp", err)
	}
	if m.Descriptor.DateCreated != "" {
		if _, err := message.ParseTimestamp(m.Descriptor.DateCreated); err != nil {
			return dwnerr.BadRequest("MalformedTimestamp", err)
		}
	}
	if m.Descriptor.Published != nil {
		if *m.Descriptor.Published && m.Descriptor.DatePublished == "" {
			return dwnerr.BadRequest("PublishedWithoutDatePublished", fmt.Errorf("published=true requires datePublished"))
		}
		if !*m.Descriptor.Published && m.Descriptor.DatePublished != "" {
			return dwnerr.BadRequest("DatePublishedWithoutPublished", fmt.Errorf("datePublished requires published=true"))
		}
	}
	return nil
}

func attestationCID(g *jws.GeneralJWS) (string, error) {
	return canon.CID(g.Canonical())
}

func encryptionCID(enc map[string]interface{}) (string, error) {
	return canon.CID(enc)
}
