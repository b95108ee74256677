// Package jws adapts github.com/lestrrat-go/jwx/v3's jws package to the
// narrow Signer/Verifier contract the core needs: build and verify
// detached-payload, general-serialization JWS objects over arbitrary
// canonical bytes, resolving verification keys through an injected DID
// resolver rather than a static key set. This mirrors how the teacher
// wraps its signing library in massifs/cose/cose.go: a thin, opinionated
// wrapper around a real JOSE library, never a hand-rolled signer.
package jws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
)

var (
	// ErrNoMatchingKey is returned when the resolved DID document carries no
	// verification method matching the signature's kid.
	ErrNoMatchingKey = errors.New("jws: no matching verification key")
	// ErrBadSignature is returned when cryptographic verification fails.
	ErrBadSignature = errors.New("jws: signature verification failed")
	// ErrMalformedJws is returned when the wire object is not a well formed
	// general JWS (missing payload, empty signatures array, bad base64url).
	ErrMalformedJws = errors.New("jws: malformed general jws")
)

// Signature is one entry of a general JWS's "signatures" array.
type Signature struct {
	Protected string `json:"protected"`
	Signature string `json:"signature"`
}

// GeneralJWS is the general-serialization JWS shape: a detached payload plus
// one or more signatures, each carrying its own protected header.
type GeneralJWS struct {
	Payload    string      `json:"payload"`
	Signatures []Signature `json:"signatures"`
}

// Canonical returns g's field bag for inclusion in a parent message's
// canonical encoding (package message embeds this in a descriptor-adjacent
// object graph before computing messageCid).
func (g GeneralJWS) Canonical() map[string]interface{} {
	sigs := make([]interface{}, len(g.Signatures))
	for i, s := range g.Signatures {
		sigs[i] = map[string]interface{}{
			"protected": s.Protected,
			"signature": s.Signature,
		}
	}
	return map[string]interface{}{
		"payload":    g.Payload,
		"signatures": sigs,
	}
}

// Signer is one signing identity: a key identifier of the form
// "did:method:...#key-id", the JOSE algorithm, and the private key material
// (anything lestrrat-go/jwx/v3's jws.WithKey accepts, e.g. *ecdsa.PrivateKey
// or *rsa.PrivateKey). The elliptic-curve/RSA math itself is never
// reimplemented here; it lives entirely in the injected key and the
// underlying jwx library.
type Signer struct {
	KeyID string
	Alg   jwa.SignatureAlgorithm
	Key   interface{}
}

// VerificationKey is one entry of a resolved DID document's verification
// methods, as returned by the DID Resolver contract.
type VerificationKey struct {
	ID           string
	PublicKeyJWK map[string]interface{}
}

// DIDDocument is the subset of a DID resolution result this package needs.
type DIDDocument struct {
	ID                  string
	VerificationMethods []VerificationKey
}

// Resolver resolves a DID to its document. It is the sole external
// collaborator this package depends on; resolving DIDs over the wire
// (did:web, did:ion, did:key, etc.) is out of scope for this package and is
// left to the caller.
type Resolver func(ctx context.Context, did string) (*DIDDocument, error)

// ErrDidNotResolvable is returned by a Resolver implementation when the DID
// cannot be resolved at all (network failure, unknown method, deactivated).
var ErrDidNotResolvable = errors.New("jws: did not resolvable")

// Sign builds a general-serialization JWS over payload, one signature per
// signer. The payload is base64url encoded once and shared by every
// signature.
func Sign(payload []byte, signers ...Signer) (*GeneralJWS, error) {
	if len(signers) == 0 {
		return nil, errors.New("jws: at least one signer is required")
	}

	opts := []jws.SignOption{jws.WithJSON()}
	for _, s := range signers {
		hdrs := jws.NewHeaders()
		if err := hdrs.Set(jws.KeyIDKey, s.KeyID); err != nil {
			return nil, fmt.Errorf("jws: setting kid: %w", err)
		}
		opts = append(opts, jws.WithKey(s.Alg, s.Key, jws.WithProtectedHeaders(hdrs)))
	}

	raw, err := jws.Sign(payload, opts...)
	if err != nil {
		return nil, fmt.Errorf("jws: sign: %w", err)
	}

	var g GeneralJWS
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("jws: decoding signed output: %w", err)
	}
	return &g, nil
}

// Verify validates every signature in g against keys resolved via resolver.
// It fails closed: every signature must verify against a key belonging to
// the DID named in its own kid.
func Verify(ctx context.Context, g *GeneralJWS, resolver Resolver) error {
	if g == nil || g.Payload == "" || len(g.Signatures) == 0 {
		return ErrMalformedJws
	}

	kp := &didKeyProvider{ctx: ctx, resolver: resolver}
	for _, sig := range g.Signatures {
		raw, err := json.Marshal(GeneralJWS{Payload: g.Payload, Signatures: []Signature{sig}})
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMalformedJws, err)
		}
		if _, err := jws.Verify(raw, jws.WithKeyProvider(kp)); err != nil {
			if errors.Is(err, ErrNoMatchingKey) || errors.Is(err, ErrDidNotResolvable) {
				return err
			}
			return fmt.Errorf("%w: %s", ErrBadSignature, err)
		}
	}
	return nil
}

// ExtractSignerDID extracts the DID portion of a signature's kid (the part
// before the fragment identifier), decoding the protected header to do so.
func ExtractSignerDID(sig Signature) (string, error) {
	hdrBytes, err := base64.RawURLEncoding.DecodeString(sig.Protected)
	if err != nil {
		return "", fmt.Errorf("%w: protected header: %s", ErrMalformedJws, err)
	}
	var hdr struct {
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(hdrBytes, &hdr); err != nil {
		return "", fmt.Errorf("%w: protected header: %s", ErrMalformedJws, err)
	}
	return didFromKid(hdr.Kid)
}

func didFromKid(kid string) (string, error) {
	did, _, ok := strings.Cut(kid, "#")
	if !ok || did == "" {
		return "", fmt.Errorf("%w: kid %q is not of the form did:method:...#key-id", ErrMalformedJws, kid)
	}
	return did, nil
}

// DecodePayload base64url-decodes and CBOR-decodes g's payload into a
// generic field bag. The payload bytes are produced by internal/canon's
// deterministic encoder, so decoding here is the exact inverse.
func DecodePayload(g *GeneralJWS) (map[string]interface{}, error) {
	raw, err := base64.RawURLEncoding.DecodeString(g.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %s", ErrMalformedJws, err)
	}
	var out map[string]interface{}
	if err := cbor.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: payload: %s", ErrMalformedJws, err)
	}
	return out, nil
}

// didKeyProvider implements jwx/v3's jws.KeyProvider, resolving each
// signature's key independently by extracting the DID from its kid.
type didKeyProvider struct {
	ctx      context.Context
	resolver Resolver
}

func (p *didKeyProvider) FetchKeys(ctx context.Context, sink jws.KeySink, sig *jws.Signature, _ *jws.Message) error {
	hdrs := sig.ProtectedHeaders()
	kid := hdrs.KeyID()
	did, err := didFromKid(kid)
	if err != nil {
		return err
	}

	doc, err := p.resolver(p.ctx, did)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrDidNotResolvable, did, err)
	}

	for _, vm := range doc.VerificationMethods {
		if vm.ID != kid {
			continue
		}
		jwkBytes, err := json.Marshal(vm.PublicKeyJWK)
		if err != nil {
			return fmt.Errorf("jws: marshaling verification method %s: %w", vm.ID, err)
		}
		key, err := jwk.ParseKey(jwkBytes)
		if err != nil {
			return fmt.Errorf("jws: parsing verification method %s: %w", vm.ID, err)
		}
		sink.Key(hdrs.Algorithm(), key)
		return nil
	}
	return fmt.Errorf("%w: kid %s not found in document for %s", ErrNoMatchingKey, kid, did)
}
