// Package didkey provides a deterministic, in-memory DID resolver used by
// tests and by the reference engine wiring, since resolving real DIDs over
// the wire is out of scope and a runnable stand-in is needed for both.
// Key material is generated with crypto/ecdsa, following the P-256/P-384/
// P-521 curve selection the teacher's massifs/cose/ec_key.go performs for
// its EC keys, but exposed here as JWKs for use with internal/jws rather
// than COSE keys.
package didkey

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/lestrrat-go/jwx/v3/jwa"

	"github.com/datatrails/go-dwn/internal/jws"
)

// ErrUnknownDID is returned when a DID was never registered with the
// resolver (the in-memory analogue of jws.ErrDidNotResolvable).
var ErrUnknownDID = errors.New("didkey: unknown did")

// Identity bundles a DID, the key id its signatures carry, and its single EC
// private key.
type Identity struct {
	DID        string
	KeyID      string
	PrivateKey *ecdsa.PrivateKey
}

// Signer returns an internal/jws.Signer for this identity.
func (id *Identity) Signer() jws.Signer {
	return jws.Signer{
		KeyID: id.KeyID,
		Alg:   jwa.ES256(),
		Key:   id.PrivateKey,
	}
}

// Registry is a deterministic, in-process DID document store: each
// registered Identity's public key is published as its sole verification
// method. It implements jws.Resolver via Resolve.
type Registry struct {
	mu   sync.RWMutex
	docs map[string]*jws.DIDDocument
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{docs: make(map[string]*jws.DIDDocument)}
}

// NewIdentity generates a fresh P-256 key pair, derives a did:key-shaped DID
// from it, registers the identity's document, and returns the identity.
func (r *Registry) NewIdentity() (*Identity, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("didkey: generating key: %w", err)
	}

	fingerprint := base64.RawURLEncoding.EncodeToString(priv.PublicKey.X.Bytes())
	did := "did:key:z" + fingerprint[:min(24, len(fingerprint))]
	keyID := did + "#key-1"

	id := &Identity{DID: did, KeyID: keyID, PrivateKey: priv}
	r.register(id)
	return id, nil
}



func (r *Registry) register(id *Identity) {
	jwk := map[string]interface{}{
		"kty": "EC",
		"crv": "P-256",
		"x":   base64.RawURLEncoding.EncodeToString(id.PrivateKey.PublicKey.X.Bytes()),
		"y":   base64.RawURLEncoding.EncodeToString(id.PrivateKey.PublicKey.Y.Bytes()),
		"kid": id.KeyID,
	}
	doc := &jws.DIDDocument{
		ID: id.DID,
		VerificationMethods: []jws.VerificationKey{
			{ID: id.KeyID, PublicKeyJWK: jwk},
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[id.DID] = doc
}

// Resolve implements jws.Resolver.
func (r *Registry) Resolve(_ context.Context, did string) (*jws.DIDDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[did]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDID, did)
	}
	return doc, nil
}
