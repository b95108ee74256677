// Package canon implements the deterministic encoding and content-identifier
// computation shared by every message, descriptor, and sub-object in the
// store. It mirrors the deterministic CBOR options the teacher configures in
// massifs/rootsigner.go (commoncbor.NewDeterministicEncOpts) and layers a
// dag-cbor flavoured CID over the result instead of a bare multihash, since
// the CIDs computed here are persisted and compared by callers outside this
// package.
package canon

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// EncodeError is returned when a value is outside the supported schema
// domain: objects with string keys, arrays, strings, integers, booleans and
// byte strings. Explicit nulls and non-finite numbers are rejected.
type EncodeError struct {
	Path   string
	Reason string
}

func (e *EncodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("canon: %s", e.Reason)
	}
	return fmt.Sprintf("canon: %s: %s", e.Path, e.Reason)
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		Time:        cbor.TimeRFC3339Nano,
		ShortestFloat: cbor.ShortestFloat16,
		NaNConvert:  cbor.NaNConvertReject,
		InfConvert:  cbor.InfConvertReject,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("canon: could not build deterministic encode mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		TimeTag:     cbor.DecTagRequired,
		DefaultMapType: mapAnyType,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("canon: could not build decode mode: %v", err))
	}
}

var mapAnyType = map[string]interface{}(nil)

// Encode produces the deterministic canonical byte encoding of value. Map
// keys are sorted (cbor.SortCanonical, length-then-bytewise, matching the
// dag-cbor convention so externally stored CIDs remain stable). A map entry
// whose value is nil is omitted; a nil at the top level or inside a slice,
// an unsupported kind (including maps not keyed by string), or a non-finite
// float fails with *EncodeError.
func Encode(value interface{}) ([]byte, error) {
	clean, err := sanitize("", value)
	if err != nil {
		return nil, err
	}
	b, err := encMode.Marshal(clean)
	if err != nil {
		return nil, &EncodeError{Reason: err.Error()}
	}
	return b, nil
}

// sanitize walks value, rejecting the forms the domain disallows and
// stripping map entries whose value is the Go zero value for "unset"
// (nil interface), so callers can build descriptors with plain
// map[string]interface{} and omit fields by never setting them.
func sanitize(path string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, &EncodeError{Path: path, Reason: "explicit null is not permitted in the canonical domain"}
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fv := v[k]
			if fv == nil {
				// absent/unset fields are omitted, not encoded as null.
				continue
			}
			cv, err := sanitize(path+"."+k, fv)
			if err != nil {
				return nil, err
			}
			out[k] = cv
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			if e == nil {
				return nil, &EncodeError{Path: fmt.Sprintf("%s[%d]", path, i), Reason: "explicit null is not permitted in the canonical domain"}
			}
			cv, err := sanitize(fmt.Sprintf("%s[%d]", path, i), e)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	case string, bool, []byte:
		return v, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v, nil
	case float32:
		return checkFinite(path, float64(v))
	case float64:
		return checkFinite(path, v)
	default:
		return nil, &EncodeError{Path: path, Reason: fmt.Sprintf("unsupported kind %T", value)}
	}
}

func checkFinite(path string, f float64) (interface{}, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &EncodeError{Path: path, Reason: "non-finite numbers are not permitted in the canonical domain"}
	}
	return f, nil
}

// CID computes the content identifier of value: base-encode(multihash(sha-256(encode(value))))
// using a dag-cbor flavoured CIDv1, matching the corpus convention that a
// CID's codec records how to re-interpret the underlying bytes.
func CID(value interface{}) (string, error) {
	b, err := Encode(value)
	if err != nil {
		return "", err
	}
	return cidOfCodec(b, cid.DagCBOR)
}

// CIDOfBytes computes the content identifier of raw, already-encoded bytes
// (used for dataCid, where the payload is opaque to the store).
func CIDOfBytes(b []byte) (string, error) {
	return cidOfCodec(b, cid.Raw)
}

func cidOfCodec(b []byte, codec uint64) (string, error) {
	sum, err := mh.Sum(b, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("canon: hashing failed: %w", err)
	}
	c := cid.NewCidV1(codec, sum)
	return c.String(), nil
}

// ErrMalformedCID is returned by ParseCID when a string is not a valid CID.
var ErrMalformedCID = errors.New("canon: malformed cid")

// ParseCID validates that s is a syntactically well formed CID, returning
// its canonical string form.
func ParseCID(s string) (string, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformedCID, err)
	}
	return c.String(), nil
}
