// Package envelope parses the COSE_Sign1 structure wrapping a health
// certificate. Nothing is verified here.
package envelope

import (
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// CBOR tags that may wrap the envelope.
const (
	TagSign1 = 18
	TagCWT   = 61
)

// COSE header labels.
const (
	labelAlgorithm = 1
	labelKeyID     = 4
)

// ErrMalformedEnvelope is returned for bytes that are not a COSE_Sign1.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Header is the decoded protected header.
type Header struct {
	Algorithm Algorithm
	KeyID     []byte
}

// Envelope is a parsed, unverified COSE_Sign1 message.
type Envelope struct {
	// Protected holds the serialized protected header exactly as received.
	Protected []byte
	Header    Header
	// Unprotected holds the re-encoded unprotected header map.
	Unprotected []byte
	// UnprotectedKeyID is the key id found in the unprotected header, if any.
	UnprotectedKeyID []byte
	Payload          []byte
	Signature        []byte
	Tagged           bool
}

// KeyID returns the key identifier to look up in the trust list. The
// protected header wins; the unprotected one is a fallback hint.
func (e *Envelope) KeyID() []byte {
	if len(e.Header.KeyID) > 0 {
		return e.Header.KeyID
	}
	return e.UnprotectedKeyID
}

// Parse decodes data into an Envelope.
func Parse(data []byte) (*Envelope, error) {
	var v any
	if err := cbor.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	env := &Envelope{}
	if tag, ok := v.(cbor.Tag); ok && tag.Number == TagCWT {
		v = tag.Content
	}
	if tag, ok := v.(cbor.Tag); ok {
		if tag.Number != TagSign1 {
			return nil, fmt.Errorf("%w: unexpected tag %d", ErrMalformedEnvelope, tag.Number)
		}
		env.Tagged = true
		v = tag.Content
	}

	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected array, got %T", ErrMalformedEnvelope, v)
	}
	if len(arr) != 4 {
		return nil, fmt.Errorf("%w: expected 4 elements, got %d", ErrMalformedEnvelope, len(arr))
	}

	fields := [3]struct {
		name string
		dst  *[]byte
		src  any
	}{
		{"protected header", &env.Protected, arr[0]},
		{"payload", &env.Payload, arr[2]},
		{"signature", &env.Signature, arr[3]},
	}
	for _, f := range fields {
		b, ok := f.src.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: %s is %T, not a byte string", ErrMalformedEnvelope, f.name, f.src)
		}
		*f.dst = b
	}

	unprotected, ok := arr[1].(map[any]any)
	if !ok {
		return nil, fmt.Errorf("%w: unprotected header is %T, not a map", ErrMalformedEnvelope, arr[1])
	}
	if kid, ok := lookupLabel(unprotected, labelKeyID).([]byte); ok {
		env.UnprotectedKeyID = kid
	}
	raw, err := cbor.Marshal(unprotected)
	if err != nil {
		return nil, fmt.Errorf("%w: unprotected header: %v", ErrMalformedEnvelope, err)
	}
	env.Unprotected = raw

	hdr, err := parseProtected(env.Protected)
	if err != nil {
		return nil, err
	}
	env.Header = hdr

	return env, nil
}

func parseProtected(b []byte) (Header, error) {
	var hdr Header
	if len(b) == 0 {
		return hdr, nil
	}

	var m map[any]any
	if err := cbor.Unmarshal(b, &m); err != nil {
		return hdr, fmt.Errorf("%w: protected header: %v", ErrMalformedEnvelope, err)
	}

	switch alg := lookupLabel(m, labelAlgorithm).(type) {
	case nil:
	case int64:
		hdr.Algorithm = Algorithm(alg)
	case uint64:
		if alg > math.MaxInt64 {
			hdr.Algorithm = AlgorithmInvalid
			break
		}
		hdr.Algorithm = Algorithm(int64(alg))
	default:
		// text algorithm names are not used by health certificates
		hdr.Algorithm = AlgorithmInvalid
	}

	switch kid := lookupLabel(m, labelKeyID).(type) {
	case nil:
	case []byte:
		hdr.KeyID = kid
	default:
		return hdr, fmt.Errorf("%w: key id is %T, not a byte string", ErrMalformedEnvelope, kid)
	}

	return hdr, nil
}

func lookupLabel(m map[any]any, label int64) any {
	for k, v := range m {
		switch k := k.(type) {
		case int64:
			if k == label {
				return v
			}
		case uint64:
			if label >= 0 && k == uint64(label) {
				return v
			}
		}
	}
	return nil
}

// SigStructure returns the bytes a COSE_Sign1 signature covers:
// ["Signature1", protected, external_aad, payload] with empty external data.
func SigStructure(protected, payload []byte) ([]byte, error) {
	return cbor.Marshal([]any{
		"Signature1",
		nonNil(protected),
		[]byte{},
		nonNil(payload),
	})
}

// ToBeSigned returns the signature input of e.
func (e *Envelope) ToBeSigned() ([]byte, error) {
	return SigStructure(e.Protected, e.Payload)
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
