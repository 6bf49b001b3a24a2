package trustlist

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/popsu/covidpass/internal/envelope"
)

// KeyType is the kind of public key material held by a TrustedKey.
type KeyType int

const (
	KeyTypeUnknown KeyType = iota
	KeyTypeECP256
	KeyTypeECP384
	KeyTypeECP521
	KeyTypeRSA
)

func (k KeyType) String() string {
	switch k {
	case KeyTypeECP256:
		return "EC P-256"
	case KeyTypeECP384:
		return "EC P-384"
	case KeyTypeECP521:
		return "EC P-521"
	case KeyTypeRSA:
		return "RSA"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k KeyType) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func keyTypeOf(pub crypto.PublicKey) KeyType {
	switch pub := pub.(type) {
	case *ecdsa.PublicKey:
		if pub.Curve == nil {
			return KeyTypeUnknown
		}
		switch pub.Curve.Params().Name {
		case "P-256":
			return KeyTypeECP256
		case "P-384":
			return KeyTypeECP384
		case "P-521":
			return KeyTypeECP521
		}
	case *rsa.PublicKey:
		return KeyTypeRSA
	}
	return KeyTypeUnknown
}

// Source tells how a key entered the trust list.
type Source string

const (
	SourceCertificate Source = "certificate"
	SourcePublicKey   Source = "public key"
	SourceJWK         Source = "jwk"
)

// TrustedKey is an issuer public key. It is never modified after insertion.
type TrustedKey struct {
	// KeyID is the primary identifier of the key.
	KeyID     []byte
	PublicKey crypto.PublicKey
	Type      KeyType
	Source    Source

	// Certificate details, empty for bare public keys.
	Subject   string
	Issuer    string
	NotBefore time.Time
	NotAfter  time.Time

	// aliases are further identifiers the key is indexed under.
	aliases [][]byte
	// fingerprint is the SHA-256 of the DER SubjectPublicKeyInfo.
	fingerprint [32]byte
}

// Supports reports whether the key can check signatures made with alg.
func (k *TrustedKey) Supports(alg envelope.Algorithm) bool {
	switch alg {
	case envelope.AlgorithmES256:
		return k.Type == KeyTypeECP256
	case envelope.AlgorithmES384:
		return k.Type == KeyTypeECP384
	case envelope.AlgorithmES512:
		return k.Type == KeyTypeECP521
	case envelope.AlgorithmPS256, envelope.AlgorithmPS384, envelope.AlgorithmPS512, envelope.AlgorithmRS256:
		return k.Type == KeyTypeRSA
	}
	return false
}

// KeyIDs returns every identifier the key is indexed under.
func (k *TrustedKey) KeyIDs() [][]byte {
	return append([][]byte{k.KeyID}, k.aliases...)
}

// MarshalJSON renders the key without its key material.
func (k TrustedKey) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"kid":    base64.StdEncoding.EncodeToString(k.KeyID),
		"type":   k.Type,
		"source": k.Source,
	}
	if k.Subject != "" {
		out["subject"] = k.Subject
		out["issuer"] = k.Issuer
		out["notBefore"] = k.NotBefore
		out["notAfter"] = k.NotAfter
	}
	return json.Marshal(out)
}

// LineError records a trust list line that could not be added.
type LineError struct {
	Line int
	Err  error
}

// LoadReport summarizes a Load call.
type LoadReport struct {
	Lines   int
	Added   int
	Skipped int
	Failed  int
	Errors  []LineError
}
