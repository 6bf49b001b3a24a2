package verify

import "fmt"

// Outcome is the result of checking a certificate against a trust list.
type Outcome int

const (
	Valid Outcome = iota
	SignatureMismatch
	KeyNotFound
	Expired
	MalformedEnvelope
	UnsupportedAlgorithm
)

var outcomeNames = [...]string{
	Valid:                "valid",
	SignatureMismatch:    "signature_mismatch",
	KeyNotFound:          "key_not_found",
	Expired:              "expired",
	MalformedEnvelope:    "malformed_envelope",
	UnsupportedAlgorithm: "unsupported_algorithm",
}

func (o Outcome) String() string {
	if o >= 0 && int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Describe returns a sentence suitable for end users.
func (o Outcome) Describe() string {
	switch o {
	case Valid:
		return "The certificate signature is valid."
	case SignatureMismatch:
		return "The certificate signature does not match any trusted key."
	case KeyNotFound:
		return "The certificate was signed by a key that is not in the trust list."
	case Expired:
		return "The certificate has expired."
	case MalformedEnvelope:
		return "The certificate signature structure is malformed."
	case UnsupportedAlgorithm:
		return "The certificate uses an unsupported signature algorithm."
	default:
		return o.String()
	}
}
