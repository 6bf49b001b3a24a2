package trustlist

import (
	"bytes"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// ParseKey parses one trust list entry. Accepted encodings are a base64 DER
// X.509 certificate, a base64 DER SubjectPublicKeyInfo, PEM of either, or a
// JWK object.
//
// Certificates are identified by the first 8 bytes of the SHA-256 of their
// DER encoding, which is what issuers put in the kid header. They are also
// indexed under the same digest of their SubjectPublicKeyInfo, the only
// identifier a bare public key has.
func ParseKey(encoded string) (*TrustedKey, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty entry", ErrInvalidCertificate)
	}

	if strings.HasPrefix(encoded, "{") {
		return parseJWK([]byte(encoded))
	}

	if block, _ := pem.Decode([]byte(encoded)); block != nil {
		return parsePEMBlock(block)
	}

	der, err := decodeBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding base64: %v", ErrInvalidCertificate, err)
	}
	return parseDER(der)
}

func parsePEMBlock(block *pem.Block) (*TrustedKey, error) {
	switch block.Type {
	case "CERTIFICATE":
		return parseCertificate(block.Bytes)
	case "PUBLIC KEY", "EC PUBLIC KEY":
		return parsePublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
		}
		return newTrustedKey(pub, SourcePublicKey)
	default:
		return nil, fmt.Errorf("%w: unsupported PEM block type %s", ErrInvalidCertificate, block.Type)
	}
}

func parseDER(der []byte) (*TrustedKey, error) {
	key, certErr := parseCertificate(der)
	if certErr == nil {
		return key, nil
	}
	key, err := parsePublicKey(der)
	if err == nil {
		return key, nil
	}
	return nil, certErr
}

func parseCertificate(der []byte) (*TrustedKey, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing certificate: %v", ErrInvalidCertificate, err)
	}

	key, err := newTrustedKey(cert.PublicKey, SourceCertificate)
	if err != nil {
		return nil, err
	}
	key.aliases = append(key.aliases, key.KeyID)
	key.KeyID = KeyID(cert.Raw)
	key.Subject = cert.Subject.String()
	key.Issuer = cert.Issuer.String()
	key.NotBefore = cert.NotBefore
	key.NotAfter = cert.NotAfter
	return key, nil
}

func parsePublicKey(der []byte) (*TrustedKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing public key: %v", ErrInvalidCertificate, err)
	}
	return newTrustedKey(pub, SourcePublicKey)
}

func parseJWK(data []byte) (*TrustedKey, error) {
	parsed, err := jwk.ParseKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing JWK: %v", ErrInvalidCertificate, err)
	}

	var raw any
	if err := jwk.Export(parsed, &raw); err != nil {
		return nil, fmt.Errorf("%w: exporting JWK: %v", ErrInvalidCertificate, err)
	}

	key, err := newTrustedKey(raw, SourceJWK)
	if err != nil {
		return nil, err
	}

	if kid, ok := parsed.KeyID(); ok && kid != "" {
		id, err := decodeBase64(kid)
		if err != nil {
			return nil, fmt.Errorf("%w: JWK kid is not base64: %v", ErrInvalidCertificate, err)
		}
		if !bytes.Equal(id, key.KeyID) {
			key.aliases = append(key.aliases, key.KeyID)
			key.KeyID = id
		}
	}
	return key, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
