// Package dgctest produces signed health certificates and issuer
// certificates for tests.
package dgctest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/popsu/covidpass/internal/claims"
	"github.com/popsu/covidpass/internal/codec"
	"github.com/popsu/covidpass/internal/envelope"
	"github.com/stretchr/testify/require"
	"github.com/veraison/go-cose"
)

// Issuer is a signing key with its self-signed document signer certificate.
type Issuer struct {
	Signer crypto.Signer
	Cert   *x509.Certificate
	Alg    envelope.Algorithm
}

// NewIssuer creates an issuer signing with alg.
func NewIssuer(t testing.TB, alg envelope.Algorithm) *Issuer {
	t.Helper()

	var signer crypto.Signer
	var err error
	switch alg {
	case envelope.AlgorithmES256:
		signer, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case envelope.AlgorithmES384:
		signer, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case envelope.AlgorithmES512:
		signer, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	default:
		signer, err = rsa.GenerateKey(rand.Reader, 2048)
	}
	require.NoError(t, err)

	return &Issuer{
		Signer: signer,
		Cert:   SelfSigned(t, signer, "DSC test issuer"),
		Alg:    alg,
	}
}

// SelfSigned returns a self-signed certificate for signer.
func SelfSigned(t testing.TB, signer crypto.Signer, cn string) *x509.Certificate {
	t.Helper()

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: cn, Country: []string{"AT"}},
		NotBefore:    time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, signer.Public(), signer)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

// TrustListLine returns the certificate as a trust list line.
func (i *Issuer) TrustListLine() string {
	return base64.StdEncoding.EncodeToString(i.Cert.Raw)
}

// KeyID returns the key identifier issuers derive from their certificate.
func (i *Issuer) KeyID() []byte {
	sum := sha256.Sum256(i.Cert.Raw)
	return sum[:8]
}

// Options tweak how a certificate is produced.
type Options struct {
	// KeyID overrides the kid; nil uses the issuer's.
	KeyID []byte
	// OmitKeyID leaves the kid out of the protected header.
	OmitKeyID bool
	// UnprotectedKeyID puts the kid into the unprotected header instead.
	UnprotectedKeyID bool
	// Untagged drops the COSE_Sign1 tag.
	Untagged bool
	// Uncompressed skips zlib.
	Uncompressed bool
	// Alg overrides the declared algorithm.
	Alg envelope.Algorithm
}

// Sign encodes and signs c and returns the COSE bytes.
func (i *Issuer) Sign(t testing.TB, c *claims.Claims, opts Options) []byte {
	t.Helper()

	payload, err := claims.Marshal(c)
	require.NoError(t, err)

	alg := i.Alg
	if opts.Alg != 0 {
		alg = opts.Alg
	}
	kid := i.KeyID()
	if opts.KeyID != nil {
		kid = opts.KeyID
	}

	protectedHeader := map[int64]any{1: int64(alg)}
	unprotectedHeader := map[int64]any{}
	switch {
	case opts.OmitKeyID:
	case opts.UnprotectedKeyID:
		unprotectedHeader[4] = kid
	default:
		protectedHeader[4] = kid
	}
	protected, err := cbor.Marshal(protectedHeader)
	require.NoError(t, err)

	tbs, err := envelope.SigStructure(protected, payload)
	require.NoError(t, err)

	sig := i.signBytes(t, tbs)

	var msg any = []any{protected, unprotectedHeader, payload, sig}
	if !opts.Untagged {
		msg = cbor.Tag{Number: envelope.TagSign1, Content: msg}
	}
	data, err := cbor.Marshal(msg)
	require.NoError(t, err)
	return data
}

func (i *Issuer) signBytes(t testing.TB, tbs []byte) []byte {
	t.Helper()

	if i.Alg == envelope.AlgorithmRS256 {
		digest := sha256.Sum256(tbs)
		sig, err := rsa.SignPKCS1v15(rand.Reader, i.Signer.(*rsa.PrivateKey), crypto.SHA256, digest[:])
		require.NoError(t, err)
		return sig
	}

	signer, err := cose.NewSigner(cose.Algorithm(i.Alg), i.Signer)
	require.NoError(t, err)
	sig, err := signer.Sign(rand.Reader, tbs)
	require.NoError(t, err)
	return sig
}

// QR signs c and returns the HC1: text a QR code would carry.
func (i *Issuer) QR(t testing.TB, c *claims.Claims, opts Options) string {
	t.Helper()

	data := i.Sign(t, c, opts)
	if opts.Uncompressed {
		return codec.Prefix + codec.EncodeBase45(data)
	}
	text, err := codec.Encode(data)
	require.NoError(t, err)
	return text
}

// Vaccinated returns claims for a fully vaccinated test person expiring at
// exp.
func Vaccinated(exp time.Time) *claims.Claims {
	return &claims.Claims{
		Issuer:     "AT",
		IssuedAt:   time.Date(2021, 6, 1, 8, 0, 0, 0, time.UTC),
		Expiration: exp.UTC(),
		Record: claims.HealthRecord{
			Version:     "1.3.0",
			DateOfBirth: "1998-02-26",
			Name: claims.Name{
				Forename:             "Gabriele",
				ForenameStandardized: "GABRIELE",
				Surname:              "Musterfrau-Gößinger",
				SurnameStandardized:  "MUSTERFRAU<GOESSINGER",
			},
			Vaccinations: []claims.Vaccination{{
				Disease:                     claims.Coded{Code: "840539006"},
				VaccineOrProphylaxis:        claims.Coded{Code: "1119349007"},
				MedicinalProduct:            claims.Coded{Code: "EU/1/20/1528"},
				Manufacturer:                claims.Coded{Code: "ORG-100030215"},
				DoseNumber:                  2,
				TotalSeriesOfDoses:          2,
				Date:                        "2021-05-29",
				Country:                     claims.Coded{Code: "AT"},
				CertificateIssuer:           "Ministry of Health, Austria",
				UniqueCertificateIdentifier: "URN:UVCI:01:AT:10807843F94AEE0EE5093FBC254BD813#B",
			}},
		},
	}
}
