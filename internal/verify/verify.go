// Package verify checks health certificate signatures against a trust list.
package verify

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/popsu/covidpass/internal/claims"
	"github.com/popsu/covidpass/internal/envelope"
	"github.com/popsu/covidpass/internal/trustlist"
	"github.com/veraison/go-cose"
)

type verifyFunc func(pub crypto.PublicKey, tbs, sig []byte) error

// verifiers lists every supported algorithm. Adding an algorithm means
// adding an entry here and a key type mapping in trustlist.
var verifiers = map[envelope.Algorithm]verifyFunc{
	envelope.AlgorithmES256: coseVerify(cose.AlgorithmES256),
	envelope.AlgorithmES384: coseVerify(cose.AlgorithmES384),
	envelope.AlgorithmES512: coseVerify(cose.AlgorithmES512),
	envelope.AlgorithmPS256: coseVerify(cose.AlgorithmPS256),
	envelope.AlgorithmPS384: coseVerify(cose.AlgorithmPS384),
	envelope.AlgorithmPS512: coseVerify(cose.AlgorithmPS512),
	envelope.AlgorithmRS256: verifyRS256,
}

func coseVerify(alg cose.Algorithm) verifyFunc {
	return func(pub crypto.PublicKey, tbs, sig []byte) error {
		verifier, err := cose.NewVerifier(alg, pub)
		if err != nil {
			return err
		}
		return verifier.Verify(tbs, sig)
	}
}

func verifyRS256(pub crypto.PublicKey, tbs, sig []byte) error {
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return errors.New("RS256 requires an RSA key")
	}
	digest := sha256.Sum256(tbs)
	return rsa.VerifyPKCS1v15(rsaPub, crypto.SHA256, digest[:], sig)
}

// Supported reports whether alg can be verified.
func Supported(alg envelope.Algorithm) bool {
	_, ok := verifiers[alg]
	return ok
}

// Result holds the independent facts established about a certificate.
// Signature is the outcome of the signature check alone and Expired tells
// whether the claims expired before CheckedAt. Outcome combines both and is
// Expired only when the signature is Valid. Candidates counts the keys tried.
type Result struct {
	Signature  Outcome               `json:"signature"`
	Expired    bool                  `json:"expired"`
	Outcome    Outcome               `json:"outcome"`
	Algorithm  envelope.Algorithm    `json:"algorithm"`
	KeyID      []byte                `json:"kid,omitempty"`
	Candidates int                   `json:"candidates"`
	SignedBy   *trustlist.TrustedKey `json:"signedBy,omitempty"`
	CheckedAt  time.Time             `json:"checkedAt"`
}

// Verify checks the signature of env against tl.
func Verify(env *envelope.Envelope, tl *trustlist.TrustList) Outcome {
	res := signature(env, tl)
	return res.Signature
}

// Check verifies the signature of env and the expiration of c at now.
func Check(env *envelope.Envelope, c *claims.Claims, tl *trustlist.TrustList, now time.Time) Result {
	res := signature(env, tl)
	res.CheckedAt = now
	res.Expired = now.After(c.Expiration)
	res.Outcome = res.Signature
	if res.Signature == Valid && res.Expired {
		res.Outcome = Expired
	}
	return res
}

func signature(env *envelope.Envelope, tl *trustlist.TrustList) Result {
	res := Result{
		Algorithm: env.Header.Algorithm,
		KeyID:     env.KeyID(),
	}

	verifyFn, ok := verifiers[env.Header.Algorithm]
	if !ok {
		res.Signature = UnsupportedAlgorithm
		return res
	}

	var candidates []trustlist.TrustedKey
	if len(res.KeyID) == 0 {
		candidates = tl.Keys()
	} else {
		candidates = tl.FindKeys(res.KeyID)
	}
	if len(candidates) == 0 {
		res.Signature = KeyNotFound
		return res
	}

	tbs, err := env.ToBeSigned()
	if err != nil {
		res.Signature = MalformedEnvelope
		return res
	}

	res.Signature = SignatureMismatch
	for i := range candidates {
		key := &candidates[i]
		if !key.Supports(env.Header.Algorithm) {
			continue
		}
		res.Candidates++
		if verifyFn(key.PublicKey, tbs, env.Signature) == nil {
			res.Signature = Valid
			res.SignedBy = key
			return res
		}
	}
	return res
}
