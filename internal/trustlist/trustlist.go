// Package trustlist holds the public keys certificate signatures are checked
// against, indexed by their short key identifier.
//
// A TrustList is filled once and then only read. Reloading builds a new list
// and swaps it into a Holder.
package trustlist

import (
	"bytes"
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// KeyIDLength is the length of the truncated key identifier.
const KeyIDLength = 8

// ErrInvalidCertificate is returned for trust list entries that cannot be
// turned into a trusted key.
var ErrInvalidCertificate = errors.New("invalid certificate")

// TrustList maps key identifiers to candidate keys. More than one key may
// share an identifier.
type TrustList struct {
	keys          []*TrustedKey
	index         map[string][]*TrustedKey
	byFingerprint map[[32]byte]*TrustedKey
}

// New returns an empty TrustList.
func New() *TrustList {
	return &TrustList{
		index:         make(map[string][]*TrustedKey),
		byFingerprint: make(map[[32]byte]*TrustedKey),
	}
}

// Load builds a TrustList from trust list lines. Blank lines and lines
// starting with '#' are skipped. Lines that fail to parse are counted in the
// report and never abort the load.
func Load(lines []string) (*TrustList, LoadReport) {
	tl := New()
	report := LoadReport{Lines: len(lines)}
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			report.Skipped++
			continue
		}
		if err := tl.AddKey(line); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, LineError{Line: i + 1, Err: err})
			continue
		}
		report.Added++
	}
	return tl, report
}

// AddKey parses an encoded certificate or public key and adds it.
func (tl *TrustList) AddKey(encoded string) error {
	key, err := ParseKey(encoded)
	if err != nil {
		return err
	}
	tl.insert(key)
	return nil
}

// Insert adds pub under an explicit key identifier, as published by trust
// list formats that carry the identifier next to the key.
func (tl *TrustList) Insert(kid []byte, pub crypto.PublicKey) error {
	key, err := newTrustedKey(pub, SourcePublicKey)
	if err != nil {
		return err
	}
	if len(kid) > 0 && !bytes.Equal(kid, key.KeyID) {
		key.aliases = append(key.aliases, key.KeyID)
		key.KeyID = bytes.Clone(kid)
	}
	tl.insert(key)
	return nil
}

func (tl *TrustList) insert(key *TrustedKey) {
	existing, ok := tl.byFingerprint[key.fingerprint]
	if !ok {
		tl.byFingerprint[key.fingerprint] = key
		tl.keys = append(tl.keys, key)
		for _, id := range key.KeyIDs() {
			tl.index[string(id)] = append(tl.index[string(id)], key)
		}
		return
	}

	for _, id := range key.KeyIDs() {
		if existing.indexedUnder(id) {
			continue
		}
		existing.aliases = append(existing.aliases, id)
		tl.index[string(id)] = append(tl.index[string(id)], existing)
	}
}

func (k *TrustedKey) indexedUnder(id []byte) bool {
	for _, known := range k.KeyIDs() {
		if bytes.Equal(known, id) {
			return true
		}
	}
	return false
}

// FindKeys returns the keys indexed under kid. An empty result means the
// identifier is unknown.
func (tl *TrustList) FindKeys(kid []byte) []TrustedKey {
	candidates := tl.index[string(kid)]
	out := make([]TrustedKey, 0, len(candidates))
	for _, k := range candidates {
		out = append(out, *k)
	}
	return out
}

// Keys returns every distinct key in insertion order.
func (tl *TrustList) Keys() []TrustedKey {
	out := make([]TrustedKey, 0, len(tl.keys))
	for _, k := range tl.keys {
		out = append(out, *k)
	}
	return out
}

// Len returns the number of distinct keys.
func (tl *TrustList) Len() int {
	return len(tl.keys)
}

// KeyID returns the truncated SHA-256 identifier of der.
func KeyID(der []byte) []byte {
	sum := sha256.Sum256(der)
	return sum[:KeyIDLength]
}

func newTrustedKey(pub crypto.PublicKey, source Source) (*TrustedKey, error) {
	if signer, ok := pub.(crypto.Signer); ok {
		pub = signer.Public()
	}
	typ := keyTypeOf(pub)
	if typ == KeyTypeUnknown {
		return nil, fmt.Errorf("%w: unsupported public key type %T", ErrInvalidCertificate, pub)
	}
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return &TrustedKey{
		KeyID:       KeyID(spki),
		PublicKey:   pub,
		Type:        typ,
		Source:      source,
		fingerprint: sha256.Sum256(spki),
	}, nil
}

// Holder publishes the current TrustList to concurrent readers.
type Holder struct {
	current atomic.Pointer[TrustList]
}

// NewHolder returns a Holder serving tl.
func NewHolder(tl *TrustList) *Holder {
	h := &Holder{}
	h.Swap(tl)
	return h
}

// Load returns the current snapshot.
func (h *Holder) Load() *TrustList {
	if tl := h.current.Load(); tl != nil {
		return tl
	}
	return New()
}

// Swap replaces the current snapshot and returns the previous one.
func (h *Holder) Swap(tl *TrustList) *TrustList {
	return h.current.Swap(tl)
}
