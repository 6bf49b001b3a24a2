// Package codec turns the textual QR payload of a health certificate into the
// raw CBOR bytes of its COSE envelope.
package codec

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/adrianrudnik/base45-go"
)

// Prefix is the context identifier of version 1 health certificates.
const Prefix = "HC1:"

// MaxInflatedSize bounds the decompressed envelope. Issued certificates are a
// few kilobytes.
const MaxInflatedSize = 1 << 20

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ $%*+-./:"

var (
	// ErrFormat is the parent of every error returned by Decode.
	ErrFormat = errors.New("format error")
	// ErrInvalidBase45 is returned for text that is not valid base45.
	ErrInvalidBase45 = fmt.Errorf("%w: invalid base45", ErrFormat)
	// ErrTooLarge is returned when the payload inflates beyond MaxInflatedSize.
	ErrTooLarge = fmt.Errorf("%w: inflated payload exceeds %d bytes", ErrFormat, MaxInflatedSize)
)

// Decoded is the result of Decode.
type Decoded struct {
	// Data holds the CBOR bytes of the envelope.
	Data []byte
	// Prefixed reports whether the input carried the HC1: prefix.
	Prefixed bool
	// Compressed reports whether Data was zlib inflated.
	Compressed bool
	// Warnings lists tolerated deviations from the expected format.
	Warnings []string
}

// Decode strips the prefix, base45 decodes and inflates raw.
func Decode(raw string) (*Decoded, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty input", ErrFormat)
	}

	res := &Decoded{}
	body, ok := strings.CutPrefix(raw, Prefix)
	res.Prefixed = ok
	if !ok {
		res.Warnings = append(res.Warnings, fmt.Sprintf("missing %q prefix, decoding whole input", Prefix))
	}

	b45decoded, err := DecodeBase45(body)
	if err != nil {
		return nil, err
	}

	inflated, err := zlibUncompress(b45decoded)
	if errors.Is(err, ErrTooLarge) {
		return nil, err
	}
	if err != nil {
		res.Data = b45decoded
		res.Warnings = append(res.Warnings, fmt.Sprintf("payload not zlib compressed (%v), using raw bytes", err))
		return res, nil
	}

	res.Data = inflated
	res.Compressed = true
	return res, nil
}

// DecodeBase45 decodes s. A trailing group must hold two or three symbols.
func DecodeBase45(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	if len(s)%3 == 1 {
		return nil, fmt.Errorf("%w: dangling symbol, length %d", ErrInvalidBase45, len(s))
	}
	if i := strings.IndexFunc(s, func(r rune) bool { return !strings.ContainsRune(alphabet, r) }); i >= 0 {
		return nil, fmt.Errorf("%w: character %q at offset %d", ErrInvalidBase45, s[i], i)
	}

	decoded, err := base45.Decode([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase45, err)
	}
	return decoded, nil
}

// EncodeBase45 is the inverse of DecodeBase45.
func EncodeBase45(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return string(base45.Encode(b))
}

// Encode compresses and base45 encodes data and adds the prefix.
func Encode(data []byte) (string, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return Prefix + EncodeBase45(buf.Bytes()), nil
}

func zlibUncompress(data []byte) ([]byte, error) {
	rc, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var out bytes.Buffer
	n, err := io.Copy(&out, io.LimitReader(rc, MaxInflatedSize+1))
	if err != nil {
		return nil, err
	}
	if n > MaxInflatedSize {
		return nil, ErrTooLarge
	}
	return out.Bytes(), nil
}
