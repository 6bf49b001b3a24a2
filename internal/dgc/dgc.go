// Package dgc decodes and verifies EU digital COVID certificates from the
// text carried by their QR codes.
package dgc

import (
	"errors"
	"fmt"
	"time"

	"github.com/popsu/covidpass/internal/claims"
	"github.com/popsu/covidpass/internal/codec"
	"github.com/popsu/covidpass/internal/envelope"
	"github.com/popsu/covidpass/internal/trustlist"
	"github.com/popsu/covidpass/internal/valueset"
	"github.com/popsu/covidpass/internal/verify"
	"github.com/rs/zerolog"
)

// Certificate is a decoded health certificate.
type Certificate struct {
	Raw      string               `json:"-"`
	Envelope *envelope.Envelope   `json:"-"`
	Claims   *claims.Claims       `json:"claims"`
	Record   *claims.HealthRecord `json:"record"`
	// Result is nil when the certificate was only decoded.
	Result   *verify.Result `json:"result,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Verified reports whether the certificate carries a valid signature from a
// trusted key and has not expired.
func (c *Certificate) Verified() bool {
	return c.Result != nil && c.Result.Outcome == verify.Valid
}

// IsDecodeError reports whether err means the input is not a health
// certificate at all, as opposed to one that fails verification.
func IsDecodeError(err error) bool {
	return errors.Is(err, codec.ErrFormat) ||
		errors.Is(err, envelope.ErrMalformedEnvelope) ||
		errors.Is(err, claims.ErrMalformedClaims)
}

type options struct {
	logger zerolog.Logger
	tables *valueset.Tables
}

// Option configures Decode and VerifyCertificate.
type Option func(*options)

// WithLogger sets the logger receiving format warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTables sets the value sets used to label coded values.
func WithTables(t *valueset.Tables) Option {
	return func(o *options) {
		o.tables = t
	}
}

func newOptions(opts []Option) *options {
	o := &options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	if o.tables == nil {
		o.tables = valueset.Default()
	}
	return o
}

// Decode decodes raw without checking its signature.
func Decode(raw string, opts ...Option) (*Certificate, error) {
	return decode(raw, newOptions(opts))
}

func decode(raw string, o *options) (*Certificate, error) {
	decoded, err := codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding QR text: %w", err)
	}
	for _, w := range decoded.Warnings {
		o.logger.Warn().Str("warning", w).Msg("certificate format deviation")
	}

	env, err := envelope.Parse(decoded.Data)
	if err != nil {
		return nil, fmt.Errorf("parsing envelope: %w", err)
	}

	c, err := claims.Decode(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("decoding claims: %w", err)
	}

	return &Certificate{
		Raw:      raw,
		Envelope: env,
		Claims:   c,
		Record:   valueset.Expand(&c.Record, o.tables),
		Warnings: decoded.Warnings,
	}, nil
}

// VerifyCertificate decodes raw and checks it against tl at now. Errors are
// returned only when raw cannot be decoded; a certificate that fails
// verification is returned with its Result set.
func VerifyCertificate(raw string, tl *trustlist.TrustList, now time.Time, opts ...Option) (*Certificate, error) {
	o := newOptions(opts)

	cert, err := decode(raw, o)
	if err != nil {
		return nil, err
	}

	res := verify.Check(cert.Envelope, cert.Claims, tl, now)
	cert.Result = &res

	o.logger.Debug().
		Stringer("outcome", res.Outcome).
		Stringer("alg", res.Algorithm).
		Hex("kid", res.KeyID).
		Int("candidates", res.Candidates).
		Msg("certificate checked")

	return cert, nil
}
