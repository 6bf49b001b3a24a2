// Package claims decodes the CWT payload of a health certificate envelope.
package claims

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CWT claim keys, see RFC 8392 and the eHealth network hcert specification.
const (
	KeyIssuer     = 1
	KeyExpiration = 4
	KeyIssuedAt   = 6
	KeyHCert      = -260

	// KeyHCertV1 is the key of the health record inside the hcert claim.
	KeyHCertV1 = 1
)

// ErrMalformedClaims is returned for payloads that are not a health
// certificate CWT.
var ErrMalformedClaims = errors.New("malformed claims")

// cwtPayload is the CWT claim set. Pointer fields stay nil when the claim is
// absent.
type cwtPayload struct {
	Issuer     *string `cbor:"1,keyasint"`
	Expiration any     `cbor:"4,keyasint"`
	IssuedAt   any     `cbor:"6,keyasint"`
	HCert      *struct {
		Record *recordWire `cbor:"1,keyasint"`
	} `cbor:"-260,keyasint"`
}

// recordWire mirrors HealthRecord but keeps track of which fields were sent.
type recordWire struct {
	Version      string         `cbor:"ver"`
	Name         *Name          `cbor:"nam"`
	DateOfBirth  string         `cbor:"dob"`
	Vaccinations *[]Vaccination `cbor:"v"`
	Tests        *[]Test        `cbor:"t"`
	Recoveries   *[]Recovery    `cbor:"r"`
}

// Decode decodes payload into Claims.
func Decode(payload []byte) (*Claims, error) {
	var cwt cwtPayload
	if err := cbor.Unmarshal(payload, &cwt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedClaims, err)
	}
	if cwt.Issuer == nil {
		return nil, fmt.Errorf("%w: missing issuer", ErrMalformedClaims)
	}

	c := &Claims{Issuer: *cwt.Issuer}

	var err error
	if c.IssuedAt, err = timestamp(cwt.IssuedAt, "issued at"); err != nil {
		return nil, err
	}
	if c.Expiration, err = timestamp(cwt.Expiration, "expiration"); err != nil {
		return nil, err
	}

	if cwt.HCert == nil {
		return nil, fmt.Errorf("%w: missing health certificate claim", ErrMalformedClaims)
	}
	record := cwt.HCert.Record
	if record == nil {
		return nil, fmt.Errorf("%w: missing health record", ErrMalformedClaims)
	}
	if record.Name == nil {
		return nil, fmt.Errorf("%w: health record has no name", ErrMalformedClaims)
	}
	if record.Vaccinations == nil && record.Tests == nil && record.Recoveries == nil {
		return nil, fmt.Errorf("%w: health record has no vaccination, test or recovery entries", ErrMalformedClaims)
	}

	c.Record = HealthRecord{
		Version:     record.Version,
		Name:        *record.Name,
		DateOfBirth: record.DateOfBirth,
	}
	if record.Vaccinations != nil {
		c.Record.Vaccinations = *record.Vaccinations
	}
	if record.Tests != nil {
		c.Record.Tests = *record.Tests
	}
	if record.Recoveries != nil {
		c.Record.Recoveries = *record.Recoveries
	}
	return c, nil
}

func timestamp(v any, name string) (time.Time, error) {
	switch v := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("%w: missing %s", ErrMalformedClaims, name)
	case uint64:
		if v > math.MaxInt64 {
			return time.Time{}, fmt.Errorf("%w: %s out of range", ErrMalformedClaims, name)
		}
		return time.Unix(int64(v), 0).UTC(), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case float64:
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %s is %T, not a number", ErrMalformedClaims, name, v)
	}
}

// Marshal encodes c the way issuers lay out the CWT payload.
func Marshal(c *Claims) ([]byte, error) {
	return cbor.Marshal(map[int64]any{
		KeyIssuer:     c.Issuer,
		KeyIssuedAt:   c.IssuedAt.Unix(),
		KeyExpiration: c.Expiration.Unix(),
		KeyHCert: map[int64]any{
			KeyHCertV1: c.Record,
		},
	})
}
