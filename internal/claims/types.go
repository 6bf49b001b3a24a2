package claims

import (
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Claims is the decoded CWT payload of a health certificate.
type Claims struct {
	Issuer     string       `json:"issuer"`
	IssuedAt   time.Time    `json:"issuedAt"`
	Expiration time.Time    `json:"expiration"`
	Record     HealthRecord `json:"record"`
}

// Empty reports whether the record carries no vaccination, test or
// recovery entry. Such a certificate decodes but asserts nothing.
func (c *Claims) Empty() bool {
	r := &c.Record
	return len(r.Vaccinations) == 0 && len(r.Tests) == 0 && len(r.Recoveries) == 0
}

// Coded is a value from a value set. Display is filled by value set
// expansion and never replaces Code.
type Coded struct {
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// UnmarshalCBOR decodes a plain text code.
func (c *Coded) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = Coded{Code: s}
	return nil
}

// MarshalCBOR encodes only the code, as issuers do.
func (c Coded) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(c.Code)
}

func (c Coded) String() string {
	if c.Display == "" {
		return c.Code
	}
	return c.Display
}

// https://github.com/ehn-dcc-development/ehn-dcc-schema/blob/release/1.3.0/DCC.schema.json
type HealthRecord struct {
	Version      string        `cbor:"ver" json:"ver"`
	Name         Name          `cbor:"nam" json:"nam"`
	DateOfBirth  string        `cbor:"dob" json:"dob"`
	Vaccinations []Vaccination `cbor:"v,omitempty" json:"v,omitempty"`
	Tests        []Test        `cbor:"t,omitempty" json:"t,omitempty"`
	Recoveries   []Recovery    `cbor:"r,omitempty" json:"r,omitempty"`
}

// https://ec.europa.eu/health/sites/default/files/ehealth/docs/covid-certificate_json_specification_en.pdf
type Name struct {
	Forename             string `cbor:"gn,omitempty" json:"gn,omitempty"`
	ForenameStandardized string `cbor:"gnt,omitempty" json:"gnt,omitempty"`
	Surname              string `cbor:"fn,omitempty" json:"fn,omitempty"`

	// fnt is the only mandatory name field and is always encoded.
	SurnameStandardized string `cbor:"fnt" json:"fnt"`
}

// Full returns forename and surname separated by a space.
func (n Name) Full() string {
	return strings.TrimSpace(n.Forename + " " + n.Surname)
}

// https://github.com/ehn-dcc-development/ehn-dcc-schema/blob/release/1.3.0/DCC.Types.schema.json
type Vaccination struct {
	Disease                     Coded  `cbor:"tg" json:"tg"`
	VaccineOrProphylaxis        Coded  `cbor:"vp" json:"vp"`
	MedicinalProduct            Coded  `cbor:"mp" json:"mp"`
	Manufacturer                Coded  `cbor:"ma" json:"ma"`
	DoseNumber                  int64  `cbor:"dn" json:"dn"`
	TotalSeriesOfDoses          int64  `cbor:"sd" json:"sd"`
	Date                        string `cbor:"dt" json:"dt"`
	Country                     Coded  `cbor:"co" json:"co"`
	CertificateIssuer           string `cbor:"is" json:"is"`
	UniqueCertificateIdentifier string `cbor:"ci" json:"ci"`
}

type Test struct {
	Disease                     Coded  `cbor:"tg" json:"tg"`
	TestType                    Coded  `cbor:"tt" json:"tt"`
	TestName                    string `cbor:"nm,omitempty" json:"nm,omitempty"`
	TestDevice                  Coded  `cbor:"ma" json:"ma"`
	SampleCollected             string `cbor:"sc" json:"sc"`
	Result                      Coded  `cbor:"tr" json:"tr"`
	TestingCentre               string `cbor:"tc,omitempty" json:"tc,omitempty"`
	Country                     Coded  `cbor:"co" json:"co"`
	CertificateIssuer           string `cbor:"is" json:"is"`
	UniqueCertificateIdentifier string `cbor:"ci" json:"ci"`
}

type Recovery struct {
	Disease                     Coded  `cbor:"tg" json:"tg"`
	FirstPositiveResultDate     string `cbor:"fr" json:"fr"`
	Country                     Coded  `cbor:"co" json:"co"`
	CertificateIssuer           string `cbor:"is" json:"is"`
	CertificateValidFrom        string `cbor:"df" json:"df"`
	CertificateValidUntil       string `cbor:"du" json:"du"`
	UniqueCertificateIdentifier string `cbor:"ci" json:"ci"`
}
