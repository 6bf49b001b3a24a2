// Package valueset resolves the coded values of a health record into
// display labels using the value sets published for health certificates.
package valueset

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/popsu/covidpass/internal/claims"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Value set identifiers.
// https://github.com/ehn-dcc-development/ehn-dcc-valuesets
const (
	DiseaseAgentTargeted = "disease-agent-targeted"
	VaccineProphylaxis   = "sct-vaccines-covid-19"
	VaccineProduct       = "vaccines-covid-19-names"
	VaccineManufacturer  = "vaccines-covid-19-auth-holders"
	TestType             = "covid-19-lab-test-type"
	TestResult           = "covid-19-lab-result"
	TestManufacturer     = "covid-19-lab-test-manufacturer-and-name"
	Country              = "country-2-codes"
)

//go:embed valuesets.json
var embedded []byte

// Tables maps value set identifiers to code/label tables.
type Tables struct {
	sets map[string]map[string]string
}

var (
	defaultOnce   sync.Once
	defaultTables *Tables
	defaultErr    error
)

// Default returns the embedded tables.
func Default() *Tables {
	defaultOnce.Do(func() {
		defaultTables, defaultErr = Parse(embedded)
	})
	if defaultErr != nil {
		// the embedded file is part of the build
		panic(fmt.Sprintf("valueset: embedded tables: %v", defaultErr))
	}
	return defaultTables
}

// Parse reads tables from a JSON object of value set id to code/label map.
func Parse(data []byte) (*Tables, error) {
	var sets map[string]map[string]string
	if err := json.Unmarshal(data, &sets); err != nil {
		return nil, fmt.Errorf("parsing value sets: %w", err)
	}
	return &Tables{sets: sets}, nil
}

// Lookup returns the label of code in set. Country codes are resolved to
// English region names.
func (t *Tables) Lookup(set, code string) (string, bool) {
	if set == Country {
		return countryName(code)
	}
	label, ok := t.sets[set][code]
	return label, ok
}

// Label returns the label of code, or a marker carrying the code when it is
// not in the table.
func (t *Tables) Label(set, code string) string {
	if label, ok := t.Lookup(set, code); ok {
		return label
	}
	return "unrecognized code: " + code
}

func countryName(code string) (string, bool) {
	region, err := language.ParseRegion(strings.ToUpper(code))
	if err != nil || !region.IsCountry() {
		return "", false
	}
	name := display.English.Regions().Name(region)
	return name, name != ""
}

func (t *Tables) expand(set string, c *claims.Coded) {
	if c.Code == "" {
		return
	}
	c.Display = t.Label(set, c.Code)
}

// Expand returns a copy of record with every coded value labelled. Codes
// are never altered.
func Expand(record *claims.HealthRecord, t *Tables) *claims.HealthRecord {
	out := *record
	out.Vaccinations = append([]claims.Vaccination(nil), record.Vaccinations...)
	out.Tests = append([]claims.Test(nil), record.Tests...)
	out.Recoveries = append([]claims.Recovery(nil), record.Recoveries...)

	for i := range out.Vaccinations {
		v := &out.Vaccinations[i]
		t.expand(DiseaseAgentTargeted, &v.Disease)
		t.expand(VaccineProphylaxis, &v.VaccineOrProphylaxis)
		t.expand(VaccineProduct, &v.MedicinalProduct)
		t.expand(VaccineManufacturer, &v.Manufacturer)
		t.expand(Country, &v.Country)
	}
	for i := range out.Tests {
		v := &out.Tests[i]
		t.expand(DiseaseAgentTargeted, &v.Disease)
		t.expand(TestType, &v.TestType)
		t.expand(TestManufacturer, &v.TestDevice)
		t.expand(TestResult, &v.Result)
		t.expand(Country, &v.Country)
	}
	for i := range out.Recoveries {
		v := &out.Recoveries[i]
		t.expand(DiseaseAgentTargeted, &v.Disease)
		t.expand(Country, &v.Country)
	}
	return &out
}
