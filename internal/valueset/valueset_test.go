package valueset_test

import (
	"testing"
	"time"

	"github.com/popsu/covidpass/internal/claims"
	"github.com/popsu/covidpass/internal/dgctest"
	"github.com/popsu/covidpass/internal/valueset"
	"github.com/stretchr/testify/require"
)

func TestExpandVaccination(t *testing.T) {
	t.Parallel()

	c := dgctest.Vaccinated(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	out := valueset.Expand(&c.Record, valueset.Default())

	v := out.Vaccinations[0]
	require.Equal(t, "COVID-19", v.Disease.Display)
	require.Equal(t, "SARS-CoV-2 mRNA vaccine", v.VaccineOrProphylaxis.Display)
	require.Equal(t, "Comirnaty", v.MedicinalProduct.Display)
	require.Equal(t, "Biontech Manufacturing GmbH", v.Manufacturer.Display)
	require.Equal(t, "Austria", v.Country.Display)
	require.Equal(t, "EU/1/20/1528", v.MedicinalProduct.Code)

	// the input is left untouched
	require.Empty(t, c.Record.Vaccinations[0].MedicinalProduct.Display)
}

func TestExpandUnrecognizedCode(t *testing.T) {
	t.Parallel()

	record := &claims.HealthRecord{
		Vaccinations: []claims.Vaccination{{MedicinalProduct: claims.Coded{Code: "EU/9/99/0000"}}},
	}
	out := valueset.Expand(record, valueset.Default())

	mp := out.Vaccinations[0].MedicinalProduct
	require.Equal(t, "EU/9/99/0000", mp.Code)
	require.Contains(t, mp.Display, "EU/9/99/0000")
	require.Empty(t, out.Vaccinations[0].Disease.Display, "absent codes stay unlabelled")
}

func TestExpandTestAndRecovery(t *testing.T) {
	t.Parallel()

	record := &claims.HealthRecord{
		Tests: []claims.Test{{
			Disease:    claims.Coded{Code: "840539006"},
			TestType:   claims.Coded{Code: "LP217198-3"},
			TestDevice: claims.Coded{Code: "1232"},
			Result:     claims.Coded{Code: "260415000"},
			Country:    claims.Coded{Code: "DE"},
		}},
		Recoveries: []claims.Recovery{{
			Disease: claims.Coded{Code: "840539006"},
			Country: claims.Coded{Code: "FR"},
		}},
	}
	out := valueset.Expand(record, valueset.Default())

	tst := out.Tests[0]
	require.Equal(t, "Rapid immunoassay", tst.TestType.Display)
	require.Equal(t, "Not detected", tst.Result.Display)
	require.Contains(t, tst.TestDevice.Display, "Panbio")
	require.Equal(t, "Germany", tst.Country.Display)
	require.Equal(t, "France", out.Recoveries[0].Country.Display)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	tables := valueset.Default()

	tests := map[string]struct {
		set, code string
		want      string
		ok        bool
	}{
		"manufacturer":     {valueset.VaccineManufacturer, "ORG-100031184", "Moderna Biotech Spain S.L.", true},
		"result":           {valueset.TestResult, "260373001", "Detected", true},
		"lowercase region": {valueset.Country, "it", "Italy", true},
		"not a region":     {valueset.Country, "XX1", "", false},
		"unknown set":      {"no-such-set", "1", "", false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, ok := tables.Lookup(tt.set, tt.code)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}

	require.Equal(t, "unrecognized code: nope", tables.Label(valueset.TestType, "nope"))
}

func TestParse(t *testing.T) {
	t.Parallel()

	tables, err := valueset.Parse([]byte(`{"covid-19-lab-result": {"1": "one"}}`))
	require.NoError(t, err)
	require.Equal(t, "one", tables.Label(valueset.TestResult, "1"))

	_, err = valueset.Parse([]byte(`[`))
	require.Error(t, err)
}
