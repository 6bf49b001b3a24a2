package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/popsu/covidpass/internal/dgctest"
	"github.com/popsu/covidpass/internal/envelope"
	"github.com/popsu/covidpass/internal/trustlist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var expiry = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	issuer  *dgctest.Issuer
	holder  *trustlist.Holder
	metrics *Metrics
	reg     *prometheus.Registry
	handler *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	issuer := dgctest.NewIssuer(t, envelope.AlgorithmES256)
	tl := trustlist.New()
	require.NoError(t, tl.AddKey(issuer.TrustListLine()))

	reg := prometheus.NewRegistry()
	f := &fixture{
		issuer:  issuer,
		holder:  trustlist.NewHolder(tl),
		metrics: NewMetrics(reg),
		reg:     reg,
	}
	f.handler = NewHandler(f.holder, f.metrics, zerolog.Nop())
	f.handler.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func post(t *testing.T, h *Handler, target, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	resp, err := h.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestVerifyEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	qr := f.issuer.QR(t, dgctest.Vaccinated(expiry), dgctest.Options{})
	untrusted := dgctest.NewIssuer(t, envelope.AlgorithmES256).QR(t, dgctest.Vaccinated(expiry), dgctest.Options{})

	tests := map[string]struct {
		target   string
		body     string
		status   int
		outcome  string
		verified bool
	}{
		"valid":         {"/verify", qr, http.StatusOK, "valid", true},
		"expired":       {"/verify?now=2030-06-01T00:00:00Z", qr, http.StatusOK, "expired", false},
		"unknown key":   {"/verify", untrusted, http.StatusOK, "key_not_found", false},
		"not a cert":    {"/verify", "HC1:hello", http.StatusUnprocessableEntity, "", false},
		"bad timestamp": {"/verify?now=yesterday", qr, http.StatusBadRequest, "", false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			status, body := post(t, f.handler, tt.target, tt.body)
			require.Equal(t, tt.status, status, string(body))

			if tt.status != http.StatusOK {
				var errResp ErrorResponse
				require.NoError(t, json.Unmarshal(body, &errResp))
				require.NotEmpty(t, errResp.Error)
				return
			}

			var resp struct {
				Verified    bool   `json:"verified"`
				Outcome     string `json:"outcome"`
				Certificate struct {
					Record struct {
						Name struct {
							Forename string `json:"gn"`
						} `json:"nam"`
					} `json:"record"`
				} `json:"certificate"`
			}
			require.NoError(t, json.Unmarshal(body, &resp))
			require.Equal(t, tt.outcome, resp.Outcome)
			require.Equal(t, tt.verified, resp.Verified)
			require.Equal(t, "Gabriele", resp.Certificate.Record.Name.Forename)
		})
	}
}

func TestVerifyMetrics(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	qr := f.issuer.QR(t, dgctest.Vaccinated(expiry), dgctest.Options{})

	post(t, f.handler, "/verify", qr)
	post(t, f.handler, "/verify", qr)
	post(t, f.handler, "/verify", "nonsense")

	require.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Verifications.WithLabelValues("valid")))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Verifications.WithLabelValues("not_a_certificate")))

	mon := CreateMonitoringServer(f.reg)
	resp, err := mon.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `covidpass_verifications_total{outcome="valid"} 2`)
}

func TestTrustListAndHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	app := f.handler.App()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var health struct {
		Status string `json:"status"`
		Keys   int    `json:"keys"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.Equal(t, "ok", health.Status)
	require.Equal(t, 1, health.Keys)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/trustlist", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var keys []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&keys))
	require.Len(t, keys, 1)
	require.NotContains(t, keys[0], "PublicKey")
}

func TestReload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	next := dgctest.NewIssuer(t, envelope.AlgorithmES384)
	qr := next.QR(t, dgctest.Vaccinated(expiry), dgctest.Options{})

	var fail, empty bool
	r := &Reloader{
		Holder: f.holder,
		Load: func(context.Context) ([]string, error) {
			if fail {
				return nil, errors.New("gateway down")
			}
			if empty {
				return []string{"# nothing published", ""}, nil
			}
			return []string{"# gateway", next.TrustListLine(), "garbage"}, nil
		},
		Metrics: f.metrics,
		Logger:  zerolog.Nop(),
	}

	before := f.holder.Load()
	_, body := post(t, f.handler, "/verify", qr)
	require.Contains(t, string(body), `"key_not_found"`)

	require.NoError(t, r.Reload(context.Background()))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TrustListKeys))
	require.Equal(t, 1, before.Len(), "earlier snapshots are unchanged")

	_, body = post(t, f.handler, "/verify", qr)
	require.Contains(t, string(body), `"outcome":"valid"`)

	fail = true
	require.Error(t, r.Reload(context.Background()))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TrustListFailures))
	_, body = post(t, f.handler, "/verify", qr)
	require.Contains(t, string(body), `"outcome":"valid"`, "failed reload keeps the current list")

	fail, empty = false, true
	require.Error(t, r.Reload(context.Background()))
	require.Equal(t, 2.0, testutil.ToFloat64(f.metrics.TrustListFailures))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TrustListKeys))
	require.Equal(t, 1, f.holder.Load().Len(), "a list without keys is not swapped in")
	_, body = post(t, f.handler, "/verify", qr)
	require.Contains(t, string(body), `"outcome":"valid"`)
}

func TestReloaderRunStops(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	calls := make(chan struct{}, 10)
	r := &Reloader{
		Holder: f.holder,
		Load: func(context.Context) ([]string, error) {
			select {
			case calls <- struct{}{}:
			default:
			}
			return []string{f.issuer.TrustListLine()}, nil
		},
		Interval: 10 * time.Millisecond,
		Metrics:  f.metrics,
		Logger:   zerolog.Nop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("reloader never ran")
	}
	cancel()
	require.NoError(t, <-done)
}
