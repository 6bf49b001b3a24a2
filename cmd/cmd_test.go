package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/popsu/covidpass/internal/dgctest"
	"github.com/popsu/covidpass/internal/envelope"
	"github.com/popsu/covidpass/internal/qr"
	"github.com/stretchr/testify/require"
)

var expiry = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

type env struct {
	dir       string
	settings  string
	trustList string
	issuer    *dgctest.Issuer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		dir:       dir,
		settings:  filepath.Join(dir, "settings.yaml"),
		trustList: filepath.Join(dir, "trust_list.txt"),
		issuer:    dgctest.NewIssuer(t, envelope.AlgorithmES256),
	}
	require.NoError(t, os.WriteFile(e.settings, []byte("STORE_PATH: "+filepath.Join(dir, "certificates.db")+"\n"), 0o600))
	require.NoError(t, os.WriteFile(e.trustList, []byte("# test issuers\n"+e.issuer.TrustListLine()+"\n"), 0o600))
	return e
}

func (e *env) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// run executes the command line with fresh flag values.
func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	jsonOutput, verbose, verifyAt, qrOutput, qrScale = false, false, "", "", 8

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--no-color", "--settings", e.settings, "--trust-list", e.trustList, "--log-level", "error"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestVerifyCommand(t *testing.T) {
	e := newEnv(t)
	cert := e.write(t, "cert.txt", e.issuer.QR(t, dgctest.Vaccinated(expiry), dgctest.Options{})+"\n")

	out, err := e.run(t, "verify", "--at", "2024-01-01T00:00:00Z", cert)
	require.NoError(t, err)
	require.Contains(t, out, "✓ VERIFIED")
	require.Contains(t, out, "Gabriele Musterfrau-Gößinger")

	out, err = e.run(t, "verify", "--at", "2031-01-01T00:00:00Z", cert)
	require.Error(t, err)
	require.Contains(t, out, "✗ UNVERIFIED")
	require.Contains(t, out, "Gabriele Musterfrau-Gößinger", "expired content is still shown")
}

func TestVerifyCommandMany(t *testing.T) {
	e := newEnv(t)
	stranger := dgctest.NewIssuer(t, envelope.AlgorithmES256)

	var args []string
	for i := 0; i < 4; i++ {
		args = append(args, e.issuer.QR(t, dgctest.Vaccinated(expiry), dgctest.Options{}))
	}
	args = append(args, stranger.QR(t, dgctest.Vaccinated(expiry), dgctest.Options{}))

	out, err := e.run(t, append([]string{"--json", "verify", "--at", "2024-01-01T00:00:00Z"}, args...)...)
	require.ErrorContains(t, err, "1 not verified")

	dec := json.NewDecoder(strings.NewReader(out))
	var outcomes []string
	for dec.More() {
		var v struct {
			Outcome string `json:"outcome"`
		}
		require.NoError(t, dec.Decode(&v))
		outcomes = append(outcomes, v.Outcome)
	}
	require.Equal(t, []string{"valid", "valid", "valid", "valid", "key_not_found"}, outcomes)
}

func TestVerifyCommandErrors(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "verify", filepath.Join(e.dir, "missing.txt"))
	require.ErrorIs(t, err, errInput)

	_, err = e.run(t, "verify", e.write(t, "junk.txt", "HC1:this is not base45"))
	require.ErrorIs(t, err, errNotCertificate)

	_, err = e.run(t, "verify", "--at", "tomorrow", "HC1:")
	require.ErrorContains(t, err, "RFC 3339")
}

func TestDecodeCommandFromImage(t *testing.T) {
	e := newEnv(t)
	text := e.issuer.QR(t, dgctest.Vaccinated(expiry), dgctest.Options{})
	png := filepath.Join(e.dir, "cert.png")

	_, err := e.run(t, "qr", "--output", png, text)
	require.NoError(t, err)
	scanned, err := qr.ScanFile(png)
	require.NoError(t, err)
	require.Equal(t, text, scanned)

	out, err := e.run(t, "decode", png)
	require.NoError(t, err)
	require.Contains(t, out, "NOT VERIFIED")
	require.Contains(t, out, "Product: Comirnaty")
}

func TestQRCommandTerminal(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "qr", "HC1:TEST")
	require.NoError(t, err)
	require.Contains(t, out, "██")
	require.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 21+2*qr.QuietZone)
}

func TestTrustCommand(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(e.trustList, []byte(e.issuer.TrustListLine()+"\nbroken\n"), 0o600))

	out, err := e.run(t, "--json", "trust")
	require.NoError(t, err)
	var got struct {
		Keys   []map[string]any `json:"keys"`
		Failed int              `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Keys, 1)
	require.Equal(t, 1, got.Failed)
}

func TestStoreCommands(t *testing.T) {
	e := newEnv(t)
	cert := e.write(t, "cert.txt", e.issuer.QR(t, dgctest.Vaccinated(expiry), dgctest.Options{}))

	out, err := e.run(t, "--json", "store", "add", cert)
	require.NoError(t, err)
	var added []struct {
		ID       string `json:"id"`
		FullName string `json:"fullName"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	require.Len(t, added, 1)
	require.Equal(t, "Gabriele Musterfrau-Gößinger", added[0].FullName)

	out, err = e.run(t, "store", "list")
	require.NoError(t, err)
	require.Contains(t, out, added[0].ID)

	out, err = e.run(t, "store", "show", added[0].ID)
	require.NoError(t, err)
	require.Contains(t, out, "Product: Comirnaty")

	out, err = e.run(t, "store", "delete", added[0].ID)
	require.NoError(t, err)
	require.Contains(t, out, "Deleted "+added[0].ID)

	_, err = e.run(t, "store", "show", added[0].ID)
	require.Error(t, err)
	_, err = e.run(t, "store", "delete", "not-a-uuid")
	require.ErrorContains(t, err, "invalid id")
}

func TestReadCertificateStdin(t *testing.T) {
	stdin = strings.NewReader("  HC1:ABC\n")
	t.Cleanup(func() { stdin = os.Stdin })

	text, err := readCertificate("-")
	require.NoError(t, err)
	require.Equal(t, "HC1:ABC", text)
}
