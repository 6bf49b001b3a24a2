package trustsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const dscList = `MEUCIQDxsignaturebytes==
{"certificates":[
 {"certificateType":"DSC","country":"AT","kid":"2Rk3X8HntrI=","rawData": "MIIBvTCCAWOgAwIBAgIKAXk8i88OleLsuTAKBggqhkjOPQQDAjA2"},
 {"certificateType":"DSC","country":"DE","kid":"DEsVUSvpFAE=","rawData": "MIIGXjCCBBagAwIBAgIQXg7NBunD5eaLpO3Fg9REnzA9BgkqhkiG"},
 {"certificateType":"DSC","country":"FR","kid":"AAAAAAAAAAA=","rawData": ""}
]}`

func TestParseDSCList(t *testing.T) {
	t.Parallel()

	want := []string{
		"MIIBvTCCAWOgAwIBAgIKAXk8i88OleLsuTAKBggqhkjOPQQDAjA2",
		"MIIGXjCCBBagAwIBAgIQXg7NBunD5eaLpO3Fg9REnzA9BgkqhkiG",
	}
	require.Equal(t, want, ParseDSCList([]byte(dscList)))

	// truncated documents still yield the complete entries
	truncated := dscList[:len(dscList)-40]
	require.Equal(t, want, ParseDSCList([]byte(truncated)))

	require.Empty(t, ParseDSCList([]byte("no certificates here")))
}

func TestFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trustList/DSC/":
			w.Write([]byte(dscList))
		case "/empty":
			w.Write([]byte("{}"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	certs, err := Fetch(context.Background(), srv.URL+"/trustList/DSC/")
	require.NoError(t, err)
	require.Len(t, certs, 2)

	_, err = Fetch(context.Background(), srv.URL+"/missing")
	require.ErrorContains(t, err, "HTTP 404")

	_, err = Fetch(context.Background(), srv.URL+"/empty")
	require.ErrorContains(t, err, "no certificates")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Fetch(ctx, srv.URL+"/trustList/DSC/")
	require.ErrorIs(t, err, context.Canceled)
}

func TestWriteAndReadLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trust_list.txt")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o600))

	lines := []string{"first", "", "# comment", "last"}
	require.NoError(t, WriteLines(path, lines))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, lines, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary file is cleaned up")

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}
