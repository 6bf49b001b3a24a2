package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/popsu/covidpass/internal/dgc"
	"github.com/popsu/covidpass/internal/dgctest"
	"github.com/popsu/covidpass/internal/envelope"
	"github.com/popsu/covidpass/internal/trustlist"
	"github.com/stretchr/testify/require"
)

var (
	expiry = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	now    = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "certificates.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.now = func() time.Time { return now }
	return s
}

func certificate(t *testing.T, issuer *dgctest.Issuer, tl *trustlist.TrustList, forename string) *dgc.Certificate {
	t.Helper()
	c := dgctest.Vaccinated(expiry)
	c.Record.Name.Forename = forename
	cert, err := dgc.VerifyCertificate(issuer.QR(t, c, dgctest.Options{}), tl, now)
	require.NoError(t, err)
	return cert
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	issuer := dgctest.NewIssuer(t, envelope.AlgorithmES256)
	tl := trustlist.New()
	require.NoError(t, tl.AddKey(issuer.TrustListLine()))

	ctx := context.Background()
	s := openStore(t)

	cert := certificate(t, issuer, tl, "Gabriele")
	added, err := s.Add(ctx, cert)
	require.NoError(t, err)
	require.Equal(t, "Gabriele Musterfrau-Gößinger", added.FullName)
	require.Equal(t, "valid", added.Outcome)

	got, err := s.Get(ctx, added.ID)
	require.NoError(t, err)
	require.Equal(t, added.ID, got.ID)
	require.Equal(t, cert.Raw, got.Raw)
	require.Equal(t, "1998-02-26", got.DateOfBirth)
	require.Equal(t, "AT", got.Issuer)
	require.True(t, expiry.Equal(got.Expiration))
	require.True(t, now.Equal(got.AddedAt))

	// the same holder replaces the stored certificate under the same id
	untrusted, err := dgc.VerifyCertificate(cert.Raw, trustlist.New(), now)
	require.NoError(t, err)
	replaced, err := s.Add(ctx, untrusted)
	require.NoError(t, err)
	require.Equal(t, added.ID, replaced.ID)

	other, err := s.Add(ctx, certificate(t, issuer, tl, "Anna"))
	require.NoError(t, err)
	require.NotEqual(t, added.ID, other.ID)

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "Anna", entries[0].Forename)
	require.Equal(t, "key_not_found", entries[1].Outcome)

	require.NoError(t, s.Delete(ctx, other.ID))
	_, err = s.Get(ctx, other.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, other.ID), ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, uuid.New()), ErrNotFound)
}

func TestStoreUnverified(t *testing.T) {
	t.Parallel()

	issuer := dgctest.NewIssuer(t, envelope.AlgorithmES256)
	cert, err := dgc.Decode(issuer.QR(t, dgctest.Vaccinated(expiry), dgctest.Options{}))
	require.NoError(t, err)

	s := openStore(t)
	entry, err := s.Add(context.Background(), cert)
	require.NoError(t, err)
	require.Equal(t, "unverified", entry.Outcome)
}

func TestStorePersists(t *testing.T) {
	t.Parallel()

	issuer := dgctest.NewIssuer(t, envelope.AlgorithmES256)
	cert, err := dgc.Decode(issuer.QR(t, dgctest.Vaccinated(expiry), dgctest.Options{}))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "certificates.db")
	s, err := Open(path)
	require.NoError(t, err)
	entry, err := s.Add(context.Background(), cert)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Equal(t, cert.Raw, got.Raw)
}
