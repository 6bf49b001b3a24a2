package cmd

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/popsu/covidpass/internal/dgc"
	"github.com/popsu/covidpass/internal/trustlist"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var verifyAt string

var verifyCmd = &cobra.Command{
	Use:   "verify <input>...",
	Short: "Verify certificates against the trust list",
	Long: `Decode certificates and verify their signature and expiry against the
trust list. Each input is an image, a text file, "-" for stdin or HC1: text.

Certificates that decode but fail verification are still printed, marked
UNVERIFIED, and make the command exit with an error.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyAt, "at", "", "Check expiry at this RFC 3339 time instead of now")
	rootCmd.AddCommand(verifyCmd)
}

// checked is the outcome of verifying one input.
type checked struct {
	source string
	cert   *dgc.Certificate
	err    error
}

func runVerify(cmd *cobra.Command, args []string) error {
	now, err := checkTime(verifyAt)
	if err != nil {
		return err
	}

	tl, _, err := loadTrustList()
	if err != nil {
		return err
	}

	results := verifyAll(args, tl, now)

	p := printer()
	var failed, unverified int
	for _, r := range results {
		if r.err != nil {
			failed++
			logger.Error().Err(r.err).Msg("Verification failed.")
			continue
		}
		p.PrintCertificate(r.source, r.cert)
		if !r.cert.Verified() {
			unverified++
		}
	}

	switch {
	case failed > 0 && len(results) == 1:
		return results[0].err
	case failed > 0 || unverified > 0:
		return fmt.Errorf("%d of %d certificates could not be read, %d not verified", failed, len(results), unverified)
	}
	return nil
}

// verifyAll checks every input concurrently against one trust list
// snapshot. Results keep the order of sources.
func verifyAll(sources []string, tl *trustlist.TrustList, now time.Time) []checked {
	results := make([]checked, len(sources))
	var group errgroup.Group
	group.SetLimit(runtime.GOMAXPROCS(0))
	for i, source := range sources {
		group.Go(func() error {
			results[i] = verifyOne(source, tl, now)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func verifyOne(source string, tl *trustlist.TrustList, now time.Time) checked {
	text, err := readCertificate(source)
	if err != nil {
		return checked{source: source, err: err}
	}
	cert, err := dgc.VerifyCertificate(text, tl, now, dgc.WithLogger(logger.With().Str("source", source).Logger()))
	if err != nil {
		return checked{source: source, err: describeDecodeError(source, err)}
	}
	return checked{source: source, cert: cert}
}

func checkTime(at string) (time.Time, error) {
	if at == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, errors.New("--at must be an RFC 3339 time, e.g. 2024-01-01T00:00:00Z")
	}
	return t, nil
}
