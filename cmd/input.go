package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/popsu/covidpass/internal/codec"
	"github.com/popsu/covidpass/internal/dgc"
	"github.com/popsu/covidpass/internal/qr"
	"github.com/popsu/covidpass/internal/trustlist"
	"github.com/popsu/covidpass/internal/trustsource"
)

var (
	// errInput marks input that could not be read at all.
	errInput = errors.New("cannot read input")
	// errNotCertificate marks input that was read but is not a certificate.
	errNotCertificate = errors.New("not a health certificate")
)

var imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// stdin is replaced in tests.
var stdin io.Reader = os.Stdin

// readCertificate returns the QR text named by arg: "-" for stdin, an image
// or text file, or HC1: text given directly.
func readCertificate(arg string) (string, error) {
	switch {
	case arg == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("%w: stdin: %v", errInput, err)
		}
		return strings.TrimSpace(string(b)), nil
	case strings.HasPrefix(arg, codec.Prefix):
		return arg, nil
	}

	if imageExtensions[strings.ToLower(filepath.Ext(arg))] {
		text, err := qr.ScanFile(arg)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", errInput, arg, err)
		}
		return text, nil
	}

	b, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInput, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// describeDecodeError keeps the three failure kinds apart for the user.
func describeDecodeError(source string, err error) error {
	if dgc.IsDecodeError(err) {
		return fmt.Errorf("%s: %w: %w", source, errNotCertificate, err)
	}
	return fmt.Errorf("%s: %w", source, err)
}

// loadTrustList reads the configured trust list file. Unparseable lines are
// logged and skipped.
func loadTrustList() (*trustlist.TrustList, trustlist.LoadReport, error) {
	lines, err := trustsource.ReadFile(settings.TrustListPath)
	if err != nil {
		return nil, trustlist.LoadReport{}, fmt.Errorf("%w (run '%s fetch-trust' to download one)", err, appName)
	}
	tl, report := trustlist.Load(lines)
	for _, lineErr := range report.Errors {
		logger.Warn().Str("file", settings.TrustListPath).Int("line", lineErr.Line).Err(lineErr.Err).Msg("Skipping trust list entry.")
	}
	logger.Debug().Int("keys", tl.Len()).Int("failed", report.Failed).Msg("Trust list loaded.")
	return tl, report, nil
}
