package cmd

import (
	"github.com/popsu/covidpass/internal/trustlist"
	"github.com/popsu/covidpass/internal/trustsource"
	"github.com/spf13/cobra"
)

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Show the keys in the trust list",
	Long:  "Parse the trust list file and show every key with its identifier, type and subject. Entries that cannot be parsed are listed with their line number.",
	Args:  cobra.NoArgs,
	RunE:  runTrust,
}

var fetchURL string

var fetchTrustCmd = &cobra.Command{
	Use:   "fetch-trust",
	Short: "Download the DSC trust list",
	Long: `Download the document signer certificate list and write one certificate
per line to the trust list file.`,
	Args: cobra.NoArgs,
	RunE: runFetchTrust,
}

func init() {
	fetchTrustCmd.Flags().StringVar(&fetchURL, "url", "", "DSC list URL (default from settings)")
	rootCmd.AddCommand(trustCmd)
	rootCmd.AddCommand(fetchTrustCmd)
}

func runTrust(cmd *cobra.Command, args []string) error {
	tl, report, err := loadTrustList()
	if err != nil {
		return err
	}
	printer().PrintTrustList(tl, report)
	return nil
}

func runFetchTrust(cmd *cobra.Command, args []string) error {
	url := settings.TrustListURL
	if fetchURL != "" {
		url = fetchURL
	}

	logger.Info().Str("url", url).Msg("Fetching trust list.")
	certs, err := trustsource.Fetch(cmd.Context(), url)
	if err != nil {
		return err
	}

	tl, report := trustlist.Load(certs)
	for _, lineErr := range report.Errors {
		logger.Warn().Int("entry", lineErr.Line).Err(lineErr.Err).Msg("Downloaded entry is not a usable certificate.")
	}

	if err := trustsource.WriteLines(settings.TrustListPath, certs); err != nil {
		return err
	}
	logger.Info().Str("file", settings.TrustListPath).Int("certificates", len(certs)).Int("keys", tl.Len()).Msg("Trust list written.")
	return nil
}
