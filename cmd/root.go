// Package cmd implements the covidpass command line.
package cmd

import (
	"github.com/fatih/color"
	"github.com/popsu/covidpass/internal/config"
	"github.com/popsu/covidpass/internal/logging"
	"github.com/popsu/covidpass/internal/output"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const appName = "covidpass"

var (
	jsonOutput    bool
	noColor       bool
	verbose       bool
	settingsFile  string
	logLevel      string
	trustListFile string

	settings config.Settings
	logger   = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Decode and verify EU Digital COVID Certificates",
	Long: `Decode and verify EU Digital COVID Certificates (HC1: QR codes).

Certificates are read from PNG/JPEG images, text files, stdin ("-") or given
directly as HC1: text, and checked against a trust list of document signer
certificates with one base64 DER certificate or public key per line.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}

		var err error
		settings, err = config.Load(settingsFile, cmd.Flags().Changed("settings"))
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			settings.LogLevel = logLevel
		}
		if cmd.Flags().Changed("trust-list") {
			settings.TrustListPath = trustListFile
		}
		if verbose && !cmd.Flags().Changed("log-level") {
			settings.LogLevel = zerolog.DebugLevel.String()
		}

		logger = logging.ConsoleLogger(cmd.ErrOrStderr(), color.NoColor)
		return logging.SetLevel(settings.LogLevel)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "settings.yaml", "Settings file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&trustListFile, "trust-list", "", "Trust list file (default from settings)")
}

func printer() *output.Printer {
	return output.NewPrinter(rootCmd.OutOrStdout(), output.Options{JSON: jsonOutput, Verbose: verbose})
}

// Execute runs the command line.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		output.PrintError(rootCmd.ErrOrStderr(), err.Error())
		return err
	}
	return nil
}
