package cmd

import (
	"github.com/popsu/covidpass/internal/dgc"
	"github.com/spf13/cobra"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <input>",
	Short: "Decode a certificate without verifying it",
	Long: `Decode a certificate and print its content without checking the signature.
The output is marked NOT VERIFIED.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) error {
	text, err := readCertificate(args[0])
	if err != nil {
		return err
	}
	cert, err := dgc.Decode(text, dgc.WithLogger(logger))
	if err != nil {
		return describeDecodeError(args[0], err)
	}
	printer().PrintCertificate(args[0], cert)
	return nil
}
