package cmd

import (
	"fmt"
	"os"

	"github.com/popsu/covidpass/internal/qr"
	"github.com/spf13/cobra"
)

var (
	qrOutput string
	qrScale  int
)

var qrCmd = &cobra.Command{
	Use:   "qr <input>",
	Short: "Render a certificate as a QR code",
	Long: `Render the certificate text as a QR code with low error correction, either
as block characters on the terminal or as a PNG image with --output.`,
	Args: cobra.ExactArgs(1),
	RunE: runQR,
}

func init() {
	qrCmd.Flags().StringVarP(&qrOutput, "output", "o", "", "Write a PNG image to this file")
	qrCmd.Flags().IntVar(&qrScale, "scale", 8, "Pixels per module in the PNG image")
	rootCmd.AddCommand(qrCmd)
}

func runQR(cmd *cobra.Command, args []string) error {
	text, err := readCertificate(args[0])
	if err != nil {
		return err
	}
	code, err := qr.Render(text)
	if err != nil {
		return err
	}

	if qrOutput == "" {
		fmt.Fprint(cmd.OutOrStdout(), code.String())
		return nil
	}

	f, err := os.Create(qrOutput)
	if err != nil {
		return fmt.Errorf("creating %s: %w", qrOutput, err)
	}
	if err := code.WritePNG(f, qrScale); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", qrOutput, err)
	}
	logger.Info().Str("file", qrOutput).Int("modules", code.Size()).Msg("QR code written.")
	return nil
}
