package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/popsu/covidpass/internal/dgc"
	"github.com/popsu/covidpass/internal/output"
	"github.com/popsu/covidpass/internal/store"
	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Keep verified certificates in a local database",
	Long: `Manage the local certificate database. Certificates are kept per holder:
adding a certificate for the same forename, full name and date of birth
replaces the one stored before.`,
}

var storeAddCmd = &cobra.Command{
	Use:   "add <input>...",
	Short: "Verify certificates and store them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStoreAdd,
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored certificates",
	Args:  cobra.NoArgs,
	RunE:  runStoreList,
}

var storeShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Verify and show a stored certificate",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreShow,
}

var storeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored certificate",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreDelete,
}

func init() {
	storeCmd.AddCommand(storeAddCmd, storeListCmd, storeShowCmd, storeDeleteCmd)
	rootCmd.AddCommand(storeCmd)
}

func openStore() (*store.Store, error) {
	s, err := store.Open(settings.StorePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", settings.StorePath, err)
	}
	return s, nil
}

func runStoreAdd(cmd *cobra.Command, args []string) error {
	tl, _, err := loadTrustList()
	if err != nil {
		return err
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var entries []store.Entry
	for _, r := range verifyAll(args, tl, time.Now()) {
		if r.err != nil {
			return r.err
		}
		entry, err := s.Add(cmd.Context(), r.cert)
		if err != nil {
			return err
		}
		if !r.cert.Verified() {
			logger.Warn().Str("source", r.source).Stringer("outcome", r.cert.Result.Outcome).Msg("Stored certificate is not verified.")
		}
		entries = append(entries, *entry)
	}
	printer().PrintEntries(entries)
	return nil
}

func runStoreList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.List(cmd.Context())
	if err != nil {
		return err
	}
	printer().PrintEntries(entries)
	return nil
}

func runStoreShow(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[0], err)
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	entry, err := s.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	tl, _, err := loadTrustList()
	if err != nil {
		return err
	}
	cert, err := dgc.VerifyCertificate(entry.Raw, tl, time.Now(), dgc.WithLogger(logger))
	if err != nil {
		return describeDecodeError(id.String(), err)
	}
	printer().PrintCertificate(id.String(), cert)
	return nil
}

func runStoreDelete(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[0], err)
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Delete(cmd.Context(), id); err != nil {
		return err
	}
	if !jsonOutput {
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
		return nil
	}
	output.PrintJSON(cmd.OutOrStdout(), map[string]string{"deleted": id.String()})
	return nil
}
