package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/popsu/covidpass/internal/logging"
	"github.com/popsu/covidpass/internal/server"
	"github.com/popsu/covidpass/internal/trustlist"
	"github.com/popsu/covidpass/internal/trustsource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveFetch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the verification API",
	Long: `Serve POST /verify, GET /trustlist and GET /health, plus prometheus metrics
on the monitoring address. The trust list is reloaded periodically from the
trust list file, or from the DSC list URL with --fetch.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveFetch, "fetch", false, "Reload the trust list from the DSC list URL instead of the file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger = logging.DefaultLogger(appName, cmd.OutOrStdout())

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	load := func(context.Context) ([]string, error) {
		return trustsource.ReadFile(settings.TrustListPath)
	}
	if serveFetch {
		load = func(ctx context.Context) ([]string, error) {
			return trustsource.Fetch(ctx, settings.TrustListURL)
		}
	}

	metrics := server.NewMetrics(prometheus.DefaultRegisterer)
	holder := trustlist.NewHolder(nil)
	reloader := &server.Reloader{
		Holder:   holder,
		Load:     load,
		Interval: settings.ReloadInterval,
		Metrics:  metrics,
		Logger:   logger.With().Str("component", "trustlist").Logger(),
	}
	if err := reloader.Reload(ctx); err != nil {
		return err
	}

	handler := server.NewHandler(holder, metrics, logger.With().Str("component", "api").Logger())
	group, groupCtx := errgroup.WithContext(ctx)

	logger.Info().Str("addr", settings.MonitoringAddr).Msg("Starting monitoring server")
	server.RunFiber(groupCtx, server.CreateMonitoringServer(prometheus.DefaultGatherer), settings.MonitoringAddr, group)
	logger.Info().Str("addr", settings.ListenAddr).Msg("Starting API server")
	server.RunFiber(groupCtx, handler.App(), settings.ListenAddr, group)
	group.Go(func() error {
		return reloader.Run(groupCtx)
	})

	return group.Wait()
}
