package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/popsu/covidpass/internal/trustlist"
	"github.com/rs/zerolog"
)

// LoadFunc returns the current trust list lines.
type LoadFunc func(ctx context.Context) ([]string, error)

// Reloader periodically rebuilds the trust list and swaps it into a Holder.
// Readers keep the snapshot they loaded.
type Reloader struct {
	Holder   *trustlist.Holder
	Load     LoadFunc
	Interval time.Duration
	Metrics  *Metrics
	Logger   zerolog.Logger
}

// Reload loads the trust list once. On failure, or when the new list holds no
// key, the current list stays in place.
func (r *Reloader) Reload(ctx context.Context) error {
	lines, err := r.Load(ctx)
	if err != nil {
		r.Metrics.TrustListFailures.Inc()
		return fmt.Errorf("loading trust list: %w", err)
	}

	tl, report := trustlist.Load(lines)
	if tl.Len() == 0 {
		r.Metrics.TrustListFailures.Inc()
		if report.Failed > 0 {
			return fmt.Errorf("loading trust list: none of %d entries could be parsed", report.Failed)
		}
		return errors.New("loading trust list: no keys")
	}
	for _, lineErr := range report.Errors {
		r.Logger.Warn().Int("line", lineErr.Line).Err(lineErr.Err).Msg("Skipping trust list entry.")
	}

	r.Holder.Swap(tl)
	r.Metrics.TrustListKeys.Set(float64(tl.Len()))
	r.Logger.Info().Int("keys", tl.Len()).Int("failed", report.Failed).Msg("Trust list loaded.")
	return nil
}

// Run reloads every Interval until ctx is done. Failed reloads are logged
// and retried at the next tick.
func (r *Reloader) Run(ctx context.Context) error {
	if r.Interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Reload(ctx); err != nil {
				r.Logger.Error().Err(err).Msg("Failed to reload trust list.")
			}
		}
	}
}
