package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/wfm/internal/ctxutil"
	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/wire"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	var backfillEvery time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the numbering triggers",
		Long: `Consume record events from Kafka and run the numbering triggers, and
optionally apply a backfill periodically. Stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.Init(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = ctxutil.WithSystemActor(ctx)

			consumer, err := wire.Consumer()
			if err != nil {
				return err
			}
			if consumer == nil && backfillEvery <= 0 {
				return errors.New("nothing to serve: configure kafka.brokers or pass --backfill-every")
			}
			backfill, err := wire.BackfillService()
			if err != nil {
				return err
			}

			log := wire.Logger()
			g, ctx := errgroup.WithContext(ctx)
			if consumer != nil {
				g.Go(func() error {
					defer consumer.Close()
					log.Info().Msg("consuming record events")
					return consumer.Run(ctx)
				})
			}
			if backfillEvery > 0 {
				g.Go(func() error {
					return backfillLoop(ctx, backfill, backfillEvery, log)
				})
			}

			err = g.Wait()
			log.Info().Msg("stopped")
			return err
		},
	}

	cmd.Flags().DurationVar(&backfillEvery, "backfill-every", 0, "Apply a backfill at this interval (0 disables)")

	return cmd
}

// backfillLoop applies a backfill every interval until ctx is done. A failed
// run is logged and retried on the next tick.
func backfillLoop(ctx context.Context, svc primary.BackfillService, every time.Duration, logger zerolog.Logger) error {
	log := logger.With().Str("component", "backfill_loop").Logger()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		res, err := svc.Apply(ctx, primary.BackfillRequest{})
		switch {
		case err != nil && ctx.Err() == nil:
			log.Error().Err(err).Msg("backfill failed")
		case err == nil && (res.Updated > 0 || res.Errors > 0):
			log.Info().Int("updated", res.Updated).Int("skipped", res.Skipped).Int("errors", res.Errors).Msg("backfill applied")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
