package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/gas-sensor/internal/app"
)

func newWatchCommand(o *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow readings published to Redis by a running poller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !o.cfg.Redis.Enabled {
				return errors.New("redis is disabled (set redis.enabled)")
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := o.cliLogger(cmd.ErrOrStderr())
			rdb, err := app.NewRedisClient(ctx, o.cfg.Redis, log)
			if err != nil {
				return err
			}
			defer rdb.Close()

			readings, err := app.NewReadingCache(rdb, o.cfg.Redis).Subscribe(ctx)
			if err != nil {
				return err
			}
			n := 0
			for r := range readings {
				if err := render(cmd.OutOrStdout(), o.output, r); err != nil {
					return err
				}
				if n++; limit > 0 && n >= limit {
					return nil
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "count", "n", 0, "exit after n readings (0 = until interrupted)")
	return cmd
}
