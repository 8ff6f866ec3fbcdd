package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taoyao-code/gas-sensor/internal/app/bootstrap"
	"github.com/taoyao-code/gas-sensor/internal/logging"
)

func newRunCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start measurement and poll the sensor, serving the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.InitLogger(o.cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			zap.ReplaceGlobals(logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return bootstrap.Run(ctx, o.cfg, logger, bootstrap.Options{Simulate: o.simulate})
		},
	}
}
