// Package cli gassensor 命令行
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taoyao-code/gas-sensor/internal/app"
	cfgpkg "github.com/taoyao-code/gas-sensor/internal/config"
	"github.com/taoyao-code/gas-sensor/internal/logging"
	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
	"github.com/taoyao-code/gas-sensor/internal/session"
)

// Version 构建时通过 -ldflags "-X github.com/taoyao-code/gas-sensor/internal/cli.Version=x.y.z" 注入
var Version = "dev"

type rootOptions struct {
	cfgFile  string
	logLevel string
	device   string
	simulate bool
	output   string

	cfg *cfgpkg.Config
}

// NewRootCommand 构造命令树
func NewRootCommand() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:           "gassensor",
		Short:         "MPS gas sensor serial gateway",
		Long:          "gassensor talks to an MPS flammable gas sensor over a serial link: one-shot queries, measurement control, and a polling service with HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "commands" {
				return nil
			}
			cfg, err := cfgpkg.Load(o.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if o.logLevel != "" {
				cfg.Logging.Level = o.logLevel
			}
			if o.device != "" {
				cfg.Serial.Device = o.device
			}
			o.cfg = cfg
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&o.cfgFile, "config", "c", "", "config file (default: $GAS_CONFIG or configs/example.yaml)")
	pf.StringVar(&o.logLevel, "log-level", "", "override logging.level")
	pf.StringVarP(&o.device, "device", "d", "", "override serial.device")
	pf.BoolVar(&o.simulate, "simulate", false, "use the built-in simulated instrument instead of a serial port")
	pf.StringVarP(&o.output, "output", "o", "text", "output format: text|json|yaml")

	root.AddCommand(
		newRunCommand(o),
		newQueryCommand(o),
		newMeasureCommand(o),
		newCommandsCommand(o),
		newWatchCommand(o),
		newVersionCommand(),
	)
	return root
}

// Execute 运行命令行
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// cliLogger 一次性命令的日志只写 stderr，不落盘
func (o *rootOptions) cliLogger(w io.Writer) *zap.Logger {
	cfg := o.cfg.Logging
	cfg.Format = "console"
	if o.logLevel == "" {
		cfg.Level = "warn"
	}
	return logging.New(cfg, w)
}

// openSession 打开链路并启动 worker；返回的 closer 停止 worker 并关闭链路，但不给仪表关机
func (o *rootOptions) openSession(log *zap.Logger) (*session.Dispatcher, func(), error) {
	tr, err := app.OpenTransport(o.cfg.Serial, o.simulate, log)
	if err != nil {
		return nil, nil, err
	}
	sess, err := app.NewSession(o.cfg, tr, nil, log)
	if err != nil {
		_ = tr.Close()
		return nil, nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Run(ctx)
	}()
	closer := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(o.cfg.Serial.ReadTimeout + time.Second):
		}
		_ = tr.Close()
	}
	return sess, closer, nil
}

func (o *rootOptions) unit() (mps.Unit, error) {
	return mps.ParseUnit(o.cfg.Poller.Unit)
}
