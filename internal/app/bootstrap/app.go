// Package bootstrap 组装并运行采集服务
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/gas-sensor/internal/api"
	"github.com/taoyao-code/gas-sensor/internal/app"
	cfgpkg "github.com/taoyao-code/gas-sensor/internal/config"
	"github.com/taoyao-code/gas-sensor/internal/health"
	"github.com/taoyao-code/gas-sensor/internal/httpserver"
	"github.com/taoyao-code/gas-sensor/internal/metrics"
	"github.com/taoyao-code/gas-sensor/internal/poller"
	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
	"github.com/taoyao-code/gas-sensor/internal/session"
	redisstorage "github.com/taoyao-code/gas-sensor/internal/storage/redis"
)

// Options 运行选项
type Options struct {
	// Simulate 使用内置模拟仪表代替串口
	Simulate bool
	// Transport 非 nil 时直接使用（测试注入），忽略 Simulate 与串口配置
	Transport session.Transport
	// ShutdownTimeout 优雅关闭的最长时间，默认 10s
	ShutdownTimeout time.Duration
}

// Run 统一启动流程：存储 → 串口会话 → HTTP → 启动序列 → 周期采集。
// 阻塞直到 ctx 取消或会话关闭，随后停止测量、关机并释放资源。
func Run(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger, opts Options) error {
	log.Info("starting gas sensor service", zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env))
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	unit, err := mps.ParseUnit(cfg.Poller.Unit)
	if err != nil {
		return err
	}

	// ========== 阶段1: 基础组件 ==========
	reg, appm := app.NewMetrics(cfg.Metrics)
	ready := health.New()

	// ========== 阶段2: 存储（启用但不可用时直接返回）==========
	db, err := app.ConnectDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	rdb, err := app.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// ========== 阶段3: 串口会话 ==========
	tr := opts.Transport
	if tr == nil {
		if tr, err = app.OpenTransport(cfg.Serial, opts.Simulate, log); err != nil {
			return err
		}
	}
	sess, err := app.NewSession(cfg, tr, appm, log)
	if err != nil {
		_ = tr.Close()
		return err
	}
	// worker 独立于 ctx：收到退出信号后仍需发送停止测量与关机命令
	sessCtx, stopSession := context.WithCancel(context.Background())
	defer stopSession()
	go func() {
		if err := sess.Run(sessCtx); err != nil {
			log.Error("session worker stopped", zap.Error(err))
		}
	}()
	ready.SetSessionReady(true)

	// ========== 阶段4: 采集器与 Sink ==========
	p, err := newPoller(cfg, unit, sess, appm, rdb, db, log)
	if err != nil {
		_ = sess.Shutdown(context.Background())
		return err
	}

	// ========== 阶段5: HTTP（非阻塞）==========
	var httpSrv *httpserver.Server
	if cfg.HTTP.Enabled {
		var metricsHandler http.Handler
		if appm != nil {
			metricsHandler = metrics.Handler(reg)
		}
		httpSrv = httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, ready.Ready, log.Named("http"))
		agg := app.NewHealthAggregator(sess, p, cfg.Poller.Interval, rdb, db)
		registerRoutes(httpSrv.Engine(), cfg, sess, p, db, agg, log)
		go func() {
			if err := httpSrv.Start(); err != nil {
				log.Error("http server error", zap.Error(err))
			}
		}()
	}

	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if httpSrv != nil {
			_ = httpSrv.Shutdown(sctx)
			log.Info("http server stopped")
		}
		if serr := sess.Shutdown(sctx); serr != nil && !errors.Is(serr, session.ErrClosed) {
			log.Warn("session shutdown incomplete", zap.Error(serr))
		}
		if cerr := p.Close(); cerr != nil {
			log.Warn("close sinks failed", zap.Error(cerr))
		}
		log.Info("shutdown complete")
	}()

	// ========== 阶段6: 启动序列 ==========
	id, err := p.Start(ctx)
	if err != nil {
		log.Error("startup sequence failed", zap.Error(err))
		return err
	}
	ready.SetPollerReady(true)
	log.Info("all services ready",
		zap.String("serial", id.Info.SerialNumber),
		zap.Bool("version_match", id.VersionMatch))

	// ========== 阶段7: 周期采集直到退出 ==========
	return p.Run(ctx)
}

func newPoller(cfg *cfgpkg.Config, unit mps.Unit, sess *session.Dispatcher, appm *metrics.AppMetrics,
	rdb *redisstorage.Client, db *app.Database, log *zap.Logger) (*poller.Poller, error) {
	var sinks []poller.Sink
	if cfg.Poller.CSVPath != "" {
		csv, err := poller.OpenCSV(cfg.Poller.CSVPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, csv)
	}
	if rdb != nil {
		sinks = append(sinks, app.NewReadingCache(rdb, cfg.Redis))
	}
	opts := []poller.Option{
		poller.WithInterval(cfg.Poller.Interval),
		poller.WithUnit(unit),
		poller.WithExpectedVersion(cfg.ExpectedVersion),
		poller.WithBreaker(poller.NewBreaker(cfg.Poller.FailureThreshold, cfg.Poller.BreakerTimeout)),
		poller.WithLogger(log.Named("poller")),
		poller.WithMetrics(appm),
	}
	if db != nil {
		sinks = append(sinks, db.Readings)
		opts = append(opts, poller.WithRegistry(db.Sensors))
	}
	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	log.Info("reading sinks configured", zap.Strings("sinks", names))
	return poller.New(sess, append(opts, poller.WithSinks(sinks...))...), nil
}

func registerRoutes(r *gin.Engine, cfg *cfgpkg.Config, sess *session.Dispatcher, p *poller.Poller,
	db *app.Database, agg *health.Aggregator, log *zap.Logger) {
	var (
		history api.HistoryStore
		sensors api.SensorStore
	)
	if db != nil {
		history, sensors = db.Readings, db.Sensors
	}
	h := api.NewHandler(sess, p, history, sensors, log.Named("api"))
	api.RegisterRoutes(r, h, cfg.HTTP.Auth, log)
	health.RegisterHTTPRoutes(r, agg)
}
