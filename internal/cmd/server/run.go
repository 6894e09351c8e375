package serverrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	cfgpkg "github.com/rzbill/relay/internal/config"
	"github.com/rzbill/relay/internal/runtime"
	grpcserver "github.com/rzbill/relay/internal/server/grpc"
	httpserver "github.com/rzbill/relay/internal/server/http"
	pebblestore "github.com/rzbill/relay/internal/storage/pebble"
	logpkg "github.com/rzbill/relay/pkg/log"
)

type Options struct {
	DataDir       string
	GRPCAddr      string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// ConfigPath, when set, is watched for changes to hot-reloadable settings.
	ConfigPath string
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
}

// Run starts the gRPC and HTTP servers and blocks until ctx is cancelled or
// a server fails.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	storeDir := filepath.Join(opts.DataDir, "store")

	procLogger := opts.Logger
	if procLogger == nil {
		procLogger = buildLogger(opts.Config.Log)
	}
	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	rt, err := runtime.Open(sctx, runtime.Options{
		DataDir:       storeDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        procLogger.WithComponent("runtime"),
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting relay server",
		logpkg.Str("grpc", opts.GRPCAddr),
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("room", opts.Config.Room),
		logpkg.Str("store", opts.Config.Store.Backend),
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("level", opts.Config.Log.Level),
		logpkg.Str("format", opts.Config.Log.Format),
		logpkg.Duration("poll", opts.Config.PollInterval()),
	)

	hsrv := httpserver.New(rt, procLogger)
	gsrv := grpcserver.New(rt, grpcserver.Options{Logger: procLogger})

	sched, err := scheduleCompaction(rt, opts.Config.CompactSchedule, procLogger.WithComponent("compaction"))
	if err != nil {
		return err
	}
	if sched != nil {
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}

	runCtx, cancel := context.WithCancel(sctx)
	defer cancel()
	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	serve := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil && runCtx.Err() == nil {
				procLogger.Error(name+" server error", logpkg.Err(err))
				errCh <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}
	serve("grpc", func(ctx context.Context) error { return gsrv.ListenAndServe(ctx, opts.GRPCAddr) })
	serve("http", func(ctx context.Context) error { return hsrv.ListenAndServe(ctx, opts.HTTPAddr) })

	if opts.ConfigPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := cfgpkg.Watch(runCtx, opts.ConfigPath, procLogger.WithComponent("config"), func(c cfgpkg.Config) {
				applyReload(procLogger, hsrv, c)
			})
			if err != nil {
				procLogger.Warn("config watch stopped", logpkg.Str("path", opts.ConfigPath), logpkg.Err(err))
			}
		}()
	}

	notify(procLogger, daemon.SdNotifyReady)
	<-runCtx.Done()
	notify(procLogger, daemon.SdNotifyStopping)
	procLogger.Info("Shutting down relay server")

	// Stop servers before closing the runtime/DB to avoid races.
	gsrv.Close()
	hsrv.Close()
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// buildLogger builds the process-wide logger, falling back to text at the
// parsed (or info) level when the configuration is rejected.
func buildLogger(lc cfgpkg.LogConfig) logpkg.Logger {
	cfg := &logpkg.Config{Level: lc.Level, Format: lc.Format}
	l, err := logpkg.ApplyConfig(cfg)
	if err == nil {
		return l
	}
	lvl := logpkg.InfoLevel
	if parsed, e := logpkg.ParseLevel(lc.Level); e == nil {
		lvl = parsed
	}
	return logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
}

// scheduleCompaction returns a cron running store compaction on expr, or nil
// when expr is empty.
func scheduleCompaction(rt *runtime.Runtime, expr string, logger logpkg.Logger) (*cron.Cron, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		start := time.Now()
		if err := rt.Compact(ctx); err != nil {
			logger.Warn("compaction failed", logpkg.Err(err))
			return
		}
		logger.Info("compaction finished", logpkg.Duration("dur", time.Since(start)))
	})
	if err != nil {
		return nil, fmt.Errorf("compact schedule %q: %w", expr, err)
	}
	logger.Info("compaction scheduled", logpkg.Str("schedule", expr))
	return c, nil
}

// applyReload applies the settings that may change without a restart.
func applyReload(logger logpkg.Logger, hsrv *httpserver.Server, c cfgpkg.Config) {
	if lvl, err := logpkg.ParseLevel(c.Log.Level); err == nil && lvl != logger.GetLevel() {
		logger.SetLevel(lvl)
		logger.Info("log level changed", logpkg.Str("level", lvl.String()))
	}
	hsrv.SetProducerLimit(c.Producer.RatePerSec, c.Producer.Burst)
}

// notify reports state to systemd when running under it.
func notify(logger logpkg.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logger.Warn("sd_notify failed", logpkg.Err(err))
		return
	}
	if sent {
		logger.Debug("sd_notify sent", logpkg.Str("state", state))
	}
}
