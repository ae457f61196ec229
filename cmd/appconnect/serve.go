package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/appconnect/internal/config"
	"github.com/loykin/appconnect/internal/history"
	"github.com/loykin/appconnect/internal/history/factory"
	"github.com/loykin/appconnect/internal/logger"
	"github.com/loykin/appconnect/internal/metrics"
	"github.com/loykin/appconnect/internal/server"
	apptls "github.com/loykin/appconnect/internal/tls"
	"github.com/loykin/appconnect/internal/transport"
	"github.com/loykin/appconnect/internal/transport/local"
	"github.com/loykin/appconnect/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 10 * time.Second

// daemon is a running serve instance.
type daemon struct {
	api      *http.Server
	metrics  *http.Server
	recorder *history.Recorder
	log      *slog.Logger
}

func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}

	d, err := startDaemon(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	d.log.Info("shutting down")
	err = d.stop()
	if rmErr := removePidFile(flags.PidFile); rmErr != nil {
		d.log.Warn("failed to remove pid file", "file", flags.PidFile, "error", rmErr)
	}
	return err
}

// startDaemon wires the transport stack described by cfg and starts
// listening. The stack, innermost first: local transport, metrics,
// history recorder.
func startDaemon(cfg *config.Config) (*daemon, error) {
	log := logger.New(cfg.LoggerSettings())
	slog.SetDefault(log)
	if logger.ParseLevel(cfg.Log.Level) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	e, err := cfg.LaunchEnv()
	if err != nil {
		return nil, err
	}
	remote := clientConfig(cfg, "", cfg.Client.Timeout, log)
	var t transport.Transport = local.New(local.Config{
		InboxDir:     cfg.Launch.InboxDir,
		Env:          e,
		Log:          cfg.OutputLog(),
		ReadyTimeout: cfg.Launch.ReadyTimeout,
		Remote:       client.NewURLSender(remote),
		Logger:       log,
	})

	d := &daemon{log: log}
	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		t = metrics.Instrument(t)
	}
	if cfg.History.Enabled {
		sinks, err := factory.NewSinks(cfg.History.Sinks)
		if err != nil {
			return nil, fmt.Errorf("history sinks: %w", err)
		}
		d.recorder = history.NewRecorder(t, log, sinks...)
		t = d.recorder
	}

	tlsCfg, err := apptls.Setup(cfg.TLSSettings())
	if err != nil {
		d.closeRecorder()
		return nil, err
	}
	authn, err := cfg.Authenticator()
	if err != nil {
		d.closeRecorder()
		return nil, err
	}
	router := server.NewRouter(t, cfg.Server.BasePath,
		server.WithLogger(log),
		server.WithAuth(authn),
		server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.Burst))
	d.api, err = server.NewServer(cfg.Server.Listen, router.Handler(), tlsCfg, log)
	if err != nil {
		d.closeRecorder()
		return nil, fmt.Errorf("failed to start API server: %w", err)
	}
	protocol := "http"
	if tlsCfg != nil {
		protocol = "https"
	}
	log.Info("appconnect server started", "protocol", protocol, "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath)

	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		d.metrics, err = server.NewServer(cfg.Metrics.Listen, mux, nil, log)
		if err != nil {
			_ = d.stop()
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		log.Info("metrics server started", "listen", cfg.Metrics.Listen)
	}
	return d, nil
}

func (d *daemon) stop() error {
	var err error
	if d.api != nil {
		err = server.Shutdown(d.api, shutdownTimeout)
	}
	if d.metrics != nil {
		_ = server.Shutdown(d.metrics, shutdownTimeout)
	}
	d.closeRecorder()
	return err
}

func (d *daemon) closeRecorder() {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.Close(); err != nil {
		d.log.Warn("closing history sinks", "error", err)
	}
}
