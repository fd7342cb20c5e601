package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/camgraph/cmd"
	"github.com/smazurov/camgraph/internal/api"
	"github.com/smazurov/camgraph/internal/config"
	"github.com/smazurov/camgraph/internal/events"
	"github.com/smazurov/camgraph/internal/logging"
	"github.com/smazurov/camgraph/internal/metrics"
	"github.com/smazurov/camgraph/internal/nodes"
	"github.com/smazurov/camgraph/internal/pipeline"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Pipeline settings
	PipelineFile     string `help:"Pipeline topology file" default:"pipeline.toml" toml:"pipeline.file" env:"PIPELINE_FILE"`
	PipelineWatch    bool   `help:"Rebuild the pipeline when the topology file changes" default:"true" toml:"pipeline.watch" env:"PIPELINE_WATCH"`
	PipelineDebounce int    `help:"Topology reload debounce in milliseconds" default:"1000" toml:"pipeline.debounce_ms" env:"PIPELINE_DEBOUNCE_MS"`

	// Metrics settings
	MetricsInterval int `help:"Pipeline gauge sampling interval in milliseconds" default:"1000" toml:"metrics.interval_ms" env:"METRICS_INTERVAL_MS"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings; per-module levels live in [logging.modules]
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		eventBus := events.New()
		logging.SetEntryCallback(func(e logging.Entry) {
			eventBus.Publish(api.LogEvent(e))
		})

		service := pipeline.NewService(nodes.Registry(), eventBus)
		collector := metrics.NewCollector(service.Sampler, time.Duration(opts.MetricsInterval)*time.Millisecond)

		watcher := config.NewWatcher(
			opts.PipelineFile,
			config.LoadTopology,
			logging.GetLogger("config"),
			config.WithDebounce[*config.Topology](time.Duration(opts.PipelineDebounce)*time.Millisecond),
			config.WithErrorHandler[*config.Topology](func(err error) {
				logger.Warn("Keeping current pipeline, topology is invalid", "error", err)
			}),
		)
		watcher.OnReload(func(top *config.Topology) {
			// Service.Load flushes and closes the old pipeline once the new one is active
			if err := service.Load(top); err != nil {
				logger.Error("Pipeline rebuild failed, keeping current pipeline", "error", err)
			}
		})

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Service:           service,
			EventBus:          eventBus,
			PrometheusHandler: metrics.Handler(),
		})

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			top, err := config.LoadTopology(opts.PipelineFile)
			if err != nil {
				logger.Error("Failed to load pipeline topology", "path", opts.PipelineFile, "error", err)
				os.Exit(1)
			}
			if err := service.Load(top); err != nil {
				logger.Error("Failed to build pipeline", "path", opts.PipelineFile, "error", err)
				os.Exit(1)
			}

			collector.Start(ctx)

			if opts.PipelineWatch {
				if err := watcher.Start(); err != nil {
					logger.Warn("Topology hot reload disabled", "error", err)
				}
			}

			// SIGHUP forces a rebuild without touching the file
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-hup:
						logger.Info("SIGHUP received, reloading topology")
						watcher.Reload()
					}
				}
			}()

			if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
				logger.Debug("sd_notify failed", "error", err)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if err := server.Start(opts.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

			if err := server.Stop(); err != nil {
				logger.Error("Error stopping HTTP server", "error", err)
			}
			if err := watcher.Stop(); err != nil {
				logger.Warn("Error stopping topology watcher", "error", err)
			}
			cancel()
			collector.Stop()

			// Flushes in-flight requests before the nodes are destroyed
			if err := service.Close(); err != nil {
				logger.Error("Error closing pipeline", "error", err)
			}
		})
	})

	cli.Root().AddCommand(
		cmd.CreateNegotiateCmd(),
		cmd.CreateRunCmd(),
		cmd.CreateValidateCmd(),
		cmd.CreateVersionCmd(),
	)

	cli.Run()
}
