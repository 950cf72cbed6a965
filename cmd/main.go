package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"mothstation/internal/config"
	"mothstation/internal/handlers"
	"mothstation/internal/hardware"
	"mothstation/internal/logger"
	"mothstation/internal/metrics"
	"mothstation/internal/repository"
	"mothstation/internal/repository/db"
	"mothstation/internal/server"
	"mothstation/internal/service"
	"mothstation/internal/station"
	"mothstation/internal/system"
	"mothstation/internal/weather"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	logLevel   string
	configPath string
	simulate   bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("mothstation", pflag.ContinueOnError)
	fs.StringVarP(&o.logLevel, "log-level", "l", logger.InfoLevel, "log level: debug, info, warn, error")
	fs.StringVarP(&o.configPath, "config", "c", "", "configuration file (default: first of the search paths)")
	fs.BoolVar(&o.simulate, "simulate", false, "use the simulated camera and an offline relay board")
	err := fs.Parse(args)
	return o, err
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	log := logger.Get(opts.logLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// configuration
	cfgManager := config.Load(opts.configPath, log.Named("config"))
	cfgManager.Watch()
	cfg := cfgManager.Current()

	// hardware
	caps := hardware.Discover(opts.simulate || cfg.Hardware.Simulate, log.Named("hardware"))
	camera := hardware.NewCamera(caps.CameraDriver, filepath.Join(cfg.PicturesSaveFolder, ".staging"), log.Named("camera"))
	display := hardware.NewDisplay(caps.Panel, log.Named("display"))
	defer func() { _ = display.Close() }()

	var buttons <-chan hardware.ButtonEvent
	if caps.ButtonPins != nil {
		if buttons, err = hardware.WatchButtons(ctx, caps.ButtonPins, log.Named("buttons")); err != nil {
			log.Errorw("button_watch_failed", "err", err)
		}
	}

	// persistence
	sqlDB, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "path", cfg.DB.Path, "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewPrometheusCollector(registry)
	if err != nil {
		log.Fatalw("failed to register metrics", "err", err)
	}

	// services
	services := service.NewService(service.Deps{
		Repos:     repository.NewRepository(sqlDB),
		Config:    cfgManager,
		Camera:    camera,
		Relay:     caps.Relay,
		Display:   display,
		Weather:   weather.NewProvider(log.Named("weather")),
		Metrics:   collector,
		Log:       log,
		Addresses: system.LocalAddresses,
	})

	// HTTP surface
	var srv *server.Server
	if cfg.HTTP.Enabled {
		srv = server.New(cfg.HTTP.Port, handlers.NewHandler(services, collector.Handler(), log.Named("http")).InitRoutes())
		go func() {
			log.Infow("http_listening", "addr", srv.Addr())
			if err := srv.Run(); err != nil {
				log.Errorw("http_server_failed", "err", err)
			}
		}()
	}

	controller := station.New(station.Deps{
		Config:   cfgManager,
		Power:    services.Power,
		Capture:  services.Capture,
		Status:   services.Status,
		Weather:  services.Weather,
		Journal:  services.EventLog,
		Panel:    display,
		Buttons:  buttons,
		Camera:   camera,
		Rebooter: system.NewRebooter(cfg.RebootCommand),
		Notify:   system.Notify,
		Log:      log.Named("station"),
	})
	if err := controller.Run(ctx); err != nil {
		log.Errorw("station_shutdown_incomplete", "err", err)
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("server forced to shutdown", "err", err)
		}
	}
	log.Infow("bye")
}
