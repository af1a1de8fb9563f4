package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/api"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/cache"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/command"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/config"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/fetch"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/install"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/logging"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/options"
	httpProvider "github.com/GriffinCanCode/AgentOS/scripthost/internal/providers/http"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/providers/http/client"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/tabs"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/tabs/cdp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const (
	cdpPollInterval = 500 * time.Millisecond
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.BoolVar(&cfg.CDP.Enabled, "cdp", cfg.CDP.Enabled, "Drive a browser over the DevTools protocol")
	flag.StringVar(&cfg.CDP.URL, "cdp-url", cfg.CDP.URL, "DevTools HTTP endpoint")
	flag.StringVar(&cfg.Options.Path, "options", cfg.Options.Path, "User options file (YAML)")
	flag.Parse()

	logger := logging.Must(cfg.Logging, logging.ServerName)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Initializing scripthost",
		zap.String("port", cfg.Server.Port),
		zap.String("browser", cfg.Variant.Name),
		zap.Bool("cdp", cfg.CDP.Enabled),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)
	tracer := tracing.New(logger)
	defer tracer.Close()

	opts, err := options.Load(cfg.Options.Path)
	if err != nil {
		return err
	}

	store := cache.New()
	go store.Run(ctx, cfg.Cache.Sweep)

	hc := client.NewClient(client.Options{
		Timeout:   cfg.HTTP.Timeout,
		Retries:   cfg.HTTP.Retries,
		RateLimit: cfg.HTTP.RateLimit,
		UserAgent: cfg.HTTP.UserAgent,
		MaxBody:   cfg.HTTP.MaxBodyMiB << 20,
	})
	fetcher := fetch.New(hc, fetch.WithFileScheme(cfg.Variant.FileSchemeRequestable))

	commands := command.NewRegistry()
	surface, browser := newTabs(cfg, logger)
	if err := tabs.RegisterCommands(commands, surface); err != nil {
		return err
	}

	redirector := install.New(install.Deps{
		Config:   install.ConfigFrom(cfg),
		Cache:    store,
		Fetcher:  fetcher,
		Tabs:     surface,
		Commands: commands,
		Options:  opts,
		Metrics:  metrics,
	}, install.WithLogger(logger), install.WithContext(ctx))
	if err := redirector.RegisterCommands(commands); err != nil {
		return err
	}
	detach := redirector.Attach(surface)
	defer detach()

	if browser != nil {
		go browser.Watch(ctx, cdpPollInterval)
		interceptor := cdp.NewInterceptor(browser, redirector, logger)
		go func() {
			if err := interceptor.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("CDP interception stopped", zap.Error(err))
			}
		}()
	}

	trusted := httpProvider.NewHandler(hc,
		httpProvider.WithLogger(logger),
		httpProvider.WithMetrics(metrics),
		httpProvider.WithCommands(commands),
	)

	srv := api.New(api.ConfigFrom(cfg), api.Deps{
		Commands: commands,
		Confirms: redirector,
		Tabs:     surface,
		Trusted:  trusted,
		Gatherer: registry,
		Metrics:  metrics,
		Tracer:   tracer,
		Logger:   logger,
	})
	logger.Info("Server initialized successfully", zap.Strings("commands", commands.List()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown incomplete", zap.Error(err))
	}
	redirector.Wait()
	return nil
}

// newTabs picks the tab surface. browser is non-nil when CDP is enabled.
func newTabs(cfg *config.Config, logger *zap.Logger) (tabs.Surface, *cdp.Browser) {
	if cfg.CDP.Enabled {
		logger.Info("Driving browser over CDP", zap.String("url", cfg.CDP.URL))
		b := cdp.NewBrowser(cfg.CDP.URL, logger)
		return b, b
	}
	return tabs.NewManager(logger), nil
}
