package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/config"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/fetch"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/gmapi"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/logging"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/providers/http/client"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/script"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadOrDefault()

	server := flag.String("server", "ws://localhost:"+cfg.Server.Port+"/bridge", "Bridge websocket URL")
	pageURL := flag.String("url", "about:blank", "URL of the page the script runs on")
	tab := flag.Int64("tab", -1, "Tab id the page belongs to")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: scriptrun [flags] script.user.js")
		os.Exit(2)
	}

	lc := cfg.Logging
	lc.Development = *dev
	logger := logging.Must(lc, logging.RunnerName)
	defer func() { _ = logger.Sync() }()

	url := *server
	if *tab >= 0 {
		url += fmt.Sprintf("?tab=%d", *tab)
	}
	if err := run(cfg, logger, url, *pageURL, flag.Arg(0)); err != nil {
		log.Fatalf("scriptrun: %v", err)
	}
}

func run(cfg *config.Config, logger *zap.Logger, bridgeURL, pageURL, path string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !script.IsUserScript(string(code)) {
		return errors.New("not a user script: " + path)
	}
	s := script.New(1, string(code))

	hc := client.NewClient(client.Options{
		Timeout:   cfg.HTTP.Timeout,
		Retries:   cfg.HTTP.Retries,
		UserAgent: cfg.HTTP.UserAgent,
		MaxBody:   cfg.HTTP.MaxBodyMiB << 20,
	})
	resources, err := gmapi.Preload(ctx, fetch.New(hc), s.Meta)
	if err != nil {
		logger.Warn("Some resources are unavailable", zap.Error(err))
	}

	transport, err := bridge.DialWS(ctx, bridgeURL)
	if err != nil {
		return fmt.Errorf("connect %s: %w", bridgeURL, err)
	}

	page := sandbox.New(sandbox.Config{
		Timeout:       cfg.Sandbox.Timeout,
		StackSize:     cfg.Sandbox.StackSize,
		EnableConsole: true,
		BaseURL:       pageURL,
		Host: gmapi.HostInfo{
			UUID:       uuid.NewString(),
			InjectInto: "page",
			Platform: gmapi.Platform{
				Arch:           runtime.GOARCH,
				OS:             runtime.GOOS,
				BrowserName:    cfg.Variant.Name,
				BrowserVersion: fmt.Sprint(cfg.Variant.Version),
			},
		},
	}, transport, sandbox.WithLogger(logger))
	defer page.Close()

	go func() {
		if err := page.Serve(ctx); err != nil {
			logger.Warn("Bridge closed", zap.Error(err))
		}
	}()

	result, err := page.Execute(ctx, sandbox.Job{Script: &s, Code: string(code), Resources: resources})
	if result != nil {
		for _, e := range result.Console {
			fmt.Printf("[%s] %s\n", e.Level, e.Message)
		}
	}
	if err != nil {
		return err
	}
	if result.Value != nil {
		out, err := sonic.Marshal(result.Value)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	logger.Info("Script finished", zap.String("script", s.DisplayName), zap.Duration("took", result.Duration))
	return nil
}
