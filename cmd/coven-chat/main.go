// ABOUTME: Terminal client for one-to-one chat backed by the conversation engine
// ABOUTME: Wires config, REST transport, websocket stream, assistant, and metrics into a readline loop

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-chat/internal/assist"
	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/client"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/realtime"
)

const banner = `
                                         _           _
   ___ _____   _____ _ __          ___| |__   __ _| |_
  / __/ _ \ \ / / _ \ '_ \ _____ / __| '_ \ / _' | __|
 | (_| (_) \ V /  __/ | | |_____| (__| | | | (_| | |_
  \___\___/ \_/ \___|_| |_|      \___|_| |_|\__,_|\__|
`

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to config file (TOML or YAML)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging, os.Stderr)

	selfID, err := identify(cfg.Auth)
	if err != nil {
		return fmt.Errorf("reading session token: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Server:   %s\n", cfg.Server.APIURL)
	green.Print("    ▶ ")
	fmt.Printf("Realtime: %s\n", cfg.Server.WSURL)
	green.Print("    ▶ ")
	fmt.Printf("User:     %s\n", selfID)
	fmt.Println("Type /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rest, err := client.New(client.Config{
		BaseURL:    cfg.Server.APIURL,
		Token:      cfg.Auth.Token,
		CookieName: cfg.Auth.CookieName,
		Timeout:    cfg.Server.Timeout,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("creating REST client: %w", err)
	}

	stream, err := realtime.New(realtime.Config{
		URL:          cfg.Server.WSURL,
		Token:        cfg.Auth.Token,
		CookieName:   cfg.Auth.CookieName,
		ReconnectMin: cfg.Chat.ReconnectMin,
		ReconnectMax: cfg.Chat.ReconnectMax,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating event stream: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := conversation.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	eng, err := conversation.New(conversation.Config{
		SelfID:            selfID,
		TypingQuietPeriod: cfg.Chat.TypingQuietPeriod,
		Notifications:     cfg.Chat.Notifications,
		RetiredCapacity:   cfg.Chat.RetiredIDs,
	}, conversation.Deps{
		Transport: rest,
		Directory: rest,
		Stream:    stream,
		Assistant: assist.New(logger),
		Notifier:  bellNotifier{out: os.Stdout},
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer eng.Close()

	ui := newChatUI(eng, os.Stdout, stream.IsOnline)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(stream.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(eng.Run(gctx)) })
	if cfg.Metrics.Enabled {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics, registry, logger) })
	}
	g.Go(func() error {
		ui.watch(gctx)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return ui.run(gctx, os.Stdin)
	})

	err = g.Wait()
	fmt.Println("\nGoodbye!")
	return err
}

// identify returns the local user id, preferring an explicit override.
func identify(cfg config.AuthConfig) (string, error) {
	if cfg.UserID != "" {
		return cfg.UserID, nil
	}

	var verifier auth.TokenVerifier = auth.NewUnverifiedParser()
	if cfg.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.JWTSecret))
	}
	id, err := verifier.Verify(cfg.Token)
	if err != nil {
		return "", err
	}
	return id.UserID, nil
}

func serveMetrics(ctx context.Context, cfg config.MetricsConfig, reg *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}()

	logger.Info("serving metrics", "addr", cfg.Addr, "path", cfg.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
