package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kktechsolution/mcp-postgress/internal/config"
	"github.com/kktechsolution/mcp-postgress/internal/domain"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/logging"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/metrics"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/postgres"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/server"
	"github.com/kktechsolution/mcp-postgress/internal/usecases"
)

const (
	serverName    = "mcp-postgress"
	serverVersion = "0.1.0"

	shutdownGrace = 10 * time.Second
)

// transportServer is the common surface of the two bindings.
type transportServer interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Data-store connection URL")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport binding: sse or http")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flag.Parse()

	// The connection URL may also be supplied as the single positional
	// argument.
	if flag.NArg() > 0 {
		cfg.DatabaseURL = flag.Arg(0)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to data store", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	defer pool.Close()

	m := metrics.New()
	gateway := postgres.NewGateway(pool, logger, m)

	info := domain.ServerInfo{Name: serverName, Version: serverVersion}
	registry := server.NewRegistry(func() server.Handler {
		return usecases.NewDispatcher(info, gateway, logger)
	}, logger, m)

	var srv transportServer
	switch cfg.Transport {
	case config.TransportStreamable:
		srv = server.NewStreamableServer(registry, logger, m)
	default:
		srv = server.NewSSEServer(registry, logger, m)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
}
