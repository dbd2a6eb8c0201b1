package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinoosan/bankledger/internal/config"
	"github.com/tinoosan/bankledger/internal/httpapi"
	"github.com/tinoosan/bankledger/internal/metrics"
	"github.com/tinoosan/bankledger/internal/server"
	"github.com/tinoosan/bankledger/internal/service/bank"
	"github.com/tinoosan/bankledger/internal/storage"
	"github.com/tinoosan/bankledger/internal/storage/file"
	"github.com/tinoosan/bankledger/internal/storage/memory"
	pgstore "github.com/tinoosan/bankledger/internal/storage/postgres"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "bankd:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(args)
	if err != nil {
		return err
	}
	// Logger (slog to stdout). Level via LOG_LEVEL; format via LOG_FORMAT (json|text, default json)
	logger := buildLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	sink, closeFn, err := openSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	ledger, err := bank.Open(ctx, sink,
		bank.WithLogger(logger),
		bank.WithPersistObserver(metrics.ObservePersist),
	)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:         cfg.ListenAddr,
		IdleTimeout:  cfg.IdleTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxSessions:  cfg.MaxSessions,
	}, ledger, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	if cfg.AdminAddr != "" {
		var ready httpapi.ReadyChecker
		if rc, ok := sink.(storage.ReadyChecker); ok {
			ready = rc
		}
		admin := &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           httpapi.New(ledger, ready, logger).Handler(),
			ReadTimeout:       5 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		g.Go(func() error {
			logger.Info("admin http listening", "addr", admin.Addr)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := admin.Shutdown(ctxShutdown); err != nil {
				logger.Error("admin shutdown error", "err", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// openSink selects the persistence backend.
func openSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Sink, func(), error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("storage backend: postgres")
		return pg, pg.Close, nil
	case config.StorageMemory:
		logger.Warn("storage backend: memory; state is lost on exit")
		return memory.New(), func() {}, nil
	default:
		fs, err := file.Open(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("storage backend: file", "dir", fs.Dir())
		return fs, func() {}, nil
	}
}

// parseLogLevel maps config values to slog.Leveler
func parseLogLevel(s string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if strings.ToLower(strings.TrimSpace(format)) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	// default to JSON
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
