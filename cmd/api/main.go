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

	"github.com/punchamoorthee/goalledger/internal/activity"
	"github.com/punchamoorthee/goalledger/internal/api"
	"github.com/punchamoorthee/goalledger/internal/config"
	"github.com/punchamoorthee/goalledger/internal/logging"
	"github.com/punchamoorthee/goalledger/internal/service"
	"github.com/punchamoorthee/goalledger/internal/store"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:     logging.ParseLevel(cfg.LogLevel),
		Component: logging.ComponentApp,
		JSON:      cfg.IsProduction(),
		Output:    os.Stdout,
	})
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server error", logging.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.WithComponent(logging.ComponentStorage).Info("Store ready", "driver", cfg.DBDriver)

	recorders := activity.Multi{activity.NewStoreRecorder(st)}
	if cfg.AMQPURL != "" {
		pub, err := activity.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			// activity is best-effort; run without the broker
			logger.WithComponent(logging.ComponentAMQP).Warn("AMQP unavailable, activity stays local", logging.FieldError, err)
		} else {
			defer pub.Close()
			recorders = append(recorders, pub)
		}
	}

	opts := []service.Option{
		service.WithRecorder(recorders),
		service.WithLogger(logger),
		service.WithActivityTimeout(cfg.ActivityTimeout),
	}
	handler := api.NewHandler(
		service.NewTransactionService(st, opts...),
		service.NewGoalService(st, opts...),
		logger,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.DBDriver == config.DriverSQLite {
		return store.NewSQLite(cfg.SQLitePath)
	}
	return store.NewPostgres(ctx, cfg.DBSource)
}
