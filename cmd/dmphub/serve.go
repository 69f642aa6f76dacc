package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmphub/dmphub/internal/account"
	"github.com/dmphub/dmphub/internal/api"
	"github.com/dmphub/dmphub/internal/apiclient"
	"github.com/dmphub/dmphub/internal/auth"
	"github.com/dmphub/dmphub/internal/config"
	"github.com/dmphub/dmphub/internal/dmp"
	"github.com/dmphub/dmphub/internal/metrics"
	"github.com/dmphub/dmphub/internal/plan"
	"github.com/dmphub/dmphub/internal/ratelimit"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the DMPHub API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	m := metrics.New()
	m.RegisterDBPoolCollector(func() metrics.DBPoolStat {
		stat := pool.Stat()
		return metrics.DBPoolStat{
			TotalConns:    stat.TotalConns(),
			IdleConns:     stat.IdleConns(),
			AcquiredConns: stat.AcquiredConns(),
		}
	})

	accountStore := account.NewStore(pool, cfg.Auth.SessionDuration)
	clientStore := apiclient.NewStore(pool)
	planStore := plan.NewStore(pool)

	resolver := account.NewResolver(accountStore)
	resolver.OnProvision = m.ProvisionedUsers.Inc
	parser := dmp.NewParser(planStore, accountStore)
	ingestor := plan.NewIngestor(parser, planStore, resolver)

	limiter := ratelimit.New(cfg.RateLimit.Default, cfg.RateLimit.Window)
	authService := auth.NewService(clientStore, accountStore)
	authService.OnAuthResult = func(authType string, success bool) {
		if success {
			m.IncAuthSuccess(authType)
		} else {
			m.IncAuthFailure(authType)
		}
	}

	// Expired sessions are swept in the background.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := accountStore.CleanExpiredSessions(ctx); err != nil {
					slog.Error("session cleanup failed", "error", err)
				} else if n > 0 {
					slog.Info("cleaned expired sessions", "count", n)
				}
			}
		}
	}()

	router := api.NewRouter(api.RouterDeps{
		AccountStore:   accountStore,
		ClientStore:    clientStore,
		PlanStore:      planStore,
		Ingestor:       ingestor,
		Auth:           authService,
		Limiter:        limiter,
		Metrics:        m,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}
