package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/tabilist/tabilist/internal/api"
	"github.com/tabilist/tabilist/internal/audit"
	"github.com/tabilist/tabilist/internal/auth"
	"github.com/tabilist/tabilist/internal/config"
	"github.com/tabilist/tabilist/internal/group"
	"github.com/tabilist/tabilist/internal/metrics"
	"github.com/tabilist/tabilist/internal/password"
	"github.com/tabilist/tabilist/internal/ratelimit"
	"github.com/tabilist/tabilist/internal/token"
	"github.com/tabilist/tabilist/internal/user"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Tabilist API server",
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
	if err := cfg.ValidateAuth(); err != nil {
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

	hasher, err := password.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}

	issuer := token.NewService(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)

	userStore := user.NewStore(pool)
	tokenStore := token.NewStore(pool)
	groupStore := group.NewStore(pool)

	sink := audit.NewSlogSink(logger)
	authService := auth.NewService(userStore, tokenStore, issuer, hasher, sink)
	groupService := group.NewService(groupStore, userStore)

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		st := pool.Stat()
		return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
	})

	sweeper := token.NewSweeper(tokenStore, time.Hour, m.RecordSweep)
	go sweeper.Start(ctx)

	limiter := ratelimit.New(ratelimit.NewMemoryStore(), cfg.RateLimit.Max, cfg.RateLimit.Window)

	router := api.NewRouter(api.RouterDeps{
		Auth:           authService,
		Groups:         groupService,
		Tokens:         issuer,
		Limiter:        limiter,
		Metrics:        m,
		DBPool:         pool,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		SecureCookies:  cfg.Server.SecureCookies,
		RefreshTTL:     cfg.Auth.RefreshTTL,
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

	sweeper.Stop()

	return srv.Shutdown(shutdownCtx)
}
