package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/tabilist/tabilist/internal/audit"
	"github.com/tabilist/tabilist/internal/auth"
	"github.com/tabilist/tabilist/internal/config"
	"github.com/tabilist/tabilist/internal/domain"
	"github.com/tabilist/tabilist/internal/group"
	"github.com/tabilist/tabilist/internal/password"
	"github.com/tabilist/tabilist/internal/token"
	"github.com/tabilist/tabilist/internal/user"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo account and a shared group",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

const (
	demoEmail    = "demo@tabilist.dev"
	demoPassword = "wanderlust"
)

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.ValidateAuth(); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	hasher, err := password.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}
	issuer := token.NewService(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)

	userStore := user.NewStore(pool)
	tokenStore := token.NewStore(pool)
	groupStore := group.NewStore(pool)

	authService := auth.NewService(userStore, tokenStore, issuer, hasher, audit.NopSink{})
	groupService := group.NewService(groupStore, userStore)

	sess, err := authService.Signup(ctx, demoEmail, demoPassword)
	if err != nil {
		if errors.Is(err, domain.ErrEmailExists) {
			slog.Info("demo account already exists, skipping seed")
			return nil
		}
		return fmt.Errorf("creating demo account: %w", err)
	}
	slog.Info("created demo account", "id", sess.User.ID, "email", sess.User.Email)

	personal, err := groupService.GetPersonal(ctx, sess.User.ID)
	if err != nil {
		return fmt.Errorf("creating personal group: %w", err)
	}

	shared, err := groupService.CreateShared(ctx, sess.User.ID, "Summer Trip", "Places to visit together this summer.")
	if err != nil {
		return fmt.Errorf("creating shared group: %w", err)
	}

	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Account:        %s / %s\n", demoEmail, demoPassword)
	fmt.Printf("Personal group: %s\n", personal.ID)
	fmt.Printf("Shared group:   %s (%s)\n", shared.Name, shared.ID)
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -X POST -H 'Content-Type: application/json' -d '{\"email\":%q,\"password\":%q}' http://localhost:8080/api/v1/auth/login\n", demoEmail, demoPassword)

	return nil
}
