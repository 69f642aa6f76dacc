package main

import (
	"context"
	"fmt"

	"github.com/dmphub/dmphub/internal/account"
	"github.com/dmphub/dmphub/internal/apiclient"
	"github.com/dmphub/dmphub/internal/auth"
	"github.com/dmphub/dmphub/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo organisation, an admin user, and an API client",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	accountStore := account.NewStore(pool, cfg.Auth.SessionDuration)
	clientStore := apiclient.NewStore(pool)

	org, err := accountStore.FindOrCreateOrg(ctx, "Example University")
	if err != nil {
		return fmt.Errorf("seed org: %w", err)
	}

	admin, err := accountStore.Create(ctx, account.CreateUserInput{
		Email:     "admin@example.edu",
		Password:  "changeme123",
		Firstname: "Ada",
		Surname:   "Admin",
		OrgID:     org.ID,
		Privilege: account.PrivilegeOrgAdmin,
	})
	if err != nil {
		if account.IsUniqueViolation(err) {
			fmt.Println("admin user already exists, skipping")
		} else {
			return fmt.Errorf("seed admin: %w", err)
		}
	} else {
		fmt.Printf("created admin user %s (password: changeme123)\n", admin.Email)
	}

	apiKey, plaintext, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}

	client, err := clientStore.Create(ctx, apiclient.CreateClientInput{
		Name:         "demo-harvester",
		APIKeyHash:   apiKey.Hash,
		APIKeyPrefix: apiKey.Prefix,
		OrgID:        org.ID,
		RateLimit:    cfg.RateLimit.Default,
	})
	if err != nil {
		return fmt.Errorf("seed api client: %w", err)
	}

	fmt.Printf("created api client %s (id %s)\n", client.Name, client.ID)
	fmt.Printf("api key (save it now, it is not stored): %s\n", plaintext)
	return nil
}
