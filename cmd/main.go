/*
Package main is the entry point for the RealChat gateway.

The default command serves the websocket gateway; the other commands run
one-off maintenance against the configured database.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"realchat/internal/app/db"
	"realchat/internal/configs"
	"realchat/internal/pkg/auth/jwt"
	"realchat/internal/pkg/logx"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "realchat",
		Short: "Real-time chat gateway with multi-session presence",
		Long: `RealChat serves a websocket chat gateway. A user is online while at
least one of their logical sessions (browser tabs, devices) is connected;
JOIN and LEAVE are announced only on the first and last session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		resetOnlineCmd(),
		addUserCmd(),
		adminTokenCmd(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket gateway (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			return store.Migrate(cmd.Context())
		},
	}
}

func resetOnlineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-online",
		Short: "Mark every user offline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := db.NewUserRepository(store).SetAllOffline(cmd.Context()); err != nil {
				return err
			}
			logx.Info("All users marked offline")
			return nil
		},
	}
}

func addUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-user <username>...",
		Short: "Register chat users in the directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}

			users := db.NewUserRepository(store)
			for _, name := range args {
				if _, err := users.Create(cmd.Context(), name); err != nil {
					return fmt.Errorf("add user %s: %w", name, err)
				}
				logx.Info("User added", "username", name)
			}
			return nil
		},
	}
}

func adminTokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "admin-token <operator>",
		Short: "Print a signed admin token for the /debug endpoints",
		Long:  "Signs an admin-role token with JWT_SECRET. Only the token is written to stdout.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configs.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			token, err := jwt.IssueAdminToken(args[0], cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", jwt.AdminTokenExpiration, "token lifetime")
	return cmd
}

// bootstrap loads the configuration, initializes logging and opens the database.
func bootstrap(ctx context.Context) (*configs.AppConfig, *db.Store, error) {
	cfg, err := configs.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logx.InitGlobalLogger(cfg.IsDevelopment())

	store, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}

	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Str("db_dialect", string(store.Dialect())).
		Msg("Configuration loaded successfully")

	return cfg, store, nil
}
