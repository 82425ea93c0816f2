package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pipelinedash/authcore/account"
)

func newMigrateCommand() *cobra.Command {
	var (
		dsn    string
		status bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the user table migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			_ = godotenv.Load()
			if dsn == "" {
				dsn = os.Getenv("DATABASE_URL")
			}
			if dsn == "" {
				return errors.New("database url is required (--database-url or DATABASE_URL)")
			}

			db, err := account.Open(ctx, dsn)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()

			if status {
				return account.MigrationStatus(ctx, db)
			}
			if err := account.Migrate(ctx, db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "database-url", "", "Postgres connection string")
	cmd.Flags().BoolVar(&status, "status", false, "Print migration status instead of applying")
	return cmd
}
