package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"fieldline.dev/internal/migrate"
)

var (
	migrateDSN string
	migrateDir string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|status]",
	Short: "Apply or roll back the database schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateDSN == "" {
			return errors.New("missing DSN: set --dsn or FIELDLINE_PG_DSN")
		}
		db, err := sql.Open("pgx", migrateDSN)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		mgr := migrate.NewManager(db, migrateDir)
		ctx := cmd.Context()
		switch args[0] {
		case "up":
			return mgr.Up(ctx)
		case "down":
			return mgr.Down(ctx)
		case "status":
			history, err := mgr.Status(ctx)
			if err != nil {
				return err
			}
			for _, name := range history {
				fmt.Println(name)
			}
			return nil
		}
		return fmt.Errorf("unknown subcommand %q", args[0])
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDSN, "dsn", os.Getenv("FIELDLINE_PG_DSN"), "PostgreSQL DSN")
	migrateCmd.Flags().StringVar(&migrateDir, "dir", "migrations", "path to SQL migrations")
	rootCmd.AddCommand(migrateCmd)
}
