package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// migrator is the slice of database.DB the commands drive
type migrator interface {
	RunMigrations(path string) error
	MigrateDown(path string) error
	MigrateToVersion(path string, version uint) error
	Close() error
}

// connectFunc opens the database once arguments have been checked
type connectFunc func() (migrator, error)

func newRootCmd(connect connectFunc) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply or roll back database migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&path, "path", "./migrations", "migrations directory")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDB(connect, func(db migrator) error {
					return db.RunMigrations(path)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back one migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDB(connect, func(db migrator) error {
					return db.MigrateDown(path)
				})
			},
		},
		&cobra.Command{
			Use:   "goto VERSION",
			Short: "Migrate up or down to VERSION",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.ParseUint(args[0], 10, 0)
				if err != nil {
					return fmt.Errorf("invalid VERSION %q: %w", args[0], err)
				}
				return withDB(connect, func(db migrator) error {
					return db.MigrateToVersion(path, uint(version))
				})
			},
		},
	)
	return cmd
}

func withDB(connect connectFunc, fn func(db migrator) error) error {
	db, err := connect()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
