package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/clinicflow/identity-service/internal/config"
	"github.com/clinicflow/identity-service/internal/database"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply the embedded schema migrations to the MySQL database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.StoreMySQL {
				return oops.Code("CONFIG_INVALID").Errorf("migrate needs STORE_DRIVER=mysql, got %q", cfg.StoreDriver)
			}

			m, err := database.NewMigrator(dbParams(cfg))
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			if down {
				cmd.Println("Rolling back migrations...")
				if err := m.Down(); err != nil {
					return err
				}
			} else {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return err
				}
			}
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			cmd.Printf("Schema version %d (dirty=%v)\n", version, dirty)
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back every migration")
	return cmd
}
