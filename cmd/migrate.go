package cmd

import (
	"fmt"

	"github.com/prestigewebb/twilio-manager/internal/config"
	"github.com/prestigewebb/twilio-manager/internal/store"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply audit store migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is empty")
		}

		sqlDB, err := store.Open(cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		defer sqlDB.Close()

		fmt.Println(">> Migration complete")
		return nil
	},
}
