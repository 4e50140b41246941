package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cos/gravyvalet/pkg/config"
	"github.com/cos/gravyvalet/pkg/storage"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the storage schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			db, err := storage.Open(cmd.Context(), cfg.SQLitePath)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer db.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", cfg.SQLitePath)
			return nil
		},
	}
}
