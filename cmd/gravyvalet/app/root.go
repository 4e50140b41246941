// Package app provides the entry point for the GravyValet command-line
// application: serve, migrate, services, and version.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cos/gravyvalet/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "gravyvalet",
	DisableAutoGenTag: true,
	Short:             "GravyValet addon gateway",
	Long: `GravyValet brokers third-party integrations (cloud storage, reference
managers, link resolvers) behind a single OAuth1/OAuth2/static-token
credential store and a uniform operation-invocation API, so the platforms
embedding it never hold a provider's credentials themselves.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the gravyvalet CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to GravyValet configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newServicesCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}
