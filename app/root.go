// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"

	"github.com/okupy/okupy/internal/config"
	"github.com/okupy/okupy/internal/logger"
)

var (
	configPath string // directory holding main.toml

	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "okupy",
		Short: "okupy is the self-service portal for LDAP accounts",
		Long: `okupy is a web portal where users log in with their LDAP password,
a TLS client certificate or an SSH key and manage their own directory entry.`,
		Args:          cobra.OnlyValidArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./etc/", "Directory holding main.toml")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration and starts the logger.
func loadConfig() error {
	var err error

	if cfg, err = config.ReadConfig(configPath); err != nil {
		return err
	}

	return logger.Init(cfg.Log)
}
