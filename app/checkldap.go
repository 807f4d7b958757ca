package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okupy/okupy/internal/daemon"
)

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(checkLDAPCmd)
}

var checkLDAPCmd = &cobra.Command{
	Use:   "check-ldap",
	Short: "Bind to the LDAP server with the service account",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return loadConfig()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := daemon.CheckDirectory(&cfg); err != nil {
			return fmt.Errorf("ldap check failed: %w", err)
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ldap server %s:%d is reachable\n", cfg.LDAP.Host, cfg.LDAP.Port)

		return nil
	},
}
