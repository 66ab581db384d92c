// Package migrate handles the store schema command
package migrate

import (
	"github.com/spf13/cobra"

	"fjacquet/ledger-sync/cmd/root"
)

// Cmd represents the migrate command
var Cmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the transaction store schema",
	Long:  `Create the tables and indexes of the postgres store. Other backends need no migration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := root.RequireContainer()
		if err != nil {
			return err
		}
		if err := c.Migrate(cmd.Context()); err != nil {
			return err
		}
		root.Log.Info("Store schema up to date")
		return nil
	},
}
