// Package sources handles the bank source registry commands
package sources

import (
	"maps"

	"github.com/spf13/cobra"

	"fjacquet/ledger-sync/cmd/common"
	"fjacquet/ledger-sync/cmd/root"
	"fjacquet/ledger-sync/internal/banksource"
	"fjacquet/ledger-sync/internal/logging"
)

var (
	sourceID string
	columns  map[string]string
)

// Cmd lists the registered bank sources
var Cmd = &cobra.Command{
	Use:   "sources",
	Short: "List the registered bank sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := root.RequireContainer()
		if err != nil {
			return err
		}
		common.PrintSources(cmd.OutOrStdout(), c.GetRegistry().List())
		return nil
	},
}

// MapCmd changes the column mapping of a source that has not been ingested yet
var MapCmd = &cobra.Command{
	Use:   "map",
	Short: "Change the column mapping of a bank source",
	Long: `Map canonical fields onto export columns. The mapping of a source is locked
once a transaction of it has been stored.

Example:
  ledger-sync sources map --source yonder --column description=Merchant --column notes=Memo`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := root.RequireContainer()
		if err != nil {
			return err
		}
		if err := Remap(c.GetRegistry(), sourceID, columns); err != nil {
			return err
		}
		c.GetLogger().Info("Column mapping updated", logging.F(logging.FieldSourceID, sourceID))
		return nil
	},
}

func init() {
	MapCmd.Flags().StringVarP(&sourceID, "source", "s", "", "Bank source id")
	MapCmd.Flags().StringToStringVarP(&columns, "column", "c", nil, "field=Column label (repeatable)")
	_ = MapCmd.MarkFlagRequired("source")
	_ = MapCmd.MarkFlagRequired("column")
	Cmd.AddCommand(MapCmd)
}

// Remap merges changes into the source's mapping and saves the registry.
func Remap(registry *banksource.Registry, id string, changes map[string]string) error {
	src, err := registry.Get(id)
	if err != nil {
		return err
	}
	mapping := maps.Clone(src.ColumnMapping)
	if mapping == nil {
		mapping = make(map[string]string, len(changes))
	}
	maps.Copy(mapping, changes)
	if err := registry.UpdateMapping(id, mapping); err != nil {
		return err
	}
	return registry.Save()
}
