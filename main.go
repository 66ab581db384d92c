package main

import (
	"fmt"
	"os"

	"fjacquet/ledger-sync/cmd/batch"
	"fjacquet/ledger-sync/cmd/categorize"
	"fjacquet/ledger-sync/cmd/ingest"
	"fjacquet/ledger-sync/cmd/migrate"
	"fjacquet/ledger-sync/cmd/retry"
	"fjacquet/ledger-sync/cmd/root"
	"fjacquet/ledger-sync/cmd/sources"
)

func init() {
	root.Init()

	root.Cmd.AddCommand(ingest.Cmd)
	root.Cmd.AddCommand(batch.Cmd)
	root.Cmd.AddCommand(categorize.Cmd)
	root.Cmd.AddCommand(retry.Cmd)
	root.Cmd.AddCommand(sources.Cmd)
	root.Cmd.AddCommand(migrate.Cmd)
}

func main() {
	if err := root.Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
