// Package cli handles the command-line interface logic
// using the Cobra library.
package cli

import (
	"github.com/spf13/cobra"
)

// GlobalOptions are the flags shared by every command.
type GlobalOptions struct {
	MappingFile string
	ReportFile  string
	MetricsAddr string
}

func NewRootCmd() *cobra.Command {
	g := &GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "catalog-migrator",
		Short: "catalog-migrator - move a legacy product catalog into the structured schema",
		Long: `catalog-migrator pulls products and their price history from the legacy
catalog API, reshapes the flat product fields into the structured per-type
schema and writes them to the content store (MongoDB) and the price history
store (SQL Server). Runs are resumable and safe to repeat.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.MappingFile, "mapping", "m", "", "Path to a mapping YAML file (default: built-in tables)")
	rootCmd.PersistentFlags().StringVar(&g.ReportFile, "report", "", "Write the run summary and log to this .xlsx file")
	rootCmd.PersistentFlags().StringVar(&g.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run (e.g. :9102)")

	rootCmd.AddCommand(
		newMigrateProductsCmd(g),
		newMigrateSingleCmd(g),
		newMigratePriceHistoryCmd(g),
		newTestConnectionCmd(g),
	)

	return rootCmd
}
