package cli

import (
	"fmt"

	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/spf13/cobra"
)

func newMigrateProductsCmd(g *GlobalOptions) *cobra.Command {
	opts := &MigrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate-products",
		Short: "Migrate every product from the legacy API",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return runMigration(c, g, opts, models.JobProducts)
		},
	}

	addSourceFlags(cmd, opts)
	addPagingFlags(cmd, opts)
	return cmd
}

func newMigrateSingleCmd(g *GlobalOptions) *cobra.Command {
	opts := &MigrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate-single <id-or-slug>",
		Short: "Migrate one product, looked up by numeric id or slug",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			opts.Identifier = args[0]
			return runMigration(c, g, opts, models.JobSingle)
		},
	}

	addSourceFlags(cmd, opts)
	return cmd
}

func newMigratePriceHistoryCmd(g *GlobalOptions) *cobra.Command {
	opts := &MigrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate-price-history [secret]",
		Short: "Import the legacy price history into the price store",
		Long: `Import the legacy price history. The shared secret may be passed as the
argument or set as PRICE_HISTORY_SECRET. Products must have been migrated
first; prices of unknown products are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Secret = args[0]
			}
			return runMigration(c, g, opts, models.JobPriceHistory)
		},
	}

	addSourceFlags(cmd, opts)
	addPagingFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.Geo, "geo", "", "Geo for records without one (overrides DEFAULT_GEO)")
	cmd.Flags().StringVar(&opts.Currency, "currency", "", "Currency for records without one (overrides DEFAULT_CURRENCY)")
	return cmd
}

func newTestConnectionCmd(g *GlobalOptions) *cobra.Command {
	opts := &MigrateOptions{}

	cmd := &cobra.Command{
		Use:       "test-connection [products|price-history]",
		Short:     "Check that the legacy API answers and report how many records it has",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(models.JobProducts), string(models.JobPriceHistory)},
		RunE: func(c *cobra.Command, args []string) error {
			job := models.JobProducts
			if len(args) == 1 {
				job = models.Job(args[0])
			}
			n, err := testConnection(c, g, opts, job)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "%s: %d records available\n", job, n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "Legacy API base URL (overrides SOURCE_URL)")
	cmd.Flags().StringVar(&opts.Secret, "secret", "", "Price history secret (overrides PRICE_HISTORY_SECRET)")
	return cmd
}
