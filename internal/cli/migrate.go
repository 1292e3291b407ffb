package cli

import (
	"github.com/BartekS5/catalog-migrator/internal/config"
	"github.com/spf13/cobra"
)

// MigrateOptions are the per-run flags. Zero values leave the configured
// setting alone.
type MigrateOptions struct {
	Source     string
	Secret     string
	Identifier string
	BatchSize  int
	StartPage  int
	EndPage    int
	Resume     bool
	DryRun     bool
	Geo        string
	Currency   string
}

func addSourceFlags(cmd *cobra.Command, opts *MigrateOptions) {
	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "Legacy API base URL (overrides SOURCE_URL)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Fetch, transform and report without writing anything")
}

func addPagingFlags(cmd *cobra.Command, opts *MigrateOptions) {
	cmd.Flags().IntVarP(&opts.BatchSize, "batch-size", "b", 0, "Records per page (overrides BATCH_SIZE)")
	cmd.Flags().IntVar(&opts.StartPage, "start-page", 1, "First page to fetch")
	cmd.Flags().IntVar(&opts.EndPage, "end-page", 0, "Last page to fetch (0 = until the source runs out)")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "Continue from the saved checkpoint and retry failed pages")
}

// apply folds the flags into cfg; flags win over file and environment.
func (o *MigrateOptions) apply(cfg *config.Config, g *GlobalOptions) {
	if o.Source != "" {
		cfg.SourceURL = o.Source
	}
	if o.Secret != "" {
		cfg.PriceSecret = o.Secret
	}
	if o.BatchSize > 0 {
		cfg.BatchSize = o.BatchSize
	}
	if o.Geo != "" {
		cfg.DefaultGeo = o.Geo
	}
	if o.Currency != "" {
		cfg.DefaultCurrency = o.Currency
	}
	if g.MappingFile != "" {
		cfg.MappingFile = g.MappingFile
	}
}
