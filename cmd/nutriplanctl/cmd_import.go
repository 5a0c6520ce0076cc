package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nutriplan/backend/internal/infrastructure/childnutrition"
)

type importOptions struct {
	csvDir        string
	dbPath        string
	limit         int
	skipNutrients bool
	skipWeights   bool
	batchSize     int
}

// newImportCNCmd loads a Child Nutrition CSV release into SQLite
func newImportCNCmd() *cobra.Command {
	opts := &importOptions{}
	cmd := &cobra.Command{
		Use:   "import-cn",
		Short: "Import a Child Nutrition CSV release into the local database",
		Long: `Reads the *_CTGNME, *_NUTDES, *_FDES and *_NUTVAL CSV files of a
Child Nutrition database release, plus *_WGHT when present, and writes them
into the SQLite file the server searches.

Example:
  nutriplanctl import-cn --csv-dir ./CN.2025.05 --db data/childnutrition.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportCN(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.csvDir, "csv-dir", "", "Directory holding the release CSV files (required)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "data/childnutrition.db", "SQLite database to write")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Import at most N foods (0 = all)")
	cmd.Flags().BoolVar(&opts.skipNutrients, "skip-nutrients", false, "Skip the nutrient values file")
	cmd.Flags().BoolVar(&opts.skipWeights, "skip-weights", false, "Skip the household measures file")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 1000, "Rows per transaction")
	cmd.MarkFlagRequired("csv-dir")

	return cmd
}

func runImportCN(cmd *cobra.Command, opts *importOptions) error {
	if opts.limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := childnutrition.Open(opts.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	report, err := childnutrition.NewImporter(store, logger).Import(ctx, childnutrition.ImportOptions{
		CSVDir:        opts.csvDir,
		Limit:         opts.limit,
		SkipNutrients: opts.skipNutrients,
		SkipWeights:   opts.skipWeights,
		BatchSize:     opts.batchSize,
	})
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Imported into %s\n", store.Path())
	fmt.Fprintf(out, "  categories:      %d\n", report.Categories)
	fmt.Fprintf(out, "  nutrients:       %d\n", report.Nutrients)
	fmt.Fprintf(out, "  foods:           %d\n", report.Foods)
	fmt.Fprintf(out, "  nutrient values: %d\n", report.NutrientValues)
	fmt.Fprintf(out, "  weights:         %d\n", report.Weights)
	fmt.Fprintf(out, "  skipped rows:    %d\n", report.SkippedRows)
	return nil
}
