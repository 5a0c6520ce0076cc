package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nutriplan/backend/config"
	"github.com/nutriplan/backend/internal/app"
	"github.com/nutriplan/backend/internal/domain"
)

type searchOptions struct {
	database string
	dataType string
	category string
	page     int
	pageSize int
	asJSON   bool
}

// newSearchCmd runs one food search through the configured aggregator
func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search foods across the configured databases",
		Long: `Runs a food search exactly as the server would and prints one page.

Examples:
  nutriplanctl search "chicken nuggets"
  nutriplanctl search apple --database childNutrition --json
  nutriplanctl search cereal --data-type Branded --category "Breakfast Cereals"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.database, "database", "all", "Database scope: all, usda or childNutrition")
	cmd.Flags().StringVar(&opts.dataType, "data-type", "", "Comma separated FoodData Central data types")
	cmd.Flags().StringVar(&opts.category, "category", "", "Category code or description")
	cmd.Flags().IntVar(&opts.page, "page", 1, "Page number (1-based)")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "Page size (0 = configured default)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the page as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts *searchOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	application, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	filters := domain.FoodFilters{DataType: opts.dataType, Category: opts.category}
	page, err := application.Service.SearchFoods(ctx, query, opts.database, filters, opts.page, opts.pageSize)
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}
	return printPage(cmd.OutOrStdout(), page)
}

func printPage(out io.Writer, page domain.AggregatedPage) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSOURCE\tID\tDESCRIPTION\tKCAL")
	offset := (page.Page - 1) * page.PageSize
	for i, item := range page.Items {
		kcal := ""
		if food, ok := item.(domain.FoodItem); ok {
			if v, ok := food.Nutrients[domain.NutrientCalories]; ok {
				kcal = fmt.Sprintf("%.0f", v)
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", offset+i+1, item.ItemSource(), item.ItemID(), item.Label(), kcal)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	total := fmt.Sprintf("%d", page.TotalEstimate)
	if page.TotalEstimateIsLowerBound {
		total = "at least " + total
	}
	fmt.Fprintf(out, "\npage %d of %d, %s results\n", page.Page, page.TotalPages, total)
	if page.Partial {
		sources := make([]string, len(page.DegradedSources))
		for i, s := range page.DegradedSources {
			sources[i] = string(s)
		}
		fmt.Fprintf(out, "partial: %s did not answer\n", strings.Join(sources, ", "))
	}
	return nil
}
