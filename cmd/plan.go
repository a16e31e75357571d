package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"index-pump/internal/index"
	"index-pump/internal/plan"
	"index-pump/internal/source"
)

var planTables []string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show per-table sync decisions without writing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		db, d, schema, err := openSource(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		src := source.New(db, d, schema)

		store, err := index.Open(cfg.Index.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		tables, err := src.DiscoverTables(ctx, discoverOptions(cfg, planTables))
		if err != nil {
			return err
		}

		snapshots := make(map[string]*source.TableSnapshot, len(tables))
		catalog := make(map[string]*index.CatalogRecord, len(tables))
		for _, t := range tables {
			snap, err := src.FetchTableSnapshot(ctx, t)
			if err != nil {
				return fmt.Errorf("snapshot failed for %s: %w", t.Key(), err)
			}
			snapshots[t.Key()] = snap

			rec, err := store.GetCatalogRecord(ctx, t.Schema, t.Table)
			if err != nil {
				return fmt.Errorf("catalog lookup failed for %s: %w", t.Key(), err)
			}
			if rec != nil {
				catalog[t.Key()] = rec
			}
		}

		plans := plan.BuildTablePlans(tables, snapshots, catalog)
		full, skip := 0, 0
		fmt.Printf("%-40s %-6s %s\n", "TABLE", "MODE", "REASON")
		for _, p := range plans {
			fmt.Printf("%-40s %-6s %s\n", p.Key(), p.Mode, p.Reason)
			if p.Mode == plan.ModeFull {
				full++
			} else {
				skip++
			}
		}
		fmt.Printf("\n%d tables: %d full, %d skip\n", len(plans), full, skip)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringSliceVarP(&planTables, "tables", "t", nil, "tables to plan (overrides tables.include)")
}
