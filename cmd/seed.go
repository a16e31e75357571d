package cmd

import (
	"fmt"
	"time"

	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"

	"index-pump/internal/logger"
	"index-pump/internal/seed"
	"index-pump/internal/source"
)

var (
	seedCount  int
	seedClean  bool
	seedTables []string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the source database with generated rows",
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

		tables, err := src.DiscoverTables(ctx, discoverOptions(cfg, seedTables))
		if err != nil {
			return err
		}

		if seedClean {
			logger.Infof("cleaning %d tables before seeding", len(tables))
			if err := seed.Clean(ctx, db, d, tables); err != nil {
				return err
			}
		}

		logger.Infof("seeding %d tables with %d rows each", len(tables), seedCount)
		start := time.Now()

		uiprogress.Start()
		bar := uiprogress.AddBar(len(tables) * seedCount).AppendCompleted().PrependElapsed()
		bar.PrependFunc(func(b *uiprogress.Bar) string { return "Seeding: " })

		results := seed.Seed(ctx, db, d, tables, seedCount, func() {
			bar.Incr()
		})
		uiprogress.Stop()

		fmt.Println("\nSeed report (dependency order):")
		total := 0
		for i, r := range results {
			icon := "+"
			if r.Status != "OK" {
				icon = "!"
			}
			fmt.Printf("[%s] [%02d/%02d] %-30s %d/%d rows - %s\n",
				icon, i+1, len(results), r.TableKey, r.Inserted, r.Target, r.Status)
			if r.ErrorMsg != "" {
				fmt.Printf("    error: %s\n", r.ErrorMsg)
			}
			total += r.Inserted
		}
		fmt.Printf("inserted %d rows in %s\n", total, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().IntVar(&seedCount, "count", 100, "rows to generate per table")
	seedCmd.Flags().BoolVar(&seedClean, "clean", false, "truncate tables before seeding")
	seedCmd.Flags().StringSliceVarP(&seedTables, "tables", "t", nil, "tables to seed (overrides tables.include)")
}
