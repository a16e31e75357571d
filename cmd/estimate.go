package cmd

import (
	"fmt"
	"time"

	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"

	"index-pump/internal/estimate"
	"index-pump/internal/progress"
	"index-pump/internal/scheduler"
	"index-pump/internal/source"
)

var (
	estimateTables    []string
	estimateDashboard string
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate embedding tokens and cost across tables",
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

		price := cfg.Pricing.PricePerMillion
		if price == 0 {
			table := estimate.LoadPricing(ctx, cfg.Pricing.URL, cfg.Pricing.CachePath)
			price = table.PricePerMillion(cfg.Embedding.Model)
		}

		est := estimate.NewEstimator(src, estimate.Config{
			MaxWorkers:          cfg.Estimate.MaxWorkers,
			ItemsPerBatch:       cfg.Estimate.ItemsPerBatch,
			LargeTableThreshold: cfg.Estimate.LargeTableThreshold,
			ChunkSize:           cfg.Estimate.ChunkSize,
			SampleLimit:         cfg.Estimate.SampleLimit,
			BatchSize:           cfg.Sync.BatchSize,
			Model:               cfg.Embedding.Model,
			PricePerMillion:     price,
			TextColumnsMode:     cfg.Sync.TextColumns,
			ExcludedColumns:     cfg.Sync.ExcludedColumns,
		})

		dashboardAddr := cfg.Dashboard.Addr
		if estimateDashboard != "" {
			dashboardAddr = estimateDashboard
		}
		var dash *progress.Dashboard
		if dashboardAddr != "" {
			dash = progress.NewDashboard(dashboardAddr)
			if err := dash.Start(); err != nil {
				return err
			}
			defer dash.Stop()
		}

		uiprogress.Start()
		bar := uiprogress.AddBar(100).AppendCompleted().PrependElapsed()
		bar.PrependFunc(func(b *uiprogress.Bar) string { return "Estimating: " })

		est.SetCallbacks(scheduler.Callbacks{
			OnTableStart: func(tableKey string) {
				if dash != nil {
					dash.PublishTable(progress.EventTableStart, "", tableKey, progress.TableEventData{})
				}
			},
			OnChunkComplete: func(tableKey string, chunkIndex int, res scheduler.ItemResult) {
				bar.Incr()
				if dash != nil {
					dash.PublishTable(progress.EventChunkComplete, "", tableKey, progress.TableEventData{
						ChunkIndex: chunkIndex, RowsUpserted: int(res.Rows),
					})
				}
			},
			OnTableComplete: func(agg scheduler.TableAggregate) {
				bar.Incr()
				if dash != nil {
					dash.PublishTable(progress.EventTableComplete, "", agg.TableKey, progress.TableEventData{
						Status: "estimated", RowsUpserted: int(agg.Rows),
					})
				}
			},
			OnTableError: func(tableKey string, err error) {
				if dash != nil {
					dash.PublishTable(progress.EventTableError, "", tableKey, progress.TableEventData{
						Error: err.Error(),
					})
				}
			},
		})

		start := time.Now()
		result, err := est.Run(ctx, discoverOptions(cfg, estimateTables))
		uiprogress.Stop()
		if err != nil {
			return err
		}
		if dash != nil {
			dash.PublishTable(progress.EventRunComplete, "", "", progress.TableEventData{Status: "estimated"})
		}

		fmt.Printf("\n%-40s %12s %14s %10s\n", "TABLE", "ROWS", "TOKENS", "COST")
		for _, t := range result.Tables {
			fmt.Printf("%-40s %12d %14d %10.4f\n", t.TableKey, t.Rows, t.Tokens, t.Cost)
		}
		fmt.Printf("\nmodel=%s price=$%.2f/1M tokens\n", cfg.Embedding.Model, price)
		fmt.Printf("total: %d rows, %d tokens, $%.4f (%s)\n",
			result.TotalRows, result.TotalTokens, result.TotalCost, time.Since(start).Round(time.Millisecond))
		for _, e := range result.Errors {
			fmt.Printf("error: %s chunk %d: %v\n", e.TableKey, e.ChunkIndex, e.Err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(estimateCmd)
	estimateCmd.Flags().StringSliceVarP(&estimateTables, "tables", "t", nil, "tables to estimate (overrides tables.include)")
	estimateCmd.Flags().StringVar(&estimateDashboard, "dashboard", "", "serve a websocket dashboard on this address (e.g. :8090)")
}
