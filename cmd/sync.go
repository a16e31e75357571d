package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"

	"index-pump/internal/embed"
	"index-pump/internal/engine"
	"index-pump/internal/index"
	"index-pump/internal/logger"
	"index-pump/internal/plan"
	"index-pump/internal/progress"
	"index-pump/internal/source"
)

var (
	syncTables       []string
	syncRunID        string
	syncInteractive  bool
	syncYes          bool
	syncDashboard    string
	syncProgressFile string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize changed tables into the index",
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

		embedder, err := embed.New(embed.Config{
			Provider:   cfg.Embedding.Provider,
			Endpoint:   cfg.Embedding.Endpoint,
			Model:      cfg.Embedding.Model,
			APIKey:     cfg.Embedding.APIKey,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			return err
		}

		overrides, err := loadMappingFile(cfg.Tables.MappingFile)
		if err != nil {
			return err
		}

		discover := discoverOptions(cfg, syncTables)
		if syncInteractive {
			discover, err = pickTables(ctx, src, discover, syncYes)
			if err != nil {
				return err
			}
		}

		// Generate the run id up front so progress events can carry it.
		if syncRunID == "" {
			syncRunID = uuid.NewString()
		}

		execCfg := engine.Config{
			RunID:           syncRunID,
			Discover:        discover,
			BatchSize:       cfg.Sync.BatchSize,
			IndexPrefix:     cfg.Index.Prefix,
			TextColumnsMode: cfg.Sync.TextColumns,
			ExcludedColumns: cfg.Sync.ExcludedColumns,
			Overrides:       overrides,
		}
		exec := engine.New(src, store, store, embedder, execCfg)

		dashboardAddr := cfg.Dashboard.Addr
		if syncDashboard != "" {
			dashboardAddr = syncDashboard
		}
		var dash *progress.Dashboard
		if dashboardAddr != "" {
			dash = progress.NewDashboard(dashboardAddr)
			if err := dash.Start(); err != nil {
				return err
			}
			defer dash.Stop()
		}
		var pf *progress.FileWriter
		if syncProgressFile != "" {
			pf = progress.NewFileWriter(syncProgressFile, syncRunID)
		}

		uiprogress.Start()
		bar := uiprogress.AddBar(100).AppendCompleted().PrependElapsed()
		bar.PrependFunc(func(b *uiprogress.Bar) string { return "Syncing: " })

		exec.SetCallbacks(engine.Callbacks{
			OnTableStart: func(p plan.TablePlan) {
				if pf != nil {
					pf.UpdateTable(progress.TableProgress{
						TableKey: p.Key(), Mode: string(p.Mode), Reason: p.Reason, Status: "running",
					})
				}
				if dash != nil {
					dash.PublishTable(progress.EventTableStart, syncRunID, p.Key(), progress.TableEventData{
						Mode: string(p.Mode), Reason: p.Reason,
					})
				}
			},
			OnTableBatch: func(tableKey string, rowsSoFar int64) {
				bar.Incr()
			},
			OnTableComplete: func(r engine.TableRunResult) {
				bar.Incr()
				if pf != nil {
					pf.UpdateTable(progress.TableProgress{
						TableKey: r.Key(), Mode: string(r.Mode), Reason: r.Reason,
						Status: string(r.Status), RowsUpserted: int(r.RowsUpserted), Error: r.Error,
					})
				}
				if dash != nil {
					ev := progress.EventTableComplete
					if r.Status == engine.StatusFailed {
						ev = progress.EventTableError
					}
					dash.PublishTable(ev, syncRunID, r.Key(), progress.TableEventData{
						Mode: string(r.Mode), Reason: r.Reason, Status: string(r.Status),
						RowsUpserted: int(r.RowsUpserted), Error: r.Error,
					})
				}
			},
		})

		start := time.Now()
		summary := exec.Run(ctx)
		uiprogress.Stop()

		if pf != nil {
			pf.SetPhase(string(summary.Status))
		}
		if dash != nil {
			dash.PublishTable(progress.EventRunComplete, summary.RunID, "", progress.TableEventData{
				Status: string(summary.Status),
			})
		}

		printRunReport(summary, time.Since(start))
		if summary.Status == index.RunStatusFailed {
			return fmt.Errorf("run %s failed: %v", summary.RunID, summary.FatalError)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringSliceVarP(&syncTables, "tables", "t", nil, "tables to sync (overrides tables.include)")
	syncCmd.Flags().StringVar(&syncRunID, "run-id", "", "explicit run id (default: generated UUID)")
	syncCmd.Flags().BoolVarP(&syncInteractive, "interactive", "i", false, "pick tables interactively")
	syncCmd.Flags().BoolVarP(&syncYes, "yes", "y", false, "skip confirmation prompts")
	syncCmd.Flags().StringVar(&syncDashboard, "dashboard", "", "serve a websocket dashboard on this address (e.g. :8090)")
	syncCmd.Flags().StringVar(&syncProgressFile, "progress-file", "", "write a JSON progress snapshot to this path")
}

// discoverOptions resolves include/exclude lists: the --tables flag wins over
// the configured allowlist.
func discoverOptions(cfg *Config, flagTables []string) source.DiscoverOptions {
	include := cfg.Tables.Include
	if len(flagTables) > 0 {
		include = flagTables
	}
	return source.DiscoverOptions{
		Include:             include,
		Exclude:             cfg.Tables.Exclude,
		UpdatedAtCandidates: cfg.Tables.UpdatedAtCandidates,
	}
}

// pickTables shows a multi-select over the discovered tables and a confirm
// gate, returning options narrowed to the chosen set.
func pickTables(ctx context.Context, src *source.Source, opts source.DiscoverOptions, skipConfirm bool) (source.DiscoverOptions, error) {
	tables, err := src.DiscoverTables(ctx, opts)
	if err != nil {
		return opts, err
	}

	names := make([]string, len(tables))
	options := make([]huh.Option[string], len(tables))
	for i, t := range tables {
		names[i] = t.Table
		options[i] = huh.NewOption(t.Key(), t.Table).Selected(true)
	}

	selected := names
	confirmed := true
	groups := []*huh.Group{
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Tables to sync").
				Options(options...).
				Value(&selected),
		),
	}
	if !skipConfirm {
		groups = append(groups, huh.NewGroup(
			huh.NewConfirm().
				Title("Changed tables are fully reindexed. Proceed?").
				Value(&confirmed),
		))
	}
	if err := huh.NewForm(groups...).Run(); err != nil {
		return opts, fmt.Errorf("prompt failed: %w", err)
	}
	if !confirmed {
		return opts, fmt.Errorf("aborted")
	}
	if len(selected) == 0 {
		return opts, fmt.Errorf("no tables selected")
	}
	opts.Include = selected
	return opts, nil
}

func printRunReport(s engine.RunSummary, elapsed time.Duration) {
	fmt.Printf("\nRun %s: %s\n", s.RunID, s.Status)
	for i, r := range s.Results {
		icon := "+"
		switch r.Status {
		case engine.StatusSkipped:
			icon = "-"
		case engine.StatusFailed:
			icon = "!"
		}
		fmt.Printf("[%s] [%02d/%02d] %-30s %-9s (%s)", icon, i+1, len(s.Results), r.Key(), r.Status, r.Reason)
		if r.Status == engine.StatusReindexed {
			fmt.Printf(" %d rows", r.RowsUpserted)
		}
		fmt.Println()
		if r.Error != "" {
			fmt.Printf("    error: %s\n", r.Error)
		}
	}
	fmt.Printf("reindexed=%d skipped=%d failed=%d rows=%d elapsed=%s\n",
		s.TablesReindexed, s.TablesSkipped, len(s.Errors), s.RowsUpserted, elapsed.Round(time.Millisecond))
	if s.FatalError != nil {
		logger.Errorf("fatal: %v", s.FatalError)
	}
}
