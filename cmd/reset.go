package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"index-pump/internal/index"
	"index-pump/internal/logger"
)

var (
	resetDocs    bool
	resetCatalog bool
	resetYes     bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the document index and/or the control catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if !resetDocs && !resetCatalog {
			resetDocs = true
			resetCatalog = true
		}

		if !resetYes {
			confirmed := false
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Reset %s? (documents=%v catalog=%v)", cfg.Index.Path, resetDocs, resetCatalog)).
				Value(&confirmed).
				Run()
			if err != nil {
				return fmt.Errorf("prompt failed: %w", err)
			}
			if !confirmed {
				return fmt.Errorf("aborted")
			}
		}

		store, err := index.Open(cfg.Index.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		if resetDocs {
			if err := store.ResetDocuments(ctx); err != nil {
				return err
			}
			logger.Infof("document index cleared")
		}
		if resetCatalog {
			if err := store.ResetCatalog(ctx); err != nil {
				return err
			}
			logger.Infof("control catalog cleared; next sync reindexes everything")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVar(&resetDocs, "documents", false, "clear the document index")
	resetCmd.Flags().BoolVar(&resetCatalog, "catalog", false, "clear the control catalog")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "skip the confirmation prompt")
}
