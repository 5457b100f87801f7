package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobharvest/internal/browse"
	"github.com/amishk599/jobharvest/internal/config"
	"github.com/amishk599/jobharvest/internal/filter"
	"github.com/amishk599/jobharvest/internal/model"
	"github.com/amishk599/jobharvest/internal/store"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse stored postings interactively (TUI)",
	Long:  "Shows the site picker, then a split-pane view of the site's stored postings and the ones matching the filters.",
	RunE:  runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// No logging here: output before the alt screen starts corrupts the display.
	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{Driver: cfg.Store.Driver, Path: cfg.Store.Path, DSN: cfg.Store.DSN})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}

	entries := make([]browse.SiteEntry, 0, len(cfg.Sites))
	for _, s := range cfg.Sites {
		entries = append(entries, browse.SiteEntry{Name: s.Name, Kind: s.Kind, Postings: stats.BySite[s.Name]})
	}
	if len(entries) == 0 {
		fmt.Println("No sites in config.")
		return nil
	}

	f := filter.NewTitleAndLocationFilter(filter.Criteria{
		TitleKeywords:        cfg.Filters.TitleKeywords,
		TitleExcludeKeywords: cfg.Filters.TitleExcludeKeywords,
		Locations:            cfg.Filters.Locations,
		ExcludeLocations:     cfg.Filters.ExcludeLocations,
	})

	return browseLoop(st, cfg.Sites, entries, f)
}

func browseLoop(st model.JobStore, sites []config.SiteConfig, entries []browse.SiteEntry, f model.PostingFilter) error {
	for {
		choice, err := browse.PickSite(entries)
		if err != nil {
			return fmt.Errorf("picker: %w", err)
		}
		if choice < 0 {
			return nil
		}
		site := sites[choice].Name

		postings, err := browse.Load(site, func(ctx context.Context) ([]model.Posting, error) {
			return st.ListBySite(ctx, site)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading postings: %v\n", err)
			continue
		}

		wantQuit, err := browse.Run(site, postings, f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
		if wantQuit {
			return nil
		}
	}
}
