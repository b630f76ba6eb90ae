package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vertextoedge/halftunes/internal/domain"
)

func newSearchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Search the catalog for songs",
		Long: `Search the catalog and list matching songs. The index in the
first column selects a song for "fetch".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), *configPath, strings.Join(args, " "))
		},
	}
}

func runSearch(ctx context.Context, configPath, term string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.catalog.Search(ctx, term)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(result.Tracks) == 0 {
		fmt.Printf("No songs found matching '%s'\n", term)
		return nil
	}

	printTracks(result.Tracks)

	fmt.Printf("\n%d songs", len(result.Tracks))
	if result.Skipped > 0 {
		fmt.Printf(", %d results skipped", result.Skipped)
	}
	if result.Cached {
		fmt.Print(" (cached)")
	}
	fmt.Println()
	return nil
}

func printTracks(tracks []domain.Track) {
	fmt.Printf("%-5s %-40s %-30s\n", "INDEX", "NAME", "ARTIST")
	fmt.Printf("%-5s %-40s %-30s\n", "-----", "----", "------")
	for _, t := range tracks {
		fmt.Printf("%-5d %-40s %-30s\n", t.Index, truncate(t.Name, 40), truncate(t.Artist, 30))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
