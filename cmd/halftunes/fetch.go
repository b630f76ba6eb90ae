package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/vertextoedge/halftunes/internal/domain"
	"github.com/vertextoedge/halftunes/internal/domain/event"
)

func newFetchCmd(configPath *string) *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "fetch <term>",
		Short: "Search the catalog and download one preview",
		Long: `Search the catalog and download the preview of the song at --index.
Progress is shown until the download finishes. Interrupting cancels
the download and removes its partial data.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), *configPath, strings.Join(args, " "), index)
		},
	}

	cmd.Flags().IntVarP(&index, "index", "i", 0, "Index of the song in the search results")

	return cmd
}

func runFetch(ctx context.Context, configPath, term string, index int) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.catalog.Search(ctx, term)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	track, ok := trackAt(result.Tracks, index)
	if !ok {
		return fmt.Errorf("no song at index %d, search returned %d songs", index, len(result.Tracks))
	}

	events := event.NewChannelHandler(64)
	a.dispatcher.Subscribe(events)
	defer func() {
		a.dispatcher.Unsubscribe(events)
		events.Close()
	}()

	runCtx, stop := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = a.manager.Run(runCtx)
	}()
	defer func() {
		stop()
		<-stopped
	}()

	fmt.Printf("Downloading %s by %s\n", track.Name, track.Artist)
	if _, err := a.manager.Start(track); err != nil {
		return err
	}

	return awaitTransfer(ctx, a, track.ID(), events)
}

// awaitTransfer renders progress for id until it reaches a terminal
// state. ctx ending cancels the transfer.
func awaitTransfer(ctx context.Context, a *app, id string, events *event.ChannelHandler) error {
	for {
		select {
		case <-ctx.Done():
			a.manager.Cancel(id)
			fmt.Println("\nDownload cancelled")
			return nil

		case ev := <-events.Events():
			if ev.TransferID() != id {
				continue
			}
			switch e := ev.(type) {
			case event.TransferProgressed:
				fmt.Printf("\r%-40s", progressLine(e))
			case event.TransferCompleted:
				fmt.Printf("\nSaved %s to %s in %s\n", humanize.Bytes(uint64(e.Size)), e.Location, e.Duration.Round(time.Millisecond))
				return nil
			case event.TransferFailed:
				fmt.Println()
				return fmt.Errorf("download failed (%s): %w", e.Kind, e.Err)
			case event.TransferStateChanged:
				if e.To == domain.StateCancelled {
					fmt.Println("\nDownload cancelled")
					return nil
				}
			}
		}
	}
}

func progressLine(e event.TransferProgressed) string {
	if e.Indeterminate() {
		return fmt.Sprintf("%s received", humanize.Bytes(uint64(e.BytesReceived)))
	}
	return fmt.Sprintf("%5.1f%%  %s / %s", e.Progress*100,
		humanize.Bytes(uint64(e.BytesReceived)), humanize.Bytes(uint64(e.BytesExpected)))
}

func trackAt(tracks []domain.Track, index int) (domain.Track, bool) {
	for _, t := range tracks {
		if t.Index == index {
			return t, true
		}
	}
	return domain.Track{}, false
}
