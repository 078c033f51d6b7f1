package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contre95/playgraph/src/features/enrichment"
	"github.com/contre95/playgraph/src/features/hosting"
	"github.com/contre95/playgraph/src/infra/watcher"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "playgraph",
		Short: "Playlist co-occurrence graph and track search service",
		Long: `Playgraph ingests playlists into a weighted graph of tracks that are
listened to together, enriches the tracks with provider metadata and answers
fuzzy track searches and "found together" recommendations.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the config file")

	root.AddCommand(newServeCmd(), newIngestCmd(), newBackfillCmd(), newAdminCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.close()
			cfg := a.cfg.Get()

			events := make(chan watcher.FileEvent, 4)
			configWatcher, err := watcher.NewWatcher(events)
			if err != nil {
				slog.Warn("Config hot reload disabled", "error", err)
			} else if err := configWatcher.Start(ctx, a.cfg.Path()); err != nil {
				slog.Warn("Config hot reload disabled", "error", err)
			} else {
				defer configWatcher.Stop()
				go watcher.ReloadOn(ctx, events, a.cfg)
			}

			if cfg.Backfill.ScheduleEnabled {
				scheduler := enrichment.NewScheduler(a.services.Jobs, cfg.Backfill.Interval)
				scheduler.Start()
				defer scheduler.Stop()
			}

			server := hosting.NewServer(a.cfg, a.services)
			errChan := make(chan error, 1)
			go func() { errChan <- server.Start() }()

			select {
			case err := <-errChan:
				return fmt.Errorf("server stopped: %w", err)
			case <-ctx.Done():
				slog.Info("Shutting down")
				return server.Shutdown()
			}
		},
	}
}

func newIngestCmd() *cobra.Command {
	var csvPath, discover string
	var limit int
	cmd := &cobra.Command{
		Use:   "ingest [playlist-id...]",
		Short: "Ingest playlists into the graph",
		Long: `Ingest playlists by id (read from the store, or fetched from the provider
when missing), from a csv file with --csv, or by searching the provider with
--discover.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && csvPath == "" && discover == "" {
				return errors.New("give playlist ids, --csv or --discover")
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.close()
			service := a.services.Playlists

			if csvPath != "" {
				f, err := os.Open(csvPath)
				if err != nil {
					return err
				}
				defer f.Close()
				report, err := service.Import(ctx, f)
				if err != nil {
					return err
				}
				printJSON(cmd, report)
			}
			if discover != "" {
				report, err := service.Discover(ctx, discover, limit, nil)
				if err != nil {
					return err
				}
				printJSON(cmd, report)
			}

			failed := 0
			for _, id := range args {
				report, err := service.Ingest(ctx, id)
				if err != nil {
					slog.Error("Ingest failed", "playlist", id, "error", err)
					failed++
					continue
				}
				printJSON(cmd, report)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d playlists failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "csv file of name,playlist id,semicolon separated track ids")
	cmd.Flags().StringVar(&discover, "discover", "", "search the provider for playlists and ingest the new ones")
	cmd.Flags().IntVar(&limit, "limit", 30, "playlists to take from a --discover search")
	return cmd
}

func newBackfillCmd() *cobra.Command {
	var pageSize int
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Fetch metadata for tracks that lack it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.close()
			if pageSize <= 0 {
				pageSize = a.cfg.Get().Backfill.PageSize
			}

			report, err := a.services.Enrichment.Backfill(ctx, pageSize, func(r enrichment.BackfillReport) {
				slog.Info("Backfill progress", "page", r.Pages, "cursor", r.Cursor, "until", r.Until, "inserted", r.Inserted)
			})
			printJSON(cmd, report)
			return err
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "identities per page (defaults to backfill.page_size)")
	return cmd
}

func newAdminCmd() *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Offline maintenance operations",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print store counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer a.close()
			s, err := a.services.Metrics.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(cmd, s)
			return nil
		},
	}

	var yes bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset deletes every track, playlist, edge and metadata record; pass --yes to confirm")
			}
			a, err := newApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.library.Reset(cmd.Context()); err != nil {
				return err
			}
			slog.Info("Library reset")
			return nil
		},
	}
	reset.Flags().BoolVar(&yes, "yes", false, "confirm the reset")

	reingest := &cobra.Command{
		Use:   "reingest",
		Short: "Aggregate every stored playlist again (counts grow on every run)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer a.close()
			start := time.Now()
			report, err := a.services.Playlists.ReingestAll(cmd.Context(), func(done, total int) {
				if done%100 == 0 || done == total {
					slog.Info("Re-aggregating playlists", "done", done, "total", total)
				}
			})
			printJSON(cmd, report)
			slog.Info("Re-aggregation finished", "duration", time.Since(start).String())
			return err
		},
	}

	admin.AddCommand(stats, reset, reingest)
	return admin
}

func printJSON(cmd *cobra.Command, v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Error("Failed to encode output", "error", err)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
}

func init() {
	cobra.EnableCommandSorting = false
}
