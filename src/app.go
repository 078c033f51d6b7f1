package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/contre95/playgraph/src/features/config"
	"github.com/contre95/playgraph/src/features/enrichment"
	"github.com/contre95/playgraph/src/features/hosting"
	"github.com/contre95/playgraph/src/features/identity"
	"github.com/contre95/playgraph/src/features/jobs"
	"github.com/contre95/playgraph/src/features/logging"
	"github.com/contre95/playgraph/src/features/metrics"
	"github.com/contre95/playgraph/src/features/pairing"
	"github.com/contre95/playgraph/src/features/playlists"
	"github.com/contre95/playgraph/src/features/recommend"
	"github.com/contre95/playgraph/src/features/search"
	"github.com/contre95/playgraph/src/infra/database"
	"github.com/contre95/playgraph/src/infra/memory"
	"github.com/contre95/playgraph/src/infra/providers"
	"github.com/contre95/playgraph/src/music"
)

// app holds every wired component of a running process.
type app struct {
	cfg      *config.Manager
	library  music.Library
	services hosting.Services
}

// newApp loads the config, opens the store and wires the feature services.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfgManager, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.SetDefault(logging.SetupLogger(cfgManager))
	cfg := cfgManager.Get()

	library, err := openLibrary(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	var spotify *providers.SpotifyClient
	var playlistSource music.PlaylistSource
	var metadataProvider music.MetadataProvider
	if cfg.Provider.Enabled {
		spotify = providers.NewSpotifyClient(cfg.Provider)
		playlistSource, metadataProvider = spotify, spotify
		slog.Info("Loaded provider", "name", spotify.Name())
	} else {
		slog.Warn("Provider disabled, only stored playlists can be ingested and backfills will fail")
	}

	jobService := jobs.NewService(&cfg.Jobs)
	jobService.OnFinish(func(job jobs.Job) {
		metrics.RecordJob(job.Type, string(job.Status))
	})

	identityService := identity.NewService(library)
	aggregator := pairing.NewAggregator(library)
	playlistService := playlists.NewService(library, identityService, aggregator, playlistSource)
	enrichmentService := enrichment.NewService(library, metadataProvider, cfgManager)
	metricsService := metrics.NewService(library)

	jobService.RegisterHandler(playlists.IngestJobType, jobs.NewBaseTaskHandler(playlists.NewIngestTask(playlistService)))
	jobService.RegisterHandler(playlists.DiscoverJobType, jobs.NewBaseTaskHandler(playlists.NewDiscoverTask(playlistService)))
	jobService.RegisterHandler(enrichment.JobType, jobs.NewBaseTaskHandler(enrichment.NewBackfillTask(enrichmentService, func() int {
		return cfgManager.Get().Backfill.PageSize
	})))
	jobService.RegisterHandler("stats_refresh", jobs.NewBaseTaskHandler(metrics.NewStatsRefreshTask(metricsService)))

	a := &app{
		cfg:     cfgManager,
		library: library,
		services: hosting.Services{
			Identity:   identityService,
			Aggregator: aggregator,
			Playlists:  playlistService,
			Enrichment: enrichmentService,
			Search:     search.NewService(library, cfgManager),
			Recommend:  recommend.NewService(library, cfgManager),
			Metrics:    metricsService,
			Jobs:       jobService,
		},
	}

	if cfg.Demo {
		if err := seedDemo(ctx, a); err != nil {
			library.Close()
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}
	return a, nil
}

// openLibrary opens the store named by the database driver.
func openLibrary(ctx context.Context, cfg config.Database) (music.Library, error) {
	switch cfg.Driver {
	case "postgres":
		lib, err := database.NewPostgresLibrary(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres library: %w", err)
		}
		slog.Info("Using postgres library")
		return lib, nil
	case "memory":
		slog.Info("Using in-memory library, nothing will be persisted")
		return memory.NewLibrary(), nil
	default:
		lib, err := database.NewSqliteLibrary(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite library: %w", err)
		}
		slog.Info("Using sqlite library", "path", cfg.Path)
		return lib, nil
	}
}

// close cancels outstanding jobs, waits for them and closes the store.
func (a *app) close() {
	a.services.Jobs.Shutdown()
	if err := a.library.Close(); err != nil {
		slog.Error("Failed to close library", "error", err)
	}
}
