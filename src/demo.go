package main

import (
	"context"
	"log/slog"
	"strings"

	"github.com/contre95/playgraph/src/music"
)

// demoPlaylists is a small scraped sample, in the playlist csv format.
const demoPlaylists = `playlistName,playlistId,trackIds
French Touch,demo-pl-1,demo-t1;demo-t2;demo-t3;demo-t4
Late Night Drive,demo-pl-2,demo-t1;demo-t2;demo-t5
Trip Hop Classics,demo-pl-3,demo-t5;demo-t6;demo-t7
Dance Floor,demo-pl-4,demo-t1;demo-t3;demo-t6
`

var demoMetadata = map[string][3]string{
	"demo-t1": {"One More Time", "Daft Punk", "Discovery"},
	"demo-t2": {"Music Sounds Better With You", "Stardust", "Music Sounds Better With You"},
	"demo-t3": {"Around the World", "Daft Punk", "Homework"},
	"demo-t4": {"Lady (Hear Me Tonight)", "Modjo", "Modjo"},
	"demo-t5": {"Teardrop", "Massive Attack", "Mezzanine"},
	"demo-t6": {"Glory Box", "Portishead", "Dummy"},
	"demo-t7": {"Roads", "Portishead", "Dummy"},
}

// seedDemo imports the sample playlists and attaches their metadata, so
// search and recommend answer without a provider.
func seedDemo(ctx context.Context, a *app) error {
	report, err := a.services.Playlists.Import(ctx, strings.NewReader(demoPlaylists))
	if err != nil {
		return err
	}
	records := make([]music.Metadata, 0, len(demoMetadata))
	for externalID, fields := range demoMetadata {
		id, err := a.services.Identity.LookupInternal(ctx, externalID)
		if err != nil {
			return err
		}
		records = append(records, music.Metadata{
			TrackID:             id,
			ExternalID:          externalID,
			DisplayName:         fields[0],
			PerformerName:       fields[1],
			PerformerExternalID: "demo-" + strings.ToLower(strings.ReplaceAll(fields[1], " ", "-")),
			ReleaseName:         fields[2],
		})
	}
	inserted, err := a.services.Enrichment.BulkInsert(ctx, records)
	if err != nil {
		return err
	}
	slog.Info("Seeded demo data", "playlists", report.Ingested, "pairs", report.Pairs, "metadata", inserted)
	return nil
}
