package playlists

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/contre95/playgraph/src/music"
)

// ParseCSV reads playlists from rows of "name,playlist id,track ids" where
// the track ids are separated by semicolons. A header row and blank or
// "#" comment lines are skipped.
func ParseCSV(r io.Reader) ([]*music.Playlist, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var playlists []*music.Playlist
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: malformed csv: %v", music.ErrInvalidInput, err)
		}
		if line == 1 && isHeader(record) {
			continue
		}
		if len(record) != 3 {
			return nil, fmt.Errorf("%w: csv row %d has %d fields, want 3", music.ErrInvalidInput, line, len(record))
		}
		playlists = append(playlists, &music.Playlist{
			Name:             strings.TrimSpace(record[0]),
			ExternalID:       strings.TrimSpace(record[1]),
			TrackExternalIDs: strings.Split(record[2], ";"),
		})
	}
	return playlists, nil
}

func isHeader(record []string) bool {
	return len(record) == 3 && strings.EqualFold(strings.TrimSpace(record[1]), "playlistId")
}

// Import saves every playlist in the csv and aggregates the ones that were
// not stored before, so importing the same file twice changes nothing.
// Rows that fail validation or storage are skipped and counted.
func (s *Service) Import(ctx context.Context, r io.Reader) (BatchReport, error) {
	playlists, err := ParseCSV(r)
	if err != nil {
		return BatchReport{}, err
	}
	report := BatchReport{Playlists: len(playlists)}
	for _, playlist := range playlists {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		one, err := s.saveAndAggregate(ctx, playlist, SourceImport)
		switch {
		case err != nil:
			slog.Warn("Skipping imported playlist", "playlist", playlist.ExternalID, "error", err)
			report.Failed++
		case !one.Created:
			report.Skipped++
		default:
			report.Ingested++
			report.Pairs += one.Pairs
		}
	}
	slog.Info("Playlist import finished", "playlists", report.Playlists, "ingested", report.Ingested, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}
