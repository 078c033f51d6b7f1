package music

import (
	"fmt"
	"strings"
)

// Playlist is the raw ingestion record: an upstream playlist and the
// ordered upstream ids of the tracks it lists. It is written once and only
// read afterwards.
type Playlist struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	ExternalID       string   `json:"external_id"`
	TrackExternalIDs []string `json:"track_external_ids"`
}

// Validate validates the playlist fields and drops blank track ids.
func (p *Playlist) Validate() error {
	if strings.TrimSpace(p.ExternalID) == "" {
		return fmt.Errorf("%w: playlist external id cannot be empty", ErrInvalidInput)
	}
	if len(p.Name) > 500 {
		return fmt.Errorf("%w: playlist name cannot exceed 500 characters, got %d: name -> %s", ErrInvalidInput, len(p.Name), p.Name)
	}
	cleaned := make([]string, 0, len(p.TrackExternalIDs))
	for _, id := range p.TrackExternalIDs {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	p.TrackExternalIDs = cleaned
	return nil
}

// Pretty returns a formatted string representation of the playlist for logging/debugging.
func (p *Playlist) Pretty() string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("%-20s : %d\n", "ID", p.ID))
	builder.WriteString(fmt.Sprintf("%-20s : %s\n", "External ID", p.ExternalID))
	builder.WriteString(fmt.Sprintf("%-20s : %s\n", "Name", p.Name))
	builder.WriteString(fmt.Sprintf("%-20s : %d\n", "Track Count", len(p.TrackExternalIDs)))
	return builder.String()
}
