package music

import (
	"fmt"
	"strings"
)

// TrackIdentity binds an upstream track identifier to the internal id
// minted by the registry. Internal ids are never reused or renumbered.
type TrackIdentity struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"external_id"`
}

// Metadata holds the descriptive fields attached to a track identity once
// the enrichment pipeline has fetched them from the provider.
type Metadata struct {
	TrackID             int64  `json:"track_id"`
	ExternalID          string `json:"external_id"`
	DisplayName         string `json:"display_name"`
	PerformerName       string `json:"performer_name"`
	PerformerExternalID string `json:"performer_external_id"`
	ReleaseName         string `json:"release_name"`
}

// Label returns the "performer - display" form used by search.
func (m *Metadata) Label() string {
	return m.PerformerName + " - " + m.DisplayName
}

// Validate validates the metadata fields.
func (m *Metadata) Validate() error {
	if m.TrackID <= 0 {
		return fmt.Errorf("%w: metadata track id must be positive, got %d", ErrInvalidInput, m.TrackID)
	}
	if strings.TrimSpace(m.ExternalID) == "" {
		return fmt.Errorf("%w: metadata external id cannot be empty: track -> %d", ErrInvalidInput, m.TrackID)
	}
	if strings.TrimSpace(m.DisplayName) == "" {
		return fmt.Errorf("%w: metadata display name cannot be empty: track -> %d", ErrInvalidInput, m.TrackID)
	}
	if len(m.DisplayName) > 500 {
		return fmt.Errorf("%w: display name cannot exceed 500 characters, got %d", ErrInvalidInput, len(m.DisplayName))
	}
	return nil
}

// NormalizeExternalID trims whitespace around an upstream identifier and
// rejects empty ones.
func NormalizeExternalID(externalID string) (string, error) {
	id := strings.TrimSpace(externalID)
	if id == "" {
		return "", fmt.Errorf("%w: external id cannot be empty", ErrInvalidInput)
	}
	if len(id) > 200 {
		return "", fmt.Errorf("%w: external id cannot exceed 200 characters, got %d", ErrInvalidInput, len(id))
	}
	return id, nil
}

// Pretty returns a formatted string representation of the metadata for logging/debugging.
func (m *Metadata) Pretty() string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("%-20s : %d\n", "Track ID", m.TrackID))
	builder.WriteString(fmt.Sprintf("%-20s : %s\n", "External ID", m.ExternalID))
	builder.WriteString(fmt.Sprintf("%-20s : %s\n", "Title", m.DisplayName))
	builder.WriteString(fmt.Sprintf("%-20s : %s\n", "Artist", m.PerformerName))
	if m.ReleaseName != "" {
		builder.WriteString(fmt.Sprintf("%-20s : %s\n", "Album", m.ReleaseName))
	}
	return builder.String()
}
