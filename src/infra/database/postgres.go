package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/contre95/playgraph/src/music"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLibrary is a PostgreSQL implementation of the music.Library
// interface. Fuzzy matching relies on the pg_trgm extension.
type PostgresLibrary struct {
	pool *pgxpool.Pool
}

// NewPostgresLibrary connects to dsn and migrates the schema.
func NewPostgresLibrary(ctx context.Context, dsn string) (*PostgresLibrary, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := createPostgresTables(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresLibrary{pool: pool}, nil
}

func createPostgresTables(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE EXTENSION IF NOT EXISTS pg_trgm;

		CREATE TABLE IF NOT EXISTS tracks (
			id BIGSERIAL PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE
		);

		CREATE TABLE IF NOT EXISTS playlists (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			external_id TEXT NOT NULL UNIQUE,
			track_ids TEXT[] NOT NULL
		);

		CREATE TABLE IF NOT EXISTS track_pairs (
			low_id BIGINT NOT NULL REFERENCES tracks(id),
			high_id BIGINT NOT NULL REFERENCES tracks(id),
			count BIGINT NOT NULL DEFAULT 1,
			PRIMARY KEY (low_id, high_id),
			CHECK (low_id < high_id)
		);

		CREATE TABLE IF NOT EXISTS track_metadata (
			id BIGSERIAL PRIMARY KEY,
			track_id BIGINT NOT NULL UNIQUE REFERENCES tracks(id),
			external_id TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			performer_name TEXT NOT NULL DEFAULT '',
			performer_external_id TEXT NOT NULL DEFAULT '',
			release_name TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_track_pairs_high ON track_pairs(high_id);
	`)
	if err != nil {
		return fmt.Errorf("create postgres schema: %w", err)
	}
	return nil
}

// ResolveOrCreate returns the internal id of externalID, inserting it when unseen.
func (p *PostgresLibrary) ResolveOrCreate(ctx context.Context, externalID string) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO tracks (external_id) VALUES ($1)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id
	`, externalID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	return p.LookupInternal(ctx, externalID)
}

// LookupInternal returns the internal id registered for externalID.
func (p *PostgresLibrary) LookupInternal(ctx context.Context, externalID string) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `SELECT id FROM tracks WHERE external_id = $1`, externalID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, music.ErrNotFound
	}
	return id, err
}

// LookupExternal returns the upstream id registered under internalID.
func (p *PostgresLibrary) LookupExternal(ctx context.Context, internalID int64) (string, error) {
	var externalID string
	err := p.pool.QueryRow(ctx, `SELECT external_id FROM tracks WHERE id = $1`, internalID).Scan(&externalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", music.ErrNotFound
	}
	return externalID, err
}

// PageIdentities returns up to pageSize identities with id > after, ascending.
func (p *PostgresLibrary) PageIdentities(ctx context.Context, after int64, pageSize int) ([]music.TrackIdentity, error) {
	if pageSize <= 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, external_id FROM tracks WHERE id > $1 ORDER BY id LIMIT $2
	`, after, pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIdentities(rows)
}

// MaxTrackID returns the highest internal id allocated so far, or 0.
func (p *PostgresLibrary) MaxTrackID(ctx context.Context) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM tracks`).Scan(&id)
	return id, err
}

// SavePlaylist inserts the playlist once; later saves keep the first record.
func (p *PostgresLibrary) SavePlaylist(ctx context.Context, playlist *music.Playlist) (bool, error) {
	trackIDs := playlist.TrackExternalIDs
	if trackIDs == nil {
		trackIDs = []string{}
	}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO playlists (name, external_id, track_ids) VALUES ($1, $2, $3)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id
	`, playlist.Name, playlist.ExternalID, trackIDs).Scan(&playlist.ID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	err = p.pool.QueryRow(ctx, `SELECT id FROM playlists WHERE external_id = $1`, playlist.ExternalID).Scan(&playlist.ID)
	return false, err
}

// GetPlaylist gets a playlist by its upstream id.
func (p *PostgresLibrary) GetPlaylist(ctx context.Context, externalID string) (*music.Playlist, error) {
	playlist := &music.Playlist{}
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, external_id, track_ids FROM playlists WHERE external_id = $1
	`, externalID).Scan(&playlist.ID, &playlist.Name, &playlist.ExternalID, &playlist.TrackExternalIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, music.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return playlist, nil
}

// GetPlaylistExternalIDs lists every stored playlist in insertion order.
func (p *PostgresLibrary) GetPlaylistExternalIDs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT external_id FROM playlists ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// DeletePlaylist removes the playlist stored under externalID, if any.
func (p *PostgresLibrary) DeletePlaylist(ctx context.Context, externalID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM playlists WHERE external_id = $1`, externalID)
	return err
}

// UpsertPairs inserts new edges at count 1 and bumps existing ones by 1.
// The whole batch is one transaction.
func (p *PostgresLibrary) UpsertPairs(ctx context.Context, pairs []music.Pair) error {
	pairs, err := music.CanonicalPairs(pairs)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for start := 0; start < len(pairs); start += pairChunkSize {
			end := min(start+pairChunkSize, len(pairs))
			lows, highs := splitPairs(pairs[start:end])
			_, err := tx.Exec(ctx, `
				INSERT INTO track_pairs (low_id, high_id)
				SELECT * FROM unnest($1::bigint[], $2::bigint[])
				ON CONFLICT (low_id, high_id) DO UPDATE SET count = track_pairs.count + 1
			`, lows, highs)
			if err != nil {
				return fmt.Errorf("upsert pairs %d-%d: %w", start, end, err)
			}
		}
		return nil
	})
}

// GetEdge returns the edge for pair.
func (p *PostgresLibrary) GetEdge(ctx context.Context, pair music.Pair) (*music.Edge, error) {
	edge := &music.Edge{Pair: pair}
	err := p.pool.QueryRow(ctx, `
		SELECT count FROM track_pairs WHERE low_id = $1 AND high_id = $2
	`, pair.Low, pair.High).Scan(&edge.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, music.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// Neighbors returns up to topK neighbors of trackID ordered by count.
func (p *PostgresLibrary) Neighbors(ctx context.Context, trackID int64, topK int) ([]music.Neighbor, error) {
	if topK <= 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT high_id AS neighbor, count FROM track_pairs WHERE low_id = $1
		UNION ALL
		SELECT low_id AS neighbor, count FROM track_pairs WHERE high_id = $1
		ORDER BY count DESC, neighbor ASC
		LIMIT $2
	`, trackID, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNeighbors(rows)
}

// FindUnenriched returns identities without metadata plus the full count of them.
func (p *PostgresLibrary) FindUnenriched(ctx context.Context, query music.UnenrichedQuery) (*music.UnenrichedPage, error) {
	rows, err := p.pool.Query(ctx, `
		WITH missing AS (
			SELECT t.id, t.external_id
			FROM tracks t
			LEFT JOIN track_metadata m ON m.track_id = t.id
			WHERE m.track_id IS NULL
		),
		page AS (
			SELECT id, external_id FROM missing
			WHERE id > $1 AND ($2::bigint <= 0 OR id <= $2::bigint)
			ORDER BY id
			LIMIT $3
		)
		SELECT (SELECT COUNT(*) FROM missing), page.id, page.external_id
		FROM (SELECT 1) AS one
		LEFT JOIN page ON true
		ORDER BY page.id
	`, query.After, query.Until, max(query.Limit, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUnenriched(rows)
}

// BulkInsertMetadata inserts records from columnar arrays in one statement;
// conflicting records are ignored.
func (p *PostgresLibrary) BulkInsertMetadata(ctx context.Context, records []music.Metadata) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	n := len(records)
	trackIDs := make([]int64, n)
	externalIDs := make([]string, n)
	names := make([]string, n)
	performers := make([]string, n)
	performerIDs := make([]string, n)
	releases := make([]string, n)
	for i, r := range records {
		trackIDs[i] = r.TrackID
		externalIDs[i] = r.ExternalID
		names[i] = r.DisplayName
		performers[i] = r.PerformerName
		performerIDs[i] = r.PerformerExternalID
		releases[i] = r.ReleaseName
	}

	tag, err := p.pool.Exec(ctx, `
		INSERT INTO track_metadata (track_id, external_id, display_name, performer_name, performer_external_id, release_name)
		SELECT * FROM unnest($1::bigint[], $2::text[], $3::text[], $4::text[], $5::text[], $6::text[])
		ON CONFLICT DO NOTHING
	`, trackIDs, externalIDs, names, performers, performerIDs, releases)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// GetMetadata returns the metadata of every enriched track in trackIDs.
func (p *PostgresLibrary) GetMetadata(ctx context.Context, trackIDs []int64) (map[int64]music.Metadata, error) {
	result := make(map[int64]music.Metadata, len(trackIDs))
	if len(trackIDs) == 0 {
		return result, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT track_id, external_id, display_name, performer_name, performer_external_id, release_name
		FROM track_metadata
		WHERE track_id = ANY($1)
	`, trackIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m music.Metadata
		if err := rows.Scan(&m.TrackID, &m.ExternalID, &m.DisplayName, &m.PerformerName, &m.PerformerExternalID, &m.ReleaseName); err != nil {
			return nil, err
		}
		result[m.TrackID] = m
	}
	return result, rows.Err()
}

// SearchCandidates returns the records containing needle (already lower-cased).
func (p *PostgresLibrary) SearchCandidates(ctx context.Context, needle string) ([]music.Candidate, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT track_id, external_id, display_name, performer_name, performer_external_id, release_name,
			COALESCE(similarity(performer_name || ' - ' || display_name, $1), 0)::float8
		FROM track_metadata
		WHERE strpos(lower(display_name), $1) > 0
			OR strpos(lower(performer_name), $1) > 0
			OR strpos(lower(performer_name || ' - ' || display_name), $1) > 0
	`, needle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// Stats counts the rows of every table.
func (p *PostgresLibrary) Stats(ctx context.Context) (*music.Stats, error) {
	stats := &music.Stats{}
	err := p.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM tracks),
			(SELECT COUNT(*) FROM playlists),
			(SELECT COUNT(*) FROM track_pairs),
			(SELECT COUNT(*) FROM track_metadata)
	`).Scan(&stats.Tracks, &stats.Playlists, &stats.Edges, &stats.Enriched)
	if err != nil {
		return nil, err
	}
	stats.Unenriched = stats.Tracks - stats.Enriched
	return stats, nil
}

// Reset drops every table and recreates an empty schema.
func (p *PostgresLibrary) Reset(ctx context.Context) error {
	slog.Warn("Dropping all tables")
	_, err := p.pool.Exec(ctx, `
		DROP TABLE IF EXISTS track_metadata;
		DROP TABLE IF EXISTS track_pairs;
		DROP TABLE IF EXISTS playlists;
		DROP TABLE IF EXISTS tracks;
	`)
	if err != nil {
		return err
	}
	return createPostgresTables(ctx, p.pool)
}

// Close closes the connection pool.
func (p *PostgresLibrary) Close() error {
	p.pool.Close()
	return nil
}
