package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/contre95/playgraph/src/features/search"
	"github.com/contre95/playgraph/src/music"
	"github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"
)

const sqliteDriverName = "sqlite3_playgraph"

// pairChunkSize bounds the JSON document bound to a single upsert statement.
const pairChunkSize = 10000

var registerSqliteDriver sync.Once

// SqliteLibrary is a SQLite implementation of the music.Library interface.
type SqliteLibrary struct {
	db *sql.DB
}

// NewSqliteLibrary opens (or creates) the database file at path.
func NewSqliteLibrary(path string) (*SqliteLibrary, error) {
	registerSqliteDriver.Do(func() {
		sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterFunc("similarity", search.Similarity, true); err != nil {
					return err
				}
				return conn.RegisterFunc("casefold", strings.ToLower, true)
			},
		})
	})

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL&_txlock=immediate", path)
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SqliteLibrary{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tracks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			external_id TEXT NOT NULL UNIQUE
		);

		CREATE TABLE IF NOT EXISTS playlists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			external_id TEXT NOT NULL UNIQUE,
			track_ids TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS track_pairs (
			low_id INTEGER NOT NULL,
			high_id INTEGER NOT NULL,
			count INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (low_id, high_id),
			CHECK (low_id < high_id),
			FOREIGN KEY (low_id) REFERENCES tracks(id),
			FOREIGN KEY (high_id) REFERENCES tracks(id)
		);

		CREATE TABLE IF NOT EXISTS track_metadata (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			track_id INTEGER NOT NULL UNIQUE,
			external_id TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			performer_name TEXT NOT NULL DEFAULT '',
			performer_external_id TEXT NOT NULL DEFAULT '',
			release_name TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (track_id) REFERENCES tracks(id)
		);

		CREATE INDEX IF NOT EXISTS idx_track_pairs_high ON track_pairs(high_id);
	`)
	return err
}

// ResolveOrCreate returns the internal id of externalID, inserting it when unseen.
func (d *SqliteLibrary) ResolveOrCreate(ctx context.Context, externalID string) (int64, error) {
	var id int64
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO tracks (external_id) VALUES (?)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id
	`, externalID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	// Lost the race or already registered: read back the stored row.
	return d.LookupInternal(ctx, externalID)
}

// LookupInternal returns the internal id registered for externalID.
func (d *SqliteLibrary) LookupInternal(ctx context.Context, externalID string) (int64, error) {
	var id int64
	err := d.db.QueryRowContext(ctx, `SELECT id FROM tracks WHERE external_id = ?`, externalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, music.ErrNotFound
	}
	return id, err
}

// LookupExternal returns the upstream id registered under internalID.
func (d *SqliteLibrary) LookupExternal(ctx context.Context, internalID int64) (string, error) {
	var externalID string
	err := d.db.QueryRowContext(ctx, `SELECT external_id FROM tracks WHERE id = ?`, internalID).Scan(&externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", music.ErrNotFound
	}
	return externalID, err
}

// PageIdentities returns up to pageSize identities with id > after, ascending.
func (d *SqliteLibrary) PageIdentities(ctx context.Context, after int64, pageSize int) ([]music.TrackIdentity, error) {
	if pageSize <= 0 {
		return nil, nil
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, external_id FROM tracks
		WHERE id > ?
		ORDER BY id
		LIMIT ?
	`, after, pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIdentities(rows)
}

// MaxTrackID returns the highest internal id allocated so far, or 0.
func (d *SqliteLibrary) MaxTrackID(ctx context.Context) (int64, error) {
	var id int64
	err := d.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM tracks`).Scan(&id)
	return id, err
}

// SavePlaylist inserts the playlist once; later saves keep the first record.
func (d *SqliteLibrary) SavePlaylist(ctx context.Context, playlist *music.Playlist) (bool, error) {
	tracks := playlist.TrackExternalIDs
	if tracks == nil {
		tracks = []string{}
	}
	trackIDs, err := json.Marshal(tracks)
	if err != nil {
		return false, err
	}
	err = d.db.QueryRowContext(ctx, `
		INSERT INTO playlists (name, external_id, track_ids) VALUES (?, ?, ?)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id
	`, playlist.Name, playlist.ExternalID, string(trackIDs)).Scan(&playlist.ID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	err = d.db.QueryRowContext(ctx, `SELECT id FROM playlists WHERE external_id = ?`, playlist.ExternalID).Scan(&playlist.ID)
	return false, err
}

// GetPlaylist gets a playlist by its upstream id.
func (d *SqliteLibrary) GetPlaylist(ctx context.Context, externalID string) (*music.Playlist, error) {
	playlist := &music.Playlist{}
	var trackIDs string
	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, external_id, track_ids FROM playlists WHERE external_id = ?
	`, externalID).Scan(&playlist.ID, &playlist.Name, &playlist.ExternalID, &trackIDs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, music.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(trackIDs), &playlist.TrackExternalIDs); err != nil {
		return nil, fmt.Errorf("corrupt track list for playlist %s: %w", externalID, err)
	}
	return playlist, nil
}

// GetPlaylistExternalIDs lists every stored playlist in insertion order.
func (d *SqliteLibrary) GetPlaylistExternalIDs(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT external_id FROM playlists ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeletePlaylist removes the playlist stored under externalID, if any.
func (d *SqliteLibrary) DeletePlaylist(ctx context.Context, externalID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM playlists WHERE external_id = ?`, externalID)
	return err
}

// UpsertPairs inserts new edges at count 1 and bumps existing ones by 1.
// The whole batch is one transaction.
func (d *SqliteLibrary) UpsertPairs(ctx context.Context, pairs []music.Pair) error {
	pairs, err := music.CanonicalPairs(pairs)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO track_pairs (low_id, high_id, count)
		SELECT l.value, h.value, 1
		FROM json_each(?) AS l
		JOIN json_each(?) AS h ON h.key = l.key
		WHERE true
		ON CONFLICT (low_id, high_id) DO UPDATE SET count = track_pairs.count + 1
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for start := 0; start < len(pairs); start += pairChunkSize {
		end := min(start+pairChunkSize, len(pairs))
		lows, highs := splitPairs(pairs[start:end])
		lowsJSON, err := json.Marshal(lows)
		if err != nil {
			return err
		}
		highsJSON, err := json.Marshal(highs)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, string(lowsJSON), string(highsJSON)); err != nil {
			return fmt.Errorf("upsert pairs %d-%d: %w", start, end, err)
		}
	}

	return tx.Commit()
}

// GetEdge returns the edge for pair.
func (d *SqliteLibrary) GetEdge(ctx context.Context, pair music.Pair) (*music.Edge, error) {
	edge := &music.Edge{Pair: pair}
	err := d.db.QueryRowContext(ctx, `
		SELECT count FROM track_pairs WHERE low_id = ? AND high_id = ?
	`, pair.Low, pair.High).Scan(&edge.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, music.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// Neighbors returns up to topK neighbors of trackID ordered by count.
func (d *SqliteLibrary) Neighbors(ctx context.Context, trackID int64, topK int) ([]music.Neighbor, error) {
	if topK <= 0 {
		return nil, nil
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT high_id AS neighbor, count FROM track_pairs WHERE low_id = ?
		UNION ALL
		SELECT low_id AS neighbor, count FROM track_pairs WHERE high_id = ?
		ORDER BY count DESC, neighbor ASC
		LIMIT ?
	`, trackID, trackID, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNeighbors(rows)
}

// FindUnenriched returns identities without metadata plus the full count of them.
func (d *SqliteLibrary) FindUnenriched(ctx context.Context, query music.UnenrichedQuery) (*music.UnenrichedPage, error) {
	rows, err := d.db.QueryContext(ctx, `
		WITH missing AS (
			SELECT t.id, t.external_id
			FROM tracks t
			LEFT JOIN track_metadata m ON m.track_id = t.id
			WHERE m.track_id IS NULL
		),
		page AS (
			SELECT id, external_id FROM missing
			WHERE id > ? AND (? <= 0 OR id <= ?)
			ORDER BY id
			LIMIT ?
		)
		SELECT (SELECT COUNT(*) FROM missing), page.id, page.external_id
		FROM (SELECT 1) AS one
		LEFT JOIN page ON true
		ORDER BY page.id
	`, query.After, query.Until, query.Until, max(query.Limit, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUnenriched(rows)
}

// BulkInsertMetadata inserts records in one statement; conflicting records are ignored.
func (d *SqliteLibrary) BulkInsertMetadata(ctx context.Context, records []music.Metadata) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return 0, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO track_metadata (track_id, external_id, display_name, performer_name, performer_external_id, release_name)
		SELECT json_extract(r.value, '$.track_id'),
			json_extract(r.value, '$.external_id'),
			json_extract(r.value, '$.display_name'),
			json_extract(r.value, '$.performer_name'),
			json_extract(r.value, '$.performer_external_id'),
			json_extract(r.value, '$.release_name')
		FROM json_each(?) AS r
		WHERE true
		ON CONFLICT DO NOTHING
	`, string(payload))
	if err != nil {
		return 0, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(inserted), nil
}

// GetMetadata returns the metadata of every enriched track in trackIDs.
func (d *SqliteLibrary) GetMetadata(ctx context.Context, trackIDs []int64) (map[int64]music.Metadata, error) {
	result := make(map[int64]music.Metadata, len(trackIDs))
	if len(trackIDs) == 0 {
		return result, nil
	}
	ids, err := json.Marshal(trackIDs)
	if err != nil {
		return nil, err
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT track_id, external_id, display_name, performer_name, performer_external_id, release_name
		FROM track_metadata
		WHERE track_id IN (SELECT value FROM json_each(?))
	`, string(ids))
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
func (d *SqliteLibrary) SearchCandidates(ctx context.Context, needle string) ([]music.Candidate, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT track_id, external_id, display_name, performer_name, performer_external_id, release_name,
			COALESCE(similarity(performer_name || ' - ' || display_name, ?1), 0)
		FROM track_metadata
		WHERE instr(casefold(display_name), ?1) > 0
			OR instr(casefold(performer_name), ?1) > 0
			OR instr(casefold(performer_name || ' - ' || display_name), ?1) > 0
	`, needle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// Stats counts the rows of every table.
func (d *SqliteLibrary) Stats(ctx context.Context) (*music.Stats, error) {
	stats := &music.Stats{}
	err := d.db.QueryRowContext(ctx, `
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
func (d *SqliteLibrary) Reset(ctx context.Context) error {
	slog.Warn("Dropping all tables")
	_, err := d.db.ExecContext(ctx, `
		DROP TABLE IF EXISTS track_metadata;
		DROP TABLE IF EXISTS track_pairs;
		DROP TABLE IF EXISTS playlists;
		DROP TABLE IF EXISTS tracks;
	`)
	if err != nil {
		return err
	}
	return createTables(d.db)
}

// Close closes the database handle.
func (d *SqliteLibrary) Close() error {
	return d.db.Close()
}
