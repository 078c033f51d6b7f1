package database

import (
	"database/sql"

	"github.com/contre95/playgraph/src/music"
)

// rows is satisfied by both *sql.Rows and pgx.Rows.
type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanIdentities(r rows) ([]music.TrackIdentity, error) {
	var identities []music.TrackIdentity
	for r.Next() {
		var ti music.TrackIdentity
		if err := r.Scan(&ti.ID, &ti.ExternalID); err != nil {
			return nil, err
		}
		identities = append(identities, ti)
	}
	return identities, r.Err()
}

func scanNeighbors(r rows) ([]music.Neighbor, error) {
	var neighbors []music.Neighbor
	for r.Next() {
		var n music.Neighbor
		if err := r.Scan(&n.TrackID, &n.Count); err != nil {
			return nil, err
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, r.Err()
}

// scanUnenriched reads (total, id, external_id) rows where a single row with
// NULL id means an empty sample.
func scanUnenriched(r rows) (*music.UnenrichedPage, error) {
	page := &music.UnenrichedPage{Sample: []music.TrackIdentity{}}
	for r.Next() {
		var id sql.NullInt64
		var externalID sql.NullString
		if err := r.Scan(&page.Total, &id, &externalID); err != nil {
			return nil, err
		}
		if id.Valid {
			page.Sample = append(page.Sample, music.TrackIdentity{ID: id.Int64, ExternalID: externalID.String})
		}
	}
	return page, r.Err()
}

func scanCandidates(r rows) ([]music.Candidate, error) {
	var candidates []music.Candidate
	for r.Next() {
		var c music.Candidate
		if err := r.Scan(&c.TrackID, &c.ExternalID, &c.DisplayName, &c.PerformerName,
			&c.PerformerExternalID, &c.ReleaseName, &c.Similarity); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, r.Err()
}

func splitPairs(pairs []music.Pair) (lows, highs []int64) {
	lows = make([]int64, len(pairs))
	highs = make([]int64, len(pairs))
	for i, p := range pairs {
		lows[i] = p.Low
		highs[i] = p.High
	}
	return lows, highs
}
