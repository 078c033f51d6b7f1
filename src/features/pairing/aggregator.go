package pairing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/contre95/playgraph/src/features/metrics"
	"github.com/contre95/playgraph/src/music"
)

// AggregateResult reports what one playlist contributed to the graph.
type AggregateResult struct {
	DistinctTracks int `json:"distinct_tracks"`
	Pairs          int `json:"pairs"`
}

// Aggregator turns the resolved tracks of a playlist into edge increments.
type Aggregator struct {
	store music.PairStore
}

// NewAggregator creates a new pair aggregator.
func NewAggregator(store music.PairStore) *Aggregator {
	return &Aggregator{store: store}
}

// Aggregate increments the edge of every unordered pair of distinct ids by
// one, in a single atomic upsert. Duplicate ids count once and fewer than two
// distinct ids is a no-op. On error nothing was applied and the whole call
// can be retried.
func (a *Aggregator) Aggregate(ctx context.Context, ids []int64) (AggregateResult, error) {
	unique := music.UniqueIDs(ids)
	result := AggregateResult{DistinctTracks: len(unique)}
	pairs := music.Combinations(unique)
	if len(pairs) == 0 {
		slog.Debug("Not enough tracks to pair", "tracks", len(unique))
		return result, nil
	}
	if err := a.store.UpsertPairs(ctx, pairs); err != nil {
		return result, fmt.Errorf("failed to upsert %d pairs: %w", len(pairs), err)
	}
	result.Pairs = len(pairs)
	metrics.PairsUpsertedTotal.Add(float64(len(pairs)))
	slog.Debug("Aggregated playlist pairs", "tracks", len(unique), "pairs", len(pairs))
	return result, nil
}

// Edge returns the co-occurrence record for two internal ids.
func (a *Aggregator) Edge(ctx context.Context, x, y int64) (*music.Edge, error) {
	pair, ok := music.NewPair(x, y)
	if !ok {
		return nil, fmt.Errorf("%w: a track cannot pair with itself: %d", music.ErrInvalidInput, x)
	}
	return a.store.GetEdge(ctx, pair)
}
