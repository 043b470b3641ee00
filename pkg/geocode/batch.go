package geocode

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Coordinate is a point to reverse geocode.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// BatchResult pairs a Coordinate with its outcome.
type BatchResult struct {
	Coordinate Coordinate     `json:"coordinate"`
	Result     *ReverseResult `json:"result,omitempty"`
	Err        error          `json:"-"`
}

// ReverseBatch reverse geocodes coords with up to concurrency lookups in
// flight. Cache hits return immediately; misses queue on the shared rate
// limiter. A failed item does not abort the batch. Results keep input order.
func (c *Client) ReverseBatch(ctx context.Context, coords []Coordinate, concurrency int) ([]BatchResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]BatchResult, len(coords))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var hits, failed atomic.Int64
	for i, coord := range coords {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = BatchResult{Coordinate: coord, Err: err}
				return err
			}
			res, err := c.Reverse(gctx, coord.Lat, coord.Lng)
			results[i] = BatchResult{Coordinate: coord, Result: res, Err: err}
			switch {
			case err != nil:
				failed.Add(1)
				zap.L().Warn("geocode: batch item failed",
					zap.Float64("lat", coord.Lat),
					zap.Float64("lng", coord.Lng),
					zap.Error(err),
				)
			case res.CacheHit:
				hits.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, eris.Wrap(err, "geocode: batch reverse")
	}

	zap.L().Info("geocode: batch complete",
		zap.Int("total", len(coords)),
		zap.Int64("cache_hits", hits.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return results, nil
}
