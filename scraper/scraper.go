package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"salvage-radar/metrics"
	"salvage-radar/models"
	"salvage-radar/utils"
)

// ErrNoListings is returned when no source produced a single listing.
var ErrNoListings = errors.New("scraper: no listings collected")

// Source produces raw listings, optionally narrowed to one model.
type Source interface {
	Name() string
	Fetch(ctx context.Context, modelFilter string) ([]*models.RawListing, error)
}

// Collector fans out to the primary source and every auxiliary source and
// joins their results. Each source runs under its own deadline; a source
// that fails or expires contributes nothing.
type Collector struct {
	sources []Source
	timeout time.Duration
	logger  *utils.Logger
	metrics *metrics.Metrics
}

// NewCollector creates a Collector. primary may be nil when only auxiliary
// feeds are configured. A zero timeout disables the per-source deadline.
func NewCollector(primary Source, aux []Source, timeout time.Duration, logger *utils.Logger, m *metrics.Metrics) *Collector {
	sources := make([]Source, 0, len(aux)+1)
	if primary != nil {
		sources = append(sources, primary)
	}
	sources = append(sources, aux...)

	return &Collector{
		sources: sources,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Collect returns the merged listings: primary first, then the auxiliary
// sources in configuration order. It fails only when the merged list is
// empty, with ErrNoListings joined to every per-source error.
func (c *Collector) Collect(ctx context.Context, modelFilter string) ([]*models.RawListing, error) {
	results := make([][]*models.RawListing, len(c.sources))
	errs := make([]error, len(c.sources))

	var g errgroup.Group
	for i, src := range c.sources {
		g.Go(func() error {
			start := time.Now()
			listings, err := c.fetch(ctx, src, modelFilter)
			if err != nil {
				c.logger.Warn("[collector] Source %s failed after %v: %v",
					src.Name(), time.Since(start).Round(time.Millisecond), err)
				c.metrics.SourceFailed(src.Name())
				errs[i] = fmt.Errorf("%s: %w", src.Name(), err)
				return nil
			}

			for _, l := range listings {
				if l.Source == "" {
					l.Source = src.Name()
				}
			}
			c.logger.Info("[collector] Source %s returned %d listings", src.Name(), len(listings))
			results[i] = listings
			return nil
		})
	}
	_ = g.Wait()

	var merged []*models.RawListing
	for _, r := range results {
		merged = append(merged, r...)
	}

	if len(merged) == 0 {
		return nil, errors.Join(append([]error{ErrNoListings}, errs...)...)
	}
	return merged, nil
}

// fetch runs one source under the collector deadline. The result is
// abandoned when the deadline passes even if the source ignores ctx.
func (c *Collector) fetch(ctx context.Context, src Source, modelFilter string) ([]*models.RawListing, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	type result struct {
		listings []*models.RawListing
		err      error
	}
	done := make(chan result, 1)
	go func() {
		listings, err := src.Fetch(ctx, modelFilter)
		done <- result{listings, err}
	}()

	select {
	case r := <-done:
		return r.listings, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
