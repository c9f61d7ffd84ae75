package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"salvage-radar/advisory"
	"salvage-radar/config"
	"salvage-radar/damage"
	"salvage-radar/metrics"
	"salvage-radar/models"
	"salvage-radar/scraper"
	"salvage-radar/storage"
	"salvage-radar/utils"
)

// ErrNoListings is returned by Run when collection produced nothing.
var ErrNoListings = scraper.ErrNoListings

// Collector gathers raw listings from every configured source.
type Collector interface {
	Collect(ctx context.Context, modelFilter string) ([]*models.RawListing, error)
}

// HotOfferNotifier accepts hot offers for asynchronous delivery.
type HotOfferNotifier interface {
	Enqueue(offer *models.Offer, analysis *models.Analysis) bool
}

// Deps are the collaborators of a Pipeline. Detector, Notifier, RawWriter
// and Metrics are optional.
type Deps struct {
	Collector Collector
	Store     storage.OfferStore
	Scorer    advisory.Scorer
	Detector  damage.Detector
	Notifier  HotOfferNotifier
	RawWriter storage.RawListingWriter
	Metrics   *metrics.Metrics
}

// Pipeline runs one ingestion pass: collect, clean, dedup, filter, score,
// classify and summarize.
type Pipeline struct {
	deps     Deps
	cleaner  *Cleaner
	filter   *OpportunityFilter
	logger   *utils.Logger
	lotLocks *utils.KeyedMutex

	modelFilter        string
	qualifiedMinMargin float64
	maxConcurrency     int
	rateLimitMs        int

	now func() time.Time
}

func NewPipeline(cfg *config.Config, deps Deps, logger *utils.Logger) *Pipeline {
	if deps.Detector == nil {
		deps.Detector = damage.NopDetector{}
	}
	return &Pipeline{
		deps:               deps,
		cleaner:            NewCleaner(logger),
		filter:             NewOpportunityFilter(cfg.Filter),
		logger:             logger,
		lotLocks:           utils.NewKeyedMutex(),
		modelFilter:        cfg.Sources.ModelFilter,
		qualifiedMinMargin: cfg.Filter.QualifiedMinMargin,
		maxConcurrency:     cfg.MaxConcurrency,
		rateLimitMs:        cfg.RateLimitMs,
		now:                time.Now,
	}
}

type scoredOffer struct {
	offer    *models.Offer
	analysis *models.Analysis
	attached bool
}

// Run executes one pass. The only failure is ErrNoListings (wrapped); every
// per-offer problem is logged and the run continues.
func (p *Pipeline) Run(ctx context.Context) (*models.RunReport, error) {
	start := p.now()
	runID := uuid.NewString()
	p.logger.Info("[pipeline] Run %s started (model filter %q)", runID, p.modelFilter)

	raw, err := p.deps.Collector.Collect(ctx, p.modelFilter)
	if err != nil {
		p.deps.Metrics.RunFailed()
		return nil, fmt.Errorf("pipeline: collect: %w", err)
	}
	if p.deps.RawWriter != nil {
		if err := p.deps.RawWriter.WriteRaw(raw); err != nil {
			p.logger.Warn("[pipeline] Raw snapshot failed: %v", err)
		}
	}

	offers := p.cleaner.Clean(raw)
	report := &models.RunReport{
		RunID:      runID,
		TotalFound: len(offers),
		ScrapeDate: start.UTC(),
		BestOffers: []models.FlatOffer{},
		HotOffers:  []models.FlatOffer{},
		Skipped:    []models.SkippedOffer{},
	}

	valid := make([]*models.Offer, 0, len(offers))
	for _, o := range offers {
		if ok, reason := p.filter.Validate(o); !ok {
			p.logger.Warn("[pipeline] Lot %s rejected: %s", o.LotNumber, reason)
			report.Skipped = append(report.Skipped, models.SkippedOffer{LotNumber: o.LotNumber, Reason: reason})
			continue
		}
		valid = append(valid, o)
	}

	fresh := p.dedup(ctx, valid)
	report.NewAdded = len(fresh)
	p.logger.Info("[pipeline] %d offers found, %d new", len(offers), len(fresh))

	var admitted []*models.Offer
	for _, o := range fresh {
		if ok, reason := p.filter.Admit(o); !ok {
			p.logger.Debug("[pipeline] Lot %s skipped: %s", o.LotNumber, reason)
			report.Skipped = append(report.Skipped, models.SkippedOffer{LotNumber: o.LotNumber, Reason: reason})
			continue
		}
		admitted = append(admitted, o)
	}

	for _, s := range p.score(ctx, admitted) {
		if !s.attached {
			continue
		}
		report.Analyzed++
		if advisory.IsFallback(s.analysis) {
			report.FallbackCount++
		}
		if p.filter.IsHot(s.analysis) {
			p.logger.Info("[pipeline] HOT: lot %s %s, margin %.0f%%",
				s.offer.LotNumber, s.offer.Title(), s.analysis.ProfitMargin*100)
			report.HotOffers = append(report.HotOffers, models.Flatten(s.offer, s.analysis))
			if p.deps.Notifier != nil {
				p.deps.Notifier.Enqueue(s.offer, s.analysis)
			}
		}
	}

	qualified, err := p.deps.Store.ListQualified(ctx, p.qualifiedMinMargin)
	if err != nil {
		p.logger.Error("[pipeline] Listing qualified offers failed: %v", err)
		qualified = nil
	}
	for _, q := range qualified {
		report.BestOffers = append(report.BestOffers, models.Flatten(q.Offer, q.Analysis))
	}

	report.HotCount = len(report.HotOffers)
	report.BestCount = len(report.BestOffers)
	report.SkippedCount = len(report.Skipped)
	report.DurationSeconds = p.now().Sub(start).Seconds()

	p.deps.Metrics.ObserveRun(report)
	p.logger.Info("[pipeline] Run %s done: found %d, new %d, analyzed %d, hot %d, best %d",
		runID, report.TotalFound, report.NewAdded, report.Analyzed, report.HotCount, report.BestCount)
	return report, nil
}

// dedup inserts every unseen offer and returns the ones that were new. The
// exists/insert pair for a lot runs under that lot's lock.
func (p *Pipeline) dedup(ctx context.Context, offers []*models.Offer) []*models.Offer {
	var fresh []*models.Offer
	for _, o := range offers {
		if p.admitNew(ctx, o) {
			fresh = append(fresh, o)
		}
	}
	return fresh
}

func (p *Pipeline) admitNew(ctx context.Context, o *models.Offer) bool {
	unlock := p.lotLocks.Lock(o.LotNumber)
	defer unlock()

	exists, err := p.deps.Store.Exists(ctx, o.LotNumber)
	if err != nil {
		p.logger.Error("[pipeline] Exists check for lot %s failed: %v", o.LotNumber, err)
		return false
	}
	if exists {
		return false
	}
	return p.deps.Store.Insert(ctx, o)
}

// score runs detection, scoring and attachment for every offer on the
// worker pool. Results keep the order of offers.
func (p *Pipeline) score(ctx context.Context, offers []*models.Offer) []scoredOffer {
	results := make([]scoredOffer, len(offers))
	pool := utils.NewWorkerPool(p.maxConcurrency, p.rateLimitMs)

	for i, o := range offers {
		pool.Submit(func() {
			if o.ImageURL != "" {
				labels, err := p.deps.Detector.Detect(ctx, []string{o.ImageURL})
				if err != nil {
					p.logger.Warn("[pipeline] Damage detection for lot %s failed: %v", o.LotNumber, err)
				}
				o.DetectedDamage = labels
			}

			a := p.deps.Scorer.Score(ctx, o)
			results[i] = scoredOffer{
				offer:    o,
				analysis: a,
				attached: p.deps.Store.AttachAnalysis(ctx, o.LotNumber, a),
			}
		})
	}
	pool.Wait()

	return results
}
