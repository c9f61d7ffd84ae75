package storage

import (
	"context"

	"salvage-radar/models"
)

// OfferStore is the persistent home of offers and their analyses.
//
// Write operations report failure as false and log the cause; they never
// return an error, so a single bad record cannot abort a batch.
type OfferStore interface {
	Exists(ctx context.Context, lotNumber string) (bool, error)
	Insert(ctx context.Context, offer *models.Offer) bool
	AttachAnalysis(ctx context.Context, lotNumber string, analysis *models.Analysis) bool
	ListUnanalyzed(ctx context.Context) ([]*models.Offer, error)
	ListQualified(ctx context.Context, minProfitMargin float64) ([]models.QualifiedOffer, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// RawListingWriter is the interface for persisting unprocessed scraped data.
type RawListingWriter interface {
	WriteRaw(listings []*models.RawListing) error
	Close() error
}

// ReportWriter persists a finished run report.
type ReportWriter interface {
	WriteReport(report *models.RunReport) error
}

// Stats are row counts of the offer store.
type Stats struct {
	Offers         int `json:"offers"`
	AnalyzedOffers int `json:"analyzed_offers"`
	Analyses       int `json:"analyses"`
}
