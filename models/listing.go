package models

import (
	"strconv"
	"time"
)

// RawListing holds unprocessed listing data exactly as a source produced it.
// Numeric fields stay strings until the cleaner parses them.
type RawListing struct {
	LotNumber   string
	Title       string
	Make        string
	Model       string
	Year        string
	CurrentBid  string
	BuyNowPrice string
	Damage      string
	TitleStatus string
	Location    string
	SaleDate    string
	ImageURL    string
	Link        string
	Source      string
	ScrapedAt   time.Time
}

// Offer is one unique auction lot as persisted in the offer store.
type Offer struct {
	ID          int64    `json:"offer_id"`
	LotNumber   string   `json:"lot_number"`
	Make        string   `json:"make"`
	Model       string   `json:"model"`
	Year        int      `json:"year"`
	CurrentBid  float64  `json:"current_bid"`
	BuyNowPrice *float64 `json:"buy_now_price"`
	Damage      string   `json:"damage"`
	TitleStatus string   `json:"title_status"`
	Location    string   `json:"location"`
	SaleDate    string   `json:"sale_date"`
	ImageURL    string   `json:"image_url"`
	Link        string   `json:"link"`
	Source      string   `json:"source"`

	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
	IsAnalyzed  bool      `json:"is_analyzed"`

	// DetectedDamage is filled by the damage detector before scoring and is
	// never persisted.
	DetectedDamage []string `json:"detected_damage,omitempty"`
}

// Title returns the "2022 Toyota Camry" display name of the offer.
func (o *Offer) Title() string {
	return strconv.Itoa(o.Year) + " " + o.Make + " " + o.Model
}
