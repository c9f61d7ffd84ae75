package models

import "time"

// FlatOffer is the flattened offer+analysis record written to run artifacts.
type FlatOffer struct {
	LotNumber        string         `json:"lot_number"`
	Make             string         `json:"make"`
	Model            string         `json:"model"`
	Year             int            `json:"year"`
	CurrentBid       float64        `json:"current_bid"`
	BuyNowPrice      *float64       `json:"buy_now_price"`
	Damage           string         `json:"damage"`
	TitleStatus      string         `json:"title_status"`
	Location         string         `json:"location"`
	SaleDate         string         `json:"sale_date"`
	ImageURL         string         `json:"image_url"`
	Link             string         `json:"link"`
	FirstSeen        time.Time      `json:"first_seen"`
	MarketValue      float64        `json:"market_value_pln"`
	RepairCost       float64        `json:"repair_cost_pln"`
	TransportCost    float64        `json:"transport_cost_pln"`
	CustomsCost      float64        `json:"customs_cost_pln"`
	TotalCost        float64        `json:"total_cost_pln"`
	Profit           float64        `json:"potential_profit_pln"`
	ProfitMargin     float64        `json:"profit_margin"`
	RiskScore        int            `json:"risk_score"`
	Recommendation   Recommendation `json:"recommendation"`
	MaxBidPrice      float64        `json:"max_bid_price"`
	DetailedAnalysis string         `json:"detailed_analysis"`
}

// Flatten merges an offer and its analysis into one FlatOffer. A nil
// analysis leaves the analysis columns zero.
func Flatten(o *Offer, a *Analysis) FlatOffer {
	f := FlatOffer{
		LotNumber:   o.LotNumber,
		Make:        o.Make,
		Model:       o.Model,
		Year:        o.Year,
		CurrentBid:  o.CurrentBid,
		BuyNowPrice: o.BuyNowPrice,
		Damage:      o.Damage,
		TitleStatus: o.TitleStatus,
		Location:    o.Location,
		SaleDate:    o.SaleDate,
		ImageURL:    o.ImageURL,
		Link:        o.Link,
		FirstSeen:   o.FirstSeen,
	}
	if a != nil {
		f.MarketValue = a.MarketValue
		f.RepairCost = a.RepairCost
		f.TransportCost = a.TransportCost
		f.CustomsCost = a.CustomsCost
		f.TotalCost = a.TotalCost
		f.Profit = a.PotentialProfit
		f.ProfitMargin = a.ProfitMargin
		f.RiskScore = a.RiskScore
		f.Recommendation = a.Recommendation
		f.MaxBidPrice = a.MaxBidPrice
		f.DetailedAnalysis = a.DetailedAnalysis
	}
	return f
}

// SkippedOffer records an offer the admission filter turned away.
type SkippedOffer struct {
	LotNumber string `json:"lot_number"`
	Reason    string `json:"reason"`
}

// RunReport is the summary of one pipeline run. It is assembled once at the
// end of the run and not modified afterwards.
type RunReport struct {
	RunID           string         `json:"run_id"`
	TotalFound      int            `json:"total_vehicles_found"`
	NewAdded        int            `json:"new_vehicles_added"`
	Analyzed        int            `json:"vehicles_analyzed"`
	HotCount        int            `json:"hot_offers_count"`
	BestCount       int            `json:"best_offers_count"`
	SkippedCount    int            `json:"skipped_count"`
	FallbackCount   int            `json:"fallback_count"`
	ScrapeDate      time.Time      `json:"scrape_date"`
	DurationSeconds float64        `json:"duration_seconds"`
	BestOffers      []FlatOffer    `json:"best_offers"`
	HotOffers       []FlatOffer    `json:"hot_offers"`
	Skipped         []SkippedOffer `json:"skipped"`
}

// Reconciles reports whether the run counters are mutually consistent.
func (r *RunReport) Reconciles() bool {
	return r.NewAdded <= r.TotalFound &&
		r.Analyzed <= r.NewAdded &&
		r.HotCount <= r.Analyzed &&
		r.HotCount == len(r.HotOffers) &&
		r.BestCount == len(r.BestOffers)
}
