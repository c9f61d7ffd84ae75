package models

import "time"

// Recommendation is the oracle's verdict on an offer.
type Recommendation string

const (
	RecommendationBuy     Recommendation = "BUY"
	RecommendationAvoid   Recommendation = "AVOID"
	RecommendationCaution Recommendation = "CAUTION"
)

// Valid reports whether r is one of the known recommendations.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendationBuy, RecommendationAvoid, RecommendationCaution:
		return true
	}
	return false
}

const (
	MinRiskScore = 1
	MaxRiskScore = 10
)

// Analysis is the scored assessment of one offer. Monetary values are PLN
// except MaxBidPrice, which is in the auction currency like CurrentBid.
type Analysis struct {
	ID               int64          `json:"analysis_id"`
	OfferID          int64          `json:"offer_id"`
	MarketValue      float64        `json:"market_value_pln"`
	RepairCost       float64        `json:"repair_cost_pln"`
	TransportCost    float64        `json:"transport_cost_pln"`
	CustomsCost      float64        `json:"customs_cost_pln"`
	TotalCost        float64        `json:"total_cost_pln"`
	PotentialProfit  float64        `json:"potential_profit_pln"`
	ProfitMargin     float64        `json:"profit_margin"`
	RiskScore        int            `json:"risk_score"`
	Recommendation   Recommendation `json:"recommendation"`
	MaxBidPrice      float64        `json:"max_bid_price"`
	DetailedAnalysis string         `json:"detailed_analysis"`
	AnalysisDate     time.Time      `json:"analysis_date"`
}

// ClampRisk bounds a raw risk score to [MinRiskScore, MaxRiskScore].
func ClampRisk(score int) int {
	if score < MinRiskScore {
		return MinRiskScore
	}
	if score > MaxRiskScore {
		return MaxRiskScore
	}
	return score
}

// QualifiedOffer pairs an offer with the analysis that qualified it.
type QualifiedOffer struct {
	Offer    *Offer
	Analysis *Analysis
}
