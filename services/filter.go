package services

import (
	"fmt"
	"strings"

	"salvage-radar/config"
	"salvage-radar/models"
)

// OpportunityFilter decides which offers are worth scoring and which scored
// offers are hot.
type OpportunityFilter struct {
	maxBid         float64
	minYear        int
	hotThreshold   float64
	excludedDamage []string
	excludedTitles []string
}

func NewOpportunityFilter(cfg config.FilterConfig) *OpportunityFilter {
	return &OpportunityFilter{
		maxBid:         cfg.MaxBid,
		minYear:        cfg.MinYear,
		hotThreshold:   cfg.HotThreshold,
		excludedDamage: upperAll(cfg.ExcludedDamage),
		excludedTitles: upperAll(cfg.ExcludedTitles),
	}
}

// Validate checks the record-level rules an offer must pass before it may be
// stored.
func (f *OpportunityFilter) Validate(o *models.Offer) (bool, string) {
	if o.CurrentBid < 0 {
		return false, fmt.Sprintf("negative bid %.2f", o.CurrentBid)
	}
	return true, ""
}

// Admit reports whether offer should be scored. A rejected offer comes with
// the reason.
func (f *OpportunityFilter) Admit(o *models.Offer) (bool, string) {
	if ok, reason := f.Validate(o); !ok {
		return false, reason
	}

	switch {
	case f.maxBid > 0 && o.CurrentBid > f.maxBid:
		return false, fmt.Sprintf("bid %.0f above limit %.0f", o.CurrentBid, f.maxBid)
	case o.Year < f.minYear:
		return false, fmt.Sprintf("year %d before %d", o.Year, f.minYear)
	case o.BuyNowPrice != nil && *o.BuyNowPrice < o.CurrentBid:
		return false, fmt.Sprintf("buy now %.0f below current bid %.0f", *o.BuyNowPrice, o.CurrentBid)
	}

	if hit := containsAny(o.Damage, f.excludedDamage); hit != "" {
		return false, "excluded damage " + hit
	}
	if hit := containsAny(o.TitleStatus, f.excludedTitles); hit != "" {
		return false, "excluded title " + hit
	}
	return true, ""
}

// IsHot reports whether a scored offer should be flagged for action.
func (f *OpportunityFilter) IsHot(a *models.Analysis) bool {
	return a != nil &&
		a.Recommendation == models.RecommendationBuy &&
		a.ProfitMargin > f.hotThreshold
}

func containsAny(s string, needles []string) string {
	s = strings.ToUpper(s)
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return n
		}
	}
	return ""
}

func upperAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
