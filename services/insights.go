package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"salvage-radar/models"
	"salvage-radar/utils"
)

// Insights are aggregate figures over the best offers of a run.
type Insights struct {
	AverageMargin float64 // percent
	MedianMargin  float64 // percent
	AverageRisk   float64
	TotalProfit   float64
	BestOffer     *models.FlatOffer
	OffersByMake  map[string]int
}

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(r *models.RunReport) *Insights {
	in := &Insights{OffersByMake: make(map[string]int)}
	if r == nil || len(r.BestOffers) == 0 {
		return in
	}

	margins := make([]float64, len(r.BestOffers))
	risks := make([]float64, len(r.BestOffers))
	for i := range r.BestOffers {
		o := &r.BestOffers[i]
		margins[i] = o.ProfitMargin
		risks[i] = float64(o.RiskScore)
		in.TotalProfit += o.Profit
		if o.Make != "" {
			in.OffersByMake[strings.ToUpper(o.Make)]++
		}
		if in.BestOffer == nil || o.ProfitMargin > in.BestOffer.ProfitMargin {
			in.BestOffer = o
		}
	}

	in.AverageMargin = round2(stat.Mean(margins, nil) * 100)
	in.AverageRisk = round2(stat.Mean(risks, nil))
	sort.Float64s(margins)
	in.MedianMargin = round2(stat.Quantile(0.5, stat.Empirical, margins, nil) * 100)
	in.TotalProfit = round2(in.TotalProfit)
	return in
}

// Print writes the terminal summary of a run.
func (s *InsightService) Print(w io.Writer, r *models.RunReport, in *Insights) {
	sep := strings.Repeat("═", 60)
	thin := strings.Repeat("─", 60)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🚗 SALVAGE AUCTION RUN SUMMARY\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Run ID            : %s\n", r.RunID)
	fmt.Fprintf(w, "  Vehicles found    : \033[1m%d\033[0m\n", r.TotalFound)
	fmt.Fprintf(w, "  New vehicles      : \033[1m%d\033[0m\n", r.NewAdded)
	fmt.Fprintf(w, "  Analyzed          : \033[1m%d\033[0m (fallback %d)\n", r.Analyzed, r.FallbackCount)
	fmt.Fprintf(w, "  Skipped by filter : \033[1m%d\033[0m\n", r.SkippedCount)
	fmt.Fprintf(w, "  Hot offers        : \033[1;31m%d\033[0m\n", r.HotCount)
	fmt.Fprintf(w, "  Best offers       : \033[1;32m%d\033[0m\n", r.BestCount)
	fmt.Fprintf(w, "  Duration          : %.1fs\n", r.DurationSeconds)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Hot Offers\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.HotOffers) == 0 {
		fmt.Fprintf(w, "  No hot offers this run\n")
	}
	for i, o := range r.HotOffers {
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %-36s \033[1;32m%5.1f%%\033[0m  lot %s\n",
			i+1, truncate(fmt.Sprintf("%d %s %s", o.Year, o.Make, o.Model), 34), o.ProfitMargin*100, o.LotNumber)
		fmt.Fprintf(w, "     bid $%.0f | max bid $%.0f | risk %d/10 | %s\n",
			o.CurrentBid, o.MaxBidPrice, o.RiskScore, o.Link)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Best Offers (all runs)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if in.BestOffer == nil {
		fmt.Fprintf(w, "  No qualified offers yet\n")
	} else {
		fmt.Fprintf(w, "  Average margin : \033[1;32m%.2f%%\033[0m\n", in.AverageMargin)
		fmt.Fprintf(w, "  Median margin  : %.2f%%\n", in.MedianMargin)
		fmt.Fprintf(w, "  Average risk   : %.2f/10\n", in.AverageRisk)
		fmt.Fprintf(w, "  Total profit   : %.0f PLN\n", in.TotalProfit)
		fmt.Fprintf(w, "  Best           : lot %s, %d %s %s, %.1f%%\n",
			in.BestOffer.LotNumber, in.BestOffer.Year, in.BestOffer.Make, in.BestOffer.Model,
			in.BestOffer.ProfitMargin*100)
	}
	fmt.Fprintln(w)

	if len(in.OffersByMake) > 0 {
		fmt.Fprintf(w, "\033[1;33m  Best Offers by Make\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)

		type makeCount struct {
			make  string
			count int
		}
		var makes []makeCount
		for m, cnt := range in.OffersByMake {
			makes = append(makes, makeCount{m, cnt})
		}
		sort.Slice(makes, func(i, j int) bool {
			if makes[i].count != makes[j].count {
				return makes[i].count > makes[j].count
			}
			return makes[i].make < makes[j].make
		})
		for _, mc := range makes {
			bar := strings.Repeat("█", mc.count)
			fmt.Fprintf(w, "  %-20s %s (%d)\n", truncate(mc.make, 18), bar, mc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func round2(f float64) float64 {
	if f < 0 {
		return -round2(-f)
	}
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
