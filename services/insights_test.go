package services

import (
	"bytes"
	"strings"
	"testing"

	"salvage-radar/models"
)

func sampleRunReport() *models.RunReport {
	best := []models.FlatOffer{
		{LotNumber: "45678912", Make: "BMW", Model: "530i", Year: 2020, ProfitMargin: 0.32, RiskScore: 3, Profit: 32500},
		{LotNumber: "2", Make: "Toyota", Model: "Camry", Year: 2022, ProfitMargin: 0.28, RiskScore: 4, Profit: 20000},
		{LotNumber: "3", Make: "bmw", Model: "X5", Year: 2019, ProfitMargin: 0.26, RiskScore: 5, Profit: 15000},
	}
	return &models.RunReport{
		RunID:      "run-1",
		TotalFound: 8,
		NewAdded:   3,
		Analyzed:   3,
		HotCount:   1,
		BestCount:  len(best),
		BestOffers: best,
		HotOffers:  best[:1],
	}
}

func TestInsightAverages(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	in := svc.Generate(sampleRunReport())

	if in.AverageMargin != 28.67 {
		t.Errorf("AverageMargin: got %.2f, want 28.67", in.AverageMargin)
	}
	if in.MedianMargin != 28 {
		t.Errorf("MedianMargin: got %.2f, want 28", in.MedianMargin)
	}
	if in.AverageRisk != 4 {
		t.Errorf("AverageRisk: got %.2f, want 4", in.AverageRisk)
	}
	if in.TotalProfit != 67500 {
		t.Errorf("TotalProfit: got %.2f, want 67500", in.TotalProfit)
	}
}

func TestInsightBestOffer(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	in := svc.Generate(sampleRunReport())
	if in.BestOffer == nil {
		t.Fatal("BestOffer should not be nil")
	}
	if in.BestOffer.LotNumber != "45678912" {
		t.Errorf("BestOffer: got %q, want %q", in.BestOffer.LotNumber, "45678912")
	}
}

func TestInsightMakeGrouping(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	in := svc.Generate(sampleRunReport())
	if in.OffersByMake["BMW"] != 2 {
		t.Errorf("BMW count: got %d, want 2", in.OffersByMake["BMW"])
	}
	if in.OffersByMake["TOYOTA"] != 1 {
		t.Errorf("TOYOTA count: got %d, want 1", in.OffersByMake["TOYOTA"])
	}
}

func TestInsightEmptyInput(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	in := svc.Generate(&models.RunReport{})
	if in.BestOffer != nil || in.AverageMargin != 0 {
		t.Errorf("expected empty insights for a run without best offers")
	}
}

func TestInsightPrint(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := sampleRunReport()

	var buf bytes.Buffer
	svc.Print(&buf, r, svc.Generate(r))
	out := buf.String()

	for _, want := range []string{"run-1", "2020 BMW 530i", "lot 45678912", "28.67%"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q", want)
		}
	}
}
