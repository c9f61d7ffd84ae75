package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"salvage-radar/models"
)

var xlsxHeader = []any{
	"Lot", "Year", "Make", "Model", "Current bid", "Buy now", "Damage", "Title",
	"Location", "Market value PLN", "Repair PLN", "Transport PLN", "Customs PLN",
	"Total cost PLN", "Profit PLN", "Margin", "Risk", "Recommendation", "Max bid",
	"Link", "Analysis",
}

// XLSXReportWriter exports the best and hot offers of a run to a workbook
// with one sheet per list.
type XLSXReportWriter struct {
	path string
}

func NewXLSXReportWriter(path string) *XLSXReportWriter {
	return &XLSXReportWriter{path: path}
}

func (w *XLSXReportWriter) WriteReport(report *models.RunReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Best offers"); err != nil {
		return fmt.Errorf("xlsx: rename sheet: %w", err)
	}
	if err := writeOfferSheet(f, "Best offers", report.BestOffers); err != nil {
		return err
	}

	if _, err := f.NewSheet("Hot offers"); err != nil {
		return fmt.Errorf("xlsx: new sheet: %w", err)
	}
	if err := writeOfferSheet(f, "Hot offers", report.HotOffers); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("xlsx: create output dir: %w", err)
	}
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("xlsx: save %q: %w", w.path, err)
	}
	return nil
}

func writeOfferSheet(f *excelize.File, sheet string, offers []models.FlatOffer) error {
	if err := f.SetSheetRow(sheet, "A1", &xlsxHeader); err != nil {
		return fmt.Errorf("xlsx: header: %w", err)
	}

	for i, o := range offers {
		var buyNow any
		if o.BuyNowPrice != nil {
			buyNow = *o.BuyNowPrice
		}
		row := []any{
			o.LotNumber, o.Year, o.Make, o.Model, o.CurrentBid, buyNow, o.Damage, o.TitleStatus,
			o.Location, o.MarketValue, o.RepairCost, o.TransportCost, o.CustomsCost,
			o.TotalCost, o.Profit, o.ProfitMargin, o.RiskScore, string(o.Recommendation), o.MaxBidPrice,
			o.Link, o.DetailedAnalysis,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("xlsx: cell: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx: row %d: %w", i+2, err)
		}
	}
	return nil
}
