package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"salvage-radar/models"
)

var rawHeader = []string{
	"source", "lot_number", "title", "make", "model", "year", "current_bid", "buy_now_price",
	"damage", "title_status", "location", "sale_date", "image_url", "link", "scraped_at",
}

// CSVWriter keeps an audit snapshot of what the sources returned before any
// cleaning. Each process truncates the file once; later runs append.
type CSVWriter struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
	rows int
}

func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(rawHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, w: w}, nil
}

func (c *CSVWriter) WriteRaw(listings []*models.RawListing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range listings {
		if err := c.w.Write(rawRow(l)); err != nil {
			return fmt.Errorf("csv: row %d: %w", c.rows+1, err)
		}
		c.rows++
	}

	c.w.Flush()
	return c.w.Error()
}

// Rows is the number of listings written so far.
func (c *CSVWriter) Rows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	return c.file.Close()
}

func rawRow(l *models.RawListing) []string {
	return []string{
		l.Source, l.LotNumber, l.Title, l.Make, l.Model, l.Year,
		l.CurrentBid, l.BuyNowPrice, l.Damage, l.TitleStatus, l.Location,
		l.SaleDate, l.ImageURL, l.Link, l.ScrapedAt.UTC().Format(time.RFC3339),
	}
}
