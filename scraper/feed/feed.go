package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"salvage-radar/models"
	"salvage-radar/utils"
)

// item is one listing as published by an auxiliary feed. Numbers may arrive
// as JSON numbers or strings.
type item struct {
	LotNumber   flexString `json:"lot_number"`
	Title       string     `json:"title"`
	Make        string     `json:"make"`
	Model       string     `json:"model"`
	Year        flexString `json:"year"`
	CurrentBid  flexString `json:"current_bid"`
	BuyNowPrice flexString `json:"buy_now_price"`
	Damage      string     `json:"damage"`
	TitleStatus string     `json:"title_status"`
	Location    string     `json:"location"`
	SaleDate    string     `json:"sale_date"`
	ImageURL    string     `json:"image_url"`
	Link        string     `json:"link"`
}

type envelope struct {
	Listings []item `json:"listings"`
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := sonic.ConfigStd.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		var n json.Number
		if err := sonic.ConfigStd.Unmarshal(b, &n); err != nil {
			return err
		}
		if v, err := strconv.ParseFloat(string(n), 64); err == nil && v == float64(int64(v)) {
			*f = flexString(strconv.FormatInt(int64(v), 10))
		} else {
			*f = flexString(n)
		}
	}
	return nil
}

// Source reads listings from an auxiliary JSON feed.
type Source struct {
	name   string
	url    string
	client *resty.Client
	logger *utils.Logger
}

// New creates a feed Source for feedURL. The source name is the feed host.
func New(feedURL string, timeout time.Duration, logger *utils.Logger) *Source {
	name := feedURL
	if u, err := url.Parse(feedURL); err == nil && u.Host != "" {
		name = "feed:" + u.Host
	}
	return &Source{
		name:   name,
		url:    feedURL,
		client: resty.New().SetTimeout(timeout).SetHeader("Accept", "application/json"),
		logger: logger,
	}
}

func (s *Source) Name() string { return s.name }

// Fetch requests the feed and decodes either {"listings": [...]} or a bare
// array of listings.
func (s *Source) Fetch(ctx context.Context, modelFilter string) ([]*models.RawListing, error) {
	req := s.client.R().SetContext(ctx)
	if modelFilter != "" {
		req.SetQueryParam("model", modelFilter)
	}

	resp, err := req.Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("feed: request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("feed: unexpected status %d", resp.StatusCode())
	}

	items, err := decode(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}

	now := time.Now()
	listings := make([]*models.RawListing, 0, len(items))
	for _, it := range items {
		listings = append(listings, &models.RawListing{
			LotNumber:   string(it.LotNumber),
			Title:       it.Title,
			Make:        it.Make,
			Model:       it.Model,
			Year:        string(it.Year),
			CurrentBid:  string(it.CurrentBid),
			BuyNowPrice: string(it.BuyNowPrice),
			Damage:      it.Damage,
			TitleStatus: it.TitleStatus,
			Location:    it.Location,
			SaleDate:    it.SaleDate,
			ImageURL:    it.ImageURL,
			Link:        it.Link,
			Source:      s.name,
			ScrapedAt:   now,
		})
	}

	s.logger.Debug("[feed] %s returned %d listings", s.name, len(listings))
	return listings, nil
}

func decode(body []byte) ([]item, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	if body[0] == '[' {
		var items []item
		if err := sonic.ConfigStd.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return items, nil
	}

	var env envelope
	if err := sonic.ConfigStd.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return env.Listings, nil
}
