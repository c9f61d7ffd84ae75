package copart

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"salvage-radar/config"
	"salvage-radar/models"
	"salvage-radar/utils"
)

const (
	sourceName = "copart"
	baseURL    = "https://www.copart.com"

	// resultsSelector waits for the first rendered row of the results table.
	resultsSelector = `#serverSideDataTable tbody tr`
)

// Cell identifiers of the search results table.
const (
	unameLotNumber   = "lotsearchLotnumber"
	unameYear        = "lotsearchLotcenturyyear"
	unameMake        = "lotsearchLotmake"
	unameModel       = "lotsearchLotmodel"
	unameDescription = "lotsearchLotdescription"
	unameCurrentBid  = "lotsearchLotcurrentbid"
	unameBuyNow      = "lotsearchLotbuynowprice"
	unameDamage      = "lotsearchLotdamagedescription"
	unameTitle       = "lotsearchSaletitletype"
	unameLocation    = "lotsearchLotyardname"
	unameSaleDate    = "lotsearchLotauctiondate"
	unameImage       = "lotsearchLotimage"
)

// Scraper renders the Copart search results in headless Chrome and extracts
// the listing rows.
type Scraper struct {
	cfg    config.SourceConfig
	logger *utils.Logger
	retry  *utils.RetryConfig
}

// New creates a ready-to-use Copart Scraper.
func New(cfg config.SourceConfig, maxRetries int, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:    cfg,
		logger: logger,
		retry: &utils.RetryConfig{
			MaxAttempts: maxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
	}
}

func (s *Scraper) Name() string { return sourceName }

// Fetch loads the search page for modelFilter and returns its listings.
func (s *Scraper) Fetch(ctx context.Context, modelFilter string) ([]*models.RawListing, error) {
	searchURL := SearchURL(s.cfg.CopartSearchURL, modelFilter)
	s.logger.Info("[copart] Starting scrape: %s", searchURL)

	chromeBin := s.cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	s.logger.Debug("[copart] Using browser binary: %q", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	var page string
	err := s.retry.DoContext(ctx, "copart search page", func() error {
		var err error
		page, err = s.renderPage(browserCtx, searchURL)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("copart: %w", err)
	}

	listings, err := ExtractListings(page, time.Now())
	if err != nil {
		return nil, fmt.Errorf("copart: %w", err)
	}

	s.logger.Info("[copart] Scrape complete: %d raw listings", len(listings))
	return listings, nil
}

// renderPage navigates to pageURL in a fresh tab and returns the rendered DOM.
func (s *Scraper) renderPage(browserCtx context.Context, pageURL string) (string, error) {
	ctx, cancel := chromedp.NewContext(browserCtx)
	defer cancel()

	if s.cfg.PageTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.cfg.PageTimeout)
		defer cancelTimeout()
	}

	var html string
	err := chromedp.Run(ctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(resultsSelector, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp render: %w", err)
	}
	return html, nil
}

// SearchURL builds the results URL for an optional model filter.
func SearchURL(searchURL, modelFilter string) string {
	modelFilter = strings.TrimSpace(modelFilter)
	if modelFilter == "" {
		return searchURL
	}

	u, err := url.Parse(searchURL)
	if err != nil {
		return searchURL
	}
	q := u.Query()
	q.Set("free", "true")
	q.Set("query", modelFilter)
	u.RawQuery = q.Encode()
	return u.String()
}

// ExtractListings parses the results table of a rendered search page. Rows
// without a lot number and repeated lots are skipped.
func ExtractListings(html string, scrapedAt time.Time) ([]*models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	seen := utils.NewKeySet()
	var listings []*models.RawListing

	doc.Find(resultsSelector).Each(func(_ int, row *goquery.Selection) {
		lot := cellText(row, unameLotNumber)
		if lot == "" || !seen.Add(lot) {
			return
		}

		link, _ := row.Find(uname(unameLotNumber)).Find("a").Attr("href")
		if link == "" {
			link, _ = row.Find(uname(unameLotNumber)).Attr("href")
		}
		image, _ := row.Find(uname(unameImage)).Find("img").Attr("src")
		if image == "" {
			image, _ = row.Find(uname(unameImage)).Attr("src")
		}

		listings = append(listings, &models.RawListing{
			LotNumber:   lot,
			Title:       cellText(row, unameDescription),
			Make:        cellText(row, unameMake),
			Model:       cellText(row, unameModel),
			Year:        cellText(row, unameYear),
			CurrentBid:  cellText(row, unameCurrentBid),
			BuyNowPrice: cellText(row, unameBuyNow),
			Damage:      cellText(row, unameDamage),
			TitleStatus: cellText(row, unameTitle),
			Location:    cellText(row, unameLocation),
			SaleDate:    cellText(row, unameSaleDate),
			ImageURL:    absoluteURL(image),
			Link:        absoluteURL(link),
			Source:      sourceName,
			ScrapedAt:   scrapedAt,
		})
	})

	return listings, nil
}

func uname(name string) string {
	return `[data-uname="` + name + `"]`
}

func cellText(row *goquery.Selection, name string) string {
	return strings.Join(strings.Fields(row.Find(uname(name)).First().Text()), " ")
}

func absoluteURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	if strings.HasPrefix(ref, "/") {
		return baseURL + ref
	}
	return ref
}

// findChromeBinary locates a Chrome/Chromium binary on PATH or in the usual
// install locations.
func findChromeBinary() string {
	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
