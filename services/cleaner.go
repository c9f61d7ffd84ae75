package services

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	"salvage-radar/models"
	"salvage-radar/utils"
)

var (
	// priceRegexp captures the first signed amount once grouping commas are removed
	priceRegexp = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	// yearRegexp captures a plausible model year
	yearRegexp = regexp.MustCompile(`\b(19[5-9]\d|20\d{2})\b`)
	// titleRegexp splits "2022 Toyota Camry XLE" into year, make and model
	titleRegexp = regexp.MustCompile(`^((?:19|20)\d{2})\s+(\S+)\s+(.+)$`)

	// priceCleaner drops grouping commas and folds the unicode minus sign
	priceCleaner = strings.NewReplacer(",", "", "\u2212", "-")
)

// Cleaner transforms RawListings into validated Offers.
type Cleaner struct {
	logger *utils.Logger
	policy *bluemonday.Policy
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{
		logger: logger,
		policy: bluemonday.StrictPolicy(),
	}
}

// Clean converts raw listings into offers. Listings missing a lot number,
// link, make/model, year or a readable current bid are dropped, as are
// repeated lots. A negative bid is kept so the filter can reject it.
func (c *Cleaner) Clean(raw []*models.RawListing) []*models.Offer {
	seen := utils.NewKeySet()
	result := make([]*models.Offer, 0, len(raw))

	for _, r := range raw {
		lot := c.text(r.LotNumber)
		if lot == "" {
			c.logger.Warn("[cleaner] Dropping listing without lot number: %s", c.text(r.Title))
			continue
		}
		if seen.Contains(lot) {
			c.logger.Debug("[cleaner] Duplicate lot skipped: %s", lot)
			continue
		}

		link := strings.TrimSpace(r.Link)
		if link == "" {
			c.logger.Warn("[cleaner] Dropping lot %s: no link", lot)
			continue
		}

		mk, model, year := c.text(r.Make), c.text(r.Model), parseYear(r.Year)
		if tYear, tMake, tModel, ok := splitTitle(c.text(r.Title)); ok {
			if year == 0 {
				year = tYear
			}
			if mk == "" {
				mk = tMake
			}
			if model == "" {
				model = tModel
			}
		}
		if mk == "" || model == "" || year == 0 {
			c.logger.Warn("[cleaner] Dropping lot %s: incomplete vehicle (%d %q %q)", lot, year, mk, model)
			continue
		}

		bid, ok := parsePrice(r.CurrentBid)
		if !ok {
			c.logger.Warn("[cleaner] Dropping lot %s: unreadable current bid %q", lot, r.CurrentBid)
			continue
		}
		offer := &models.Offer{
			LotNumber:   lot,
			Make:        mk,
			Model:       model,
			Year:        year,
			CurrentBid:  bid,
			Damage:      c.text(r.Damage),
			TitleStatus: c.text(r.TitleStatus),
			Location:    c.text(r.Location),
			SaleDate:    c.text(r.SaleDate),
			ImageURL:    strings.TrimSpace(r.ImageURL),
			Link:        link,
			Source:      normaliseSource(r.Source),
		}
		if buyNow, ok := parsePrice(r.BuyNowPrice); ok {
			offer.BuyNowPrice = &buyNow
		}

		seen.Add(lot)
		result = append(result, offer)
	}

	c.logger.Info("[cleaner] Cleaned %d → %d offers (dropped %d)",
		len(raw), len(result), len(raw)-len(result))
	return result
}

// text strips markup, decodes entities and collapses whitespace.
func (c *Cleaner) text(s string) string {
	return normaliseText(html.UnescapeString(c.policy.Sanitize(s)))
}

// parsePrice extracts the amount of a raw price string.
// Examples:
//
//	"$18,094.00 USD" → 18094
//	"9100"           → 9100
//	"-500"           → -500
//	"N/A"            → not ok
func parsePrice(raw string) (float64, bool) {
	match := priceRegexp.FindString(priceCleaner.Replace(raw))
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseYear(raw string) int {
	match := yearRegexp.FindString(raw)
	if match == "" {
		return 0
	}
	y, _ := strconv.Atoi(match)
	return y
}

// splitTitle recovers year, make and model from a "2022 Toyota Camry XLE"
// style title.
func splitTitle(title string) (int, string, string, bool) {
	m := titleRegexp.FindStringSubmatch(title)
	if m == nil {
		return 0, "", "", false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", "", false
	}
	return year, m[2], m[3], true
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}

func normaliseSource(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
