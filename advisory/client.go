package advisory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"salvage-radar/config"
	"salvage-radar/metrics"
	"salvage-radar/models"
	"salvage-radar/utils"
)

// FallbackRationale prefixes the rationale of every fallback analysis.
const FallbackRationale = "Fallback analysis"

const systemInstruction = "Jestes ekspertem od sprowadzania samochodow z USA. Zwracaj TYLKO w wymaganym formacie."

var errEmptyReply = errors.New("advisory: empty reply")

// Scorer produces an analysis for an offer. Implementations never fail
// outward: when the oracle cannot be used they return a fallback analysis.
type Scorer interface {
	Score(ctx context.Context, offer *models.Offer) *models.Analysis
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Client scores offers against an OpenAI-style chat completion endpoint.
type Client struct {
	http         *resty.Client
	cfg          config.AdvisoryConfig
	hotThreshold float64
	retry        utils.RetryConfig
	logger       *utils.Logger
	metrics      *metrics.Metrics
}

// NewClient creates a Client. hotThreshold is the margin used when deriving
// a missing maximum bid. m may be nil.
func NewClient(cfg config.AdvisoryConfig, hotThreshold float64, logger *utils.Logger, m *metrics.Metrics) *Client {
	rc := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		rc.SetAuthToken(cfg.APIKey)
	}

	return &Client{
		http:         rc,
		cfg:          cfg,
		hotThreshold: hotThreshold,
		retry: utils.RetryConfig{
			MaxAttempts: cfg.Retries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		logger:  logger,
		metrics: m,
	}
}

// Score asks the oracle about offer and parses the reply. Any failure yields
// Fallback(offer, err).
func (c *Client) Score(ctx context.Context, offer *models.Offer) *models.Analysis {
	start := time.Now()

	var text string
	err := c.retry.DoContext(ctx, "advisory "+offer.LotNumber, func() error {
		var err error
		text, err = c.complete(ctx, offer)
		return err
	})
	if err != nil {
		c.logger.Error("[advisory] Scoring lot %s failed: %v", offer.LotNumber, err)
		c.metrics.ObserveAdvisory(time.Since(start), true)
		return Fallback(offer, err)
	}

	res := Parse(text)
	a := c.derive(res, offer)
	c.metrics.ObserveAdvisory(time.Since(start), false)
	c.logger.Debug("[advisory] Lot %s: %s, margin %.2f, risk %d",
		offer.LotNumber, a.Recommendation, a.ProfitMargin, a.RiskScore)
	return a
}

func (c *Client) complete(ctx context.Context, offer *models.Offer) (string, error) {
	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: c.cfg.Model,
			Messages: []chatMessage{
				{Role: "system", Content: systemInstruction},
				{Role: "user", Content: Prompt(offer)},
			},
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
		}).
		SetResult(&out).
		Post(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("advisory: request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("advisory: unexpected status %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", errEmptyReply
	}
	return out.Choices[0].Message.Content, nil
}

// Prompt renders the user message for offer.
func Prompt(offer *models.Offer) string {
	buyNow := "N/A"
	if offer.BuyNowPrice != nil {
		buyNow = fmt.Sprintf("$%.0f", *offer.BuyNowPrice)
	}

	var b strings.Builder
	b.WriteString("ANALIZA OFERTY SAMOCHODU:\n")
	if len(offer.DetectedDamage) > 0 {
		fmt.Fprintf(&b, "Wykryte uszkodzenia ze zdjec: %s\n", strings.Join(offer.DetectedDamage, ", "))
	}
	fmt.Fprintf(&b, "%s\n", offer.Title())
	fmt.Fprintf(&b, "Cena: $%.0f | Kup Teraz: %s\n", offer.CurrentBid, buyNow)
	fmt.Fprintf(&b, "Uszkodzenia: %s | Tytul: %s\n", offer.Damage, offer.TitleStatus)
	fmt.Fprintf(&b, "Lokalizacja: %s\n\n", offer.Location)
	b.WriteString(`Ocen jako ekspert i odpowiedz w formacie:

WARTOSC RYNKOWA: [kwota] PLN
KOSZT NAPRAWY: [kwota] PLN
KOSZT TRANSPORTU: [kwota] PLN
CLO: [kwota] PLN
ZYSK NETTO: [kwota] PLN
MARZA: [procent]%
RYZYKO: [1-10]/10
MAKS. OFERTA: [kwota] USD
REKOMENDACJA: [KUPUJ/UNIKAJ/OSTROZNIE]
ANALIZA: [szczegolowy opis]
`)
	return b.String()
}

// derive completes the cost fields the reply left out.
func (c *Client) derive(res Result, offer *models.Offer) *models.Analysis {
	a := res.Analysis

	rate := decimal.NewFromFloat(c.cfg.UsdToPln)
	bid := decimal.NewFromFloat(offer.CurrentBid)
	market := decimal.NewFromFloat(a.MarketValue)
	repair := decimal.NewFromFloat(a.RepairCost)
	transport := decimal.NewFromFloat(a.TransportCost)
	customs := decimal.NewFromFloat(a.CustomsCost)
	fees := repair.Add(transport).Add(customs)

	total := decimal.NewFromFloat(a.TotalCost)
	if !res.Matched.Has(FieldTotalCost) {
		total = bid.Mul(rate).Add(fees)
		a.TotalCost = total.Round(2).InexactFloat64()
	}

	profit := decimal.NewFromFloat(a.PotentialProfit)
	profitKnown := res.Matched.Has(FieldProfit)
	if !profitKnown && res.Matched.Has(FieldMarketValue) {
		profit = market.Sub(total)
		a.PotentialProfit = profit.Round(2).InexactFloat64()
		profitKnown = true
	}

	if !res.Matched.Has(FieldMargin) && profitKnown && total.IsPositive() {
		a.ProfitMargin = profit.Div(total).Round(4).InexactFloat64()
	}

	if !res.Matched.Has(FieldMaxBid) && res.Matched.Has(FieldMarketValue) && rate.IsPositive() {
		ceiling := market.Div(decimal.NewFromFloat(1 + c.hotThreshold)).Sub(fees).Div(rate)
		if ceiling.IsNegative() {
			ceiling = decimal.Zero
		}
		a.MaxBidPrice = ceiling.Round(2).InexactFloat64()
	}

	return &a
}

// Fallback returns the fixed analysis used when the oracle is unavailable.
func Fallback(offer *models.Offer, cause error) *models.Analysis {
	a := DefaultAnalysis(FallbackRationale)
	if cause != nil {
		a.DetailedAnalysis = FallbackRationale + ": " + cause.Error()
	}
	a.MaxBidPrice = decimal.NewFromFloat(offer.CurrentBid).
		Mul(decimal.NewFromFloat(0.8)).
		Round(2).
		InexactFloat64()
	return &a
}

// IsFallback reports whether a was produced by Fallback.
func IsFallback(a *models.Analysis) bool {
	return a != nil && strings.HasPrefix(a.DetailedAnalysis, FallbackRationale)
}
