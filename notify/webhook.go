package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"

	"salvage-radar/models"
)

// Notification is the payload posted for a hot offer.
type Notification struct {
	Offer    *models.Offer    `json:"offer"`
	Analysis *models.Analysis `json:"analysis"`
	SentAt   time.Time        `json:"sent_at"`
}

// Notifier delivers one hot-offer notification.
type Notifier interface {
	Notify(ctx context.Context, offer *models.Offer, analysis *models.Analysis) error
}

// Webhook posts notifications as JSON to a fixed URL, retrying transient
// failures.
type Webhook struct {
	url    string
	client *retryablehttp.Client
}

func NewWebhook(url string, maxRetries int) *Webhook {
	client := retryablehttp.NewClient()
	client.RetryMax = maxRetries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 10 * time.Second
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = nil

	return &Webhook{url: url, client: client}
}

func (w *Webhook) Notify(ctx context.Context, offer *models.Offer, analysis *models.Analysis) error {
	body, err := sonic.Marshal(Notification{
		Offer:    offer,
		Analysis: analysis,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, body)
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notify: unexpected status %d", resp.StatusCode)
	}
	return nil
}
