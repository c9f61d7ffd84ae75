package damage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Detector labels visible damage in listing photos.
type Detector interface {
	Detect(ctx context.Context, imageURLs []string) ([]string, error)
}

// NopDetector is used when no detection service is configured.
type NopDetector struct{}

func (NopDetector) Detect(context.Context, []string) ([]string, error) { return nil, nil }

type detectRequest struct {
	Images []string `json:"images"`
}

type detectResponse struct {
	Damages []string `json:"damages"`
}

// HTTPDetector calls an external detection service.
type HTTPDetector struct {
	url    string
	client *resty.Client
}

func NewHTTPDetector(url string, timeout time.Duration) *HTTPDetector {
	return &HTTPDetector{
		url: url,
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// Detect posts the image URLs and returns the reported damage labels.
func (d *HTTPDetector) Detect(ctx context.Context, imageURLs []string) ([]string, error) {
	if len(imageURLs) == 0 {
		return nil, nil
	}

	var out detectResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(detectRequest{Images: imageURLs}).
		SetResult(&out).
		Post(d.url)
	if err != nil {
		return nil, fmt.Errorf("damage: request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("damage: unexpected status %d", resp.StatusCode())
	}
	return out.Damages, nil
}
