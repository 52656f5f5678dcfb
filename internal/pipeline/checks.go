package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPChecker exercises the deployed endpoint over HTTP: a GET against
// the health route, and, when the outputs advertise a predict route, a
// POST with a canned payload.
type HTTPChecker struct {
	Client *http.Client
}

func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPChecker) Check(ctx context.Context, endpointOutputs map[string]any) error {
	healthURL, _ := endpointOutputs["healthUrl"].(string)
	if healthURL == "" {
		if base, _ := endpointOutputs["url"].(string); base != "" {
			healthURL = base + "/health"
		}
	}
	if healthURL == "" {
		return fmt.Errorf("endpoint outputs carry no url to check")
	}

	if err := c.get(ctx, healthURL); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if predictURL, _ := endpointOutputs["predictUrl"].(string); predictURL != "" {
		if err := c.post(ctx, predictURL, []byte(`{"features":[0,0,0,0,0,0,0,0,0,0]}`)); err != nil {
			return fmt.Errorf("predict check failed: %w", err)
		}
	}

	return nil
}

func (c *HTTPChecker) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned %d", url, resp.StatusCode)
	}
	return nil
}

func (c *HTTPChecker) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s returned %d", url, resp.StatusCode)
	}
	return nil
}
