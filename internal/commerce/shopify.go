// Package commerce talks to the upstream shop platform. The escalation
// engines only ever cancel orders there; nothing else of the platform's
// API surface is modelled.
package commerce

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// OrderCanceller is the capability consumed by the recovery engine.
type OrderCanceller interface {
	CancelOrder(ctx context.Context, orderID int64) error
}

// ShopifyConfig configures the shop client.
type ShopifyConfig struct {
	ShopDomain  string // e.g. "example.myshopify.com"
	AccessToken string
	APIVersion  string
	BaseURL     string // override for tests; defaults to https://<ShopDomain>
	Logger      *slog.Logger
}

// ShopifyClient cancels orders through the Shopify Admin REST API. All
// calls go through a circuit breaker so a dead upstream trips fast
// instead of stalling a whole sweep.
type ShopifyClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	baseURL     string
	accessToken string
	apiVersion  string
	logger      *slog.Logger
}

// NewShopifyClient constructs the client.
func NewShopifyClient(httpClient *http.Client, cfg ShopifyConfig) *ShopifyClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-01"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://" + cfg.ShopDomain
	}
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "shopify",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	return &ShopifyClient{
		client:      httpClient,
		breaker:     breaker,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: cfg.AccessToken,
		apiVersion:  apiVersion,
		logger:      logger,
	}
}

// CancelOrder cancels one order upstream. Cancelling an already cancelled
// order reports 422 from Shopify; that counts as success so re-runs after
// a crash between cancellation and stage recording stay idempotent.
func (c *ShopifyClient) CancelOrder(ctx context.Context, orderID int64) error {
	url := fmt.Sprintf("%s/admin/api/%s/orders/%d/cancel.json", c.baseURL, c.apiVersion, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(`{}`))
	if err != nil {
		return fmt.Errorf("commerce: build cancel request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.client.Do(req)
	})
	if err != nil {
		return fmt.Errorf("commerce: cancel order %d: %w", orderID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		c.logger.Warn("order already cancelled upstream", slog.Int64("order_id", orderID))
		return nil
	default:
		return fmt.Errorf("commerce: cancel order %d: unexpected status %d", orderID, resp.StatusCode)
	}
}
