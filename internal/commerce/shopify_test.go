package commerce

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ShopifyClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewShopifyClient(srv.Client(), ShopifyConfig{
		ShopDomain:  "example.myshopify.com",
		AccessToken: "shpat_test",
		BaseURL:     srv.URL,
	})
}

func TestCancelOrder(t *testing.T) {
	var gotPath, gotToken string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"order":{"id":4711}}`))
	})

	require.NoError(t, client.CancelOrder(context.Background(), 4711))
	require.Equal(t, "/admin/api/2024-01/orders/4711/cancel.json", gotPath)
	require.Equal(t, "shpat_test", gotToken)
}

func TestCancelOrderAlreadyCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":"Order has already been cancelled"}`))
	})

	// Re-running cancellation after a crash must not surface an error.
	require.NoError(t, client.CancelOrder(context.Background(), 4711))
}

func TestCancelOrderUpstreamFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.CancelOrder(context.Background(), 4711)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status 502")
}

func TestCancelOrderBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		panic(http.ErrAbortHandler)
	})

	for i := 0; i < 10; i++ {
		_ = client.CancelOrder(context.Background(), 1)
	}
	// After the breaker trips the upstream stops being called.
	require.Less(t, calls, 10)
}
