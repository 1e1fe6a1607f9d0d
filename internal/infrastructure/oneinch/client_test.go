package oneinch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unite-defi/swapd/internal/infrastructure/oneinch"
)

func TestGetQuote(t *testing.T) {
	var gotAuth, gotSrc, gotDst, gotAmount string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotSrc = r.URL.Query().Get("src")
		gotDst = r.URL.Query().Get("dst")
		gotAmount = r.URL.Query().Get("amount")
		// nolint:all
		w.Write([]byte(`{"dstAmount":"4000000"}`))
	}))
	defer server.Close()

	api := oneinch.NewApi(server.URL, "test-key", time.Minute)

	quote, err := api.GetQuote(context.Background(), "ETH", "BTC", "100000000")
	require.NoError(t, err)

	require.Equal(t, "Bearer test-key", gotAuth)
	require.Equal(t, "ETH", gotSrc)
	require.Equal(t, "BTC", gotDst)
	require.Equal(t, "100000000", gotAmount)

	require.Equal(t, "4000000", quote.EstimatedOutput)
	require.InDelta(t, 0.04, quote.Rate, 1e-9)
	require.True(t, quote.ExpiresAt.After(time.Now()))
	require.True(t, quote.ExpiresAt.Before(time.Now().Add(2*time.Minute)))
}

func TestGetQuoteApiError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// nolint:all
		w.Write([]byte(`{"error":"insufficient liquidity"}`))
	}))
	defer server.Close()

	api := oneinch.NewApi(server.URL, "", time.Minute)

	_, err := api.GetQuote(context.Background(), "ETH", "BTC", "1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient liquidity")
}

func TestGetQuoteHttpError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		// nolint:all
		w.Write([]byte("rate limited"))
	}))
	defer server.Close()

	api := oneinch.NewApi(server.URL, "", time.Minute)

	_, err := api.GetQuote(context.Background(), "ETH", "BTC", "1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}
