package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuote_ReturnsCurrentPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"c":150.25,"d":1.5,"dp":1.01,"h":151,"l":148,"o":149,"pc":148.75}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", zerolog.Nop())

	price, err := client.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 150.25, price, 1e-9)
}

func TestQuote_UnknownSymbolAllZeroes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"c":0,"d":0,"dp":0,"h":0,"l":0,"o":0,"pc":0}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", zerolog.Nop())

	_, err := client.Quote(context.Background(), "NOPE")
	assert.Error(t, err)
}

func TestQuote_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", zerolog.Nop())

	_, err := client.Quote(context.Background(), "AAPL")
	assert.Error(t, err)
}

func TestQuote_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", zerolog.Nop())

	_, err := client.Quote(context.Background(), "AAPL")
	assert.Error(t, err)
}
