package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestQuote(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/USD-BRL" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"USDBRL":{"code":"USD","bid":"5.4321","high":"5.50","low":"5.40","create_date":"2025-03-10 12:00:03"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	quote, err := client.Quote(context.Background(), "usd")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !strings.Contains(quote, "1 USD = R$ 5.4321") {
		t.Fatalf("unexpected quote: %q", quote)
	}
}

func TestQuoteRejectsBadCode(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{BaseURL: "https://example.invalid"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	for _, code := range []string{"", "US", "DOLLAR", "12$"} {
		if _, err := client.Quote(context.Background(), code); !errors.Is(err, ErrInvalidCurrencyCode) {
			t.Fatalf("code %q: expected ErrInvalidCurrencyCode, got %v", code, err)
		}
	}
}

func TestQuoteUpstreamFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.Quote(context.Background(), "EUR"); !errors.Is(err, ErrQuoteUnavailable) {
		t.Fatalf("expected ErrQuoteUnavailable, got %v", err)
	}
}
