// Package rates fetches BRL-relative exchange quotes from the AwesomeAPI
// economia service. The service is flaky and latent, so every call carries a
// bounded timeout and failures stay recoverable.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const maxResponseSizeBytes = 1 << 20

var (
	ErrInvalidCurrencyCode = errors.New("invalid currency code")
	ErrQuoteUnavailable    = errors.New("exchange quote unavailable")

	currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

type Config struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" default:"https://economia.awesomeapi.com.br/json/last"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// ClientOption customizes Client.
type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Client queries the rate API for one currency pair per call.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("rates base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type pairQuote struct {
	Code       string `json:"code"`
	Bid        string `json:"bid"`
	High       string `json:"high"`
	Low        string `json:"low"`
	CreateDate string `json:"create_date"`
}

// Quote returns a customer-readable quote for one foreign currency against
// BRL, e.g. "1 USD = R$ 5.43 (atualizado em 2025-03-10 12:00:03)".
func (c *Client) Quote(ctx context.Context, currencyCode string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	if !currencyCodePattern.MatchString(code) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrencyCode, currencyCode)
	}

	endpoint := fmt.Sprintf("%s/%s-BRL", c.baseURL, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build quote request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrQuoteUnavailable, code, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return "", fmt.Errorf("read quote response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s: status %d", ErrQuoteUnavailable, code, resp.StatusCode)
	}

	var payload map[string]pairQuote
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode quote response: %w", err)
	}
	quote, ok := payload[code+"BRL"]
	if !ok || quote.Bid == "" {
		return "", fmt.Errorf("%w: %s: pair missing in response", ErrQuoteUnavailable, code)
	}

	return fmt.Sprintf("1 %s = R$ %s (atualizado em %s)", code, quote.Bid, quote.CreateDate), nil
}
