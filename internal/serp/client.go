package serp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
)

var (
	// ErrQuotaExhausted means the key ran out of searches for the period.
	ErrQuotaExhausted = errors.New("serp quota exhausted")
	// ErrUnauthorized means the key was rejected by the provider.
	ErrUnauthorized = errors.New("serp key unauthorized")
)

const DefaultURL = "https://serpapi.com/search.json"

type Config struct {
	URL        string
	Timeout    time.Duration
	Country    string // gl
	Language   string // hl
	Results    int    // num
	RatePerSec float64
}

// Searcher is what the auto-check sweep needs from the SERP backend.
type Searcher interface {
	Search(ctx context.Context, apiKey, query string) ([]domain.SerpItem, error)
}

// Client queries a SerpApi compatible endpoint. All keys share one limiter.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Results <= 0 {
		cfg.Results = 10
	}
	if cfg.Country == "" {
		cfg.Country = "id"
	}
	if cfg.Language == "" {
		cfg.Language = "id"
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

type organicResult struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
}

type searchResponse struct {
	Error          string          `json:"error"`
	OrganicResults []organicResult `json:"organic_results"`
}

// Search returns the organic results of query in rank order.
func (c *Client) Search(ctx context.Context, apiKey, query string) ([]domain.SerpItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for serp rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("gl", c.cfg.Country)
	params.Set("hl", c.cfg.Language)
	params.Set("num", strconv.Itoa(c.cfg.Results))
	params.Set("api_key", apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create serp request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query serp: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read serp response: %w", err)
	}

	var out searchResponse
	decodeErr := json.Unmarshal(body, &out)

	if err := classify(resp.StatusCode, out.Error); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode serp response: %w", decodeErr)
	}

	items := make([]domain.SerpItem, 0, len(out.OrganicResults))
	for i, r := range out.OrganicResults {
		rank := r.Position
		if rank <= 0 {
			rank = i + 1
		}
		items = append(items, domain.SerpItem{
			Rank:    rank,
			Title:   r.Title,
			Link:    r.Link,
			Snippet: r.Snippet,
		})
	}
	return items, nil
}

// classify maps a provider status and error message onto the sentinel errors.
func classify(status int, message string) error {
	lower := strings.ToLower(message)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden,
		strings.Contains(lower, "invalid api key"):
		return fmt.Errorf("%w: %s", ErrUnauthorized, describe(status, message))
	case status == http.StatusTooManyRequests,
		strings.Contains(lower, "run out of searches"),
		strings.Contains(lower, "limit"):
		return fmt.Errorf("%w: %s", ErrQuotaExhausted, describe(status, message))
	case status < 200 || status > 299:
		return fmt.Errorf("serp request failed: %s", describe(status, message))
	case message != "":
		return fmt.Errorf("serp error: %s", message)
	}
	return nil
}

func describe(status int, message string) string {
	if message == "" {
		return http.StatusText(status)
	}
	return fmt.Sprintf("%d %s", status, message)
}
