// Package catalog fetches and normalises marketplace listings from the
// Vinted catalog API.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vintedwatch/monitor-service/internal/model"
)

const (
	catalogPath  = "/api/v2/catalog/items"
	maxPerPage   = 20
	httpTimeout  = 10 * time.Second
	unknownField = "Unknown"

	// The API rejects requests without a browser-like identity.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// FetchError is the single failure signal crossing the client boundary.
// Status is the HTTP status code, or 0 for network-level and decode faults.
type FetchError struct {
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("catalog fetch failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("catalog fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client fetches listings for a search definition. It never retries; the
// scheduler's next tick is the retry policy.
type Client struct {
	baseURL string
	perPage int
	client  *http.Client
}

// NewClient constructs a Client with a shared HTTP client and bounded timeout.
func NewClient(baseURL string, perPage int) *Client {
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		perPage: perPage,
		client:  &http.Client{Timeout: httpTimeout},
	}
}

// catalogItem mirrors one item of the upstream JSON payload. Every field is
// optional; absence decodes to the zero value.
type catalogItem struct {
	ID         flexString `json:"id"`
	Title      string     `json:"title"`
	Price      priceField `json:"price"`
	BrandTitle string     `json:"brand_title"`
	SizeTitle  string     `json:"size_title"`
	Photo      photoField `json:"photo"`
	URL        string     `json:"url"`
	User       userField  `json:"user"`
	CreatedAt  string     `json:"created_at"`
}

type priceField struct {
	Amount flexFloat `json:"amount"`
}

type photoField struct {
	URL string `json:"url"`
}

type userField struct {
	Login              string    `json:"login"`
	FeedbackReputation flexFloat `json:"feedback_reputation"`
}

// flexString decodes either a JSON string or a bare number into a string.
// Listing ids arrive as numbers, but the contract treats them as opaque.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexString(s)
	return nil
}

// flexFloat decodes a JSON number or a quoted numeric string; anything else
// degrades to zero. The upstream serialises price amounts as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// Fetch retrieves the newest listings matching the search definition,
// preserving upstream newest-first order. On any fault it returns an empty
// slice and a *FetchError; it never partially returns.
func (c *Client) Fetch(ctx context.Context, search model.SearchDefinition) ([]model.Listing, error) {
	params := url.Values{}
	params.Set("search_text", search.SearchText())
	// price_to is an integer upstream; round up so the server-side cut never
	// drops listings our own price filter would accept.
	params.Set("price_to", strconv.Itoa(int(math.Ceil(search.MaxPrice))))
	params.Set("order", "newest_first")
	params.Set("per_page", strconv.Itoa(c.perPage))

	reqURL := c.baseURL + catalogPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", c.baseURL+"/")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{Err: fmt.Errorf("http GET: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	var payload struct {
		Items *[]catalogItem `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{Status: resp.StatusCode, Err: fmt.Errorf("json unmarshal: %w", err)}
	}
	if payload.Items == nil {
		return nil, &FetchError{Status: resp.StatusCode, Err: fmt.Errorf("response has no items field")}
	}

	listings := make([]model.Listing, 0, len(*payload.Items))
	for _, it := range *payload.Items {
		if it.ID == "" {
			continue // unidentifiable item, cannot dedup it
		}
		listings = append(listings, normalise(it))
	}
	return listings, nil
}

// normalise maps an upstream item to the fully-typed Listing with explicit
// defaults, so no downstream component handles absence.
func normalise(it catalogItem) model.Listing {
	l := model.Listing{
		ID:           string(it.ID),
		Title:        orUnknown(it.Title),
		Price:        float64(it.Price.Amount),
		Brand:        orUnknown(it.BrandTitle),
		Size:         orUnknown(it.SizeTitle),
		Seller:       orUnknown(it.User.Login),
		SellerRating: float64(it.User.FeedbackReputation),
		ImageURL:     it.Photo.URL,
		URL:          it.URL,
	}
	if it.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, it.CreatedAt); err == nil {
			l.CreatedAt = ts
		}
	}
	return l
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknownField
	}
	return s
}
