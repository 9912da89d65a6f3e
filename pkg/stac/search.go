package stac

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tld/internal/config"
	"tld/internal/retryhttp"
)

const maxErrorBody = 512

// Search is a Searcher reading a STAC API item search with GET, following
// "next" links until the result set is exhausted or MaxItems is reached.
type Search struct {
	// URL is the full search URL, query string included.
	URL string

	// Client defaults to a client retrying transient failures with the
	// default retry policy. Pass a retrying client, such as the StandardClient
	// of the one used for signing, to share its settings.
	Client *http.Client

	// MaxItems stops paging once that many items were read. Zero reads all.
	MaxItems int
}

// ItemCollection implements Searcher.
func (s *Search) ItemCollection(ctx context.Context) (*ItemCollection, error) {
	var items []*Item
	next := s.URL
	for page := 1; next != ""; page++ {
		ic, err := s.fetch(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("search page %d: %w", page, err)
		}
		items = append(items, ic.Features...)
		if s.MaxItems > 0 && len(items) >= s.MaxItems {
			items = items[:s.MaxItems]
			break
		}
		next = nextLink(ic.Links)
	}
	return NewItemCollection(items), nil
}

func (s *Search) fetch(ctx context.Context, url string) (*ItemCollection, error) {
	client := s.Client
	if client == nil {
		client = defaultClient()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ic ItemCollection
	if err := json.NewDecoder(resp.Body).Decode(&ic); err != nil {
		return nil, fmt.Errorf("failed to decode item collection: %w", err)
	}
	return &ic, nil
}

func defaultClient() *http.Client {
	policy := retryhttp.DefaultPolicy(config.DefaultRetryTotal, config.DefaultRetryBackoffFactor)
	return retryhttp.New(policy).StandardClient()
}

func nextLink(links []Link) string {
	for _, l := range links {
		if l.Rel == "next" && (l.Method == "" || strings.EqualFold(l.Method, http.MethodGet)) {
			return l.Href
		}
	}
	return ""
}
