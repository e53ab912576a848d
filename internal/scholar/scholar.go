// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scholar queries the upstream paper-search service. The
// literature stage consumes the Searcher interface; the shipped
// implementation talks to the Semantic Scholar Graph API.
package scholar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pdiddy/research-pilot/internal/httputil"
	"github.com/pdiddy/research-pilot/pkg/types"
)

// apiBase is the Semantic Scholar paper search endpoint. Declared as a
// var so tests can substitute an httptest server.
var apiBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const apiFields = "paperId,title,abstract,authors,publicationDate,year"

// PaperRecord is one result from the paper-search service, ordered by
// upstream relevance.
type PaperRecord struct {
	SourceID      string
	Title         string
	Abstract      string
	Authors       []string
	PublishedDate time.Time
}

// Searcher is the paper-search service consumed by the literature stage.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]PaperRecord, error)
}

// Client queries the Semantic Scholar Graph API. The service is
// rate-limited upstream; requests retry on 429 and 5xx with backoff.
type Client struct {
	http *http.Client
	cfg  types.SearchConfig
}

// NewClient builds a search client from the search configuration.
func NewClient(cfg types.SearchConfig) *Client {
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
	}
}

type apiResponse struct {
	Data []struct {
		PaperID  string `json:"paperId"`
		Title    string `json:"title"`
		Abstract string `json:"abstract"`
		Authors  []struct {
			Name string `json:"name"`
		} `json:"authors"`
		PublicationDate string `json:"publicationDate"`
		Year            int    `json:"year"`
	} `json:"data"`
}

// Search queries the API and returns up to limit records in the order
// the service ranked them.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]PaperRecord, error) {
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{
		"query":  {query},
		"limit":  {fmt.Sprintf("%d", limit)},
		"fields": {apiFields},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.APIKey != "" {
		req.Header.Set("x-api-key", c.cfg.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, 0)
	if err != nil {
		return nil, fmt.Errorf("paper search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("paper search returned HTTP %d", resp.StatusCode)
	}

	var sr apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing paper search response: %w", err)
	}

	var records []PaperRecord
	for _, p := range sr.Data {
		r := PaperRecord{
			SourceID: p.PaperID,
			Title:    p.Title,
			Abstract: p.Abstract,
		}
		for _, a := range p.Authors {
			r.Authors = append(r.Authors, a.Name)
		}
		if p.PublicationDate != "" {
			if t, parseErr := time.Parse("2006-01-02", p.PublicationDate); parseErr == nil {
				r.PublishedDate = t
			}
		} else if p.Year > 0 {
			r.PublishedDate = time.Date(p.Year, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		records = append(records, r)
	}
	return records, nil
}
