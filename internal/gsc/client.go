// Package gsc queries the Google Search Console search-analytics API.
package gsc

import (
	"context"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/api/searchconsole/v1"

	"github.com/kalambet/seodata/internal/report"
)

// MaxRowLimit is the largest page the search-analytics API returns.
const MaxRowLimit = 25000

// Query describes one search-analytics request.
type Query struct {
	SiteURL    string
	Window     report.Window
	Dimensions []string
	RowLimit   int // 0 means provider default
}

type Client struct {
	svc *searchconsole.Service
}

// New builds a client from arbitrary client options.
func New(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := searchconsole.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating search console service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// NewWithKeyFile authenticates with a service-account JSON key file using the
// read-only webmasters scope.
func NewWithKeyFile(ctx context.Context, path string) (*Client, error) {
	if path == "" {
		return nil, fmt.Errorf("search console: service account key file is required")
	}
	return New(ctx,
		option.WithCredentialsFile(path),
		option.WithScopes(searchconsole.WebmastersReadonlyScope),
	)
}

// Query fetches rows for q. Row order is the provider's.
func (c *Client) Query(ctx context.Context, q Query) ([]report.Row, error) {
	if q.SiteURL == "" {
		return nil, fmt.Errorf("search console: site URL is required")
	}
	limit := q.RowLimit
	if limit > MaxRowLimit {
		limit = MaxRowLimit
	}

	req := &searchconsole.SearchAnalyticsQueryRequest{
		StartDate:  q.Window.StartDate(),
		EndDate:    q.Window.EndDate(),
		Dimensions: q.Dimensions,
		RowLimit:   int64(limit),
	}
	resp, err := c.svc.Searchanalytics.Query(q.SiteURL, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("search analytics query for %s: %w", q.SiteURL, err)
	}

	rows := make([]report.Row, 0, len(resp.Rows))
	for _, r := range resp.Rows {
		if r == nil {
			continue
		}
		rows = append(rows, report.Row{
			Keys:        r.Keys,
			Clicks:      int64(math.Round(r.Clicks)),
			Impressions: int64(math.Round(r.Impressions)),
			CTR:         r.Ctr,
			Position:    r.Position,
		})
	}
	log.WithFields(log.Fields{
		"site":   q.SiteURL,
		"window": q.Window.String(),
		"rows":   len(rows),
	}).Debug("Search analytics query finished")
	return rows, nil
}
