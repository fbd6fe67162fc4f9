// Package dashboard renders every stored report row as one table.
package dashboard

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/seodata/internal/blobstore"
	"github.com/kalambet/seodata/internal/report"
)

// fetchLimit bounds concurrent object downloads.
const fetchLimit = 8

const maxListBody = 8 << 20

// Loader returns all report rows, flattened in listing order.
type Loader interface {
	Load(ctx context.Context) ([]report.Row, error)
}

// ContainerLoader reads a blob container over plain HTTPS with a SAS token,
// the way a browser would.
type ContainerLoader struct {
	containerURL string
	sas          string
	client       *http.Client
}

// NewContainerLoader creates a loader for containerURL. The SAS token may be
// given with or without its leading "?".
func NewContainerLoader(containerURL, sasToken string, client *http.Client) *ContainerLoader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ContainerLoader{
		containerURL: strings.TrimRight(containerURL, "/"),
		sas:          strings.TrimPrefix(sasToken, "?"),
		client:       client,
	}
}

type enumerationResults struct {
	XMLName    xml.Name `xml:"EnumerationResults"`
	Blobs      []string `xml:"Blobs>Blob>Name"`
	NextMarker string   `xml:"NextMarker"`
}

func (l *ContainerLoader) Load(ctx context.Context) ([]report.Row, error) {
	names, err := l.list(ctx)
	if err != nil {
		return nil, err
	}
	log.WithField("blobs", len(names)).Debug("Blobs found")

	return fetchAll(ctx, names, l.fetch)
}

func (l *ContainerLoader) list(ctx context.Context) ([]string, error) {
	var names []string
	marker := ""
	for {
		listURL := l.containerURL + "?restype=container&comp=list"
		if marker != "" {
			listURL += "&marker=" + url.QueryEscape(marker)
		}
		if l.sas != "" {
			listURL += "&" + l.sas
		}

		body, err := l.get(ctx, listURL, maxListBody)
		if err != nil {
			return nil, fmt.Errorf("listing container: %w", err)
		}
		var page enumerationResults
		if err := xml.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parsing container listing: %w", err)
		}
		names = append(names, page.Blobs...)

		if page.NextMarker == "" {
			return names, nil
		}
		marker = page.NextMarker
	}
}

func (l *ContainerLoader) fetch(ctx context.Context, name string) ([]byte, error) {
	blobURL := l.containerURL + "/" + escapeName(name)
	if l.sas != "" {
		blobURL += "?" + l.sas
	}
	return l.get(ctx, blobURL, -1)
}

func (l *ContainerLoader) get(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit)
	}
	return io.ReadAll(r)
}

func escapeName(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// StoreLoader reads reports through a configured blob store driver.
type StoreLoader struct {
	store blobstore.Store
}

func NewStoreLoader(store blobstore.Store) *StoreLoader {
	return &StoreLoader{store: store}
}

func (l *StoreLoader) Load(ctx context.Context) ([]report.Row, error) {
	objects, err := l.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	names := make([]string, len(objects))
	for i, o := range objects {
		names[i] = o.Name
	}
	return fetchAll(ctx, names, l.store.Get)
}

// fetchAll downloads names concurrently and flattens their rows, keeping
// listing order and then row order. Any failure fails the whole load.
func fetchAll(ctx context.Context, names []string, fetch func(context.Context, string) ([]byte, error)) ([]report.Row, error) {
	perObject := make([][]report.Row, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchLimit)
	for i, name := range names {
		g.Go(func() error {
			data, err := fetch(gctx, name)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", name, err)
			}
			rows, err := report.Decode(data)
			if err != nil {
				return fmt.Errorf("decoding %s: %w", name, err)
			}
			perObject[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, rows := range perObject {
		total += len(rows)
	}
	flat := make([]report.Row, 0, total)
	for _, rows := range perObject {
		flat = append(flat, rows...)
	}
	return flat, nil
}
