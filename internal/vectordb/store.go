// Package vectordb stores embedded report rows and searches them by similarity.
package vectordb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"google.golang.org/grpc/status"
)

// Point is one embedded row. Payload values must be JSON-compatible.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a search hit; higher Score is more similar.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Store is implemented by every vector backend.
type Store interface {
	CollectionExists(ctx context.Context, name string) (bool, error)

	// Upsert writes points to an existing collection in one request.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to limit points ordered by descending similarity.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]ScoredPoint, error)

	Close() error
}

// Driver names accepted by Open.
const (
	DriverQdrant = "qdrant"
	DriverSQLite = "sqlite"
)

type Options struct {
	Driver string
	URL    string
	APIKey string
	DB     *sql.DB // sqlite driver only
}

// ErrCreateUnsupported is returned by CreateCollection for backends whose
// collections are provisioned outside this tool.
var ErrCreateUnsupported = errors.New("collection must be created in the vector database itself")

// Open constructs the backend named in opts. It never creates collections.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverQdrant, "":
		return NewQdrant(opts.URL, opts.APIKey)
	case DriverSQLite:
		if opts.DB == nil {
			return nil, fmt.Errorf("sqlite vector store needs a database handle")
		}
		return NewSQLiteStore(opts.DB), nil
	}
	return nil, fmt.Errorf("unknown vector driver %q", opts.Driver)
}

// CreateCollection provisions name on backends that manage their own
// collections. Idempotent.
func CreateCollection(ctx context.Context, s Store, name string) error {
	c, ok := s.(interface {
		EnsureCollection(ctx context.Context, name string) error
	})
	if !ok {
		return fmt.Errorf("creating collection %q: %w", name, ErrCreateUnsupported)
	}
	return c.EnsureCollection(ctx, name)
}

// Detail extracts the service's own message from err, as carried in a gRPC
// status, falling back to err.Error().
func Detail(err error) string {
	if err == nil {
		return ""
	}
	if st, ok := status.FromError(err); ok && st.Message() != "" {
		return st.Message()
	}
	return err.Error()
}
