package vectordb

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

var _ Store = (*QdrantStore)(nil)

const (
	defaultQdrantURL = "http://localhost:6333"
	restPort         = 6333
	grpcPort         = 6334
)

// QdrantStore talks to Qdrant over gRPC.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrant connects to the Qdrant instance at rawURL. REST URLs on the
// default port 6333 are mapped to the gRPC port 6334; https enables TLS.
func NewQdrant(rawURL, apiKey string) (*QdrantStore, error) {
	cfg, err := qdrantConfig(rawURL, apiKey)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}
	return &QdrantStore{client: client}, nil
}

func qdrantConfig(rawURL, apiKey string) (*qdrant.Config, error) {
	if rawURL == "" {
		rawURL = defaultQdrantURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing qdrant url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("qdrant url %q has no host", rawURL)
	}

	port := grpcPort
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("qdrant url port: %w", err)
		}
		if n != restPort {
			port = n
		}
	}
	return &qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: u.Scheme == "https",
	}, nil
}

func (q *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	ok, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("checking collection %s: %w", name, err)
	}
	return ok, nil
}

func (q *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := qdrant.TryValueMap(toQdrantPayload(p.Payload))
		if err != nil {
			return fmt.Errorf("encoding payload of point %s: %w", p.ID, err)
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	return err
}

func (q *QdrantStore) Search(ctx context.Context, collection string, vector []float32, limit int) ([]ScoredPoint, error) {
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", collection, err)
	}
	out := make([]ScoredPoint, 0, len(hits))
	for _, h := range hits {
		out = append(out, ScoredPoint{
			ID:      pointID(h.GetId()),
			Score:   h.GetScore(),
			Payload: fromQdrantPayload(h.GetPayload()),
		})
	}
	return out, nil
}

func (q *QdrantStore) Close() error {
	return q.client.Close()
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// toQdrantPayload widens typed slices, which the value converter does not
// accept, into []any.
func toQdrantPayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch vv := v.(type) {
		case []string:
			list := make([]any, len(vv))
			for i, s := range vv {
				list[i] = s
			}
			out[k] = list
		case int:
			out[k] = int64(vv)
		default:
			out[k] = v
		}
	}
	return out
}

func fromQdrantPayload(in map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = fromQdrantValue(v)
	}
	return out
}

func fromQdrantValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		list := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			list = append(list, fromQdrantValue(item))
		}
		return list
	case *qdrant.Value_StructValue:
		return fromQdrantPayload(kind.StructValue.GetFields())
	}
	return nil
}

// Addr is the gRPC endpoint NewQdrant will dial for rawURL.
func Addr(rawURL string) (string, error) {
	cfg, err := qdrantConfig(rawURL, "")
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), nil
}
