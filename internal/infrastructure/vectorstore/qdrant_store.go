package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/domain/memory"
)

const scrollPageSize = 256

// QdrantStore is the authoritative hosted vector database. All four
// collections live here; it is the source of truth for every read path.
//
// Implements memory.Store.
type QdrantStore struct {
	client *qdrant.Client
	logger *zap.Logger
}

// NewQdrantStore connects to the hosted vector database. rawURL accepts
// http(s)://host[:port]; https enables TLS and the port defaults to the
// gRPC port 6334.
func NewQdrantStore(rawURL, apiKey string, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "vector-store"))

	host, port, useTLS, err := parseVectorURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid vector store url %q: %w", rawURL, err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store client: %w", err)
	}

	logger.Info("Authoritative vector store client created",
		zap.String("host", host),
		zap.Int("port", port),
		zap.Bool("tls", useTLS),
	)
	return &QdrantStore{client: client, logger: logger}, nil
}

// Ping verifies connectivity, used by the health endpoint.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("vector store health check failed: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection and its payload indexes when
// missing. Safe to call on every startup.
func (s *QdrantStore) EnsureCollection(ctx context.Context, spec memory.CollectionSpec, vectorSize int) error {
	exists, err := s.client.CollectionExists(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", spec.Name, err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: spec.Name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", spec.Name, err)
		}
		s.logger.Info("Created collection", zap.String("collection", spec.Name), zap.Int("vectorSize", vectorSize))
	}

	for _, idx := range spec.Indexes {
		fieldType := qdrant.FieldType_FieldTypeKeyword
		if idx.Kind == memory.IndexDatetime {
			fieldType = qdrant.FieldType_FieldTypeDatetime
		}
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: spec.Name,
			FieldName:      idx.Field,
			FieldType:      &fieldType,
		})
		if err != nil {
			return fmt.Errorf("failed to create index %s.%s: %w", spec.Name, idx.Field, err)
		}
	}
	return nil
}

// Upsert writes points, replacing any with the same ID.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points ...*memory.Point) error {
	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		qdrantPoints = append(qdrantPoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qdrantPoints,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upsert into %s failed: %w", collection, err)
	}
	return nil
}

// Retrieve fetches points by ID; missing IDs are skipped.
func (s *QdrantStore) Retrieve(ctx context.Context, collection string, ids ...string) ([]*memory.Point, error) {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}
	retrieved, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve from %s failed: %w", collection, err)
	}

	points := make([]*memory.Point, 0, len(retrieved))
	for _, rp := range retrieved {
		points = append(points, &memory.Point{
			ID:      pointIDString(rp.GetId()),
			Payload: payloadToMap(rp.GetPayload()),
		})
	}
	return points, nil
}

// Search performs vector similarity search with an optional payload filter.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, limit int, filter *memory.Filter) ([]*memory.ScoredPoint, error) {
	scored, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Filter:         toQdrantFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search in %s failed: %w", collection, err)
	}

	results := make([]*memory.ScoredPoint, 0, len(scored))
	for _, sp := range scored {
		results = append(results, &memory.ScoredPoint{
			Point: memory.Point{
				ID:      pointIDString(sp.GetId()),
				Payload: payloadToMap(sp.GetPayload()),
			},
			Score:  sp.GetScore(),
			Source: memory.SourceAuthoritative,
		})
	}
	return results, nil
}

// Scroll enumerates points matching the filter, following page offsets
// until exhaustion or limit.
func (s *QdrantStore) Scroll(ctx context.Context, collection string, filter *memory.Filter, limit int) ([]*memory.Point, error) {
	pointsClient := s.client.GetPointsClient()

	var points []*memory.Point
	var offset *qdrant.PointId
	for {
		page := uint32(scrollPageSize)
		if limit > 0 && limit-len(points) < scrollPageSize {
			page = uint32(limit - len(points))
		}
		resp, err := pointsClient.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Filter:         toQdrantFilter(filter),
			Limit:          qdrant.PtrOf(page),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("scroll in %s failed: %w", collection, err)
		}
		for _, rp := range resp.GetResult() {
			points = append(points, &memory.Point{
				ID:      pointIDString(rp.GetId()),
				Payload: payloadToMap(rp.GetPayload()),
			})
		}
		if limit > 0 && len(points) >= limit {
			return points[:limit], nil
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return points, nil
		}
	}
}

// Delete removes points by ID.
func (s *QdrantStore) Delete(ctx context.Context, collection string, ids ...string) error {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("delete from %s failed: %w", collection, err)
	}
	return nil
}

// DeleteByFilter removes every point matching the filter.
func (s *QdrantStore) DeleteByFilter(ctx context.Context, collection string, filter *memory.Filter) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(toQdrantFilter(filter)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("delete by filter from %s failed: %w", collection, err)
	}
	return nil
}

// Count returns the exact number of points matching the filter.
func (s *QdrantStore) Count(ctx context.Context, collection string, filter *memory.Filter) (int64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         toQdrantFilter(filter),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("count in %s failed: %w", collection, err)
	}
	return int64(n), nil
}

// Close tears down the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// ============ internal helpers ============

func parseVectorURL(rawURL string) (host string, port int, useTLS bool, err error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, false, err
	}
	host = u.Hostname()
	if host == "" {
		return "", 0, false, fmt.Errorf("missing host")
	}
	useTLS = u.Scheme == "https"
	port = 6334
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid port %q", p)
		}
	}
	return host, port, useTLS, nil
}

func toQdrantFilter(filter *memory.Filter) *qdrant.Filter {
	if filter == nil || len(filter.Must) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter.Must))
	for _, field := range filter.SortedFields() {
		switch v := filter.Must[field].(type) {
		case string:
			conditions = append(conditions, qdrant.NewMatch(field, v))
		case int:
			conditions = append(conditions, qdrant.NewMatchInt(field, int64(v)))
		case int64:
			conditions = append(conditions, qdrant.NewMatchInt(field, v))
		case bool:
			conditions = append(conditions, qdrant.NewMatchBool(field, v))
		default:
			conditions = append(conditions, qdrant.NewMatch(field, fmt.Sprintf("%v", v)))
		}
	}
	return &qdrant.Filter{Must: conditions}
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]interface{} {
	result := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		result[key] = valueToInterface(value)
	}
	return result
}

func valueToInterface(value *qdrant.Value) interface{} {
	if value == nil {
		return nil
	}
	switch v := value.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_NullValue:
		return nil
	default:
		return value.String()
	}
}

var _ memory.Store = (*QdrantStore)(nil)
