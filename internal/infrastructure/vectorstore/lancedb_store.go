package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mijoai/mijo-gateway/internal/domain/memory"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	arrowmem "github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/lancedb/lancedb-go/pkg/contracts"
	"github.com/lancedb/lancedb-go/pkg/lancedb"
	"go.uber.org/zap"
)

// ShadowStore is the embedded LanceDB replica of the messages collection.
// It accepts only memory.CollectionMessages; the physical table name is
// configurable so multiple deployments can share one data directory.
//
// Implements memory.Store.
type ShadowStore struct {
	conn      contracts.IConnection
	table     contracts.ITable
	schema    *arrow.Schema
	tableName string
	dimension int
	logger    *zap.Logger
}

// NewShadowStore opens (or creates) the local LanceDB table.
// dbPath: directory to persist LanceDB data (e.g. ./data/lancedb).
// dimension: embedding vector dimension.
func NewShadowStore(dbPath, tableName string, dimension int, logger *zap.Logger) (*ShadowStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "shadow-store"))

	absPath, err := expandPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand store path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	ctx := context.Background()
	conn, err := lancedb.Connect(ctx, absPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LanceDB at %s: %w", absPath, err)
	}

	// Column names mirror the authoritative payload field names so filter
	// expressions translate one to one.
	fields := []arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: memory.FieldExternalMessageID, Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: memory.FieldRoomID, Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: memory.FieldSenderID, Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: memory.FieldSenderName, Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: memory.FieldContent, Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "vector", Type: arrow.FixedSizeListOf(int32(dimension), arrow.PrimitiveTypes.Float32), Nullable: false},
		{Name: memory.FieldCreatedAt, Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	}
	arrowSchema := arrow.NewSchema(fields, nil)

	table, err := openOrCreateTable(ctx, conn, tableName, arrowSchema, logger)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open/create table: %w", err)
	}

	logger.Info("Shadow vector store initialized",
		zap.String("path", absPath),
		zap.String("table", tableName),
		zap.Int("dimension", dimension),
	)

	return &ShadowStore{
		conn:      conn,
		table:     table,
		schema:    arrowSchema,
		tableName: tableName,
		dimension: dimension,
		logger:    logger,
	}, nil
}

func openOrCreateTable(ctx context.Context, conn contracts.IConnection, tableName string, arrowSchema *arrow.Schema, logger *zap.Logger) (contracts.ITable, error) {
	table, err := conn.OpenTable(ctx, tableName)
	if err == nil {
		logger.Info("Opened existing LanceDB table", zap.String("table", tableName))
		return table, nil
	}

	// Created empty from the explicit schema; no marker row is needed.
	logger.Info("Creating new LanceDB table", zap.String("table", tableName))
	schema, err := lancedb.NewSchema(arrowSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to create LanceDB schema: %w", err)
	}
	return conn.CreateTable(ctx, tableName, schema)
}

// EnsureCollection validates the logical collection name. The physical
// table already exists by construction, so this is a no-op for messages.
func (s *ShadowStore) EnsureCollection(_ context.Context, spec memory.CollectionSpec, _ int) error {
	return s.guard(spec.Name)
}

// Upsert stores message points, replacing any existing rows with the same ID.
func (s *ShadowStore) Upsert(ctx context.Context, collection string, points ...*memory.Point) error {
	if err := s.guard(collection); err != nil {
		return err
	}
	for _, p := range points {
		// LanceDB has no native upsert; delete-then-add keeps IDs unique.
		if err := s.table.Delete(ctx, fmt.Sprintf("id = '%s'", escape(p.ID))); err != nil {
			s.logger.Debug("Pre-upsert delete failed (row may not exist)", zap.String("id", p.ID), zap.Error(err))
		}
		record, err := s.pointToRecord(p)
		if err != nil {
			return fmt.Errorf("failed to build Arrow record: %w", err)
		}
		err = s.table.Add(ctx, record, nil)
		record.Release()
		if err != nil {
			return fmt.Errorf("LanceDB insert failed: %w", err)
		}
	}
	return nil
}

// Retrieve fetches points by ID; missing IDs are skipped.
func (s *ShadowStore) Retrieve(ctx context.Context, collection string, ids ...string) ([]*memory.Point, error) {
	if err := s.guard(collection); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.table.SelectWithFilter(ctx, idListExpr(ids))
	if err != nil {
		return nil, fmt.Errorf("LanceDB select failed: %w", err)
	}
	points := make([]*memory.Point, 0, len(rows))
	for _, row := range rows {
		if p := rowToPoint(row); p != nil {
			points = append(points, p)
		}
	}
	return points, nil
}

// Search performs vector similarity search with an optional payload filter.
func (s *ShadowStore) Search(ctx context.Context, collection string, vector []float32, limit int, filter *memory.Filter) ([]*memory.ScoredPoint, error) {
	if err := s.guard(collection); err != nil {
		return nil, err
	}

	filterExpr := buildFilterExpr(filter)

	var rows []map[string]interface{}
	var err error
	if filterExpr != "" {
		rows, err = s.table.VectorSearchWithFilter(ctx, "vector", vector, limit, filterExpr)
	} else {
		rows, err = s.table.VectorSearch(ctx, "vector", vector, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("LanceDB vector search failed: %w", err)
	}

	results := make([]*memory.ScoredPoint, 0, len(rows))
	for _, row := range rows {
		p := rowToPoint(row)
		if p == nil {
			continue
		}
		sp := &memory.ScoredPoint{Point: *p, Source: memory.SourceShadow}
		// LanceDB returns _distance for vector search results
		if v, ok := toFloat32(row["_distance"]); ok {
			sp.Score = 1.0 / (1.0 + v) // L2 distance → (0,1] similarity
		}
		results = append(results, sp)
	}
	return results, nil
}

// Scroll enumerates points matching the filter.
func (s *ShadowStore) Scroll(ctx context.Context, collection string, filter *memory.Filter, limit int) ([]*memory.Point, error) {
	if err := s.guard(collection); err != nil {
		return nil, err
	}

	expr := buildFilterExpr(filter)
	if expr == "" {
		expr = "id IS NOT NULL"
	}
	rows, err := s.table.SelectWithFilter(ctx, expr)
	if err != nil {
		return nil, fmt.Errorf("LanceDB select failed: %w", err)
	}

	points := make([]*memory.Point, 0, len(rows))
	for _, row := range rows {
		if p := rowToPoint(row); p != nil {
			points = append(points, p)
			if limit > 0 && len(points) >= limit {
				break
			}
		}
	}
	return points, nil
}

// Delete removes points by ID.
func (s *ShadowStore) Delete(ctx context.Context, collection string, ids ...string) error {
	if err := s.guard(collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.table.Delete(ctx, idListExpr(ids)); err != nil {
		return fmt.Errorf("LanceDB delete failed: %w", err)
	}
	return nil
}

// DeleteByFilter removes every point matching the filter.
func (s *ShadowStore) DeleteByFilter(ctx context.Context, collection string, filter *memory.Filter) error {
	if err := s.guard(collection); err != nil {
		return err
	}
	expr := buildFilterExpr(filter)
	if expr == "" {
		expr = "id IS NOT NULL"
	}
	if err := s.table.Delete(ctx, expr); err != nil {
		return fmt.Errorf("LanceDB delete failed: %w", err)
	}
	return nil
}

// Count returns the number of points matching the filter.
func (s *ShadowStore) Count(ctx context.Context, collection string, filter *memory.Filter) (int64, error) {
	if err := s.guard(collection); err != nil {
		return 0, err
	}
	points, err := s.Scroll(ctx, collection, filter, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(points)), nil
}

// Close releases LanceDB resources.
func (s *ShadowStore) Close() error {
	if s.table != nil {
		s.table.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}

func (s *ShadowStore) guard(collection string) error {
	if collection != memory.CollectionMessages {
		return fmt.Errorf("shadow store only holds %q, got %q", memory.CollectionMessages, collection)
	}
	return nil
}

// ============ internal helpers ============

func (s *ShadowStore) pointToRecord(p *memory.Point) (arrow.Record, error) {
	pool := arrowmem.NewGoAllocator()

	idArr := stringColumn(pool, p.ID)
	defer idArr.Release()

	extArr := stringColumn(pool, payloadString(p.Payload, memory.FieldExternalMessageID))
	defer extArr.Release()

	roomArr := stringColumn(pool, payloadString(p.Payload, memory.FieldRoomID))
	defer roomArr.Release()

	senderArr := stringColumn(pool, payloadString(p.Payload, memory.FieldSenderID))
	defer senderArr.Release()

	senderNameArr := stringColumn(pool, payloadString(p.Payload, memory.FieldSenderName))
	defer senderNameArr.Release()

	contentArr := stringColumn(pool, payloadString(p.Payload, memory.FieldContent))
	defer contentArr.Release()

	vectorArr, err := buildVectorArray(pool, p.Vector, s.dimension)
	if err != nil {
		return nil, err
	}
	defer vectorArr.Release()

	createdB := array.NewInt64Builder(pool)
	createdB.Append(payloadMillis(p.Payload, memory.FieldCreatedAt))
	createdArr := createdB.NewArray()
	defer createdArr.Release()

	cols := []arrow.Array{idArr, extArr, roomArr, senderArr, senderNameArr, contentArr, vectorArr, createdArr}
	return array.NewRecord(s.schema, cols, 1), nil
}

func stringColumn(pool arrowmem.Allocator, value string) arrow.Array {
	b := array.NewStringBuilder(pool)
	b.Append(value)
	return b.NewArray()
}

func buildVectorArray(pool arrowmem.Allocator, vec []float32, dim int) (arrow.Array, error) {
	if len(vec) != dim {
		return nil, fmt.Errorf("vector dimension mismatch: expected %d, got %d", dim, len(vec))
	}

	floatB := array.NewFloat32Builder(pool)
	floatB.AppendValues(vec, nil)
	floatArr := floatB.NewArray()
	defer floatArr.Release()

	listType := arrow.FixedSizeListOf(int32(dim), arrow.PrimitiveTypes.Float32)
	listData := array.NewData(listType, 1, []*arrowmem.Buffer{nil},
		[]arrow.ArrayData{floatArr.Data()}, 0, 0)
	return array.NewFixedSizeListData(listData), nil
}

// buildFilterExpr renders a payload filter as a LanceDB SQL predicate.
// Fields are visited in sorted order so the expression is stable.
func buildFilterExpr(filter *memory.Filter) string {
	if filter == nil {
		return ""
	}
	var parts []string
	for _, field := range filter.SortedFields() {
		value := filter.Must[field]
		if str, ok := value.(string); ok {
			parts = append(parts, fmt.Sprintf("%s = '%s'", field, escape(str)))
		} else {
			parts = append(parts, fmt.Sprintf("%s = %v", field, value))
		}
	}
	return strings.Join(parts, " AND ")
}

func idListExpr(ids []string) string {
	if len(ids) == 1 {
		return fmt.Sprintf("id = '%s'", escape(ids[0]))
	}
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = "'" + escape(id) + "'"
	}
	return fmt.Sprintf("id IN (%s)", strings.Join(quoted, ", "))
}

// escape doubles single quotes for SQL string literals.
func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func rowToPoint(row map[string]interface{}) *memory.Point {
	p := &memory.Point{Payload: make(map[string]interface{})}

	if v, ok := row["id"].(string); ok {
		p.ID = v
	}
	for _, field := range []string{
		memory.FieldExternalMessageID,
		memory.FieldRoomID,
		memory.FieldSenderID,
		memory.FieldSenderName,
		memory.FieldContent,
	} {
		if v, ok := row[field].(string); ok {
			p.Payload[field] = v
		}
	}
	if v, ok := toInt64(row[memory.FieldCreatedAt]); ok {
		p.Payload[memory.FieldCreatedAt] = time.UnixMilli(v).UTC().Format(time.RFC3339Nano)
	}
	return p
}

func payloadString(payload map[string]interface{}, field string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[field].(string); ok {
		return v
	}
	return ""
}

// payloadMillis reads an RFC 3339 payload timestamp as Unix milliseconds.
func payloadMillis(payload map[string]interface{}, field string) int64 {
	raw := payloadString(payload, field)
	if raw == "" {
		return time.Now().UTC().UnixMilli()
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Now().UTC().UnixMilli()
	}
	return t.UnixMilli()
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}

func toFloat32(v interface{}) (float32, bool) {
	switch n := v.(type) {
	case float32:
		return n, true
	case float64:
		return float32(n), true
	}
	return 0, false
}

func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

var _ memory.Store = (*ShadowStore)(nil)
