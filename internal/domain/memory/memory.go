package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Source 标识检索结果来源的存储
const (
	SourceAuthoritative = "authoritative"
	SourceShadow        = "shadow"
)

// 集合名（托管向量库侧）
const (
	CollectionMessages = "messages"
	CollectionRooms    = "rooms"
	CollectionUsers    = "users"
	CollectionAIChats  = "aiChatMessages"
)

// 载荷字段名, 与远端索引定义保持一致
const (
	FieldExternalMessageID = "externalMessageId"
	FieldRoomID            = "roomId"
	FieldSenderID          = "senderId"
	FieldSenderName        = "senderName"
	FieldUserID            = "userId"
	FieldContent           = "content"
	FieldSummary           = "summary"
	FieldPersonalization   = "personalizationSummary"
	FieldMessageCount      = "messageCount"
	FieldQuestion          = "question"
	FieldAnswer            = "answer"
	FieldSuggestedAnswer   = "suggestedAnswer"
	FieldProvider          = "provider"
	FieldModel             = "model"
	FieldCreatedAt         = "createdAt"
	FieldUpdatedAt         = "updatedAt"
)

// IndexKind 载荷索引类型
type IndexKind string

const (
	IndexKeyword  IndexKind = "keyword"
	IndexDatetime IndexKind = "datetime"
)

// FieldIndex 载荷字段索引定义
type FieldIndex struct {
	Field string
	Kind  IndexKind
}

// CollectionSpec 集合定义：名称 + 需要建立的载荷索引
type CollectionSpec struct {
	Name    string
	Indexes []FieldIndex
}

// Catalogue returns every collection the gateway bootstraps on startup.
func Catalogue() []CollectionSpec {
	return []CollectionSpec{
		{
			Name: CollectionMessages,
			Indexes: []FieldIndex{
				{Field: FieldExternalMessageID, Kind: IndexKeyword},
				{Field: FieldRoomID, Kind: IndexKeyword},
				{Field: FieldSenderID, Kind: IndexKeyword},
				{Field: FieldCreatedAt, Kind: IndexDatetime},
			},
		},
		{
			Name:    CollectionRooms,
			Indexes: []FieldIndex{{Field: FieldRoomID, Kind: IndexKeyword}},
		},
		{
			Name:    CollectionUsers,
			Indexes: []FieldIndex{{Field: FieldUserID, Kind: IndexKeyword}},
		},
		{
			Name: CollectionAIChats,
			Indexes: []FieldIndex{
				{Field: FieldUserID, Kind: IndexKeyword},
				{Field: FieldRoomID, Kind: IndexKeyword},
				{Field: FieldCreatedAt, Kind: IndexDatetime},
			},
		},
	}
}

// Point 向量点位：ID + 向量 + 载荷
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint 检索结果, Source 标记来源存储
type ScoredPoint struct {
	Point
	Score  float32
	Source string
}

// Filter 载荷等值过滤（条件取 AND）
type Filter struct {
	Must map[string]interface{}
}

// NewFilter 构建单条件过滤器
func NewFilter(field string, value interface{}) *Filter {
	return &Filter{Must: map[string]interface{}{field: value}}
}

// With 追加条件
func (f *Filter) With(field string, value interface{}) *Filter {
	f.Must[field] = value
	return f
}

// Matches reports whether a payload satisfies every condition. Values are
// compared as strings since payloads round-trip through JSON.
func (f *Filter) Matches(payload map[string]interface{}) bool {
	if f == nil {
		return true
	}
	for field, want := range f.Must {
		got, ok := payload[field]
		if !ok || stringify(got) != stringify(want) {
			return false
		}
	}
	return true
}

// SortedFields 返回按字段名排序的条件键, 保证表达式构建稳定
func (f *Filter) SortedFields() []string {
	if f == nil {
		return nil
	}
	fields := make([]string, 0, len(f.Must))
	for field := range f.Must {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// Store 向量存储统一接口, 托管库与本地影子库各自实现
type Store interface {
	// EnsureCollection 创建缺失的集合与载荷索引（幂等）
	EnsureCollection(ctx context.Context, spec CollectionSpec, vectorSize int) error

	// Upsert 写入或覆盖点位
	Upsert(ctx context.Context, collection string, points ...*Point) error

	// Retrieve 按 ID 取点位, 不存在的 ID 直接跳过
	Retrieve(ctx context.Context, collection string, ids ...string) ([]*Point, error)

	// Search 向量相似检索
	Search(ctx context.Context, collection string, vector []float32, limit int, filter *Filter) ([]*ScoredPoint, error)

	// Scroll 按过滤器枚举点位, limit <= 0 表示不限
	Scroll(ctx context.Context, collection string, filter *Filter, limit int) ([]*Point, error)

	// Delete 按 ID 删除
	Delete(ctx context.Context, collection string, ids ...string) error

	// DeleteByFilter 按过滤器删除
	DeleteByFilter(ctx context.Context, collection string, filter *Filter) error

	// Count 统计满足过滤器的点位数
	Count(ctx context.Context, collection string, filter *Filter) (int64, error)
}

// Embedder 嵌入向量提供者接口
type Embedder interface {
	// Embed 生成文本嵌入, prefix 为 query / passage 之一
	Embed(ctx context.Context, text, prefix string) ([]float32, error)
	// Model 返回模型名
	Model() string
	// Dimension 返回向量维度
	Dimension() int
}

// 嵌入前缀：检索用 query, 入库用 passage
const (
	PrefixQuery   = "query"
	PrefixPassage = "passage"
)

// ZeroVector returns an all-zero vector. Aggregate and chat-history points
// are payload-only and carry one of these.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		// JSON round-trips turn payload ints into float64.
		if t == math.Trunc(t) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// InMemoryStore 内存实现 (测试与小规模场景)
type InMemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*Point
}

// NewInMemoryStore 创建内存存储
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{collections: make(map[string]map[string]*Point)}
}

// EnsureCollection 创建集合（内存实现忽略索引定义）
func (s *InMemoryStore) EnsureCollection(_ context.Context, spec CollectionSpec, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[spec.Name]; !ok {
		s.collections[spec.Name] = make(map[string]*Point)
	}
	return nil
}

// Upsert 写入或覆盖点位
func (s *InMemoryStore) Upsert(_ context.Context, collection string, points ...*Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.ensure(collection)
	for _, p := range points {
		cp := *p
		coll[p.ID] = &cp
	}
	return nil
}

// Retrieve 按 ID 取点位
func (s *InMemoryStore) Retrieve(_ context.Context, collection string, ids ...string) ([]*Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll := s.collections[collection]
	var results []*Point
	for _, id := range ids {
		if p, ok := coll[id]; ok {
			cp := *p
			results = append(results, &cp)
		}
	}
	return results, nil
}

// Search 余弦相似度检索
func (s *InMemoryStore) Search(_ context.Context, collection string, vector []float32, limit int, filter *Filter) ([]*ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []*ScoredPoint
	for _, p := range s.collections[collection] {
		if !filter.Matches(p.Payload) {
			continue
		}
		cp := *p
		candidates = append(candidates, &ScoredPoint{
			Point: cp,
			Score: cosineSimilarity(vector, p.Vector),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Scroll 按过滤器枚举
func (s *InMemoryStore) Scroll(_ context.Context, collection string, filter *Filter, limit int) ([]*Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Point
	for _, p := range s.collections[collection] {
		if !filter.Matches(p.Payload) {
			continue
		}
		cp := *p
		results = append(results, &cp)
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

// Delete 按 ID 删除
func (s *InMemoryStore) Delete(_ context.Context, collection string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collections[collection]
	for _, id := range ids {
		delete(coll, id)
	}
	return nil
}

// DeleteByFilter 按过滤器删除
func (s *InMemoryStore) DeleteByFilter(_ context.Context, collection string, filter *Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collections[collection]
	for id, p := range coll {
		if filter.Matches(p.Payload) {
			delete(coll, id)
		}
	}
	return nil
}

// Count 统计满足过滤器的点位数
func (s *InMemoryStore) Count(_ context.Context, collection string, filter *Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, p := range s.collections[collection] {
		if filter.Matches(p.Payload) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) ensure(collection string) map[string]*Point {
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]*Point)
		s.collections[collection] = coll
	}
	return coll
}

// cosineSimilarity 计算余弦相似度
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
