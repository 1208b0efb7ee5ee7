package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/domain/repository"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/queue"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/ratelimit"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
)

// MockMessageRepo 模拟消息仓储
type MockMessageRepo struct {
	mu            sync.Mutex
	saved         []*entity.Message
	savedVectors  [][]float32
	byExternalID  map[string]*entity.Message
	latest        []*entity.Message
	searchResults *repository.SearchResults

	searchVector   []float32
	searchLimit    int
	searchMinScore float32
	searchRoomID   string

	deletedExternal []string
	deletedRooms    []string
}

func (m *MockMessageRepo) Save(ctx context.Context, message *entity.Message, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, message)
	m.savedVectors = append(m.savedVectors, vector)
	return nil
}

func (m *MockMessageRepo) FindByExternalID(ctx context.Context, externalMessageID, roomID string) (*entity.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byExternalID[externalMessageID]
	if !ok || msg.RoomID != roomID {
		return nil, domainErrors.NewNotFoundError("message not found")
	}
	return msg, nil
}

func (m *MockMessageRepo) LatestByRoom(ctx context.Context, roomID string, limit int) ([]*entity.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, nil
}

func (m *MockMessageRepo) Search(ctx context.Context, vector []float32, limit int, minScore float32, roomID string) (*repository.SearchResults, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchVector = vector
	m.searchLimit = limit
	m.searchMinScore = minScore
	m.searchRoomID = roomID
	if m.searchResults != nil {
		return m.searchResults, nil
	}
	return &repository.SearchResults{}, nil
}

func (m *MockMessageRepo) DeleteByExternalID(ctx context.Context, externalMessageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedExternal = append(m.deletedExternal, externalMessageID)
	return nil
}

func (m *MockMessageRepo) DeleteByRoom(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedRooms = append(m.deletedRooms, roomID)
	return nil
}

func (m *MockMessageRepo) savedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

// MockAggregateRepo 模拟聚合仓储
type MockAggregateRepo struct {
	mu           sync.Mutex
	rooms        map[string]*entity.RoomAggregate
	users        map[string]*entity.UserAggregate
	deletedRooms []string
}

func newMockAggregateRepo() *MockAggregateRepo {
	return &MockAggregateRepo{
		rooms: make(map[string]*entity.RoomAggregate),
		users: make(map[string]*entity.UserAggregate),
	}
}

func (m *MockAggregateRepo) GetRoom(ctx context.Context, roomID string) (*entity.RoomAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[roomID], nil
}

func (m *MockAggregateRepo) SaveRoom(ctx context.Context, aggregate *entity.RoomAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[aggregate.RoomID] = aggregate
	return nil
}

func (m *MockAggregateRepo) GetUser(ctx context.Context, userID string) (*entity.UserAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID], nil
}

func (m *MockAggregateRepo) SaveUser(ctx context.Context, aggregate *entity.UserAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[aggregate.UserID] = aggregate
	return nil
}

func (m *MockAggregateRepo) DeleteRoom(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
	m.deletedRooms = append(m.deletedRooms, roomID)
	return nil
}

func (m *MockAggregateRepo) room(roomID string) *entity.RoomAggregate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[roomID]
}

func (m *MockAggregateRepo) user(userID string) *entity.UserAggregate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID]
}

// MockChatHistory 模拟对话历史仓储
type MockChatHistory struct {
	mu       sync.Mutex
	inserted []*entity.AIChatRecord
	records  []*entity.AIChatRecord

	lastQuery   repository.HistoryQuery
	deletedRoom string
	deletedUser string
}

func (m *MockChatHistory) Insert(ctx context.Context, record *entity.AIChatRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, record)
	return nil
}

func (m *MockChatHistory) Latest(ctx context.Context, userID, roomID string, limit int) ([]*entity.AIChatRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records, nil
}

func (m *MockChatHistory) Query(ctx context.Context, q repository.HistoryQuery) ([]*entity.AIChatRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = q
	return m.records, nil
}

func (m *MockChatHistory) DeleteForRoom(ctx context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedRoom = roomID
	m.deletedUser = userID
	return nil
}

func (m *MockChatHistory) insertedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inserted)
}

func (m *MockChatHistory) firstInserted() *entity.AIChatRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inserted) == 0 {
		return nil
	}
	return m.inserted[0]
}

// MockEmbedder 模拟嵌入提供者, 返回固定向量并记录前缀
type MockEmbedder struct {
	mu         sync.Mutex
	vector     []float32
	lastPrefix string
	lastText   string
	err        error
}

func newMockEmbedder() *MockEmbedder {
	return &MockEmbedder{vector: []float32{0.1, 0.2, 0.3, 0.4}}
}

func (m *MockEmbedder) Embed(ctx context.Context, text, prefix string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastText = text
	m.lastPrefix = prefix
	if m.err != nil {
		return nil, m.err
	}
	return m.vector, nil
}

func (m *MockEmbedder) Model() string { return "test-embed" }

func (m *MockEmbedder) Dimension() int { return 4 }

// MockLimiter 模拟限流器, 始终放行
type MockLimiter struct {
	statuses []ratelimit.ProviderStatus
}

func (m *MockLimiter) Check(ctx context.Context, provider, service string) ratelimit.Decision {
	return ratelimit.Decision{Allowed: true}
}

func (m *MockLimiter) Increment(ctx context.Context, provider, service string) {}

func (m *MockLimiter) Status(ctx context.Context) ([]ratelimit.ProviderStatus, error) {
	return m.statuses, nil
}

func (m *MockLimiter) StatusFor(ctx context.Context, provider, service string) (ratelimit.ProviderStatus, error) {
	for _, s := range m.statuses {
		if s.Provider == provider && s.Service == service {
			return s, nil
		}
	}
	return ratelimit.ProviderStatus{Provider: provider, Service: service}, nil
}

func (m *MockLimiter) Reset(ctx context.Context, provider, service string) error { return nil }

// MockSummaryGenerator 模拟摘要生成端口
type MockSummaryGenerator struct {
	mu      sync.Mutex
	summary string
	calls   int
}

func (m *MockSummaryGenerator) Summarize(ctx context.Context, promptText string, maxTokens int, temperature float32) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.summary, nil
}

// runJobs drains every queue kind in the background until the test ends,
// feeding each reserved job to handle. A nil failure completes the job
// with the returned result.
func runJobs(t *testing.T, q *queue.MemoryQueue, handle func(job *entity.Job) (any, *queue.Failure)) {
	t.Helper()
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })

	go func() {
		ctx := context.Background()
		for {
			select {
			case <-stop:
				return
			default:
			}
			worked := false
			for _, kind := range entity.JobKinds() {
				job, err := q.Reserve(ctx, kind)
				if err != nil || job == nil {
					continue
				}
				worked = true
				result, failure := handle(job)
				if failure != nil {
					_ = q.Fail(ctx, job, *failure)
				} else {
					_ = q.Complete(ctx, job, result)
				}
			}
			if !worked {
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
}

// waitFor polls cond until it holds or the deadline lapses. Detached
// goroutines finish on their own schedule; tests observe them this way.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
