package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/domain/identity"
	"github.com/mijoai/mijo-gateway/internal/domain/memory"
	"github.com/mijoai/mijo-gateway/internal/domain/repository"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
)

const testDim = 4

func newMessage(t *testing.T, externalID, roomID, content string, at time.Time) *entity.Message {
	t.Helper()
	msg, err := entity.NewMessage(identity.NewMessageID(), externalID, roomID)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	msg.SenderID = "sender-1"
	msg.SenderName = "Omar"
	msg.Content = content
	msg.CreatedAt = at
	return msg
}

func TestVectorMessageRepository_SaveWritesBothStores(t *testing.T) {
	ctx := context.Background()
	authoritative := memory.NewInMemoryStore()
	shadow := memory.NewInMemoryStore()
	repo := NewVectorMessageRepository(authoritative, shadow, nil)

	msg := newMessage(t, "ext-1", "room-1", "hello", time.Now())
	if err := repo.Save(ctx, msg, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	for name, store := range map[string]memory.Store{"authoritative": authoritative, "shadow": shadow} {
		n, err := store.Count(ctx, memory.CollectionMessages, nil)
		if err != nil {
			t.Fatalf("%s Count failed: %v", name, err)
		}
		if n != 1 {
			t.Errorf("%s store should hold 1 point, got %d", name, n)
		}
	}
}

func TestVectorMessageRepository_FindByExternalID(t *testing.T) {
	ctx := context.Background()
	repo := NewVectorMessageRepository(memory.NewInMemoryStore(), memory.NewInMemoryStore(), nil)

	msg := newMessage(t, "ext-9", "room-5", "مرحبا", time.Now())
	if err := repo.Save(ctx, msg, []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	found, err := repo.FindByExternalID(ctx, "ext-9", "room-5")
	if err != nil {
		t.Fatalf("FindByExternalID failed: %v", err)
	}
	if found.Content != "مرحبا" || found.SenderName != "Omar" {
		t.Errorf("unexpected entity: %+v", found)
	}

	// Same external ID in a different room must not match.
	if _, err := repo.FindByExternalID(ctx, "ext-9", "room-6"); !domainErrors.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestVectorMessageRepository_LatestByRoom_NewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewVectorMessageRepository(memory.NewInMemoryStore(), memory.NewInMemoryStore(), nil)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		msg := newMessage(t, "ext-"+string(rune('a'+i)), "room-1", "m", base.Add(time.Duration(i)*time.Minute))
		if err := repo.Save(ctx, msg, []float32{1, 0, 0, 0}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	latest, err := repo.LatestByRoom(ctx, "room-1", 3)
	if err != nil {
		t.Fatalf("LatestByRoom failed: %v", err)
	}
	if len(latest) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(latest))
	}
	for i := 1; i < len(latest); i++ {
		if latest[i].CreatedAt.After(latest[i-1].CreatedAt) {
			t.Fatal("messages should be ordered newest first")
		}
	}
	if latest[0].ExternalMessageID != "ext-e" {
		t.Errorf("newest message should be ext-e, got %s", latest[0].ExternalMessageID)
	}
}

func TestVectorMessageRepository_DeleteByRoom(t *testing.T) {
	ctx := context.Background()
	authoritative := memory.NewInMemoryStore()
	shadow := memory.NewInMemoryStore()
	repo := NewVectorMessageRepository(authoritative, shadow, nil)

	repo.Save(ctx, newMessage(t, "e1", "room-1", "a", time.Now()), []float32{1, 0, 0, 0})
	repo.Save(ctx, newMessage(t, "e2", "room-2", "b", time.Now()), []float32{1, 0, 0, 0})

	if err := repo.DeleteByRoom(ctx, "room-1"); err != nil {
		t.Fatalf("DeleteByRoom failed: %v", err)
	}

	for name, store := range map[string]memory.Store{"authoritative": authoritative, "shadow": shadow} {
		n, _ := store.Count(ctx, memory.CollectionMessages, nil)
		if n != 1 {
			t.Errorf("%s store should hold 1 point after room delete, got %d", name, n)
		}
	}
}

func TestVectorAggregateRepository_RoomRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	repo := NewVectorAggregateRepository(store, testDim)

	got, err := repo.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if got != nil {
		t.Fatal("absent aggregate should be nil")
	}

	agg, _ := entity.NewRoomAggregate("room-1")
	agg.ApplySummary("نقاش عن المشروع")
	if err := repo.SaveRoom(ctx, agg); err != nil {
		t.Fatalf("SaveRoom failed: %v", err)
	}
	agg.ApplySummary("نقاش عن المشروع والتسليم")
	if err := repo.SaveRoom(ctx, agg); err != nil {
		t.Fatalf("second SaveRoom failed: %v", err)
	}

	// Deterministic point ID: repeated saves land on the same point.
	n, _ := store.Count(ctx, memory.CollectionRooms, nil)
	if n != 1 {
		t.Fatalf("expected 1 room point after two saves, got %d", n)
	}

	got, err = repo.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if got.Summary != "نقاش عن المشروع والتسليم" {
		t.Errorf("unexpected summary: %q", got.Summary)
	}
	if got.MessageCount != 2 {
		t.Errorf("expected messageCount 2, got %d", got.MessageCount)
	}
}

func TestVectorHistoryRepository_QueryNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewVectorHistoryRepository(memory.NewInMemoryStore(), testDim)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		rec, _ := entity.NewAIChatRecord(identity.NewChatRecordID(), "u1", "room-1", "q", "a")
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	records, err := repo.Latest(ctx, "u1", "room-1", 2)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !records[0].CreatedAt.After(records[1].CreatedAt) {
		t.Fatal("records should be newest first")
	}
}

func TestVectorHistoryRepository_DeleteForRoom(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	repo := NewVectorHistoryRepository(store, testDim)

	for _, user := range []string{"u1", "u2"} {
		rec, _ := entity.NewAIChatRecord(identity.NewChatRecordID(), user, "room-1", "q", "a")
		repo.Insert(ctx, rec)
	}

	// Scoped delete keeps the other user's records.
	if err := repo.DeleteForRoom(ctx, "room-1", "u1"); err != nil {
		t.Fatalf("DeleteForRoom failed: %v", err)
	}
	left, _ := repo.Query(ctx, repository.HistoryQuery{RoomID: "room-1"})
	if len(left) != 1 || left[0].UserID != "u2" {
		t.Fatalf("expected only u2 records to remain, got %d", len(left))
	}

	if err := repo.DeleteForRoom(ctx, "room-1", ""); err != nil {
		t.Fatalf("room-wide delete failed: %v", err)
	}
	left, _ = repo.Query(ctx, repository.HistoryQuery{RoomID: "room-1"})
	if len(left) != 0 {
		t.Fatalf("expected empty history, got %d", len(left))
	}
}
