package identity

import "testing"

func TestRoomPointID_Deterministic(t *testing.T) {
	a := RoomPointID("room-42")
	b := RoomPointID("room-42")
	if a != b {
		t.Fatalf("same room produced different IDs: %s vs %s", a, b)
	}
	if a == RoomPointID("room-43") {
		t.Fatal("different rooms produced the same ID")
	}
}

func TestUserPointID_Deterministic(t *testing.T) {
	a := UserPointID("user-7")
	if a != UserPointID("user-7") {
		t.Fatal("same user produced different IDs")
	}
}

func TestRoomAndUserNamespaces_Disjoint(t *testing.T) {
	// The same external string must never collide across families.
	if RoomPointID("alpha") == UserPointID("alpha") {
		t.Fatal("room and user namespaces collided for identical external id")
	}
}

func TestNewMessageID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewMessageID()
		if seen[id] {
			t.Fatalf("duplicate message id %s", id)
		}
		seen[id] = true
	}
}
