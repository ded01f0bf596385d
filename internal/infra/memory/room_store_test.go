package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"live-quiz-service/internal/domain"
)

func sampleRoom() *domain.Room {
	quiz := domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{{
			ID:              "q1",
			Kind:            domain.KindScored,
			Options:         []domain.Option{{ID: "A"}, {ID: "B"}},
			CorrectOptionID: "A",
		}},
	}
	room := domain.NewRoom("ABC123", "host-conn", "host-user", quiz)
	room.AddParticipant("conn-1", "Alice")
	return room
}

func TestRoomStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore(time.Hour)
	room := sampleRoom()

	if err := store.Save(ctx, room); err != nil {
		t.Fatalf("save: %v", err)
	}

	ok, err := store.Exists(ctx, "ABC123")
	if err != nil || !ok {
		t.Fatalf("exists: ok=%v err=%v", ok, err)
	}

	loaded, err := store.Load(ctx, "ABC123")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ID != room.ID || len(loaded.Participants) != 1 {
		t.Fatalf("loaded room mismatch: %+v", loaded)
	}
	// Load hands back a rebuilt copy, not the saved pointer.
	if loaded == room {
		t.Fatal("store returned the original pointer")
	}

	if err := store.Delete(ctx, "ABC123"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, "ABC123"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestRoomStoreMissingRoom(t *testing.T) {
	store := NewRoomStore(time.Hour)
	if _, err := store.Load(context.Background(), "NOPE42"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	ok, err := store.Exists(context.Background(), "NOPE42")
	if err != nil || ok {
		t.Fatalf("exists on missing room: ok=%v err=%v", ok, err)
	}
}

func TestRoomStoreExpiry(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := NewRoomStoreWithClock(time.Minute, clock)

	if err := store.Save(ctx, sampleRoom()); err != nil {
		t.Fatalf("save: %v", err)
	}

	clock.Advance(30 * time.Second)
	if _, err := store.Load(ctx, "ABC123"); err != nil {
		t.Fatalf("load before expiry: %v", err)
	}

	clock.Advance(31 * time.Second)
	if _, err := store.Load(ctx, "ABC123"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
	ok, _ := store.Exists(ctx, "ABC123")
	if ok {
		t.Fatal("expired room still reported as existing")
	}
}

func TestRoomStoreSaveRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := NewRoomStoreWithClock(time.Minute, clock)

	store.Save(ctx, sampleRoom())
	clock.Advance(45 * time.Second)
	store.Save(ctx, sampleRoom())
	clock.Advance(45 * time.Second)

	if _, err := store.Load(ctx, "ABC123"); err != nil {
		t.Fatalf("refreshed room expired: %v", err)
	}
}
