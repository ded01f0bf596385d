package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"live-quiz-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore. Rooms are held
// as encoded bytes with an expiry, so callers go through the same
// serialize-on-save / rebuild-on-load cycle as the redis store.
type RoomStore struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu    sync.RWMutex
	rooms map[string]roomEntry
}

type roomEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewRoomStore(ttl time.Duration) *RoomStore {
	return NewRoomStoreWithClock(ttl, clockwork.NewRealClock())
}

// NewRoomStoreWithClock allows deterministic expiry in tests.
func NewRoomStoreWithClock(ttl time.Duration, clock clockwork.Clock) *RoomStore {
	return &RoomStore{
		clock: clock,
		ttl:   ttl,
		rooms: make(map[string]roomEntry),
	}
}

func (s *RoomStore) Save(_ context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	entry := roomEntry{data: data}
	if s.ttl > 0 {
		entry.expiresAt = s.clock.Now().Add(s.ttl)
	}
	s.mu.Lock()
	s.rooms[room.ID] = entry
	s.mu.Unlock()
	return nil
}

func (s *RoomStore) Load(_ context.Context, roomID string) (*domain.Room, error) {
	s.mu.RLock()
	entry, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok || s.expired(entry) {
		return nil, domain.ErrRoomNotFound
	}
	room := &domain.Room{}
	if err := json.Unmarshal(entry.data, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *RoomStore) Exists(_ context.Context, roomID string) (bool, error) {
	s.mu.RLock()
	entry, ok := s.rooms[roomID]
	s.mu.RUnlock()
	return ok && !s.expired(entry), nil
}

func (s *RoomStore) Delete(_ context.Context, roomID string) error {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
	return nil
}

func (s *RoomStore) expired(entry roomEntry) bool {
	return !entry.expiresAt.IsZero() && !entry.expiresAt.After(s.clock.Now())
}
