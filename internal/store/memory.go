package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for development mode and tests.
type MemoryStore struct {
	mu     sync.Mutex
	rooms  map[string]RoomMeta
	chat   []ChatRecord
	events []AnalyticsEvent
	shares map[string]ShareRecord
	stops  map[string]time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:  make(map[string]RoomMeta),
		shares: make(map[string]ShareRecord),
		stops:  make(map[string]time.Time),
	}
}

func (s *MemoryStore) CreateRoom(_ context.Context, meta RoomMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if meta.Status == "" {
		meta.Status = RoomActive
	}
	s.rooms[meta.RoomID] = meta
	return nil
}

func (s *MemoryStore) FetchRoomByID(_ context.Context, roomID string) (RoomMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.rooms[roomID]
	if !ok {
		return RoomMeta{}, ErrNotFound
	}
	return meta, nil
}

func (s *MemoryStore) EndRoom(_ context.Context, roomID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	meta.Status = RoomEnded
	s.rooms[roomID] = meta
	return nil
}

func (s *MemoryStore) AppendChatMessage(_ context.Context, msg ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = append(s.chat, msg)
	return nil
}

func (s *MemoryStore) AppendAnalyticsLog(_ context.Context, event AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) StartScreenShareRecord(_ context.Context, rec ShareRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shares[rec.ID] = rec
	return nil
}

func (s *MemoryStore) StopScreenShareRecord(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops[sessionID] = time.Now()
	return nil
}

// ChatMessages returns a copy of the appended chat records.
func (s *MemoryStore) ChatMessages() []ChatRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatRecord, len(s.chat))
	copy(out, s.chat)
	return out
}

// Events returns a copy of the appended analytics events.
func (s *MemoryStore) Events() []AnalyticsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AnalyticsEvent, len(s.events))
	copy(out, s.events)
	return out
}
