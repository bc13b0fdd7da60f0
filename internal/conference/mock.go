package conference

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/livekit"
)

// MockRooms is an in-process RoomService for offline use and tests.
type MockRooms struct {
	mu      sync.Mutex
	rooms   map[string]*livekit.Room
	removed []string
}

func NewMockRooms() *MockRooms {
	return &MockRooms{rooms: make(map[string]*livekit.Room)}
}

func (m *MockRooms) CreateRoom(_ context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[req.GetName()]; ok {
		return room, nil
	}
	room := &livekit.Room{
		Sid:              "RM_mock_" + uuid.NewString()[:8],
		Name:             req.GetName(),
		EmptyTimeout:     req.GetEmptyTimeout(),
		DepartureTimeout: req.GetDepartureTimeout(),
		MaxParticipants:  req.GetMaxParticipants(),
		CreationTime:     time.Now().Unix(),
		Metadata:         req.GetMetadata(),
	}
	m.rooms[room.Name] = room
	return room, nil
}

func (m *MockRooms) ListParticipants(context.Context, *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error) {
	return &livekit.ListParticipantsResponse{}, nil
}

func (m *MockRooms) RemoveParticipant(_ context.Context, req *livekit.RoomParticipantIdentity) (*livekit.RemoveParticipantResponse, error) {
	m.mu.Lock()
	m.removed = append(m.removed, req.GetIdentity())
	m.mu.Unlock()
	return &livekit.RemoveParticipantResponse{}, nil
}

// Removed lists identities removed so far.
func (m *MockRooms) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed...)
}
