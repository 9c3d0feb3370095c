// Package memory holds in-process repositories for the coordination server.
package memory

import (
	"sort"
	"sync"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
)

type RoomRepository struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*domain.Room
}

func NewRoomRepository() *RoomRepository {
	return &RoomRepository{rooms: make(map[domain.RoomID]*domain.Room)}
}

func (r *RoomRepository) Save(room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID] = room.Clone()
	return nil
}

func (r *RoomRepository) Get(id domain.RoomID) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, core.ErrRoomNotFound
	}
	return room.Clone(), nil
}

// List returns rooms oldest first.
func (r *RoomRepository) List() []*domain.Room {
	r.mu.RLock()
	out := make([]*domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *RoomRepository) Update(id domain.RoomID, fn func(*domain.Room) error) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, core.ErrRoomNotFound
	}
	next := room.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	r.rooms[id] = next
	return next.Clone(), nil
}
