package memory

import (
	"sync"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
)

// CaptionRepository keeps a bounded CaptionLog per room.
type CaptionRepository struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]*core.CaptionLog
}

func NewCaptionRepository() *CaptionRepository {
	return &CaptionRepository{rooms: make(map[domain.RoomID]*core.CaptionLog)}
}

func (r *CaptionRepository) Append(c domain.Caption) error {
	r.mu.Lock()
	l, ok := r.rooms[c.RoomID]
	if !ok {
		l = core.NewCaptionLog(core.CaptionRetention)
		r.rooms[c.RoomID] = l
	}
	r.mu.Unlock()
	l.Add(c)
	return nil
}

func (r *CaptionRepository) Recent(room domain.RoomID) []domain.Caption {
	r.mu.Lock()
	l, ok := r.rooms[room]
	r.mu.Unlock()
	if !ok {
		return []domain.Caption{}
	}
	return l.Snapshot()
}
