package core

import (
	"sync"

	"github.com/dkeye/SignMeet/internal/domain"
)

const CaptionRetention = 50

// CaptionLog keeps the most recent captions, newest first.
type CaptionLog struct {
	mu    sync.RWMutex
	items []domain.Caption
	limit int
}

func NewCaptionLog(limit int) *CaptionLog {
	if limit <= 0 {
		limit = CaptionRetention
	}
	return &CaptionLog{items: make([]domain.Caption, 0, limit), limit: limit}
}

// Add prepends c and evicts the oldest entry once the limit is exceeded.
func (l *CaptionLog) Add(c domain.Caption) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) < l.limit {
		l.items = append(l.items, domain.Caption{})
	}
	copy(l.items[1:], l.items[:len(l.items)-1])
	l.items[0] = c
}

func (l *CaptionLog) Snapshot() []domain.Caption {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Caption, len(l.items))
	copy(out, l.items)
	return out
}

func (l *CaptionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}
