package memory

import (
	"sync"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
)

type ParticipantRepository struct {
	mu           sync.RWMutex
	participants map[domain.ParticipantID]domain.Participant
}

func NewParticipantRepository() *ParticipantRepository {
	return &ParticipantRepository{participants: make(map[domain.ParticipantID]domain.Participant)}
}

func (r *ParticipantRepository) Save(p *domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.ID] = *p
	return nil
}

func (r *ParticipantRepository) Get(id domain.ParticipantID) (*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	if !ok {
		return nil, core.ErrParticipantNotFound
	}
	return &p, nil
}

func (r *ParticipantRepository) Delete(id domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, id)
}
