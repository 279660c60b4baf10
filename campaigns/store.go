package campaigns

import (
	"sync"
)

// Repository resolves campaign IDs produced by the index into campaign definitions.
// Implementations must be safe for concurrent use.
type Repository interface {
	Get(campaignID string) (*Campaign, bool)
	All() []*Campaign
}

// Store is the in-memory campaign repository, fed from the external campaign
// management system. Writes also maintain the index so the two never diverge.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]*Campaign
	index *Index
}

func NewStore(index *Index) *Store {
	return &Store{
		byID:  make(map[string]*Campaign),
		index: index,
	}
}

// Upsert inserts or replaces a campaign and refiles it in the index.
func (s *Store) Upsert(c *Campaign) {
	s.mu.Lock()
	s.byID[c.ID] = c
	s.mu.Unlock()

	s.index.Add(c)
}

// Delete removes a campaign from the store and the index.
func (s *Store) Delete(campaignID string) {
	s.mu.Lock()
	delete(s.byID, campaignID)
	s.mu.Unlock()

	s.index.Remove(campaignID)
}

func (s *Store) Get(campaignID string) (*Campaign, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[campaignID]
	return c, ok
}

func (s *Store) All() []*Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Campaign, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
