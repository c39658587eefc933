package reply

// Store exposes the reply catalog to the selector.
type Store interface {
	FindByID(id string) (Reply, bool)
	Suggestions(setID string) ([]string, bool)
}

// MemoryStore implements Store with in-memory data.
type MemoryStore struct {
	items       []Reply
	suggestions map[string][]string
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied replies and suggestion sets.
func NewMemoryStore(items []Reply, suggestions map[string][]string) *MemoryStore {
	sets := make(map[string][]string, len(suggestions))
	for id, set := range suggestions {
		sets[id] = append([]string(nil), set...)
	}
	return &MemoryStore{items: append([]Reply(nil), items...), suggestions: sets}
}

// FindByID looks up a reply by identifier.
func (s *MemoryStore) FindByID(id string) (Reply, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Reply{}, false
}

// Suggestions returns a copy of the named suggestion set.
func (s *MemoryStore) Suggestions(setID string) ([]string, bool) {
	set, ok := s.suggestions[setID]
	if !ok {
		return nil, false
	}
	return append([]string(nil), set...), true
}
