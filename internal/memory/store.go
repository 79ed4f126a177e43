package memory

// tierStore is the tier-partitioned keyed collection underneath the engine.
// It does no locking and no policy enforcement; the engine serializes access
// and applies tier policies around it.
type tierStore struct {
	items map[string]*Item
	tiers map[Tier]map[string]*Item
}

func newTierStore() *tierStore {
	s := &tierStore{
		items: make(map[string]*Item),
		tiers: make(map[Tier]map[string]*Item, len(Tiers)),
	}
	for _, t := range Tiers {
		s.tiers[t] = make(map[string]*Item)
	}
	return s
}

func (s *tierStore) insert(it *Item) {
	if old, ok := s.items[it.ID]; ok && old.Tier != it.Tier {
		delete(s.tiers[old.Tier], old.ID)
	}
	s.items[it.ID] = it
	s.tiers[it.Tier][it.ID] = it
}

func (s *tierStore) get(id string) (*Item, bool) {
	it, ok := s.items[id]
	return it, ok
}

func (s *tierStore) remove(id string) (*Item, bool) {
	it, ok := s.items[id]
	if !ok {
		return nil, false
	}
	delete(s.items, id)
	delete(s.tiers[it.Tier], id)
	return it, true
}

// byTier returns the live item pointers for one tier in unspecified order.
// Callers inside the engine lock may read them; anything leaving the engine
// must be cloned first.
func (s *tierStore) byTier(tier Tier) []*Item {
	bucket := s.tiers[tier]
	out := make([]*Item, 0, len(bucket))
	for _, it := range bucket {
		out = append(out, it)
	}
	return out
}

func (s *tierStore) count(tier Tier) int {
	return len(s.tiers[tier])
}

func (s *tierStore) total() int {
	return len(s.items)
}

func (s *tierStore) clear() {
	s.items = make(map[string]*Item)
	for _, t := range Tiers {
		s.tiers[t] = make(map[string]*Item)
	}
}
