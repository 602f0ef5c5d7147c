package authorization

// idSet is the in-memory half of the query composition: the store returns
// server-side filtered ID lists, and the engine combines them with set
// algebra without materializing the resources themselves.
type idSet map[string]struct{}

func newIDSet(ids []string) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s idSet) contains(id string) bool {
	_, ok := s[id]
	return ok
}

// union returns a new set containing members of either set.
func (s idSet) union(other idSet) idSet {
	result := make(idSet, len(s)+len(other))
	for id := range s {
		result[id] = struct{}{}
	}
	for id := range other {
		result[id] = struct{}{}
	}
	return result
}

// except returns a new set containing members of s not present in other.
func (s idSet) except(other idSet) idSet {
	result := make(idSet, len(s))
	for id := range s {
		if _, ok := other[id]; !ok {
			result[id] = struct{}{}
		}
	}
	return result
}
