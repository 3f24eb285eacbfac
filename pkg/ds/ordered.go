package ds

// OrderedMap is a map that iterates in first-insertion order. Not safe for concurrent use.
type OrderedMap[K comparable, V any] struct {
	keys  []K
	index map[K]int
	vals  []V
}

func NewOrderedMap[K comparable, V any](capacity int) *OrderedMap[K, V] {
	return &OrderedMap[K, V]{
		keys:  make([]K, 0, capacity),
		index: make(map[K]int, capacity),
		vals:  make([]V, 0, capacity),
	}
}

// Set overwrites the value of an existing key without moving it.
func (m *OrderedMap[K, V]) Set(k K, v V) {
	if i, ok := m.index[k]; ok {
		m.vals[i] = v
		return
	}
	m.index[k] = len(m.keys)
	m.keys = append(m.keys, k)
	m.vals = append(m.vals, v)
}

func (m *OrderedMap[K, V]) Get(k K) (V, bool) {
	i, ok := m.index[k]
	if !ok {
		var zero V
		return zero, false
	}
	return m.vals[i], true
}

// Update applies f to the current value of k (zero if absent) and stores the result.
func (m *OrderedMap[K, V]) Update(k K, f func(V) V) {
	if i, ok := m.index[k]; ok {
		m.vals[i] = f(m.vals[i])
		return
	}
	var zero V
	m.Set(k, f(zero))
}

func (m *OrderedMap[K, V]) Has(k K) bool {
	_, ok := m.index[k]
	return ok
}

func (m *OrderedMap[K, V]) Len() int { return len(m.keys) }

// Keys returns the keys in insertion order. The slice must not be modified.
func (m *OrderedMap[K, V]) Keys() []K { return m.keys }

// Range stops when f returns false.
func (m *OrderedMap[K, V]) Range(f func(K, V) bool) {
	for i, k := range m.keys {
		if !f(k, m.vals[i]) {
			return
		}
	}
}

// OrderedSet keeps unique elements in first-insertion order.
type OrderedSet[T comparable] struct {
	m *OrderedMap[T, struct{}]
}

func NewOrderedSet[T comparable](capacity int) *OrderedSet[T] {
	return &OrderedSet[T]{m: NewOrderedMap[T, struct{}](capacity)}
}

func NewOrderedSetFromSlice[T comparable](items []T) *OrderedSet[T] {
	s := NewOrderedSet[T](len(items))
	for _, e := range items {
		s.Add(e)
	}
	return s
}

// Add reports whether e was new.
func (s *OrderedSet[T]) Add(e T) bool {
	if s.m.Has(e) {
		return false
	}
	s.m.Set(e, struct{}{})
	return true
}

func (s *OrderedSet[T]) Has(e T) bool { return s.m.Has(e) }

func (s *OrderedSet[T]) Len() int { return s.m.Len() }

func (s *OrderedSet[T]) IsEmpty() bool { return s.m.Len() == 0 }

// Items returns the elements in insertion order. The slice must not be modified.
func (s *OrderedSet[T]) Items() []T { return s.m.Keys() }

// Union returns a new set holding s followed by the elements of o not already in s.
func (s *OrderedSet[T]) Union(o *OrderedSet[T]) *OrderedSet[T] {
	out := NewOrderedSet[T](s.Len() + o.Len())
	for _, e := range s.Items() {
		out.Add(e)
	}
	for _, e := range o.Items() {
		out.Add(e)
	}
	return out
}

// Difference returns the elements of s that are not in o, keeping the order of s.
func (s *OrderedSet[T]) Difference(o *OrderedSet[T]) *OrderedSet[T] {
	out := NewOrderedSet[T](s.Len())
	for _, e := range s.Items() {
		if !o.Has(e) {
			out.Add(e)
		}
	}
	return out
}
