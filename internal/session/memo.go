package session

// memo is a bounded FIFO cache of clustering results.
type memo struct {
	size  int
	order []string
	items map[string]*Result
}

func newMemo(size int) *memo {
	return &memo{size: size, items: make(map[string]*Result, size)}
}

func (m *memo) get(key string) (*Result, bool) {
	r, ok := m.items[key]
	return r, ok
}

func (m *memo) put(key string, r *Result) {
	if _, ok := m.items[key]; ok {
		m.items[key] = r
		return
	}
	if len(m.order) >= m.size {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.items, oldest)
	}
	m.order = append(m.order, key)
	m.items[key] = r
}
