package app

import "sync"

type keyedSlot struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex serializes callers per key. Slots live only while held or
// awaited. The zero value is ready to use.
type KeyedMutex[K comparable] struct {
	mu    sync.Mutex
	slots map[K]*keyedSlot
}

// Lock blocks until k is free and returns its unlock func.
func (m *KeyedMutex[K]) Lock(k K) func() {
	m.mu.Lock()
	if m.slots == nil {
		m.slots = make(map[K]*keyedSlot)
	}
	slot, ok := m.slots[k]
	if !ok {
		slot = &keyedSlot{}
		m.slots[k] = slot
	}
	slot.refs++
	m.mu.Unlock()

	slot.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			slot.mu.Unlock()
			m.mu.Lock()
			defer m.mu.Unlock()
			slot.refs--
			if slot.refs == 0 {
				delete(m.slots, k)
			}
		})
	}
}

// Held counts keys currently held or awaited.
func (m *KeyedMutex[K]) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
