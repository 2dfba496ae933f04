package store

import "sync"

// MemoryStore 内存会话存储，T 为值类型时读写互不共享内存。
type MemoryStore[T any] struct {
	mu         sync.RWMutex
	session    T
	hasSession bool
}

// NewMemoryStore 创建空的内存存储。
func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{}
}

func (m *MemoryStore[T]) SaveSession(session T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	m.hasSession = true
	return nil
}

func (m *MemoryStore[T]) LoadSession() (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasSession {
		var zero T
		return zero, ErrNotFound
	}
	return m.session, nil
}

func (m *MemoryStore[T]) ClearSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	m.session = zero
	m.hasSession = false
	return nil
}
