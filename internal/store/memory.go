package store

import (
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It does not survive restarts and is
// intended for tests and embedded hosts that manage durability themselves.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStore) set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// GetBool returns the stored boolean for key, or absent.
func (m *MemoryStore) GetBool(key string) (bool, bool) {
	s, ok := m.get(key)
	if !ok {
		return false, false
	}
	return decodeBool(s)
}

// GetFloat returns the stored float for key, or absent.
func (m *MemoryStore) GetFloat(key string) (float64, bool) {
	s, ok := m.get(key)
	if !ok {
		return 0, false
	}
	return decodeFloat(s)
}

// GetTime returns the stored timestamp for key, or absent.
func (m *MemoryStore) GetTime(key string) (time.Time, bool) {
	s, ok := m.get(key)
	if !ok {
		return time.Time{}, false
	}
	return decodeTime(s)
}

// GetString returns the stored string for key, or absent.
func (m *MemoryStore) GetString(key string) (string, bool) {
	return m.get(key)
}

// SetBool stores a boolean value.
func (m *MemoryStore) SetBool(key string, value bool) { m.set(key, encodeBool(value)) }

// SetFloat stores a float value.
func (m *MemoryStore) SetFloat(key string, value float64) { m.set(key, encodeFloat(value)) }

// SetTime stores a timestamp value.
func (m *MemoryStore) SetTime(key string, value time.Time) { m.set(key, encodeTime(value)) }

// SetString stores a string value.
func (m *MemoryStore) SetString(key string, value string) { m.set(key, value) }

// Remove deletes a key. Removing an absent key is a no-op.
func (m *MemoryStore) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}
