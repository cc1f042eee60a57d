package store

import (
	"fmt"
	"strings"
	"sync"
)

// Memory is an in-memory Store. It mirrors the redis layout ("table|key")
// so behavior matches the redis backend exactly, including the NULL
// sentinel written for field-less entries.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]map[string]string)}
}

func memKey(table, key string) string {
	return fmt.Sprintf("%s|%s", table, key)
}

func (m *Memory) Get(table, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[memKey(table, key)]
	if !ok {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(entry))
	for k, v := range entry {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Set(table, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := make(map[string]string, len(fields))
	if len(fields) == 0 {
		entry["NULL"] = "NULL"
	}
	for k, v := range fields {
		entry[k] = v
	}
	m.entries[memKey(table, key)] = entry
	return nil
}

func (m *Memory) Delete(table, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, memKey(table, key))
	return nil
}

func (m *Memory) DeleteField(table, key, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[memKey(table, key)]; ok {
		delete(entry, field)
	}
	return nil
}

func (m *Memory) Keys(table string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := table + "|"
	var keys []string
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}
	}
	return keys, nil
}

func (m *Memory) Exists(table, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[memKey(table, key)]
	return ok, nil
}

func (m *Memory) Close() error {
	return nil
}
