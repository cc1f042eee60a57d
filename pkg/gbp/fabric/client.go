package fabric

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stackforge/group-based-policy/pkg/util"
)

// Client is the fabric backend surface. Get and Delete address objects
// by distinguished name; List returns every object, sorted by DN.
type Client interface {
	Get(dn string) (Object, error)
	List() ([]Object, error)
	Create(o Object) error
	Update(o Object) error
	Delete(dn string) error
	// Status reports the sync state of an object (StatusSynced,
	// StatusBuild or StatusError).
	Status(dn string) (string, error)
}

// MemClient is an in-memory fabric backend. Objects are stored as
// given; callers must not mutate an object after handing it over.
type MemClient struct {
	mu       sync.RWMutex
	objects  map[string]Object
	statuses map[string]string
}

func NewMemClient() *MemClient {
	return &MemClient{
		objects:  make(map[string]Object),
		statuses: make(map[string]string),
	}
}

func (m *MemClient) Get(dn string) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[dn]
	if !ok {
		return nil, fmt.Errorf("fabric object '%s': %w", dn, util.ErrNotFound)
	}
	return o, nil
}

func (m *MemClient) List() ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dns := make([]string, 0, len(m.objects))
	for dn := range m.objects {
		dns = append(dns, dn)
	}
	sort.Strings(dns)
	out := make([]Object, len(dns))
	for i, dn := range dns {
		out[i] = m.objects[dn]
	}
	return out, nil
}

func (m *MemClient) Create(o Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dn := DN(o)
	if _, ok := m.objects[dn]; ok {
		return fmt.Errorf("fabric object '%s': %w", dn, util.ErrAlreadyExists)
	}
	m.objects[dn] = o
	m.statuses[dn] = StatusSynced
	return nil
}

func (m *MemClient) Update(o Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dn := DN(o)
	if _, ok := m.objects[dn]; !ok {
		return fmt.Errorf("fabric object '%s': %w", dn, util.ErrNotFound)
	}
	m.objects[dn] = o
	return nil
}

func (m *MemClient) Delete(dn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, dn)
	delete(m.statuses, dn)
	return nil
}

func (m *MemClient) Status(dn string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[dn]
	if !ok {
		return "", fmt.Errorf("fabric object '%s': %w", dn, util.ErrNotFound)
	}
	return s, nil
}

// SetStatus overrides an object's reported sync state; tests use it to
// simulate a fabric still converging or in trouble.
func (m *MemClient) SetStatus(dn, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[dn] = status
}
