package driver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/stackforge/group-based-policy/pkg/util"
)

// ChainInstance is one instantiated service chain steering traffic
// between a provider and a consumer group.
type ChainInstance struct {
	ID              string            `json:"id"`
	Name            string            `json:"name,omitempty"`
	TenantID        string            `json:"tenant_id"`
	SpecIDs         []string          `json:"servicechain_specs"`
	ProviderGroupID string            `json:"provider_ptg_id"`
	ConsumerGroupID string            `json:"consumer_ptg_id"`
	ClassifierID    string            `json:"classifier_id,omitempty"`
	ConfigParams    map[string]string `json:"config_param_values,omitempty"`
}

// ChainClient is the service chain plugin surface the driver consumes.
type ChainClient interface {
	CreateInstance(inst *ChainInstance) (*ChainInstance, error)
	GetInstance(id string) (*ChainInstance, error)
	UpdateInstanceSpecs(id string, specIDs []string) error
	DeleteInstance(id string) error
	ListInstances() ([]*ChainInstance, error)
}

// MemChains is an in-memory ChainClient.
type MemChains struct {
	mu        sync.RWMutex
	instances map[string]*ChainInstance
}

// NewMemChains creates an empty in-memory chain client.
func NewMemChains() *MemChains {
	return &MemChains{instances: make(map[string]*ChainInstance)}
}

func (c *MemChains) CreateInstance(inst *ChainInstance) (*ChainInstance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *inst
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	cp.SpecIDs = append([]string(nil), inst.SpecIDs...)
	c.instances[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (c *MemChains) GetInstance(id string) (*ChainInstance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instances[id]
	if !ok {
		return nil, fmt.Errorf("chain instance '%s': %w", id, util.ErrNotFound)
	}
	cp := *inst
	return &cp, nil
}

func (c *MemChains) UpdateInstanceSpecs(id string, specIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instances[id]
	if !ok {
		return fmt.Errorf("chain instance '%s': %w", id, util.ErrNotFound)
	}
	inst.SpecIDs = append([]string(nil), specIDs...)
	return nil
}

func (c *MemChains) DeleteInstance(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.instances[id]; !ok {
		return fmt.Errorf("chain instance '%s': %w", id, util.ErrNotFound)
	}
	delete(c.instances, id)
	return nil
}

func (c *MemChains) ListInstances() ([]*ChainInstance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ChainInstance, 0, len(c.instances))
	for _, inst := range c.instances {
		cp := *inst
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
