package resource

import (
	"github.com/stackforge/group-based-policy/pkg/gbp/store"
)

// snapshotKey is the single entry the backend state is persisted under.
const snapshotKey = "snapshot"

// snapshot is the serialized form of a Mem backend. Assigned addresses
// are not stored; they are rebuilt from the ports on load.
type snapshot struct {
	Networks     map[string]*Network           `json:"networks"`
	Subnets      map[string]*Subnet            `json:"subnets"`
	Ports        map[string]*Port              `json:"ports"`
	Routers      map[string]*Router            `json:"routers"`
	Groups       map[string]*SecurityGroup     `json:"security_groups"`
	Rules        map[string]*SecurityGroupRule `json:"security_group_rules"`
	RouterIfaces map[string][]string           `json:"router_interfaces"`
}

// SaveTo persists the backend's state to the orchestration store so a
// separate process (the CLI, the validator) can reconstruct it.
func (m *Mem) SaveTo(st store.Store) error {
	m.mu.RLock()
	snap := snapshot{
		Networks:     m.networks,
		Subnets:      m.subnets,
		Ports:        m.ports,
		Routers:      m.routers,
		Groups:       m.sgs,
		Rules:        m.sgRules,
		RouterIfaces: make(map[string][]string, len(m.routerIfaces)),
	}
	for routerID, subnets := range m.routerIfaces {
		for subnetID := range subnets {
			snap.RouterIfaces[routerID] = append(snap.RouterIfaces[routerID], subnetID)
		}
	}
	m.mu.RUnlock()
	return store.PutJSON(st, store.TableResource, snapshotKey, &snap)
}

// LoadMem reconstructs a Mem backend from a persisted snapshot. A store
// with no snapshot yields an empty backend.
func LoadMem(st store.Store) (*Mem, error) {
	var snap snapshot
	found, err := store.GetJSON(st, store.TableResource, snapshotKey, &snap)
	if err != nil {
		return nil, err
	}
	m := NewMem()
	if !found {
		return m, nil
	}
	for id, n := range snap.Networks {
		m.networks[id] = n
	}
	for id, s := range snap.Subnets {
		m.subnets[id] = s
		m.usedIPs[id] = make(map[string]bool)
	}
	for id, r := range snap.Routers {
		m.routers[id] = r
	}
	for id, sg := range snap.Groups {
		m.sgs[id] = sg
	}
	for id, r := range snap.Rules {
		m.sgRules[id] = r
	}
	for routerID, subnets := range snap.RouterIfaces {
		m.routerIfaces[routerID] = make(map[string]bool, len(subnets))
		for _, subnetID := range subnets {
			m.routerIfaces[routerID][subnetID] = true
		}
	}
	for id, p := range snap.Ports {
		m.ports[id] = p
		for _, fip := range p.FixedIPs {
			used := m.usedIPs[fip.SubnetID]
			if used == nil {
				used = make(map[string]bool)
				m.usedIPs[fip.SubnetID] = used
			}
			used[fip.IPAddress] = true
		}
	}
	return m, nil
}
