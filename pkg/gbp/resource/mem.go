package resource

import (
	"bytes"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/stackforge/group-based-policy/pkg/util"
)

// Mem is an in-memory Client. It enforces the backend behaviors the
// driver depends on: subnet CIDR overlap rejection within a network,
// address assignment from allocation pools, and router interface
// bookkeeping.
type Mem struct {
	mu sync.RWMutex

	networks map[string]*Network
	subnets  map[string]*Subnet
	ports    map[string]*Port
	routers  map[string]*Router
	sgs      map[string]*SecurityGroup
	sgRules  map[string]*SecurityGroupRule

	// routerIfaces maps router id -> attached subnet ids.
	routerIfaces map[string]map[string]bool
	// usedIPs maps subnet id -> assigned addresses.
	usedIPs map[string]map[string]bool
}

// NewMem creates an empty in-memory backend.
func NewMem() *Mem {
	return &Mem{
		networks:     make(map[string]*Network),
		subnets:      make(map[string]*Subnet),
		ports:        make(map[string]*Port),
		routers:      make(map[string]*Router),
		sgs:          make(map[string]*SecurityGroup),
		sgRules:      make(map[string]*SecurityGroupRule),
		routerIfaces: make(map[string]map[string]bool),
		usedIPs:      make(map[string]map[string]bool),
	}
}

func (m *Mem) CreateNetwork(n *Network) (*Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if _, ok := m.networks[cp.ID]; ok {
		return nil, fmt.Errorf("network '%s': %w", cp.ID, util.ErrAlreadyExists)
	}
	m.networks[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *Mem) GetNetwork(id string) (*Network, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.networks[id]
	if !ok {
		return nil, fmt.Errorf("network '%s': %w", id, util.ErrNotFound)
	}
	cp := *n
	return &cp, nil
}

func (m *Mem) DeleteNetwork(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.networks[id]
	if !ok {
		return fmt.Errorf("network '%s': %w", id, util.ErrNotFound)
	}
	if len(n.SubnetIDs) > 0 {
		return util.NewInUseError("network "+id, n.SubnetIDs...)
	}
	delete(m.networks, id)
	return nil
}

func (m *Mem) CreateSubnet(s *Subnet) (*Subnet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.networks[s.NetworkID]
	if !ok {
		return nil, fmt.Errorf("network '%s': %w", s.NetworkID, util.ErrNotFound)
	}
	_, ipnet, err := net.ParseCIDR(s.CIDR)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR %q: %w", s.CIDR, err)
	}
	for _, sibID := range n.SubnetIDs {
		sib := m.subnets[sibID]
		overlap, oerr := util.CIDROverlaps(s.CIDR, sib.CIDR)
		if oerr != nil {
			return nil, oerr
		}
		if overlap {
			return nil, fmt.Errorf("%s overlaps %s on network %s: %w",
				s.CIDR, sib.CIDR, s.NetworkID, util.ErrOverlappingSubnet)
		}
	}

	cp := *s
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.IPVersion == 0 {
		cp.IPVersion = 4
		if ipnet.IP.To4() == nil {
			cp.IPVersion = 6
		}
	}
	if cp.GatewayIP == "" {
		gw, gerr := util.FirstUsableIP(s.CIDR)
		if gerr != nil {
			return nil, gerr
		}
		cp.GatewayIP = gw
	}
	if len(cp.AllocationPools) == 0 {
		last, lerr := util.LastUsableIP(s.CIDR)
		if lerr != nil {
			return nil, lerr
		}
		cp.AllocationPools = []AllocationPool{{Start: util.NextIP(cp.GatewayIP), End: last}}
	}

	m.subnets[cp.ID] = &cp
	n.SubnetIDs = append(n.SubnetIDs, cp.ID)
	m.usedIPs[cp.ID] = make(map[string]bool)
	out := cp
	return &out, nil
}

func (m *Mem) GetSubnet(id string) (*Subnet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subnets[id]
	if !ok {
		return nil, fmt.Errorf("subnet '%s': %w", id, util.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *Mem) UpdateSubnet(s *Subnet) (*Subnet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subnets[s.ID]; !ok {
		return nil, fmt.Errorf("subnet '%s': %w", s.ID, util.ErrNotFound)
	}
	cp := *s
	m.subnets[s.ID] = &cp
	out := cp
	return &out, nil
}

func (m *Mem) DeleteSubnet(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subnets[id]
	if !ok {
		return fmt.Errorf("subnet '%s': %w", id, util.ErrNotFound)
	}
	for _, p := range m.ports {
		for _, f := range p.FixedIPs {
			if f.SubnetID == id {
				return util.NewInUseError("subnet "+id, "port "+p.ID)
			}
		}
	}
	if n, ok := m.networks[s.NetworkID]; ok {
		n.SubnetIDs = removeString(n.SubnetIDs, id)
	}
	delete(m.subnets, id)
	delete(m.usedIPs, id)
	return nil
}

func (m *Mem) SubnetsByNetwork(networkID string) ([]*Subnet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Subnet
	for _, s := range m.subnets {
		if s.NetworkID == networkID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Mem) SubnetsByIDs(ids []string) ([]*Subnet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Subnet, 0, len(ids))
	for _, id := range ids {
		s, ok := m.subnets[id]
		if !ok {
			return nil, fmt.Errorf("subnet '%s': %w", id, util.ErrNotFound)
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Mem) CreatePort(p *Port) (*Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.networks[p.NetworkID]
	if !ok {
		return nil, fmt.Errorf("network '%s': %w", p.NetworkID, util.ErrNotFound)
	}
	cp := *p
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.MACAddress == "" {
		seed := uuid.New().String()
		cp.MACAddress = fmt.Sprintf("fa:16:3e:%s:%s:%s", seed[0:2], seed[2:4], seed[4:6])
	}
	if len(cp.FixedIPs) == 0 {
		assigned := false
		for _, subID := range n.SubnetIDs {
			ip := m.allocateIP(subID)
			if ip != "" {
				cp.FixedIPs = []FixedIP{{SubnetID: subID, IPAddress: ip}}
				assigned = true
				break
			}
		}
		if !assigned && len(n.SubnetIDs) > 0 {
			return nil, fmt.Errorf("no addresses left on network %s: %w",
				p.NetworkID, util.ErrPreconditionFailed)
		}
	} else {
		for _, f := range cp.FixedIPs {
			if used := m.usedIPs[f.SubnetID]; used != nil {
				if used[f.IPAddress] {
					return nil, fmt.Errorf("address %s on subnet %s: %w",
						f.IPAddress, f.SubnetID, util.ErrAlreadyExists)
				}
				used[f.IPAddress] = true
			}
		}
	}
	m.ports[cp.ID] = &cp
	out := cp
	return &out, nil
}

// allocateIP returns the first free address in the subnet's allocation
// pools, or empty when exhausted. Caller holds the lock.
func (m *Mem) allocateIP(subnetID string) string {
	s, ok := m.subnets[subnetID]
	if !ok {
		return ""
	}
	used := m.usedIPs[subnetID]
	for _, pool := range s.AllocationPools {
		for ip := pool.Start; ip != "" && ipLE(ip, pool.End); ip = util.NextIP(ip) {
			if !used[ip] {
				used[ip] = true
				return ip
			}
		}
	}
	return ""
}

func ipLE(a, b string) bool {
	pa, pb := net.ParseIP(a), net.ParseIP(b)
	if pa == nil || pb == nil {
		return false
	}
	return bytes.Compare(pa.To16(), pb.To16()) <= 0
}

func (m *Mem) GetPort(id string) (*Port, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.ports[id]
	if !ok {
		return nil, fmt.Errorf("port '%s': %w", id, util.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *Mem) UpdatePort(p *Port) (*Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ports[p.ID]; !ok {
		return nil, fmt.Errorf("port '%s': %w", p.ID, util.ErrNotFound)
	}
	cp := *p
	m.ports[p.ID] = &cp
	out := cp
	return &out, nil
}

func (m *Mem) DeletePort(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.ports[id]
	if !ok {
		return fmt.Errorf("port '%s': %w", id, util.ErrNotFound)
	}
	for _, f := range p.FixedIPs {
		if used := m.usedIPs[f.SubnetID]; used != nil {
			delete(used, f.IPAddress)
		}
	}
	delete(m.ports, id)
	return nil
}

func (m *Mem) PortsByNetwork(networkID string) ([]*Port, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Port
	for _, p := range m.ports {
		if p.NetworkID == networkID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Mem) CreateRouter(r *Router) (*Router, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if _, ok := m.routers[cp.ID]; ok {
		return nil, fmt.Errorf("router '%s': %w", cp.ID, util.ErrAlreadyExists)
	}
	m.routers[cp.ID] = &cp
	m.routerIfaces[cp.ID] = make(map[string]bool)
	out := cp
	return &out, nil
}

func (m *Mem) GetRouter(id string) (*Router, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routers[id]
	if !ok {
		return nil, fmt.Errorf("router '%s': %w", id, util.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *Mem) UpdateRouterRoutes(id string, routes []Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routers[id]
	if !ok {
		return fmt.Errorf("router '%s': %w", id, util.ErrNotFound)
	}
	r.Routes = append([]Route(nil), routes...)
	return nil
}

func (m *Mem) DeleteRouter(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routers[id]; !ok {
		return fmt.Errorf("router '%s': %w", id, util.ErrNotFound)
	}
	if len(m.routerIfaces[id]) > 0 {
		return util.NewInUseError("router "+id, "attached subnets")
	}
	delete(m.routers, id)
	delete(m.routerIfaces, id)
	return nil
}

func (m *Mem) AddRouterInterface(routerID, subnetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ifaces, ok := m.routerIfaces[routerID]
	if !ok {
		return fmt.Errorf("router '%s': %w", routerID, util.ErrNotFound)
	}
	if _, ok := m.subnets[subnetID]; !ok {
		return fmt.Errorf("subnet '%s': %w", subnetID, util.ErrNotFound)
	}
	if ifaces[subnetID] {
		return fmt.Errorf("subnet '%s' already attached to router '%s': %w",
			subnetID, routerID, util.ErrAlreadyExists)
	}
	ifaces[subnetID] = true
	return nil
}

func (m *Mem) RemoveRouterInterface(routerID, subnetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ifaces, ok := m.routerIfaces[routerID]
	if !ok {
		return fmt.Errorf("router '%s': %w", routerID, util.ErrNotFound)
	}
	delete(ifaces, subnetID)
	return nil
}

func (m *Mem) RouterSubnetIDs(routerID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ifaces, ok := m.routerIfaces[routerID]
	if !ok {
		return nil, fmt.Errorf("router '%s': %w", routerID, util.ErrNotFound)
	}
	out := make([]string, 0, len(ifaces))
	for id := range ifaces {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Mem) CreateSecurityGroup(sg *SecurityGroup) (*SecurityGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sg
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	m.sgs[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *Mem) SecurityGroupByName(tenantID, name string) (*SecurityGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sg := range m.sgs {
		if sg.TenantID == tenantID && sg.Name == name {
			cp := *sg
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("security group '%s' for tenant '%s': %w",
		name, tenantID, util.ErrNotFound)
}

func (m *Mem) DeleteSecurityGroup(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sgs[id]; !ok {
		return fmt.Errorf("security group '%s': %w", id, util.ErrNotFound)
	}
	delete(m.sgs, id)
	for rid, r := range m.sgRules {
		if r.SecurityGroupID == id {
			delete(m.sgRules, rid)
		}
	}
	return nil
}

func (m *Mem) CreateSecurityGroupRule(r *SecurityGroupRule) (*SecurityGroupRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sgs[r.SecurityGroupID]; !ok {
		return nil, fmt.Errorf("security group '%s': %w", r.SecurityGroupID, util.ErrNotFound)
	}
	cp := *r
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	m.sgRules[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *Mem) SecurityGroupRules(sgID string) ([]*SecurityGroupRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*SecurityGroupRule
	for _, r := range m.sgRules {
		if r.SecurityGroupID == sgID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Mem) DeleteSecurityGroupRule(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sgRules[id]; !ok {
		return fmt.Errorf("security group rule '%s': %w", id, util.ErrNotFound)
	}
	delete(m.sgRules, id)
	return nil
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
