package resource

import (
	"errors"
	"testing"

	"github.com/stackforge/group-based-policy/pkg/util"
)

func newTestNetwork(t *testing.T, m *Mem) *Network {
	t.Helper()
	n, err := m.CreateNetwork(&Network{TenantID: "t1", Name: "net1", AdminStateUp: true})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestCreateSubnetDefaults(t *testing.T) {
	m := NewMem()
	n := newTestNetwork(t, m)

	s, err := m.CreateSubnet(&Subnet{TenantID: "t1", NetworkID: n.ID, CIDR: "10.0.1.0/24"})
	if err != nil {
		t.Fatal(err)
	}
	if s.GatewayIP != "10.0.1.1" {
		t.Errorf("GatewayIP = %q", s.GatewayIP)
	}
	if s.IPVersion != 4 {
		t.Errorf("IPVersion = %d", s.IPVersion)
	}
	if len(s.AllocationPools) != 1 ||
		s.AllocationPools[0].Start != "10.0.1.2" ||
		s.AllocationPools[0].End != "10.0.1.254" {
		t.Errorf("AllocationPools = %+v", s.AllocationPools)
	}

	got, err := m.GetNetwork(n.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.SubnetIDs) != 1 || got.SubnetIDs[0] != s.ID {
		t.Errorf("network subnets = %v", got.SubnetIDs)
	}
}

func TestCreateSubnetRejectsOverlap(t *testing.T) {
	m := NewMem()
	n := newTestNetwork(t, m)

	if _, err := m.CreateSubnet(&Subnet{TenantID: "t1", NetworkID: n.ID, CIDR: "10.0.0.0/24"}); err != nil {
		t.Fatal(err)
	}
	_, err := m.CreateSubnet(&Subnet{TenantID: "t1", NetworkID: n.ID, CIDR: "10.0.0.128/25"})
	if !errors.Is(err, util.ErrOverlappingSubnet) {
		t.Errorf("expected ErrOverlappingSubnet, got %v", err)
	}
	// non-overlapping sibling is fine
	if _, err := m.CreateSubnet(&Subnet{TenantID: "t1", NetworkID: n.ID, CIDR: "10.0.1.0/24"}); err != nil {
		t.Errorf("disjoint subnet rejected: %v", err)
	}
}

func TestCreatePortAssignsAddress(t *testing.T) {
	m := NewMem()
	n := newTestNetwork(t, m)
	s, _ := m.CreateSubnet(&Subnet{TenantID: "t1", NetworkID: n.ID, CIDR: "10.0.1.0/24"})

	p1, err := m.CreatePort(&Port{TenantID: "t1", NetworkID: n.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(p1.FixedIPs) != 1 || p1.FixedIPs[0].SubnetID != s.ID {
		t.Fatalf("FixedIPs = %+v", p1.FixedIPs)
	}
	if p1.FixedIPs[0].IPAddress != "10.0.1.2" {
		t.Errorf("first assigned IP = %s", p1.FixedIPs[0].IPAddress)
	}
	if p1.MACAddress == "" {
		t.Error("MAC not assigned")
	}

	p2, _ := m.CreatePort(&Port{TenantID: "t1", NetworkID: n.ID})
	if p2.FixedIPs[0].IPAddress == p1.FixedIPs[0].IPAddress {
		t.Error("two ports assigned the same address")
	}

	// releasing the port frees its address for reuse
	if err := m.DeletePort(p1.ID); err != nil {
		t.Fatal(err)
	}
	p3, _ := m.CreatePort(&Port{TenantID: "t1", NetworkID: n.ID})
	if p3.FixedIPs[0].IPAddress != "10.0.1.2" {
		t.Errorf("freed address not reused: got %s", p3.FixedIPs[0].IPAddress)
	}
}

func TestDeleteSubnetInUse(t *testing.T) {
	m := NewMem()
	n := newTestNetwork(t, m)
	s, _ := m.CreateSubnet(&Subnet{TenantID: "t1", NetworkID: n.ID, CIDR: "10.0.1.0/24"})
	p, _ := m.CreatePort(&Port{TenantID: "t1", NetworkID: n.ID})

	if err := m.DeleteSubnet(s.ID); !errors.Is(err, util.ErrInUse) {
		t.Errorf("expected ErrInUse, got %v", err)
	}
	m.DeletePort(p.ID)
	if err := m.DeleteSubnet(s.ID); err != nil {
		t.Errorf("delete after port removal: %v", err)
	}
	got, _ := m.GetNetwork(n.ID)
	if len(got.SubnetIDs) != 0 {
		t.Errorf("network still lists subnet: %v", got.SubnetIDs)
	}
}

func TestRouterInterfaces(t *testing.T) {
	m := NewMem()
	n := newTestNetwork(t, m)
	s, _ := m.CreateSubnet(&Subnet{TenantID: "t1", NetworkID: n.ID, CIDR: "10.0.1.0/24"})
	r, err := m.CreateRouter(&Router{TenantID: "t1", Name: "r1"})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.AddRouterInterface(r.ID, s.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.AddRouterInterface(r.ID, s.ID); !errors.Is(err, util.ErrAlreadyExists) {
		t.Errorf("double attach: %v", err)
	}
	ids, _ := m.RouterSubnetIDs(r.ID)
	if len(ids) != 1 || ids[0] != s.ID {
		t.Errorf("RouterSubnetIDs = %v", ids)
	}

	if err := m.DeleteRouter(r.ID); !errors.Is(err, util.ErrInUse) {
		t.Errorf("delete with interfaces: %v", err)
	}
	m.RemoveRouterInterface(r.ID, s.ID)
	if err := m.DeleteRouter(r.ID); err != nil {
		t.Errorf("delete after detach: %v", err)
	}
}

func TestUpdateRouterRoutes(t *testing.T) {
	m := NewMem()
	r, _ := m.CreateRouter(&Router{TenantID: "t1"})
	routes := []Route{
		{Destination: "0.0.0.0/0", Nexthop: "10.0.0.1"},
		{Destination: "192.168.0.0/16", Nexthop: "10.0.0.2"},
	}
	if err := m.UpdateRouterRoutes(r.ID, routes); err != nil {
		t.Fatal(err)
	}
	got, _ := m.GetRouter(r.ID)
	if len(got.Routes) != 2 {
		t.Errorf("Routes = %+v", got.Routes)
	}
}

func TestSecurityGroups(t *testing.T) {
	m := NewMem()
	sg, err := m.CreateSecurityGroup(&SecurityGroup{TenantID: "t1", Name: "gbp_ptg1"})
	if err != nil {
		t.Fatal(err)
	}
	found, err := m.SecurityGroupByName("t1", "gbp_ptg1")
	if err != nil || found.ID != sg.ID {
		t.Fatalf("SecurityGroupByName = %v, %v", found, err)
	}
	if _, err := m.SecurityGroupByName("t2", "gbp_ptg1"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("lookup must be tenant scoped: %v", err)
	}

	r, err := m.CreateSecurityGroupRule(&SecurityGroupRule{
		TenantID: "t1", SecurityGroupID: sg.ID,
		Direction: "ingress", RemoteIPPrefix: "10.0.1.0/24",
	})
	if err != nil {
		t.Fatal(err)
	}
	rules, _ := m.SecurityGroupRules(sg.ID)
	if len(rules) != 1 || rules[0].ID != r.ID {
		t.Errorf("rules = %v", rules)
	}

	if err := m.DeleteSecurityGroup(sg.ID); err != nil {
		t.Fatal(err)
	}
	rules, _ = m.SecurityGroupRules(sg.ID)
	if len(rules) != 0 {
		t.Error("rules should be deleted with their group")
	}
}
