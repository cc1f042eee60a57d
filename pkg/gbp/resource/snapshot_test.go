package resource

import (
	"errors"
	"testing"

	"github.com/stackforge/group-based-policy/pkg/gbp/store"
	"github.com/stackforge/group-based-policy/pkg/util"
)

func TestSnapshotRoundTrip(t *testing.T) {
	st := store.NewMemory()
	m := NewMem()

	n, err := m.CreateNetwork(&Network{TenantID: "t1", Name: "web"})
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	sub, err := m.CreateSubnet(&Subnet{TenantID: "t1", NetworkID: n.ID, CIDR: "10.0.1.0/24"})
	if err != nil {
		t.Fatalf("subnet: %v", err)
	}
	port, err := m.CreatePort(&Port{TenantID: "t1", NetworkID: n.ID})
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	r, err := m.CreateRouter(&Router{TenantID: "t1", Name: "gw"})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	if err := m.AddRouterInterface(r.ID, sub.ID); err != nil {
		t.Fatalf("router interface: %v", err)
	}

	if err := m.SaveTo(st); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	loaded, err := LoadMem(st)
	if err != nil {
		t.Fatalf("LoadMem: %v", err)
	}

	got, err := loaded.GetPort(port.ID)
	if err != nil {
		t.Fatalf("port after load: %v", err)
	}
	if got.FixedIPs[0].IPAddress != port.FixedIPs[0].IPAddress {
		t.Errorf("port address = %s, want %s", got.FixedIPs[0].IPAddress, port.FixedIPs[0].IPAddress)
	}
	subnets, err := loaded.RouterSubnetIDs(r.ID)
	if err != nil {
		t.Fatalf("router subnets after load: %v", err)
	}
	if len(subnets) != 1 || subnets[0] != sub.ID {
		t.Errorf("router subnets = %v, want [%s]", subnets, sub.ID)
	}

	// Assigned addresses must be rebuilt: a new port cannot take the
	// loaded port's address.
	p2, err := loaded.CreatePort(&Port{TenantID: "t1", NetworkID: n.ID})
	if err != nil {
		t.Fatalf("second port: %v", err)
	}
	if p2.FixedIPs[0].IPAddress == port.FixedIPs[0].IPAddress {
		t.Errorf("loaded backend reassigned %s", port.FixedIPs[0].IPAddress)
	}

	// A store with no snapshot loads empty.
	empty, err := LoadMem(store.NewMemory())
	if err != nil {
		t.Fatalf("LoadMem empty: %v", err)
	}
	if _, err := empty.GetNetwork(n.ID); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("empty load has network: err = %v", err)
	}
}

func TestSnapshotLoadAllocatesOnEmptySubnet(t *testing.T) {
	st := store.NewMemory()
	m := NewMem()

	n, err := m.CreateNetwork(&Network{TenantID: "t1", Name: "web"})
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	if _, err := m.CreateSubnet(&Subnet{TenantID: "t1", NetworkID: n.ID, CIDR: "10.0.1.0/24"}); err != nil {
		t.Fatalf("subnet: %v", err)
	}
	if err := m.SaveTo(st); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	// A subnet restored with no ports must still have address-tracking
	// state, so the first implicit allocation on it works.
	loaded, err := LoadMem(st)
	if err != nil {
		t.Fatalf("LoadMem: %v", err)
	}
	p, err := loaded.CreatePort(&Port{TenantID: "t1", NetworkID: n.ID})
	if err != nil {
		t.Fatalf("port on loaded backend: %v", err)
	}
	if len(p.FixedIPs) != 1 || p.FixedIPs[0].IPAddress == "" {
		t.Fatalf("port fixed IPs = %+v, want one assigned address", p.FixedIPs)
	}
	p2, err := loaded.CreatePort(&Port{TenantID: "t1", NetworkID: n.ID})
	if err != nil {
		t.Fatalf("second port: %v", err)
	}
	if p2.FixedIPs[0].IPAddress == p.FixedIPs[0].IPAddress {
		t.Errorf("address %s assigned twice", p.FixedIPs[0].IPAddress)
	}
}
