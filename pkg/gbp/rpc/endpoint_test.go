package rpc

import (
	"testing"

	"github.com/stackforge/group-based-policy/pkg/gbp/driver"
	"github.com/stackforge/group-based-policy/pkg/gbp/namemap"
	"github.com/stackforge/group-based-policy/pkg/gbp/owner"
	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/gbp/resource"
	"github.com/stackforge/group-based-policy/pkg/gbp/store"
)

// newTestWorld provisions a group with one policy target through the
// lifecycle driver and returns a server over the resulting state.
func newTestWorld(t *testing.T) (*Server, *driver.Driver, *policy.PolicyTarget) {
	t.Helper()
	st := store.NewMemory()
	names := namemap.New(st, namemap.StrategyName)
	d := driver.New(driver.Config{
		Policies:  policy.NewMemDB(),
		Resources: resource.NewMem(),
		Chains:    driver.NewMemChains(),
		Owner:     owner.New(st),
		Names:     names,
		Store:     st,
	})

	g := &policy.PolicyTargetGroup{ID: "g1", Name: "web", TenantID: "t1"}
	if err := d.CreatePolicyTargetGroupPostcommit(g); err != nil {
		t.Fatalf("group: %v", err)
	}
	pt := &policy.PolicyTarget{ID: "pt1", Name: "vm1", TenantID: "t1", GroupID: g.ID}
	if err := d.CreatePolicyTargetPostcommit(pt); err != nil {
		t.Fatalf("policy target: %v", err)
	}
	return NewServer(d.Policies(), d.Resources(), names), d, pt
}

func TestEndpointDetails(t *testing.T) {
	s, _, pt := newTestWorld(t)

	details := s.EndpointDetails("tap"+pt.PortID, "host-1")
	if details.PortID != pt.PortID {
		t.Fatalf("details = %+v, want port %s", details, pt.PortID)
	}
	if details.GroupName != "web" {
		t.Errorf("group name = %q, want web", details.GroupName)
	}
	if details.GroupTenant != "t1" || details.VRFTenant != "t1" {
		t.Errorf("tenants = %q/%q, want t1/t1", details.GroupTenant, details.VRFTenant)
	}
	if details.VRFName != "default" {
		t.Errorf("vrf name = %q, want default", details.VRFName)
	}
	if len(details.VRFSubnets) != 1 || details.VRFSubnets[0] != "10.0.0.0/24" {
		t.Errorf("vrf subnets = %v, want [10.0.0.0/24]", details.VRFSubnets)
	}
	if details.Promiscuous {
		t.Error("plain workload port reported promiscuous")
	}
	if len(details.SecurityGroupIDs) != 1 {
		t.Errorf("security groups = %v, want the group default", details.SecurityGroupIDs)
	}
	if len(details.SubnetDetails) != 1 {
		t.Fatalf("subnet details = %+v, want 1", details.SubnetDetails)
	}
	if details.SubnetDetails[0].GatewayIP != "10.0.0.1" {
		t.Errorf("gateway = %s, want 10.0.0.1", details.SubnetDetails[0].GatewayIP)
	}
}

func TestEndpointDetails_DHCPRoutesAndPromiscuous(t *testing.T) {
	s, d, pt := newTestWorld(t)

	port, err := d.Resources().GetPort(pt.PortID)
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dhcp, err := d.Resources().CreatePort(&resource.Port{
		TenantID:    "t1",
		NetworkID:   port.NetworkID,
		DeviceOwner: resource.DeviceOwnerDHCP,
	})
	if err != nil {
		t.Fatalf("dhcp port: %v", err)
	}

	details := s.EndpointDetails("tap"+pt.PortID, "host-1")
	if len(details.SubnetDetails) != 1 {
		t.Fatalf("subnet details = %+v", details.SubnetDetails)
	}
	sd := details.SubnetDetails[0]
	if len(sd.DHCPServerIPs) != 1 || sd.DHCPServerIPs[0] != dhcp.FixedIPs[0].IPAddress {
		t.Errorf("dhcp ips = %v, want [%s]", sd.DHCPServerIPs, dhcp.FixedIPs[0].IPAddress)
	}
	var metadataRoute bool
	for _, r := range sd.HostRoutes {
		if r.Destination == metadataCIDR && r.Nexthop == dhcp.FixedIPs[0].IPAddress {
			metadataRoute = true
		}
	}
	if !metadataRoute {
		t.Errorf("host routes = %v, want metadata route via dhcp", sd.HostRoutes)
	}
}

func TestEndpointDetails_DegradesOnUnknownDevice(t *testing.T) {
	s, _, _ := newTestWorld(t)

	details := s.EndpointDetails("tap-nonexistent", "host-1")
	if details.Device != "tap-nonexistent" {
		t.Errorf("degraded device = %q", details.Device)
	}
	if details.PortID != "" || details.GroupName != "" {
		t.Errorf("degraded record carries detail: %+v", details)
	}
}
