// Package rpc assembles the endpoint detail records agents request when
// a workload port comes up on a host. The answer is a composition of
// policy, resource and name mapping reads; any failure degrades to a
// minimal record naming only the device, so the agent can retry rather
// than wedge.
package rpc

import (
	"fmt"
	"strings"

	"github.com/stackforge/group-based-policy/pkg/gbp/namemap"
	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/gbp/resource"
	"github.com/stackforge/group-based-policy/pkg/util"
)

// devicePrefix is what agents prepend to the port id in requests.
const devicePrefix = "tap"

// metadataCIDR is the link-local metadata service address injected as a
// host route via the subnet's DHCP agent.
const metadataCIDR = "169.254.169.254/32"

// SubnetDetail is the DHCP-relevant view of one subnet.
type SubnetDetail struct {
	ID             string               `json:"id"`
	CIDR           string               `json:"cidr"`
	GatewayIP      string               `json:"gateway_ip,omitempty"`
	EnableDHCP     bool                 `json:"enable_dhcp"`
	DNSNameservers []string             `json:"dns_nameservers,omitempty"`
	HostRoutes     []resource.HostRoute `json:"host_routes,omitempty"`
	DHCPServerIPs  []string             `json:"dhcp_server_ips,omitempty"`
}

// EndpointDetails is the record an agent receives for one device.
type EndpointDetails struct {
	Device string `json:"device"`
	Host   string `json:"host,omitempty"`

	PortID     string             `json:"port_id,omitempty"`
	MACAddress string             `json:"mac_address,omitempty"`
	FixedIPs   []resource.FixedIP `json:"fixed_ips,omitempty"`

	GroupName   string `json:"endpoint_group_name,omitempty"`
	GroupTenant string `json:"endpoint_group_tenant,omitempty"`
	VRFName     string `json:"vrf_name,omitempty"`
	VRFTenant   string `json:"vrf_tenant,omitempty"`

	// VRFSubnets lists every CIDR routed within the endpoint's VRF.
	VRFSubnets []string `json:"vrf_subnets,omitempty"`

	Promiscuous         bool                   `json:"promiscuous_mode"`
	SecurityGroupIDs    []string               `json:"security_groups,omitempty"`
	AllowedAddressPairs []resource.AddressPair `json:"allowed_address_pairs,omitempty"`
	SubnetDetails       []SubnetDetail         `json:"subnets,omitempty"`
}

// Server answers endpoint detail requests.
type Server struct {
	policies  policy.Reader
	resources resource.Client
	names     *namemap.Mapper
}

func NewServer(policies policy.Reader, resources resource.Client, names *namemap.Mapper) *Server {
	return &Server{policies: policies, resources: resources, names: names}
}

// EndpointDetails resolves a device request. On any failure the error
// is logged with its request context and a degraded record naming only
// the device is returned, never an error: agents treat a missing body
// as fatal but retry thin ones.
func (s *Server) EndpointDetails(device, host string) *EndpointDetails {
	details, err := s.assemble(device, host)
	if err != nil {
		util.WithFields(map[string]interface{}{"device": device, "host": host}).
			Warnf("endpoint details degraded: %v", err)
		return &EndpointDetails{Device: device}
	}
	return details
}

func (s *Server) assemble(device, host string) (*EndpointDetails, error) {
	portID := strings.TrimPrefix(device, devicePrefix)
	port, err := s.resources.GetPort(portID)
	if err != nil {
		return nil, err
	}
	pt, err := s.targetByPort(portID)
	if err != nil {
		return nil, err
	}
	g, err := s.policies.PolicyTargetGroup(pt.GroupID)
	if err != nil {
		return nil, err
	}
	l2, err := s.policies.L2Policy(g.L2PolicyID)
	if err != nil {
		return nil, err
	}
	l3, err := s.policies.L3Policy(l2.L3PolicyID)
	if err != nil {
		return nil, err
	}

	groupName, err := s.names.Map("group", g.ID, namemap.Opts{
		Name: func() (string, error) { return g.Name, nil },
	})
	if err != nil {
		return nil, err
	}
	vrfName, err := s.names.Map("l3_policy", l3.ID, namemap.Opts{
		Name: func() (string, error) { return l3.Name, nil },
	})
	if err != nil {
		return nil, err
	}

	details := &EndpointDetails{
		Device:              device,
		Host:                host,
		PortID:              port.ID,
		MACAddress:          port.MACAddress,
		FixedIPs:            port.FixedIPs,
		GroupName:           groupName,
		GroupTenant:         g.TenantID,
		VRFName:             vrfName,
		VRFTenant:           l3.TenantID,
		Promiscuous:         promiscuousOwner(port.DeviceOwner),
		SecurityGroupIDs:    port.SecurityGroupIDs,
		AllowedAddressPairs: port.AllowedAddressPairs,
	}

	details.VRFSubnets, err = s.vrfSubnets(l3)
	if err != nil {
		return nil, err
	}
	details.SubnetDetails, err = s.subnetDetails(port)
	if err != nil {
		return nil, err
	}
	return details, nil
}

// targetByPort finds the policy target attached to a port.
func (s *Server) targetByPort(portID string) (*policy.PolicyTarget, error) {
	for _, g := range s.policies.PolicyTargetGroups() {
		for _, pt := range s.policies.TargetsByGroup(g.ID) {
			if pt.PortID == portID {
				return pt, nil
			}
		}
	}
	return nil, fmt.Errorf("policy target for port '%s': %w", portID, util.ErrNotFound)
}

// promiscuousOwner reports whether a device owner gets all traffic on
// the segment rather than only its own addresses.
func promiscuousOwner(owner string) bool {
	return owner == resource.DeviceOwnerDHCP || owner == resource.DeviceOwnerLoadBalancer
}

func (s *Server) vrfSubnets(l3 *policy.L3Policy) ([]string, error) {
	var cidrs []string
	for _, l2 := range s.policies.L2PoliciesByL3Policy(l3.ID) {
		if l2.NetworkID == "" {
			continue
		}
		subnets, err := s.resources.SubnetsByNetwork(l2.NetworkID)
		if err != nil {
			return nil, err
		}
		for _, sub := range subnets {
			cidrs = append(cidrs, sub.CIDR)
		}
	}
	return cidrs, nil
}

func (s *Server) subnetDetails(port *resource.Port) ([]SubnetDetail, error) {
	var details []SubnetDetail
	for _, fip := range port.FixedIPs {
		sub, err := s.resources.GetSubnet(fip.SubnetID)
		if err != nil {
			return nil, err
		}
		detail := SubnetDetail{
			ID:             sub.ID,
			CIDR:           sub.CIDR,
			GatewayIP:      sub.GatewayIP,
			EnableDHCP:     sub.EnableDHCP,
			DNSNameservers: sub.DNSNameservers,
			HostRoutes:     append([]resource.HostRoute(nil), sub.HostRoutes...),
		}
		dhcpIPs, err := s.dhcpServerIPs(sub)
		if err != nil {
			return nil, err
		}
		detail.DHCPServerIPs = dhcpIPs
		// The metadata service is reached through the subnet's DHCP
		// agent, one host route per serving address.
		for _, ip := range dhcpIPs {
			detail.HostRoutes = append(detail.HostRoutes, resource.HostRoute{
				Destination: metadataCIDR,
				Nexthop:     ip,
			})
		}
		details = append(details, detail)
	}
	return details, nil
}

// dhcpServerIPs returns the addresses of DHCP ports serving a subnet.
func (s *Server) dhcpServerIPs(sub *resource.Subnet) ([]string, error) {
	ports, err := s.resources.PortsByNetwork(sub.NetworkID)
	if err != nil {
		return nil, err
	}
	var ips []string
	for _, p := range ports {
		if p.DeviceOwner != resource.DeviceOwnerDHCP {
			continue
		}
		for _, fip := range p.FixedIPs {
			if fip.SubnetID == sub.ID {
				ips = append(ips, fip.IPAddress)
			}
		}
	}
	return ips, nil
}
