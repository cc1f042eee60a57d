// Package resource models the lower-level networking backend the policy
// driver provisions against: networks, subnets, ports, routers and
// security groups. The Client interface is the only surface the driver
// uses; Mem implements it in memory for tests and standalone runs.
package resource

// Device owners with special treatment in endpoint details.
const (
	DeviceOwnerDHCP         = "network:dhcp"
	DeviceOwnerLoadBalancer = "neutron:LOADBALANCER"
	DeviceOwnerRouterIface  = "network:router_interface"
)

// FixedIP is one address assignment of a port.
type FixedIP struct {
	SubnetID  string `json:"subnet_id"`
	IPAddress string `json:"ip_address"`
}

// AddressPair is an extra address a port may source traffic from.
type AddressPair struct {
	IPAddress  string `json:"ip_address"`
	MACAddress string `json:"mac_address,omitempty"`
}

// Port is a network attachment point.
type Port struct {
	ID                  string        `json:"id"`
	TenantID            string        `json:"tenant_id"`
	NetworkID           string        `json:"network_id"`
	Name                string        `json:"name,omitempty"`
	MACAddress          string        `json:"mac_address,omitempty"`
	FixedIPs            []FixedIP     `json:"fixed_ips,omitempty"`
	HostID              string        `json:"binding_host_id,omitempty"`
	DeviceOwner         string        `json:"device_owner,omitempty"`
	DeviceID            string        `json:"device_id,omitempty"`
	SecurityGroupIDs    []string      `json:"security_groups,omitempty"`
	AllowedAddressPairs []AddressPair `json:"allowed_address_pairs,omitempty"`
	AdminStateUp        bool          `json:"admin_state_up"`
}

// AllocationPool is a contiguous range of assignable addresses.
type AllocationPool struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// HostRoute is a static route pushed to instances on a subnet.
type HostRoute struct {
	Destination string `json:"destination"`
	Nexthop     string `json:"nexthop"`
}

// Subnet is an address block on a network.
type Subnet struct {
	ID              string           `json:"id"`
	TenantID        string           `json:"tenant_id"`
	NetworkID       string           `json:"network_id"`
	Name            string           `json:"name,omitempty"`
	CIDR            string           `json:"cidr"`
	GatewayIP       string           `json:"gateway_ip,omitempty"`
	IPVersion       int              `json:"ip_version"`
	EnableDHCP      bool             `json:"enable_dhcp"`
	AllocationPools []AllocationPool `json:"allocation_pools,omitempty"`
	HostRoutes      []HostRoute      `json:"host_routes,omitempty"`
	DNSNameservers  []string         `json:"dns_nameservers,omitempty"`
}

// Network is a broadcast domain.
type Network struct {
	ID           string   `json:"id"`
	TenantID     string   `json:"tenant_id"`
	Name         string   `json:"name,omitempty"`
	Shared       bool     `json:"shared"`
	AdminStateUp bool     `json:"admin_state_up"`
	SubnetIDs    []string `json:"subnets,omitempty"`
}

// Route is one static route on a router.
type Route struct {
	Destination string `json:"destination"`
	Nexthop     string `json:"nexthop"`
}

// ExternalGatewayInfo attaches a router to an external network.
type ExternalGatewayInfo struct {
	NetworkID        string    `json:"network_id"`
	ExternalFixedIPs []FixedIP `json:"external_fixed_ips,omitempty"`
}

// Router routes between subnets and toward external segments.
type Router struct {
	ID              string               `json:"id"`
	TenantID        string               `json:"tenant_id"`
	Name            string               `json:"name,omitempty"`
	Routes          []Route              `json:"routes,omitempty"`
	ExternalGateway *ExternalGatewayInfo `json:"external_gateway_info,omitempty"`
}

// SecurityGroup is a named set of filtering rules applied to ports.
type SecurityGroup struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SecurityGroupRule is one filtering rule.
type SecurityGroupRule struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	SecurityGroupID string `json:"security_group_id"`
	Direction       string `json:"direction"` // ingress or egress
	Protocol        string `json:"protocol,omitempty"`
	PortRangeMin    int    `json:"port_range_min,omitempty"`
	PortRangeMax    int    `json:"port_range_max,omitempty"`
	RemoteIPPrefix  string `json:"remote_ip_prefix,omitempty"`
}

// Client is the lower-level backend surface the policy driver consumes.
type Client interface {
	CreateNetwork(n *Network) (*Network, error)
	GetNetwork(id string) (*Network, error)
	DeleteNetwork(id string) error

	CreateSubnet(s *Subnet) (*Subnet, error)
	GetSubnet(id string) (*Subnet, error)
	UpdateSubnet(s *Subnet) (*Subnet, error)
	DeleteSubnet(id string) error
	SubnetsByNetwork(networkID string) ([]*Subnet, error)
	SubnetsByIDs(ids []string) ([]*Subnet, error)

	CreatePort(p *Port) (*Port, error)
	GetPort(id string) (*Port, error)
	UpdatePort(p *Port) (*Port, error)
	DeletePort(id string) error
	PortsByNetwork(networkID string) ([]*Port, error)

	CreateRouter(r *Router) (*Router, error)
	GetRouter(id string) (*Router, error)
	UpdateRouterRoutes(id string, routes []Route) error
	DeleteRouter(id string) error
	AddRouterInterface(routerID, subnetID string) error
	RemoveRouterInterface(routerID, subnetID string) error
	RouterSubnetIDs(routerID string) ([]string, error)

	CreateSecurityGroup(sg *SecurityGroup) (*SecurityGroup, error)
	SecurityGroupByName(tenantID, name string) (*SecurityGroup, error)
	DeleteSecurityGroup(id string) error
	CreateSecurityGroupRule(r *SecurityGroupRule) (*SecurityGroupRule, error)
	SecurityGroupRules(sgID string) ([]*SecurityGroupRule, error)
	DeleteSecurityGroupRule(id string) error
}
