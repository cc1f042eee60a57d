// Package fabric models the switching fabric's policy objects and keeps
// them in step with the resource layer. Objects are identified by a
// typed tuple rather than an opaque id; the same tuple always names the
// same object, so synchronization is a pure desired-state write.
package fabric

import "strings"

// MaxDisplayNameLen bounds the human-readable name carried on fabric
// objects. Longer names are truncated, never rejected.
const MaxDisplayNameLen = 59

// Status of a fabric object as reported by the backend.
const (
	StatusSynced = "synced"
	StatusBuild  = "build"
	StatusError  = "error"
)

// MergeStatus combines two object statuses into the status of the
// aggregate: any error makes the aggregate an error, otherwise any
// build makes it building.
func MergeStatus(a, b string) string {
	if a == StatusError || b == StatusError {
		return StatusError
	}
	if a == StatusBuild || b == StatusBuild {
		return StatusBuild
	}
	return StatusSynced
}

// DisplayName sanitizes a name for the fabric: whitespace collapses to
// single separators and the result is cut at MaxDisplayNameLen.
func DisplayName(name string) string {
	name = strings.Join(strings.Fields(name), "_")
	if len(name) > MaxDisplayNameLen {
		name = name[:MaxDisplayNameLen]
	}
	return name
}

// Object is one fabric policy object. Identity returns the typed name
// tuple; Attrs returns the non-identity attributes for comparison, with
// slice values compared as sets.
type Object interface {
	TypeName() string
	Identity() []string
	Attrs() map[string]interface{}
	IsMonitored() bool
}

// DN renders an object's distinguished name.
func DN(o Object) string {
	return o.TypeName() + "|" + strings.Join(o.Identity(), "|")
}

// Tenant is the top-level container for a project's fabric objects.
type Tenant struct {
	Name        string
	DisplayName string
	Monitored   bool
}

func (t *Tenant) TypeName() string   { return "tenant" }
func (t *Tenant) Identity() []string { return []string{t.Name} }
func (t *Tenant) IsMonitored() bool  { return t.Monitored }
func (t *Tenant) Attrs() map[string]interface{} {
	return map[string]interface{}{"display_name": t.DisplayName}
}

// VRF is a routing domain inside a tenant.
type VRF struct {
	Tenant      string
	Name        string
	DisplayName string
	Monitored   bool
}

func (v *VRF) TypeName() string   { return "vrf" }
func (v *VRF) Identity() []string { return []string{v.Tenant, v.Name} }
func (v *VRF) IsMonitored() bool  { return v.Monitored }
func (v *VRF) Attrs() map[string]interface{} {
	return map[string]interface{}{"display_name": v.DisplayName}
}

// BridgeDomain is the fabric's broadcast domain for one network.
type BridgeDomain struct {
	Tenant      string
	Name        string
	DisplayName string
	VRFName     string
	Monitored   bool
}

func (b *BridgeDomain) TypeName() string   { return "bridge_domain" }
func (b *BridgeDomain) Identity() []string { return []string{b.Tenant, b.Name} }
func (b *BridgeDomain) IsMonitored() bool  { return b.Monitored }
func (b *BridgeDomain) Attrs() map[string]interface{} {
	return map[string]interface{}{
		"display_name": b.DisplayName,
		"vrf_name":     b.VRFName,
	}
}

// Subnet is a gateway address served by a bridge domain.
type Subnet struct {
	Tenant       string
	BridgeDomain string
	GatewayCIDR  string
	DisplayName  string
	Monitored    bool
}

func (s *Subnet) TypeName() string { return "subnet" }
func (s *Subnet) Identity() []string {
	return []string{s.Tenant, s.BridgeDomain, s.GatewayCIDR}
}
func (s *Subnet) IsMonitored() bool { return s.Monitored }
func (s *Subnet) Attrs() map[string]interface{} {
	return map[string]interface{}{"display_name": s.DisplayName}
}

// EndpointGroup binds workloads on a network to the contracts they
// provide and consume.
type EndpointGroup struct {
	Tenant            string
	Name              string
	DisplayName       string
	BridgeDomainName  string
	ProvidedContracts []string
	ConsumedContracts []string
	Monitored         bool
}

func (e *EndpointGroup) TypeName() string   { return "endpoint_group" }
func (e *EndpointGroup) Identity() []string { return []string{e.Tenant, e.Name} }
func (e *EndpointGroup) IsMonitored() bool  { return e.Monitored }
func (e *EndpointGroup) Attrs() map[string]interface{} {
	return map[string]interface{}{
		"display_name":       e.DisplayName,
		"bridge_domain_name": e.BridgeDomainName,
		"provided_contracts": e.ProvidedContracts,
		"consumed_contracts": e.ConsumedContracts,
	}
}

// Contract is the fabric's rendering of a policy rule set.
type Contract struct {
	Tenant      string
	Name        string
	DisplayName string
	FilterNames []string
	Monitored   bool
}

func (c *Contract) TypeName() string   { return "contract" }
func (c *Contract) Identity() []string { return []string{c.Tenant, c.Name} }
func (c *Contract) IsMonitored() bool  { return c.Monitored }
func (c *Contract) Attrs() map[string]interface{} {
	return map[string]interface{}{
		"display_name": c.DisplayName,
		"filter_names": c.FilterNames,
	}
}

// Filter is the fabric's rendering of a policy classifier.
type Filter struct {
	Tenant      string
	Name        string
	DisplayName string
	Protocol    string
	PortMin     int
	PortMax     int
	Monitored   bool
}

func (f *Filter) TypeName() string   { return "filter" }
func (f *Filter) Identity() []string { return []string{f.Tenant, f.Name} }
func (f *Filter) IsMonitored() bool  { return f.Monitored }
func (f *Filter) Attrs() map[string]interface{} {
	return map[string]interface{}{
		"display_name": f.DisplayName,
		"protocol":     f.Protocol,
		"port_min":     f.PortMin,
		"port_max":     f.PortMax,
	}
}
