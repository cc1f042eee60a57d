// Package policy defines the typed group-based policy model: policy
// targets, target groups, L2/L3 policies, rule sets, classifiers,
// actions, network service policies and external connectivity objects.
// Every entity is an explicit struct with required and optional fields
// spelled out; lifecycle hooks receive these records directly.
package policy

// ActionType enumerates what a policy action does with matched traffic.
type ActionType string

const (
	ActionAllow    ActionType = "allow"
	ActionRedirect ActionType = "redirect"
)

// Direction of traffic a classifier matches, relative to the group
// providing the rule set.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
	DirectionBi  Direction = "bi"
)

// NetworkServiceParamType enumerates the parameter kinds a network
// service policy may carry.
const (
	ParamTypeIPSingle = "ip_single"
	ParamTypeIPPool   = "ip_pool"
	ParamTypeString   = "string"

	ParamValueSelfSubnet = "self_subnet"
	ParamValueNatPool    = "nat_pool"
)

// PolicyTarget is a single network attachment point. Its underlying port
// is created by the driver unless PortID is supplied by the caller.
type PolicyTarget struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TenantID    string `json:"tenant_id"`
	GroupID     string `json:"policy_target_group_id"`
	PortID      string `json:"port_id,omitempty"`
}

// PolicyTargetGroup is a named set of policy targets sharing connectivity
// and security policy.
type PolicyTargetGroup struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	TenantID    string   `json:"tenant_id"`
	L2PolicyID  string   `json:"l2_policy_id,omitempty"`
	SubnetIDs   []string `json:"subnets,omitempty"`

	// Rule sets this group provides to / consumes from others.
	ProvidedRuleSetIDs []string `json:"provided_policy_rule_sets,omitempty"`
	ConsumedRuleSetIDs []string `json:"consumed_policy_rule_sets,omitempty"`

	NetworkServicePolicyID string `json:"network_service_policy_id,omitempty"`

	// ServiceManaged marks groups created by the service chain plumbing
	// itself; they are skipped by redirect reconciliation.
	ServiceManaged bool `json:"service_management,omitempty"`
}

// L2Policy is a broadcast domain backed by one network.
type L2Policy struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TenantID    string `json:"tenant_id"`
	L3PolicyID  string `json:"l3_policy_id"`
	NetworkID   string `json:"network_id,omitempty"`
}

// ExternalRoute is one static route entry contributed by an external
// segment.
type ExternalRoute struct {
	Destination string `json:"destination"`
	Nexthop     string `json:"nexthop,omitempty"`
}

// L3Policy is a routing domain with an address pool. At most one router
// and at most one external segment attachment are supported.
type L3Policy struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TenantID    string `json:"tenant_id"`

	IPPool             string `json:"ip_pool"`
	SubnetPrefixLength int    `json:"subnet_prefix_length"`
	IPVersion          int    `json:"ip_version"`

	RouterIDs []string `json:"routers,omitempty"`

	// ExternalSegments maps external segment id to the fixed IPs
	// allocated for this policy on that segment.
	ExternalSegments map[string][]string `json:"external_segments,omitempty"`
}

// PolicyClassifier describes the traffic a rule matches.
type PolicyClassifier struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	TenantID    string    `json:"tenant_id"`
	Protocol    string    `json:"protocol,omitempty"`
	PortRange   string    `json:"port_range,omitempty"`
	Direction   Direction `json:"direction"`
}

// PolicyAction is what happens to matched traffic. A redirect action
// carries the id of the service chain spec to instantiate.
type PolicyAction struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	TenantID    string     `json:"tenant_id"`
	ActionType  ActionType `json:"action_type"`
	ActionValue string     `json:"action_value,omitempty"`
}

// PolicyRule binds one classifier to an ordered set of actions.
type PolicyRule struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	TenantID     string   `json:"tenant_id"`
	Enabled      bool     `json:"enabled"`
	ClassifierID string   `json:"policy_classifier_id"`
	ActionIDs    []string `json:"policy_actions,omitempty"`
}

// PolicyRuleSet is a named, inheritable contract of rules. When ParentID
// is set, only the child rules whose classifier also appears in the
// parent are enforced.
type PolicyRuleSet struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	TenantID    string   `json:"tenant_id"`
	ParentID    string   `json:"parent_id,omitempty"`
	RuleIDs     []string `json:"policy_rules,omitempty"`
	ChildIDs    []string `json:"child_policy_rule_sets,omitempty"`
}

// NetworkServiceParam is one parameter of a network service policy.
type NetworkServiceParam struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NetworkServicePolicy carries service parameters applied to the groups
// referencing it, such as a reserved load balancer VIP drawn from the
// group's own subnet.
type NetworkServicePolicy struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	TenantID    string                `json:"tenant_id"`
	Params      []NetworkServiceParam `json:"network_service_params,omitempty"`
}

// ExternalSegment is a piece of external connectivity, backed by an
// external subnet, contributing routes to attached L3 policies.
type ExternalSegment struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	TenantID    string          `json:"tenant_id"`
	SubnetID    string          `json:"subnet_id,omitempty"`
	CIDR        string          `json:"cidr,omitempty"`
	IPVersion   int             `json:"ip_version,omitempty"`
	Routes      []ExternalRoute `json:"external_routes,omitempty"`
}

// ExternalPolicy applies rule sets to traffic entering or leaving via
// its external segments.
type ExternalPolicy struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	TenantID    string   `json:"tenant_id"`
	SegmentIDs  []string `json:"external_segments,omitempty"`

	ProvidedRuleSetIDs []string `json:"provided_policy_rule_sets,omitempty"`
	ConsumedRuleSetIDs []string `json:"consumed_policy_rule_sets,omitempty"`
}

// NatPool is an address pool for NAT on an external segment.
type NatPool struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	TenantID          string `json:"tenant_id"`
	IPPool            string `json:"ip_pool"`
	IPVersion         int    `json:"ip_version,omitempty"`
	ExternalSegmentID string `json:"external_segment_id,omitempty"`
}

// GroupKind discriminates the possible resolutions of a group id used in
// a rule set relationship. Lookups resolve the kind explicitly instead of
// trying one type and falling back on failure.
type GroupKind int

const (
	GroupKindUnknown GroupKind = iota
	GroupKindTargetGroup
	GroupKindExternalPolicy
)

// ResolvedGroup is the result of a type-discriminating group lookup.
// Exactly one of Group or External is set, per Kind.
type ResolvedGroup struct {
	Kind     GroupKind
	Group    *PolicyTargetGroup
	External *ExternalPolicy
}

// TenantID returns the owning tenant of whichever object resolved.
func (r *ResolvedGroup) TenantID() string {
	switch r.Kind {
	case GroupKindTargetGroup:
		return r.Group.TenantID
	case GroupKindExternalPolicy:
		return r.External.TenantID
	}
	return ""
}

// ID returns the id of whichever object resolved.
func (r *ResolvedGroup) ID() string {
	switch r.Kind {
	case GroupKindTargetGroup:
		return r.Group.ID
	case GroupKindExternalPolicy:
		return r.External.ID
	}
	return ""
}
