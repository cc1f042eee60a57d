package policy

import (
	"fmt"
	"net"
	"strings"

	"github.com/stackforge/group-based-policy/pkg/util"
)

// fieldCheck is one row of a per-type validation table: a field name, a
// value extractor, whether the field is required, and an optional value
// check applied when the field is set.
type fieldCheck struct {
	field    string
	value    func() string
	required bool
	check    func(string) error
}

func runChecks(kind, id string, checks []fieldCheck) error {
	v := &util.ValidationBuilder{}
	for _, c := range checks {
		val := c.value()
		if val == "" {
			if c.required {
				v.AddErrorf("%s %s: %s is required", kind, id, c.field)
			}
			continue
		}
		if c.check != nil {
			if err := c.check(val); err != nil {
				v.AddErrorf("%s %s: %s: %v", kind, id, c.field, err)
			}
		}
	}
	return v.Build()
}

func checkCIDR(s string) error {
	if _, _, err := net.ParseCIDR(s); err != nil {
		return fmt.Errorf("not a valid CIDR")
	}
	return nil
}

func checkDirection(s string) error {
	switch Direction(s) {
	case DirectionIn, DirectionOut, DirectionBi:
		return nil
	}
	return fmt.Errorf("must be one of in, out, bi")
}

func checkActionType(s string) error {
	switch ActionType(s) {
	case ActionAllow, ActionRedirect:
		return nil
	}
	return fmt.Errorf("must be one of allow, redirect")
}

func checkProtocol(s string) error {
	switch strings.ToLower(s) {
	case "tcp", "udp", "icmp":
		return nil
	}
	return fmt.Errorf("must be one of tcp, udp, icmp")
}

// Validate checks the target's own fields.
func (pt *PolicyTarget) Validate() error {
	return runChecks("policy target", pt.ID, []fieldCheck{
		{field: "id", value: func() string { return pt.ID }, required: true},
		{field: "tenant_id", value: func() string { return pt.TenantID }, required: true},
		{field: "policy_target_group_id", value: func() string { return pt.GroupID }, required: true},
	})
}

// Validate checks the group's own fields.
func (g *PolicyTargetGroup) Validate() error {
	return runChecks("policy target group", g.ID, []fieldCheck{
		{field: "id", value: func() string { return g.ID }, required: true},
		{field: "tenant_id", value: func() string { return g.TenantID }, required: true},
	})
}

// Validate checks the policy's own fields.
func (l2 *L2Policy) Validate() error {
	return runChecks("l2 policy", l2.ID, []fieldCheck{
		{field: "id", value: func() string { return l2.ID }, required: true},
		{field: "tenant_id", value: func() string { return l2.TenantID }, required: true},
		{field: "l3_policy_id", value: func() string { return l2.L3PolicyID }, required: true},
	})
}

// Validate checks the policy's own fields, including pool plausibility.
func (l3 *L3Policy) Validate() error {
	err := runChecks("l3 policy", l3.ID, []fieldCheck{
		{field: "id", value: func() string { return l3.ID }, required: true},
		{field: "tenant_id", value: func() string { return l3.TenantID }, required: true},
		{field: "ip_pool", value: func() string { return l3.IPPool }, required: true, check: checkCIDR},
	})
	if err != nil {
		return err
	}
	v := &util.ValidationBuilder{}
	if l3.IPVersion != 4 && l3.IPVersion != 6 {
		v.AddErrorf("l3 policy %s: ip_version must be 4 or 6", l3.ID)
	}
	maxLen := 32
	if l3.IPVersion == 6 {
		maxLen = 128
	}
	if l3.SubnetPrefixLength <= 0 || l3.SubnetPrefixLength >= maxLen {
		v.AddErrorf("l3 policy %s: subnet_prefix_length %d out of range", l3.ID, l3.SubnetPrefixLength)
	} else if _, pool, perr := net.ParseCIDR(l3.IPPool); perr == nil {
		if poolLen, _ := pool.Mask.Size(); l3.SubnetPrefixLength < poolLen {
			v.AddErrorf("l3 policy %s: subnet_prefix_length /%d larger than ip_pool %s",
				l3.ID, l3.SubnetPrefixLength, l3.IPPool)
		}
	}
	return v.Build()
}

// Validate checks the classifier's own fields.
func (c *PolicyClassifier) Validate() error {
	return runChecks("policy classifier", c.ID, []fieldCheck{
		{field: "id", value: func() string { return c.ID }, required: true},
		{field: "tenant_id", value: func() string { return c.TenantID }, required: true},
		{field: "direction", value: func() string { return string(c.Direction) }, required: true, check: checkDirection},
		{field: "protocol", value: func() string { return c.Protocol }, check: checkProtocol},
	})
}

// Validate checks the action's own fields. Redirect actions must name the
// service chain spec to instantiate.
func (a *PolicyAction) Validate() error {
	err := runChecks("policy action", a.ID, []fieldCheck{
		{field: "id", value: func() string { return a.ID }, required: true},
		{field: "tenant_id", value: func() string { return a.TenantID }, required: true},
		{field: "action_type", value: func() string { return string(a.ActionType) }, required: true, check: checkActionType},
	})
	if err != nil {
		return err
	}
	if a.ActionType == ActionRedirect && a.ActionValue == "" {
		return util.NewValidationError(
			fmt.Sprintf("policy action %s: redirect requires an action_value naming a chain spec", a.ID))
	}
	return nil
}

// Validate checks the rule's own fields.
func (r *PolicyRule) Validate() error {
	return runChecks("policy rule", r.ID, []fieldCheck{
		{field: "id", value: func() string { return r.ID }, required: true},
		{field: "tenant_id", value: func() string { return r.TenantID }, required: true},
		{field: "policy_classifier_id", value: func() string { return r.ClassifierID }, required: true},
	})
}

// Validate checks the rule set's own fields.
func (rs *PolicyRuleSet) Validate() error {
	return runChecks("policy rule set", rs.ID, []fieldCheck{
		{field: "id", value: func() string { return rs.ID }, required: true},
		{field: "tenant_id", value: func() string { return rs.TenantID }, required: true},
	})
}

// Validate checks the service policy's parameters: at most one parameter
// is supported, of type ip_single with value self_subnet.
func (n *NetworkServicePolicy) Validate() error {
	if err := runChecks("network service policy", n.ID, []fieldCheck{
		{field: "id", value: func() string { return n.ID }, required: true},
		{field: "tenant_id", value: func() string { return n.TenantID }, required: true},
	}); err != nil {
		return err
	}
	if len(n.Params) == 0 {
		return nil
	}
	if len(n.Params) > 1 {
		return util.NewValidationError(
			fmt.Sprintf("network service policy %s: only one service parameter is supported", n.ID))
	}
	p := n.Params[0]
	if p.Type != ParamTypeIPSingle || p.Value != ParamValueSelfSubnet {
		return util.NewValidationError(fmt.Sprintf(
			"network service policy %s: unsupported parameter (type=%s value=%s); only ip_single/self_subnet is supported",
			n.ID, p.Type, p.Value))
	}
	return nil
}

// Validate checks the segment's own fields.
func (es *ExternalSegment) Validate() error {
	err := runChecks("external segment", es.ID, []fieldCheck{
		{field: "id", value: func() string { return es.ID }, required: true},
		{field: "tenant_id", value: func() string { return es.TenantID }, required: true},
		{field: "cidr", value: func() string { return es.CIDR }, check: checkCIDR},
	})
	if err != nil {
		return err
	}
	v := &util.ValidationBuilder{}
	for _, r := range es.Routes {
		if _, _, perr := net.ParseCIDR(r.Destination); perr != nil {
			v.AddErrorf("external segment %s: route destination %q is not a valid CIDR", es.ID, r.Destination)
		}
		if r.Nexthop != "" && net.ParseIP(r.Nexthop) == nil {
			v.AddErrorf("external segment %s: route nexthop %q is not a valid IP", es.ID, r.Nexthop)
		}
	}
	return v.Build()
}

// Validate checks the policy's own fields.
func (ep *ExternalPolicy) Validate() error {
	return runChecks("external policy", ep.ID, []fieldCheck{
		{field: "id", value: func() string { return ep.ID }, required: true},
		{field: "tenant_id", value: func() string { return ep.TenantID }, required: true},
	})
}

// Validate checks the pool's own fields.
func (np *NatPool) Validate() error {
	return runChecks("nat pool", np.ID, []fieldCheck{
		{field: "id", value: func() string { return np.ID }, required: true},
		{field: "tenant_id", value: func() string { return np.TenantID }, required: true},
		{field: "ip_pool", value: func() string { return np.IPPool }, required: true, check: checkCIDR},
	})
}
