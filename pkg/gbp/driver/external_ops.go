package driver

import (
	"fmt"
	"net"

	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/util"
)

// CreateExternalSegmentPrecommit requires an explicit subnet and derives
// the segment's CIDR and address family from it.
func (d *Driver) CreateExternalSegmentPrecommit(es *policy.ExternalSegment) error {
	if es.SubnetID == "" {
		return util.NewPreconditionError("create", "external segment "+es.ID,
			"external segment needs an explicit subnet", "no subnet_id given")
	}
	subnet, err := d.resources.GetSubnet(es.SubnetID)
	if err != nil {
		return err
	}
	es.CIDR = subnet.CIDR
	es.IPVersion = subnet.IPVersion
	return es.Validate()
}

func (d *Driver) CreateExternalSegmentPostcommit(es *policy.ExternalSegment) error {
	return d.policies.SaveExternalSegment(es)
}

func (d *Driver) UpdateExternalSegmentPrecommit(cur, orig *policy.ExternalSegment) error {
	if cur.SubnetID != orig.SubnetID {
		return util.NewImmutableError("external segment "+cur.ID, "subnet_id")
	}
	return cur.Validate()
}

// UpdateExternalSegmentPostcommit pushes a route change out to every
// routing domain attached to the segment.
func (d *Driver) UpdateExternalSegmentPostcommit(cur, orig *policy.ExternalSegment) error {
	if err := d.policies.SaveExternalSegment(cur); err != nil {
		return err
	}
	if sameExternalRoutes(cur.Routes, orig.Routes) {
		return nil
	}
	for _, l3 := range d.policies.L3Policies() {
		if _, ok := l3.ExternalSegments[cur.ID]; !ok {
			continue
		}
		if err := d.recomputeL3PolicyRoutes(l3); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) DeleteExternalSegmentPrecommit(id string) error {
	if _, err := d.policies.ExternalSegment(id); err != nil {
		return err
	}
	var used []string
	for _, l3 := range d.policies.L3Policies() {
		if _, ok := l3.ExternalSegments[id]; ok {
			used = append(used, "l3 policy "+l3.ID)
		}
	}
	for _, ep := range d.policies.ExternalPolicies() {
		if containsString(ep.SegmentIDs, id) {
			used = append(used, "external policy "+ep.ID)
		}
	}
	if len(used) > 0 {
		return util.NewInUseError("external segment "+id, used...)
	}
	return nil
}

func (d *Driver) DeleteExternalSegmentPostcommit(id string) error {
	return d.policies.DeleteExternalSegment(id)
}

// CreateExternalPolicyPrecommit enforces the cardinality rules: at most
// one segment per policy and one policy per tenant.
func (d *Driver) CreateExternalPolicyPrecommit(ep *policy.ExternalPolicy) error {
	if err := ep.Validate(); err != nil {
		return err
	}
	if len(ep.SegmentIDs) > 1 {
		return util.NewPreconditionError("create", "external policy "+ep.ID,
			"at most one external segment per external policy",
			fmt.Sprintf("%d segments given", len(ep.SegmentIDs)))
	}
	for _, segID := range ep.SegmentIDs {
		if _, err := d.policies.ExternalSegment(segID); err != nil {
			return err
		}
	}
	for _, other := range d.policies.ExternalPolicies() {
		if other.ID != ep.ID && other.TenantID == ep.TenantID {
			return util.NewPreconditionError("create", "external policy "+ep.ID,
				"one external policy per tenant",
				"tenant already has external policy "+other.ID)
		}
	}
	return d.checkRuleSetRedirects(append(ep.ProvidedRuleSetIDs, ep.ConsumedRuleSetIDs...))
}

func (d *Driver) CreateExternalPolicyPostcommit(ep *policy.ExternalPolicy) error {
	if err := d.policies.SaveExternalPolicy(ep); err != nil {
		return err
	}
	return d.reconcileRuleSets(append(ep.ProvidedRuleSetIDs, ep.ConsumedRuleSetIDs...))
}

func (d *Driver) UpdateExternalPolicyPrecommit(cur, orig *policy.ExternalPolicy) error {
	if err := cur.Validate(); err != nil {
		return err
	}
	if !sameStringSet(cur.SegmentIDs, orig.SegmentIDs) {
		return util.NewImmutableError("external policy "+cur.ID, "external_segments")
	}
	return d.checkRuleSetRedirects(append(cur.ProvidedRuleSetIDs, cur.ConsumedRuleSetIDs...))
}

func (d *Driver) UpdateExternalPolicyPostcommit(cur, orig *policy.ExternalPolicy) error {
	if err := d.policies.SaveExternalPolicy(cur); err != nil {
		return err
	}
	changed := diffStrings(cur.ProvidedRuleSetIDs, orig.ProvidedRuleSetIDs)
	changed = append(changed, diffStrings(orig.ProvidedRuleSetIDs, cur.ProvidedRuleSetIDs)...)
	changed = append(changed, diffStrings(cur.ConsumedRuleSetIDs, orig.ConsumedRuleSetIDs)...)
	changed = append(changed, diffStrings(orig.ConsumedRuleSetIDs, cur.ConsumedRuleSetIDs)...)
	return d.reconcileRuleSets(changed)
}

func (d *Driver) DeleteExternalPolicyPrecommit(id string) error {
	_, err := d.policies.ExternalPolicy(id)
	return err
}

// DeleteExternalPolicyPostcommit drops the policy and rebuilds chains
// for the rule sets it consumed.
func (d *Driver) DeleteExternalPolicyPostcommit(ep *policy.ExternalPolicy) error {
	if err := d.policies.DeleteExternalPolicy(ep.ID); err != nil {
		return err
	}
	return d.reconcileRuleSets(append(ep.ProvidedRuleSetIDs, ep.ConsumedRuleSetIDs...))
}

// CreateNatPoolPrecommit checks the pool sits inside its segment's
// address block.
func (d *Driver) CreateNatPoolPrecommit(np *policy.NatPool) error {
	if err := np.Validate(); err != nil {
		return err
	}
	if np.ExternalSegmentID == "" {
		return nil
	}
	es, err := d.policies.ExternalSegment(np.ExternalSegmentID)
	if err != nil {
		return err
	}
	inside, err := cidrContains(es.CIDR, np.IPPool)
	if err != nil {
		return err
	}
	if !inside {
		return util.NewPreconditionError("create", "nat pool "+np.ID,
			"nat pool must fall within its external segment",
			fmt.Sprintf("%s is not inside %s", np.IPPool, es.CIDR))
	}
	return nil
}

func (d *Driver) CreateNatPoolPostcommit(np *policy.NatPool) error {
	return d.policies.SaveNatPool(np)
}

func (d *Driver) DeleteNatPoolPrecommit(id string) error {
	_, err := d.policies.NatPool(id)
	return err
}

func (d *Driver) DeleteNatPoolPostcommit(id string) error {
	return d.policies.DeleteNatPool(id)
}

// cidrContains reports whether inner lies entirely within outer.
func cidrContains(outer, inner string) (bool, error) {
	_, o, err := net.ParseCIDR(outer)
	if err != nil {
		return false, fmt.Errorf("parsing %q: %w", outer, err)
	}
	_, i, err := net.ParseCIDR(inner)
	if err != nil {
		return false, fmt.Errorf("parsing %q: %w", inner, err)
	}
	outerLen, _ := o.Mask.Size()
	innerLen, _ := i.Mask.Size()
	return o.Contains(i.IP) && innerLen >= outerLen, nil
}

func sameExternalRoutes(a, b []policy.ExternalRoute) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[policy.ExternalRoute]int, len(a))
	for _, r := range a {
		seen[r]++
	}
	for _, r := range b {
		seen[r]--
		if seen[r] < 0 {
			return false
		}
	}
	return true
}
