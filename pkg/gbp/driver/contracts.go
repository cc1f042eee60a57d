package driver

import (
	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/util"
)

// syncRuleSetContract renders the rule set's contract onto the fabric.
// Sync failures are logged, not returned; validation repair converges
// the fabric later.
func (d *Driver) syncRuleSetContract(rs *policy.PolicyRuleSet) {
	if d.fabric == nil {
		return
	}
	if err := d.fabric.SyncRuleSet(rs, d.enabledClassifiers(rs)); err != nil {
		util.WithTenant(rs.TenantID).Warnf("fabric sync of rule set %s failed: %v", rs.ID, err)
	}
}

func (d *Driver) deleteRuleSetContract(rs *policy.PolicyRuleSet) {
	if d.fabric == nil {
		return
	}
	if err := d.fabric.DeleteRuleSet(rs.TenantID, rs.ID); err != nil {
		util.WithTenant(rs.TenantID).Warnf("fabric cleanup of rule set %s failed: %v", rs.ID, err)
	}
}

// enabledClassifiers collects the classifiers of the rule set's enabled
// rules, deduplicated, in rule order.
func (d *Driver) enabledClassifiers(rs *policy.PolicyRuleSet) []*policy.PolicyClassifier {
	var out []*policy.PolicyClassifier
	seen := make(map[string]bool)
	for _, ruleID := range rs.RuleIDs {
		r, err := d.policies.PolicyRule(ruleID)
		if err != nil || !r.Enabled {
			continue
		}
		c, err := d.policies.PolicyClassifier(r.ClassifierID)
		if err != nil || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

// syncGroupContracts rewrites the endpoint group of the group's network
// with the union of rule sets provided and consumed by the groups on it.
func (d *Driver) syncGroupContracts(g *policy.PolicyTargetGroup) {
	if d.fabric == nil || g.L2PolicyID == "" {
		return
	}
	l2, err := d.policies.L2Policy(g.L2PolicyID)
	if err != nil || l2.NetworkID == "" {
		return
	}
	n, err := d.resources.GetNetwork(l2.NetworkID)
	if err != nil {
		util.WithResource("group", g.ID).Warnf("fabric sync failed: %v", err)
		return
	}
	var provided, consumed []*policy.PolicyRuleSet
	seenP := make(map[string]bool)
	seenC := make(map[string]bool)
	for _, member := range d.policies.GroupsByL2Policy(l2.ID) {
		provided = d.appendRuleSets(provided, seenP, member.ProvidedRuleSetIDs)
		consumed = d.appendRuleSets(consumed, seenC, member.ConsumedRuleSetIDs)
	}
	if err := d.fabric.SyncGroupContracts(n, provided, consumed); err != nil {
		util.WithResource("group", g.ID).Warnf("fabric sync failed: %v", err)
	}
}

func (d *Driver) appendRuleSets(out []*policy.PolicyRuleSet, seen map[string]bool, ids []string) []*policy.PolicyRuleSet {
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		rs, err := d.policies.PolicyRuleSet(id)
		if err != nil {
			continue
		}
		seen[id] = true
		out = append(out, rs)
	}
	return out
}
