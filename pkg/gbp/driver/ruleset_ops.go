package driver

import (
	"errors"

	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/util"
)

func (d *Driver) CreatePolicyClassifierPrecommit(c *policy.PolicyClassifier) error {
	return c.Validate()
}

func (d *Driver) CreatePolicyClassifierPostcommit(c *policy.PolicyClassifier) error {
	return d.policies.SavePolicyClassifier(c)
}

func (d *Driver) UpdatePolicyClassifierPrecommit(cur, orig *policy.PolicyClassifier) error {
	return cur.Validate()
}

// UpdatePolicyClassifierPostcommit re-reconciles every rule set whose
// rules match on this classifier; a protocol or port change can move a
// child rule in or out of its parent's enforced scope.
func (d *Driver) UpdatePolicyClassifierPostcommit(cur, orig *policy.PolicyClassifier) error {
	if err := d.policies.SavePolicyClassifier(cur); err != nil {
		return err
	}
	var rulesetIDs []string
	for _, r := range d.policies.RulesByClassifier(cur.ID) {
		for _, rs := range d.policies.RuleSetsContainingRule(r.ID) {
			rulesetIDs = append(rulesetIDs, rs.ID)
			rulesetIDs = append(rulesetIDs, rs.ChildIDs...)
			d.syncRuleSetContract(rs)
		}
	}
	return d.reconcileRuleSets(rulesetIDs)
}

func (d *Driver) DeletePolicyClassifierPrecommit(id string) error {
	if _, err := d.policies.PolicyClassifier(id); err != nil {
		return err
	}
	if rules := d.policies.RulesByClassifier(id); len(rules) > 0 {
		used := make([]string, 0, len(rules))
		for _, r := range rules {
			used = append(used, "policy rule "+r.ID)
		}
		return util.NewInUseError("policy classifier "+id, used...)
	}
	return nil
}

func (d *Driver) DeletePolicyClassifierPostcommit(id string) error {
	return d.policies.DeletePolicyClassifier(id)
}

func (d *Driver) CreatePolicyActionPrecommit(a *policy.PolicyAction) error {
	return a.Validate()
}

func (d *Driver) CreatePolicyActionPostcommit(a *policy.PolicyAction) error {
	return d.policies.SavePolicyAction(a)
}

func (d *Driver) UpdatePolicyActionPrecommit(cur, orig *policy.PolicyAction) error {
	if err := cur.Validate(); err != nil {
		return err
	}
	if cur.ActionType != orig.ActionType {
		return util.NewImmutableError("policy action "+cur.ID, "action_type")
	}
	return nil
}

// UpdatePolicyActionPostcommit swaps the new chain spec into running
// instances when a redirect action is retargeted.
func (d *Driver) UpdatePolicyActionPostcommit(cur, orig *policy.PolicyAction) error {
	if err := d.policies.SavePolicyAction(cur); err != nil {
		return err
	}
	if cur.ActionType == policy.ActionRedirect && cur.ActionValue != orig.ActionValue {
		return d.updateChainSpecs(orig.ActionValue, cur.ActionValue)
	}
	return nil
}

func (d *Driver) DeletePolicyActionPrecommit(id string) error {
	if _, err := d.policies.PolicyAction(id); err != nil {
		return err
	}
	if sets := d.policies.RuleSetsWithAction(id); len(sets) > 0 {
		used := make([]string, 0, len(sets))
		for _, rs := range sets {
			used = append(used, "rule set "+rs.ID)
		}
		return util.NewInUseError("policy action "+id, used...)
	}
	return nil
}

func (d *Driver) DeletePolicyActionPostcommit(id string) error {
	return d.policies.DeletePolicyAction(id)
}

// CreatePolicyRulePrecommit checks the rule's classifier and actions
// exist and that at most one of the actions is a redirect.
func (d *Driver) CreatePolicyRulePrecommit(r *policy.PolicyRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, err := d.policies.PolicyClassifier(r.ClassifierID); err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return util.NewDependencyError("policy rule "+r.ID, "classifier", r.ClassifierID)
		}
		return err
	}
	redirects := 0
	for _, id := range r.ActionIDs {
		a, err := d.policies.PolicyAction(id)
		if err != nil {
			if errors.Is(err, util.ErrNotFound) {
				return util.NewDependencyError("policy rule "+r.ID, "action", id)
			}
			return err
		}
		if a.ActionType == policy.ActionRedirect {
			redirects++
		}
	}
	if redirects > 1 {
		return util.NewPreconditionError("create", "policy rule "+r.ID,
			"at most one redirect action per rule",
			"multiple redirect actions given")
	}
	return nil
}

func (d *Driver) CreatePolicyRulePostcommit(r *policy.PolicyRule) error {
	return d.policies.SavePolicyRule(r)
}

func (d *Driver) UpdatePolicyRulePrecommit(cur, orig *policy.PolicyRule) error {
	return d.CreatePolicyRulePrecommit(cur)
}

// UpdatePolicyRulePostcommit re-reconciles every rule set carrying the
// rule, including children the change may now shadow.
func (d *Driver) UpdatePolicyRulePostcommit(cur, orig *policy.PolicyRule) error {
	if err := d.policies.SavePolicyRule(cur); err != nil {
		return err
	}
	var rulesetIDs []string
	for _, rs := range d.policies.RuleSetsContainingRule(cur.ID) {
		rulesetIDs = append(rulesetIDs, rs.ID)
		rulesetIDs = append(rulesetIDs, rs.ChildIDs...)
		d.syncRuleSetContract(rs)
	}
	return d.reconcileRuleSets(rulesetIDs)
}

func (d *Driver) DeletePolicyRulePrecommit(id string) error {
	if _, err := d.policies.PolicyRule(id); err != nil {
		return err
	}
	if sets := d.policies.RuleSetsContainingRule(id); len(sets) > 0 {
		used := make([]string, 0, len(sets))
		for _, rs := range sets {
			used = append(used, "rule set "+rs.ID)
		}
		return util.NewInUseError("policy rule "+id, used...)
	}
	return nil
}

func (d *Driver) DeletePolicyRulePostcommit(id string) error {
	return d.policies.DeletePolicyRule(id)
}

// CreatePolicyRuleSetPrecommit validates rule references, keeps the
// hierarchy one level deep, and enforces the single-redirect rule.
func (d *Driver) CreatePolicyRuleSetPrecommit(rs *policy.PolicyRuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	for _, ruleID := range rs.RuleIDs {
		if _, err := d.policies.PolicyRule(ruleID); err != nil {
			if errors.Is(err, util.ErrNotFound) {
				return util.NewDependencyError("rule set "+rs.ID, "policy rule", ruleID)
			}
			return err
		}
	}
	if rs.ParentID != "" {
		parent, err := d.policies.PolicyRuleSet(rs.ParentID)
		if err != nil {
			return err
		}
		if parent.ParentID != "" {
			return util.NewPreconditionError("create", "rule set "+rs.ID,
				"rule set hierarchy is one level deep",
				"parent "+parent.ID+" already has a parent")
		}
	}
	return d.checkRedirectCount(rs)
}

func (d *Driver) checkRedirectCount(rs *policy.PolicyRuleSet) error {
	redirects := 0
	for _, ruleID := range rs.RuleIDs {
		r, err := d.policies.PolicyRule(ruleID)
		if err != nil {
			return err
		}
		if !r.Enabled {
			continue
		}
		a, err := d.redirectAction(r)
		if err != nil {
			return err
		}
		if a != nil {
			redirects++
		}
	}
	if redirects > 1 {
		return util.NewPreconditionError("apply", "rule set "+rs.ID,
			"at most one enabled redirect rule per rule set",
			"multiple enabled redirect rules given")
	}
	return nil
}

// CreatePolicyRuleSetPostcommit links the child into its parent and
// reconciles both.
func (d *Driver) CreatePolicyRuleSetPostcommit(rs *policy.PolicyRuleSet) error {
	if err := d.policies.SavePolicyRuleSet(rs); err != nil {
		return err
	}
	if rs.ParentID != "" {
		parent, err := d.policies.PolicyRuleSet(rs.ParentID)
		if err != nil {
			return err
		}
		if !containsString(parent.ChildIDs, rs.ID) {
			parent.ChildIDs = append(parent.ChildIDs, rs.ID)
			if err := d.policies.SavePolicyRuleSet(parent); err != nil {
				return err
			}
		}
	}
	d.syncRuleSetContract(rs)
	return d.reconcileRuleSets([]string{rs.ID, rs.ParentID})
}

func (d *Driver) UpdatePolicyRuleSetPrecommit(cur, orig *policy.PolicyRuleSet) error {
	if err := cur.Validate(); err != nil {
		return err
	}
	if cur.ParentID != orig.ParentID {
		return util.NewImmutableError("rule set "+cur.ID, "parent_id")
	}
	for _, ruleID := range diffStrings(cur.RuleIDs, orig.RuleIDs) {
		if _, err := d.policies.PolicyRule(ruleID); err != nil {
			return err
		}
	}
	return d.checkRedirectCount(cur)
}

// UpdatePolicyRuleSetPostcommit reconciles the rule set and, when it is
// a parent, every child whose enforced scope its rules define.
func (d *Driver) UpdatePolicyRuleSetPostcommit(cur, orig *policy.PolicyRuleSet) error {
	if err := d.policies.SavePolicyRuleSet(cur); err != nil {
		return err
	}
	d.syncRuleSetContract(cur)
	ids := append([]string{cur.ID}, cur.ChildIDs...)
	return d.reconcileRuleSets(ids)
}

// DeletePolicyRuleSetPrecommit rejects deletion while groups provide or
// consume the rule set, or children hang off it.
func (d *Driver) DeletePolicyRuleSetPrecommit(id string) error {
	rs, err := d.policies.PolicyRuleSet(id)
	if err != nil {
		return err
	}
	var used []string
	for _, g := range d.policies.GroupsProviding(id) {
		used = append(used, "provider "+g.ID())
	}
	for _, g := range d.policies.GroupsConsuming(id) {
		used = append(used, "consumer "+g.ID())
	}
	for _, child := range rs.ChildIDs {
		used = append(used, "child rule set "+child)
	}
	if len(used) > 0 {
		return util.NewInUseError("rule set "+id, used...)
	}
	return nil
}

// DeletePolicyRuleSetPostcommit prunes any chains still mapped to the
// rule set and unlinks it from its parent.
func (d *Driver) DeletePolicyRuleSetPostcommit(rs *policy.PolicyRuleSet) error {
	if err := d.pruneChainInstances(rs.ID, nil); err != nil {
		return err
	}
	if rs.ParentID != "" {
		parent, err := d.policies.PolicyRuleSet(rs.ParentID)
		if err == nil && containsString(parent.ChildIDs, rs.ID) {
			kept := make([]string, 0, len(parent.ChildIDs)-1)
			for _, id := range parent.ChildIDs {
				if id != rs.ID {
					kept = append(kept, id)
				}
			}
			parent.ChildIDs = kept
			if err := d.policies.SavePolicyRuleSet(parent); err != nil {
				return err
			}
		}
	}
	d.deleteRuleSetContract(rs)
	return d.policies.DeletePolicyRuleSet(rs.ID)
}

func (d *Driver) CreateNetworkServicePolicyPrecommit(nsp *policy.NetworkServicePolicy) error {
	return nsp.Validate()
}

func (d *Driver) CreateNetworkServicePolicyPostcommit(nsp *policy.NetworkServicePolicy) error {
	return d.policies.SaveNetworkServicePolicy(nsp)
}

// UpdateNetworkServicePolicyPrecommit pins the parameter list while any
// group carries the policy; reserved addresses cannot be renegotiated
// under a live group.
func (d *Driver) UpdateNetworkServicePolicyPrecommit(cur, orig *policy.NetworkServicePolicy) error {
	if err := cur.Validate(); err != nil {
		return err
	}
	if len(d.policies.GroupsByNetworkServicePolicy(cur.ID)) > 0 &&
		!sameServiceParams(cur.Params, orig.Params) {
		return util.NewImmutableError("network service policy "+cur.ID, "network_service_params")
	}
	return nil
}

func (d *Driver) UpdateNetworkServicePolicyPostcommit(cur, orig *policy.NetworkServicePolicy) error {
	return d.policies.SaveNetworkServicePolicy(cur)
}

func (d *Driver) DeleteNetworkServicePolicyPrecommit(id string) error {
	if _, err := d.policies.NetworkServicePolicy(id); err != nil {
		return err
	}
	if groups := d.policies.GroupsByNetworkServicePolicy(id); len(groups) > 0 {
		used := make([]string, 0, len(groups))
		for _, g := range groups {
			used = append(used, "group "+g.ID)
		}
		return util.NewInUseError("network service policy "+id, used...)
	}
	return nil
}

func (d *Driver) DeleteNetworkServicePolicyPostcommit(id string) error {
	return d.policies.DeleteNetworkServicePolicy(id)
}

func sameServiceParams(a, b []policy.NetworkServiceParam) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
