package driver

import (
	"fmt"
	"strings"

	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/gbp/store"
	"github.com/stackforge/group-based-policy/pkg/util"
)

func chainMapKey(providerID, consumerID string) string {
	return providerID + ":" + consumerID
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// redirectAction returns the rule's redirect action, or nil.
func (d *Driver) redirectAction(r *policy.PolicyRule) (*policy.PolicyAction, error) {
	for _, id := range r.ActionIDs {
		a, err := d.policies.PolicyAction(id)
		if err != nil {
			return nil, err
		}
		if a.ActionType == policy.ActionRedirect {
			return a, nil
		}
	}
	return nil, nil
}

// checkRuleSetRedirects verifies the referenced rule sets exist and
// carry at most one enabled redirect rule each; two redirects on the
// same contract would fight over the provider/consumer pair.
func (d *Driver) checkRuleSetRedirects(ids []string) error {
	for _, id := range ids {
		rs, err := d.policies.PolicyRuleSet(id)
		if err != nil {
			return err
		}
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
			return util.NewPreconditionError("apply", "rule set "+id,
				"at most one enabled redirect rule per rule set",
				fmt.Sprintf("found %d", redirects))
		}
	}
	return nil
}

// reconcileRuleSets reconciles chains for each distinct rule set id.
func (d *Driver) reconcileRuleSets(ids []string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if err := d.reconcileRuleSet(id); err != nil {
			return err
		}
	}
	return nil
}

// enforcedRules returns the rule set's enabled rules, restricted to the
// parent's classifiers when the rule set has a parent.
func (d *Driver) enforcedRules(rs *policy.PolicyRuleSet) ([]*policy.PolicyRule, error) {
	var parentClassifiers map[string]bool
	if rs.ParentID != "" {
		parent, err := d.policies.PolicyRuleSet(rs.ParentID)
		if err != nil {
			return nil, err
		}
		parentClassifiers = make(map[string]bool)
		for _, ruleID := range parent.RuleIDs {
			r, err := d.policies.PolicyRule(ruleID)
			if err != nil {
				return nil, err
			}
			parentClassifiers[r.ClassifierID] = true
		}
	}

	var rules []*policy.PolicyRule
	for _, ruleID := range rs.RuleIDs {
		r, err := d.policies.PolicyRule(ruleID)
		if err != nil {
			return nil, err
		}
		if !r.Enabled {
			continue
		}
		if parentClassifiers != nil && !parentClassifiers[r.ClassifierID] {
			continue
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// parentRedirect returns the spec and classifier contributed by the
// parent rule set's first enabled redirect rule, if any.
func (d *Driver) parentRedirect(rs *policy.PolicyRuleSet) (specID, classifierID string, err error) {
	if rs.ParentID == "" {
		return "", "", nil
	}
	parent, err := d.policies.PolicyRuleSet(rs.ParentID)
	if err != nil {
		return "", "", err
	}
	for _, ruleID := range parent.RuleIDs {
		r, err := d.policies.PolicyRule(ruleID)
		if err != nil {
			return "", "", err
		}
		if !r.Enabled {
			continue
		}
		a, err := d.redirectAction(r)
		if err != nil {
			return "", "", err
		}
		if a != nil {
			return a.ActionValue, r.ClassifierID, nil
		}
	}
	return "", "", nil
}

// reconcileRuleSet rebuilds the service chain instances a rule set's
// redirect rules demand: one instance per provider/consumer pair, with
// the parent's spec prepended when the rule set is a child. Instances
// for pairs no longer demanded are torn down.
func (d *Driver) reconcileRuleSet(rulesetID string) error {
	rs, err := d.policies.PolicyRuleSet(rulesetID)
	if err != nil {
		return err
	}
	rules, err := d.enforcedRules(rs)
	if err != nil {
		return err
	}
	parentSpec, parentClassifier, err := d.parentRedirect(rs)
	if err != nil {
		return err
	}

	var redirect *policy.PolicyRule
	var redirectSpec string
	for _, r := range rules {
		a, err := d.redirectAction(r)
		if err != nil {
			return err
		}
		if a != nil {
			redirect, redirectSpec = r, a.ActionValue
			break
		}
	}

	desired := make(map[string]bool)
	if redirect != nil {
		providers := d.policies.GroupsProviding(rulesetID)
		consumers := d.policies.GroupsConsuming(rulesetID)
		for _, prov := range providers {
			if prov.Kind != policy.GroupKindTargetGroup || prov.Group.ServiceManaged {
				continue
			}
			params, err := d.servicePolicyConfigParams(prov.Group)
			if err != nil {
				return err
			}
			for _, cons := range consumers {
				if cons.Kind == policy.GroupKindTargetGroup && cons.Group.ServiceManaged {
					continue
				}
				key := chainMapKey(prov.ID(), cons.ID())
				desired[key] = true

				specIDs := []string{redirectSpec}
				classifierID := redirect.ClassifierID
				if parentSpec != "" {
					specIDs = append([]string{parentSpec}, specIDs...)
					classifierID = parentClassifier
				}
				if err := d.replaceChainInstance(key, rulesetID, prov, cons, specIDs, classifierID, params); err != nil {
					return err
				}
			}
		}
	}
	return d.pruneChainInstances(rulesetID, desired)
}

// replaceChainInstance tears down the pair's existing instance and
// creates a fresh one; chains are rebuilt, never edited in place.
func (d *Driver) replaceChainInstance(key, rulesetID string, prov, cons *policy.ResolvedGroup,
	specIDs []string, classifierID string, params map[string]string) error {

	entry, err := d.store.Get(store.TableChainMap, key)
	if err != nil {
		return err
	}
	if inst := entry["instance_id"]; inst != "" {
		if err := d.chains.DeleteInstance(inst); err != nil {
			util.WithResource("rule_set", rulesetID).Warnf("deleting chain instance %s: %v", inst, err)
		}
	}
	inst, err := d.chains.CreateInstance(&ChainInstance{
		Name:            "gbp_" + shortID(prov.ID()) + "_" + shortID(cons.ID()),
		TenantID:        prov.TenantID(),
		SpecIDs:         specIDs,
		ProviderGroupID: prov.ID(),
		ConsumerGroupID: cons.ID(),
		ClassifierID:    classifierID,
		ConfigParams:    params,
	})
	if err != nil {
		return fmt.Errorf("creating chain instance for pair %s: %w", key, err)
	}
	return d.store.Set(store.TableChainMap, key, map[string]string{
		"instance_id": inst.ID,
		"ruleset_id":  rulesetID,
	})
}

// pruneChainInstances removes instances recorded for the rule set whose
// provider/consumer pair is no longer demanded.
func (d *Driver) pruneChainInstances(rulesetID string, desired map[string]bool) error {
	keys, err := d.store.Keys(store.TableChainMap)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if desired[key] {
			continue
		}
		entry, err := d.store.Get(store.TableChainMap, key)
		if err != nil {
			return err
		}
		if entry["ruleset_id"] != rulesetID {
			continue
		}
		if inst := entry["instance_id"]; inst != "" {
			if err := d.chains.DeleteInstance(inst); err != nil {
				util.WithResource("rule_set", rulesetID).Warnf("deleting chain instance %s: %v", inst, err)
			}
		}
		if err := d.store.Delete(store.TableChainMap, key); err != nil {
			return err
		}
	}
	return nil
}

// deleteChainsForGroup removes every chain instance the group takes
// part in, as provider or consumer.
func (d *Driver) deleteChainsForGroup(g *policy.PolicyTargetGroup) error {
	keys, err := d.store.Keys(store.TableChainMap)
	if err != nil {
		return err
	}
	for _, key := range keys {
		parts := strings.SplitN(key, ":", 2)
		if len(parts) != 2 || (parts[0] != g.ID && parts[1] != g.ID) {
			continue
		}
		entry, err := d.store.Get(store.TableChainMap, key)
		if err != nil {
			return err
		}
		if inst := entry["instance_id"]; inst != "" {
			if err := d.chains.DeleteInstance(inst); err != nil {
				util.WithResource("group", g.ID).Warnf("deleting chain instance %s: %v", inst, err)
			}
		}
		if err := d.store.Delete(store.TableChainMap, key); err != nil {
			return err
		}
	}
	return nil
}

// updateChainSpecs swaps a spec id inside every running instance that
// references it; used when a redirect action's target spec changes.
func (d *Driver) updateChainSpecs(oldSpec, newSpec string) error {
	instances, err := d.chains.ListInstances()
	if err != nil {
		return err
	}
	for _, inst := range instances {
		if !containsString(inst.SpecIDs, oldSpec) {
			continue
		}
		specs := make([]string, len(inst.SpecIDs))
		for i, s := range inst.SpecIDs {
			if s == oldSpec {
				s = newSpec
			}
			specs[i] = s
		}
		if err := d.chains.UpdateInstanceSpecs(inst.ID, specs); err != nil {
			return err
		}
	}
	return nil
}
