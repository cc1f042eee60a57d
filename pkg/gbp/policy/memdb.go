package policy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stackforge/group-based-policy/pkg/util"
)

// Reader is the read surface the lifecycle driver and the validation
// engine use to re-read policy objects by id or relationship. All slice
// results are sorted by id so callers see a deterministic order.
type Reader interface {
	PolicyTarget(id string) (*PolicyTarget, error)
	PolicyTargetGroup(id string) (*PolicyTargetGroup, error)
	L2Policy(id string) (*L2Policy, error)
	L3Policy(id string) (*L3Policy, error)
	PolicyClassifier(id string) (*PolicyClassifier, error)
	PolicyAction(id string) (*PolicyAction, error)
	PolicyRule(id string) (*PolicyRule, error)
	PolicyRuleSet(id string) (*PolicyRuleSet, error)
	NetworkServicePolicy(id string) (*NetworkServicePolicy, error)
	ExternalSegment(id string) (*ExternalSegment, error)
	ExternalPolicy(id string) (*ExternalPolicy, error)
	NatPool(id string) (*NatPool, error)

	// ResolveGroup resolves an id that may name either a policy target
	// group or an external policy, discriminating the kind explicitly.
	ResolveGroup(id string) (*ResolvedGroup, error)

	L2Policies() []*L2Policy
	L3Policies() []*L3Policy
	PolicyTargetGroups() []*PolicyTargetGroup
	PolicyRuleSets() []*PolicyRuleSet
	ExternalPolicies() []*ExternalPolicy

	L2PoliciesByL3Policy(l3pID string) []*L2Policy
	GroupsByL2Policy(l2pID string) []*PolicyTargetGroup
	GroupsByNetworkServicePolicy(nspID string) []*PolicyTargetGroup
	TargetsByGroup(groupID string) []*PolicyTarget
	RulesByClassifier(classifierID string) []*PolicyRule
	RuleSetsContainingRule(ruleID string) []*PolicyRuleSet
	RuleSetsWithAction(actionID string) []*PolicyRuleSet

	// GroupsProviding / GroupsConsuming return every group (target group
	// or external policy) in the given rule set relationship.
	GroupsProviding(ruleSetID string) []*ResolvedGroup
	GroupsConsuming(ruleSetID string) []*ResolvedGroup
}

// Store is the policy persistence surface: Reader plus upsert/delete.
// The driver writes back computed fields (implicit network ids, subnet
// attachments, router ids) through it.
type Store interface {
	Reader

	SavePolicyTarget(pt *PolicyTarget) error
	SavePolicyTargetGroup(g *PolicyTargetGroup) error
	SaveL2Policy(l2 *L2Policy) error
	SaveL3Policy(l3 *L3Policy) error
	SavePolicyClassifier(c *PolicyClassifier) error
	SavePolicyAction(a *PolicyAction) error
	SavePolicyRule(r *PolicyRule) error
	SavePolicyRuleSet(rs *PolicyRuleSet) error
	SaveNetworkServicePolicy(n *NetworkServicePolicy) error
	SaveExternalSegment(es *ExternalSegment) error
	SaveExternalPolicy(ep *ExternalPolicy) error
	SaveNatPool(np *NatPool) error

	DeletePolicyTarget(id string) error
	DeletePolicyTargetGroup(id string) error
	DeleteL2Policy(id string) error
	DeleteL3Policy(id string) error
	DeletePolicyClassifier(id string) error
	DeletePolicyAction(id string) error
	DeletePolicyRule(id string) error
	DeletePolicyRuleSet(id string) error
	DeleteNetworkServicePolicy(id string) error
	DeleteExternalSegment(id string) error
	DeleteExternalPolicy(id string) error
	DeleteNatPool(id string) error
}

// MemDB is an in-memory Store guarded by a single RWMutex. Saved objects
// are copied in and copied out, so callers can mutate their copies freely.
type MemDB struct {
	mu sync.RWMutex

	targets     map[string]*PolicyTarget
	groups      map[string]*PolicyTargetGroup
	l2policies  map[string]*L2Policy
	l3policies  map[string]*L3Policy
	classifiers map[string]*PolicyClassifier
	actions     map[string]*PolicyAction
	rules       map[string]*PolicyRule
	ruleSets    map[string]*PolicyRuleSet
	nsPolicies  map[string]*NetworkServicePolicy
	segments    map[string]*ExternalSegment
	extPolicies map[string]*ExternalPolicy
	natPools    map[string]*NatPool
}

// NewMemDB creates an empty in-memory policy store.
func NewMemDB() *MemDB {
	return &MemDB{
		targets:     make(map[string]*PolicyTarget),
		groups:      make(map[string]*PolicyTargetGroup),
		l2policies:  make(map[string]*L2Policy),
		l3policies:  make(map[string]*L3Policy),
		classifiers: make(map[string]*PolicyClassifier),
		actions:     make(map[string]*PolicyAction),
		rules:       make(map[string]*PolicyRule),
		ruleSets:    make(map[string]*PolicyRuleSet),
		nsPolicies:  make(map[string]*NetworkServicePolicy),
		segments:    make(map[string]*ExternalSegment),
		extPolicies: make(map[string]*ExternalPolicy),
		natPools:    make(map[string]*NatPool),
	}
}

// get is a generic lookup under a read lock.
func get[V any](mu *sync.RWMutex, m map[string]*V, kind, id string) (*V, error) {
	mu.RLock()
	defer mu.RUnlock()
	v, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%s '%s': %w", kind, id, util.ErrNotFound)
	}
	cp := *v
	return &cp, nil
}

func put[V any](mu *sync.RWMutex, m map[string]*V, id string, v *V) error {
	if id == "" {
		return fmt.Errorf("missing id: %w", util.ErrInvalidConfig)
	}
	mu.Lock()
	defer mu.Unlock()
	cp := *v
	m[id] = &cp
	return nil
}

func del[V any](mu *sync.RWMutex, m map[string]*V, id string) error {
	mu.Lock()
	defer mu.Unlock()
	delete(m, id)
	return nil
}

func (db *MemDB) PolicyTarget(id string) (*PolicyTarget, error) {
	return get(&db.mu, db.targets, "policy target", id)
}

func (db *MemDB) PolicyTargetGroup(id string) (*PolicyTargetGroup, error) {
	return get(&db.mu, db.groups, "policy target group", id)
}

func (db *MemDB) L2Policy(id string) (*L2Policy, error) {
	return get(&db.mu, db.l2policies, "l2 policy", id)
}

func (db *MemDB) L3Policy(id string) (*L3Policy, error) {
	return get(&db.mu, db.l3policies, "l3 policy", id)
}

func (db *MemDB) PolicyClassifier(id string) (*PolicyClassifier, error) {
	return get(&db.mu, db.classifiers, "policy classifier", id)
}

func (db *MemDB) PolicyAction(id string) (*PolicyAction, error) {
	return get(&db.mu, db.actions, "policy action", id)
}

func (db *MemDB) PolicyRule(id string) (*PolicyRule, error) {
	return get(&db.mu, db.rules, "policy rule", id)
}

func (db *MemDB) PolicyRuleSet(id string) (*PolicyRuleSet, error) {
	return get(&db.mu, db.ruleSets, "policy rule set", id)
}

func (db *MemDB) NetworkServicePolicy(id string) (*NetworkServicePolicy, error) {
	return get(&db.mu, db.nsPolicies, "network service policy", id)
}

func (db *MemDB) ExternalSegment(id string) (*ExternalSegment, error) {
	return get(&db.mu, db.segments, "external segment", id)
}

func (db *MemDB) ExternalPolicy(id string) (*ExternalPolicy, error) {
	return get(&db.mu, db.extPolicies, "external policy", id)
}

func (db *MemDB) NatPool(id string) (*NatPool, error) {
	return get(&db.mu, db.natPools, "nat pool", id)
}

func (db *MemDB) ResolveGroup(id string) (*ResolvedGroup, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if g, ok := db.groups[id]; ok {
		cp := *g
		return &ResolvedGroup{Kind: GroupKindTargetGroup, Group: &cp}, nil
	}
	if ep, ok := db.extPolicies[id]; ok {
		cp := *ep
		return &ResolvedGroup{Kind: GroupKindExternalPolicy, External: &cp}, nil
	}
	return nil, fmt.Errorf("group '%s': %w", id, util.ErrNotFound)
}

// list returns copies of every value, sorted by the given id extractor.
func list[V any](mu *sync.RWMutex, m map[string]*V, id func(*V) string) []*V {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]*V, 0, len(m))
	for _, v := range m {
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}

func (db *MemDB) L2Policies() []*L2Policy {
	return list(&db.mu, db.l2policies, func(v *L2Policy) string { return v.ID })
}

func (db *MemDB) L3Policies() []*L3Policy {
	return list(&db.mu, db.l3policies, func(v *L3Policy) string { return v.ID })
}

func (db *MemDB) PolicyTargetGroups() []*PolicyTargetGroup {
	return list(&db.mu, db.groups, func(v *PolicyTargetGroup) string { return v.ID })
}

func (db *MemDB) PolicyRuleSets() []*PolicyRuleSet {
	return list(&db.mu, db.ruleSets, func(v *PolicyRuleSet) string { return v.ID })
}

func (db *MemDB) ExternalPolicies() []*ExternalPolicy {
	return list(&db.mu, db.extPolicies, func(v *ExternalPolicy) string { return v.ID })
}

func (db *MemDB) L2PoliciesByL3Policy(l3pID string) []*L2Policy {
	all := db.L2Policies()
	var out []*L2Policy
	for _, l2 := range all {
		if l2.L3PolicyID == l3pID {
			out = append(out, l2)
		}
	}
	return out
}

func (db *MemDB) GroupsByL2Policy(l2pID string) []*PolicyTargetGroup {
	all := db.PolicyTargetGroups()
	var out []*PolicyTargetGroup
	for _, g := range all {
		if g.L2PolicyID == l2pID {
			out = append(out, g)
		}
	}
	return out
}

func (db *MemDB) GroupsByNetworkServicePolicy(nspID string) []*PolicyTargetGroup {
	all := db.PolicyTargetGroups()
	var out []*PolicyTargetGroup
	for _, g := range all {
		if g.NetworkServicePolicyID == nspID {
			out = append(out, g)
		}
	}
	return out
}

func (db *MemDB) TargetsByGroup(groupID string) []*PolicyTarget {
	all := list(&db.mu, db.targets, func(v *PolicyTarget) string { return v.ID })
	var out []*PolicyTarget
	for _, pt := range all {
		if pt.GroupID == groupID {
			out = append(out, pt)
		}
	}
	return out
}

func (db *MemDB) RulesByClassifier(classifierID string) []*PolicyRule {
	all := list(&db.mu, db.rules, func(v *PolicyRule) string { return v.ID })
	var out []*PolicyRule
	for _, r := range all {
		if r.ClassifierID == classifierID {
			out = append(out, r)
		}
	}
	return out
}

func (db *MemDB) RuleSetsContainingRule(ruleID string) []*PolicyRuleSet {
	all := list(&db.mu, db.ruleSets, func(v *PolicyRuleSet) string { return v.ID })
	var out []*PolicyRuleSet
	for _, rs := range all {
		for _, rid := range rs.RuleIDs {
			if rid == ruleID {
				out = append(out, rs)
				break
			}
		}
	}
	return out
}

func (db *MemDB) RuleSetsWithAction(actionID string) []*PolicyRuleSet {
	db.mu.RLock()
	ruleIDs := make(map[string]bool)
	for _, r := range db.rules {
		for _, aid := range r.ActionIDs {
			if aid == actionID {
				ruleIDs[r.ID] = true
			}
		}
	}
	db.mu.RUnlock()

	seen := make(map[string]bool)
	var out []*PolicyRuleSet
	for rid := range ruleIDs {
		for _, rs := range db.RuleSetsContainingRule(rid) {
			if !seen[rs.ID] {
				seen[rs.ID] = true
				out = append(out, rs)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (db *MemDB) GroupsProviding(ruleSetID string) []*ResolvedGroup {
	return db.groupsInRelation(ruleSetID, true)
}

func (db *MemDB) GroupsConsuming(ruleSetID string) []*ResolvedGroup {
	return db.groupsInRelation(ruleSetID, false)
}

func (db *MemDB) groupsInRelation(ruleSetID string, providing bool) []*ResolvedGroup {
	contains := func(ids []string) bool {
		for _, id := range ids {
			if id == ruleSetID {
				return true
			}
		}
		return false
	}
	var out []*ResolvedGroup
	for _, g := range db.PolicyTargetGroups() {
		ids := g.ConsumedRuleSetIDs
		if providing {
			ids = g.ProvidedRuleSetIDs
		}
		if contains(ids) {
			out = append(out, &ResolvedGroup{Kind: GroupKindTargetGroup, Group: g})
		}
	}
	exts := list(&db.mu, db.extPolicies, func(v *ExternalPolicy) string { return v.ID })
	for _, ep := range exts {
		ids := ep.ConsumedRuleSetIDs
		if providing {
			ids = ep.ProvidedRuleSetIDs
		}
		if contains(ids) {
			out = append(out, &ResolvedGroup{Kind: GroupKindExternalPolicy, External: ep})
		}
	}
	return out
}

func (db *MemDB) SavePolicyTarget(pt *PolicyTarget) error {
	return put(&db.mu, db.targets, pt.ID, pt)
}

func (db *MemDB) SavePolicyTargetGroup(g *PolicyTargetGroup) error {
	return put(&db.mu, db.groups, g.ID, g)
}

func (db *MemDB) SaveL2Policy(l2 *L2Policy) error {
	return put(&db.mu, db.l2policies, l2.ID, l2)
}

func (db *MemDB) SaveL3Policy(l3 *L3Policy) error {
	return put(&db.mu, db.l3policies, l3.ID, l3)
}

func (db *MemDB) SavePolicyClassifier(c *PolicyClassifier) error {
	return put(&db.mu, db.classifiers, c.ID, c)
}

func (db *MemDB) SavePolicyAction(a *PolicyAction) error {
	return put(&db.mu, db.actions, a.ID, a)
}

func (db *MemDB) SavePolicyRule(r *PolicyRule) error {
	return put(&db.mu, db.rules, r.ID, r)
}

func (db *MemDB) SavePolicyRuleSet(rs *PolicyRuleSet) error {
	return put(&db.mu, db.ruleSets, rs.ID, rs)
}

func (db *MemDB) SaveNetworkServicePolicy(n *NetworkServicePolicy) error {
	return put(&db.mu, db.nsPolicies, n.ID, n)
}

func (db *MemDB) SaveExternalSegment(es *ExternalSegment) error {
	return put(&db.mu, db.segments, es.ID, es)
}

func (db *MemDB) SaveExternalPolicy(ep *ExternalPolicy) error {
	return put(&db.mu, db.extPolicies, ep.ID, ep)
}

func (db *MemDB) SaveNatPool(np *NatPool) error {
	return put(&db.mu, db.natPools, np.ID, np)
}

func (db *MemDB) DeletePolicyTarget(id string) error      { return del(&db.mu, db.targets, id) }
func (db *MemDB) DeletePolicyTargetGroup(id string) error { return del(&db.mu, db.groups, id) }
func (db *MemDB) DeleteL2Policy(id string) error          { return del(&db.mu, db.l2policies, id) }
func (db *MemDB) DeleteL3Policy(id string) error          { return del(&db.mu, db.l3policies, id) }
func (db *MemDB) DeletePolicyClassifier(id string) error  { return del(&db.mu, db.classifiers, id) }
func (db *MemDB) DeletePolicyAction(id string) error      { return del(&db.mu, db.actions, id) }
func (db *MemDB) DeletePolicyRule(id string) error        { return del(&db.mu, db.rules, id) }
func (db *MemDB) DeletePolicyRuleSet(id string) error     { return del(&db.mu, db.ruleSets, id) }
func (db *MemDB) DeleteNetworkServicePolicy(id string) error {
	return del(&db.mu, db.nsPolicies, id)
}
func (db *MemDB) DeleteExternalSegment(id string) error { return del(&db.mu, db.segments, id) }
func (db *MemDB) DeleteExternalPolicy(id string) error  { return del(&db.mu, db.extPolicies, id) }
func (db *MemDB) DeleteNatPool(id string) error         { return del(&db.mu, db.natPools, id) }
