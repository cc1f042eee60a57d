package policy

import (
	"fmt"
	"strings"

	"github.com/stackforge/group-based-policy/pkg/gbp/store"
)

// Object kinds as persisted in the policy table.
const (
	kindPolicyTarget         = "policy_target"
	kindPolicyTargetGroup    = "policy_target_group"
	kindL2Policy             = "l2_policy"
	kindL3Policy             = "l3_policy"
	kindPolicyClassifier     = "policy_classifier"
	kindPolicyAction         = "policy_action"
	kindPolicyRule           = "policy_rule"
	kindPolicyRuleSet        = "policy_rule_set"
	kindNetworkServicePolicy = "network_service_policy"
	kindExternalSegment      = "external_segment"
	kindExternalPolicy       = "external_policy"
	kindNatPool              = "nat_pool"
)

// KVStore is a Store persisted in the orchestration store. Reads are
// served from an in-memory MemDB twin loaded at construction; writes go
// through to the backing store first, then to the twin. One process
// owns the policy tables at a time.
type KVStore struct {
	*MemDB
	st store.Store
}

// NewKVStore loads the persisted policy objects and returns a
// write-through store over them.
func NewKVStore(st store.Store) (*KVStore, error) {
	s := &KVStore{MemDB: NewMemDB(), st: st}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *KVStore) load() error {
	keys, err := s.st.Keys(store.TablePolicy)
	if err != nil {
		return fmt.Errorf("listing policy objects: %w", err)
	}
	for _, key := range keys {
		kind, _, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		if err := s.loadOne(kind, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *KVStore) loadOne(kind, key string) error {
	decode := func(dest interface{}, save func() error) error {
		found, err := store.GetJSON(s.st, store.TablePolicy, key, dest)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		return save()
	}
	switch kind {
	case kindPolicyTarget:
		var v PolicyTarget
		return decode(&v, func() error { return s.MemDB.SavePolicyTarget(&v) })
	case kindPolicyTargetGroup:
		var v PolicyTargetGroup
		return decode(&v, func() error { return s.MemDB.SavePolicyTargetGroup(&v) })
	case kindL2Policy:
		var v L2Policy
		return decode(&v, func() error { return s.MemDB.SaveL2Policy(&v) })
	case kindL3Policy:
		var v L3Policy
		return decode(&v, func() error { return s.MemDB.SaveL3Policy(&v) })
	case kindPolicyClassifier:
		var v PolicyClassifier
		return decode(&v, func() error { return s.MemDB.SavePolicyClassifier(&v) })
	case kindPolicyAction:
		var v PolicyAction
		return decode(&v, func() error { return s.MemDB.SavePolicyAction(&v) })
	case kindPolicyRule:
		var v PolicyRule
		return decode(&v, func() error { return s.MemDB.SavePolicyRule(&v) })
	case kindPolicyRuleSet:
		var v PolicyRuleSet
		return decode(&v, func() error { return s.MemDB.SavePolicyRuleSet(&v) })
	case kindNetworkServicePolicy:
		var v NetworkServicePolicy
		return decode(&v, func() error { return s.MemDB.SaveNetworkServicePolicy(&v) })
	case kindExternalSegment:
		var v ExternalSegment
		return decode(&v, func() error { return s.MemDB.SaveExternalSegment(&v) })
	case kindExternalPolicy:
		var v ExternalPolicy
		return decode(&v, func() error { return s.MemDB.SaveExternalPolicy(&v) })
	case kindNatPool:
		var v NatPool
		return decode(&v, func() error { return s.MemDB.SaveNatPool(&v) })
	}
	return nil
}

func policyKey(kind, id string) string { return kind + ":" + id }

func (s *KVStore) save(kind, id string, v interface{}, commit func() error) error {
	if err := store.PutJSON(s.st, store.TablePolicy, policyKey(kind, id), v); err != nil {
		return err
	}
	return commit()
}

func (s *KVStore) delete(kind, id string, commit func() error) error {
	if err := s.st.Delete(store.TablePolicy, policyKey(kind, id)); err != nil {
		return err
	}
	return commit()
}

func (s *KVStore) SavePolicyTarget(pt *PolicyTarget) error {
	return s.save(kindPolicyTarget, pt.ID, pt, func() error { return s.MemDB.SavePolicyTarget(pt) })
}

func (s *KVStore) SavePolicyTargetGroup(g *PolicyTargetGroup) error {
	return s.save(kindPolicyTargetGroup, g.ID, g, func() error { return s.MemDB.SavePolicyTargetGroup(g) })
}

func (s *KVStore) SaveL2Policy(l2 *L2Policy) error {
	return s.save(kindL2Policy, l2.ID, l2, func() error { return s.MemDB.SaveL2Policy(l2) })
}

func (s *KVStore) SaveL3Policy(l3 *L3Policy) error {
	return s.save(kindL3Policy, l3.ID, l3, func() error { return s.MemDB.SaveL3Policy(l3) })
}

func (s *KVStore) SavePolicyClassifier(c *PolicyClassifier) error {
	return s.save(kindPolicyClassifier, c.ID, c, func() error { return s.MemDB.SavePolicyClassifier(c) })
}

func (s *KVStore) SavePolicyAction(a *PolicyAction) error {
	return s.save(kindPolicyAction, a.ID, a, func() error { return s.MemDB.SavePolicyAction(a) })
}

func (s *KVStore) SavePolicyRule(r *PolicyRule) error {
	return s.save(kindPolicyRule, r.ID, r, func() error { return s.MemDB.SavePolicyRule(r) })
}

func (s *KVStore) SavePolicyRuleSet(rs *PolicyRuleSet) error {
	return s.save(kindPolicyRuleSet, rs.ID, rs, func() error { return s.MemDB.SavePolicyRuleSet(rs) })
}

func (s *KVStore) SaveNetworkServicePolicy(n *NetworkServicePolicy) error {
	return s.save(kindNetworkServicePolicy, n.ID, n, func() error { return s.MemDB.SaveNetworkServicePolicy(n) })
}

func (s *KVStore) SaveExternalSegment(es *ExternalSegment) error {
	return s.save(kindExternalSegment, es.ID, es, func() error { return s.MemDB.SaveExternalSegment(es) })
}

func (s *KVStore) SaveExternalPolicy(ep *ExternalPolicy) error {
	return s.save(kindExternalPolicy, ep.ID, ep, func() error { return s.MemDB.SaveExternalPolicy(ep) })
}

func (s *KVStore) SaveNatPool(np *NatPool) error {
	return s.save(kindNatPool, np.ID, np, func() error { return s.MemDB.SaveNatPool(np) })
}

func (s *KVStore) DeletePolicyTarget(id string) error {
	return s.delete(kindPolicyTarget, id, func() error { return s.MemDB.DeletePolicyTarget(id) })
}

func (s *KVStore) DeletePolicyTargetGroup(id string) error {
	return s.delete(kindPolicyTargetGroup, id, func() error { return s.MemDB.DeletePolicyTargetGroup(id) })
}

func (s *KVStore) DeleteL2Policy(id string) error {
	return s.delete(kindL2Policy, id, func() error { return s.MemDB.DeleteL2Policy(id) })
}

func (s *KVStore) DeleteL3Policy(id string) error {
	return s.delete(kindL3Policy, id, func() error { return s.MemDB.DeleteL3Policy(id) })
}

func (s *KVStore) DeletePolicyClassifier(id string) error {
	return s.delete(kindPolicyClassifier, id, func() error { return s.MemDB.DeletePolicyClassifier(id) })
}

func (s *KVStore) DeletePolicyAction(id string) error {
	return s.delete(kindPolicyAction, id, func() error { return s.MemDB.DeletePolicyAction(id) })
}

func (s *KVStore) DeletePolicyRule(id string) error {
	return s.delete(kindPolicyRule, id, func() error { return s.MemDB.DeletePolicyRule(id) })
}

func (s *KVStore) DeletePolicyRuleSet(id string) error {
	return s.delete(kindPolicyRuleSet, id, func() error { return s.MemDB.DeletePolicyRuleSet(id) })
}

func (s *KVStore) DeleteNetworkServicePolicy(id string) error {
	return s.delete(kindNetworkServicePolicy, id, func() error { return s.MemDB.DeleteNetworkServicePolicy(id) })
}

func (s *KVStore) DeleteExternalSegment(id string) error {
	return s.delete(kindExternalSegment, id, func() error { return s.MemDB.DeleteExternalSegment(id) })
}

func (s *KVStore) DeleteExternalPolicy(id string) error {
	return s.delete(kindExternalPolicy, id, func() error { return s.MemDB.DeleteExternalPolicy(id) })
}

func (s *KVStore) DeleteNatPool(id string) error {
	return s.delete(kindNatPool, id, func() error { return s.MemDB.DeleteNatPool(id) })
}
