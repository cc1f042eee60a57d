package policy

import (
	"errors"
	"testing"

	"github.com/stackforge/group-based-policy/pkg/gbp/store"
	"github.com/stackforge/group-based-policy/pkg/util"
)

func TestKVStore_PersistsAcrossReload(t *testing.T) {
	st := store.NewMemory()
	s, err := NewKVStore(st)
	if err != nil {
		t.Fatalf("NewKVStore: %v", err)
	}

	if err := s.SaveL3Policy(&L3Policy{
		ID: "l3", Name: "default", TenantID: "t1",
		IPPool: "10.0.0.0/8", SubnetPrefixLength: 24, IPVersion: 4,
	}); err != nil {
		t.Fatalf("SaveL3Policy: %v", err)
	}
	if err := s.SavePolicyTargetGroup(&PolicyTargetGroup{
		ID: "g1", Name: "web", TenantID: "t1", L2PolicyID: "l2",
		ProvidedRuleSetIDs: []string{"rs1"},
	}); err != nil {
		t.Fatalf("SavePolicyTargetGroup: %v", err)
	}

	// A fresh store over the same backing data sees everything,
	// including the relationship queries.
	reloaded, err := NewKVStore(st)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	l3, err := reloaded.L3Policy("l3")
	if err != nil {
		t.Fatalf("L3Policy after reload: %v", err)
	}
	if l3.IPPool != "10.0.0.0/8" {
		t.Errorf("reloaded pool = %s", l3.IPPool)
	}
	providers := reloaded.GroupsProviding("rs1")
	if len(providers) != 1 || providers[0].ID() != "g1" {
		t.Errorf("providers after reload = %v", providers)
	}

	if err := reloaded.DeletePolicyTargetGroup("g1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	third, err := NewKVStore(st)
	if err != nil {
		t.Fatalf("third load: %v", err)
	}
	if _, err := third.PolicyTargetGroup("g1"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("deleted group after reload: err = %v, want ErrNotFound", err)
	}
}
