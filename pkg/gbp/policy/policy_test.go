package policy

import (
	"errors"
	"testing"

	"github.com/stackforge/group-based-policy/pkg/util"
)

func TestL3PolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		l3      L3Policy
		wantErr bool
	}{
		{
			name: "valid",
			l3: L3Policy{ID: "l3p1", TenantID: "t1", IPPool: "10.0.0.0/8",
				SubnetPrefixLength: 24, IPVersion: 4},
			wantErr: false,
		},
		{
			name: "missing pool",
			l3: L3Policy{ID: "l3p1", TenantID: "t1",
				SubnetPrefixLength: 24, IPVersion: 4},
			wantErr: true,
		},
		{
			name: "bad pool",
			l3: L3Policy{ID: "l3p1", TenantID: "t1", IPPool: "10.0.0.0",
				SubnetPrefixLength: 24, IPVersion: 4},
			wantErr: true,
		},
		{
			name: "prefix larger than pool",
			l3: L3Policy{ID: "l3p1", TenantID: "t1", IPPool: "10.0.0.0/24",
				SubnetPrefixLength: 16, IPVersion: 4},
			wantErr: true,
		},
		{
			name: "bad ip version",
			l3: L3Policy{ID: "l3p1", TenantID: "t1", IPPool: "10.0.0.0/8",
				SubnetPrefixLength: 24, IPVersion: 5},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.l3.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, util.ErrValidationFailed) {
				t.Errorf("error should unwrap to ErrValidationFailed, got %v", err)
			}
		})
	}
}

func TestPolicyActionValidate(t *testing.T) {
	redirect := PolicyAction{ID: "a1", TenantID: "t1", ActionType: ActionRedirect}
	if err := redirect.Validate(); err == nil {
		t.Error("redirect without action_value should be rejected")
	}
	redirect.ActionValue = "spec1"
	if err := redirect.Validate(); err != nil {
		t.Errorf("redirect with spec: %v", err)
	}
	allow := PolicyAction{ID: "a2", TenantID: "t1", ActionType: ActionAllow}
	if err := allow.Validate(); err != nil {
		t.Errorf("allow: %v", err)
	}
	bad := PolicyAction{ID: "a3", TenantID: "t1", ActionType: "drop"}
	if err := bad.Validate(); err == nil {
		t.Error("unknown action type should be rejected")
	}
}

func TestNetworkServicePolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  []NetworkServiceParam
		wantErr bool
	}{
		{"no params", nil, false},
		{"ip_single self_subnet", []NetworkServiceParam{
			{Type: ParamTypeIPSingle, Name: "vip_ip", Value: ParamValueSelfSubnet}}, false},
		{"two params", []NetworkServiceParam{
			{Type: ParamTypeIPSingle, Name: "a", Value: ParamValueSelfSubnet},
			{Type: ParamTypeIPSingle, Name: "b", Value: ParamValueSelfSubnet}}, true},
		{"wrong type", []NetworkServiceParam{
			{Type: ParamTypeIPPool, Name: "a", Value: ParamValueSelfSubnet}}, true},
		{"wrong value", []NetworkServiceParam{
			{Type: ParamTypeIPSingle, Name: "a", Value: ParamValueNatPool}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nsp := NetworkServicePolicy{ID: "nsp1", TenantID: "t1", Params: tt.params}
			err := nsp.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	if err := db.SaveL3Policy(&L3Policy{ID: "l3p1", TenantID: "t1", IPPool: "10.0.0.0/8"}); err != nil {
		t.Fatal(err)
	}
	got, err := db.L3Policy("l3p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.IPPool != "10.0.0.0/8" {
		t.Errorf("IPPool = %q", got.IPPool)
	}

	// caller mutations must not leak back into the store
	got.IPPool = "192.168.0.0/16"
	again, _ := db.L3Policy("l3p1")
	if again.IPPool != "10.0.0.0/8" {
		t.Error("store returned shared pointer")
	}

	_, err = db.L3Policy("missing")
	if !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemDBRelationships(t *testing.T) {
	db := NewMemDB()
	db.SaveL3Policy(&L3Policy{ID: "l3p1", TenantID: "t1", IPPool: "10.0.0.0/8"})
	db.SaveL2Policy(&L2Policy{ID: "l2p1", TenantID: "t1", L3PolicyID: "l3p1"})
	db.SaveL2Policy(&L2Policy{ID: "l2p2", TenantID: "t1", L3PolicyID: "l3p1"})
	db.SaveL2Policy(&L2Policy{ID: "l2p3", TenantID: "t1", L3PolicyID: "other"})
	db.SavePolicyTargetGroup(&PolicyTargetGroup{ID: "ptg1", TenantID: "t1", L2PolicyID: "l2p1"})
	db.SavePolicyTargetGroup(&PolicyTargetGroup{ID: "ptg2", TenantID: "t1", L2PolicyID: "l2p1"})

	l2s := db.L2PoliciesByL3Policy("l3p1")
	if len(l2s) != 2 || l2s[0].ID != "l2p1" || l2s[1].ID != "l2p2" {
		t.Errorf("L2PoliciesByL3Policy = %v", l2s)
	}
	groups := db.GroupsByL2Policy("l2p1")
	if len(groups) != 2 {
		t.Errorf("GroupsByL2Policy returned %d groups", len(groups))
	}
}

func TestMemDBResolveGroup(t *testing.T) {
	db := NewMemDB()
	db.SavePolicyTargetGroup(&PolicyTargetGroup{ID: "ptg1", TenantID: "t1"})
	db.SaveExternalPolicy(&ExternalPolicy{ID: "ep1", TenantID: "t1"})

	r, err := db.ResolveGroup("ptg1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != GroupKindTargetGroup || r.Group == nil || r.ID() != "ptg1" {
		t.Errorf("resolved %+v", r)
	}

	r, err = db.ResolveGroup("ep1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != GroupKindExternalPolicy || r.External == nil || r.TenantID() != "t1" {
		t.Errorf("resolved %+v", r)
	}

	if _, err := db.ResolveGroup("nope"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemDBProvidingConsuming(t *testing.T) {
	db := NewMemDB()
	db.SavePolicyTargetGroup(&PolicyTargetGroup{
		ID: "provider", TenantID: "t1", ProvidedRuleSetIDs: []string{"prs1"},
	})
	db.SavePolicyTargetGroup(&PolicyTargetGroup{
		ID: "consumer", TenantID: "t1", ConsumedRuleSetIDs: []string{"prs1"},
	})
	db.SaveExternalPolicy(&ExternalPolicy{
		ID: "ext", TenantID: "t1", ConsumedRuleSetIDs: []string{"prs1"},
	})

	prov := db.GroupsProviding("prs1")
	if len(prov) != 1 || prov[0].ID() != "provider" {
		t.Errorf("GroupsProviding = %v", prov)
	}
	cons := db.GroupsConsuming("prs1")
	if len(cons) != 2 {
		t.Fatalf("GroupsConsuming returned %d, want 2", len(cons))
	}
}

func TestMemDBRuleSetsWithAction(t *testing.T) {
	db := NewMemDB()
	db.SavePolicyRule(&PolicyRule{ID: "r1", TenantID: "t1", ClassifierID: "c1", ActionIDs: []string{"a1"}})
	db.SavePolicyRule(&PolicyRule{ID: "r2", TenantID: "t1", ClassifierID: "c2", ActionIDs: []string{"a2"}})
	db.SavePolicyRuleSet(&PolicyRuleSet{ID: "rs1", TenantID: "t1", RuleIDs: []string{"r1"}})
	db.SavePolicyRuleSet(&PolicyRuleSet{ID: "rs2", TenantID: "t1", RuleIDs: []string{"r1", "r2"}})
	db.SavePolicyRuleSet(&PolicyRuleSet{ID: "rs3", TenantID: "t1", RuleIDs: []string{"r2"}})

	got := db.RuleSetsWithAction("a1")
	if len(got) != 2 || got[0].ID != "rs1" || got[1].ID != "rs2" {
		t.Errorf("RuleSetsWithAction = %v", got)
	}
}
