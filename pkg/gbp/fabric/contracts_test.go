package fabric

import (
	"errors"
	"testing"

	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/gbp/resource"
	"github.com/stackforge/group-based-policy/pkg/util"
)

func TestSynchronizer_SyncRuleSet(t *testing.T) {
	s, client := newTestSynchronizer()
	rs := &policy.PolicyRuleSet{ID: "rs1", Name: "web-traffic", TenantID: "t1"}
	classifiers := []*policy.PolicyClassifier{
		{ID: "c1", Name: "http", TenantID: "t1", Protocol: "tcp", PortRange: "80"},
		{ID: "c2", Name: "https", TenantID: "t1", Protocol: "tcp", PortRange: "443"},
	}

	if err := s.SyncRuleSet(rs, classifiers); err != nil {
		t.Fatalf("SyncRuleSet: %v", err)
	}

	o, err := client.Get("contract|t1|web-traffic")
	if err != nil {
		t.Fatalf("contract not rendered: %v", err)
	}
	c := o.(*Contract)
	if len(c.FilterNames) != 2 || c.FilterNames[0] != "http" || c.FilterNames[1] != "https" {
		t.Errorf("filter names = %v", c.FilterNames)
	}

	o, err = client.Get("filter|t1|http")
	if err != nil {
		t.Fatalf("filter not rendered: %v", err)
	}
	f := o.(*Filter)
	if f.Protocol != "tcp" || f.PortMin != 80 || f.PortMax != 80 {
		t.Errorf("filter = %+v", f)
	}

	// Resync with the same inputs must not fail or duplicate.
	if err := s.SyncRuleSet(rs, classifiers); err != nil {
		t.Fatalf("resync: %v", err)
	}
	objects, _ := client.List()
	if len(objects) != 4 {
		t.Errorf("got %d objects after resync, want 4 (tenant, contract, 2 filters)", len(objects))
	}
}

func TestSynchronizer_DeleteRuleSetKeepsFilters(t *testing.T) {
	s, client := newTestSynchronizer()
	rs := &policy.PolicyRuleSet{ID: "rs1", Name: "web-traffic", TenantID: "t1"}
	classifiers := []*policy.PolicyClassifier{
		{ID: "c1", Name: "http", TenantID: "t1", Protocol: "tcp", PortRange: "80"},
	}
	if err := s.SyncRuleSet(rs, classifiers); err != nil {
		t.Fatalf("SyncRuleSet: %v", err)
	}

	if err := s.DeleteRuleSet("t1", "rs1"); err != nil {
		t.Fatalf("DeleteRuleSet: %v", err)
	}
	if _, err := client.Get("contract|t1|web-traffic"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("contract still present: err = %v", err)
	}
	if _, err := client.Get("filter|t1|http"); err != nil {
		t.Errorf("filter should survive contract deletion: %v", err)
	}
}

func TestSynchronizer_SyncGroupContracts(t *testing.T) {
	s, client := newTestSynchronizer()
	n := &resource.Network{ID: "net-1", Name: "web-net", TenantID: "t1"}
	if err := s.SyncNetwork(n); err != nil {
		t.Fatalf("SyncNetwork: %v", err)
	}

	provided := []*policy.PolicyRuleSet{{ID: "rs1", Name: "serve-web", TenantID: "t1"}}
	consumed := []*policy.PolicyRuleSet{{ID: "rs2", Name: "use-db", TenantID: "t1"}}
	if err := s.SyncGroupContracts(n, provided, consumed); err != nil {
		t.Fatalf("SyncGroupContracts: %v", err)
	}

	o, err := client.Get("endpoint_group|t1|web-net")
	if err != nil {
		t.Fatalf("endpoint group: %v", err)
	}
	epg := o.(*EndpointGroup)
	if len(epg.ProvidedContracts) != 1 || epg.ProvidedContracts[0] != "serve-web" {
		t.Errorf("provided contracts = %v", epg.ProvidedContracts)
	}
	if len(epg.ConsumedContracts) != 1 || epg.ConsumedContracts[0] != "use-db" {
		t.Errorf("consumed contracts = %v", epg.ConsumedContracts)
	}
	if epg.BridgeDomainName != "web-net" {
		t.Errorf("bridge domain = %q, want preserved", epg.BridgeDomainName)
	}
}

func TestParsePortRange(t *testing.T) {
	tests := []struct {
		in       string
		min, max int
	}{
		{"", 0, 0},
		{"80", 80, 80},
		{"80:443", 80, 443},
		{"junk", 0, 0},
		{"80:junk", 0, 0},
	}
	for _, tt := range tests {
		min, max := parsePortRange(tt.in)
		if min != tt.min || max != tt.max {
			t.Errorf("parsePortRange(%q) = %d,%d, want %d,%d", tt.in, min, max, tt.min, tt.max)
		}
	}
}
