//go:build integration

// End-to-end test of the policy engine over a real Redis store: policy
// records, resource snapshots, fabric objects and name mappings all
// live in Redis, and a second "process" reloads everything from it.
package e2e_test

import (
	"testing"

	"github.com/stackforge/group-based-policy/internal/testutil"
	"github.com/stackforge/group-based-policy/pkg/gbp/driver"
	"github.com/stackforge/group-based-policy/pkg/gbp/fabric"
	"github.com/stackforge/group-based-policy/pkg/gbp/namemap"
	"github.com/stackforge/group-based-policy/pkg/gbp/owner"
	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/gbp/resource"
	"github.com/stackforge/group-based-policy/pkg/gbp/store"
	"github.com/stackforge/group-based-policy/pkg/gbp/validate"
)

func openStore(t *testing.T) *store.Redis {
	t.Helper()
	st := store.NewRedis(testutil.RedisAddr(), testutil.DB)
	if err := st.Connect(); err != nil {
		t.Fatalf("connecting to redis: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newEngine(t *testing.T, st store.Store) (*driver.Driver, *resource.Mem) {
	t.Helper()
	policies, err := policy.NewKVStore(st)
	if err != nil {
		t.Fatalf("loading policy store: %v", err)
	}
	resources, err := resource.LoadMem(st)
	if err != nil {
		t.Fatalf("loading resource snapshot: %v", err)
	}
	names := namemap.New(st, namemap.StrategyName)
	d := driver.New(driver.Config{
		Policies:  policies,
		Resources: resources,
		Chains:    driver.NewMemChains(),
		Owner:     owner.New(st),
		Names:     names,
		Store:     st,
		Fabric:    fabric.NewSynchronizer(fabric.NewStoreClient(st), names),
	})
	return d, resources
}

func TestEngineLifecycle(t *testing.T) {
	testutil.SkipIfNoRedis(t)
	testutil.FlushDB(t)
	st := openStore(t)

	d, resources := newEngine(t, st)

	g := &policy.PolicyTargetGroup{ID: "g1", Name: "web", TenantID: "t1"}
	if err := d.CreatePolicyTargetGroupPrecommit(g); err != nil {
		t.Fatalf("group precommit: %v", err)
	}
	if err := d.CreatePolicyTargetGroupPostcommit(g); err != nil {
		t.Fatalf("group postcommit: %v", err)
	}
	pt := &policy.PolicyTarget{ID: "pt1", Name: "web-0", TenantID: "t1", GroupID: g.ID}
	if err := d.CreatePolicyTargetPrecommit(pt); err != nil {
		t.Fatalf("target precommit: %v", err)
	}
	if err := d.CreatePolicyTargetPostcommit(pt); err != nil {
		t.Fatalf("target postcommit: %v", err)
	}
	if err := resources.SaveTo(st); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	// A fresh engine instance sees everything through the store.
	d2, resources2 := newEngine(t, st)
	g2, err := d2.Policies().PolicyTargetGroup("g1")
	if err != nil {
		t.Fatalf("reloaded group: %v", err)
	}
	if g2.L2PolicyID == "" || len(g2.SubnetIDs) != 1 {
		t.Fatalf("reloaded group lost implicit state: %+v", g2)
	}
	if _, err := resources2.GetSubnet(g2.SubnetIDs[0]); err != nil {
		t.Fatalf("reloaded subnet: %v", err)
	}
	pt2, err := d2.Policies().PolicyTarget("pt1")
	if err != nil {
		t.Fatalf("reloaded target: %v", err)
	}
	if pt2.PortID == "" {
		t.Fatal("reloaded target lost its port")
	}

	// The fabric rendering survives too: the bridge domain created for
	// the implicit network must be in the store-backed backend.
	client := fabric.NewStoreClient(st)
	objects, err := client.List()
	if err != nil {
		t.Fatalf("listing fabric objects: %v", err)
	}
	if len(objects) == 0 {
		t.Fatal("no fabric objects rendered")
	}
}

func TestEngineValidateConverges(t *testing.T) {
	testutil.SkipIfNoRedis(t)
	testutil.FlushDB(t)
	st := openStore(t)

	d, resources := newEngine(t, st)
	g := &policy.PolicyTargetGroup{ID: "g1", Name: "web", TenantID: "t1"}
	if err := d.CreatePolicyTargetGroupPrecommit(g); err != nil {
		t.Fatalf("group precommit: %v", err)
	}
	if err := d.CreatePolicyTargetGroupPostcommit(g); err != nil {
		t.Fatalf("group postcommit: %v", err)
	}

	names := namemap.New(st, namemap.StrategyName)
	expected, err := validate.Expected(d.Policies(), resources, names)
	if err != nil {
		t.Fatalf("rendering expected state: %v", err)
	}
	client := fabric.NewStoreClient(st)

	report, err := validate.New(client, true).Run(expected)
	if err != nil {
		t.Fatalf("repair run: %v", err)
	}
	if report.State == validate.StateFailed {
		t.Fatalf("repair run failed: %+v", report.Problems)
	}
	report, err = validate.New(client, false).Run(expected)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.State != validate.StatePassed {
		t.Fatalf("state = %s after repair, want passed (problems: %+v)",
			report.State, report.Problems)
	}
}
