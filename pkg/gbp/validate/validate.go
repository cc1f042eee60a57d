// Package validate audits the fabric against the state the policy model
// implies. The expected object set is built by replaying the fabric
// rendering against a recording client, then diffed against what the
// backend actually holds; in repair mode the differences are corrected.
package validate

import (
	"errors"
	"fmt"

	"github.com/stackforge/group-based-policy/pkg/gbp/fabric"
	"github.com/stackforge/group-based-policy/pkg/gbp/namemap"
	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/gbp/resource"
	"github.com/stackforge/group-based-policy/pkg/util"
)

// State is the outcome of a validation run. Failed is terminal: once
// any object fails, the run reports failure no matter what else was
// repaired.
type State string

const (
	StatePassed   State = "passed"
	StateRepaired State = "repaired"
	StateFailed   State = "failed"
)

// MergeState folds one object's outcome into the run's outcome.
func MergeState(a, b State) State {
	if a == StateFailed || b == StateFailed {
		return StateFailed
	}
	if a == StateRepaired || b == StateRepaired {
		return StateRepaired
	}
	return StatePassed
}

// Problem is one discrepancy between expected and actual fabric state.
type Problem struct {
	DN     string
	Reason string
}

func (p Problem) String() string { return p.DN + ": " + p.Reason }

// Report is the outcome of one validation run.
type Report struct {
	State    State
	Problems []Problem
	// Repaired lists the DNs corrected during the run, in order.
	Repaired []string
}

// Validator diffs expected fabric state against a backend.
type Validator struct {
	client fabric.Client
	repair bool
}

// New creates a Validator over the given backend. With repair set,
// discrepancies are corrected; repairs are only attempted when nothing
// has already failed.
func New(client fabric.Client, repair bool) *Validator {
	return &Validator{client: client, repair: repair}
}

// Run diffs the expected objects against the backend and, in repair
// mode, applies the corrections. Objects the backend reports in error
// state fail the run outright; nothing is repaired on a failed run.
func (v *Validator) Run(expected []fabric.Object) (*Report, error) {
	report := &Report{State: StatePassed}

	expectedByDN := make(map[string]fabric.Object, len(expected))
	for _, o := range expected {
		expectedByDN[fabric.DN(o)] = o
	}

	actual, err := v.client.List()
	if err != nil {
		return nil, fmt.Errorf("listing fabric objects: %w", err)
	}

	type repairOp struct {
		dn    string
		apply func() error
	}
	var repairs []repairOp

	for _, cur := range actual {
		dn := fabric.DN(cur)
		want, ok := expectedByDN[dn]
		if !ok {
			if cur.IsMonitored() {
				continue
			}
			report.Problems = append(report.Problems, Problem{DN: dn, Reason: "unexpected object"})
			remove := dn
			repairs = append(repairs, repairOp{dn: dn, apply: func() error {
				return v.client.Delete(remove)
			}})
			continue
		}
		if status, serr := v.client.Status(dn); serr == nil && status == fabric.StatusError {
			report.Problems = append(report.Problems, Problem{DN: dn, Reason: "backend reports error state"})
			report.State = StateFailed
			continue
		}
		if !fabric.AttrsEqual(cur.Attrs(), want.Attrs()) {
			report.Problems = append(report.Problems, Problem{DN: dn, Reason: "attribute mismatch"})
			desired := want
			repairs = append(repairs, repairOp{dn: dn, apply: func() error {
				return v.client.Update(desired)
			}})
		}
	}

	for dn, want := range expectedByDN {
		if _, err := v.client.Get(dn); errors.Is(err, util.ErrNotFound) {
			report.Problems = append(report.Problems, Problem{DN: dn, Reason: "missing object"})
			desired := want
			repairs = append(repairs, repairOp{dn: dn, apply: func() error {
				return v.client.Create(desired)
			}})
		} else if err != nil {
			return nil, fmt.Errorf("reading %s: %w", dn, err)
		}
	}

	if report.State == StateFailed {
		util.WithOperation("validate").Warnf("validation failed with %d problems, skipping repair", len(report.Problems))
		return report, nil
	}
	if len(report.Problems) == 0 {
		return report, nil
	}
	if !v.repair {
		report.State = StateFailed
		return report, nil
	}

	for _, op := range repairs {
		if err := op.apply(); err != nil {
			util.WithOperation("validate").Errorf("repairing %s: %v", op.dn, err)
			report.State = StateFailed
			return report, nil
		}
		report.Repaired = append(report.Repaired, op.dn)
	}
	report.State = StateRepaired
	return report, nil
}

// Expected renders the whole policy model into the fabric object set it
// implies, by replaying the synchronizer against a recording client.
func Expected(policies policy.Reader, resources resource.Client, names *namemap.Mapper) ([]fabric.Object, error) {
	rec := newRecorder()
	sync := fabric.NewSynchronizer(rec, names)

	for _, rs := range policies.PolicyRuleSets() {
		if err := sync.SyncRuleSet(rs, enabledClassifiers(policies, rs)); err != nil {
			return nil, err
		}
	}

	for _, l2 := range policies.L2Policies() {
		if l2.NetworkID == "" {
			continue
		}
		n, err := resources.GetNetwork(l2.NetworkID)
		if err != nil {
			return nil, fmt.Errorf("network of l2 policy %s: %w", l2.ID, err)
		}
		if err := sync.SyncNetwork(n); err != nil {
			return nil, err
		}
		var provided, consumed []*policy.PolicyRuleSet
		seenP := make(map[string]bool)
		seenC := make(map[string]bool)
		for _, g := range policies.GroupsByL2Policy(l2.ID) {
			provided = appendRuleSets(policies, provided, seenP, g.ProvidedRuleSetIDs)
			consumed = appendRuleSets(policies, consumed, seenC, g.ConsumedRuleSetIDs)
			if len(g.SubnetIDs) == 0 {
				continue
			}
			subnets, err := resources.SubnetsByIDs(g.SubnetIDs)
			if err != nil {
				return nil, fmt.Errorf("subnets of group %s: %w", g.ID, err)
			}
			for _, sub := range subnets {
				if err := sync.SyncSubnet(n, sub); err != nil {
					return nil, err
				}
			}
		}
		if len(provided) > 0 || len(consumed) > 0 {
			if err := sync.SyncGroupContracts(n, provided, consumed); err != nil {
				return nil, err
			}
		}
	}
	return rec.Objects(), nil
}

// enabledClassifiers collects the classifiers of a rule set's enabled
// rules, deduplicated, in rule order.
func enabledClassifiers(policies policy.Reader, rs *policy.PolicyRuleSet) []*policy.PolicyClassifier {
	var out []*policy.PolicyClassifier
	seen := make(map[string]bool)
	for _, ruleID := range rs.RuleIDs {
		r, err := policies.PolicyRule(ruleID)
		if err != nil || !r.Enabled {
			continue
		}
		c, err := policies.PolicyClassifier(r.ClassifierID)
		if err != nil || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

func appendRuleSets(policies policy.Reader, out []*policy.PolicyRuleSet, seen map[string]bool, ids []string) []*policy.PolicyRuleSet {
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		rs, err := policies.PolicyRuleSet(id)
		if err != nil {
			continue
		}
		seen[id] = true
		out = append(out, rs)
	}
	return out
}
