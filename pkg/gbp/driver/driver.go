// Package driver implements the policy lifecycle driver: it reacts to
// create/update/delete of each policy entity and provisions or tears
// down the dependent lower-level resources (networks, subnets, routers,
// ports, security groups) and service chain instances. Precommit hooks
// validate and reject before any mutation; postcommit hooks perform the
// side effects.
package driver

import (
	"github.com/stackforge/group-based-policy/pkg/gbp/fabric"
	"github.com/stackforge/group-based-policy/pkg/gbp/namemap"
	"github.com/stackforge/group-based-policy/pkg/gbp/owner"
	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/gbp/resource"
	"github.com/stackforge/group-based-policy/pkg/gbp/store"
)

// Config carries the collaborators a Driver composes. Every field except
// Fabric is required; Fabric is optional because the driver can run
// without a fabric backend (pure resource mapping).
type Config struct {
	Policies  policy.Store
	Resources resource.Client
	Chains    ChainClient
	Owner     *owner.Tracker
	Names     *namemap.Mapper
	Store     store.Store
	Fabric    *fabric.Synchronizer
}

// Driver is the policy lifecycle driver. It holds its collaborators
// explicitly; hooks receive the current (and for updates, original)
// records as plain arguments.
type Driver struct {
	policies  policy.Store
	resources resource.Client
	chains    ChainClient
	owner     *owner.Tracker
	names     *namemap.Mapper
	store     store.Store
	fabric    *fabric.Synchronizer
}

// New creates a Driver from its collaborators.
func New(cfg Config) *Driver {
	return &Driver{
		policies:  cfg.Policies,
		resources: cfg.Resources,
		chains:    cfg.Chains,
		owner:     cfg.Owner,
		names:     cfg.Names,
		store:     cfg.Store,
		fabric:    cfg.Fabric,
	}
}

// Policies exposes the policy store, used by callers that need to read
// back records the driver mutated.
func (d *Driver) Policies() policy.Store { return d.policies }

// Resources exposes the lower-level backend.
func (d *Driver) Resources() resource.Client { return d.resources }

// markerImplicit tags policy objects the driver created on behalf of
// another object, so teardown can tell them from user-supplied ones.
const markerImplicit = "gbp_internal_implicit"

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// diffStrings returns the elements of a not present in b.
func diffStrings(a, b []string) []string {
	var out []string
	for _, x := range a {
		if !containsString(b, x) {
			out = append(out, x)
		}
	}
	return out
}
