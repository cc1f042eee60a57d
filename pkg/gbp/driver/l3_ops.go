package driver

import (
	"fmt"
	"sort"

	"github.com/stackforge/group-based-policy/pkg/gbp/namemap"
	"github.com/stackforge/group-based-policy/pkg/gbp/owner"
	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/gbp/resource"
	"github.com/stackforge/group-based-policy/pkg/util"
)

// CreateL3PolicyPrecommit validates the policy and its cardinality
// constraints before anything is provisioned.
func (d *Driver) CreateL3PolicyPrecommit(l3 *policy.L3Policy) error {
	if err := l3.Validate(); err != nil {
		return err
	}
	if len(l3.RouterIDs) > 1 {
		return util.NewPreconditionError("create", "l3 policy "+l3.ID,
			"at most one router is supported", fmt.Sprintf("%d supplied", len(l3.RouterIDs)))
	}
	if len(l3.ExternalSegments) > 1 {
		return util.NewPreconditionError("create", "l3 policy "+l3.ID,
			"at most one external segment is supported",
			fmt.Sprintf("%d supplied", len(l3.ExternalSegments)))
	}
	for _, routerID := range l3.RouterIDs {
		r, err := d.resources.GetRouter(routerID)
		if err != nil {
			return err
		}
		if r.TenantID != l3.TenantID {
			return util.NewCrossTenantError("l3 policy "+l3.ID, "router "+routerID)
		}
	}
	for esID := range l3.ExternalSegments {
		if _, err := d.policies.ExternalSegment(esID); err != nil {
			return err
		}
	}
	return nil
}

// CreateL3PolicyPostcommit provisions the routing side: an implicit
// router when none was supplied, and the external segment routes.
func (d *Driver) CreateL3PolicyPostcommit(l3 *policy.L3Policy) error {
	if len(l3.RouterIDs) == 0 {
		name, err := d.names.Map("router", l3.ID, namemap.Opts{
			Name: func() (string, error) { return l3.Name, nil },
		})
		if err != nil {
			return err
		}
		r, err := d.resources.CreateRouter(&resource.Router{
			TenantID: l3.TenantID,
			Name:     name,
		})
		if err != nil {
			return fmt.Errorf("creating router for l3 policy %s: %w", l3.ID, err)
		}
		if err := d.owner.Mark(owner.KindRouter, r.ID); err != nil {
			return err
		}
		l3.RouterIDs = []string{r.ID}
		util.WithResource("l3_policy", l3.ID).Infof("created implicit router %s", r.ID)
	}
	if err := d.policies.SaveL3Policy(l3); err != nil {
		return err
	}
	if len(l3.ExternalSegments) > 0 {
		return d.recomputeL3PolicyRoutes(l3)
	}
	return nil
}

// UpdateL3PolicyPrecommit rejects router reassignment and external
// segment cardinality violations.
func (d *Driver) UpdateL3PolicyPrecommit(cur, orig *policy.L3Policy) error {
	if err := cur.Validate(); err != nil {
		return err
	}
	if !sameStringSet(cur.RouterIDs, orig.RouterIDs) {
		return util.NewImmutableError("l3 policy "+cur.ID, "routers")
	}
	if len(cur.ExternalSegments) > 1 {
		return util.NewPreconditionError("update", "l3 policy "+cur.ID,
			"at most one external segment is supported",
			fmt.Sprintf("%d supplied", len(cur.ExternalSegments)))
	}
	for esID := range cur.ExternalSegments {
		if _, err := d.policies.ExternalSegment(esID); err != nil {
			return err
		}
	}
	return nil
}

// UpdateL3PolicyPostcommit recomputes router routes when the external
// segment attachments changed.
func (d *Driver) UpdateL3PolicyPostcommit(cur, orig *policy.L3Policy) error {
	if err := d.policies.SaveL3Policy(cur); err != nil {
		return err
	}
	if !sameSegmentSet(cur.ExternalSegments, orig.ExternalSegments) {
		return d.recomputeL3PolicyRoutes(cur)
	}
	return nil
}

// DeleteL3PolicyPrecommit rejects deletion while L2 policies still
// reference this routing domain.
func (d *Driver) DeleteL3PolicyPrecommit(id string) error {
	if _, err := d.policies.L3Policy(id); err != nil {
		return err
	}
	l2s := d.policies.L2PoliciesByL3Policy(id)
	if len(l2s) > 0 {
		used := make([]string, 0, len(l2s))
		for _, l2 := range l2s {
			used = append(used, "l2 policy "+l2.ID)
		}
		return util.NewInUseError("l3 policy "+id, used...)
	}
	return nil
}

// DeleteL3PolicyPostcommit tears down the implicit router, when owned,
// and drops the record.
func (d *Driver) DeleteL3PolicyPostcommit(l3 *policy.L3Policy) error {
	for _, routerID := range l3.RouterIDs {
		owned, err := d.owner.IsOwned(owner.KindRouter, routerID)
		if err != nil {
			return err
		}
		if !owned {
			continue
		}
		if err := d.resources.DeleteRouter(routerID); err != nil {
			return fmt.Errorf("deleting router %s: %w", routerID, err)
		}
		if err := d.owner.Forget(owner.KindRouter, routerID); err != nil {
			return err
		}
	}
	return d.policies.DeleteL3Policy(l3.ID)
}

// recomputeL3PolicyRoutes sets the router's static routes to the union
// of all attached external segments' routes, skipping entries without a
// nexthop.
func (d *Driver) recomputeL3PolicyRoutes(l3 *policy.L3Policy) error {
	if len(l3.RouterIDs) == 0 {
		return nil
	}
	seen := make(map[resource.Route]bool)
	var routes []resource.Route
	esIDs := make([]string, 0, len(l3.ExternalSegments))
	for esID := range l3.ExternalSegments {
		esIDs = append(esIDs, esID)
	}
	sort.Strings(esIDs)
	for _, esID := range esIDs {
		es, err := d.policies.ExternalSegment(esID)
		if err != nil {
			return err
		}
		for _, r := range es.Routes {
			if r.Nexthop == "" {
				continue
			}
			route := resource.Route{Destination: r.Destination, Nexthop: r.Nexthop}
			if !seen[route] {
				seen[route] = true
				routes = append(routes, route)
			}
		}
	}
	return d.resources.UpdateRouterRoutes(l3.RouterIDs[0], routes)
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	for _, x := range b {
		if !set[x] {
			return false
		}
	}
	return true
}

func sameSegmentSet(a, b map[string][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
