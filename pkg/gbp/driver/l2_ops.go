package driver

import (
	"fmt"

	"github.com/stackforge/group-based-policy/pkg/gbp/namemap"
	"github.com/stackforge/group-based-policy/pkg/gbp/owner"
	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/gbp/resource"
	"github.com/stackforge/group-based-policy/pkg/util"
)

// CreateL2PolicyPrecommit validates cross-tenant references before
// provisioning.
func (d *Driver) CreateL2PolicyPrecommit(l2 *policy.L2Policy) error {
	if err := l2.Validate(); err != nil {
		return err
	}
	l3, err := d.policies.L3Policy(l2.L3PolicyID)
	if err != nil {
		return err
	}
	if l3.TenantID != l2.TenantID {
		return util.NewCrossTenantError("l2 policy "+l2.ID, "l3 policy "+l2.L3PolicyID)
	}
	if l2.NetworkID != "" {
		n, err := d.resources.GetNetwork(l2.NetworkID)
		if err != nil {
			return err
		}
		if n.TenantID != l2.TenantID && !n.Shared {
			return util.NewCrossTenantError("l2 policy "+l2.ID, "network "+l2.NetworkID)
		}
	}
	return nil
}

// CreateL2PolicyPostcommit creates the backing network when none was
// supplied, marking it owned so teardown knows to remove it.
func (d *Driver) CreateL2PolicyPostcommit(l2 *policy.L2Policy) error {
	if l2.NetworkID == "" {
		name, err := d.names.Map("network", l2.ID, namemap.Opts{
			Name: func() (string, error) { return l2.Name, nil },
		})
		if err != nil {
			return err
		}
		n, err := d.resources.CreateNetwork(&resource.Network{
			TenantID:     l2.TenantID,
			Name:         name,
			AdminStateUp: true,
		})
		if err != nil {
			return fmt.Errorf("creating network for l2 policy %s: %w", l2.ID, err)
		}
		if err := d.owner.Mark(owner.KindNetwork, n.ID); err != nil {
			return err
		}
		l2.NetworkID = n.ID
		util.WithResource("l2_policy", l2.ID).Infof("created implicit network %s", n.ID)
	}
	if err := d.policies.SaveL2Policy(l2); err != nil {
		return err
	}
	if d.fabric != nil {
		n, err := d.resources.GetNetwork(l2.NetworkID)
		if err != nil {
			return err
		}
		if err := d.fabric.SyncNetwork(n); err != nil {
			util.WithResource("l2_policy", l2.ID).Warnf("fabric sync failed: %v", err)
		}
	}
	return nil
}

// UpdateL2PolicyPrecommit rejects moving a broadcast domain between
// routing domains or networks.
func (d *Driver) UpdateL2PolicyPrecommit(cur, orig *policy.L2Policy) error {
	if err := cur.Validate(); err != nil {
		return err
	}
	if cur.L3PolicyID != orig.L3PolicyID {
		return util.NewImmutableError("l2 policy "+cur.ID, "l3_policy_id")
	}
	if cur.NetworkID != orig.NetworkID {
		return util.NewImmutableError("l2 policy "+cur.ID, "network_id")
	}
	return nil
}

// UpdateL2PolicyPostcommit persists the mutable fields.
func (d *Driver) UpdateL2PolicyPostcommit(cur, orig *policy.L2Policy) error {
	return d.policies.SaveL2Policy(cur)
}

// DeleteL2PolicyPrecommit rejects deletion while groups still use the
// broadcast domain.
func (d *Driver) DeleteL2PolicyPrecommit(id string) error {
	if _, err := d.policies.L2Policy(id); err != nil {
		return err
	}
	groups := d.policies.GroupsByL2Policy(id)
	if len(groups) > 0 {
		used := make([]string, 0, len(groups))
		for _, g := range groups {
			used = append(used, "group "+g.ID)
		}
		return util.NewInUseError("l2 policy "+id, used...)
	}
	return nil
}

// DeleteL2PolicyPostcommit removes the backing network only when the
// driver created it.
func (d *Driver) DeleteL2PolicyPostcommit(l2 *policy.L2Policy) error {
	if l2.NetworkID != "" {
		owned, err := d.owner.IsOwned(owner.KindNetwork, l2.NetworkID)
		if err != nil {
			return err
		}
		if owned {
			if d.fabric != nil {
				if err := d.fabric.DeleteNetwork(l2.NetworkID); err != nil {
					util.WithResource("l2_policy", l2.ID).Warnf("fabric cleanup failed: %v", err)
				}
			}
			if err := d.resources.DeleteNetwork(l2.NetworkID); err != nil {
				return fmt.Errorf("deleting network %s: %w", l2.NetworkID, err)
			}
			if err := d.owner.Forget(owner.KindNetwork, l2.NetworkID); err != nil {
				return err
			}
		}
	}
	return d.policies.DeleteL2Policy(l2.ID)
}
