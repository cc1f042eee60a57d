package driver

import (
	"fmt"
	"net"

	"github.com/google/uuid"

	"github.com/stackforge/group-based-policy/pkg/gbp/owner"
	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/gbp/resource"
	"github.com/stackforge/group-based-policy/pkg/util"
)

// CreatePolicyTargetGroupPrecommit validates the group's references:
// tenant affinity with its L2 policy, explicit subnets living on the L2
// policy's network, and single-redirect constraints on its rule sets.
func (d *Driver) CreatePolicyTargetGroupPrecommit(g *policy.PolicyTargetGroup) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if g.L2PolicyID != "" {
		l2, err := d.policies.L2Policy(g.L2PolicyID)
		if err != nil {
			return err
		}
		if l2.TenantID != g.TenantID {
			return util.NewCrossTenantError("group "+g.ID, "l2 policy "+g.L2PolicyID)
		}
		if err := d.checkSubnetsOnNetwork(g, l2); err != nil {
			return err
		}
	}
	if g.NetworkServicePolicyID != "" {
		nsp, err := d.policies.NetworkServicePolicy(g.NetworkServicePolicyID)
		if err != nil {
			return err
		}
		if err := nsp.Validate(); err != nil {
			return err
		}
	}
	return d.checkRuleSetRedirects(append(g.ProvidedRuleSetIDs, g.ConsumedRuleSetIDs...))
}

// checkSubnetsOnNetwork rejects explicit subnets that are not on the
// group's L2 policy network.
func (d *Driver) checkSubnetsOnNetwork(g *policy.PolicyTargetGroup, l2 *policy.L2Policy) error {
	if len(g.SubnetIDs) == 0 || l2.NetworkID == "" {
		return nil
	}
	subnets, err := d.resources.SubnetsByIDs(g.SubnetIDs)
	if err != nil {
		return err
	}
	for _, s := range subnets {
		if s.NetworkID != l2.NetworkID {
			return util.NewPreconditionError("create", "group "+g.ID,
				"subnet must belong to the group's l2 policy network",
				fmt.Sprintf("subnet %s is on network %s, not %s", s.ID, s.NetworkID, l2.NetworkID))
		}
	}
	return nil
}

// CreatePolicyTargetGroupPostcommit provisions the implicit pieces: an
// L2 policy when none was given, a subnet carved from the L3 policy pool
// when none was given, the group's default security group, the reserved
// service policy address, and any redirect chains already implied by the
// group's rule sets.
func (d *Driver) CreatePolicyTargetGroupPostcommit(g *policy.PolicyTargetGroup) error {
	if g.L2PolicyID == "" {
		if err := d.createImplicitL2Policy(g); err != nil {
			return err
		}
	}
	l2, err := d.policies.L2Policy(g.L2PolicyID)
	if err != nil {
		return err
	}
	if len(g.SubnetIDs) == 0 {
		subnet, err := d.allocateImplicitSubnet(g, l2)
		if err != nil {
			return err
		}
		g.SubnetIDs = []string{subnet.ID}
		util.WithResource("group", g.ID).Infof("allocated implicit subnet %s (%s)", subnet.ID, subnet.CIDR)
	}
	if err := d.policies.SavePolicyTargetGroup(g); err != nil {
		return err
	}
	if err := d.ensureGroupSecurityGroup(g); err != nil {
		return err
	}
	if g.NetworkServicePolicyID != "" {
		if err := d.reserveServicePolicyIP(g); err != nil {
			return err
		}
	}
	d.syncGroupSubnets(g, l2)
	d.syncGroupContracts(g)
	return d.reconcileRuleSets(append(g.ProvidedRuleSetIDs, g.ConsumedRuleSetIDs...))
}

// syncGroupSubnets renders the group's subnet gateways onto the fabric.
// Sync failures are logged, not returned; validation repair converges
// the fabric later.
func (d *Driver) syncGroupSubnets(g *policy.PolicyTargetGroup, l2 *policy.L2Policy) {
	if d.fabric == nil || l2.NetworkID == "" {
		return
	}
	n, err := d.resources.GetNetwork(l2.NetworkID)
	if err != nil {
		util.WithResource("group", g.ID).Warnf("fabric sync failed: %v", err)
		return
	}
	for _, subnetID := range g.SubnetIDs {
		sub, err := d.resources.GetSubnet(subnetID)
		if err != nil {
			util.WithResource("group", g.ID).Warnf("fabric sync of subnet %s failed: %v", subnetID, err)
			continue
		}
		if err := d.fabric.SyncSubnet(n, sub); err != nil {
			util.WithResource("group", g.ID).Warnf("fabric sync of subnet %s failed: %v", subnetID, err)
		}
	}
}

// createImplicitL2Policy gives the group its own broadcast domain,
// tagged so group teardown can remove it again.
func (d *Driver) createImplicitL2Policy(g *policy.PolicyTargetGroup) error {
	l3, err := d.defaultL3Policy(g.TenantID)
	if err != nil {
		return err
	}
	l2 := &policy.L2Policy{
		ID:          uuid.New().String(),
		Name:        g.Name,
		Description: markerImplicit,
		TenantID:    g.TenantID,
		L3PolicyID:  l3.ID,
	}
	if err := d.CreateL2PolicyPrecommit(l2); err != nil {
		return err
	}
	if err := d.CreateL2PolicyPostcommit(l2); err != nil {
		return err
	}
	g.L2PolicyID = l2.ID
	return nil
}

// defaultL3Policy returns the tenant's default routing domain, creating
// it when absent.
func (d *Driver) defaultL3Policy(tenantID string) (*policy.L3Policy, error) {
	for _, l3 := range d.policies.L3Policies() {
		if l3.TenantID == tenantID && l3.Name == "default" {
			return l3, nil
		}
	}
	l3 := &policy.L3Policy{
		ID:                 uuid.New().String(),
		Name:               "default",
		Description:        markerImplicit,
		TenantID:           tenantID,
		IPPool:             "10.0.0.0/8",
		SubnetPrefixLength: 24,
		IPVersion:          4,
	}
	if err := d.CreateL3PolicyPrecommit(l3); err != nil {
		return nil, err
	}
	if err := d.CreateL3PolicyPostcommit(l3); err != nil {
		return nil, err
	}
	return l3, nil
}

// allocateImplicitSubnet carves the first usable subnet of the L3
// policy's pool: candidates are enumerated in address order, skipping
// any that overlap a subnet already used by a group under the same L3
// policy, and the first candidate that can be created and attached to
// the policy's router wins. A creation or attach conflict moves on to
// the next candidate; exhausting the pool is a terminal error.
func (d *Driver) allocateImplicitSubnet(g *policy.PolicyTargetGroup, l2 *policy.L2Policy) (*resource.Subnet, error) {
	l3, err := d.policies.L3Policy(l2.L3PolicyID)
	if err != nil {
		return nil, err
	}
	inUse, err := d.subnetCIDRsUnderL3Policy(l3)
	if err != nil {
		return nil, err
	}

	var (
		allocated *resource.Subnet
		walkErr   error
	)
	err = util.ForEachSubnet(l3.IPPool, l3.SubnetPrefixLength, func(candidate *net.IPNet) bool {
		cidr := candidate.String()
		overlap, oerr := util.CIDROverlapsAny(cidr, inUse)
		if oerr != nil {
			walkErr = oerr
			return false
		}
		if overlap {
			return true
		}
		subnet, cerr := d.resources.CreateSubnet(&resource.Subnet{
			TenantID:   g.TenantID,
			NetworkID:  l2.NetworkID,
			Name:       "ptg_" + g.Name,
			CIDR:       cidr,
			IPVersion:  l3.IPVersion,
			EnableDHCP: true,
		})
		if cerr != nil {
			util.WithResource("group", g.ID).Debugf("candidate %s rejected: %v", cidr, cerr)
			return true
		}
		if len(l3.RouterIDs) > 0 {
			if aerr := d.resources.AddRouterInterface(l3.RouterIDs[0], subnet.ID); aerr != nil {
				util.WithResource("group", g.ID).Debugf("candidate %s attach failed: %v", cidr, aerr)
				d.resources.DeleteSubnet(subnet.ID)
				return true
			}
		}
		if merr := d.owner.Mark(owner.KindSubnet, subnet.ID); merr != nil {
			walkErr = merr
			return false
		}
		allocated = subnet
		return false
	})
	if err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}
	if allocated == nil {
		return nil, fmt.Errorf("pool %s for l3 policy %s: %w",
			l3.IPPool, l3.ID, util.ErrNoSubnetAvailable)
	}
	return allocated, nil
}

// subnetCIDRsUnderL3Policy walks L2 policies, their groups and the
// groups' subnets to collect every CIDR already claimed under an L3
// policy.
func (d *Driver) subnetCIDRsUnderL3Policy(l3 *policy.L3Policy) ([]string, error) {
	var cidrs []string
	for _, l2 := range d.policies.L2PoliciesByL3Policy(l3.ID) {
		for _, g := range d.policies.GroupsByL2Policy(l2.ID) {
			if len(g.SubnetIDs) == 0 {
				continue
			}
			subnets, err := d.resources.SubnetsByIDs(g.SubnetIDs)
			if err != nil {
				return nil, err
			}
			for _, s := range subnets {
				cidrs = append(cidrs, s.CIDR)
			}
		}
	}
	return cidrs, nil
}

// UpdatePolicyTargetGroupPrecommit rejects broadcast-domain moves and
// validates added subnets and rule sets.
func (d *Driver) UpdatePolicyTargetGroupPrecommit(cur, orig *policy.PolicyTargetGroup) error {
	if err := cur.Validate(); err != nil {
		return err
	}
	if cur.L2PolicyID != orig.L2PolicyID {
		return util.NewImmutableError("group "+cur.ID, "l2_policy_id")
	}
	if cur.NetworkServicePolicyID != "" && cur.NetworkServicePolicyID != orig.NetworkServicePolicyID {
		nsp, err := d.policies.NetworkServicePolicy(cur.NetworkServicePolicyID)
		if err != nil {
			return err
		}
		if err := nsp.Validate(); err != nil {
			return err
		}
	}
	if added := diffStrings(cur.SubnetIDs, orig.SubnetIDs); len(added) > 0 {
		l2, err := d.policies.L2Policy(cur.L2PolicyID)
		if err != nil {
			return err
		}
		check := *cur
		check.SubnetIDs = added
		if err := d.checkSubnetsOnNetwork(&check, l2); err != nil {
			return err
		}
	}
	return d.checkRuleSetRedirects(append(cur.ProvidedRuleSetIDs, cur.ConsumedRuleSetIDs...))
}

// UpdatePolicyTargetGroupPostcommit refreshes the security group rules
// and reconciles redirect chains for every rule set whose relationship
// to this group changed.
func (d *Driver) UpdatePolicyTargetGroupPostcommit(cur, orig *policy.PolicyTargetGroup) error {
	if err := d.policies.SavePolicyTargetGroup(cur); err != nil {
		return err
	}
	if !sameStringSet(cur.SubnetIDs, orig.SubnetIDs) {
		if err := d.ensureGroupSecurityGroup(cur); err != nil {
			return err
		}
		if cur.L2PolicyID != "" {
			if l2, err := d.policies.L2Policy(cur.L2PolicyID); err == nil {
				d.syncGroupSubnets(cur, l2)
			}
		}
	}
	if cur.NetworkServicePolicyID != orig.NetworkServicePolicyID {
		if orig.NetworkServicePolicyID != "" {
			if err := d.releaseServicePolicyIP(orig); err != nil {
				return err
			}
		}
		if cur.NetworkServicePolicyID != "" {
			if err := d.reserveServicePolicyIP(cur); err != nil {
				return err
			}
		}
	}

	changed := diffStrings(cur.ProvidedRuleSetIDs, orig.ProvidedRuleSetIDs)
	changed = append(changed, diffStrings(orig.ProvidedRuleSetIDs, cur.ProvidedRuleSetIDs)...)
	changed = append(changed, diffStrings(cur.ConsumedRuleSetIDs, orig.ConsumedRuleSetIDs)...)
	changed = append(changed, diffStrings(orig.ConsumedRuleSetIDs, cur.ConsumedRuleSetIDs)...)
	if len(changed) > 0 {
		d.syncGroupContracts(cur)
	}
	return d.reconcileRuleSets(changed)
}

// DeletePolicyTargetGroupPrecommit rejects deletion while targets
// remain in the group.
func (d *Driver) DeletePolicyTargetGroupPrecommit(id string) error {
	if _, err := d.policies.PolicyTargetGroup(id); err != nil {
		return err
	}
	targets := d.policies.TargetsByGroup(id)
	if len(targets) > 0 {
		used := make([]string, 0, len(targets))
		for _, pt := range targets {
			used = append(used, "policy target "+pt.ID)
		}
		return util.NewInUseError("group "+id, used...)
	}
	return nil
}

// DeletePolicyTargetGroupPostcommit tears down everything the group
// carried: its chain mappings, the reserved service policy address,
// owned subnets, the default security group, and the implicit L2 policy
// when this was its last group.
func (d *Driver) DeletePolicyTargetGroupPostcommit(g *policy.PolicyTargetGroup) error {
	if err := d.deleteChainsForGroup(g); err != nil {
		return err
	}
	if g.NetworkServicePolicyID != "" {
		if err := d.releaseServicePolicyIP(g); err != nil {
			return err
		}
	}
	if err := d.policies.DeletePolicyTargetGroup(g.ID); err != nil {
		return err
	}
	d.syncGroupContracts(g)

	l3RouterID := ""
	if g.L2PolicyID != "" {
		if l2, err := d.policies.L2Policy(g.L2PolicyID); err == nil {
			if l3, err := d.policies.L3Policy(l2.L3PolicyID); err == nil && len(l3.RouterIDs) > 0 {
				l3RouterID = l3.RouterIDs[0]
			}
		}
	}
	for _, subnetID := range g.SubnetIDs {
		owned, err := d.owner.IsOwned(owner.KindSubnet, subnetID)
		if err != nil {
			return err
		}
		if !owned {
			continue
		}
		if l3RouterID != "" {
			if err := d.resources.RemoveRouterInterface(l3RouterID, subnetID); err != nil {
				util.WithResource("group", g.ID).Warnf("detaching subnet %s: %v", subnetID, err)
			}
		}
		if err := d.resources.DeleteSubnet(subnetID); err != nil {
			return fmt.Errorf("deleting subnet %s: %w", subnetID, err)
		}
		if err := d.owner.Forget(owner.KindSubnet, subnetID); err != nil {
			return err
		}
	}

	if err := d.deleteGroupSecurityGroup(g); err != nil {
		return err
	}

	if g.L2PolicyID != "" {
		l2, err := d.policies.L2Policy(g.L2PolicyID)
		if err == nil && l2.Description == markerImplicit &&
			len(d.policies.GroupsByL2Policy(l2.ID)) == 0 {
			if err := d.DeleteL2PolicyPrecommit(l2.ID); err != nil {
				return err
			}
			if err := d.DeleteL2PolicyPostcommit(l2); err != nil {
				return err
			}
		}
	}
	return nil
}
