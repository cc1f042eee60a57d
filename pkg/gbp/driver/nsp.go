package driver

import (
	"fmt"

	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/gbp/resource"
	"github.com/stackforge/group-based-policy/pkg/gbp/store"
	"github.com/stackforge/group-based-policy/pkg/util"
)

func servicePolicyIPKey(groupID, nspID string) string {
	return groupID + ":" + nspID
}

// servicePolicyWantsIP reports whether the policy carries a
// self-subnet single-address parameter.
func servicePolicyWantsIP(nsp *policy.NetworkServicePolicy) bool {
	for _, p := range nsp.Params {
		if p.Type == policy.ParamTypeIPSingle && p.Value == policy.ParamValueSelfSubnet {
			return true
		}
	}
	return false
}

// reserveServicePolicyIP carves one address out of the group's first
// subnet for the service policy: the top of the allocation pool is
// taken, the pool is shrunk so ports can no longer claim it, and the
// reservation is recorded for later chain instances and release.
func (d *Driver) reserveServicePolicyIP(g *policy.PolicyTargetGroup) error {
	nsp, err := d.policies.NetworkServicePolicy(g.NetworkServicePolicyID)
	if err != nil {
		return err
	}
	if !servicePolicyWantsIP(nsp) {
		return nil
	}
	key := servicePolicyIPKey(g.ID, nsp.ID)
	existing, err := d.store.Get(store.TablePolicyIP, key)
	if err != nil {
		return err
	}
	if existing["ip"] != "" {
		return nil
	}
	if len(g.SubnetIDs) == 0 {
		return util.NewPreconditionError("reserve", "group "+g.ID,
			"service policy needs a subnet to reserve an address from",
			"group has no subnets")
	}
	subnet, err := d.resources.GetSubnet(g.SubnetIDs[0])
	if err != nil {
		return err
	}
	if len(subnet.AllocationPools) == 0 {
		return util.NewPreconditionError("reserve", "group "+g.ID,
			"service policy needs a free address",
			fmt.Sprintf("subnet %s has no allocation pool", subnet.ID))
	}

	last := len(subnet.AllocationPools) - 1
	pool := subnet.AllocationPools[last]
	ip := pool.End
	if pool.Start == pool.End {
		subnet.AllocationPools = subnet.AllocationPools[:last]
	} else {
		subnet.AllocationPools[last].End = util.PrevIP(pool.End)
	}
	if _, err := d.resources.UpdateSubnet(subnet); err != nil {
		return fmt.Errorf("shrinking pool of subnet %s: %w", subnet.ID, err)
	}
	if err := d.store.Set(store.TablePolicyIP, key, map[string]string{
		"ip":     ip,
		"subnet": subnet.ID,
	}); err != nil {
		return err
	}
	util.WithResource("group", g.ID).Infof("reserved service address %s on subnet %s", ip, subnet.ID)
	return nil
}

// releaseServicePolicyIP returns the reserved address to its subnet's
// allocation pool, extending an adjacent pool when one lines up.
func (d *Driver) releaseServicePolicyIP(g *policy.PolicyTargetGroup) error {
	key := servicePolicyIPKey(g.ID, g.NetworkServicePolicyID)
	entry, err := d.store.Get(store.TablePolicyIP, key)
	if err != nil {
		return err
	}
	ip := entry["ip"]
	if ip == "" {
		return nil
	}
	subnet, err := d.resources.GetSubnet(entry["subnet"])
	if err == nil {
		extended := false
		for i, pool := range subnet.AllocationPools {
			if util.NextIP(pool.End) == ip {
				subnet.AllocationPools[i].End = ip
				extended = true
				break
			}
		}
		if !extended {
			subnet.AllocationPools = append(subnet.AllocationPools,
				resource.AllocationPool{Start: ip, End: ip})
		}
		if _, err := d.resources.UpdateSubnet(subnet); err != nil {
			return fmt.Errorf("restoring pool of subnet %s: %w", subnet.ID, err)
		}
	} else {
		util.WithResource("group", g.ID).Warnf("releasing service address %s: %v", ip, err)
	}
	return d.store.Delete(store.TablePolicyIP, key)
}

// servicePolicyConfigParams resolves the chain configuration values a
// provider group's service policy contributes.
func (d *Driver) servicePolicyConfigParams(g *policy.PolicyTargetGroup) (map[string]string, error) {
	if g.NetworkServicePolicyID == "" {
		return nil, nil
	}
	nsp, err := d.policies.NetworkServicePolicy(g.NetworkServicePolicyID)
	if err != nil {
		return nil, err
	}
	params := make(map[string]string)
	for _, p := range nsp.Params {
		if p.Type != policy.ParamTypeIPSingle || p.Value != policy.ParamValueSelfSubnet {
			continue
		}
		entry, err := d.store.Get(store.TablePolicyIP, servicePolicyIPKey(g.ID, nsp.ID))
		if err != nil {
			return nil, err
		}
		params[p.Name] = entry["ip"]
	}
	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}
