package driver

import (
	"errors"
	"fmt"

	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/gbp/resource"
	"github.com/stackforge/group-based-policy/pkg/util"
)

func groupSecurityGroupName(groupID string) string {
	return "gbp_" + groupID
}

// ensureGroupSecurityGroup brings the group's default security group in
// line with its subnets: one ingress rule per subnet CIDR, creating the
// group on first use and pruning rules whose subnet is gone.
func (d *Driver) ensureGroupSecurityGroup(g *policy.PolicyTargetGroup) error {
	name := groupSecurityGroupName(g.ID)
	sg, err := d.resources.SecurityGroupByName(g.TenantID, name)
	if err != nil {
		if !errors.Is(err, util.ErrNotFound) {
			return err
		}
		sg, err = d.resources.CreateSecurityGroup(&resource.SecurityGroup{
			TenantID:    g.TenantID,
			Name:        name,
			Description: "default group security group",
		})
		if err != nil {
			return fmt.Errorf("creating security group for group %s: %w", g.ID, err)
		}
	}

	want := make(map[string]bool, len(g.SubnetIDs))
	if len(g.SubnetIDs) > 0 {
		subnets, err := d.resources.SubnetsByIDs(g.SubnetIDs)
		if err != nil {
			return err
		}
		for _, s := range subnets {
			want[s.CIDR] = true
		}
	}

	rules, err := d.resources.SecurityGroupRules(sg.ID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.Direction != "ingress" {
			continue
		}
		if !want[r.RemoteIPPrefix] {
			if err := d.resources.DeleteSecurityGroupRule(r.ID); err != nil {
				return err
			}
			continue
		}
		have[r.RemoteIPPrefix] = true
	}
	for cidr := range want {
		if have[cidr] {
			continue
		}
		_, err := d.resources.CreateSecurityGroupRule(&resource.SecurityGroupRule{
			TenantID:        g.TenantID,
			SecurityGroupID: sg.ID,
			Direction:       "ingress",
			RemoteIPPrefix:  cidr,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) deleteGroupSecurityGroup(g *policy.PolicyTargetGroup) error {
	sg, err := d.resources.SecurityGroupByName(g.TenantID, groupSecurityGroupName(g.ID))
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return nil
		}
		return err
	}
	return d.resources.DeleteSecurityGroup(sg.ID)
}
