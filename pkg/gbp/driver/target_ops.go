package driver

import (
	"fmt"

	"github.com/stackforge/group-based-policy/pkg/gbp/owner"
	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/gbp/resource"
	"github.com/stackforge/group-based-policy/pkg/util"
)

// CreatePolicyTargetPrecommit validates the target's group and, for an
// explicit port, that the port sits on one of the group's subnets.
func (d *Driver) CreatePolicyTargetPrecommit(pt *policy.PolicyTarget) error {
	if err := pt.Validate(); err != nil {
		return err
	}
	g, err := d.policies.PolicyTargetGroup(pt.GroupID)
	if err != nil {
		return err
	}
	if g.TenantID != pt.TenantID {
		return util.NewCrossTenantError("policy target "+pt.ID, "group "+pt.GroupID)
	}
	if pt.PortID != "" {
		return d.checkPortOnGroupSubnets(pt, g)
	}
	return nil
}

func (d *Driver) checkPortOnGroupSubnets(pt *policy.PolicyTarget, g *policy.PolicyTargetGroup) error {
	port, err := d.resources.GetPort(pt.PortID)
	if err != nil {
		return err
	}
	for _, fip := range port.FixedIPs {
		if containsString(g.SubnetIDs, fip.SubnetID) {
			return nil
		}
	}
	return util.NewPreconditionError("create", "policy target "+pt.ID,
		"port must have an address on one of the group's subnets",
		fmt.Sprintf("port %s has no address on subnets %v", pt.PortID, g.SubnetIDs))
}

// CreatePolicyTargetPostcommit creates the implicit port when none was
// given, placing it on the group's network with the group's default
// security group, and marks it owned for teardown.
func (d *Driver) CreatePolicyTargetPostcommit(pt *policy.PolicyTarget) error {
	g, err := d.policies.PolicyTargetGroup(pt.GroupID)
	if err != nil {
		return err
	}
	if pt.PortID == "" {
		port, err := d.createImplicitPort(pt, g)
		if err != nil {
			return err
		}
		pt.PortID = port.ID
		util.WithResource("policy_target", pt.ID).Infof("created implicit port %s", port.ID)
	} else if err := d.attachGroupSecurityGroup(pt.PortID, g); err != nil {
		return err
	}
	return d.policies.SavePolicyTarget(pt)
}

func (d *Driver) createImplicitPort(pt *policy.PolicyTarget, g *policy.PolicyTargetGroup) (*resource.Port, error) {
	l2, err := d.policies.L2Policy(g.L2PolicyID)
	if err != nil {
		return nil, err
	}
	sg, err := d.resources.SecurityGroupByName(g.TenantID, groupSecurityGroupName(g.ID))
	if err != nil {
		return nil, err
	}
	port, err := d.resources.CreatePort(&resource.Port{
		TenantID:         pt.TenantID,
		NetworkID:        l2.NetworkID,
		Name:             "pt_" + pt.Name,
		DeviceID:         pt.ID,
		SecurityGroupIDs: []string{sg.ID},
		AdminStateUp:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating port for policy target %s: %w", pt.ID, err)
	}
	if err := d.owner.Mark(owner.KindPort, port.ID); err != nil {
		return nil, err
	}
	return port, nil
}

// attachGroupSecurityGroup adds the group's default security group to an
// explicit port without disturbing groups the operator put there.
func (d *Driver) attachGroupSecurityGroup(portID string, g *policy.PolicyTargetGroup) error {
	sg, err := d.resources.SecurityGroupByName(g.TenantID, groupSecurityGroupName(g.ID))
	if err != nil {
		return err
	}
	port, err := d.resources.GetPort(portID)
	if err != nil {
		return err
	}
	if containsString(port.SecurityGroupIDs, sg.ID) {
		return nil
	}
	port.SecurityGroupIDs = append(port.SecurityGroupIDs, sg.ID)
	_, err = d.resources.UpdatePort(port)
	return err
}

// UpdatePolicyTargetPrecommit pins the target to its group and port.
func (d *Driver) UpdatePolicyTargetPrecommit(cur, orig *policy.PolicyTarget) error {
	if err := cur.Validate(); err != nil {
		return err
	}
	if cur.GroupID != orig.GroupID {
		return util.NewImmutableError("policy target "+cur.ID, "policy_target_group_id")
	}
	if cur.PortID != orig.PortID {
		return util.NewImmutableError("policy target "+cur.ID, "port_id")
	}
	return nil
}

func (d *Driver) UpdatePolicyTargetPostcommit(cur, orig *policy.PolicyTarget) error {
	return d.policies.SavePolicyTarget(cur)
}

func (d *Driver) DeletePolicyTargetPrecommit(id string) error {
	_, err := d.policies.PolicyTarget(id)
	return err
}

// DeletePolicyTargetPostcommit removes the implicit port; explicit
// ports only lose the group's security group.
func (d *Driver) DeletePolicyTargetPostcommit(pt *policy.PolicyTarget) error {
	if pt.PortID != "" {
		owned, err := d.owner.IsOwned(owner.KindPort, pt.PortID)
		if err != nil {
			return err
		}
		if owned {
			if err := d.resources.DeletePort(pt.PortID); err != nil {
				return fmt.Errorf("deleting port %s: %w", pt.PortID, err)
			}
			if err := d.owner.Forget(owner.KindPort, pt.PortID); err != nil {
				return err
			}
		} else if err := d.detachGroupSecurityGroup(pt); err != nil {
			util.WithResource("policy_target", pt.ID).Warnf("detaching security group: %v", err)
		}
	}
	return d.policies.DeletePolicyTarget(pt.ID)
}

func (d *Driver) detachGroupSecurityGroup(pt *policy.PolicyTarget) error {
	g, err := d.policies.PolicyTargetGroup(pt.GroupID)
	if err != nil {
		return err
	}
	sg, err := d.resources.SecurityGroupByName(g.TenantID, groupSecurityGroupName(g.ID))
	if err != nil {
		return err
	}
	port, err := d.resources.GetPort(pt.PortID)
	if err != nil {
		return err
	}
	if !containsString(port.SecurityGroupIDs, sg.ID) {
		return nil
	}
	kept := make([]string, 0, len(port.SecurityGroupIDs)-1)
	for _, id := range port.SecurityGroupIDs {
		if id != sg.ID {
			kept = append(kept, id)
		}
	}
	port.SecurityGroupIDs = kept
	_, err = d.resources.UpdatePort(port)
	return err
}
