package fabric

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stackforge/group-based-policy/pkg/gbp/namemap"
	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/gbp/resource"
	"github.com/stackforge/group-based-policy/pkg/util"
)

// SyncRuleSet renders a rule set as a contract, with one filter per
// classifier of its enabled rules.
func (s *Synchronizer) SyncRuleSet(rs *policy.PolicyRuleSet, classifiers []*policy.PolicyClassifier) error {
	tenant, err := s.tenantName(rs.TenantID)
	if err != nil {
		return err
	}
	if err := s.ensure(&Tenant{Name: tenant, DisplayName: DisplayName(tenant)}); err != nil {
		return err
	}

	filterNames := make([]string, 0, len(classifiers))
	for _, c := range classifiers {
		fname, err := s.names.Map("classifier", c.ID, namemap.Opts{
			Name: func() (string, error) { return c.Name, nil },
		})
		if err != nil {
			return err
		}
		min, max := parsePortRange(c.PortRange)
		f := &Filter{
			Tenant:      tenant,
			Name:        fname,
			DisplayName: DisplayName(c.Name),
			Protocol:    c.Protocol,
			PortMin:     min,
			PortMax:     max,
		}
		if err := s.ensure(f); err != nil {
			return fmt.Errorf("syncing %s: %w", DN(f), err)
		}
		filterNames = append(filterNames, fname)
	}

	cname, err := s.contractName(rs)
	if err != nil {
		return err
	}
	c := &Contract{
		Tenant:      tenant,
		Name:        cname,
		DisplayName: DisplayName(rs.Name),
		FilterNames: filterNames,
	}
	if err := s.ensure(c); err != nil {
		return fmt.Errorf("syncing %s: %w", DN(c), err)
	}
	util.WithResource("policy_rule_set", rs.ID).Debugf("contract sync complete")
	return nil
}

// DeleteRuleSet removes a rule set's contract. Filters are left in
// place; other contracts may still reference them.
func (s *Synchronizer) DeleteRuleSet(tenantID, rsID string) error {
	tenant, err := s.tenantName(tenantID)
	if err != nil {
		return err
	}
	name, err := s.names.Map("ruleset", rsID, namemap.Opts{})
	if err != nil {
		return err
	}
	dn := DN(&Contract{Tenant: tenant, Name: name})
	if err := s.retry(func() error { return s.client.Delete(dn) }); err != nil {
		return fmt.Errorf("deleting %s: %w", dn, err)
	}
	if err := s.names.Remap("ruleset", rsID); err != nil {
		util.WithResource("policy_rule_set", rsID).Warnf("dropping name mapping: %v", err)
	}
	return nil
}

// SyncGroupContracts rewrites the network's endpoint group with the
// contracts the groups on it provide and consume.
func (s *Synchronizer) SyncGroupContracts(n *resource.Network, provided, consumed []*policy.PolicyRuleSet) error {
	tenant, err := s.tenantName(n.TenantID)
	if err != nil {
		return err
	}
	name, err := s.names.Map("network", n.ID, namemap.Opts{
		Name: func() (string, error) { return n.Name, nil },
	})
	if err != nil {
		return err
	}
	providedNames, err := s.contractNames(provided)
	if err != nil {
		return err
	}
	consumedNames, err := s.contractNames(consumed)
	if err != nil {
		return err
	}
	return s.ensure(&EndpointGroup{
		Tenant:            tenant,
		Name:              name,
		DisplayName:       DisplayName(n.Name),
		BridgeDomainName:  name,
		ProvidedContracts: providedNames,
		ConsumedContracts: consumedNames,
	})
}

func (s *Synchronizer) contractName(rs *policy.PolicyRuleSet) (string, error) {
	return s.names.Map("ruleset", rs.ID, namemap.Opts{
		Name: func() (string, error) { return rs.Name, nil },
	})
}

func (s *Synchronizer) contractNames(ruleSets []*policy.PolicyRuleSet) ([]string, error) {
	names := make([]string, 0, len(ruleSets))
	for _, rs := range ruleSets {
		name, err := s.contractName(rs)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// parsePortRange splits "min:max" (or a single port) into bounds. An
// empty or malformed range yields zeros, matching any port.
func parsePortRange(pr string) (int, int) {
	if pr == "" {
		return 0, 0
	}
	lo, hi, found := strings.Cut(pr, ":")
	if !found {
		hi = lo
	}
	min, err := strconv.Atoi(lo)
	if err != nil {
		return 0, 0
	}
	max, err := strconv.Atoi(hi)
	if err != nil {
		return 0, 0
	}
	return min, max
}
