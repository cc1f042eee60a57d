package fabric

import (
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/stackforge/group-based-policy/pkg/gbp/namemap"
	"github.com/stackforge/group-based-policy/pkg/gbp/resource"
	"github.com/stackforge/group-based-policy/pkg/util"
)

// defaultVRFName is the routing domain networks land in until an
// explicit address scope maps them elsewhere.
const defaultVRFName = "default"

// Synchronizer writes the fabric rendering of resource-layer objects.
// Every write is retried with exponential backoff before giving up; the
// fabric is eventually consistent and transient rejections are normal
// while it converges.
type Synchronizer struct {
	client Client
	names  *namemap.Mapper
}

func NewSynchronizer(client Client, names *namemap.Mapper) *Synchronizer {
	return &Synchronizer{client: client, names: names}
}

// retry wraps a fabric write with a bounded exponential backoff.
func (s *Synchronizer) retry(op func() error) error {
	return backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4))
}

// ensure writes the object's desired state: create when absent, update
// when present with different attributes.
func (s *Synchronizer) ensure(o Object) error {
	return s.retry(func() error {
		cur, err := s.client.Get(DN(o))
		if errors.Is(err, util.ErrNotFound) {
			return s.client.Create(o)
		}
		if err != nil {
			return err
		}
		if AttrsEqual(cur.Attrs(), o.Attrs()) {
			return nil
		}
		return s.client.Update(o)
	})
}

func (s *Synchronizer) tenantName(tenantID string) (string, error) {
	return s.names.Map("tenant", tenantID, namemap.Opts{})
}

// SyncNetwork renders a network onto the fabric: the owning tenant, its
// default routing domain, and the network's bridge domain and endpoint
// group.
func (s *Synchronizer) SyncNetwork(n *resource.Network) error {
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

	objects := []Object{
		&Tenant{Name: tenant, DisplayName: DisplayName(tenant)},
		&VRF{Tenant: tenant, Name: defaultVRFName, DisplayName: defaultVRFName},
		&BridgeDomain{
			Tenant:      tenant,
			Name:        name,
			DisplayName: DisplayName(n.Name),
			VRFName:     defaultVRFName,
		},
		&EndpointGroup{
			Tenant:           tenant,
			Name:             name,
			DisplayName:      DisplayName(n.Name),
			BridgeDomainName: name,
		},
	}
	for _, o := range objects {
		if err := s.ensure(o); err != nil {
			return fmt.Errorf("syncing %s: %w", DN(o), err)
		}
	}
	util.WithResource("network", n.ID).Debugf("fabric sync complete")
	return nil
}

// SyncSubnet renders a subnet's gateway onto the network's bridge
// domain.
func (s *Synchronizer) SyncSubnet(n *resource.Network, sub *resource.Subnet) error {
	tenant, err := s.tenantName(n.TenantID)
	if err != nil {
		return err
	}
	bd, err := s.names.Map("network", n.ID, namemap.Opts{
		Name: func() (string, error) { return n.Name, nil },
	})
	if err != nil {
		return err
	}
	gw := sub.GatewayIP + "/" + cidrPrefix(sub.CIDR)
	return s.ensure(&Subnet{
		Tenant:       tenant,
		BridgeDomain: bd,
		GatewayCIDR:  gw,
		DisplayName:  DisplayName(sub.Name),
	})
}

// DeleteNetwork removes the network's fabric rendering. Monitored
// objects are left alone; they belong to an operator.
func (s *Synchronizer) DeleteNetwork(networkID string) error {
	name, err := s.names.Map("network", networkID, namemap.Opts{})
	if err != nil {
		return err
	}
	objects, err := s.client.List()
	if err != nil {
		return err
	}
	for _, o := range objects {
		if o.IsMonitored() {
			continue
		}
		id := o.Identity()
		remove := false
		switch o.(type) {
		case *BridgeDomain, *EndpointGroup:
			remove = len(id) == 2 && id[1] == name
		case *Subnet:
			remove = len(id) == 3 && id[1] == name
		}
		if !remove {
			continue
		}
		dn := DN(o)
		if err := s.retry(func() error { return s.client.Delete(dn) }); err != nil {
			return fmt.Errorf("deleting %s: %w", dn, err)
		}
	}
	if err := s.names.Remap("network", networkID); err != nil {
		util.WithResource("network", networkID).Warnf("dropping name mapping: %v", err)
	}
	return nil
}

// NetworkStatus merges the sync states of a network's fabric objects.
func (s *Synchronizer) NetworkStatus(n *resource.Network) (string, error) {
	tenant, err := s.tenantName(n.TenantID)
	if err != nil {
		return "", err
	}
	name, err := s.names.Map("network", n.ID, namemap.Opts{})
	if err != nil {
		return "", err
	}
	status := StatusSynced
	for _, o := range []Object{
		&BridgeDomain{Tenant: tenant, Name: name},
		&EndpointGroup{Tenant: tenant, Name: name},
	} {
		st, err := s.client.Status(DN(o))
		if errors.Is(err, util.ErrNotFound) {
			return StatusBuild, nil
		}
		if err != nil {
			return "", err
		}
		status = MergeStatus(status, st)
	}
	return status, nil
}

// AttrsEqual compares attribute maps, treating string slices as sets.
func AttrsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		as, aok := av.([]string)
		bs, bok := bv.([]string)
		if aok || bok {
			if !aok || !bok || !sameSet(as, bs) {
				return false
			}
			continue
		}
		if av != bv {
			return false
		}
	}
	return true
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
		if seen[s] < 0 {
			return false
		}
	}
	return true
}

func cidrPrefix(cidr string) string {
	for i := len(cidr) - 1; i >= 0; i-- {
		if cidr[i] == '/' {
			return cidr[i+1:]
		}
	}
	return ""
}
