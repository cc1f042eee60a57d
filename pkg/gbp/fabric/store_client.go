package fabric

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/stackforge/group-based-policy/pkg/gbp/store"
	"github.com/stackforge/group-based-policy/pkg/util"
)

// newByType constructs an empty object of each persistable type for
// decoding.
var newByType = map[string]func() Object{
	"tenant":         func() Object { return &Tenant{} },
	"vrf":            func() Object { return &VRF{} },
	"bridge_domain":  func() Object { return &BridgeDomain{} },
	"subnet":         func() Object { return &Subnet{} },
	"endpoint_group": func() Object { return &EndpointGroup{} },
	"contract":       func() Object { return &Contract{} },
	"filter":         func() Object { return &Filter{} },
}

// StoreClient is a Client persisted in the orchestration store, one
// entry per object keyed by DN. The synchronizer writes through it in a
// deployment; the CLI reads the same tables to audit and repair.
type StoreClient struct {
	st store.Store
}

func NewStoreClient(st store.Store) *StoreClient {
	return &StoreClient{st: st}
}

func (c *StoreClient) Get(dn string) (Object, error) {
	entry, err := c.st.Get(store.TableFabric, dn)
	if err != nil {
		return nil, err
	}
	return decodeObject(dn, entry)
}

func (c *StoreClient) List() ([]Object, error) {
	keys, err := c.st.Keys(store.TableFabric)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	out := make([]Object, 0, len(keys))
	for _, dn := range keys {
		entry, err := c.st.Get(store.TableFabric, dn)
		if err != nil {
			return nil, err
		}
		o, err := decodeObject(dn, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (c *StoreClient) Create(o Object) error {
	dn := DN(o)
	exists, err := c.st.Exists(store.TableFabric, dn)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("fabric object '%s': %w", dn, util.ErrAlreadyExists)
	}
	return c.put(o, StatusSynced)
}

func (c *StoreClient) Update(o Object) error {
	dn := DN(o)
	status, err := c.Status(dn)
	if err != nil {
		return err
	}
	return c.put(o, status)
}

func (c *StoreClient) put(o Object, status string) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", DN(o), err)
	}
	return c.st.Set(store.TableFabric, DN(o), map[string]string{
		"type":   o.TypeName(),
		"json":   string(data),
		"status": status,
	})
}

func (c *StoreClient) Delete(dn string) error {
	return c.st.Delete(store.TableFabric, dn)
}

func (c *StoreClient) Status(dn string) (string, error) {
	entry, err := c.st.Get(store.TableFabric, dn)
	if err != nil {
		return "", err
	}
	status, ok := entry["status"]
	if !ok {
		return "", fmt.Errorf("fabric object '%s': %w", dn, util.ErrNotFound)
	}
	return status, nil
}

func decodeObject(dn string, entry map[string]string) (Object, error) {
	data, ok := entry["json"]
	if !ok {
		return nil, fmt.Errorf("fabric object '%s': %w", dn, util.ErrNotFound)
	}
	mk, ok := newByType[entry["type"]]
	if !ok {
		return nil, fmt.Errorf("fabric object '%s': unknown type %q", dn, entry["type"])
	}
	o := mk()
	if err := json.Unmarshal([]byte(data), o); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", dn, err)
	}
	return o, nil
}
