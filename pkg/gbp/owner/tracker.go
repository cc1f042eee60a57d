// Package owner records which lower-level resources were created
// implicitly by the mapping driver, as opposed to supplied by the user.
// The driver consults these marks at policy teardown: only owned
// resources are destroyed.
package owner

import (
	"fmt"

	"github.com/stackforge/group-based-policy/pkg/gbp/store"
)

// Resource kinds the tracker knows about.
const (
	KindPort    = "port"
	KindSubnet  = "subnet"
	KindNetwork = "network"
	KindRouter  = "router"
)

// Tracker marks and tests implicit ownership of lower-level resources.
type Tracker struct {
	store store.Store
}

// New creates a Tracker over the given store.
func New(st store.Store) *Tracker {
	return &Tracker{store: st}
}

func ownedKey(kind, id string) string {
	return fmt.Sprintf("%s:%s", kind, id)
}

// Mark records that the driver created this resource.
func (t *Tracker) Mark(kind, id string) error {
	return t.store.Set(store.TableOwned, ownedKey(kind, id), nil)
}

// IsOwned reports whether the driver created this resource.
func (t *Tracker) IsOwned(kind, id string) (bool, error) {
	return t.store.Exists(store.TableOwned, ownedKey(kind, id))
}

// Forget removes the ownership mark, called when the underlying
// resource is deleted.
func (t *Tracker) Forget(kind, id string) error {
	return t.store.Delete(store.TableOwned, ownedKey(kind, id))
}
