// Package store provides the persistent mapping tables that back policy
// orchestration: resource name mappings, ownership marks, service chain
// instance mappings and reserved policy IPs. Entries are flat string
// field maps keyed by table and entry key, matching the Redis hash
// layout used by the redis-backed implementation.
package store

// Table names. The Redis backend stores each entry under "<table>|<key>".
const (
	TableNameMap  = "GBP_NAME_MAP"  // resource name -> mapped backend name
	TableOwned    = "GBP_OWNED"     // resources created implicitly by the engine
	TableChainMap = "GBP_CHAIN_MAP" // service chain instances per provider/consumer pair
	TablePolicyIP = "GBP_NSP_IP"    // IPs reserved for network service policies
	TablePolicy   = "GBP_POLICY"    // JSON-encoded policy objects, keyed "<kind>:<id>"
	TableFabric   = "GBP_FABRIC"    // JSON-encoded fabric objects, keyed by DN
	TableResource = "GBP_RESOURCES" // JSON snapshot of the resource backend
)

// Store is the flat table store used by the mapping and ownership layers.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the fields of an entry. A missing entry returns an
	// empty (possibly nil) map and no error.
	Get(table, key string) (map[string]string, error)

	// Set writes an entry, replacing any existing fields.
	Set(table, key string, fields map[string]string) error

	// Delete removes an entry. Deleting a missing entry is not an error.
	Delete(table, key string) error

	// DeleteField removes a single field from an entry.
	DeleteField(table, key, field string) error

	// Keys returns the entry keys present in a table.
	Keys(table string) ([]string, error)

	// Exists reports whether an entry exists.
	Exists(table, key string) (bool, error)

	// Close releases any underlying resources.
	Close() error
}
