// Package namemap maps internal resource ids to stable, length-bounded,
// collision-free names visible on the fabric. Mappings are persisted so
// a name, once handed out, never changes unless explicitly remapped.
package namemap

import (
	"strings"

	"github.com/stackforge/group-based-policy/pkg/gbp/store"
	"github.com/stackforge/group-based-policy/pkg/util"
)

// MaxLength is the longest name the fabric accepts.
const MaxLength = 46

// minSuffixLen is how many id characters seed the disambiguation suffix
// under the uuid strategy.
const minSuffixLen = 5

// Strategy selects how names are derived.
type Strategy string

const (
	// StrategyUUID embeds the human name as a prefix and appends id
	// characters to disambiguate. Default.
	StrategyUUID Strategy = "use_uuid"
	// StrategyName uses the human name verbatim, truncated.
	StrategyName Strategy = "use_name"
)

// NameFunc derives the human name for an id. Errors are logged and
// treated as "no name available", never propagated.
type NameFunc func() (string, error)

// Opts modify a single Map call.
type Opts struct {
	// Name derives the human name. Nil means no name available.
	Name NameFunc
	// Remap discards any persisted mapping first, forcing recomputation.
	Remap bool
	// Prefix is prepended to the mapped name after persistence; the
	// prefixed result is truncated again to MaxLength.
	Prefix string
}

// Mapper computes and caches names. Safe for concurrent use when the
// underlying store is.
type Mapper struct {
	store    store.Store
	strategy Strategy
	prefix   string
}

// New creates a Mapper persisting into st under the given strategy. An
// empty strategy defaults to StrategyUUID.
func New(st store.Store, strategy Strategy) *Mapper {
	return NewPrefixed(st, strategy, "")
}

// NewPrefixed is New with a default prefix prepended to every mapped
// name. A per-call Opts.Prefix takes precedence.
func NewPrefixed(st store.Store, strategy Strategy, prefix string) *Mapper {
	if strategy == "" {
		strategy = StrategyUUID
	}
	return &Mapper{store: st, strategy: strategy, prefix: prefix}
}

// Map returns the fabric name for (kind, id). The first call computes
// and persists the mapping; later calls return the persisted name
// unchanged. The prefix is applied after persistence so the cached name
// stays prefix-free.
func (m *Mapper) Map(kind, id string, opts Opts) (string, error) {
	key := mapKey(kind, id)
	if opts.Remap {
		if err := m.store.Delete(store.TableNameMap, key); err != nil {
			return "", err
		}
	} else {
		fields, err := m.store.Get(store.TableNameMap, key)
		if err != nil {
			return "", err
		}
		if cached := fields["name"]; cached != "" {
			return m.withPrefix(cached, opts.Prefix), nil
		}
	}

	name := ""
	if opts.Name != nil {
		n, err := opts.Name()
		if err != nil {
			util.WithResource(kind, id).Warnf("name lookup failed, falling back to id: %v", err)
		} else {
			name = n
		}
	}
	name = strings.Join(strings.Fields(name), "")

	purged := purgeID(id)
	var mapped string
	switch m.strategy {
	case StrategyName:
		if name == "" {
			name = purged
		}
		mapped = truncate(name, MaxLength)
	default:
		if name == "" {
			mapped = truncate(purged, MaxLength)
		} else {
			mapped = m.disambiguate(kind, id, name, purged)
		}
	}

	if err := m.store.Set(store.TableNameMap, key, map[string]string{
		"name": mapped,
	}); err != nil {
		return "", err
	}
	return m.withPrefix(mapped, opts.Prefix), nil
}

// Remap deletes the persisted mapping for an id so the next Map call
// recomputes it.
func (m *Mapper) Remap(kind, id string) error {
	return m.store.Delete(store.TableNameMap, mapKey(kind, id))
}

// disambiguate composes name + "_" + id-character suffix, growing the
// suffix until the result is unique within the kind's namespace. The
// name part shrinks as the suffix grows so the result never exceeds
// MaxLength. Running out of id characters is accepted with a log line
// rather than failed.
func (m *Mapper) disambiguate(kind, id, name, purged string) string {
	suffixLen := minSuffixLen
	for {
		suffix := "_" + truncate(purged, suffixLen)
		candidate := truncate(name, MaxLength-len(suffix)) + suffix
		if !m.nameTaken(kind, id, candidate) {
			return candidate
		}
		if suffixLen >= len(purged) {
			util.WithResource(kind, id).Warnf(
				"ran out of id characters disambiguating %q, accepting possible collision", candidate)
			return candidate
		}
		suffixLen++
	}
}

// nameTaken reports whether another id of the same kind already holds
// this name.
func (m *Mapper) nameTaken(kind, id, name string) bool {
	keys, err := m.store.Keys(store.TableNameMap)
	if err != nil {
		util.WithResource(kind, id).Warnf("name collision probe failed: %v", err)
		return false
	}
	prefix := kind + ":"
	self := mapKey(kind, id)
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) || k == self {
			continue
		}
		fields, err := m.store.Get(store.TableNameMap, k)
		if err != nil {
			continue
		}
		if fields["name"] == name {
			return true
		}
	}
	return false
}

func (m *Mapper) withPrefix(name, prefix string) string {
	if prefix == "" {
		prefix = m.prefix
	}
	if prefix == "" {
		return name
	}
	return truncate(prefix+name, MaxLength)
}

func mapKey(kind, id string) string {
	return kind + ":" + id
}

// purgeID collapses a dashed id into a compact character string.
func purgeID(id string) string {
	return strings.ReplaceAll(id, "-", "")
}

// truncate returns at most length leading characters. A negative length
// yields the empty string, never a panic.
func truncate(s string, length int) string {
	if length <= 0 {
		return ""
	}
	if len(s) <= length {
		return s
	}
	return s[:length]
}
