// Property-based tests for the name mapper invariants: length bound,
// idempotence, and collision avoidance under the uuid strategy.
package namemap

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/stackforge/group-based-policy/pkg/gbp/store"
)

// TestProperty_TruncationBound verifies that for any input name and id,
// the mapped name never exceeds MaxLength.
func TestProperty_TruncationBound(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("mapped name length is bounded", prop.ForAll(
		func(name string, idSeed int64, prefixLen int) bool {
			m := New(store.NewMemory(), StrategyUUID)
			id := fmt.Sprintf("%016x-%016x", idSeed, idSeed>>1)
			prefix := ""
			for i := 0; i < prefixLen; i++ {
				prefix += "p"
			}
			mapped, err := m.Map("network", id, Opts{
				Name:   staticName(name),
				Prefix: prefix,
			})
			if err != nil {
				t.Logf("Map failed: %v", err)
				return false
			}
			if len(mapped) > MaxLength {
				t.Logf("len(%q) = %d > %d", mapped, len(mapped), MaxLength)
				return false
			}
			return true
		},
		gen.AlphaString(),
		gen.Int64Range(1, 1<<62),
		gen.IntRange(0, 60),
	))

	properties.TestingRun(t)
}

// TestProperty_MapIdempotent verifies that repeated Map calls for the
// same id return the same name.
func TestProperty_MapIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated Map calls are stable", prop.ForAll(
		func(name string, idSeed int64) bool {
			m := New(store.NewMemory(), StrategyUUID)
			id := fmt.Sprintf("%016x", idSeed)
			first, err := m.Map("group", id, Opts{Name: staticName(name)})
			if err != nil {
				return false
			}
			for i := 0; i < 3; i++ {
				again, err := m.Map("group", id, Opts{Name: staticName(name)})
				if err != nil || again != first {
					t.Logf("call %d: %q vs %q (err=%v)", i, again, first, err)
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
		gen.Int64Range(1, 1<<62),
	))

	properties.TestingRun(t)
}

// TestProperty_CollisionAvoidance verifies that two distinct ids sharing
// a human name map to distinct names whenever the ids differ within the
// characters available for disambiguation.
func TestProperty_CollisionAvoidance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("same name, different ids map to different names", prop.ForAll(
		func(name string, a int64, b int64) bool {
			if a == b {
				return true
			}
			if name == "" {
				// no human name means id-derived names, distinct by construction
				return true
			}
			m := New(store.NewMemory(), StrategyUUID)
			idA := fmt.Sprintf("%016x", a)
			idB := fmt.Sprintf("%016x", b)
			first, err := m.Map("network", idA, Opts{Name: staticName(name)})
			if err != nil {
				return false
			}
			second, err := m.Map("network", idB, Opts{Name: staticName(name)})
			if err != nil {
				return false
			}
			if first == second {
				t.Logf("collision: %q == %q for ids %s, %s", first, second, idA, idB)
				return false
			}
			return true
		},
		gen.AlphaString(),
		gen.Int64Range(1, 1<<62),
		gen.Int64Range(1, 1<<62),
	))

	properties.TestingRun(t)
}
