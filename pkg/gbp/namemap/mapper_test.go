package namemap

import (
	"errors"
	"strings"
	"testing"

	"github.com/stackforge/group-based-policy/pkg/gbp/store"
)

func staticName(name string) NameFunc {
	return func() (string, error) { return name, nil }
}

func TestMapIdempotent(t *testing.T) {
	m := New(store.NewMemory(), StrategyUUID)
	first, err := m.Map("network", "abcd-1234-ef", Opts{Name: staticName("web")})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		again, err := m.Map("network", "abcd-1234-ef", Opts{Name: staticName("web")})
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("call %d returned %q, first returned %q", i, again, first)
		}
	}
}

func TestMapCachedNameSurvivesNameChange(t *testing.T) {
	m := New(store.NewMemory(), StrategyUUID)
	first, _ := m.Map("network", "abcd-1234", Opts{Name: staticName("old")})
	again, _ := m.Map("network", "abcd-1234", Opts{Name: staticName("renamed")})
	if again != first {
		t.Errorf("cached mapping must win: got %q, want %q", again, first)
	}
}

func TestRemapRecomputes(t *testing.T) {
	m := New(store.NewMemory(), StrategyUUID)
	first, _ := m.Map("network", "abcd-1234", Opts{Name: staticName("old")})
	remapped, err := m.Map("network", "abcd-1234", Opts{Name: staticName("renamed"), Remap: true})
	if err != nil {
		t.Fatal(err)
	}
	if remapped == first {
		t.Errorf("remap should recompute, still got %q", first)
	}
	if !strings.HasPrefix(remapped, "renamed_") {
		t.Errorf("remapped = %q", remapped)
	}
}

func TestRemapOperation(t *testing.T) {
	st := store.NewMemory()
	m := New(st, StrategyUUID)
	m.Map("network", "abcd-1234", Opts{Name: staticName("web")})
	if err := m.Remap("network", "abcd-1234"); err != nil {
		t.Fatal(err)
	}
	ok, _ := st.Exists(store.TableNameMap, "network:abcd-1234")
	if ok {
		t.Error("mapping should be deleted after Remap")
	}
}

func TestUUIDStrategySuffix(t *testing.T) {
	m := New(store.NewMemory(), StrategyUUID)
	got, err := m.Map("network", "abcd-1234-ef", Opts{Name: staticName("web")})
	if err != nil {
		t.Fatal(err)
	}
	if got != "web_abcd1" {
		t.Errorf("Map = %q, want web_abcd1", got)
	}
}

func TestCollisionAvoidance(t *testing.T) {
	m := New(store.NewMemory(), StrategyUUID)
	// same human name, ids sharing the first five purged characters
	first, _ := m.Map("network", "abcde-111", Opts{Name: staticName("web")})
	second, err := m.Map("network", "abcde-222", Opts{Name: staticName("web")})
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Errorf("collision not avoided: both mapped to %q", first)
	}
}

func TestCollisionExhaustionAccepted(t *testing.T) {
	m := New(store.NewMemory(), StrategyUUID)
	first, _ := m.Map("network", "abcde", Opts{Name: staticName("web")})
	// identical purged prefix and no characters left to append
	second, err := m.Map("network", "ab-cde", Opts{Name: staticName("web")})
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Errorf("exhaustion should accept the collision, got %q vs %q", second, first)
	}
}

func TestNameStrategy(t *testing.T) {
	m := New(store.NewMemory(), StrategyName)
	got, _ := m.Map("network", "abcd-1234", Opts{Name: staticName("web-frontend")})
	if got != "web-frontend" {
		t.Errorf("Map = %q", got)
	}
	// two ids with the same name collide by design under use_name
	other, _ := m.Map("network", "ffff-0000", Opts{Name: staticName("web-frontend")})
	if other != got {
		t.Errorf("use_name should not disambiguate: %q vs %q", other, got)
	}
}

func TestNoNameFallsBackToID(t *testing.T) {
	m := New(store.NewMemory(), StrategyUUID)
	got, _ := m.Map("network", "abcd-1234-ef00", Opts{})
	if got != "abcd1234ef00" {
		t.Errorf("Map = %q, want dash-collapsed id", got)
	}
}

func TestNameFuncErrorFallsBack(t *testing.T) {
	m := New(store.NewMemory(), StrategyUUID)
	failing := func() (string, error) { return "", errors.New("backend down") }
	got, err := m.Map("network", "abcd-1234", Opts{Name: failing})
	if err != nil {
		t.Fatalf("name callback errors must not propagate: %v", err)
	}
	if got != "abcd1234" {
		t.Errorf("Map = %q, want id fallback", got)
	}
}

func TestWhitespaceStripped(t *testing.T) {
	m := New(store.NewMemory(), StrategyUUID)
	got, _ := m.Map("network", "abcd-1234", Opts{Name: staticName("my web  tier")})
	if strings.ContainsAny(got, " \t") {
		t.Errorf("mapped name contains whitespace: %q", got)
	}
}

func TestPrefixAppliedAfterPersistence(t *testing.T) {
	st := store.NewMemory()
	m := New(st, StrategyUUID)
	got, _ := m.Map("network", "abcd-1234", Opts{Name: staticName("web"), Prefix: "prj-"})
	if !strings.HasPrefix(got, "prj-web") {
		t.Errorf("Map = %q", got)
	}
	cached, _ := st.Get(store.TableNameMap, "network:abcd-1234")
	if strings.HasPrefix(cached["name"], "prj-") {
		t.Errorf("persisted name must stay prefix-free, got %q", cached["name"])
	}
	// same id without prefix returns the bare cached name
	bare, _ := m.Map("network", "abcd-1234", Opts{Name: staticName("web")})
	if bare != "web_abcd1" {
		t.Errorf("bare = %q", bare)
	}
}

func TestDefaultPrefix(t *testing.T) {
	st := store.NewMemory()
	m := NewPrefixed(st, StrategyUUID, "prj-")
	got, _ := m.Map("network", "abcd-1234", Opts{Name: staticName("web")})
	if !strings.HasPrefix(got, "prj-web") {
		t.Errorf("Map = %q", got)
	}
	cached, _ := st.Get(store.TableNameMap, "network:abcd-1234")
	if strings.HasPrefix(cached["name"], "prj-") {
		t.Errorf("persisted name must stay prefix-free, got %q", cached["name"])
	}
	// a per-call prefix wins over the constructor's
	call, _ := m.Map("network", "abcd-1234", Opts{Name: staticName("web"), Prefix: "x-"})
	if !strings.HasPrefix(call, "x-web") {
		t.Errorf("per-call prefix: Map = %q", call)
	}
}

func TestLongPrefixStillBounded(t *testing.T) {
	m := New(store.NewMemory(), StrategyUUID)
	prefix := strings.Repeat("p", MaxLength+10)
	got, _ := m.Map("network", "abcd-1234", Opts{Name: staticName("web"), Prefix: prefix})
	if len(got) > MaxLength {
		t.Errorf("len = %d, want <= %d", len(got), MaxLength)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s      string
		length int
		want   string
	}{
		{"abcdef", 3, "abc"},
		{"abc", 10, "abc"},
		{"abc", 0, ""},
		{"abc", -5, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.s, tt.length); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.length, got, tt.want)
		}
	}
}
