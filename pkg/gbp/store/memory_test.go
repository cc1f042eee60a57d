package store

import (
	"sort"
	"testing"
)

func TestMemorySetGet(t *testing.T) {
	s := NewMemory()
	if err := s.Set(TableNameMap, "l2_policy:abc", map[string]string{
		"name": "net_abc12", "strategy": "use_uuid",
	}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(TableNameMap, "l2_policy:abc")
	if err != nil {
		t.Fatal(err)
	}
	if got["name"] != "net_abc12" || got["strategy"] != "use_uuid" {
		t.Errorf("unexpected fields: %v", got)
	}
}

func TestMemoryGetMissing(t *testing.T) {
	s := NewMemory()
	got, err := s.Get(TableOwned, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty map for missing entry, got %v", got)
	}
}

func TestMemorySetReplacesFields(t *testing.T) {
	s := NewMemory()
	if err := s.Set(TableChainMap, "k", map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(TableChainMap, "k", map[string]string{"a": "3"}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(TableChainMap, "k")
	if _, ok := got["b"]; ok {
		t.Error("stale field survived Set")
	}
	if got["a"] != "3" {
		t.Errorf("a = %q, want 3", got["a"])
	}
}

func TestMemoryEmptyEntrySentinel(t *testing.T) {
	s := NewMemory()
	if err := s.Set(TableOwned, "subnet:s1", nil); err != nil {
		t.Fatal(err)
	}
	ok, err := s.Exists(TableOwned, "subnet:s1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("field-less entry should still exist")
	}
	got, _ := s.Get(TableOwned, "subnet:s1")
	if got["NULL"] != "NULL" {
		t.Errorf("expected NULL sentinel, got %v", got)
	}
}

func TestMemoryDelete(t *testing.T) {
	s := NewMemory()
	s.Set(TableOwned, "port:p1", nil)
	if err := s.Delete(TableOwned, "port:p1"); err != nil {
		t.Fatal(err)
	}
	ok, _ := s.Exists(TableOwned, "port:p1")
	if ok {
		t.Error("entry should be gone after Delete")
	}
	// deleting again is fine
	if err := s.Delete(TableOwned, "port:p1"); err != nil {
		t.Errorf("delete of missing entry: %v", err)
	}
}

func TestMemoryDeleteField(t *testing.T) {
	s := NewMemory()
	s.Set(TablePolicyIP, "k", map[string]string{"ip": "10.0.0.254", "subnet": "s1"})
	if err := s.DeleteField(TablePolicyIP, "k", "subnet"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(TablePolicyIP, "k")
	if _, ok := got["subnet"]; ok {
		t.Error("field should be gone")
	}
	if got["ip"] != "10.0.0.254" {
		t.Error("other fields must survive DeleteField")
	}
}

func TestMemoryKeys(t *testing.T) {
	s := NewMemory()
	s.Set(TableNameMap, "a", map[string]string{"x": "1"})
	s.Set(TableNameMap, "b", map[string]string{"x": "2"})
	s.Set(TableOwned, "c", nil)
	keys, err := s.Keys(TableNameMap)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys = %v, want [a b]", keys)
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	s := NewMemory()
	s.Set(TableNameMap, "k", map[string]string{"name": "orig"})
	got, _ := s.Get(TableNameMap, "k")
	got["name"] = "mutated"
	again, _ := s.Get(TableNameMap, "k")
	if again["name"] != "orig" {
		t.Error("Get must return a copy, not the internal map")
	}
}
