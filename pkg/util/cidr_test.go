package util

import (
	"net"
	"testing"
)

func TestCIDROverlaps(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		want    bool
		wantErr bool
	}{
		{"identical", "10.0.0.0/24", "10.0.0.0/24", true, false},
		{"contained", "10.0.0.0/16", "10.0.1.0/24", true, false},
		{"contains", "10.0.1.0/24", "10.0.0.0/16", true, false},
		{"disjoint", "10.0.0.0/24", "10.0.1.0/24", false, false},
		{"disjoint wide", "10.0.0.0/8", "192.168.0.0/16", false, false},
		{"bad first", "not-a-cidr", "10.0.0.0/24", false, true},
		{"bad second", "10.0.0.0/24", "nope", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CIDROverlaps(tt.a, tt.b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CIDROverlaps(%q, %q) error = %v, wantErr %v", tt.a, tt.b, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("CIDROverlaps(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCIDROverlapsAny(t *testing.T) {
	existing := []string{"10.0.0.0/24", "10.0.2.0/24"}
	overlap, err := CIDROverlapsAny("10.0.2.128/25", existing)
	if err != nil {
		t.Fatal(err)
	}
	if !overlap {
		t.Error("expected overlap with 10.0.2.0/24")
	}
	overlap, err = CIDROverlapsAny("10.0.1.0/24", existing)
	if err != nil {
		t.Fatal(err)
	}
	if overlap {
		t.Error("expected no overlap")
	}
}

func TestForEachSubnet(t *testing.T) {
	var got []string
	err := ForEachSubnet("10.0.0.0/22", 24, func(subnet *net.IPNet) bool {
		got = append(got, subnet.String())
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"10.0.0.0/24", "10.0.1.0/24", "10.0.2.0/24", "10.0.3.0/24"}
	if len(got) != len(want) {
		t.Fatalf("got %d subnets, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("subnet %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestForEachSubnetStopsEarly(t *testing.T) {
	count := 0
	err := ForEachSubnet("10.0.0.0/8", 24, func(subnet *net.IPNet) bool {
		count++
		return count < 3
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("enumerated %d subnets, want 3", count)
	}
}

func TestForEachSubnetBadPrefix(t *testing.T) {
	err := ForEachSubnet("10.0.0.0/24", 16, func(subnet *net.IPNet) bool { return true })
	if err == nil {
		t.Error("expected error for prefix shorter than pool")
	}
}

func TestFirstLastUsableIP(t *testing.T) {
	first, err := FirstUsableIP("10.0.1.0/24")
	if err != nil {
		t.Fatal(err)
	}
	if first != "10.0.1.1" {
		t.Errorf("FirstUsableIP = %s, want 10.0.1.1", first)
	}
	last, err := LastUsableIP("10.0.1.0/24")
	if err != nil {
		t.Fatal(err)
	}
	if last != "10.0.1.254" {
		t.Errorf("LastUsableIP = %s, want 10.0.1.254", last)
	}
}

func TestPrevNextIP(t *testing.T) {
	if got := PrevIP("10.0.1.254"); got != "10.0.1.253" {
		t.Errorf("PrevIP = %s, want 10.0.1.253", got)
	}
	if got := NextIP("10.0.1.253"); got != "10.0.1.254" {
		t.Errorf("NextIP = %s, want 10.0.1.254", got)
	}
	if got := PrevIP("garbage"); got != "" {
		t.Errorf("PrevIP(garbage) = %q, want empty", got)
	}
}
