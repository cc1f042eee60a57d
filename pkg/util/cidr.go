package util

import (
	"fmt"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"
)

// MustParseCIDR parses a CIDR string, panicking on error. For use with
// literals in tests and fixtures only.
func MustParseCIDR(s string) *net.IPNet {
	_, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return ipnet
}

// CIDROverlaps reports whether two CIDR blocks share any addresses.
func CIDROverlaps(a, b string) (bool, error) {
	_, netA, err := net.ParseCIDR(a)
	if err != nil {
		return false, fmt.Errorf("invalid CIDR %q: %w", a, err)
	}
	_, netB, err := net.ParseCIDR(b)
	if err != nil {
		return false, fmt.Errorf("invalid CIDR %q: %w", b, err)
	}
	return netA.Contains(netB.IP) || netB.Contains(netA.IP), nil
}

// CIDROverlapsAny reports whether the candidate CIDR overlaps any of the
// given CIDRs.
func CIDROverlapsAny(candidate string, existing []string) (bool, error) {
	for _, e := range existing {
		overlap, err := CIDROverlaps(candidate, e)
		if err != nil {
			return false, err
		}
		if overlap {
			return true, nil
		}
	}
	return false, nil
}

// ForEachSubnet enumerates the subnets of prefixLen carved out of pool, in
// address order, calling fn for each. Enumeration stops when fn returns
// false. Returns an error if prefixLen does not fit inside the pool.
func ForEachSubnet(pool string, prefixLen int, fn func(subnet *net.IPNet) bool) error {
	_, poolNet, err := net.ParseCIDR(pool)
	if err != nil {
		return fmt.Errorf("invalid pool CIDR %q: %w", pool, err)
	}
	poolLen, bits := poolNet.Mask.Size()
	if prefixLen < poolLen || prefixLen > bits {
		return fmt.Errorf("prefix length /%d does not fit in pool %s", prefixLen, pool)
	}
	newBits := prefixLen - poolLen
	count := 1 << uint(newBits)
	for i := 0; i < count; i++ {
		subnet, err := cidr.Subnet(poolNet, newBits, i)
		if err != nil {
			return err
		}
		if !fn(subnet) {
			return nil
		}
	}
	return nil
}

// FirstUsableIP returns the first host address of a CIDR block (network
// address + 1), conventionally used as the gateway.
func FirstUsableIP(cidrStr string) (string, error) {
	_, ipnet, err := net.ParseCIDR(cidrStr)
	if err != nil {
		return "", fmt.Errorf("invalid CIDR %q: %w", cidrStr, err)
	}
	first, _ := cidr.AddressRange(ipnet)
	return cidr.Inc(first).String(), nil
}

// LastUsableIP returns the last host address of a CIDR block (broadcast
// address - 1 for IPv4).
func LastUsableIP(cidrStr string) (string, error) {
	_, ipnet, err := net.ParseCIDR(cidrStr)
	if err != nil {
		return "", fmt.Errorf("invalid CIDR %q: %w", cidrStr, err)
	}
	_, last := cidr.AddressRange(ipnet)
	return cidr.Dec(last).String(), nil
}

// PrevIP returns the address immediately before ip.
func PrevIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	return cidr.Dec(parsed).String()
}

// NextIP returns the address immediately after ip.
func NextIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	return cidr.Inc(parsed).String()
}
