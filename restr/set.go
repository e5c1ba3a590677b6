package restr

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/hostacl/hostacl/addrc"
)

// Set is an unordered group of patterns, used where any match is enough (e.g. trusted proxies).
type Set []Pattern

// ParseSet parses a slice of patterns in any of the exact, range or cidr syntaxes.
func ParseSet(strs []string) (Set, error) {
	set := make(Set, len(strs))
	for i, str := range strs {
		p, err := ParsePattern(str)
		if err != nil {
			return nil, fmt.Errorf("pattern at %d: %w", i, err)
		}
		set[i] = p
	}
	return set, nil
}

func (s Set) IsEmpty() bool {
	return len(s) == 0
}

// Contains checks if addr matches any of the patterns.
func (s Set) Contains(addr addrc.Addr) bool {
	for _, p := range s {
		if p.Matches(addr) {
			return true
		}
	}
	return false
}

// ContainsAddr extracts the ip address from net.Addr and checks it, v4-mapped addresses are unmapped
func (s Set) ContainsAddr(addr net.Addr) bool {
	ip, ok := AddrOf(addr)
	if !ok {
		return false
	}
	return s.Contains(ip)
}

// AddrOf extracts the ip of a network address, unmapping v4-in-v6 as dual stack sockets report them.
func AddrOf(addr net.Addr) (addrc.Addr, bool) {
	var ip netip.Addr
	switch taddr := addr.(type) {
	case *net.UDPAddr:
		ip = taddr.AddrPort().Addr()
	case *net.TCPAddr:
		ip = taddr.AddrPort().Addr()
	case nil:
		return addrc.Addr{}, false
	default:
		naddr, err := netip.ParseAddrPort(addr.String())
		if err != nil {
			return addrc.Addr{}, false
		}
		ip = naddr.Addr()
	}
	if !ip.IsValid() || ip.Zone() != "" {
		return addrc.Addr{}, false
	}
	return addrc.FromNetIP(ip.Unmap()), true
}
