package addrc

import (
	"cmp"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

var ErrInvalidAddress = errors.New("invalid address")

type Family struct{ string }

var (
	Unknown = Family{}
	V4      = Family{"v4"}
	V6      = Family{"v6"}
)

// FamilyOf guesses the family from syntax alone: a colon means v6, anything else non-empty v4.
// It only picks the parser, the text still has to be parsed.
func FamilyOf(s string) Family {
	switch {
	case s == "":
		return Unknown
	case strings.Contains(s, ":"):
		return V6
	default:
		return V4
	}
}

func ParseFamily(s string) (Family, error) {
	switch s {
	case V4.string:
		return V4, nil
	case V6.string:
		return V6, nil
	}
	return Unknown, fmt.Errorf("invalid address family '%s'", s)
}

// Bits is the address width, 32 or 128.
func (f Family) Bits() int {
	switch f {
	case V4:
		return 32
	case V6:
		return 128
	default:
		return 0
	}
}

// Components is the number of positional components: 4 octets or 8 groups.
func (f Family) Components() int {
	switch f {
	case V4:
		return 4
	case V6:
		return 8
	default:
		return 0
	}
}

func (f Family) String() string {
	return f.string
}

func (f Family) MarshalText() ([]byte, error) {
	return []byte(f.string), nil
}

func (f *Family) UnmarshalText(b []byte) error {
	family, err := ParseFamily(string(b))
	if err != nil {
		return err
	}
	*f = family
	return nil
}

// Addr is a parsed address held as a big-endian unsigned integer.
// The high word is always zero for v4 and the low word never exceeds 32 bits.
type Addr struct {
	family Family
	hi, lo uint64
}

func Parse(s string) (Addr, error) {
	family := FamilyOf(s)
	if family == Unknown {
		return Addr{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	ip, err := netip.ParseAddr(s)
	if err != nil {
		return Addr{}, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if ip.Zone() != "" {
		return Addr{}, fmt.Errorf("%w: zoned address '%s'", ErrInvalidAddress, s)
	}

	switch {
	case family == V4 && ip.Is4():
		return FromNetIP(ip), nil
	case family == V6 && ip.Is6():
		return FromNetIP(ip), nil
	default:
		return Addr{}, fmt.Errorf("%w: '%s' is not %s", ErrInvalidAddress, s, family)
	}
}

func MustParse(s string) Addr {
	addr, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// FromNetIP keeps the family of ip as is, v4-mapped v6 addresses stay v6.
func FromNetIP(ip netip.Addr) Addr {
	switch {
	case ip.Is4():
		b := ip.As4()
		return Addr{family: V4, lo: uint64(binary.BigEndian.Uint32(b[:]))}
	case ip.Is6():
		b := ip.As16()
		return Addr{
			family: V6,
			hi:     binary.BigEndian.Uint64(b[:8]),
			lo:     binary.BigEndian.Uint64(b[8:]),
		}
	default:
		return Addr{}
	}
}

func (a Addr) Family() Family {
	return a.family
}

func (a Addr) IsValid() bool {
	return a.family != Unknown
}

// Compare orders by family first (v4 before v6), then numerically.
// Within a family this is the order of the zero-padded hex form.
func (a Addr) Compare(o Addr) int {
	if a.family != o.family {
		return cmp.Compare(a.family.Bits(), o.family.Bits())
	}
	if c := cmp.Compare(a.hi, o.hi); c != 0 {
		return c
	}
	return cmp.Compare(a.lo, o.lo)
}

// Equal compares in constant time with respect to the address value.
func (a Addr) Equal(o Addr) bool {
	if a.family != o.family {
		return false
	}
	return subtle.ConstantTimeCompare(a.Bytes(), o.Bytes()) == 1
}

// Bytes is the network order form, 4 bytes for v4 and 16 for v6.
func (a Addr) Bytes() []byte {
	switch a.family {
	case V4:
		return binary.BigEndian.AppendUint32(nil, uint32(a.lo))
	case V6:
		b := binary.BigEndian.AppendUint64(make([]byte, 0, 16), a.hi)
		return binary.BigEndian.AppendUint64(b, a.lo)
	default:
		return nil
	}
}

// Hex is the zero-padded lowercase hex form, 8 or 32 digits.
func (a Addr) Hex() string {
	switch a.family {
	case V4:
		return fmt.Sprintf("%08x", a.lo)
	case V6:
		return fmt.Sprintf("%016x%016x", a.hi, a.lo)
	default:
		return ""
	}
}

// Component returns the i-th octet (v4) or group (v6), counted from the left.
func (a Addr) Component(i int) uint16 {
	switch a.family {
	case V4:
		return uint16(a.lo>>(8*(3-i))) & 0xff
	case V6:
		if i < 4 {
			return uint16(a.hi >> (16 * (3 - i)))
		}
		return uint16(a.lo >> (16 * (7 - i)))
	default:
		return 0
	}
}

func (a Addr) Components() []uint16 {
	cs := make([]uint16, a.family.Components())
	for i := range cs {
		cs[i] = a.Component(i)
	}
	return cs
}

// FillHost sets the low flexbits bits, giving the last address of a block starting at a.
func (a Addr) FillHost(flexbits int) Addr {
	flexbits = min(max(flexbits, 0), a.family.Bits())
	hi, lo := onesMask(flexbits)
	a.hi |= hi
	a.lo |= lo
	return a
}

func (a Addr) NetIP() netip.Addr {
	switch a.family {
	case V4:
		return netip.AddrFrom4([4]byte(a.Bytes()))
	case V6:
		return netip.AddrFrom16([16]byte(a.Bytes()))
	default:
		return netip.Addr{}
	}
}

func (a Addr) String() string {
	if !a.IsValid() {
		return "invalid"
	}
	return a.NetIP().String()
}

func (a Addr) MarshalText() ([]byte, error) {
	if !a.IsValid() {
		return []byte{}, nil
	}
	return []byte(a.String()), nil
}

func (a *Addr) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*a = Addr{}
		return nil
	}
	addr, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

func onesMask(n int) (hi, lo uint64) {
	switch {
	case n <= 0:
		return 0, 0
	case n < 64:
		return 0, 1<<n - 1
	case n == 64:
		return 0, ^uint64(0)
	case n < 128:
		return 1<<(n-64) - 1, ^uint64(0)
	default:
		return ^uint64(0), ^uint64(0)
	}
}
