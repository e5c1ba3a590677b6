package restr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hostacl/hostacl/addrc"
)

var ErrInvalidPattern = errors.New("invalid pattern")

type Kind struct{ string }

var (
	UnknownKind = Kind{}
	Exact       = Kind{"exact"}
	Range       = Kind{"range"}
	CIDR        = Kind{"cidr"}
)

func (k Kind) String() string {
	return k.string
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.string), nil
}

// Pattern is an address pattern, parsed once.
//
// Every kind is evaluated as bounds:
//   - exact: first == last == the address
//   - range: first and last differ in the ranged component only, bounds apply per component
//   - cidr:  first is the base as written (not masked to the network), last has the host bits set
type Pattern struct {
	kind  Kind
	text  string
	first addrc.Addr
	last  addrc.Addr

	bits      int // cidr prefix length
	component int // ranged component position, -1 for other kinds
}

// ParsePattern detects the pattern syntax: a '/' selects cidr, a '[' selects range, anything else
// must be a literal address.
func ParsePattern(s string) (Pattern, error) {
	switch {
	case s == "":
		return Pattern{}, fmt.Errorf("%w: empty", ErrInvalidPattern)
	case strings.Contains(s, "/"):
		return parseCIDR(s)
	case strings.ContainsAny(s, "[]"):
		return parseRange(s)
	default:
		addr, err := addrc.Parse(s)
		if err != nil {
			return Pattern{}, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
		}
		return Pattern{kind: Exact, text: s, first: addr, last: addr, component: -1}, nil
	}
}

func MustParsePattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

func parseCIDR(s string) (Pattern, error) {
	baseStr, bitsStr, _ := strings.Cut(s, "/")
	base, err := addrc.Parse(baseStr)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: cidr base: %w", ErrInvalidPattern, err)
	}

	bits, err := strconv.ParseUint(bitsStr, 10, 8)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: cidr prefix length '%s'", ErrInvalidPattern, bitsStr)
	}
	width := base.Family().Bits()
	if int(bits) > width {
		return Pattern{}, fmt.Errorf("%w: cidr prefix length %d exceeds %d", ErrInvalidPattern, bits, width)
	}

	return Pattern{
		kind:      CIDR,
		text:      s,
		first:     base,
		last:      base.FillHost(width - int(bits)),
		bits:      int(bits),
		component: -1,
	}, nil
}

func parseRange(s string) (Pattern, error) {
	lb, rb := strings.IndexByte(s, '['), strings.IndexByte(s, ']')
	switch {
	case lb < 0 || rb < lb:
		return Pattern{}, fmt.Errorf("%w: unbalanced range in '%s'", ErrInvalidPattern, s)
	case strings.Count(s, "[") > 1 || strings.Count(s, "]") > 1:
		return Pattern{}, fmt.Errorf("%w: only one ranged component allowed in '%s'", ErrInvalidPattern, s)
	}

	family := addrc.FamilyOf(s)
	sep, base, bitSize := byte('.'), 10, 8
	if family == addrc.V6 {
		sep, base, bitSize = ':', 16, 16
	}
	if (lb > 0 && s[lb-1] != sep) || (rb < len(s)-1 && s[rb+1] != sep) {
		return Pattern{}, fmt.Errorf("%w: range must cover a whole component in '%s'", ErrInvalidPattern, s)
	}

	loStr, hiStr, ok := strings.Cut(s[lb+1:rb], "-")
	if !ok {
		return Pattern{}, fmt.Errorf("%w: range needs lo-hi in '%s'", ErrInvalidPattern, s)
	}
	lo, err := strconv.ParseUint(loStr, base, bitSize)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: range low bound '%s'", ErrInvalidPattern, loStr)
	}
	hi, err := strconv.ParseUint(hiStr, base, bitSize)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: range high bound '%s'", ErrInvalidPattern, hiStr)
	}

	substitute := func(v uint64) (addrc.Addr, error) {
		addr, err := addrc.Parse(s[:lb] + strconv.FormatUint(v, base) + s[rb+1:])
		if err != nil {
			return addrc.Addr{}, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
		}
		return addr, nil
	}

	first, err := substitute(lo)
	if err != nil {
		return Pattern{}, err
	}
	last, err := substitute(hi)
	if err != nil {
		return Pattern{}, err
	}

	// probe with two distinct values to locate the component, even when lo == hi
	// or when '::' shifts the position
	probe, err := substitute(lo ^ 1)
	if err != nil {
		return Pattern{}, err
	}
	component := -1
	for i := 0; i < family.Components(); i++ {
		if first.Component(i) != probe.Component(i) {
			component = i
		}
	}

	return Pattern{
		kind:      Range,
		text:      s,
		first:     first,
		last:      last,
		component: component,
	}, nil
}

func (p Pattern) Kind() Kind {
	return p.kind
}

func (p Pattern) Family() addrc.Family {
	return p.first.Family()
}

func (p Pattern) IsValid() bool {
	return p.kind != UnknownKind
}

// Bounds are the first and last addresses the pattern evaluates against.
func (p Pattern) Bounds() (addrc.Addr, addrc.Addr) {
	return p.first, p.last
}

// PrefixLen is the cidr prefix length, -1 for other kinds.
func (p Pattern) PrefixLen() int {
	if p.kind != CIDR {
		return -1
	}
	return p.bits
}

// RangeComponent is the position and bounds of the ranged component.
func (p Pattern) RangeComponent() (int, uint16, uint16) {
	if p.kind != Range || p.component < 0 {
		return -1, 0, 0
	}
	return p.component, p.first.Component(p.component), p.last.Component(p.component)
}

// Matches never fails: addresses of another family, or an invalid pattern, do not match.
func (p Pattern) Matches(addr addrc.Addr) bool {
	if !p.IsValid() || !addr.IsValid() || p.Family() != addr.Family() {
		return false
	}

	switch p.kind {
	case Exact:
		return p.first.Equal(addr)
	case Range:
		for i := 0; i < addr.Family().Components(); i++ {
			c := addr.Component(i)
			if c < p.first.Component(i) || c > p.last.Component(i) {
				return false
			}
		}
		return true
	case CIDR:
		return p.first.Compare(addr) <= 0 && addr.Compare(p.last) <= 0
	default:
		return false
	}
}

func (p Pattern) String() string {
	return p.text
}

func (p Pattern) MarshalText() ([]byte, error) {
	return []byte(p.text), nil
}

func (p *Pattern) UnmarshalText(b []byte) error {
	pattern, err := ParsePattern(string(b))
	if err != nil {
		return err
	}
	*p = pattern
	return nil
}
