package hostacl

import "fmt"

// Order decides how allow and deny matches combine into a decision.
type Order struct{ string }

var (
	UnknownOrder = Order{}
	// Allowlist denies on any deny match, then requires an allow match only from users that
	// have allow rules.
	Allowlist = Order{"allowlist"}
	// DenyAllow starts allowed, a deny match forbids and an allow match permits again.
	DenyAllow = Order{"deny,allow"}
	// AllowDeny starts forbidden, an allow match permits and a deny match forbids again.
	AllowDeny = Order{"allow,deny"}
	// Explicit permits only when an allow rule matches and no deny rule does.
	Explicit = Order{"explicit"}
)

func ParseOrder(s string) (Order, error) {
	switch s {
	case Allowlist.string:
		return Allowlist, nil
	case DenyAllow.string:
		return DenyAllow, nil
	case AllowDeny.string:
		return AllowDeny, nil
	case Explicit.string:
		return Explicit, nil
	}
	return UnknownOrder, fmt.Errorf("invalid order '%s' (allowlist|deny,allow|allow,deny|explicit)", s)
}

func (o Order) String() string {
	return o.string
}

func (o Order) MarshalText() ([]byte, error) {
	return []byte(o.string), nil
}

func (o *Order) UnmarshalText(b []byte) error {
	order, err := ParseOrder(string(b))
	if err != nil {
		return err
	}
	*o = order
	return nil
}
