package hostacl

import (
	"fmt"
	"time"

	"github.com/hostacl/hostacl/auditc"
	"github.com/hostacl/hostacl/rules"
	"github.com/segmentio/ksuid"
)

type Reason struct{ string }

var (
	ReasonUnknownAddress = Reason{"unknown-client-address"}
	ReasonInvalidAddress = Reason{"invalid-client-address"}
	ReasonDenyMatched    = Reason{"deny-rule-matched"}
	ReasonAllowMatched   = Reason{"allow-rule-matched"}
	ReasonNoAllowRules   = Reason{"no-allow-rules"}
	ReasonNoAllowMatched = Reason{"no-allow-rule-matched"}
	ReasonNoRuleMatched  = Reason{"no-rule-matched"}
	ReasonInternalError  = Reason{"internal-error"}
)

func ParseReason(s string) (Reason, error) {
	for _, r := range []Reason{
		ReasonUnknownAddress, ReasonInvalidAddress,
		ReasonDenyMatched, ReasonAllowMatched,
		ReasonNoAllowRules, ReasonNoAllowMatched, ReasonNoRuleMatched,
		ReasonInternalError,
	} {
		if r.string == s {
			return r, nil
		}
	}
	return Reason{}, fmt.Errorf("unknown reason '%s'", s)
}

func (r Reason) String() string {
	return r.string
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.string), nil
}

func (r *Reason) UnmarshalText(b []byte) error {
	reason, err := ParseReason(string(b))
	if err != nil {
		return err
	}
	*r = reason
	return nil
}

// Request describes who is asking. An empty Addr means the client address is unknown.
// ServerAddr is the address the request arrived at, used by localnet rules when the guard
// has no server address configured.
type Request struct {
	User       string `json:"user"`
	Addr       string `json:"addr"`
	ServerAddr string `json:"server_addr,omitempty"`
}

type Decision struct {
	ID          ksuid.KSUID  `json:"id"`
	Time        time.Time    `json:"time"`
	Request     Request      `json:"request"`
	Allowed     bool         `json:"allowed"`
	Reason      Reason       `json:"reason"`
	Order       Order        `json:"order"`
	Allow       *rules.Match `json:"allow,omitempty"`
	Deny        *rules.Match `json:"deny,omitempty"`
	Fingerprint string       `json:"fingerprint"`
}

// Rule is the line of the rule that decided, empty when no single rule did.
func (d Decision) Rule() string {
	switch {
	case d.Reason == ReasonDenyMatched && d.Deny != nil:
		return d.Deny.Rule
	case d.Reason == ReasonAllowMatched && d.Allow != nil:
		return d.Allow.Rule
	}
	return ""
}

func (d Decision) Entry() auditc.Entry {
	return auditc.Entry{
		ID:          d.ID,
		Time:        d.Time,
		User:        d.Request.User,
		Addr:        d.Request.Addr,
		Allowed:     d.Allowed,
		Reason:      d.Reason.String(),
		Rule:        d.Rule(),
		Fingerprint: d.Fingerprint,
	}
}
