package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hostacl/hostacl/restr"
)

var ErrInvalidRule = errors.New("invalid rule")

type Kind struct{ string }

var (
	UnknownKind = Kind{}
	Allow       = Kind{"allow"}
	Deny        = Kind{"deny"}
)

func ParseKind(s string) (Kind, error) {
	switch s {
	case Allow.string:
		return Allow, nil
	case Deny.string:
		return Deny, nil
	}
	return UnknownKind, fmt.Errorf("invalid rule kind '%s'", s)
}

func (k Kind) String() string {
	return k.string
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.string), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	kind, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// Rule is a single configured line. Source is the address pattern or shortcut name, it is only
// turned into a pattern by the engine, which knows the server address.
//
// A rule that failed to parse keeps its Line and carries Err, it never matches.
type Rule struct {
	Kind   Kind
	User   restr.User
	Source string
	Line   string
	Err    error
}

func New(kind Kind, user string, source string) Rule {
	return Rule{
		Kind:   kind,
		User:   restr.ParseUser(user),
		Source: source,
		Line:   fmt.Sprintf("%s %s from %s", kind, user, source),
	}
}

// ParseRule parses "<kind> <user> [from] <pattern>".
//
// On error the returned rule still carries the line and whatever kind and user could be read,
// a missing user reads as the wildcard.
func ParseRule(line string) (Rule, error) {
	fields := strings.Fields(line)
	partial := Rule{User: restr.ParseUser(restr.Wildcard), Line: line}
	var kindErr error
	if len(fields) > 0 {
		partial.Kind, kindErr = ParseKind(fields[0])
	}
	if len(fields) > 1 {
		partial.User = restr.ParseUser(fields[1])
	}

	if len(fields) < 3 {
		return partial, fmt.Errorf("%w '%s': expected '<allow|deny> <user> [from] <pattern>'", ErrInvalidRule, line)
	}
	if kindErr != nil {
		return partial, fmt.Errorf("%w '%s': %w", ErrInvalidRule, line, kindErr)
	}

	source := fields[2:]
	if source[0] == "from" {
		source = source[1:]
	}
	switch len(source) {
	case 0:
		return partial, fmt.Errorf("%w '%s': missing pattern", ErrInvalidRule, line)
	case 1:
	default:
		return partial, fmt.Errorf("%w '%s': unexpected '%s'", ErrInvalidRule, line, strings.Join(source[1:], " "))
	}

	return Rule{
		Kind:   partial.Kind,
		User:   partial.User,
		Source: source[0],
		Line:   line,
	}, nil
}

// ParseRules keeps every line, in order, so indexes match the configuration.
// Lines that fail to parse are returned with Err set, and all failures are joined in the error.
func ParseRules(lines []string) ([]Rule, error) {
	rules := make([]Rule, len(lines))
	var errs []error
	for i, line := range lines {
		rule, err := ParseRule(line)
		if err != nil {
			rule.Err = err
			errs = append(errs, fmt.Errorf("rule at %d: %w", i, err))
		}
		rules[i] = rule
	}
	return rules, errors.Join(errs...)
}

func (r Rule) String() string {
	return r.Line
}
