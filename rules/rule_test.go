package rules

import (
	"errors"
	"testing"

	"github.com/hostacl/hostacl/restr"
	"github.com/stretchr/testify/require"
)

func TestParseRule(t *testing.T) {
	tcs := []struct {
		name   string
		line   string
		kind   Kind
		user   string
		source string
	}{
		{"with from", "allow % from 192.168.1.0/24", Allow, "%", "192.168.1.0/24"},
		{"without from", "deny bob 10.0.0.5", Deny, "bob", "10.0.0.5"},
		{"shortcut", "allow root from localhost", Allow, "root", "localhost"},
		{"extra spaces", "  deny   %   from   all ", Deny, "%", "all"},
		{"user named from", "allow from from 10.0.0.1", Allow, "from", "10.0.0.1"},
		{"user named from short", "allow from 10.0.0.1", Allow, "from", "10.0.0.1"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			rule, err := ParseRule(tc.line)
			require.NoError(t, err)
			require.Equal(t, tc.kind, rule.Kind)
			require.Equal(t, tc.user, rule.User.String())
			require.Equal(t, tc.source, rule.Source)
			require.Equal(t, tc.line, rule.String())
		})
	}
}

func TestParseRuleInvalid(t *testing.T) {
	for _, line := range []string{
		"",
		"allow",
		"allow %",
		"allow % from",
		"permit % from all",
		"Allow % from all",
		"allow % from 10.0.0.1 10.0.0.2",
	} {
		t.Run(line, func(t *testing.T) {
			_, err := ParseRule(line)
			require.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}

func TestParseRuleKeepsKindAndUser(t *testing.T) {
	tcs := []struct {
		line string
		kind Kind
		user string
	}{
		{"allow", Allow, "%"},
		{"allow bob", Allow, "bob"},
		{"allow % from", Allow, "%"},
		{"deny bob from 10.0.0.0/8 trailing", Deny, "bob"},
		{"permit bob from all", UnknownKind, "bob"},
	}

	for _, tc := range tcs {
		t.Run(tc.line, func(t *testing.T) {
			rule, err := ParseRule(tc.line)
			require.ErrorIs(t, err, ErrInvalidRule)
			require.Equal(t, tc.kind, rule.Kind)
			require.Equal(t, restr.ParseUser(tc.user), rule.User)
			require.Equal(t, tc.line, rule.Line)
			require.Empty(t, rule.Source)
		})
	}
}

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]string{
		"allow % from all",
		"nonsense",
		"deny bob from 10.0.0.1",
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidRule))
	require.Contains(t, err.Error(), "rule at 1")

	require.Len(t, rules, 3)
	require.NoError(t, rules[0].Err)
	require.Error(t, rules[1].Err)
	require.Equal(t, "nonsense", rules[1].Line)
	require.Equal(t, UnknownKind, rules[1].Kind)
	require.NoError(t, rules[2].Err)

	rules, err = ParseRules(nil)
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestNew(t *testing.T) {
	rule := New(Deny, "%", "10.0.0.0/8")
	require.Equal(t, "deny % from 10.0.0.0/8", rule.Line)

	parsed, err := ParseRule(rule.Line)
	require.NoError(t, err)
	require.Equal(t, rule, parsed)
}

func TestKindText(t *testing.T) {
	var k Kind
	require.NoError(t, k.UnmarshalText([]byte("deny")))
	require.Equal(t, Deny, k)
	require.Error(t, k.UnmarshalText([]byte("maybe")))

	b, err := Allow.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "allow", string(b))
}
