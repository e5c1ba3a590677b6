package rules

import (
	"log/slog"

	"github.com/hostacl/hostacl/addrc"
	"github.com/hostacl/hostacl/restr"
	"github.com/hostacl/hostacl/slogc"
)

type Config struct {
	Rules      []Rule
	ServerAddr string
	Logger     *slog.Logger
}

// Query asks for the first rule of Kind that applies to User and Addr.
// ServerAddr, when set, resolves the localnet shortcuts for this query only.
type Query struct {
	Kind       Kind
	User       string
	Addr       addrc.Addr
	ServerAddr string
}

type Match struct {
	Index int    `json:"index"`
	Kind  Kind   `json:"kind"`
	Rule  string `json:"rule"`
}

// Engine is an immutable, compiled rule list. It is safe for concurrent use.
type Engine struct {
	entries     []entry
	serverAddr  string
	fingerprint string
	invalid     int
	logger      *slog.Logger
}

type entry struct {
	rule     Rule
	pattern  restr.Pattern
	localnet int
	err      error
	invalid  bool
}

// NewEngine compiles every rule. Rules that cannot be compiled stay in place and never match,
// so one bad line does not disable the rest.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	shortcuts := NewShortcuts(cfg.ServerAddr)
	e := &Engine{
		entries:    make([]entry, len(cfg.Rules)),
		serverAddr: cfg.ServerAddr,
		logger:     logger.With("component", "rules"),
	}

	lines := make([]string, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		lines[i] = rule.Line

		ent := entry{rule: rule, err: rule.Err}
		if ent.err == nil {
			ent.localnet = localnetBits(rule.Source)
			ent.pattern, ent.err = shortcuts.Pattern(rule.Source)
		}
		// a localnet rule without a server address still matches queries that carry one
		ent.invalid = ent.err != nil && (ent.localnet == 0 || cfg.ServerAddr != "")
		switch {
		case ent.invalid:
			e.invalid++
			e.logger.Warn("invalid rule will never match", "index", i, "rule", rule.Line, "err", ent.err)
		case ent.err != nil:
			e.logger.Info("localnet rule matches only queries with a server address", "index", i, "rule", rule.Line)
		}
		e.entries[i] = ent
	}
	e.fingerprint = Fingerprint(lines)

	return e
}

// Evaluate is true when a rule of kind, for user, matches addr.
func (e *Engine) Evaluate(kind Kind, user string, addr addrc.Addr) bool {
	_, ok := e.Match(Query{Kind: kind, User: user, Addr: addr})
	return ok
}

// Match returns the first matching rule. Rules of another kind or user are skipped, and later
// rules are never consulted once a rule matched.
func (e *Engine) Match(q Query) (Match, bool) {
	for i, ent := range e.entries {
		if ent.rule.Err != nil || ent.rule.Kind != q.Kind {
			continue
		}
		if !ent.rule.User.IsAllowed(q.User) {
			continue
		}

		pattern, err := ent.pattern, ent.err
		if ent.localnet > 0 && q.ServerAddr != "" && q.ServerAddr != e.serverAddr {
			pattern, err = restr.ParsePattern(localnet(q.ServerAddr, ent.localnet))
		}
		if err != nil {
			slogc.Fine(e.logger, "skipping rule", "index", i, "rule", ent.rule.Line, "err", err)
			continue
		}

		if pattern.Matches(q.Addr) {
			return Match{Index: i, Kind: ent.rule.Kind, Rule: ent.rule.Line}, true
		}
	}
	return Match{}, false
}

// HasRules reports whether any rule of kind applies to user. Broken rules count too, and a line
// whose kind could not be read counts for both kinds, so a mistyped rule never widens access.
func (e *Engine) HasRules(kind Kind, user string) bool {
	for _, ent := range e.entries {
		ruleKind := ent.rule.Kind
		if ent.rule.Err != nil && ruleKind == UnknownKind {
			ruleKind = kind
		}
		if ruleKind == kind && ent.rule.User.IsAllowed(user) {
			return true
		}
	}
	return false
}

func (e *Engine) Rules() []Rule {
	rules := make([]Rule, len(e.entries))
	for i, ent := range e.entries {
		rules[i] = ent.rule
	}
	return rules
}

// Errors lists the problem of every rule that can never match, by index.
func (e *Engine) Errors() map[int]error {
	errs := map[int]error{}
	for i, ent := range e.entries {
		if ent.invalid {
			errs[i] = ent.err
		}
	}
	return errs
}

func (e *Engine) Len() int {
	return len(e.entries)
}

func (e *Engine) Invalid() int {
	return e.invalid
}

func (e *Engine) ServerAddr() string {
	return e.serverAddr
}

func (e *Engine) Fingerprint() string {
	return e.fingerprint
}
