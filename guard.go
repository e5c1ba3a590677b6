package hostacl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hostacl/hostacl/addrc"
	"github.com/hostacl/hostacl/auditc"
	"github.com/hostacl/hostacl/rules"
	"github.com/hostacl/hostacl/slogc"
	"github.com/hostacl/hostacl/statusc"
	"github.com/segmentio/ksuid"
)

var ErrNoOrder = errors.New("no access order configured")

// Policy is everything a decision depends on. It is replaced as a whole on reload.
type Policy struct {
	Order      Order
	Rules      []rules.Rule
	ServerAddr string
}

// Guard decides access for requests. Decide never blocks on a reload, it sees either the
// previous or the new policy in full.
type Guard struct {
	audit       auditc.Store
	logger      *slog.Logger
	rulesLogger *slog.Logger

	current atomic.Pointer[guardState]

	allowed        atomic.Uint64
	denied         atomic.Uint64
	reloads        atomic.Uint64
	reloadFailures atomic.Uint64
	auditFailures  atomic.Uint64

	reloadErr   error
	reloadErrMu sync.RWMutex
}

type guardState struct {
	policy   Policy
	engine   *rules.Engine
	loadedAt time.Time
}

func NewGuard(opts ...GuardOption) (*Guard, error) {
	cfg, err := newGuardConfig(opts)
	if err != nil {
		return nil, err
	}

	g := &Guard{
		audit:       cfg.audit,
		logger:      cfg.logger.With("component", "guard"),
		rulesLogger: cfg.logger,
	}
	state, err := g.compile(cfg.policy)
	if err != nil {
		return nil, err
	}
	g.current.Store(state)
	g.logger.Info("policy loaded", "order", state.policy.Order, "rules", state.engine.Len(),
		"invalid", state.engine.Invalid(), "fingerprint", state.engine.Fingerprint())
	return g, nil
}

func (g *Guard) compile(policy Policy) (*guardState, error) {
	if policy.Order == UnknownOrder {
		return nil, ErrNoOrder
	}
	if policy.ServerAddr != "" {
		if _, err := addrc.Parse(policy.ServerAddr); err != nil {
			return nil, fmt.Errorf("server address: %w", err)
		}
	}

	return &guardState{
		policy: policy,
		engine: rules.NewEngine(rules.Config{
			Rules:      policy.Rules,
			ServerAddr: policy.ServerAddr,
			Logger:     g.rulesLogger,
		}),
		loadedAt: time.Now(),
	}, nil
}

// Reload swaps in a new policy. On error the current policy stays in effect.
func (g *Guard) Reload(policy Policy) error {
	state, err := g.compile(policy)
	if err != nil {
		g.ReloadFailed(err)
		return err
	}

	g.reloadErrMu.Lock()
	g.reloadErr = nil
	g.reloadErrMu.Unlock()

	old := g.current.Swap(state)
	g.reloads.Add(1)
	g.logger.Info("policy reloaded", "order", state.policy.Order, "rules", state.engine.Len(),
		"invalid", state.engine.Invalid(), "fingerprint", state.engine.Fingerprint(),
		"previous", old.engine.Fingerprint())
	return nil
}

// ReloadFailed records a reload that failed before a policy could be built, for example when the
// configuration cannot be read. The current policy stays in effect.
func (g *Guard) ReloadFailed(err error) {
	g.reloadErrMu.Lock()
	g.reloadErr = err
	g.reloadErrMu.Unlock()

	g.reloadFailures.Add(1)
	g.logger.Warn("reload failed, keeping current policy", "err", err)
}

func (g *Guard) Policy() Policy {
	return g.current.Load().policy
}

func (g *Guard) Engine() *rules.Engine {
	return g.current.Load().engine
}

// Decide never fails, anything that prevents a decision denies.
func (g *Guard) Decide(req Request) (d Decision) {
	state := g.current.Load()
	d = Decision{
		ID:          ksuid.New(),
		Time:        time.Now(),
		Request:     req,
		Order:       state.policy.Order,
		Fingerprint: state.engine.Fingerprint(),
	}

	defer func() {
		if v := recover(); v != nil {
			g.logger.Error("decision failed", "id", d.ID, "panic", v)
			d.Allowed, d.Reason, d.Allow, d.Deny = false, ReasonInternalError, nil, nil
		}
		g.complete(d)
	}()

	d.Allowed, d.Reason = decide(state, req, &d)
	return d
}

func decide(state *guardState, req Request, d *Decision) (bool, Reason) {
	text := strings.TrimSpace(req.Addr)
	if text == "" {
		return false, ReasonUnknownAddress
	}
	addr, err := addrc.Parse(text)
	if err != nil {
		return false, ReasonInvalidAddress
	}

	q := rules.Query{User: req.User, Addr: addr}
	if state.policy.ServerAddr == "" {
		q.ServerAddr = req.ServerAddr
	}

	q.Kind = rules.Allow
	if m, ok := state.engine.Match(q); ok {
		d.Allow = &m
	}
	q.Kind = rules.Deny
	if m, ok := state.engine.Match(q); ok {
		d.Deny = &m
	}
	allowed, denied := d.Allow != nil, d.Deny != nil

	switch state.policy.Order {
	case Allowlist:
		switch {
		case denied:
			return false, ReasonDenyMatched
		case !state.engine.HasRules(rules.Allow, req.User):
			return true, ReasonNoAllowRules
		case allowed:
			return true, ReasonAllowMatched
		}
		return false, ReasonNoAllowMatched
	case DenyAllow:
		switch {
		case allowed:
			return true, ReasonAllowMatched
		case denied:
			return false, ReasonDenyMatched
		}
		return true, ReasonNoRuleMatched
	case AllowDeny:
		switch {
		case denied:
			return false, ReasonDenyMatched
		case allowed:
			return true, ReasonAllowMatched
		}
		return false, ReasonNoRuleMatched
	case Explicit:
		switch {
		case denied:
			return false, ReasonDenyMatched
		case allowed:
			return true, ReasonAllowMatched
		}
		return false, ReasonNoAllowMatched
	}
	panic(fmt.Sprintf("unhandled order: %s", state.policy.Order))
}

func (g *Guard) complete(d Decision) {
	if d.Allowed {
		g.allowed.Add(1)
		slogc.Fine(g.logger, "allowed", "id", d.ID, "user", d.Request.User, "addr", d.Request.Addr, "reason", d.Reason)
	} else {
		g.denied.Add(1)
		g.logger.Debug("denied", "id", d.ID, "user", d.Request.User, "addr", d.Request.Addr, "reason", d.Reason)
	}

	if g.audit == nil {
		return
	}
	if err := g.audit.Append(d.Entry()); err != nil {
		g.auditFailures.Add(1)
		g.logger.Warn("cannot record decision", "id", d.ID, "err", err)
	}
}

type GuardStatus struct {
	Status         statusc.Status `json:"status"`
	Order          Order          `json:"order"`
	ServerAddr     string         `json:"server_addr,omitempty"`
	Rules          int            `json:"rules"`
	InvalidRules   int            `json:"invalid_rules"`
	Fingerprint    string         `json:"fingerprint"`
	LoadedAt       time.Time      `json:"loaded_at"`
	Reloads        uint64         `json:"reloads"`
	ReloadFailures uint64         `json:"reload_failures"`
	ReloadError    string         `json:"reload_error,omitempty"`
	Allowed        uint64         `json:"allowed"`
	Denied         uint64         `json:"denied"`
	AuditFailures  uint64         `json:"audit_failures"`
}

func (g *Guard) Status(_ context.Context) (GuardStatus, error) {
	state := g.current.Load()
	stat := GuardStatus{
		Status:         statusc.Loaded,
		Order:          state.policy.Order,
		ServerAddr:     state.policy.ServerAddr,
		Rules:          state.engine.Len(),
		InvalidRules:   state.engine.Invalid(),
		Fingerprint:    state.engine.Fingerprint(),
		LoadedAt:       state.loadedAt,
		Reloads:        g.reloads.Load(),
		ReloadFailures: g.reloadFailures.Load(),
		Allowed:        g.allowed.Load(),
		Denied:         g.denied.Load(),
		AuditFailures:  g.auditFailures.Load(),
	}

	g.reloadErrMu.RLock()
	defer g.reloadErrMu.RUnlock()
	if g.reloadErr != nil {
		stat.Status = statusc.ReloadFailed
		stat.ReloadError = g.reloadErr.Error()
	}
	return stat, nil
}
