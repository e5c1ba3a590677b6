package hostacl

import (
	"errors"
	"log/slog"

	"github.com/hostacl/hostacl/auditc"
	"github.com/hostacl/hostacl/rules"
)

type guardConfig struct {
	policy Policy
	audit  auditc.Store
	logger *slog.Logger
}

func newGuardConfig(opts []GuardOption) (*guardConfig, error) {
	cfg := &guardConfig{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return cfg, nil
}

type GuardOption func(*guardConfig) error

// GuardOrder is required, a guard never picks a default order.
func GuardOrder(order Order) GuardOption {
	return func(cfg *guardConfig) error {
		cfg.policy.Order = order
		return nil
	}
}

// GuardRules appends rule lines. Lines that fail to parse are kept and never match.
func GuardRules(lines ...string) GuardOption {
	return func(cfg *guardConfig) error {
		rs, _ := rules.ParseRules(lines)
		cfg.policy.Rules = append(cfg.policy.Rules, rs...)
		return nil
	}
}

func GuardRuleSet(rs ...rules.Rule) GuardOption {
	return func(cfg *guardConfig) error {
		cfg.policy.Rules = append(cfg.policy.Rules, rs...)
		return nil
	}
}

func GuardRulesFile(path string) GuardOption {
	return func(cfg *guardConfig) error {
		lines, err := rules.LoadFile(path)
		if err != nil {
			return err
		}
		return GuardRules(lines...)(cfg)
	}
}

func GuardServerAddr(addr string) GuardOption {
	return func(cfg *guardConfig) error {
		cfg.policy.ServerAddr = addr
		return nil
	}
}

func GuardAudit(store auditc.Store) GuardOption {
	return func(cfg *guardConfig) error {
		if store == nil {
			return errors.New("audit store cannot be nil")
		}
		cfg.audit = store
		return nil
	}
}

func GuardLogger(logger *slog.Logger) GuardOption {
	return func(cfg *guardConfig) error {
		cfg.logger = logger
		return nil
	}
}
