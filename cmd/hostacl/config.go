package main

import (
	"fmt"

	"github.com/hostacl/hostacl"
	"github.com/hostacl/hostacl/clientip"
	"github.com/hostacl/hostacl/rules"
)

type AccessConfig struct {
	Order      string   `toml:"order"`
	ServerAddr string   `toml:"server-addr"`
	Rules      []string `toml:"rules"`
	RulesFile  string   `toml:"rules-file"`

	TrustedProxies map[string]string `toml:"trusted-proxies"`
}

type ServeConfig struct {
	Addr       string `toml:"addr"`
	StatusAddr string `toml:"status-addr"`
	AuditDir   string `toml:"audit-dir"`
	UserHeader string `toml:"user-header"`
	GuardConns bool   `toml:"guard-conns"`
}

func (c *AccessConfig) merge(o AccessConfig) {
	c.Order = override(c.Order, o.Order)
	c.ServerAddr = override(c.ServerAddr, o.ServerAddr)
	if len(o.Rules) > 0 || o.RulesFile != "" { // rules are ordered, a later config replaces them all
		c.Rules = o.Rules
		c.RulesFile = o.RulesFile
	}
	c.TrustedProxies = overrides(c.TrustedProxies, o.TrustedProxies)
}

func (c *ServeConfig) merge(o ServeConfig) {
	c.Addr = override(c.Addr, o.Addr)
	c.StatusAddr = override(c.StatusAddr, o.StatusAddr)
	c.AuditDir = override(c.AuditDir, o.AuditDir)
	c.UserHeader = override(c.UserHeader, o.UserHeader)
	c.GuardConns = c.GuardConns || o.GuardConns
}

// ruleLines returns the inline rules followed by the rules file.
func (c AccessConfig) ruleLines() ([]string, error) {
	lines := append([]string(nil), c.Rules...)
	if c.RulesFile != "" {
		fileLines, err := rules.LoadFile(c.RulesFile)
		if err != nil {
			return nil, err
		}
		lines = append(lines, fileLines...)
	}
	return lines, nil
}

// policy fails only on problems that would stop the guard from starting, rules that do not
// parse are kept and never match.
func (c AccessConfig) policy() (hostacl.Policy, error) {
	if c.Order == "" {
		return hostacl.Policy{}, hostacl.ErrNoOrder
	}
	order, err := hostacl.ParseOrder(c.Order)
	if err != nil {
		return hostacl.Policy{}, err
	}

	lines, err := c.ruleLines()
	if err != nil {
		return hostacl.Policy{}, err
	}
	rs, _ := rules.ParseRules(lines)

	return hostacl.Policy{
		Order:      order,
		Rules:      rs,
		ServerAddr: c.ServerAddr,
	}, nil
}

func (c AccessConfig) resolver() (*clientip.Resolver, error) {
	resolver, err := clientip.NewResolver(c.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	return resolver, nil
}
