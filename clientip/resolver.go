package clientip

import (
	"cmp"
	"fmt"
	"net"
	"net/http"
	"net/textproto"
	"slices"
	"strings"

	"github.com/hostacl/hostacl/addrc"
	"github.com/hostacl/hostacl/restr"
)

// Resolver finds the address of the requesting client. Requests coming from a trusted proxy
// are resolved from the header that proxy sets, any other request from its peer address.
type Resolver struct {
	proxies []proxy
}

type proxy struct {
	pattern restr.Pattern
	header  string
}

// NewResolver takes trusted proxies as pattern to header name, e.g. "10.0.0.2" to "X-Forwarded-For".
// Proxies are checked in pattern order, so overlapping patterns resolve the same way every time.
func NewResolver(trusted map[string]string) (*Resolver, error) {
	r := &Resolver{}
	for text, header := range trusted {
		pattern, err := restr.ParsePattern(text)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy: %w", err)
		}
		if header == "" {
			return nil, fmt.Errorf("trusted proxy '%s': missing header", text)
		}
		r.proxies = append(r.proxies, proxy{pattern, textproto.CanonicalMIMEHeaderKey(header)})
	}
	slices.SortFunc(r.proxies, func(l, r proxy) int {
		return cmp.Compare(l.pattern.String(), r.pattern.String())
	})
	return r, nil
}

// Resolve returns the canonical client address or "" when it cannot be determined.
// A trusted proxy that does not send a valid address in its header yields "".
func (r *Resolver) Resolve(direct string, header func(name string) string) string {
	addr, err := addrc.Parse(direct)
	if err != nil {
		return ""
	}

	name, ok := r.headerFor(addr)
	if !ok {
		return addr.String()
	}

	value, _, _ := strings.Cut(header(name), ",")
	forwarded, err := addrc.Parse(strings.TrimSpace(value))
	if err != nil {
		return ""
	}
	return forwarded.String()
}

func (r *Resolver) FromRequest(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	return r.Resolve(host, req.Header.Get)
}

func (r *Resolver) IsTrusted(addr addrc.Addr) bool {
	_, ok := r.headerFor(addr)
	return ok
}

func (r *Resolver) Trusted() restr.Set {
	set := make(restr.Set, len(r.proxies))
	for i, p := range r.proxies {
		set[i] = p.pattern
	}
	return set
}

func (r *Resolver) headerFor(addr addrc.Addr) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, p := range r.proxies {
		if p.pattern.Matches(addr) {
			return p.header, true
		}
	}
	return "", false
}
