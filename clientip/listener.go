package clientip

import (
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/hostacl/hostacl/restr"
	"github.com/pires/go-proxyproto"
)

var ErrDenied = errors.New("connection denied")

// Listener accepts PROXY protocol headers from trusted upstreams only and runs allow once per
// connection, before its first read or write. Accept itself never waits on the client.
type Listener struct {
	*proxyproto.Listener

	allow  func(net.Conn) bool
	logger *slog.Logger
}

// NewListener wraps l. The net.Conn passed to allow reports the client address taken from the
// PROXY header when the peer is a trusted proxy, and the peer address otherwise.
func NewListener(l net.Listener, resolver *Resolver, allow func(net.Conn) bool, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	trusted := resolver.trustedSet()
	return &Listener{
		Listener: &proxyproto.Listener{
			Listener: l,
			Policy: func(upstream net.Addr) (proxyproto.Policy, error) {
				if trusted.ContainsAddr(upstream) {
					return proxyproto.USE, nil
				}
				return proxyproto.REJECT, nil
			},
		},
		allow:  allow,
		logger: logger.With("component", "guarded-listener"),
	}
}

func (l *Listener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &guardedConn{Conn: conn, listener: l}, nil
}

type guardedConn struct {
	net.Conn
	listener *Listener

	once sync.Once
	err  error
}

func (c *guardedConn) check() error {
	c.once.Do(func() {
		if c.listener.allow(c.Conn) {
			return
		}
		c.listener.logger.Debug("closing denied connection", "remote", c.Conn.RemoteAddr())
		c.err = ErrDenied
		if err := c.Conn.Close(); err != nil {
			c.listener.logger.Debug("close denied connection", "err", err)
		}
	})
	return c.err
}

func (c *guardedConn) Read(b []byte) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *guardedConn) Write(b []byte) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}

func (r *Resolver) trustedSet() restr.Set {
	if r == nil {
		return nil
	}
	return r.Trusted()
}
