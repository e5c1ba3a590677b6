package hostacl

import (
	"net"
	"net/http"

	"github.com/hostacl/hostacl/clientip"
	"github.com/hostacl/hostacl/restr"
)

// RequestFunc describes an http request for a decision.
type RequestFunc func(r *http.Request) Request

// ResolveRequest takes the client address from resolver, which may be nil to use the peer
// address, and the user from userHeader when it is set.
func ResolveRequest(resolver *clientip.Resolver, userHeader string) RequestFunc {
	return func(r *http.Request) Request {
		req := Request{Addr: resolver.FromRequest(r)}
		if userHeader != "" {
			req.User = r.Header.Get(userHeader)
		}
		if local, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
			if addr, ok := restr.AddrOf(local); ok {
				req.ServerAddr = addr.String()
			}
		}
		return req
	}
}

// Middleware answers 403 to requests the guard denies.
func (g *Guard) Middleware(next http.Handler, request RequestFunc) http.Handler {
	if request == nil {
		request = ResolveRequest(nil, "")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Decide(request(r))
		if !d.Allowed {
			w.Header().Set("X-Decision-Id", d.ID.String())
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AllowConn decides for a raw connection, before any protocol handshake.
func (g *Guard) AllowConn(conn net.Conn, user string) bool {
	req := Request{User: user}
	if addr, ok := restr.AddrOf(conn.RemoteAddr()); ok {
		req.Addr = addr.String()
	}
	if addr, ok := restr.AddrOf(conn.LocalAddr()); ok {
		req.ServerAddr = addr.String()
	}
	return g.Decide(req).Allowed
}
