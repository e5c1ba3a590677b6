package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hostacl/hostacl"
	"github.com/hostacl/hostacl/auditc"
	"github.com/hostacl/hostacl/clientip"
	"github.com/hostacl/hostacl/statusc"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the access decision server",
		Long: `Run the access decision server.

GET /auth answers 204 when the client is allowed and 403 otherwise, for reverse proxies
doing subrequest authorization. POST /decide takes a json request and returns the decision.
The rules are reloaded on SIGHUP.`,
	}
	flagsConfig, load := configFlags(cmd)

	cmd.Flags().StringVar(&flagsConfig.Serve.Addr, "addr", "", "decision server address to listen, :19180 if empty")
	cmd.Flags().StringVar(&flagsConfig.Serve.StatusAddr, "status-addr", "", "status server address to listen")
	cmd.Flags().StringVar(&flagsConfig.Serve.AuditDir, "audit-dir", "", "directory to record decisions into")
	cmd.Flags().StringVar(&flagsConfig.Serve.UserHeader, "user-header", "", "header carrying the authenticated user")
	cmd.Flags().BoolVar(&flagsConfig.Serve.GuardConns, "guard-conns", false, "close denied connections before reading requests")

	cmd.RunE = wrapErr("run decision server", func(cmd *cobra.Command, _ []string) error {
		cfg, err := load()
		if err != nil {
			return err
		}

		logger, err := logger(cfg)
		if err != nil {
			return fmt.Errorf("configure logger: %w", err)
		}

		return serveRun(cmd.Context(), cfg, load, logger)
	})

	return cmd
}

func serveRun(ctx context.Context, cfg Config, load func() (Config, error), logger *slog.Logger) error {
	policy, err := cfg.Access.policy()
	if err != nil {
		return err
	}
	resolver, err := cfg.Access.resolver()
	if err != nil {
		return err
	}

	opts := []hostacl.GuardOption{
		hostacl.GuardOrder(policy.Order),
		hostacl.GuardRuleSet(policy.Rules...),
		hostacl.GuardServerAddr(policy.ServerAddr),
		hostacl.GuardLogger(logger),
	}
	if cfg.Serve.AuditDir != "" {
		store, err := auditc.Open(cfg.Serve.AuditDir)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("cannot close audit store", "err", err)
			}
		}()
		opts = append(opts, hostacl.GuardAudit(store))
	}

	guard, err := hostacl.NewGuard(opts...)
	if err != nil {
		return fmt.Errorf("create guard: %w", err)
	}

	addr := cfg.Serve.Addr
	if addr == "" {
		addr = ":19180"
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	allow := func(net.Conn) bool { return true }
	if cfg.Serve.GuardConns {
		allow = func(conn net.Conn) bool { return guard.AllowConn(conn, "") }
	}
	listener := clientip.NewListener(l, resolver, allow, logger)

	mux := http.NewServeMux()
	mux.Handle("GET /auth", guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), hostacl.ResolveRequest(resolver, cfg.Serve.UserHeader)))
	mux.Handle("POST /decide", decideHandler(guard))
	srv := &http.Server{Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving decisions", "addr", listener.Addr())
		if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Close()
	})
	if cfg.Serve.StatusAddr != "" {
		g.Go(func() error {
			logger.Debug("running status server", "addr", cfg.Serve.StatusAddr)
			return statusc.Run(ctx, cfg.Serve.StatusAddr, guard.Status)
		})
	}
	g.Go(func() error {
		return reloadOnHangup(ctx, guard, load, logger)
	})

	return g.Wait()
}

func decideHandler(guard *hostacl.Guard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req hostacl.Request
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(guard.Decide(req)); err != nil {
			http.Error(w, fmt.Sprintf("server error: %v", err), http.StatusInternalServerError)
		}
	})
}

// reloadOnHangup reloads the rules, order and server address. Trusted proxies and listeners
// need a restart.
func reloadOnHangup(ctx context.Context, guard *hostacl.Guard, load func() (Config, error), logger *slog.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
		}

		logger.Info("reloading configuration")
		reloadConfig(guard, load)
	}
}

// reloadConfig applies the current configuration to the guard. Failures are logged and counted
// by the guard, which keeps its policy.
func reloadConfig(guard *hostacl.Guard, load func() (Config, error)) {
	cfg, err := load()
	if err != nil {
		guard.ReloadFailed(fmt.Errorf("load configuration: %w", err))
		return
	}
	policy, err := cfg.Access.policy()
	if err != nil {
		guard.ReloadFailed(fmt.Errorf("access configuration: %w", err))
		return
	}
	_ = guard.Reload(policy)
}
