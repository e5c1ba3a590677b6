package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hostacl/hostacl"
	"github.com/spf13/cobra"
)

var errDenied = errors.New("access denied")

func decideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decide",
		Short: "decide a single request and print the decision",
	}
	_, load := configFlags(cmd)

	var req hostacl.Request
	cmd.Flags().StringVar(&req.User, "user", "", "user making the request")
	cmd.Flags().StringVar(&req.Addr, "addr", "", "client address making the request")
	cmd.Flags().StringVar(&req.ServerAddr, "request-server-addr", "", "address the request arrived at")

	cmd.RunE = wrapErr("decide", func(cmd *cobra.Command, _ []string) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		logger, err := logger(cfg)
		if err != nil {
			return fmt.Errorf("configure logger: %w", err)
		}

		policy, err := cfg.Access.policy()
		if err != nil {
			return err
		}
		g, err := hostacl.NewGuard(
			hostacl.GuardOrder(policy.Order),
			hostacl.GuardRuleSet(policy.Rules...),
			hostacl.GuardServerAddr(policy.ServerAddr),
			hostacl.GuardLogger(logger),
		)
		if err != nil {
			return err
		}

		d := g.Decide(req)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			return err
		}
		if !d.Allowed {
			return fmt.Errorf("%w: %s", errDenied, d.Reason)
		}
		return nil
	})

	return cmd
}
