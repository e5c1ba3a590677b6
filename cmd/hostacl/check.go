package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hostacl/hostacl/rules"
	"github.com/hostacl/hostacl/slogc"
	"github.com/spf13/cobra"
)

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "check configuration and rules",
	}
	_, load := configFlags(cmd)

	cmd.RunE = wrapErr("check configuration", func(cmd *cobra.Command, _ []string) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		if _, err := logger(cfg); err != nil {
			return fmt.Errorf("configure logger: %w", err)
		}
		if _, err := cfg.Access.resolver(); err != nil {
			return err
		}

		policy, err := cfg.Access.policy()
		if err != nil {
			return err
		}
		engine := rules.NewEngine(rules.Config{
			Rules:      policy.Rules,
			ServerAddr: policy.ServerAddr,
			Logger:     slogc.Discard(),
		})

		errs := engine.Errors()
		indexes := make([]int, 0, len(errs))
		for i := range errs {
			indexes = append(indexes, i)
		}
		slices.Sort(indexes)

		out := cmd.OutOrStdout()
		var joined []error
		for _, i := range indexes {
			fmt.Fprintf(out, "rule %d '%s': %v\n", i, policy.Rules[i].Line, errs[i])
			joined = append(joined, fmt.Errorf("rule at %d: %w", i, errs[i]))
		}
		fmt.Fprintf(out, "order=%s rules=%d invalid=%d fingerprint=%s\n",
			policy.Order, engine.Len(), engine.Invalid(), engine.Fingerprint())

		return errors.Join(joined...)
	})

	return cmd
}
