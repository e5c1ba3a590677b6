package main

import (
	"encoding/json"
	"fmt"

	"github.com/hostacl/hostacl/auditc"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "print recorded decisions",
	}
	cmd.Flags().SortFlags = false

	dir := cmd.Flags().String("dir", "", "audit directory to read")
	tail := cmd.Flags().Int("tail", 20, "number of latest decisions to print")
	id := cmd.Flags().String("id", "", "print only the decision with this id")
	_ = cmd.MarkFlagRequired("dir")

	cmd.RunE = wrapErr("read audit", func(cmd *cobra.Command, _ []string) error {
		store, err := auditc.Open(*dir)
		if err != nil {
			return err
		}
		defer store.Close()

		var entries []auditc.Entry
		if *id != "" {
			kid, err := ksuid.Parse(*id)
			if err != nil {
				return fmt.Errorf("parse id: %w", err)
			}
			entry, err := store.Get(kid)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		} else {
			entries, err = store.Tail(*tail)
			if err != nil {
				return err
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, entry := range entries {
			if err := enc.Encode(entry); err != nil {
				return err
			}
		}
		return nil
	})

	return cmd
}
