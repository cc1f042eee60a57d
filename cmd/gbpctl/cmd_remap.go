package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var remapCmd = &cobra.Command{
	Use:   "remap <kind> <id>",
	Short: "Discard a persisted fabric name",
	Long: `Remap deletes the persisted fabric name for an id, so the next
rendering computes a fresh one. Kinds match what the engine maps:
tenant, network, group, l3_policy, ruleset, classifier.

The fabric object keeps its old name until the next sync touches it;
run validate --repair afterwards to converge.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := names.Remap(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("mapping for %s %s discarded\n", args[0], args[1])
		return nil
	},
}
