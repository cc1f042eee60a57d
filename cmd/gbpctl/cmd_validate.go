package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackforge/group-based-policy/pkg/cli"
	"github.com/stackforge/group-based-policy/pkg/gbp/fabric"
	"github.com/stackforge/group-based-policy/pkg/gbp/validate"
)

var repairMode bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Audit the fabric against the policy model",
	Long: `Validate rebuilds the fabric state the policy model implies and diffs
it against what the backend actually holds. Without --repair,
discrepancies are reported and the run fails; with --repair they are
corrected, unless any object is in error state.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repair := cfg.Validation.Repair
		if cmd.Flags().Changed("repair") {
			repair = repairMode
		}

		expected, err := validate.Expected(policies, resources, names)
		if err != nil {
			return fmt.Errorf("rendering expected state: %w", err)
		}

		client := fabric.NewStoreClient(st)
		report, err := validate.New(client, repair).Run(expected)
		if err != nil {
			return err
		}

		for _, p := range report.Problems {
			fmt.Println(cli.Red("problem:"), p)
		}
		for _, dn := range report.Repaired {
			fmt.Println(cli.Yellow("repaired:"), dn)
		}
		fmt.Printf("validation %s: %d expected objects, %d problems, %d repaired\n",
			cli.Status(string(report.State)), len(expected), len(report.Problems), len(report.Repaired))

		if report.State == validate.StateFailed {
			return fmt.Errorf("validation failed")
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&repairMode, "repair", false, "Repair discrepancies instead of just reporting them")
}
