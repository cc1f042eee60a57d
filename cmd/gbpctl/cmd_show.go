package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackforge/group-based-policy/pkg/cli"
	"github.com/stackforge/group-based-policy/pkg/gbp/fabric"
)

var showCmd = &cobra.Command{
	Use:   "show <kind> [id]",
	Short: "Show policy records or rendered fabric objects",
	Long: `Show dumps stored state as JSON.

Policy kinds: target, group, l2-policy, l3-policy, classifier, action,
rule, ruleset, service-policy, external-segment, external-policy,
nat-pool. Without an id, kinds with a collection (group, l2-policy,
l3-policy, ruleset, external-policy) list every record.

The "fabric" kind shows the objects rendered onto the fabric backend,
each with its sync status.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := args[0]
		id := ""
		if len(args) > 1 {
			id = args[1]
		}
		if kind == "fabric" {
			return showFabric(id)
		}
		if id != "" {
			return showOne(kind, id)
		}
		return showAll(kind)
	},
}

func showOne(kind, id string) error {
	var (
		v   interface{}
		err error
	)
	switch kind {
	case "target":
		v, err = policies.PolicyTarget(id)
	case "group":
		v, err = policies.PolicyTargetGroup(id)
	case "l2-policy":
		v, err = policies.L2Policy(id)
	case "l3-policy":
		v, err = policies.L3Policy(id)
	case "classifier":
		v, err = policies.PolicyClassifier(id)
	case "action":
		v, err = policies.PolicyAction(id)
	case "rule":
		v, err = policies.PolicyRule(id)
	case "ruleset":
		v, err = policies.PolicyRuleSet(id)
	case "service-policy":
		v, err = policies.NetworkServicePolicy(id)
	case "external-segment":
		v, err = policies.ExternalSegment(id)
	case "external-policy":
		v, err = policies.ExternalPolicy(id)
	case "nat-pool":
		v, err = policies.NatPool(id)
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
	if err != nil {
		return err
	}
	return printJSON(v)
}

func showAll(kind string) error {
	switch kind {
	case "group":
		return printJSON(policies.PolicyTargetGroups())
	case "l2-policy":
		return printJSON(policies.L2Policies())
	case "l3-policy":
		return printJSON(policies.L3Policies())
	case "ruleset":
		return printJSON(policies.PolicyRuleSets())
	case "external-policy":
		return printJSON(policies.ExternalPolicies())
	default:
		return fmt.Errorf("kind %q needs an id", kind)
	}
}

// showFabric lists rendered fabric objects with their sync status.
// With an argument, the full object with that distinguished name is
// dumped as JSON instead.
func showFabric(dn string) error {
	client := fabric.NewStoreClient(st)

	if dn != "" {
		o, err := client.Get(dn)
		if err != nil {
			return err
		}
		status, err := client.Status(dn)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{
			"dn":     dn,
			"type":   o.TypeName(),
			"status": status,
			"attrs":  o.Attrs(),
		})
	}

	objects, err := client.List()
	if err != nil {
		return err
	}
	tbl := cli.NewTable("DN", "TYPE", "STATUS")
	for _, o := range objects {
		d := fabric.DN(o)
		status, err := client.Status(d)
		if err != nil {
			return err
		}
		tbl.Row(d, o.TypeName(), cli.Status(status))
	}
	tbl.Flush()
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
