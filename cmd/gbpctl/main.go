// Gbpctl - Group-Based Policy Control Tool
//
// A CLI for inspecting and repairing the group-based policy engine's
// state:
//   - show: dump policy records and rendered fabric objects
//   - validate: audit the fabric against the policy model, optionally
//     repairing discrepancies
//   - remap: discard a persisted fabric name so it is recomputed
//
// State lives in the orchestration store (redis in deployments); the
// store address comes from the config file or --store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackforge/group-based-policy/pkg/gbp/config"
	"github.com/stackforge/group-based-policy/pkg/gbp/namemap"
	"github.com/stackforge/group-based-policy/pkg/gbp/policy"
	"github.com/stackforge/group-based-policy/pkg/gbp/resource"
	"github.com/stackforge/group-based-policy/pkg/gbp/store"
	"github.com/stackforge/group-based-policy/pkg/util"
	"github.com/stackforge/group-based-policy/pkg/version"
)

var (
	// Global option flags
	configPath string
	storeAddr  string
	logLevel   string
	jsonLogs   bool

	// Global state, initialized in PersistentPreRunE
	cfg       *config.Config
	st        store.Store
	policies  *policy.KVStore
	resources *resource.Mem
	names     *namemap.Mapper
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "gbpctl",
	Short:             "Group-Based Policy Control Tool",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Gbpctl inspects and repairs the group-based policy engine's state.

  gbpctl show group                 # list policy target groups
  gbpctl validate --repair          # audit the fabric and fix drift
  gbpctl remap network <id>         # recompute a fabric name`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if isHelpOrVersion(cmd) {
			return nil
		}

		var err error
		if configPath == "" {
			configPath = config.DefaultPath()
		}
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if storeAddr != "" {
			cfg.Store.Address = storeAddr
		}

		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		if err := util.SetLogLevel(level); err != nil {
			return err
		}
		if jsonLogs {
			util.SetJSONFormat()
		}

		st, err = openStore(cfg)
		if err != nil {
			return err
		}
		policies, err = policy.NewKVStore(st)
		if err != nil {
			return fmt.Errorf("loading policy state: %w", err)
		}
		resources, err = resource.LoadMem(st)
		if err != nil {
			return fmt.Errorf("loading resource state: %w", err)
		}
		names = namemap.NewPrefixed(st, namemap.Strategy(cfg.Naming.Strategy), cfg.Naming.Prefix)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if r, ok := st.(*store.Redis); ok {
			r.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.gbp/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storeAddr, "store", "", "Store address, overrides config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON")

	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(remapCmd)
	rootCmd.AddCommand(versionCmd)
}

// openStore connects to the configured backend. An empty address selects
// the in-memory store, which is only useful for poking at commands.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store.Address == "" {
		return store.NewMemory(), nil
	}
	r := store.NewRedis(cfg.Store.Address, cfg.Store.DB)
	if err := r.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to store at %s: %w", cfg.Store.Address, err)
	}
	return r, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("gbpctl " + version.Info())
	},
}

// isHelpOrVersion checks whether cmd (or any ancestor) skips store setup.
func isHelpOrVersion(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version":
			return true
		}
	}
	return false
}
