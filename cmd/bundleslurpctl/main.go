package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	apiURL     string
	apiToken   string
	cfgFile    string
	outputJSON bool
	timeout    time.Duration
)

// Commands annotated with noAPICreds work on local state and skip the API
// credential check.
const noAPICreds = "no-api-creds"

func local(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[noAPICreds] = "1"
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:          "bundleslurpctl",
		Short:        "bundleslurp control/admin CLI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[noAPICreds] == "1" {
				return nil
			}
			if apiURL == "" || apiToken == "" {
				return fmt.Errorf("--api-url and --api-token are required")
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&apiURL, "api-url", os.Getenv("BUNDLESLURP_API_URL"), "API URL (or $BUNDLESLURP_API_URL)")
	root.PersistentFlags().StringVar(&apiToken, "api-token", os.Getenv("BUNDLESLURP_API_TOKEN"), "API token (or $BUNDLESLURP_API_TOKEN)")
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "bundleslurpd config file, for commands that read local state")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "API request timeout")
	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output as JSON")

	root.AddCommand(statusCmd())
	root.AddCommand(uploadCmd())

	cp := local(&cobra.Command{Use: "checkpoint", Short: "Shard checkpoints"})
	cp.AddCommand(local(checkpointShowCmd()))
	root.AddCommand(cp)

	root.AddCommand(local(partitionsCmd()))
	root.AddCommand(local(inspectCmd()))

	completion := local(&cobra.Command{
		Use:   "completion",
		Short: "Generate shell completion scripts",
		Run: func(cmd *cobra.Command, args []string) {
			_ = root.GenBashCompletion(os.Stdout)
		},
	})
	root.AddCommand(completion)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
