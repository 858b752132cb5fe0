package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"techmatch/cli/api"
)

var (
	apiURL   string
	apiToken string
	client   *api.Client
)

var rootCmd = &cobra.Command{
	Use:   "techmatch",
	Short: "Field-service SLA console",
	Long: `techmatch tracks service jobs through dispatch, arrival and completion
and reports how each stage is doing against its SLA target.

List jobs, inspect their timers, complete stages, follow live breaches, and
evaluate timer sets offline.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		client = api.New(apiURL, apiToken)
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultURL := os.Getenv("TECHMATCH_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8800"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultURL, "techmatch API URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("TECHMATCH_API_TOKEN"), "API bearer token")
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
