package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL    string
	outputFormat string
	adminToken   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "govctl",
	Short: "Agent Governor CLI - inspect agent telemetry and manage budgets",
	Long: `govctl talks to an Agent Governor server.

This CLI tool allows you to:
- Inspect per-agent performance and cost statistics
- Find the most expensive agents and slowest operations
- Review failures grouped by error type
- Initialize, inspect and reset agent budgets`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", getEnvOrDefault("GOVERNOR_URL", "http://localhost:8080"), "Agent Governor server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&adminToken, "token", os.Getenv("GOVERNOR_ADMIN_TOKEN"), "Admin token for budget changes")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
