package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	statsStart string
	statsEnd   string
)

var statsCmd = &cobra.Command{
	Use:   "stats <agent-id>",
	Short: "Show performance and cost statistics for an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

var operationsCmd = &cobra.Command{
	Use:   "operations <agent-id>",
	Short: "Break down an agent's activity by operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runOperations,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(operationsCmd)

	for _, c := range []*cobra.Command{statsCmd, operationsCmd} {
		c.Flags().StringVar(&statsStart, "start", "", "Window start (RFC3339 or YYYY-MM-DD)")
		c.Flags().StringVar(&statsEnd, "end", "", "Window end (RFC3339 or YYYY-MM-DD)")
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	agentID := args[0]

	var stats AgentStats
	path := fmt.Sprintf("/api/v1/agents/%s/stats", url.PathEscape(agentID))
	if err := doRequest(http.MethodGet, path, windowParams(statsStart, statsEnd), nil, &stats); err != nil {
		return err
	}

	if done, err := printJSON(stats); done {
		return err
	}

	fmt.Printf("Agent:            %s\n", stats.AgentID)
	fmt.Printf("Operations:       %d\n", stats.TotalOperations)
	fmt.Printf("Success Rate:     %.1f%%\n", stats.SuccessRate*100)
	fmt.Printf("Avg Duration:     %.1fms\n", stats.AvgDurationMs)
	fmt.Printf("Tokens Used:      %d\n", stats.TotalTokensUsed)
	fmt.Printf("Total Cost:       %s\n", formatUSD(stats.TotalCostUSD))
	fmt.Printf("Budget Status:    %s\n", stats.BudgetStatus)
	return nil
}

func runOperations(cmd *cobra.Command, args []string) error {
	agentID := args[0]

	var result OperationBreakdownResponse
	path := fmt.Sprintf("/api/v1/agents/%s/operations", url.PathEscape(agentID))
	if err := doRequest(http.MethodGet, path, windowParams(statsStart, statsEnd), nil, &result); err != nil {
		return err
	}

	if done, err := printJSON(result); done {
		return err
	}

	if len(result.Operations) == 0 {
		fmt.Printf("No operations recorded for %s\n", agentID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OPERATION\tCOUNT\tSUCCESS\tAVG MS\tCOST")
	for _, op := range result.Operations {
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%.1f\t%s\n",
			truncateString(op.Operation, 32),
			op.Count,
			op.SuccessRate*100,
			op.AvgDurationMs,
			formatUSD(op.TotalCostUSD))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d operations\n", result.Count)
	return nil
}
