package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	costsPeriod    string
	costsStartDate string
	costsEndDate   string
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "View fleet-wide cost summary",
	Long: `View total spend across all agents. Use --period for a trailing
daily or monthly window, or --start/--end for an explicit range.`,
	RunE: runCosts,
}

func init() {
	rootCmd.AddCommand(costsCmd)

	costsCmd.Flags().StringVarP(&costsPeriod, "period", "p", "", "Trailing period (daily, monthly)")
	costsCmd.Flags().StringVar(&costsStartDate, "start", "", "Start date (RFC3339 or YYYY-MM-DD)")
	costsCmd.Flags().StringVar(&costsEndDate, "end", "", "End date (RFC3339 or YYYY-MM-DD)")
}

func runCosts(cmd *cobra.Command, args []string) error {
	if costsPeriod != "" && (costsStartDate != "" || costsEndDate != "") {
		return fmt.Errorf("--period cannot be combined with --start or --end")
	}

	params := windowParams(costsStartDate, costsEndDate)
	if costsPeriod != "" {
		params.Set("period", costsPeriod)
	}

	var result CostSummary
	if err := doRequest(http.MethodGet, "/api/v1/costs/summary", params, nil, &result); err != nil {
		return err
	}

	if done, err := printJSON(result); done {
		return err
	}

	printCostSummary(result)
	return nil
}

func printCostSummary(summary CostSummary) {
	fmt.Println("Cost Summary")
	fmt.Println("============")
	fmt.Println()

	fmt.Printf("Total Cost:    %s\n", formatUSD(summary.TotalCostUSD))
	fmt.Printf("Operations:    %d\n", summary.TotalOperations)
	fmt.Printf("Avg per Op:    %s\n", formatUSD(summary.AvgCostPerOperation))

	switch {
	case !summary.Window.Start.IsZero() && !summary.Window.End.IsZero():
		fmt.Printf("Window:        %s to %s\n",
			summary.Window.Start.Format("2006-01-02 15:04"),
			summary.Window.End.Format("2006-01-02 15:04"))
	case !summary.Window.Start.IsZero():
		fmt.Printf("Since:         %s\n", summary.Window.Start.Format("2006-01-02 15:04"))
	}
}
