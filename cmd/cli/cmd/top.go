package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	topLimit int
	topStart string
	topEnd   string
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "List the agents with the highest spend",
	RunE:  runTop,
}

var slowestCmd = &cobra.Command{
	Use:   "slowest",
	Short: "List the longest-running operations",
	RunE:  runSlowest,
}

func init() {
	rootCmd.AddCommand(topCmd)
	rootCmd.AddCommand(slowestCmd)

	for _, c := range []*cobra.Command{topCmd, slowestCmd} {
		c.Flags().IntVarP(&topLimit, "limit", "n", 10, "Maximum number of rows")
		c.Flags().StringVar(&topStart, "start", "", "Window start (RFC3339 or YYYY-MM-DD)")
		c.Flags().StringVar(&topEnd, "end", "", "Window end (RFC3339 or YYYY-MM-DD)")
	}
}

func limitParams() url.Values {
	params := windowParams(topStart, topEnd)
	if topLimit > 0 {
		params.Set("limit", strconv.Itoa(topLimit))
	}
	return params
}

func runTop(cmd *cobra.Command, args []string) error {
	var result TopAgentsResponse
	if err := doRequest(http.MethodGet, "/api/v1/agents/top-expensive", limitParams(), nil, &result); err != nil {
		return err
	}

	if done, err := printJSON(result); done {
		return err
	}

	if len(result.Agents) == 0 {
		fmt.Println("No spend recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tAGENT\tOPERATIONS\tCOST")
	for i, a := range result.Agents {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n",
			i+1,
			truncateString(a.AgentID, 40),
			a.OperationCount,
			formatUSD(a.TotalCostUSD))
	}
	w.Flush()
	return nil
}

func runSlowest(cmd *cobra.Command, args []string) error {
	var result SlowestOperationsResponse
	if err := doRequest(http.MethodGet, "/api/v1/operations/slowest", limitParams(), nil, &result); err != nil {
		return err
	}

	if done, err := printJSON(result); done {
		return err
	}

	if len(result.Operations) == 0 {
		fmt.Println("No operations recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tOPERATION\tDURATION MS\tSUCCESS\tTIMESTAMP")
	for _, op := range result.Operations {
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n",
			truncateString(op.AgentID, 24),
			truncateString(op.Operation, 32),
			op.DurationMs,
			op.Success,
			op.Timestamp.Format("2006-01-02 15:04:05"))
	}
	w.Flush()
	return nil
}
