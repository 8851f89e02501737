package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	errorsStart string
	errorsEnd   string
)

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Show failed operations grouped by error type",
	RunE:  runErrors,
}

func init() {
	rootCmd.AddCommand(errorsCmd)

	errorsCmd.Flags().StringVar(&errorsStart, "start", "", "Window start (RFC3339 or YYYY-MM-DD)")
	errorsCmd.Flags().StringVar(&errorsEnd, "end", "", "Window end (RFC3339 or YYYY-MM-DD)")
}

func runErrors(cmd *cobra.Command, args []string) error {
	var result ErrorStatsResponse
	if err := doRequest(http.MethodGet, "/api/v1/errors", windowParams(errorsStart, errorsEnd), nil, &result); err != nil {
		return err
	}

	if done, err := printJSON(result); done {
		return err
	}

	if len(result.Errors) == 0 {
		fmt.Println("No failures recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ERROR TYPE\tCOUNT\tAGENTS")
	for _, e := range result.Errors {
		fmt.Fprintf(w, "%s\t%d\t%s\n",
			truncateString(e.ErrorType, 32),
			e.Count,
			truncateString(strings.Join(e.AgentIDs, ","), 60))
	}
	w.Flush()
	return nil
}
