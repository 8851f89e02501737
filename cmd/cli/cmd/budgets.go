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
	budgetDaily   float64
	budgetMonthly float64
)

var budgetsCmd = &cobra.Command{
	Use:   "budgets",
	Short: "Manage agent budgets",
}

var budgetsAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List agents whose budget is exceeded",
	Args:  cobra.NoArgs,
	RunE:  runBudgetsAlerts,
}

var budgetsGetCmd = &cobra.Command{
	Use:   "get <agent-id>",
	Short: "Show an agent's budget",
	Args:  cobra.ExactArgs(1),
	RunE:  runBudgetsGet,
}

var budgetsInitCmd = &cobra.Command{
	Use:   "init <agent-id>",
	Short: "Create a budget for an agent",
	Long: `Create a budget for an agent. Omitted ceilings use the server defaults.
An existing budget is returned unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: runBudgetsInit,
}

var budgetsResetCmd = &cobra.Command{
	Use:   "reset <agent-id>",
	Short: "Zero an agent's spend and clear the exceeded flag",
	Args:  cobra.ExactArgs(1),
	RunE:  runBudgetsReset,
}

var budgetsCanExecuteCmd = &cobra.Command{
	Use:   "can-execute <agent-id>",
	Short: "Check whether an agent is within budget",
	Args:  cobra.ExactArgs(1),
	RunE:  runBudgetsCanExecute,
}

func init() {
	rootCmd.AddCommand(budgetsCmd)
	budgetsCmd.AddCommand(budgetsAlertsCmd)
	budgetsCmd.AddCommand(budgetsGetCmd)
	budgetsCmd.AddCommand(budgetsInitCmd)
	budgetsCmd.AddCommand(budgetsResetCmd)
	budgetsCmd.AddCommand(budgetsCanExecuteCmd)

	budgetsInitCmd.Flags().Float64Var(&budgetDaily, "daily", 0, "Daily ceiling in USD (server default when 0)")
	budgetsInitCmd.Flags().Float64Var(&budgetMonthly, "monthly", 0, "Monthly ceiling in USD (server default when 0)")
}

func budgetPath(agentID string) string {
	return "/api/v1/budgets/" + url.PathEscape(agentID)
}

func runBudgetsAlerts(cmd *cobra.Command, args []string) error {
	var result BudgetAlertsResponse
	if err := doRequest(http.MethodGet, "/api/v1/budgets/alerts", nil, nil, &result); err != nil {
		return err
	}

	if done, err := printJSON(result); done {
		return err
	}

	if len(result.Budgets) == 0 {
		fmt.Println("No agents over budget")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tTODAY\tDAILY LIMIT\tMONTH\tMONTHLY LIMIT")
	for _, b := range result.Budgets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateString(b.AgentID, 40),
			formatUSD(b.TodaySpentUSD),
			formatUSD(b.DailyBudgetUSD),
			formatUSD(b.MonthSpentUSD),
			formatUSD(b.MonthlyBudgetUSD))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d agents over budget\n", result.Count)
	return nil
}

func runBudgetsGet(cmd *cobra.Command, args []string) error {
	var result BudgetResponse
	if err := doRequest(http.MethodGet, budgetPath(args[0]), nil, nil, &result); err != nil {
		return err
	}
	return printBudget(result)
}

func runBudgetsInit(cmd *cobra.Command, args []string) error {
	req := map[string]interface{}{"agent_id": args[0]}
	if budgetDaily > 0 {
		req["daily_budget_usd"] = budgetDaily
	}
	if budgetMonthly > 0 {
		req["monthly_budget_usd"] = budgetMonthly
	}

	var result BudgetResponse
	if err := doRequest(http.MethodPost, "/api/v1/budgets", nil, req, &result); err != nil {
		return err
	}
	return printBudget(result)
}

func runBudgetsReset(cmd *cobra.Command, args []string) error {
	var result BudgetResponse
	if err := doRequest(http.MethodPost, budgetPath(args[0])+"/reset", nil, nil, &result); err != nil {
		return err
	}

	if outputFormat != "json" {
		fmt.Printf("Budget reset for %s\n\n", args[0])
	}
	return printBudget(result)
}

func runBudgetsCanExecute(cmd *cobra.Command, args []string) error {
	var result CanExecuteResponse
	if err := doRequest(http.MethodGet, budgetPath(args[0])+"/can-execute", nil, nil, &result); err != nil {
		return err
	}

	if done, err := printJSON(result); done {
		return err
	}

	if result.CanExecute {
		fmt.Printf("%s: allowed\n", result.AgentID)
	} else {
		fmt.Printf("%s: blocked (budget exceeded)\n", result.AgentID)
	}
	return nil
}

func printBudget(result BudgetResponse) error {
	if done, err := printJSON(result); done {
		return err
	}

	b := result.Budget
	fmt.Printf("Agent:            %s\n", b.AgentID)
	fmt.Printf("Status:           %s\n", result.Status)
	fmt.Printf("Today:            %s of %s\n", formatUSD(b.TodaySpentUSD), formatUSD(b.DailyBudgetUSD))
	fmt.Printf("Month:            %s of %s\n", formatUSD(b.MonthSpentUSD), formatUSD(b.MonthlyBudgetUSD))
	fmt.Printf("Alert Threshold:  %.0f%%\n", b.AlertThreshold*100)
	fmt.Printf("Daily Reset:      %s\n", b.LastDailyReset.Format("2006-01-02 15:04:05"))
	fmt.Printf("Monthly Reset:    %s\n", b.LastMonthlyReset.Format("2006-01-02 15:04:05"))
	return nil
}
