package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/formeye/cmd/cli/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func apiClient() *client.APIClient {
	return client.NewAPIClient(viper.GetString("server_url"))
}

func newRulesCommand() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "List and manage notification rules",
		Run: func(cmd *cobra.Command, args []string) {
			formID, _ := cmd.Flags().GetString("form")
			list, err := apiClient().ListRules(formID)
			if err != nil {
				fmt.Printf("Error listing rules: %v\n", err)
				return
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.TabIndent)
			fmt.Fprintln(w, "ID\tNAME\tTRIGGER\tFORM\tPRIORITY\tENABLED\t")
			for _, r := range list.Rules {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\t\n",
					r.ID, r.Name, r.TriggerType, r.FormID, r.Priority, r.IsEnabled)
			}
			w.Flush()
		},
	}
	rulesCmd.Flags().String("form", "", "Filter by form ID")

	rulesCmd.AddCommand(&cobra.Command{
		Use:   "show [id]",
		Short: "Show a rule and its latest failure",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := parseRuleID(args[0])
			if err != nil {
				fmt.Println(err)
				return
			}
			detail, err := apiClient().GetRule(id)
			if err != nil {
				fmt.Printf("Error getting rule: %v\n", err)
				return
			}
			r := detail.Rule
			fmt.Printf("Rule %d: %s\n", r.ID, r.Name)
			fmt.Printf("  Trigger:   %s\n", r.TriggerType)
			fmt.Printf("  Form:      %s\n", r.FormID)
			fmt.Printf("  Condition: %s\n", r.ConditionFormula)
			fmt.Printf("  Template:  %s\n", r.MessageTemplate)
			fmt.Printf("  Priority:  %s  Enabled: %t  SendOnce: %t\n", r.Priority, r.IsEnabled, r.SendOnce)
			if r.Schedule != "" {
				fmt.Printf("  Schedule:  %s\n", r.Schedule)
			}
			if detail.LatestFailure != nil {
				fmt.Printf("  Last failure: %s (%s)\n",
					detail.LatestFailure.ErrorMessage,
					detail.LatestFailure.CreatedAt.Format("2006-01-02 15:04:05"))
			}
		},
	})

	rulesCmd.AddCommand(&cobra.Command{
		Use:   "enable [id]",
		Short: "Enable a rule",
		Args:  cobra.ExactArgs(1),
		Run:   func(cmd *cobra.Command, args []string) { toggleRule(args[0], true) },
	})
	rulesCmd.AddCommand(&cobra.Command{
		Use:   "disable [id]",
		Short: "Disable a rule",
		Args:  cobra.ExactArgs(1),
		Run:   func(cmd *cobra.Command, args []string) { toggleRule(args[0], false) },
	})

	testCmd := &cobra.Command{
		Use:   "test [id]",
		Short: "Dry-run a rule against a submission without sending",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := parseRuleID(args[0])
			if err != nil {
				fmt.Println(err)
				return
			}
			submissionID, _ := cmd.Flags().GetUint("submission")
			result, err := apiClient().TestRule(id, submissionID)
			if err != nil {
				fmt.Printf("Error testing rule: %v\n", err)
				return
			}
			fmt.Printf("Condition met: %t\n", result.ConditionMet)
			fmt.Printf("Would send:    %t\n", result.WouldSend)
			fmt.Printf("Message:       %s\n", result.RenderedMessage)
			if result.Error != "" {
				fmt.Printf("Error:         %s\n", result.Error)
			}
		},
	}
	testCmd.Flags().Uint("submission", 0, "Submission ID to test against (default: latest)")
	rulesCmd.AddCommand(testCmd)

	return rulesCmd
}

func newHistoryCommand() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show delivery history",
		Run: func(cmd *cobra.Command, args []string) {
			status, _ := cmd.Flags().GetString("status")
			ruleID, _ := cmd.Flags().GetUint("rule")
			page, err := apiClient().History(status, ruleID)
			if err != nil {
				fmt.Printf("Error getting history: %v\n", err)
				return
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.TabIndent)
			fmt.Fprintln(w, "ID\tRULE\tSUBMISSION\tSTATUS\tCREATED\tERROR\t")
			for _, rec := range page.Records {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t\n",
					rec.ID, rec.RuleName, rec.SubmissionID, rec.Status,
					rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.ErrorMessage)
			}
			w.Flush()
			fmt.Printf("Total: %d\n", page.Total)
		},
	}
	historyCmd.Flags().String("status", "", "Filter by status (sent, failed, skipped)")
	historyCmd.Flags().Uint("rule", 0, "Filter by rule ID")
	return historyCmd
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show delivery statistics",
		Run: func(cmd *cobra.Command, args []string) {
			stats, err := apiClient().Stats()
			if err != nil {
				fmt.Printf("Error getting stats: %v\n", err)
				return
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.TabIndent)
			fmt.Fprintln(w, "RULE\tSENT\tFAILED\tSKIPPED\tSUCCESS\t")
			for _, rs := range stats.PerRule {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f%%\t\n",
					rs.RuleName, rs.Sent, rs.Failed, rs.Skipped, rs.SuccessRate*100)
			}
			fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t%.1f%%\t\n",
				stats.Total.Sent, stats.Total.Failed, stats.Total.Skipped, stats.Total.SuccessRate*100)
			w.Flush()
		},
	}
}

func toggleRule(arg string, enabled bool) {
	id, err := parseRuleID(arg)
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := apiClient().SetRuleEnabled(id, enabled); err != nil {
		fmt.Printf("Error updating rule: %v\n", err)
		return
	}
	if enabled {
		fmt.Printf("Rule %d enabled\n", id)
	} else {
		fmt.Printf("Rule %d disabled\n", id)
	}
}

func parseRuleID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid rule id %q", arg)
	}
	return uint(id), nil
}
