package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "formeye",
	Short: "FormEye CLI - manage notification rules",
	Long: `FormEye CLI is a command-line tool for managing form notification rules.
It lists and toggles rules, dry-runs them against submissions, and shows
delivery history and statistics.`,
}

func init() {
	rootCmd.PersistentFlags().String("server", "", "FormEye server URL")
	viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server"))
	viper.SetDefault("server_url", "http://localhost:8080")

	rootCmd.AddCommand(newRulesCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newStatsCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
