package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	authToken string
	apiURL    string = "http://localhost:8080"
	output    string = "text" // "text" or "json"
)

var rootCmd = &cobra.Command{
	Use:   "curia",
	Short: "Curia CLI - Inspect and manage your forum communities",
	Long: `Curia CLI provides command-line access to the forum API.
List your communities, search posts, check leaderboards and manage
Telegram group bindings.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if authToken == "" {
			authToken = os.Getenv("CURIA_TOKEN")
		}
		if authToken == "" && cmd.Name() != "help" && cmd.Parent() != nil {
			fmt.Fprintf(os.Stderr, "Error: CURIA_TOKEN environment variable not set\n")
			fmt.Fprintf(os.Stderr, "Establish a session and export the token: export CURIA_TOKEN=<your-token>\n")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Session token (defaults to CURIA_TOKEN env var)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", apiURL, "API server URL")
	rootCmd.PersistentFlags().StringVar(&output, "output", output, "Output format: text or json")

	// Add command groups
	rootCmd.AddCommand(communitiesCmd)
	rootCmd.AddCommand(postsCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(telegramCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
