package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard <community-id>",
	Short: "Show a community's activity leaderboard",
	Long: `Show the community activity ranking: posts, comments and
reactions received, scored and cached server-side.

Examples:
  curia leaderboard cg-comm-123
  curia leaderboard cg-comm-123 --limit 50 --fresh`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		fresh, _ := cmd.Flags().GetBool("fresh")
		return showLeaderboard(args[0], limit, fresh)
	},
}

func init() {
	leaderboardCmd.Flags().IntP("limit", "l", 20, "Maximum number of rows")
	leaderboardCmd.Flags().Bool("fresh", false, "Force a recompute (admin only)")
}

type leaderboardEntry struct {
	Rank              int    `json:"rank"`
	UserID            string `json:"user_id"`
	Name              string `json:"name"`
	PostCount         int64  `json:"post_count"`
	CommentCount      int64  `json:"comment_count"`
	ReactionsReceived int64  `json:"reactions_received"`
	Score             int64  `json:"score"`
}

type leaderboardResponse struct {
	Leaderboard []leaderboardEntry `json:"leaderboard"`
	Me          *leaderboardEntry  `json:"me,omitempty"`
}

func showLeaderboard(communityID string, limit int, fresh bool) error {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if fresh {
		params.Set("fresh", "1")
	}

	endpoint := apiURL + "/api/communities/" + communityID + "/leaderboard?" + params.Encode()

	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+authToken)

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.Unmarshal(body, &errResp)
		if msg, ok := errResp["message"].(string); ok {
			return fmt.Errorf("API error: %s", msg)
		}
		return fmt.Errorf("API error: status %d", resp.StatusCode)
	}

	var result leaderboardResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if output == "json" {
		fmt.Println(string(body))
	} else {
		if len(result.Leaderboard) == 0 {
			fmt.Printf("✓ No activity yet\n")
			return nil
		}

		fmt.Printf("\n🏆 Leaderboard for %s\n", communityID)
		fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tNAME\tPOSTS\tCOMMENTS\tREACTIONS\tSCORE")

		for _, entry := range result.Leaderboard {
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\n",
				entry.Rank,
				entry.Name,
				entry.PostCount,
				entry.CommentCount,
				entry.ReactionsReceived,
				entry.Score)
		}

		w.Flush()

		if result.Me != nil {
			fmt.Printf("\nYou: rank %d with %d points\n", result.Me.Rank, result.Me.Score)
		}
		fmt.Printf("\n")
	}

	return nil
}
