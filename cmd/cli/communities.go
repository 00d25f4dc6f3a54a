package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var communitiesCmd = &cobra.Command{
	Use:   "communities",
	Short: "Inspect the communities you belong to",
	Long:  "Commands for listing the communities your session grants access to",
}

var listCommunitiesCmd = &cobra.Command{
	Use:   "list",
	Short: "List your communities, most recently visited first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listCommunities()
	},
}

func init() {
	communitiesCmd.AddCommand(listCommunitiesCmd)
}

type communityRow struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	CommunityShortID string `json:"community_short_id"`
	Role             string `json:"role"`
	VisitCount       int    `json:"visit_count"`
	LastVisitedAt    string `json:"last_visited_at"`
}

type communitiesResponse struct {
	Communities []communityRow `json:"communities"`
}

func listCommunities() error {
	req, err := http.NewRequest("GET", apiURL+"/api/communities", nil)
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

	var result communitiesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if output == "json" {
		fmt.Println(string(body))
	} else {
		if len(result.Communities) == 0 {
			fmt.Printf("✓ No communities yet\n")
			return nil
		}

		fmt.Printf("\n🏘  Your Communities (%d)\n", len(result.Communities))
		fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tROLE\tVISITS")

		for _, community := range result.Communities {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
				community.ID,
				community.Name,
				community.Role,
				community.VisitCount)
		}

		w.Flush()
		fmt.Printf("\n")
	}

	return nil
}
