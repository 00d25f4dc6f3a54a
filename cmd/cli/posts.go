package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"encoding/json"

	"github.com/spf13/cobra"
)

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Search posts in your community",
	Long:  "Commands for searching posts with full-text ranking",
}

var searchPostsCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search posts by title and content",
	Long: `Search posts with Postgres full-text ranking. Gated boards you
cannot see are excluded before ranking.

Examples:
  curia posts search "treasury proposal"
  curia posts search "token gating" --limit 50`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return searchPosts(args[0], limit)
	},
}

var suggestTagsCmd = &cobra.Command{
	Use:   "tags <prefix>",
	Short: "Suggest tags matching a prefix, most used first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return suggestTags(args[0], limit)
	},
}

func init() {
	postsCmd.AddCommand(searchPostsCmd)
	postsCmd.AddCommand(suggestTagsCmd)

	// Flags for posts search
	searchPostsCmd.Flags().IntP("limit", "l", 20, "Maximum number of results")

	// Flags for tag suggestions
	suggestTagsCmd.Flags().IntP("limit", "l", 10, "Maximum number of suggestions")
}

func searchPosts(query string, limit int) error {
	if query == "" {
		return fmt.Errorf("search query cannot be empty")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := apiURL + "/api/search/posts?" + params.Encode()

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

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if output == "json" {
		fmt.Println(string(body))
	} else {
		printPostSearchResults(result)
	}

	return nil
}

func suggestTags(prefix string, limit int) error {
	params := url.Values{}
	params.Set("q", prefix)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := apiURL + "/api/tags/suggestions?" + params.Encode()

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

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if output == "json" {
		fmt.Println(string(body))
	} else {
		suggestions, ok := result["suggestions"].([]interface{})
		if !ok || len(suggestions) == 0 {
			fmt.Printf("No tags found\n")
			return nil
		}
		fmt.Printf("\n🏷  Tag Suggestions\n")
		fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		for _, s := range suggestions {
			tag, ok := s.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := tag["tag"].(string)
			usage, _ := tag["usage"].(float64)
			fmt.Printf("  %s (%d)\n", name, int(usage))
		}
		fmt.Printf("\n")
	}

	return nil
}

func printPostSearchResults(result map[string]interface{}) {
	fmt.Printf("\n🔍 Post Search Results\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

	posts, ok := result["posts"].([]interface{})
	if !ok || len(posts) == 0 {
		fmt.Printf("No posts found\n\n")
		return
	}

	for i, p := range posts {
		post, ok := p.(map[string]interface{})
		if !ok {
			continue
		}

		fmt.Printf("\n%d. ", i+1)
		if title, ok := post["title"].(string); ok {
			fmt.Printf("%s", title)
		}

		if author, ok := post["author"].(map[string]interface{}); ok {
			if name, ok := author["name"].(string); ok {
				fmt.Printf(" by %s", name)
			}
		}

		fmt.Printf("\n")

		// Tags
		if rawTags, ok := post["tags"].([]interface{}); ok && len(rawTags) > 0 {
			tags := make([]string, 0, len(rawTags))
			for _, t := range rawTags {
				if tag, ok := t.(string); ok {
					tags = append(tags, "#"+tag)
				}
			}
			fmt.Printf("   %s\n", strings.Join(tags, " "))
		}

		// Engagement stats
		var stats []string
		if upvotes, ok := post["upvote_count"].(float64); ok && upvotes > 0 {
			stats = append(stats, fmt.Sprintf("👍 %d", int(upvotes)))
		}
		if comments, ok := post["comment_count"].(float64); ok && comments > 0 {
			stats = append(stats, fmt.Sprintf("💬 %d", int(comments)))
		}

		if len(stats) > 0 {
			fmt.Printf("   %s\n", strings.Join(stats, " "))
		}
	}

	fmt.Printf("\n")
}
