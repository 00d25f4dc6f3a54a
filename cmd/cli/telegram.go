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

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Manage Telegram group bindings",
	Long:  "Commands for connecting Telegram groups to a community and inspecting delivery stats",
}

var telegramGroupsCmd = &cobra.Command{
	Use:   "groups <community-id>",
	Short: "List Telegram groups bound to a community",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listTelegramGroups(args[0])
	},
}

var telegramConnectCodeCmd = &cobra.Command{
	Use:   "connect-code <community-id>",
	Short: "Mint a single-use code to connect a Telegram group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mintConnectCode(args[0])
	},
}

var telegramTestSendCmd = &cobra.Command{
	Use:   "test-send <community-id>",
	Short: "Queue a test notification to every active group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendTestNotification(args[0])
	},
}

func init() {
	telegramCmd.AddCommand(telegramGroupsCmd)
	telegramCmd.AddCommand(telegramConnectCodeCmd)
	telegramCmd.AddCommand(telegramTestSendCmd)
}

type telegramGroup struct {
	ChatID               int64  `json:"chat_id"`
	ChatTitle            string `json:"chat_title"`
	IsActive             bool   `json:"is_active"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	NotificationCount    int64  `json:"notification_count"`
	LastNotificationAt   string `json:"last_notification_at,omitempty"`
}

type telegramGroupsResponse struct {
	Groups []telegramGroup `json:"groups"`
	Total  int             `json:"total"`
}

func listTelegramGroups(communityID string) error {
	endpoint := apiURL + "/api/communities/" + communityID + "/telegram/groups"

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

	var result telegramGroupsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if output == "json" {
		fmt.Println(string(body))
	} else {
		if result.Total == 0 {
			fmt.Printf("✓ No Telegram groups connected\n")
			fmt.Printf("Use: curia telegram connect-code %s\n", communityID)
			return nil
		}

		fmt.Printf("\n📣 Telegram Groups (%d)\n", result.Total)
		fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHAT ID\tTITLE\tACTIVE\tNOTIFICATIONS\tDELIVERED")

		for _, group := range result.Groups {
			active := "yes"
			if !group.IsActive {
				active = "no"
			}
			notifications := "on"
			if !group.NotificationsEnabled {
				notifications = "off"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n",
				group.ChatID,
				group.ChatTitle,
				active,
				notifications,
				group.NotificationCount)
		}

		w.Flush()
		fmt.Printf("\n")
	}

	return nil
}

func mintConnectCode(communityID string) error {
	endpoint := apiURL + "/api/communities/" + communityID + "/telegram/connect-code"

	req, err := http.NewRequest("POST", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+authToken)
	req.Header.Set("Content-Type", "application/json")

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
		code, _ := result["code"].(string)
		fmt.Printf("✓ Connect code minted: %s\n", code)
		if expires, ok := result["expires_in_seconds"].(float64); ok {
			fmt.Printf("  Expires in %d seconds\n", int(expires))
		}
		if instructions, ok := result["instructions"].(string); ok {
			fmt.Printf("  %s\n", instructions)
		}
	}

	return nil
}

func sendTestNotification(communityID string) error {
	endpoint := apiURL + "/api/communities/" + communityID + "/telegram/test"

	req, err := http.NewRequest("POST", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+authToken)
	req.Header.Set("Content-Type", "application/json")

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
		groups := 0
		if n, ok := result["groups"].(float64); ok {
			groups = int(n)
		}
		fmt.Printf("✓ Test notification queued for %d group(s)\n", groups)
		fmt.Printf("  Check the Telegram chats for the delivery\n")
	}

	return nil
}
