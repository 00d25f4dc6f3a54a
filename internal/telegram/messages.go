package telegram

import (
	"fmt"
	"html"
	"strings"

	"github.com/flotob/curia-sub002/internal/models"
)

const previewLength = 160

func (b *Bot) startText() string {
	return fmt.Sprintf(`👋 I post forum activity into Telegram group chats.

To connect a community:
1. Add @%s to your group
2. In the forum, open Community Settings → Telegram and generate a connect code
3. Run <code>/connect CODE</code> here

/help lists all commands.`, b.botName)
}

func (b *Bot) helpText() string {
	return `<b>Commands</b>
/connect <code>CODE</code> - bind this group to a community
/disconnect - stop notifications for this group
/status - show the current binding and delivery stats
/help - this message`
}

// formatNotification renders one event as a Telegram HTML message. link
// may be empty, in which case the message carries no deep link.
func formatNotification(event *Notification, link string) string {
	var sb strings.Builder

	switch event.Type {
	case models.TelegramEventPostCreated:
		fmt.Fprintf(&sb, "📝 <b>%s</b> posted in <b>%s</b>\n\n<b>%s</b>",
			html.EscapeString(event.ActorName),
			html.EscapeString(event.BoardName),
			html.EscapeString(event.PostTitle),
		)
		if event.Preview != "" {
			fmt.Fprintf(&sb, "\n%s", html.EscapeString(event.Preview))
		}

	case models.TelegramEventCommentCreated:
		fmt.Fprintf(&sb, "💬 <b>%s</b> commented on <b>%s</b>",
			html.EscapeString(event.ActorName),
			html.EscapeString(event.PostTitle),
		)
		if event.Preview != "" {
			fmt.Fprintf(&sb, "\n%s", html.EscapeString(event.Preview))
		}

	case models.TelegramEventUpvoteMilestone:
		fmt.Fprintf(&sb, "🔥 <b>%s</b> reached %d upvotes in <b>%s</b>",
			html.EscapeString(event.PostTitle),
			event.Milestone,
			html.EscapeString(event.BoardName),
		)

	case models.TelegramEventTest:
		fmt.Fprintf(&sb, "🔔 Test notification requested by <b>%s</b>. If you can read this, the binding works.",
			html.EscapeString(event.ActorName),
		)

	default:
		fmt.Fprintf(&sb, "<b>%s</b>", html.EscapeString(event.PostTitle))
	}

	if link != "" {
		fmt.Fprintf(&sb, "\n\n<a href=\"%s\">Open in the forum</a>", link)
	}

	return sb.String()
}

// formatDailyDigest renders one community's previous-day summary.
func formatDailyDigest(communityName string, stats *DigestStats, link string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "🗞 <b>%s</b> yesterday\n\n", html.EscapeString(communityName))
	fmt.Fprintf(&sb, "📝 %d new %s\n", stats.PostCount, plural(stats.PostCount, "post", "posts"))
	fmt.Fprintf(&sb, "💬 %d new %s", stats.CommentCount, plural(stats.CommentCount, "comment", "comments"))

	if stats.TopPostTitle != "" {
		fmt.Fprintf(&sb, "\n\n🔥 Top post: <b>%s</b> (%d upvotes)",
			html.EscapeString(stats.TopPostTitle), stats.TopPostUpvotes)
	}

	if link != "" {
		fmt.Fprintf(&sb, "\n\n<a href=\"%s\">Open in the forum</a>", link)
	}

	return sb.String()
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// preview flattens markdown-ish content into a single short line.
func preview(content string) string {
	flat := strings.Join(strings.Fields(content), " ")
	runes := []rune(flat)
	if len(runes) <= previewLength {
		return flat
	}
	return strings.TrimSpace(string(runes[:previewLength-1])) + "…"
}
