package bot

import (
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"resolvebot/internal/models"
)

var statusLabels = map[models.TaskStatus]string{
	models.StatusActive:    "active",
	models.StatusSnoozed:   "snoozed",
	models.StatusResolved:  "resolved ✅",
	models.StatusCancelled: "cancelled 🗑",
}

// mention renders an assignee reference. With a numeric id Telegram links the
// real account; otherwise fall back to a plain @name.
func mention(id int64, name string) string {
	if name == "" {
		name = "assignee"
	}
	if id == 0 {
		return "@" + html.EscapeString(name)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, id, html.EscapeString(name))
}

func cardText(t *models.Task) string {
	due := "—"
	if t.DueDate != nil {
		due = t.DueDate.Format("2006-01-02")
	}
	return "📌 <b>" + html.EscapeString(t.Description) + "</b>\n" +
		"• Assignee: " + mention(t.AssigneeID, t.AssigneeName) + "\n" +
		"• Status: <code>" + statusLabels[t.Status] + "</code>\n" +
		"• Due: <code>" + due + "</code>\n" +
		"• Pings: <code>" + fmt.Sprintf("%d/%d", t.PingCount, t.MaxPings) + "</code>\n" +
		"• ID: <code>" + shortID(t.ID) + "</code>"
}

func reminderText(t *models.Task) string {
	return "⏰ " + mention(t.AssigneeID, t.AssigneeName) + ", still unresolved:\n" +
		cardText(t)
}

func escalationText(t *models.Task) string {
	return "🚨 <b>Escalation</b>: no response after " +
		fmt.Sprintf("%d", t.PingCount) + " reminders.\n" +
		cardText(t)
}

func listText(tasks []models.Task) string {
	if len(tasks) == 0 {
		return "No open tasks here."
	}
	var b strings.Builder
	b.WriteString("Open tasks:\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "• <code>%s</code> %s — %s (<code>%s</code>)\n",
			shortID(t.ID), mention(t.AssigneeID, t.AssigneeName),
			html.EscapeString(t.Description), t.Status)
	}
	return b.String()
}

func actionKeyboard(taskID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Resolve", "resolve:"+taskID),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("😴 30m", "snooze30:"+taskID),
			tgbotapi.NewInlineKeyboardButtonData("😴 1h", "snooze60:"+taskID),
			tgbotapi.NewInlineKeyboardButtonData("🙋 Take over", "claim:"+taskID),
		),
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
