package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"resolvebot/internal/parser"
)

const trackUsage = `Usage: /track @name description [due:tomorrow|3/15|2026-03-15] [in:30m] [every:45] [escalate:&lt;chat id&gt;]
Reply to a message with /track @name to track its text.`

// trackRequest is the parsed form of a /track command.
type trackRequest struct {
	assigneeID   int64
	assigneeName string
	description  string
	delay        time.Duration
	interval     int
	escalateChat *int64
	dueDate      *time.Time
}

// parseTrackCommand extracts a track request from the command arguments.
// Option tokens are key:value pairs; the first @mention names the assignee;
// remaining words form the description. When the command is a reply and
// carries no description words, the replied message's text is used instead.
// All errors are user-input errors fit to show back to the actor.
func parseTrackCommand(msg *tgbotapi.Message, now time.Time) (*trackRequest, error) {
	req := &trackRequest{}
	var descWords []string

	for _, tok := range strings.Fields(msg.CommandArguments()) {
		switch {
		case strings.HasPrefix(tok, "due:"):
			v := strings.TrimPrefix(tok, "due:")
			d, ok := parser.ParseDueDate(v, now)
			if !ok {
				return nil, fmt.Errorf("unrecognized due date %q — try tomorrow, 3/15 or 2026-03-15", v)
			}
			req.dueDate = &d
		case strings.HasPrefix(tok, "in:"):
			v := strings.TrimPrefix(tok, "in:")
			d, ok := parser.ParseDelay(v)
			if !ok {
				return nil, fmt.Errorf("unrecognized delay %q — use <n>m, <n>h or <n>d", v)
			}
			req.delay = d
		case strings.HasPrefix(tok, "every:"):
			v := strings.TrimPrefix(tok, "every:")
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("interval %q must be a positive number of minutes", v)
			}
			req.interval = n
		case strings.HasPrefix(tok, "escalate:"):
			v := strings.TrimPrefix(tok, "escalate:")
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("escalation target %q must be a chat id", v)
			}
			req.escalateChat = &id
		case strings.HasPrefix(tok, "@") && req.assigneeName == "":
			req.assigneeName = strings.TrimPrefix(tok, "@")
		default:
			descWords = append(descWords, tok)
		}
	}

	// A text_mention entity carries the numeric user id; prefer it over the
	// bare @username, which Telegram does not resolve for bots.
	if id, name := firstTextMention(msg); id != 0 {
		req.assigneeID = id
		if req.assigneeName == "" {
			req.assigneeName = name
		}
	}
	if req.assigneeID == 0 && req.assigneeName == "" {
		return nil, errors.New("mention an assignee, e.g. /track @name fix the build")
	}

	req.description = strings.Join(descWords, " ")
	if req.description == "" && msg.ReplyToMessage != nil {
		req.description = msg.ReplyToMessage.Text
	}
	if req.description == "" {
		return nil, errors.New("add a short description of what needs resolving")
	}
	return req, nil
}

func firstTextMention(msg *tgbotapi.Message) (int64, string) {
	for _, e := range msg.Entities {
		if e.Type == "text_mention" && e.User != nil {
			return e.User.ID, displayName(e.User)
		}
	}
	return 0, ""
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// parseCallbackData splits button payload "<action>:<task id>". Malformed
// payloads are reported as not ok and silently dropped by the caller.
func parseCallbackData(data string) (action, id string, ok bool) {
	action, id, found := strings.Cut(data, ":")
	if !found || action == "" || id == "" {
		return "", "", false
	}
	return action, id, true
}
