package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"resolvebot/internal/models"
	"resolvebot/internal/repositories"
	"resolvebot/internal/services"
)

const conflictReply = "Task already completed or not found."
const retryReply = "Something went wrong, please try again."

// Dispatcher routes inbound Telegram updates to lifecycle transitions. Each
// update is handled in its own goroutine; there is no in-memory locking —
// correctness under concurrent actions comes from the store's guarded
// updates.
type Dispatcher struct {
	client *Client
	tasks  services.TaskService
	done   chan struct{}
}

func NewDispatcher(client *Client, tasks services.TaskService) *Dispatcher {
	return &Dispatcher{client: client, tasks: tasks, done: make(chan struct{})}
}

// Run consumes the long-polling update channel until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := d.client.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			d.client.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go d.handle(ctx, update)
		}
	}
}

// Done closes once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) handle(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		d.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		d.handleCommand(ctx, update.Message)
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	switch msg.Command() {
	case "track":
		d.handleTrack(ctx, msg)
	case "tasks":
		d.handleTasks(ctx, msg)
	case "cancel":
		d.handleCancel(ctx, msg)
	case "reassign":
		d.handleReassign(ctx, msg)
	case "help", "start":
		d.client.reply(msg.Chat.ID, msg.MessageID, trackUsage)
	}
}

func (d *Dispatcher) handleTrack(ctx context.Context, msg *tgbotapi.Message) {
	req, err := parseTrackCommand(msg, time.Now())
	if err != nil {
		d.client.reply(msg.Chat.ID, msg.MessageID, "⚠️ "+err.Error())
		return
	}
	if req.escalateChat != nil && !d.client.ChatAccessible(*req.escalateChat) {
		d.client.reply(msg.Chat.ID, msg.MessageID,
			fmt.Sprintf("⚠️ I can't post to chat <code>%d</code> — add me there first.", *req.escalateChat))
		return
	}

	task, err := d.tasks.Create(ctx, services.CreateTaskInput{
		ChatID:          msg.Chat.ID,
		AssigneeID:      req.assigneeID,
		AssigneeName:    req.assigneeName,
		CreatorID:       msg.From.ID,
		Description:     req.description,
		Delay:           req.delay,
		IntervalMinutes: req.interval,
		EscalateChatID:  req.escalateChat,
		DueDate:         req.dueDate,
	})
	if err != nil {
		log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("create task failed")
		d.client.reply(msg.Chat.ID, msg.MessageID, retryReply)
		return
	}
	log.Info().Str("task_id", task.ID).Int64("chat_id", task.ChatID).
		Int64("assignee_id", task.AssigneeID).Msg("task created")

	messageID, err := d.client.SendCard(task)
	if err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Msg("posting status card failed")
		return
	}
	// Cosmetic back-reference only; the lifecycle does not depend on it.
	if err := d.tasks.SetTrackingMessage(ctx, task.ID, int64(messageID)); err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Msg("recording tracking message failed")
	}
}

func (d *Dispatcher) handleTasks(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	tasks, err := d.tasks.List(ctx, models.TaskFilter{ChatID: &chatID, Open: true})
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("listing tasks failed")
		d.client.reply(chatID, msg.MessageID, retryReply)
		return
	}
	d.client.reply(chatID, msg.MessageID, listText(tasks))
}

func (d *Dispatcher) handleCancel(ctx context.Context, msg *tgbotapi.Message) {
	task, userErr := d.findOpenTask(ctx, msg.Chat.ID, msg.CommandArguments())
	if userErr != "" {
		d.client.reply(msg.Chat.ID, msg.MessageID, userErr)
		return
	}
	updated, err := d.tasks.Cancel(ctx, task.ID)
	if err != nil {
		d.replyTransitionError(msg, task.ID, "cancel", err)
		return
	}
	d.client.reply(msg.Chat.ID, msg.MessageID, "🗑 Task cancelled.")
	d.refreshCard(updated)
}

func (d *Dispatcher) handleReassign(ctx context.Context, msg *tgbotapi.Message) {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) < 2 {
		d.client.reply(msg.Chat.ID, msg.MessageID, "Usage: /reassign <task id> @name")
		return
	}
	task, userErr := d.findOpenTask(ctx, msg.Chat.ID, fields[0])
	if userErr != "" {
		d.client.reply(msg.Chat.ID, msg.MessageID, userErr)
		return
	}

	assigneeID, assigneeName := firstTextMention(msg)
	if assigneeName == "" {
		for _, tok := range fields[1:] {
			if strings.HasPrefix(tok, "@") {
				assigneeName = strings.TrimPrefix(tok, "@")
				break
			}
		}
	}
	if assigneeID == 0 && assigneeName == "" {
		d.client.reply(msg.Chat.ID, msg.MessageID, "Mention who should take the task over.")
		return
	}

	updated, err := d.tasks.Reassign(ctx, task.ID, assigneeID, assigneeName)
	if err != nil {
		d.replyTransitionError(msg, task.ID, "reassign", err)
		return
	}
	d.client.reply(msg.Chat.ID, msg.MessageID,
		"👤 Task handed to "+mention(updated.AssigneeID, updated.AssigneeName)+".")
	d.refreshCard(updated)
}

func (d *Dispatcher) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	action, id, ok := parseCallbackData(cq.Data)
	if !ok {
		return
	}

	var (
		task *models.Task
		err  error
		ack  string
	)
	switch action {
	case "resolve":
		task, err = d.tasks.Resolve(ctx, id, cq.From.ID)
		ack = "Resolved 🎉"
	case "snooze30":
		task, err = d.tasks.Snooze(ctx, id, 30*time.Minute)
		ack = "Snoozed for 30 minutes"
	case "snooze60":
		task, err = d.tasks.Snooze(ctx, id, time.Hour)
		ack = "Snoozed for 1 hour"
	case "claim":
		task, err = d.tasks.Reassign(ctx, id, cq.From.ID, displayName(cq.From))
		ack = "The task is yours now"
	default:
		return
	}

	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			d.client.answerCallback(cq.ID, conflictReply)
		} else {
			log.Error().Err(err).Str("task_id", id).Str("action", action).Msg("button transition failed")
			d.client.answerCallback(cq.ID, retryReply)
		}
		return
	}

	log.Info().Str("task_id", task.ID).Str("action", action).
		Int64("actor_id", cq.From.ID).Msg("task transition applied")
	d.client.answerCallback(cq.ID, ack)
	if cq.Message != nil {
		if err := d.client.EditCard(cq.Message.Chat.ID, cq.Message.MessageID, task); err != nil {
			log.Error().Err(err).Str("task_id", task.ID).Msg("updating status card failed")
		}
	}
}

// findOpenTask resolves a user-typed id (usually the 8-char prefix shown on
// cards) against the chat's open tasks. The second return value is a
// user-facing error message, empty on success.
func (d *Dispatcher) findOpenTask(ctx context.Context, chatID int64, ref string) (*models.Task, string) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, "Give me a task id — see /tasks."
	}
	tasks, err := d.tasks.List(ctx, models.TaskFilter{ChatID: &chatID, Open: true})
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("listing tasks failed")
		return nil, retryReply
	}
	var match *models.Task
	for i := range tasks {
		if strings.HasPrefix(tasks[i].ID, ref) {
			if match != nil {
				return nil, "That id matches more than one task, use a longer prefix."
			}
			match = &tasks[i]
		}
	}
	if match == nil {
		return nil, conflictReply
	}
	return match, ""
}

func (d *Dispatcher) replyTransitionError(msg *tgbotapi.Message, taskID, action string, err error) {
	if errors.Is(err, repositories.ErrConflict) {
		d.client.reply(msg.Chat.ID, msg.MessageID, conflictReply)
		return
	}
	log.Error().Err(err).Str("task_id", taskID).Str("action", action).Msg("transition failed")
	d.client.reply(msg.Chat.ID, msg.MessageID, retryReply)
}

// refreshCard rewrites the tracking status card when we know where it is.
func (d *Dispatcher) refreshCard(t *models.Task) {
	if t.TrackingMessageID == nil {
		return
	}
	if err := d.client.EditCard(t.ChannelID, int(*t.TrackingMessageID), t); err != nil {
		log.Error().Err(err).Str("task_id", t.ID).Msg("updating status card failed")
	}
}
