// Package bot binds the task lifecycle to Telegram: it renders status cards,
// delivers reminders and escalations, and routes commands and button presses
// back into the lifecycle engine.
package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"resolvebot/internal/models"
)

// Client wraps the Telegram Bot API. It is the messaging collaborator: the
// lifecycle core only needs "send this and give me a message id back".
type Client struct {
	api *tgbotapi.BotAPI
}

func NewClient(token string) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("telegram bot authorized")
	return &Client{api: api}, nil
}

func (c *Client) send(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// SendCard posts a status card with action buttons and returns the id of the
// posted message, so the caller can record it as the tracking message.
func (c *Client) SendCard(t *models.Task) (int, error) {
	kb := actionKeyboard(t.ID)
	return c.send(t.ChannelID, cardText(t), &kb)
}

// SendReminder implements services.Notifier.
func (c *Client) SendReminder(ctx context.Context, t *models.Task) error {
	kb := actionKeyboard(t.ID)
	_, err := c.send(t.ChannelID, reminderText(t), &kb)
	return err
}

// SendEscalation implements services.Notifier. The escalation chat gets the
// wider-audience variant; the task row itself is untouched by this choice.
func (c *Client) SendEscalation(ctx context.Context, t *models.Task) error {
	if t.EscalateChatID == nil {
		return fmt.Errorf("task %s has no escalation chat", t.ID)
	}
	_, err := c.send(*t.EscalateChatID, escalationText(t), nil)
	return err
}

// EditCard rewrites an earlier status card in place. Terminal tasks lose
// their buttons.
func (c *Client) EditCard(chatID int64, messageID int, t *models.Task) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, cardText(t))
	edit.ParseMode = tgbotapi.ModeHTML
	if !t.Status.Terminal() {
		kb := actionKeyboard(t.ID)
		edit.ReplyMarkup = &kb
	}
	_, err := c.api.Send(edit)
	return err
}

// ChatAccessible reports whether the bot can currently address a chat.
func (c *Client) ChatAccessible(chatID int64) bool {
	_, err := c.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	return err == nil
}

func (c *Client) reply(chatID int64, replyTo int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyToMessageID = replyTo
	if _, err := c.api.Send(msg); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("reply failed")
	}
}

func (c *Client) answerCallback(callbackID, text string) {
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.Error().Err(err).Msg("answering callback failed")
	}
}
