// Package telegram provides the Telegram bot front end: spawn-chance alerts, the
// boss table and chat commands for recording kills.
// It formats engine estimates into MarkdownV2 messages and retries failed sends.
//
// Commands are accepted only from the configured chat.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/spawnoracle/internal/logger"
	"github.com/rewired-gh/spawnoracle/internal/models"
)

// Client handles Telegram notifications and commands
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// send delivers a MarkdownV2 message with retry
func (c *Client) send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// SendAlert sends the bosses that reached the alert threshold
func (c *Client) SendAlert(due []models.SpawnEstimate, precision int, now time.Time) error {
	if len(due) == 0 {
		return nil
	}
	return c.send(formatAlert(due, precision, now))
}

// SendText sends plain text, escaped for MarkdownV2
func (c *Client) SendText(text string) error {
	return c.send(escapeMarkdownV2(text))
}

// SendError notifies the chat that a refresh cycle failed
func (c *Client) SendError(err error) error {
	return c.send("⚠️ *Spawn refresh failed*\n\n" + escapeMarkdownV2(err.Error()))
}

// SendRecovery notifies the chat that refreshing works again
func (c *Client) SendRecovery(failures int) error {
	return c.send(fmt.Sprintf("✅ *Spawn refresh recovered* after %d failed cycle%s", failures, plural(failures)))
}

// ListenForCommands handles chat commands until ctx is done. Messages from other
// chats are ignored. Runs in its own goroutine.
func (c *Client) ListenForCommands(ctx context.Context, h *Handler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		defer c.bot.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				c.handleUpdate(ctx, h, update)
			}
		}
	}()
	logger.Info("Listening for Telegram commands in chat %d", c.chatID)
}

func (c *Client) handleUpdate(ctx context.Context, h *Handler, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	if msg.Chat == nil || msg.Chat.ID != c.chatID {
		logger.Debug("Ignoring command from chat %v", msg.Chat)
		return
	}

	reply := h.Handle(ctx, msg.Command(), msg.CommandArguments(), senderName(msg.From))
	out := tgbotapi.NewMessage(c.chatID, reply)
	out.ParseMode = tgbotapi.ModeMarkdownV2
	out.ReplyToMessageID = msg.MessageID
	if _, err := c.bot.Send(out); err != nil {
		logger.Warn("Failed to reply to /%s: %v", msg.Command(), err)
	}
}

func senderName(u *tgbotapi.User) string {
	if u == nil {
		return "unknown"
	}
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return u.FirstName
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
