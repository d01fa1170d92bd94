// Package telegram sends a batch summary via the Telegram Bot API once a
// directory run finishes. Messages use MarkdownV2 and delivery is retried
// with a linear back-off.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/mtbevents/internal/models"
)

// sender is the part of *tgbotapi.BotAPI the client uses
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// Batch is the content of one run notification.
type Batch struct {
	RunID    string
	Files    []models.FileSummary
	Failures []string // names of files that could not be analyzed
	Elapsed  time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
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

// Send sends the batch summary
func (c *Client) Send(b Batch) error {
	msg := tgbotapi.NewMessage(c.chatID, formatMessage(b))
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatMessage formats a batch into a Telegram message
func formatMessage(b Batch) string {
	var sb strings.Builder
	sb.WriteString("🔬 *MTB event analysis finished*\n\n")

	if b.RunID != "" {
		fmt.Fprintf(&sb, "Run: `%s`\n", b.RunID)
	}
	fmt.Fprintf(&sb, "Files: %d analyzed, %d failed, %s\n\n",
		len(b.Files), len(b.Failures), escapeMarkdownV2(formatDuration(b.Elapsed)))

	for i, f := range b.Files {
		revPct := escapeMarkdownV2(fmt.Sprintf("%.2f%%", f.ReverseProbability*100))
		tumblePct := escapeMarkdownV2(fmt.Sprintf("%.2f%%", f.TumbleProbability*100))

		fmt.Fprintf(&sb, "%d\\. *%s*\n", i+1, escapeMarkdownV2(f.Stem()))
		fmt.Fprintf(&sb, "   ↩️ Reverses: %d \\(%s\\)\n", f.Reverses, revPct)
		fmt.Fprintf(&sb, "   🌀 Tumbles: %d \\(%s\\)\n", f.Tumbles, tumblePct)
		fmt.Fprintf(&sb, "   🧫 Trajectories: %d/%d\n\n", f.TrajectoriesUsed, f.TrajectoriesFound)
	}

	if len(b.Failures) > 0 {
		sb.WriteString("⚠️ Failed:\n")
		for _, name := range b.Failures {
			fmt.Fprintf(&sb, "   • %s\n", escapeMarkdownV2(name))
		}
	}

	return sb.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . !
	var sb strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			sb.WriteByte('\\')
		}
		sb.WriteRune(char)
	}
	return sb.String()
}

// formatDuration formats a run time in a human-readable way
func formatDuration(d time.Duration) string {
	if d >= time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
