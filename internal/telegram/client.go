// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/solsignal/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	explorerURL    string
}

// NewClient creates a new Telegram client. explorerURL, when set, is a
// printf pattern taking a base58 address, used to link published signals.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, explorerURL string) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
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
		explorerURL:    explorerURL,
	}, nil
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a job error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(job string, runErr error) error {
	text := fmt.Sprintf("⚠️ *%s error*\n`%s`", escapeMarkdownV2(job), escapeMarkdownV2(runErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(job string, failureCount int) error {
	text := fmt.Sprintf("✅ *%s recovered* after %d consecutive failure\\(s\\)", escapeMarkdownV2(job), failureCount)
	return c.sendMarkdownV2(text)
}

// SendRunReport announces the signals published by an analyst run. Runs
// that published nothing are not sent.
func (c *Client) SendRunReport(r models.RunReport) error {
	if len(r.Published) == 0 {
		return nil
	}
	return c.sendMarkdownV2(formatRunReport(r, c.explorerURL, time.Now()))
}

// SendResolutionReport announces settled signals. Runs that settled
// nothing are not sent.
func (c *Client) SendResolutionReport(r models.ResolutionReport) error {
	if len(r.Resolved) == 0 {
		return nil
	}
	return c.sendMarkdownV2(formatResolutionReport(r))
}

func formatRunReport(r models.RunReport, explorerURL string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📡 *%d new signal%s*\n\n", len(r.Published), plural(len(r.Published)))

	for i, s := range r.Published {
		emoji := "📈"
		if s.Direction == models.Short {
			emoji = "📉"
		}
		title := escapeMarkdownV2(fmt.Sprintf("#%s %s %s", humanize.Comma(int64(s.Index)), s.Asset, strings.ToUpper(s.Direction.String())))
		if explorerURL != "" {
			title = fmt.Sprintf("[%s](%s)", title, fmt.Sprintf(explorerURL, s.Address))
		}
		fmt.Fprintf(&b, "%d\\. %s %s\n", i+1, emoji, title)
		fmt.Fprintf(&b, "   🎯 %s → %s, stop %s\n",
			escapeMarkdownV2(s.Entry.String()), escapeMarkdownV2(s.Target.String()), escapeMarkdownV2(s.Stop.String()))
		fmt.Fprintf(&b, "   %d%% confidence, settles %s\n\n",
			s.Confidence, escapeMarkdownV2(humanize.RelTime(s.ExpiresAt, now, "ago", "from now")))
	}

	if r.Failed > 0 {
		fmt.Fprintf(&b, "⚠️ %d publish%s failed\n", r.Failed, pluralES(r.Failed))
	}
	if r.Aborted {
		fmt.Fprintf(&b, "⛔ Stopped early: %s\n", escapeMarkdownV2(r.AbortReason))
	}
	return b.String()
}

func formatResolutionReport(r models.ResolutionReport) string {
	var b strings.Builder
	correct, incorrect, expired := r.Count(models.Correct), r.Count(models.Incorrect), r.Count(models.Expired)
	fmt.Fprintf(&b, "🏁 *%d signal%s settled*\n", len(r.Resolved), plural(len(r.Resolved)))
	fmt.Fprintf(&b, "✅ %d  ❌ %d  ⏱️ %d\n", correct, incorrect, expired)
	if scored := correct + incorrect; scored > 0 {
		fmt.Fprintf(&b, "Batch accuracy: %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f%%", float64(correct)/float64(scored)*100)))
	}
	b.WriteString("\n")

	for _, res := range r.Resolved {
		mark := "⏱️"
		switch res.Outcome {
		case models.Correct:
			mark = "✅"
		case models.Incorrect:
			mark = "❌"
		}
		line := fmt.Sprintf("#%s %s %s target %s, settled %s",
			humanize.Comma(int64(res.Index)), res.Asset, strings.ToUpper(res.Direction.String()), res.Target, res.Settlement)
		fmt.Fprintf(&b, "%s %s\n", mark, escapeMarkdownV2(line))
	}

	if r.NoPrice > 0 || r.Failed > 0 {
		fmt.Fprintf(&b, "\n⚠️ %d without price, %d failed\n", r.NoPrice, r.Failed)
	}
	return b.String()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func pluralES(n int) string {
	if n == 1 {
		return ""
	}
	return "es"
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
