package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	config "github.com/maheshrc27/postpilot/configs"
	"github.com/maheshrc27/postpilot/internal/logging"
)

// Notifier delivers a run summary to a human. Delivery is best-effort.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

type telegramNotifier struct {
	cfg    config.Telegram
	client *http.Client
	retry  RetryConfig
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// NewNotifier returns a Telegram notifier, or one that only logs when no bot
// is configured.
func NewNotifier(cfg config.Telegram, client *http.Client, retry RetryConfig, log logging.Logger) Notifier {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return &logNotifier{log: log}
	}
	return &telegramNotifier{cfg: cfg, client: client, retry: retry}
}

func (n *telegramNotifier) Send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(n.cfg.APIURL, "/"), n.cfg.BotToken)
	msg := telegramMessage{ChatID: n.cfg.ChatID, Text: text, DisableWebPagePreview: true}

	_, err := executeWithRetry(ctx, n.retry, retryRateLimited, func() (struct{}, error) {
		req, err := newJSONRequest(ctx, http.MethodPost, endpoint, msg)
		if err != nil {
			return struct{}{}, permanent(err)
		}
		return struct{}{}, doJSON(n.client, req, nil)
	})
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return nil
}

type logNotifier struct {
	log logging.Logger
}

func (n *logNotifier) Send(_ context.Context, text string) error {
	n.log.WithField("notification", text).Info("notification not configured, summary logged only")
	return nil
}
