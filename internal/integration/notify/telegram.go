package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/futig/risk-report-backend/internal/config"
	"github.com/futig/risk-report-backend/internal/entity"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Telegram posts a message to one chat when a run finishes or fails
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewTelegram authorises the bot. client may be nil to use the default HTTP client.
func NewTelegram(cfg config.TelegramConfig, client *http.Client, logger *zap.Logger) (*Telegram, error) {
	if client == nil {
		client = &http.Client{}
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, cfg.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot API: %w", err)
	}
	api.Debug = false

	logger.Info("telegram notifier authorized",
		zap.String("username", api.Self.UserName),
		zap.Int64("chat_id", cfg.ChatID),
	)

	return &Telegram{
		api:    api,
		chatID: cfg.ChatID,
		logger: logger,
	}, nil
}

// Sink returns an event sink for one run. Only terminal events produce a message.
func (t *Telegram) Sink(runID, title string) *TelegramSink {
	return &TelegramSink{telegram: t, runID: runID, title: title}
}

// Wait blocks until in-flight messages are sent or ctx is done.
func (t *Telegram) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Telegram) send(text string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		if _, err := t.api.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
			t.logger.Error("failed to send telegram notification",
				zap.Error(err),
				zap.Int64("chat_id", t.chatID),
			)
		}
	}()
}

type TelegramSink struct {
	telegram *Telegram
	runID    string
	title    string
}

func (s *TelegramSink) Emit(_ context.Context, event entity.WorkflowEvent) {
	switch event.Type {
	case entity.EventDone:
		if event.Report != nil {
			s.telegram.send(RenderDone(s.runID, s.title, event.Report))
		}
	case entity.EventError:
		s.telegram.send(RenderFailed(s.runID, s.title, event.Message))
	}
}
