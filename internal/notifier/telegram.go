package notifier

import (
	"context"
	"errors"
	"strings"

	"playcue/internal/retry"

	tele "gopkg.in/telebot.v4"
)

const telegramTextLimit = 4096

// TelegramSink sends notifications as plain text to one chat (and optional
// forum thread) through the Bot API.
type TelegramSink struct {
	bot      *tele.Bot
	chat     *tele.Chat
	threadID int
}

func NewTelegramSink(cfg TelegramConfig) (*TelegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notifier.telegram.token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("notifier.telegram.chat_id is required")
	}
	// Offline: no getMe round trip and no poller; this bot only sends.
	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimSpace(cfg.APIURL),
		Token:   cfg.Token,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: b, chat: &tele.Chat{ID: cfg.ChatID}, threadID: cfg.ThreadID}, nil
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Send(ctx context.Context, n Notification) error {
	text := n.Text
	if r := []rune(text); len(r) > telegramTextLimit {
		text = string(r[:telegramTextLimit-1]) + "…"
	}
	opt := &tele.SendOptions{
		DisableWebPagePreview: true,
		ThreadID:              t.threadID,
	}
	// telebot has no context support; run the call so ctx can abandon it.
	errCh := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(t.chat, text, opt)
		errCh <- err
	}()
	select {
	case err := <-errCh:
		return telegramErr(err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// telegramErr marks requests the Bot API rejected outright (unknown chat,
// blocked bot, bad token) so the delivery loop stops retrying them.
func telegramErr(err error) error {
	var terr *tele.Error
	if errors.As(err, &terr) && terr.Code >= 400 && terr.Code < 500 && terr.Code != 429 {
		return retry.NoRetry(err)
	}
	return err
}
