// Package telegram implements chat.Messenger over the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"

	"marktbot/internal/chat"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log zerolog.Logger
	bot *tele.Bot
}

func New(cfg Config, log zerolog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref chat.MessageRef) error {
	err := a.bot.Delete(tele.StoredMessage{
		MessageID: strconv.FormatInt(ref.MessageID, 10),
		ChatID:    ref.ChatID,
	})
	if err == nil {
		return nil
	}
	if isGone(err) {
		return chat.ErrMessageNotFound
	}
	return err
}

func (a *Adapter) SendUser(ctx context.Context, userID int64, text string) error {
	_, err := a.bot.Send(&tele.User{ID: userID}, text)
	return err
}

// isGone reports whether the API refused the deletion because the message
// no longer exists (manually removed, or the chat is gone).
func isGone(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "message to delete not found") ||
		strings.Contains(msg, "message can't be deleted") ||
		strings.Contains(msg, "chat not found") ||
		strings.Contains(msg, "message_id_invalid")
}
