// Package notify wraps a chat.Messenger with a token-bucket rate limit on
// outbound user messages, so expiry bursts (e.g. the daily backstop sweep
// closing many votings at once) don't trip platform flood limits.
package notify

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"marktbot/internal/chat"
)

// Service implements chat.Messenger. Deletions pass through unthrottled;
// user messages wait for the limiter.
type Service struct {
	inner   chat.Messenger
	limiter *rate.Limiter
	log     zerolog.Logger
}

func New(inner chat.Messenger, ratePerSec int, log zerolog.Logger) *Service {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &Service{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log,
	}
}

func (s *Service) DeleteMessage(ctx context.Context, ref chat.MessageRef) error {
	return s.inner.DeleteMessage(ctx, ref)
}

func (s *Service) SendUser(ctx context.Context, userID int64, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.inner.SendUser(ctx, userID, text)
}
