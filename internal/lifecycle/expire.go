package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"marktbot/internal/chat"
	"marktbot/internal/model"
	"marktbot/internal/storage"
)

// ExpireOffer removes the offer's rendered message, deletes its record and
// decrements the owner's offer counter. A record that is already gone
// (cancelled, or expired by an earlier fire) makes this a no-op.
func (s *Scheduler) ExpireOffer(ctx context.Context, id int64) error {
	o, err := model.LoadOffer(ctx, s.st, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.removeMessage(ctx, KindOffer, o.Message); err != nil {
		return err
	}
	if err := o.Delete(ctx); err != nil {
		return err
	}

	u, err := model.LoadUser(ctx, s.st, o.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	u.AddOffers(-1)
	if err := u.Save(ctx); err != nil {
		return err
	}
	s.log.Info().Int64("offer", id).Int64("user", o.UserID).Msg("offer expired")
	return nil
}

// ExpireVoting notifies the owner, removes the rendered message and
// deletes the record. Safe to invoke twice for the same id.
func (s *Scheduler) ExpireVoting(ctx context.Context, id int64) error {
	v, err := model.LoadVoting(ctx, s.st, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	// Owner notification is best-effort; the close must not depend on it.
	if err := s.chat.SendUser(ctx, v.UserID, fmt.Sprintf("Your voting has closed: %s", v.Description)); err != nil {
		s.log.Warn().Err(err).Int64("voting", id).Msg("voting close notification failed")
	}

	if err := s.removeMessage(ctx, KindVoting, v.Message); err != nil {
		return err
	}
	if err := v.Delete(ctx); err != nil {
		return err
	}
	s.log.Info().Int64("voting", id).Msg("voting closed")
	return nil
}

// ExpireVacation removes the rendered message and deletes the record.
// Safe to invoke twice for the same id.
func (s *Scheduler) ExpireVacation(ctx context.Context, id int64) error {
	v, err := model.LoadVacation(ctx, s.st, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.removeMessage(ctx, KindVacation, v.Message); err != nil {
		return err
	}
	if err := v.Delete(ctx); err != nil {
		return err
	}
	s.log.Info().Int64("vacation", id).Msg("vacation ended")
	return nil
}

// removeMessage deletes an entity's rendered message. A message that was
// removed manually is expected and counts as success. Records written by
// older versions carry no chat id; those fall back to the configured
// channel for the kind.
func (s *Scheduler) removeMessage(ctx context.Context, kind Kind, ref chat.MessageRef) error {
	if ref.MessageID == 0 {
		return nil
	}
	if ref.ChatID == 0 {
		ref.ChatID = s.cfg.Channels[kind]
		if ref.ChatID == 0 {
			s.log.Warn().Str("kind", string(kind)).Msg("no channel configured, skipping message removal")
			return nil
		}
	}
	err := s.chat.DeleteMessage(ctx, ref)
	if errors.Is(err, chat.ErrMessageNotFound) {
		s.log.Debug().Int64("chat", ref.ChatID).Int64("message", ref.MessageID).Msg("rendered message already gone")
		return nil
	}
	return err
}
