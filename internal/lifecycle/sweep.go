package lifecycle

import (
	"context"
	"time"

	"marktbot/internal/model"
)

// SweepAll checks every offer, voting and vacation against the current
// clock and fires the expiry action for each overdue entity. A failure on
// one entity never aborts the sweep of the others; the record stays put
// and the next sweep retries it.
func (s *Scheduler) SweepAll(ctx context.Context) {
	s.sweepOffers(ctx)
	s.sweepVotings(ctx)
	s.sweepVacations(ctx)
}

func (s *Scheduler) sweepOffers(ctx context.Context) {
	rows, err := s.st.Query(ctx, "offers", nil, "offer_id", "deadline")
	if err != nil {
		s.log.Error().Err(err).Msg("offer sweep scan failed")
		return
	}
	now := s.clk.Now().Unix()
	for _, r := range rows {
		if r.Int64("deadline") > now {
			continue
		}
		id := r.Int64("offer_id")
		if err := s.ExpireOffer(ctx, id); err != nil {
			s.log.Error().Err(err).Int64("offer", id).Msg("offer expiry failed, leaving for next sweep")
		}
	}
}

func (s *Scheduler) sweepVotings(ctx context.Context) {
	rows, err := s.st.Query(ctx, "votings", nil, "voting_id", "deadline")
	if err != nil {
		s.log.Error().Err(err).Msg("voting sweep scan failed")
		return
	}
	now := s.clk.Now().Unix()
	for _, r := range rows {
		if r.Int64("deadline") > now {
			continue
		}
		id := r.Int64("voting_id")
		if err := s.ExpireVoting(ctx, id); err != nil {
			s.log.Error().Err(err).Int64("voting", id).Msg("voting expiry failed, leaving for next sweep")
		}
	}
}

func (s *Scheduler) sweepVacations(ctx context.Context) {
	rows, err := s.st.Query(ctx, "vacations", nil, "vacation_id", "end_date")
	if err != nil {
		s.log.Error().Err(err).Msg("vacation sweep scan failed")
		return
	}
	today := model.Date(s.clk.Now().In(s.loc))
	for _, r := range rows {
		end, err := time.Parse(model.DateLayout, r.String("end_date"))
		if err != nil {
			s.log.Error().Err(err).Int64("vacation", r.Int64("vacation_id")).Msg("bad vacation end date")
			continue
		}
		if end.After(today) {
			continue
		}
		id := r.Int64("vacation_id")
		if err := s.ExpireVacation(ctx, id); err != nil {
			s.log.Error().Err(err).Int64("vacation", id).Msg("vacation expiry failed, leaving for next sweep")
		}
	}
}
