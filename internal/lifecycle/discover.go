package lifecycle

import (
	"context"
	"time"
)

// DiscoverVotings scans the voting table and arms a one-shot timer for
// every voting that does not have one yet. Ids already in the
// de-duplication set are skipped; the set is never pruned within one
// process lifetime, so a voting is armed at most once per run.
func (s *Scheduler) DiscoverVotings(ctx context.Context) {
	rows, err := s.st.Query(ctx, "votings", nil, "voting_id", "wait_time", "create_time")
	if err != nil {
		s.log.Error().Err(err).Msg("voting discovery scan failed")
		return
	}

	now := s.clk.Now()
	for _, r := range rows {
		id := r.Int64("voting_id")
		key := armKey{KindVoting, id}

		s.mu.Lock()
		if _, ok := s.armed[key]; ok {
			s.mu.Unlock()
			continue
		}
		wait := time.Duration(r.Int64("wait_time")) * time.Second
		created := time.Unix(r.Int64("create_time"), 0)
		// Slack absorbs clock and scheduling jitter so the timer never
		// fires before the true deadline.
		delay := wait - now.Sub(created) + s.cfg.Slack
		if delay < s.cfg.Slack {
			delay = s.cfg.Slack
		}
		s.armed[key] = struct{}{}
		s.timers[key] = s.clk.AfterFunc(delay, func() { s.fireVoting(id) })
		s.mu.Unlock()

		s.log.Debug().Int64("voting", id).Dur("delay", delay).Msg("voting timer armed")
	}
}

func (s *Scheduler) fireVoting(id int64) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}
	if err := s.ExpireVoting(ctx, id); err != nil {
		s.log.Error().Err(err).Int64("voting", id).Msg("voting expiry failed, leaving for next sweep")
	}
}
