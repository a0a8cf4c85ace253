package lifecycle

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"marktbot/internal/chat"
	"marktbot/internal/storage"
)

// Kind names one expiring entity kind.
type Kind string

const (
	KindOffer    Kind = "offer"
	KindVoting   Kind = "voting"
	KindVacation Kind = "vacation"
)

type Config struct {
	// DiscoveryInterval is how often the voting table is scanned for
	// votings that still need a timer. Default 30s.
	DiscoveryInterval time.Duration
	// Slack is added to every armed delay so a timer never fires strictly
	// before the true deadline. Default 2s.
	Slack time.Duration
	// BackstopAt is the local HH:MM at which the daily full sweep runs.
	// Default "23:59".
	BackstopAt string
	// Timezone is an IANA zone for the backstop schedule; empty means the
	// process-local zone.
	Timezone string
	// Channels are the default chats per entity kind, used to resolve a
	// rendered message whose record predates per-record chat ids.
	Channels map[Kind]int64
}

func (c Config) withDefaults() Config {
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = 30 * time.Second
	}
	if c.Slack <= 0 {
		c.Slack = 2 * time.Second
	}
	if strings.TrimSpace(c.BackstopAt) == "" {
		c.BackstopAt = "23:59"
	}
	return c
}

type armKey struct {
	kind Kind
	id   int64
}

// Scheduler owns the de-duplication set, all armed timers and the sweep
// triggers. Construct one per process with New; it is not restartable.
type Scheduler struct {
	cfg  Config
	st   *storage.Store
	chat chat.Messenger
	log  zerolog.Logger
	clk  clock.Clock
	loc  *time.Location

	mu     sync.Mutex
	armed  map[armKey]struct{}
	timers map[armKey]*clock.Timer

	c       *cron.Cron
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a scheduler. clk may be nil for the wall clock; tests pass a
// mock so timers fire under a virtual clock.
func New(cfg Config, st *storage.Store, messenger chat.Messenger, clk clock.Clock, log zerolog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	s := &Scheduler{
		cfg:    cfg.withDefaults(),
		st:     st,
		chat:   messenger,
		log:    log,
		clk:    clk,
		armed:  map[armKey]struct{}{},
		timers: map[armKey]*clock.Timer{},
	}
	s.loc = s.loadLocation()
	return s
}

// Start runs the startup catch-up sweep synchronously, then launches the
// discovery loop and the daily backstop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.runCtx, s.cancel = context.WithCancel(ctx)
	runCtx := s.runCtx
	s.mu.Unlock()

	// Recover expiries missed while the process was down.
	s.SweepAll(runCtx)

	hour, minute, err := parseHHMM(s.cfg.BackstopAt)
	if err != nil {
		return fmt.Errorf("backstop_at: %w", err)
	}
	s.c = cron.New(cron.WithLocation(s.loc))
	_, err = s.c.AddFunc(fmt.Sprintf("%d %d * * *", minute, hour), func() {
		s.SweepAll(runCtx)
	})
	if err != nil {
		return err
	}
	s.c.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.discoveryLoop(runCtx)
	}()

	s.log.Info().
		Dur("discovery_interval", s.cfg.DiscoveryInterval).
		Str("backstop_at", s.cfg.BackstopAt).
		Str("tz", s.loc.String()).
		Msg("lifecycle scheduler started")
	return nil
}

// Stop cancels the discovery loop, the backstop and all armed timers.
// Stopped timers fire again after a restart via the startup sweep.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	c := s.c
	s.c = nil
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[armKey]*clock.Timer{}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info().Msg("lifecycle scheduler stopped")
}

func (s *Scheduler) discoveryLoop(ctx context.Context) {
	s.DiscoverVotings(ctx)

	t := s.clk.Ticker(s.cfg.DiscoveryInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.DiscoverVotings(ctx)
		}
	}
}

func (s *Scheduler) loadLocation() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn().Str("tz", tz).Err(err).Msg("invalid timezone, falling back to Local")
		return time.Local
	}
	return loc
}

func parseHHMM(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
