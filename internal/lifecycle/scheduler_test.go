package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"marktbot/internal/chat"
	"marktbot/internal/model"
	"marktbot/internal/storage"
)

type fakeMessenger struct {
	mu        sync.Mutex
	deleted   []chat.MessageRef
	sent      map[int64][]string
	deleteErr map[int64]error // keyed by message id
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{sent: map[int64][]string{}, deleteErr: map[int64]error{}}
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, ref chat.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.deleteErr[ref.MessageID]; ok && err != nil {
		return err
	}
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeMessenger) SendUser(_ context.Context, userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[userID] = append(f.sent[userID], text)
	return nil
}

func (f *fakeMessenger) deleteCount(messageID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ref := range f.deleted {
		if ref.MessageID == messageID {
			n++
		}
	}
	return n
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "data.db")}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestScheduler(t *testing.T, st *storage.Store, clk clock.Clock) (*Scheduler, *fakeMessenger) {
	t.Helper()
	fm := newFakeMessenger()
	return New(Config{}, st, fm, clk, zerolog.Nop()), fm
}

func insertUser(t *testing.T, st *storage.Store, id, offers int64) {
	t.Helper()
	_, err := st.Insert(context.Background(), "users",
		[]string{"user_id", "offers_count", "shop_count"}, id, offers, 0)
	require.NoError(t, err)
}

func insertOffer(t *testing.T, st *storage.Store, user, deadline, msgID int64) int64 {
	t.Helper()
	id, err := st.Insert(context.Background(), "offers",
		[]string{"user_id", "title", "deadline", "chat_id", "message_id"},
		user, "offer", deadline, -100, msgID)
	require.NoError(t, err)
	return id
}

func insertVoting(t *testing.T, st *storage.Store, user, create, wait, msgID int64) int64 {
	t.Helper()
	id, err := st.Insert(context.Background(), "votings",
		[]string{"user_id", "description", "deadline", "wait_time", "create_time", "chat_id", "message_id"},
		user, "poll", create+wait, wait, create, -100, msgID)
	require.NoError(t, err)
	return id
}

func insertVacation(t *testing.T, st *storage.Store, endDate string, msgID int64) int64 {
	t.Helper()
	id, err := st.Insert(context.Background(), "vacations",
		[]string{"end_date", "chat_id", "message_id"}, endDate, -100, msgID)
	require.NoError(t, err)
	return id
}

func countRows(t *testing.T, st *storage.Store, table string) int {
	t.Helper()
	rows, err := st.Query(context.Background(), table, nil)
	require.NoError(t, err)
	return len(rows)
}

func TestStartupSweepExpiresOverdueOffer(t *testing.T) {
	st := newTestStore(t)
	mock := clock.NewMock()
	s, fm := newTestScheduler(t, st, mock)
	ctx := context.Background()

	insertUser(t, st, 1, 2)
	insertOffer(t, st, 1, mock.Now().Unix()-1, 900)

	s.SweepAll(ctx)

	require.Zero(t, countRows(t, st, "offers"))
	require.Equal(t, 1, fm.deleteCount(900))

	u, err := model.LoadUser(ctx, st, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), u.OffersCount)
}

func TestSweepLeavesFutureEntitiesAlone(t *testing.T) {
	st := newTestStore(t)
	mock := clock.NewMock()
	s, fm := newTestScheduler(t, st, mock)
	ctx := context.Background()

	insertUser(t, st, 1, 1)
	insertOffer(t, st, 1, mock.Now().Unix()+3600, 901)
	insertVoting(t, st, 1, mock.Now().Unix(), 3600, 902)

	s.SweepAll(ctx)

	require.Equal(t, 1, countRows(t, st, "offers"))
	require.Equal(t, 1, countRows(t, st, "votings"))
	require.Empty(t, fm.deleted)
}

func TestExpiryActionIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	mock := clock.NewMock()
	s, fm := newTestScheduler(t, st, mock)
	ctx := context.Background()

	insertUser(t, st, 1, 1)
	id := insertOffer(t, st, 1, mock.Now().Unix()-1, 903)

	require.NoError(t, s.ExpireOffer(ctx, id))
	require.NoError(t, s.ExpireOffer(ctx, id))

	require.Equal(t, 1, fm.deleteCount(903))
	u, err := model.LoadUser(ctx, st, 1)
	require.NoError(t, err)
	require.Zero(t, u.OffersCount)
}

func TestOfferCounterNeverGoesNegative(t *testing.T) {
	st := newTestStore(t)
	mock := clock.NewMock()
	s, _ := newTestScheduler(t, st, mock)
	ctx := context.Background()

	// Counter already at zero due to some earlier inconsistency.
	insertUser(t, st, 1, 0)
	id := insertOffer(t, st, 1, mock.Now().Unix()-1, 904)

	require.NoError(t, s.ExpireOffer(ctx, id))
	require.NoError(t, s.ExpireOffer(ctx, id))

	u, err := model.LoadUser(ctx, st, 1)
	require.NoError(t, err)
	require.Zero(t, u.OffersCount)
}

func TestDoubleSweepDoesNotDoubleFire(t *testing.T) {
	st := newTestStore(t)
	mock := clock.NewMock()
	s, fm := newTestScheduler(t, st, mock)
	ctx := context.Background()

	insertUser(t, st, 1, 1)
	insertOffer(t, st, 1, mock.Now().Unix()-10, 905)

	s.SweepAll(ctx)
	s.SweepAll(ctx)

	require.Equal(t, 1, fm.deleteCount(905))
	u, err := model.LoadUser(ctx, st, 1)
	require.NoError(t, err)
	require.Zero(t, u.OffersCount)
}

func TestVotingTimerFiresExactlyOnceUnderVirtualClock(t *testing.T) {
	st := newTestStore(t)
	mock := clock.NewMock()
	s, fm := newTestScheduler(t, st, mock)
	ctx := context.Background()

	insertUser(t, st, 3, 0)
	insertVoting(t, st, 3, mock.Now().Unix(), 5, 906)

	s.DiscoverVotings(ctx)
	// Repeated discovery before the fire must not arm a second timer.
	s.DiscoverVotings(ctx)
	require.Len(t, s.timers, 1)

	// Not yet due: the timer must not fire before deadline+slack.
	mock.Add(4 * time.Second)
	require.Equal(t, 1, countRows(t, st, "votings"))
	require.Zero(t, fm.deleteCount(906))

	// Crossing deadline+slack fires once. The callback runs on its own
	// goroutine, so give it a moment to finish.
	mock.Add(3 * time.Second)
	require.Eventually(t, func() bool {
		return countRows(t, st, "votings") == 0
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, fm.deleteCount(906))
	require.Len(t, fm.sent[3], 1)

	// Nothing further fires, ever.
	mock.Add(time.Hour)
	require.Equal(t, 1, fm.deleteCount(906))
	require.Len(t, fm.sent[3], 1)
}

func TestCancelledVotingFireIsNoop(t *testing.T) {
	st := newTestStore(t)
	mock := clock.NewMock()
	s, fm := newTestScheduler(t, st, mock)
	ctx := context.Background()

	insertUser(t, st, 4, 0)
	id := insertVoting(t, st, 4, mock.Now().Unix(), 5, 907)

	s.DiscoverVotings(ctx)

	// The user cancels the voting before the timer fires.
	require.NoError(t, st.Delete(ctx, "votings", []storage.Cond{storage.Equals("voting_id", id)}))

	mock.Add(10 * time.Second)
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, fm.deleted)
	require.Empty(t, fm.sent)
}

func TestRestartSweepFiresEachMissedExpiryOnce(t *testing.T) {
	st := newTestStore(t)
	mock := clock.NewMock()
	first, _ := newTestScheduler(t, st, mock)
	ctx := context.Background()

	insertUser(t, st, 1, 2)
	insertUser(t, st, 2, 1)
	insertOffer(t, st, 1, mock.Now().Unix()-5, 910)
	insertOffer(t, st, 2, mock.Now().Unix()-5, 911)
	insertVoting(t, st, 1, mock.Now().Unix()-10, 5, 912)

	// The first process arms timers but dies before they fire.
	first.DiscoverVotings(ctx)

	// Restart: fresh scheduler, fresh de-duplication set, same store.
	mock2 := clock.NewMock()
	mock2.Set(mock.Now())
	s, fm := newTestScheduler(t, st, mock2)
	s.SweepAll(ctx)

	require.Zero(t, countRows(t, st, "offers"))
	require.Zero(t, countRows(t, st, "votings"))
	for _, msgID := range []int64{910, 911, 912} {
		require.Equal(t, 1, fm.deleteCount(msgID), "message %d", msgID)
	}

	u1, err := model.LoadUser(ctx, st, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), u1.OffersCount)
	u2, err := model.LoadUser(ctx, st, 2)
	require.NoError(t, err)
	require.Zero(t, u2.OffersCount)
}

func TestVacationSweepComparesCalendarDates(t *testing.T) {
	st := newTestStore(t)
	mock := clock.NewMock()
	// Midday local time so the derived calendar date is unambiguous.
	mock.Set(time.Date(2026, 9, 1, 12, 0, 0, 0, time.Local))
	s, fm := newTestScheduler(t, st, mock)
	ctx := context.Background()

	over := insertVacation(t, st, "2026-08-31", 920)
	today := insertVacation(t, st, "2026-09-01", 921)
	future := insertVacation(t, st, "2026-09-02", 922)

	s.SweepAll(ctx)

	_, err := model.LoadVacation(ctx, st, over)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = model.LoadVacation(ctx, st, today)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = model.LoadVacation(ctx, st, future)
	require.NoError(t, err)

	require.Equal(t, 1, fm.deleteCount(920))
	require.Equal(t, 1, fm.deleteCount(921))
	require.Zero(t, fm.deleteCount(922))
}

func TestMissingRenderedMessageIsTolerated(t *testing.T) {
	st := newTestStore(t)
	mock := clock.NewMock()
	s, fm := newTestScheduler(t, st, mock)
	ctx := context.Background()

	insertUser(t, st, 1, 1)
	id := insertOffer(t, st, 1, mock.Now().Unix()-1, 930)
	fm.deleteErr[930] = chat.ErrMessageNotFound

	require.NoError(t, s.ExpireOffer(ctx, id))
	require.Zero(t, countRows(t, st, "offers"))
}

func TestSweepIsolatesPerEntityFailures(t *testing.T) {
	st := newTestStore(t)
	mock := clock.NewMock()
	s, fm := newTestScheduler(t, st, mock)
	ctx := context.Background()

	insertUser(t, st, 1, 2)
	broken := insertOffer(t, st, 1, mock.Now().Unix()-1, 940)
	insertOffer(t, st, 1, mock.Now().Unix()-1, 941)
	fm.deleteErr[940] = errors.New("telegram: 502 bad gateway")

	s.SweepAll(ctx)

	// The healthy offer expired; the broken one is left for the next sweep.
	require.Equal(t, 1, countRows(t, st, "offers"))
	require.Equal(t, 1, fm.deleteCount(941))
	u, err := model.LoadUser(ctx, st, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), u.OffersCount)

	// Transient failure clears; the next sweep retries naturally.
	delete(fm.deleteErr, 940)
	s.SweepAll(ctx)
	require.Zero(t, countRows(t, st, "offers"))
	_, err = model.LoadOffer(ctx, st, broken)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLegacyRecordFallsBackToConfiguredChannel(t *testing.T) {
	st := newTestStore(t)
	mock := clock.NewMock()
	fm := newFakeMessenger()
	s := New(Config{Channels: map[Kind]int64{KindOffer: -500}}, st, fm, mock, zerolog.Nop())
	ctx := context.Background()

	insertUser(t, st, 1, 1)
	// Row written before chat ids were stored per record.
	_, err := st.Insert(ctx, "offers",
		[]string{"user_id", "title", "deadline", "message_id"},
		1, "legacy", mock.Now().Unix()-1, 960)
	require.NoError(t, err)

	s.SweepAll(ctx)

	require.Equal(t, 1, fm.deleteCount(960))
	require.Equal(t, int64(-500), fm.deleted[0].ChatID)
	require.Zero(t, countRows(t, st, "offers"))
}

func TestTimerFiresImmediatelyForAlreadyOverdueVoting(t *testing.T) {
	st := newTestStore(t)
	mock := clock.NewMock()
	mock.Add(time.Hour)
	s, fm := newTestScheduler(t, st, mock)
	ctx := context.Background()

	insertUser(t, st, 5, 0)
	// Created long ago; its deadline passed while nothing was running.
	insertVoting(t, st, 5, mock.Now().Unix()-100, 5, 950)

	s.DiscoverVotings(ctx)
	// Overdue delay clamps to slack rather than firing in the past.
	mock.Add(s.cfg.Slack)

	require.Eventually(t, func() bool {
		return countRows(t, st, "votings") == 0
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, fm.deleteCount(950))
}
