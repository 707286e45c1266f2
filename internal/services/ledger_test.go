package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/amqp"
	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/store/memory"
)

// countingStore counts backend reads so cache behaviour can be observed.
type countingStore struct {
	*memory.Store
	mu       sync.Mutex
	reads    map[string]int
	failWith error
}

func newCountingStore(users ...string) *countingStore {
	return &countingStore{Store: memory.New(users, time.UTC), reads: map[string]int{}}
}

func (s *countingStore) hit(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[op]++
	return s.failWith
}

func (s *countingStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[op]
}

func (s *countingStore) RecentTransactions(ctx context.Context, user string, limit int) ([]core.Transaction, error) {
	if err := s.hit("recent"); err != nil {
		return nil, err
	}
	return s.Store.RecentTransactions(ctx, user, limit)
}

func (s *countingStore) ListUsers(ctx context.Context) ([]core.User, error) {
	if err := s.hit("users"); err != nil {
		return nil, err
	}
	return s.Store.ListUsers(ctx)
}

func (s *countingStore) PeriodTotals(ctx context.Context, user string, g core.Granularity, limit int) ([]core.PeriodTotal, error) {
	if err := s.hit("summary"); err != nil {
		return nil, err
	}
	return s.Store.PeriodTotals(ctx, user, g, limit)
}

func (s *countingStore) LabelTotals(ctx context.Context, q core.ShareQuery) ([]core.LabelTotal, error) {
	if err := s.hit("shares"); err != nil {
		return nil, err
	}
	return s.Store.LabelTotals(ctx, q)
}

type fakePublisher struct {
	mu    sync.Mutex
	refs  []string
	users []string
	err   error
}

func (p *fakePublisher) PublishTransactionRecorded(_ context.Context, ref, user string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs = append(p.refs, ref)
	p.users = append(p.users, user)
	return p.err
}

var fixedNow = time.Date(2024, time.February, 20, 12, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T, st Store, pub EventPublisher) *Ledger {
	t.Helper()
	l := NewLedger(st, pub, Config{
		Location: time.UTC,
		CacheTTL: time.Hour,
		Now:      func() time.Time { return fixedNow },
	}, applog.Discard())
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func tx(item string, amount int64, category string, ts time.Time) core.Transaction {
	return core.Transaction{Timestamp: ts, Item: item, Amount: amount, User: "alice", Category: category}
}

func TestRecordTransaction(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore("alice")
	pub := &fakePublisher{}
	l := newTestLedger(t, st, pub)

	ref, err := l.RecordTransaction(ctx, tx("  Coffee ", 300, " Food ", fixedNow))
	require.NoError(t, err)
	assert.Equal(t, "mem:1", ref)
	assert.Equal(t, []string{"mem:1"}, pub.refs)
	assert.Equal(t, []string{"alice"}, pub.users)

	recent, err := l.RecentTransactions(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "Coffee", recent[0].Item)
	assert.Equal(t, "Food", recent[0].Category)
	assert.Equal(t, int64(1), l.Stats().Recorded)
}

func TestRecordTransactionValidation(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	l := newTestLedger(t, newCountingStore("alice"), pub)

	tests := []struct {
		name string
		tx   core.Transaction
		want error
	}{
		{"empty item", tx("   ", 100, "", fixedNow), core.ErrEmptyItem},
		{"zero amount", tx("Coffee", 0, "", fixedNow), core.ErrZeroAmount},
		{"missing user", core.Transaction{Timestamp: fixedNow, Item: "x", Amount: 1}, core.ErrEmptyUser},
		{"missing time", core.Transaction{Item: "x", Amount: 1, User: "alice"}, core.ErrMissingTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.RecordTransaction(ctx, tt.tx)
			assert.ErrorIs(t, err, ErrInvalidTransaction)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, pub.refs, "nothing is published for rejected writes")
}

func TestRecordTransactionPublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	l := newTestLedger(t, newCountingStore("alice"), pub)

	ref, err := l.RecordTransaction(context.Background(), tx("Coffee", 300, "Food", fixedNow))
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
}

func TestRecordTransactionWithoutPublisher(t *testing.T) {
	l := newTestLedger(t, newCountingStore("alice"), nil)
	_, err := l.RecordTransaction(context.Background(), tx("Coffee", 300, "Food", fixedNow))
	require.NoError(t, err)
}

func TestReadsAreCachedUntilWrite(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore("alice")
	l := newTestLedger(t, st, nil)

	_, err := l.RecordTransaction(ctx, tx("Coffee", 300, "Food", fixedNow))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := l.Summary(ctx, "alice", core.Monthly, 0)
		require.NoError(t, err)
		_, err = l.RecentTransactions(ctx, "alice", 0)
		require.NoError(t, err)
		_, err = l.Shares(ctx, core.ShareQuery{User: "alice", Dimension: core.ByCategory})
		require.NoError(t, err)
		_, err = l.Users(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, st.count("summary"))
	assert.Equal(t, 1, st.count("recent"))
	assert.Equal(t, 1, st.count("shares"))
	assert.Equal(t, 1, st.count("users"))

	_, err = l.RecordTransaction(ctx, tx("Train", 1200, "Transport", fixedNow))
	require.NoError(t, err)

	summary, err := l.Summary(ctx, "alice", core.Monthly, 0)
	require.NoError(t, err)
	assert.Equal(t, []core.PeriodTotal{{Period: "2024-02", Total: 1500}}, summary)
	assert.Equal(t, 2, st.count("summary"), "write must invalidate summaries")

	_, err = l.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.count("users"), "user list survives writes")
}

func TestCachedSlicesAreCopies(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, newCountingStore("alice"), nil)
	_, err := l.RecordTransaction(ctx, tx("Coffee", 300, "Food", fixedNow))
	require.NoError(t, err)

	first, err := l.RecentTransactions(ctx, "alice", 0)
	require.NoError(t, err)
	first[0].Item = "mutated"

	second, err := l.RecentTransactions(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, "Coffee", second[0].Item)
}

func TestSharesAndWindows(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, newCountingStore("alice"), nil)

	jan := time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)
	for _, t2 := range []core.Transaction{
		tx("Coffee", 300, "Food", jan),
		tx("Train", 1200, "Transport", fixedNow),
		tx("Lunch", 800, "Food", fixedNow),
		tx("Book", 1000, "", fixedNow),
	} {
		_, err := l.RecordTransaction(ctx, t2)
		require.NoError(t, err)
	}

	all, err := l.Shares(ctx, core.ShareQuery{User: "alice", Dimension: core.ByCategory, Window: l.ShareWindow(WindowAll)})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Transport", all[0].Label)
	assert.Equal(t, "Food", all[1].Label)
	assert.Equal(t, int64(1100), all[1].Total)
	assert.Equal(t, core.UncategorizedLabel, all[2].Label)
	assert.InDelta(t, 1200.0/3300.0, all[0].Ratio, 1e-9)

	month, err := l.Shares(ctx, core.ShareQuery{User: "alice", Dimension: core.ByCategory, Window: l.ShareWindow(WindowMonth)})
	require.NoError(t, err)
	require.Len(t, month, 3)
	var sum float64
	for _, s := range month {
		sum += s.Ratio
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, int64(800), month[2].Total, "January coffee is outside the month window")

	assert.True(t, l.ShareWindow("bogus").IsOpen())
}

func TestDashboardDegradesOnFailure(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore("alice")
	l := newTestLedger(t, st, nil)
	_, err := l.RecordTransaction(ctx, tx("Coffee", 300, "Food", fixedNow))
	require.NoError(t, err)

	d, err := l.Dashboard(ctx, "alice", core.Daily, core.ByItem, core.Window{})
	require.NoError(t, err)
	assert.Len(t, d.Recent, 1)
	assert.Equal(t, []core.PeriodTotal{{Period: "2024-02-20", Total: 300}}, d.Summary)
	require.Len(t, d.Shares, 1)
	assert.Equal(t, "Coffee", d.Shares[0].Label)

	l.InvalidateReads()
	st.failWith = errors.New("store down")
	d, err = l.Dashboard(ctx, "alice", core.Monthly, core.ByCategory, core.Window{})
	assert.Error(t, err)
	assert.Empty(t, d.Recent)
	assert.Empty(t, d.Summary)
	assert.Empty(t, d.Shares)
}

func TestHandleTransactionEventInvalidates(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore("alice")
	l := newTestLedger(t, st, nil)

	_, err := l.Summary(ctx, "alice", core.Monthly, 0)
	require.NoError(t, err)
	require.NoError(t, l.HandleTransactionEvent(ctx, amqp.NewTransactionRecordedMessage("r", "alice", "other")))
	_, err = l.Summary(ctx, "alice", core.Monthly, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, st.count("summary"))
	assert.Equal(t, int64(1), l.Stats().Invalidations)
}

func TestPing(t *testing.T) {
	l := newTestLedger(t, newCountingStore(), nil)
	assert.NoError(t, l.Ping(context.Background()))
}

// gatedStore holds the first RecentTransactions call open after it has read
// from the store, until release is closed.
type gatedStore struct {
	*memory.Store
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (s *gatedStore) RecentTransactions(ctx context.Context, user string, limit int) ([]core.Transaction, error) {
	items, err := s.Store.RecentTransactions(ctx, user, limit)
	s.once.Do(func() {
		close(s.read)
		<-s.release
	})
	return items, err
}

func TestReadOverlappingWriteIsNotCached(t *testing.T) {
	ctx := context.Background()
	st := &gatedStore{
		Store:   memory.New([]string{"alice"}, time.UTC),
		read:    make(chan struct{}),
		release: make(chan struct{}),
	}
	l := newTestLedger(t, st, nil)

	done := make(chan []core.Transaction)
	go func() {
		items, _ := l.RecentTransactions(ctx, "alice", 0)
		done <- items
	}()

	<-st.read
	_, err := l.RecordTransaction(ctx, tx("Coffee", 300, "Food", fixedNow))
	require.NoError(t, err)
	close(st.release)
	assert.Empty(t, <-done, "the overlapping read saw the store before the write")

	items, err := l.RecentTransactions(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Coffee", items[0].Item)
}
