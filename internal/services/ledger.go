// Package services holds the ledger service: the write path and the cached
// query layer in front of a storage backend.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/cache"
	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/store"
)

// ErrInvalidTransaction wraps every validation failure of RecordTransaction.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Store is the storage surface the ledger reads and writes.
type Store interface {
	store.TransactionWriter
	store.TransactionReader
	store.UserLister
	store.SummaryReader
	store.RatioReader
	store.Pinger
}

// EventPublisher announces stored transactions to other instances.
type EventPublisher interface {
	PublishTransactionRecorded(ctx context.Context, ref, user string) error
}

// Window names accepted by ShareWindow.
const (
	WindowAll   = "all"
	WindowMonth = "month"
)

const (
	usersKey         = "users"
	cleanupInterval  = time.Minute
	defaultCacheTTL  = 600 * time.Second
	defaultCacheSize = 256
)

type Config struct {
	Location        *time.Location
	RecentLimit     int
	SummaryLimit    int
	CacheTTL        time.Duration
	CacheMaxEntries int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Ledger validates and records transactions and serves cached summaries.
// Reads are cached per query; a write drops every cached read except the
// user list.
type Ledger struct {
	store     Store
	publisher EventPublisher
	logger    *applog.Logger
	sl        *applog.StructuredLogger

	loc          *time.Location
	recentLimit  int
	summaryLimit int
	now          func() time.Time

	users     *cache.LRUCache[[]core.User]
	recent    *cache.LRUCache[[]core.Transaction]
	summaries *cache.LRUCache[[]core.PeriodTotal]
	shares    *cache.LRUCache[[]core.Share]
	caches    *cache.Manager

	// fillMu orders cache fills against InvalidateReads. A fill is kept only
	// if no invalidation happened since its store read began.
	fillMu     sync.RWMutex
	generation atomic.Uint64

	recorded      atomic.Int64
	invalidations atomic.Int64
}

// NewLedger builds a ledger over st. publisher may be nil. The cache sweep
// runs until Close.
func NewLedger(st Store, publisher EventPublisher, cfg Config, logger *applog.Logger) *Ledger {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentLedger)
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = core.DefaultRecentLimit
	}
	if cfg.SummaryLimit <= 0 {
		cfg.SummaryLimit = core.DefaultSummaryLimit
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = defaultCacheSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	l := &Ledger{
		store:        st,
		publisher:    publisher,
		logger:       logger,
		sl:           applog.NewStructuredLogger(logger),
		loc:          cfg.Location,
		recentLimit:  cfg.RecentLimit,
		summaryLimit: cfg.SummaryLimit,
		now:          cfg.Now,
		users:        cache.NewLRUCache[[]core.User](1, cfg.CacheTTL),
		recent:       cache.NewLRUCache[[]core.Transaction](cfg.CacheMaxEntries, cfg.CacheTTL),
		summaries:    cache.NewLRUCache[[]core.PeriodTotal](cfg.CacheMaxEntries, cfg.CacheTTL),
		shares:       cache.NewLRUCache[[]core.Share](cfg.CacheMaxEntries, cfg.CacheTTL),
		caches:       cache.NewManager(logger.Slog()),
	}
	l.caches.Register("users", l.users)
	l.caches.Register("recent", l.recent)
	l.caches.Register("summaries", l.summaries)
	l.caches.Register("shares", l.shares)
	l.caches.StartCleanup(cleanupInterval)
	return l
}

// Location is the time zone used for buckets and windows.
func (l *Ledger) Location() *time.Location { return l.loc }

// RecordTransaction validates t, stores it and drops cached reads. A
// configured publisher is notified; publish failures are logged only.
func (l *Ledger) RecordTransaction(ctx context.Context, t core.Transaction) (string, error) {
	t.Item = strings.TrimSpace(t.Item)
	t.User = strings.TrimSpace(t.User)
	t.Category = strings.TrimSpace(t.Category)
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}

	ref, err := l.store.Insert(ctx, t)
	if err != nil {
		l.sl.LogError(ctx, "Transaction insert failed", err, applog.ComponentStore, applog.OpRecord,
			applog.NewFields().WithTransaction(t.User, t.Item, t.Amount, t.Category))
		return "", fmt.Errorf("insert transaction: %w", err)
	}
	l.recorded.Add(1)
	l.InvalidateReads()
	l.sl.LogTransactionRecorded(ctx, t.User, t.Item, t.Amount, t.Category, ref)

	if l.publisher != nil {
		if err := l.publisher.PublishTransactionRecorded(ctx, ref, t.User); err != nil {
			l.logger.WarnContext(ctx, "Failed to publish transaction event",
				applog.FieldError, err,
				applog.FieldRef, ref,
				applog.FieldUser, t.User)
		}
	}
	return ref, nil
}

// RecentTransactions returns the user's newest transactions. limit <= 0 uses
// the configured default.
func (l *Ledger) RecentTransactions(ctx context.Context, user string, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = l.recentLimit
	}
	key := fmt.Sprintf("%s|%d", user, limit)
	if items, ok := l.recent.Get(key); ok {
		return append([]core.Transaction(nil), items...), nil
	}

	gen := l.generation.Load()
	items, err := l.store.RecentTransactions(ctx, user, limit)
	if err != nil {
		return nil, fmt.Errorf("recent transactions (user=%s): %w", user, err)
	}
	l.fill(gen, func() { l.recent.Set(key, items) })
	l.logger.DebugContext(ctx, "Recent transactions cached", applog.FieldUser, user, applog.FieldCount, len(items))
	return append([]core.Transaction(nil), items...), nil
}

// Users returns every known user, newest first.
func (l *Ledger) Users(ctx context.Context) ([]core.User, error) {
	if users, ok := l.users.Get(usersKey); ok {
		return append([]core.User(nil), users...), nil
	}
	gen := l.generation.Load()
	users, err := l.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	l.fill(gen, func() { l.users.Set(usersKey, users) })
	return append([]core.User(nil), users...), nil
}

// Summary returns the earliest limit period totals for the user in ascending
// period order. limit <= 0 uses the configured default.
func (l *Ledger) Summary(ctx context.Context, user string, g core.Granularity, limit int) ([]core.PeriodTotal, error) {
	if limit <= 0 {
		limit = l.summaryLimit
	}
	key := fmt.Sprintf("%s|%s|%d", user, g, limit)
	if totals, ok := l.summaries.Get(key); ok {
		return append([]core.PeriodTotal(nil), totals...), nil
	}

	gen := l.generation.Load()
	totals, err := l.store.PeriodTotals(ctx, user, g, limit)
	if err != nil {
		return nil, fmt.Errorf("period totals (user=%s, granularity=%s): %w", user, g, err)
	}
	l.fill(gen, func() { l.summaries.Set(key, totals) })
	l.logger.DebugContext(ctx, "Summary cached",
		applog.FieldUser, user,
		applog.FieldGranularity, g.String(),
		applog.FieldCount, len(totals))
	return append([]core.PeriodTotal(nil), totals...), nil
}

// ShareWindow maps a window name to a time window. Unknown names are open.
func (l *Ledger) ShareWindow(name string) core.Window {
	if strings.EqualFold(strings.TrimSpace(name), WindowMonth) {
		return core.MonthWindow(l.now(), l.loc)
	}
	return core.Window{}
}

// Shares returns the user's totals grouped along q.Dimension with their
// ratio of the grand total, largest first.
func (l *Ledger) Shares(ctx context.Context, q core.ShareQuery) ([]core.Share, error) {
	key := shareKey(q)
	if shares, ok := l.shares.Get(key); ok {
		return append([]core.Share(nil), shares...), nil
	}

	gen := l.generation.Load()
	totals, err := l.store.LabelTotals(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("label totals (user=%s, dimension=%s): %w", q.User, q.Dimension, err)
	}
	shares := core.ComputeShares(totals)
	l.fill(gen, func() { l.shares.Set(key, shares) })
	l.logger.DebugContext(ctx, "Shares cached",
		applog.FieldUser, q.User,
		applog.FieldDimension, q.Dimension.String(),
		applog.FieldCount, len(shares))
	return append([]core.Share(nil), shares...), nil
}

func shareKey(q core.ShareQuery) string {
	var since, until int64
	if !q.Window.Since.IsZero() {
		since = q.Window.Since.Unix()
	}
	if !q.Window.Until.IsZero() {
		until = q.Window.Until.Unix()
	}
	return fmt.Sprintf("%s|%s|%d|%d", q.User, q.Dimension, since, until)
}

// Dashboard is everything the dashboard page shows for one user.
type Dashboard struct {
	Recent  []core.Transaction
	Summary []core.PeriodTotal
	Shares  []core.Share
}

// Dashboard loads the three dashboard queries concurrently. Parts that fail
// are left empty; the first error is returned alongside the partial result.
func (l *Ledger) Dashboard(ctx context.Context, user string, g core.Granularity, dim core.Dimension, window core.Window) (Dashboard, error) {
	var d Dashboard
	var eg errgroup.Group

	eg.Go(func() error {
		items, err := l.RecentTransactions(ctx, user, 0)
		d.Recent = items
		return err
	})
	eg.Go(func() error {
		totals, err := l.Summary(ctx, user, g, 0)
		d.Summary = totals
		return err
	})
	eg.Go(func() error {
		shares, err := l.Shares(ctx, core.ShareQuery{User: user, Dimension: dim, Window: window})
		d.Shares = shares
		return err
	})

	return d, eg.Wait()
}

// fill runs set unless the cache was invalidated after gen was read.
func (l *Ledger) fill(gen uint64, set func()) {
	l.fillMu.RLock()
	defer l.fillMu.RUnlock()
	if l.generation.Load() == gen {
		set()
	}
}

// InvalidateReads drops cached transactions, summaries and shares. Reads
// already in flight are not cached.
func (l *Ledger) InvalidateReads() {
	l.fillMu.Lock()
	defer l.fillMu.Unlock()
	l.generation.Add(1)
	l.recent.Purge()
	l.summaries.Purge()
	l.shares.Purge()
	l.invalidations.Add(1)
}

// HandleTransactionEvent drops cached reads when another instance records a
// transaction.
func (l *Ledger) HandleTransactionEvent(ctx context.Context, msg *amqp.TransactionRecordedMessage) error {
	l.InvalidateReads()
	l.logger.DebugContext(ctx, "Caches invalidated by event",
		applog.FieldOperation, applog.OpInvalidate,
		applog.FieldRef, msg.Ref,
		applog.FieldUser, msg.User)
	return nil
}

// Ping checks the backing store.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// Stats is a snapshot of ledger counters.
type Stats struct {
	Recorded      int64
	Invalidations int64
	Caches        map[string]cache.Stats
}

func (l *Ledger) Stats() Stats {
	return Stats{
		Recorded:      l.recorded.Load(),
		Invalidations: l.invalidations.Load(),
		Caches: map[string]cache.Stats{
			"users":     l.users.Stats(),
			"recent":    l.recent.Stats(),
			"summaries": l.summaries.Stats(),
			"shares":    l.shares.Stats(),
		},
	}
}

// Close stops the cache sweep. It does not close the store.
func (l *Ledger) Close() error {
	l.caches.Stop()
	return nil
}
