// Package storetest holds a fixture dataset and a behaviour suite shared by
// every store backend, so grouping rules stay identical across them.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core"
	"tally/internal/store"
)

// Store is the full set of ports a backend must satisfy.
type Store interface {
	store.TransactionWriter
	store.TransactionReader
	store.UserLister
	store.SummaryReader
	store.RatioReader
}

// Factory returns an empty store whose user list is seeded with users, in order.
// Fixture timestamps are UTC and the store must bucket in UTC.
type Factory func(t *testing.T, users []string) Store

// Users is the seed order expected by the suite.
var Users = []string{"alice", "bob"}

func at(month time.Month, day, hour int) time.Time {
	return time.Date(2024, month, day, hour, 0, 0, 0, time.UTC)
}

// Fixture returns the transactions inserted by Run, in insertion order.
func Fixture() []core.Transaction {
	return []core.Transaction{
		{Timestamp: at(time.January, 5, 9), Item: "Coffee", Amount: 300, User: "alice", Category: "Food"},
		{Timestamp: at(time.January, 20, 19), Item: "Dinner", Amount: 2500, User: "alice", Category: "Food"},
		{Timestamp: at(time.January, 7, 10), Item: "Lunch", Amount: 900, User: "bob", Category: "Food"},
		{Timestamp: at(time.February, 1, 8), Item: "Train", Amount: 1200, User: "alice", Category: "Transport"},
		{Timestamp: at(time.February, 1, 18), Item: "Coffee", Amount: 300, User: "alice", Category: "Food"},
		{Timestamp: at(time.February, 15, 12), Item: "Book", Amount: 1800, User: "alice"},
		{Timestamp: at(time.March, 10, 10), Item: "Refund", Amount: -500, User: "alice", Category: "Food"},
	}
}

// Run inserts the fixture into a fresh store and checks every query against it.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	seeded := func(t *testing.T) Store {
		t.Helper()
		s := newStore(t, Users)
		for _, tx := range Fixture() {
			ref, err := s.Insert(ctx, tx)
			require.NoError(t, err)
			require.NotEmpty(t, ref)
		}
		return s
	}

	t.Run("users newest first", func(t *testing.T) {
		s := newStore(t, Users)
		users, err := s.ListUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, []core.User{{Name: "bob"}, {Name: "alice"}}, users)
	})

	t.Run("recent transactions", func(t *testing.T) {
		s := seeded(t)
		recent, err := s.RecentTransactions(ctx, "alice", 3)
		require.NoError(t, err)
		require.Len(t, recent, 3)
		assert.Equal(t, "Refund", recent[0].Item)
		assert.Equal(t, "Book", recent[1].Item)
		assert.Equal(t, "Coffee", recent[2].Item)
		assert.Equal(t, int64(-500), recent[0].Amount)
		assert.Equal(t, "Food", recent[0].Category)
		assert.Empty(t, recent[1].Category)
		assert.True(t, recent[2].Timestamp.Equal(at(time.February, 1, 18)), "timestamp %v", recent[2].Timestamp)
		for _, tx := range recent {
			assert.Equal(t, "alice", tx.User)
			assert.NotEmpty(t, tx.ID)
		}

		none, err := s.RecentTransactions(ctx, "nobody", 10)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("monthly totals", func(t *testing.T) {
		s := seeded(t)
		got, err := s.PeriodTotals(ctx, "alice", core.Monthly, core.DefaultSummaryLimit)
		require.NoError(t, err)
		assert.Equal(t, []core.PeriodTotal{
			{Period: "2024-01", Total: 2800},
			{Period: "2024-02", Total: 3300},
			{Period: "2024-03", Total: -500},
		}, got)
	})

	t.Run("daily totals keep earliest buckets", func(t *testing.T) {
		s := seeded(t)
		got, err := s.PeriodTotals(ctx, "alice", core.Daily, 3)
		require.NoError(t, err)
		assert.Equal(t, []core.PeriodTotal{
			{Period: "2024-01-05", Total: 300},
			{Period: "2024-01-20", Total: 2500},
			{Period: "2024-02-01", Total: 1500},
		}, got)
	})

	t.Run("category totals", func(t *testing.T) {
		s := seeded(t)
		got, err := s.LabelTotals(ctx, core.ShareQuery{User: "alice", Dimension: core.ByCategory})
		require.NoError(t, err)
		assert.Equal(t, []core.LabelTotal{
			{Label: "Food", Total: 2600},
			{Label: core.UncategorizedLabel, Total: 1800},
			{Label: "Transport", Total: 1200},
		}, got)
	})

	t.Run("item totals", func(t *testing.T) {
		s := seeded(t)
		got, err := s.LabelTotals(ctx, core.ShareQuery{User: "alice", Dimension: core.ByItem})
		require.NoError(t, err)
		assert.Equal(t, []core.LabelTotal{
			{Label: "Dinner", Total: 2500},
			{Label: "Book", Total: 1800},
			{Label: "Train", Total: 1200},
			{Label: "Coffee", Total: 600},
			{Label: "Refund", Total: -500},
		}, got)
	})

	t.Run("windowed category totals", func(t *testing.T) {
		s := seeded(t)
		got, err := s.LabelTotals(ctx, core.ShareQuery{
			User:      "alice",
			Dimension: core.ByCategory,
			Window:    core.MonthWindow(at(time.February, 10, 0), time.UTC),
		})
		require.NoError(t, err)
		assert.Equal(t, []core.LabelTotal{
			{Label: core.UncategorizedLabel, Total: 1800},
			{Label: "Transport", Total: 1200},
			{Label: "Food", Total: 300},
		}, got)
	})

	t.Run("unknown user yields empty results", func(t *testing.T) {
		s := seeded(t)
		periods, err := s.PeriodTotals(ctx, "nobody", core.Monthly, 20)
		require.NoError(t, err)
		assert.Empty(t, periods)
		labels, err := s.LabelTotals(ctx, core.ShareQuery{User: "nobody", Dimension: core.ByCategory})
		require.NoError(t, err)
		assert.Empty(t, labels)
	})
}
