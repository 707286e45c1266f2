package store

import (
	"context"

	"tally/internal/core"
)

// Ports for outbound storage adapters.
type (
	TransactionWriter interface {
		// Insert appends one transaction and returns the store reference.
		Insert(ctx context.Context, t core.Transaction) (ref string, err error)
	}

	TransactionReader interface {
		// RecentTransactions returns the user's transactions, newest first.
		RecentTransactions(ctx context.Context, user string, limit int) ([]core.Transaction, error)
	}

	UserLister interface {
		// ListUsers returns every known user, newest first.
		ListUsers(ctx context.Context) ([]core.User, error)
	}

	// SummaryReader groups a user's transactions into time buckets.
	SummaryReader interface {
		// PeriodTotals returns the earliest limit buckets in ascending key order.
		PeriodTotals(ctx context.Context, user string, g core.Granularity, limit int) ([]core.PeriodTotal, error)
	}

	// RatioReader groups a user's transactions by category or item.
	RatioReader interface {
		LabelTotals(ctx context.Context, q core.ShareQuery) ([]core.LabelTotal, error)
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}
)
