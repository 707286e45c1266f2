// Package sqlite implements the store ports on a local SQLite file. It is
// meant for single-user installs without a MongoDB deployment.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tally/internal/core"

	_ "modernc.org/sqlite"
)

// timestampLayout is fixed width so lexical order equals chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

type Repository struct {
	db  *sql.DB
	loc *time.Location
}

// NewRepository opens (creating if needed) the database at dbPath and runs
// migrations. Day buckets are computed in loc.
func NewRepository(dbPath string, loc *time.Location) (*Repository, error) {
	if loc == nil {
		loc = time.UTC
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Repository{db: db, loc: loc}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SeedUsers registers names in order, skipping ones that already exist.
func (r *Repository) SeedUsers(ctx context.Context, names []string) error {
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO users (name) VALUES (?)`, n); err != nil {
			return fmt.Errorf("seed user %q: %w", n, err)
		}
	}
	return nil
}

func (r *Repository) Insert(ctx context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	var category any
	if c := strings.TrimSpace(t.Category); c != "" {
		category = c
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (occurred_at, day_key, item, amount, user_name, category)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Timestamp.UTC().Format(timestampLayout),
		core.Daily.BucketKey(t.Timestamp, r.loc),
		t.Item, t.Amount, t.User, category)
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("last insert id: %w", err)
	}
	slog.DebugContext(ctx, "Transaction saved to SQLite", "id", id, "user", t.User, "amount", t.Amount)
	return strconv.FormatInt(id, 10), nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM users ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()
	var users []core.User
	for rows.Next() {
		var u core.User
		if err := rows.Scan(&u.Name); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *Repository) RecentTransactions(ctx context.Context, user string, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, occurred_at, item, amount, user_name, COALESCE(category, '')
		 FROM transactions WHERE user_name = ? ORDER BY id DESC LIMIT ?`,
		user, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query recent transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t  core.Transaction
			id int64
			ts string
		)
		if err := rows.Scan(&id, &ts, &t.Item, &t.Amount, &t.User, &t.Category); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.ID = strconv.FormatInt(id, 10)
		if t.Timestamp, err = time.Parse(timestampLayout, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) PeriodTotals(ctx context.Context, user string, g core.Granularity, limit int) ([]core.PeriodTotal, error) {
	period := "day_key"
	if g != core.Daily {
		period = "substr(day_key, 1, 7)"
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+period+` AS period, SUM(amount)
		 FROM transactions WHERE user_name = ?
		 GROUP BY period ORDER BY period ASC LIMIT ?`,
		user, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query period totals: %w", err)
	}
	defer rows.Close()

	var out []core.PeriodTotal
	for rows.Next() {
		var p core.PeriodTotal
		if err := rows.Scan(&p.Period, &p.Total); err != nil {
			return nil, fmt.Errorf("scan period total: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) LabelTotals(ctx context.Context, q core.ShareQuery) ([]core.LabelTotal, error) {
	column := "category"
	if q.Dimension == core.ByItem {
		column = "item"
	}
	query := `SELECT CASE WHEN COALESCE(TRIM(` + column + `), '') = '' THEN ? ELSE ` + column + ` END AS label,
		SUM(amount) AS total
		FROM transactions WHERE user_name = ?`
	args := []any{core.UncategorizedLabel, q.User}
	if !q.Window.Since.IsZero() {
		query += ` AND occurred_at >= ?`
		args = append(args, q.Window.Since.UTC().Format(timestampLayout))
	}
	if !q.Window.Until.IsZero() {
		query += ` AND occurred_at < ?`
		args = append(args, q.Window.Until.UTC().Format(timestampLayout))
	}
	query += ` GROUP BY label ORDER BY total DESC, label ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s totals: %w", q.Dimension, err)
	}
	defer rows.Close()

	var out []core.LabelTotal
	for rows.Next() {
		var l core.LabelTotal
		if err := rows.Scan(&l.Label, &l.Total); err != nil {
			return nil, fmt.Errorf("scan %s total: %w", q.Dimension, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
