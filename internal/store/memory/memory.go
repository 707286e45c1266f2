package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"tally/internal/core"
)

// Store keeps transactions and users in process memory. Grouping follows the
// same rules as the MongoDB pipelines so it can stand in for them in tests.
type Store struct {
	mu    sync.Mutex
	loc   *time.Location
	users []string
	items []core.Transaction
}

func New(users []string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{users: dedupe(users), loc: loc}
}

// NewFromFiles seeds users from base/seed_users.txt, one name per line.
func NewFromFiles(base string, loc *time.Location) *Store {
	users := ReadSeedLines(filepath.Join(base, "seed_users.txt"))
	if len(users) == 0 {
		users = []string{"guest"}
	}
	return New(users, loc)
}

// Insert stores the transaction and returns a synthetic reference.
func (s *Store) Insert(_ context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = fmt.Sprintf("mem:%d", len(s.items)+1)
	s.items = append(s.items, t)
	return t.ID, nil
}

// AddUser registers a user name if it is not known yet.
func (s *Store) AddUser(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = dedupe(append(s.users, name))
}

// ListUsers returns users with the most recently added first.
func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.User, 0, len(s.users))
	for i := len(s.users) - 1; i >= 0; i-- {
		out = append(out, core.User{Name: s.users[i]})
	}
	return out, nil
}

func (s *Store) RecentTransactions(_ context.Context, user string, limit int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for i := len(s.items) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if s.items[i].User == user {
			out = append(out, s.items[i])
		}
	}
	return out, nil
}

func (s *Store) PeriodTotals(_ context.Context, user string, g core.Granularity, limit int) ([]core.PeriodTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := map[string]int64{}
	for _, t := range s.items {
		if t.User != user {
			continue
		}
		sums[g.BucketKey(t.Timestamp, s.loc)] += t.Amount
	}
	out := make([]core.PeriodTotal, 0, len(sums))
	for k, v := range sums {
		out = append(out, core.PeriodTotal{Period: k, Total: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) LabelTotals(_ context.Context, q core.ShareQuery) ([]core.LabelTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := map[string]int64{}
	for _, t := range s.items {
		if t.User != q.User || !q.Window.Contains(t.Timestamp) {
			continue
		}
		sums[t.Label(q.Dimension)] += t.Amount
	}
	out := make([]core.LabelTotal, 0, len(sums))
	for k, v := range sums {
		out = append(out, core.LabelTotal{Label: k, Total: v})
	}
	core.SortLabelTotals(out)
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// ReadSeedLines reads non-empty, non-comment lines from path. A missing file
// yields nil.
func ReadSeedLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
