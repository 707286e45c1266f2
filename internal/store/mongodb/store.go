// Package mongodb implements the store ports on top of a MongoDB deployment.
//
// A single Store owns one process-wide *mongo.Client; the driver pools
// connections, so the Store is safe for concurrent use by request handlers.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"tally/internal/core"
)

const (
	DefaultDatabase               = "dev"
	DefaultTransactionsCollection = "accounting"
	DefaultUsersCollection        = "user"
	DefaultTimeout                = 10 * time.Second
)

// Config holds connection settings.
type Config struct {
	URI                    string
	Database               string
	TransactionsCollection string
	UsersCollection        string
	Timeout                time.Duration
	// Location is the time zone used for date buckets.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.TransactionsCollection == "" {
		c.TransactionsCollection = DefaultTransactionsCollection
	}
	if c.UsersCollection == "" {
		c.UsersCollection = DefaultUsersCollection
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

type Store struct {
	client       *mongo.Client
	transactions *mongo.Collection
	users        *mongo.Collection
	timezone     string
	timeout      time.Duration
}

// Connect dials the deployment with the stable server API and verifies it
// answers a ping before returning.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongodb: empty connection URI")
	}
	cfg = cfg.withDefaults()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetTimeout(cfg.Timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	s := NewWithClient(client, cfg)
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return s, nil
}

// NewWithClient wraps an already connected client.
func NewWithClient(client *mongo.Client, cfg Config) *Store {
	cfg = cfg.withDefaults()
	db := client.Database(cfg.Database)
	return &Store{
		client:       client,
		transactions: db.Collection(cfg.TransactionsCollection),
		users:        db.Collection(cfg.UsersCollection),
		timezone:     cfg.Location.String(),
		timeout:      cfg.Timeout,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Insert appends one transaction document and returns its ObjectID as hex.
func (s *Store) Insert(ctx context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.transactions.InsertOne(ctx, fromTransaction(t))
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Sprint(res.InsertedID), nil
	}
	slog.DebugContext(ctx, "Transaction inserted into MongoDB",
		"id", oid.Hex(),
		"user", t.User,
		"amount", t.Amount)
	return oid.Hex(), nil
}

// AddUser inserts a user document. The dashboard never calls it; it exists
// for provisioning and tests.
func (s *Store) AddUser(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.users.InsertOne(ctx, userDoc{Name: name}); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cur, err := s.users.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{"_id", -1}}))
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	users := make([]core.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, core.User{Name: d.Name})
	}
	return users, nil
}

func (s *Store) RecentTransactions(ctx context.Context, user string, limit int) ([]core.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{"_id", -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.transactions.Find(ctx, bson.D{{fieldUser, user}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	var docs []transactionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toTransaction())
	}
	return out, nil
}

func (s *Store) PeriodTotals(ctx context.Context, user string, g core.Granularity, limit int) ([]core.PeriodTotal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cur, err := s.transactions.Aggregate(ctx, summaryPipeline(user, g, limit, s.timezone))
	if err != nil {
		return nil, fmt.Errorf("aggregate period totals: %w", err)
	}
	var docs []periodDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode period totals: %w", err)
	}
	out := make([]core.PeriodTotal, 0, len(docs))
	for _, d := range docs {
		out = append(out, core.PeriodTotal{Period: d.Period, Total: d.Total})
	}
	return out, nil
}

func (s *Store) LabelTotals(ctx context.Context, q core.ShareQuery) ([]core.LabelTotal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cur, err := s.transactions.Aggregate(ctx, sharePipeline(q))
	if err != nil {
		return nil, fmt.Errorf("aggregate %s totals: %w", q.Dimension, err)
	}
	var docs []labelDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s totals: %w", q.Dimension, err)
	}
	out := make([]core.LabelTotal, 0, len(docs))
	for _, d := range docs {
		out = append(out, core.LabelTotal{Label: d.Label, Total: d.Total})
	}
	return out, nil
}
