package mongodb

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"tally/internal/store/storetest"
)

// Runs only against a live deployment, e.g.
// TALLY_TEST_MONGO_URI=mongodb://localhost:27017 go test ./internal/store/mongodb/
func TestMongoStoreBehaviour(t *testing.T) {
	uri := os.Getenv("TALLY_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TALLY_TEST_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T, users []string) storetest.Store {
		ctx := context.Background()
		db := fmt.Sprintf("tally_test_%s", uuid.NewString()[:8])
		s, err := Connect(ctx, Config{URI: uri, Database: db, Timeout: 5 * time.Second, Location: time.UTC})
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.client.Database(db).Drop(context.Background())
			_ = s.Close()
		})
		for _, u := range users {
			require.NoError(t, s.AddUser(ctx, u))
		}
		return s
	})
}
