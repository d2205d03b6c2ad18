package user

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"p2p_trade/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Needs a disposable mongod; set P2PTRADE_TEST_MONGO=mongodb://localhost:27017 to run.
func testDB(t *testing.T) *mongo.Database {
	uri := os.Getenv("P2PTRADE_TEST_MONGO")
	if uri == "" {
		t.Skip("P2PTRADE_TEST_MONGO not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)

	db := client.Database("p2ptrade_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		db.Drop(context.Background())
		client.Disconnect(context.Background())
	})
	return db
}

func TestCreateAndGetCurrent(t *testing.T) {
	repo := NewUserRepo(testDB(t))
	ctx := context.Background()

	u, err := repo.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)

	id, err := repo.Create(ctx, &model.User{Mnemonic: "m", IdentityPubKey: "pk", CreatedAt: 1})
	require.NoError(t, err)

	u, err = repo.GetCurrent(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "pk", u.IdentityPubKey)
}

func TestTradeIndexIsMonotonic(t *testing.T) {
	repo := NewUserRepo(testDB(t))
	ctx := context.Background()
	id, err := repo.Create(ctx, &model.User{Mnemonic: "m"})
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = map[int64]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := repo.AdvanceTradeIndex(ctx, id)
			assert.NoError(t, err)
			mu.Lock()
			seen[idx] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 20)

	require.NoError(t, repo.RaiseTradeIndex(ctx, id, 5))
	next, err := repo.AdvanceTradeIndex(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 21, next)

	require.NoError(t, repo.RaiseTradeIndex(ctx, id, 40))
	next, err = repo.AdvanceTradeIndex(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 41, next)
}
