package mongodb_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/quill/internal/auth/store"
	"github.com/aussiebroadwan/quill/internal/auth/store/drivers/mongodb"
	"github.com/aussiebroadwan/quill/internal/auth/store/storetest"
	"github.com/aussiebroadwan/quill/pkg/idx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const mongoImage = "mongo:7"

var (
	mongoOnce      sync.Once
	mongoContainer testcontainers.Container
	mongoURI       string
	mongoErr       error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if mongoContainer != nil {
		_ = mongoContainer.Terminate(context.Background())
	}
	os.Exit(code)
}

// mongoEndpoint starts one container for the whole package. Each store gets
// its own database so tests stay independent.
func mongoEndpoint(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MongoDB container tests in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	mongoOnce.Do(func() {
		ctx := context.Background()
		mongoContainer, mongoErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        mongoImage,
				ExposedPorts: []string{"27017/tcp"},
				WaitingFor: wait.ForListeningPort("27017/tcp").
					WithStartupTimeout(60 * time.Second),
			},
			Started: true,
		})
		if mongoErr != nil {
			return
		}
		mongoURI, mongoErr = mongoContainer.PortEndpoint(ctx, "27017/tcp", "mongodb")
	})
	require.NoError(t, mongoErr)
	return mongoURI
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()

	dbName := "quill_" + strings.ToLower(idx.New().String())
	st, err := mongodb.NewStore(ctx, mongoEndpoint(t), dbName)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.DropDatabase(context.Background())
		_ = st.Close()
	})

	require.NoError(t, st.ApplyMigrations(ctx))
	return st
}

func TestUsers(t *testing.T) {
	storetest.RunUsers(t, newTestStore)
}

func TestCredentials(t *testing.T) {
	storetest.RunCredentials(t, newTestStore, storetest.Options{NativeExpiry: true})
}

func TestApplyMigrationsIsRepeatable(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.ApplyMigrations(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}

func TestNewStoreRequiresDatabase(t *testing.T) {
	_, err := mongodb.NewStore(context.Background(), "mongodb://127.0.0.1:1", "")
	require.Error(t, err)
}
