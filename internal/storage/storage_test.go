package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testDBSeq int

func newTestStore(t *testing.T) *Store {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared", testDBSeq)
	s, err := Open(context.Background(), "sqlite", dsn, true, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateUserAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "Alice@Example.com", "hash1")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", u.Email)
	require.NotEmpty(t, u.ID)

	byEmail, err := s.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrNotFound)

	// Registration also provisions the usage row.
	usage, err := s.GetUsage(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 0, usage.SummaryCount)
	require.Equal(t, "free", usage.AccountTier)
	require.Nil(t, usage.EncAPIKey)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "dup@example.com", "h")
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, "dup@example.com", "h2")
	require.ErrorIs(t, err, ErrEmailExists)
}

func TestResetTokenLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "rt@example.com", "h")
	require.NoError(t, err)

	expires := time.Now().Add(time.Hour).UTC()
	require.NoError(t, s.SetResetToken(ctx, u.ID, "tok-123", expires))

	got, err := s.GetUserByResetToken(ctx, "tok-123")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.NotNil(t, got.ResetExpires)

	_, err = s.GetUserByResetToken(ctx, "wrong")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.ClearResetToken(ctx, u.ID))
	_, err = s.GetUserByResetToken(ctx, "tok-123")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIncrementUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "inc@example.com", "h")
	require.NoError(t, err)

	got, err := s.IncrementUsage(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.SummaryCount)

	got, err = s.IncrementUsage(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.SummaryCount)

	_, err = s.IncrementUsage(ctx, "missing-user")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIncrementUsageConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "race@example.com", "h")
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementUsage(ctx, u.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent increment: %v", err)
	}

	usage, err := s.GetUsage(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, n, usage.SummaryCount, "no increment may be lost")
}

func TestResetAllFreeTierUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	free1, err := s.CreateUser(ctx, "f1@example.com", "h")
	require.NoError(t, err)
	free2, err := s.CreateUser(ctx, "f2@example.com", "h")
	require.NoError(t, err)
	byok, err := s.CreateUser(ctx, "b@example.com", "h")
	require.NoError(t, err)
	require.NoError(t, s.SaveAPIKey(ctx, byok.ID, "enc-key"))

	for _, id := range []string{free1.ID, free2.ID, byok.ID} {
		_, err := s.IncrementUsage(ctx, id)
		require.NoError(t, err)
	}

	n, err := s.ResetAllFreeTierUsage(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	for _, id := range []string{free1.ID, free2.ID} {
		usage, err := s.GetUsage(ctx, id)
		require.NoError(t, err)
		require.Equal(t, 0, usage.SummaryCount)
	}

	usage, err := s.GetUsage(ctx, byok.ID)
	require.NoError(t, err)
	require.Equal(t, 1, usage.SummaryCount, "byok rows are untouched by the sweep")
}

func TestAPIKeyFlipsTier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "key@example.com", "h")
	require.NoError(t, err)

	require.NoError(t, s.SaveAPIKey(ctx, u.ID, "enc"))
	usage, err := s.GetUsage(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "byok", usage.AccountTier)
	require.NotNil(t, usage.EncAPIKey)

	require.NoError(t, s.DeleteAPIKey(ctx, u.ID))
	usage, err = s.GetUsage(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "free", usage.AccountTier)
	require.Nil(t, usage.EncAPIKey)
}

func TestSQLDriverName(t *testing.T) {
	require.Equal(t, "pgx", sqlDriverName(normalizeDriver("postgres")))
	require.Equal(t, "pgx", sqlDriverName(normalizeDriver("PGX")))
	require.Equal(t, "sqlite", sqlDriverName(normalizeDriver("sqlite3")))
}

func TestOpenPostgresUsesRegisteredDriver(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Nothing listens on port 1, so the open must get as far as the
	// connection attempt instead of failing on an unregistered driver name.
	_, err := Open(ctx, "postgres", "postgres://127.0.0.1:1/tubebrief?connect_timeout=1", false, "")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "unknown driver")
}
