package ledger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.json")
	store, err := NewFileStore(path, nil)
	require.NoError(t, err)
	return store
}

func TestFileStore_LoadMissingFile(t *testing.T) {
	store := newTestFileStore(t)

	account, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, account.Deposits)
	assert.Equal(t, int64(0), account.BalanceSats)
}

func TestFileStore_LoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	store, err := NewFileStore(path, nil)
	require.NoError(t, err)

	account, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, account.Deposits)
	assert.Equal(t, int64(0), account.BalanceSats)
}

func TestFileStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode")
}

func TestFileStore_CommitAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	store, err := NewFileStore(path, nil)
	require.NoError(t, err)

	ctx := context.Background()
	deposit := Deposit{TxID: "abc", AmountSats: 5000, CreditedAt: time.Now().UTC()}

	credited, err := store.Commit(ctx, deposit)
	require.NoError(t, err)
	assert.True(t, credited)

	// A fresh store over the same file must see the credited deposit
	// (restart safety).
	reopened, err := NewFileStore(path, nil)
	require.NoError(t, err)

	account, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, account.Deposits, 1)
	assert.Equal(t, "abc", account.Deposits[0].TxID)
	assert.Equal(t, int64(5000), account.BalanceSats)

	// Re-committing the same txid after the restart is a no-op.
	credited, err = reopened.Commit(ctx, deposit)
	require.NoError(t, err)
	assert.False(t, credited)

	account, err = reopened.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, account.Deposits, 1)
	assert.Equal(t, int64(5000), account.BalanceSats)
}

func TestFileStore_DuplicateCommitIsNoOp(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	deposit := Deposit{TxID: "dup", AmountSats: 1200, CreditedAt: time.Now().UTC()}

	credited, err := store.Commit(ctx, deposit)
	require.NoError(t, err)
	assert.True(t, credited)

	credited, err = store.Commit(ctx, deposit)
	require.NoError(t, err)
	assert.False(t, credited)

	account, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, account.Deposits, 1)
	assert.Equal(t, int64(1200), account.BalanceSats)
}

func TestFileStore_SumInvariant(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	amounts := []int64{1000, 2500, 7, 99_999}
	for i, sats := range amounts {
		_, err := store.Commit(ctx, Deposit{
			TxID:       string(rune('a' + i)),
			AmountSats: sats,
			CreditedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	account, err := store.Snapshot(ctx)
	require.NoError(t, err)

	var sum int64
	for _, d := range account.Deposits {
		sum += d.AmountSats
	}
	assert.Equal(t, sum, account.BalanceSats)
	assert.Equal(t, int64(103_506), account.BalanceSats)
}

func TestFileStore_ConcurrentCommitsSameTxID(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	deposit := Deposit{TxID: "race", AmountSats: 5000, CreditedAt: time.Now().UTC()}

	const workers = 8
	results := make(chan bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			credited, err := store.Commit(ctx, deposit)
			assert.NoError(t, err)
			results <- credited
		}()
	}
	wg.Wait()
	close(results)

	creditedCount := 0
	for credited := range results {
		if credited {
			creditedCount++
		}
	}
	assert.Equal(t, 1, creditedCount, "exactly one commit must win")

	account, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, account.Deposits, 1)
	assert.Equal(t, int64(5000), account.BalanceSats)
}

func TestFileStore_RecomputesStaleBalance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	state := Account{
		Deposits: []Deposit{
			{TxID: "a", AmountSats: 100, CreditedAt: time.Now().UTC()},
			{TxID: "b", AmountSats: 200, CreditedAt: time.Now().UTC()},
		},
		BalanceSats: 999, // stale on purpose
	}
	data, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	store, err := NewFileStore(path, nil)
	require.NoError(t, err)

	account, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(300), account.BalanceSats)
}

func TestFileStore_CommitValidation(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	_, err := store.Commit(ctx, Deposit{TxID: "", AmountSats: 100})
	assert.ErrorIs(t, err, ErrEmptyTxID)

	_, err = store.Commit(ctx, Deposit{TxID: "zero", AmountSats: 0})
	assert.ErrorIs(t, err, ErrNonPositiveAmount)
}

func TestFileStore_PersistFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	store, err := NewFileStore(path, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Commit(ctx, Deposit{TxID: "ok", AmountSats: 100, CreditedAt: time.Now().UTC()})
	require.NoError(t, err)

	// Make the directory unwritable so the temp-file write fails.
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	credited, err := store.Commit(ctx, Deposit{TxID: "fails", AmountSats: 999, CreditedAt: time.Now().UTC()})
	require.Error(t, err)
	assert.False(t, credited)

	// The in-memory state must not have advanced.
	account, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, account.Deposits, 1)
	assert.Equal(t, int64(100), account.BalanceSats)

	// After the failure clears, the same deposit commits cleanly.
	require.NoError(t, os.Chmod(dir, 0o755))
	credited, err = store.Commit(ctx, Deposit{TxID: "fails", AmountSats: 999, CreditedAt: time.Now().UTC()})
	require.NoError(t, err)
	assert.True(t, credited)
}
