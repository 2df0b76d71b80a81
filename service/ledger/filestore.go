package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the account as a single JSON state file, equivalent to
// {"deposits": [...], "balanceSats": N}. The full state is rewritten on every
// commit via a temp file + rename so a crash mid-write never leaves a torn
// file behind.
//
// All state transitions happen under one mutex spanning the whole
// check-append-persist sequence, so two overlapping reconciliation passes can
// never both credit the same txid and a balance update can never be lost to a
// lost-update race.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	state *Account
}

// NewFileStore opens (or initializes) the state file at path.
// A missing or empty file yields the zero-value account rather than an error.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &FileStore{
		path:   path,
		logger: logger,
	}

	state, err := s.readFile()
	if err != nil {
		return nil, err
	}
	s.state = state

	logger.Info("ledger file store opened",
		"path", path,
		"deposits", len(state.Deposits),
		"balance_sats", state.BalanceSats,
	)

	return s, nil
}

// readFile loads and sanity-checks the durable state.
func (s *FileStore) readFile() (*Account, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Account{Deposits: []Deposit{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger file %s: %w", s.path, err)
	}

	if len(data) == 0 {
		return &Account{Deposits: []Deposit{}}, nil
	}

	var state Account
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode ledger file %s: %w", s.path, err)
	}
	if state.Deposits == nil {
		state.Deposits = []Deposit{}
	}

	// The deposit history is authoritative; a stale balance in the file is
	// repaired rather than propagated.
	if total := sumDeposits(state.Deposits); total != state.BalanceSats {
		s.logger.Warn("ledger balance does not match deposit sum, recomputing",
			"file_balance_sats", state.BalanceSats,
			"computed_sats", total,
		)
		state.BalanceSats = total
	}

	return &state, nil
}

// Load returns a copy of the current state. Safe to call before any commit.
func (s *FileStore) Load(ctx context.Context) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), nil
}

// Commit credits the deposit exactly once. The duplicate check, the append,
// the balance update and the durable write all happen under the store mutex.
// On a persistence failure the in-memory state is rolled back so the caller
// retries the same deposit on a later pass.
func (s *FileStore) Commit(ctx context.Context, deposit Deposit) (bool, error) {
	if err := deposit.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Has(deposit.TxID) {
		s.logger.Debug("deposit already credited, skipping",
			"txid", deposit.TxID,
		)
		return false, nil
	}

	s.state.Deposits = append(s.state.Deposits, deposit)
	s.state.BalanceSats += deposit.AmountSats

	if err := s.persistLocked(); err != nil {
		// Roll back so the state never reflects an uncommitted deposit.
		s.state.Deposits = s.state.Deposits[:len(s.state.Deposits)-1]
		s.state.BalanceSats -= deposit.AmountSats
		return false, fmt.Errorf("failed to persist deposit %s: %w", deposit.TxID, err)
	}

	s.logger.Info("deposit credited",
		"txid", deposit.TxID,
		"amount_sats", deposit.AmountSats,
		"balance_sats", s.state.BalanceSats,
	)

	return true, nil
}

// Snapshot returns a consistent copy of the account for read endpoints.
func (s *FileStore) Snapshot(ctx context.Context) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), nil
}

// Close is a no-op for the file store; the state file is always consistent.
func (s *FileStore) Close() error {
	return nil
}

// persistLocked durably writes the current state. Callers must hold s.mu.
func (s *FileStore) persistLocked() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger state: %w", err)
	}

	// Write to a temp file in the same directory, then rename over the
	// state file so readers never observe a partial write.
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}
