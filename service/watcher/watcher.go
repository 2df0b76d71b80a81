package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chainvest/chainvest/service/esplora"
	"github.com/chainvest/chainvest/service/ledger"
	"github.com/chainvest/chainvest/service/metrics"
	natspkg "github.com/chainvest/chainvest/service/nats"
)

// ChainClient is the interface to the transaction-indexing service.
// This allows the reconciliation logic to be tested without a live API.
type ChainClient interface {
	ListAddressTransactions(ctx context.Context, address string) ([]*esplora.TxInfo, error)
	GetTxStatus(ctx context.Context, txid string) (*esplora.TxStatus, error)
	GetTipHeight(ctx context.Context) (int64, error)
}

// Config holds the watcher's immutable configuration, set once at startup.
type Config struct {
	// Address is the single watched address.
	Address string

	// Network is "mainnet" or "testnet"; carried on published events.
	Network string

	// RequiredConfirmations is the confirmation threshold. At most 1, the
	// indexer's boolean confirmed flag decides; above 1 the watcher
	// compares the transaction's depth against the threshold.
	RequiredConfirmations int

	// PollInterval is the time between reconciliation passes.
	PollInterval time.Duration

	// PassTimeout bounds a single pass. Zero means the poll interval.
	PassTimeout time.Duration
}

// Watcher runs reconciliation passes against the chain: it fetches the
// watched address's transactions, classifies them, and credits
// newly-confirmed deposits to the ledger exactly once, publishing an event
// for each credit.
//
// A pass is safe to invoke repeatedly, close together in time, and after
// arbitrary process restarts; the ledger store's duplicate guard makes
// crediting idempotent.
type Watcher struct {
	cfg       Config
	chain     ChainClient
	store     ledger.Store
	publisher natspkg.Publisher // nil disables event publication
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// passMu is the single-flight guard: a tick that fires while a pass is
	// still running is skipped rather than queued.
	passMu sync.Mutex

	// now is stubbed in tests.
	now func() time.Time
}

// New creates a watcher. publisher may be nil, in which case credited
// deposits are not published. If m is nil, no metrics will be recorded.
func New(cfg Config, chain ChainClient, store ledger.Store, publisher natspkg.Publisher, m *metrics.Metrics, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PassTimeout == 0 {
		cfg.PassTimeout = cfg.PollInterval
	}
	return &Watcher{
		cfg:       cfg,
		chain:     chain,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one pass immediately, then one per poll interval until the
// context is cancelled. Ticks that fire while a pass is still in flight are
// skipped; the next tick re-discovers anything the skipped one would have.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("starting deposit watcher",
		"address", w.cfg.Address,
		"network", w.cfg.Network,
		"confirmations", w.cfg.RequiredConfirmations,
		"poll_interval", w.cfg.PollInterval,
	)

	w.tick(ctx)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("deposit watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick runs a single-flight bounded pass. Pass failures are contained here;
// nothing propagates to crash the loop.
func (w *Watcher) tick(ctx context.Context) {
	if !w.passMu.TryLock() {
		w.logger.Debug("previous pass still running, skipping tick")
		if w.metrics != nil {
			w.metrics.RecordTickSkipped()
		}
		return
	}
	defer w.passMu.Unlock()

	passCtx, cancel := context.WithTimeout(ctx, w.cfg.PassTimeout)
	defer cancel()

	start := w.now()
	err := w.RunOnce(passCtx)
	status := "success"
	if err != nil {
		status = "fetch_failed"
		w.logger.Warn("reconciliation pass ended without new information",
			"error", err,
		)
	}
	if w.metrics != nil {
		w.metrics.RecordReconcilePass(status, time.Since(start).Seconds())
	}
}

// RunOnce executes one reconciliation pass: fetch, classify, commit, notify.
// An error means the transaction listing could not be fetched and the pass
// had zero side effects; every other failure is contained per transaction
// and retried on a later pass.
func (w *Watcher) RunOnce(ctx context.Context) error {
	txs, err := w.chain.ListAddressTransactions(ctx, w.cfg.Address)
	if err != nil {
		return fmt.Errorf("transaction listing unavailable: %w", err)
	}

	account, err := w.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger state: %w", err)
	}

	// The tip height is only needed for thresholds beyond the boolean
	// confirmed flag, and only once per pass. A fetch failure leaves
	// tip at zero, which defers every depth decision to the next pass.
	var tip int64
	if w.cfg.RequiredConfirmations > 1 {
		tip, err = w.chain.GetTipHeight(ctx)
		if err != nil {
			w.logger.Warn("tip height unavailable, deferring confirmation checks",
				"error", err,
			)
		}
	}

	for _, tx := range txs {
		valueSats := tx.OutputValueTo(w.cfg.Address)
		if valueSats == 0 {
			// No output pays the watched address; irrelevant.
			continue
		}

		if account.Has(tx.TxID) {
			// Already credited on an earlier pass or before a restart.
			continue
		}

		if !w.isConfirmed(ctx, tx.TxID, tip) {
			w.logger.Debug("transaction pending, will re-evaluate next pass",
				"txid", tx.TxID,
				"value_sats", valueSats,
			)
			if w.metrics != nil {
				w.metrics.RecordPendingObserved()
			}
			continue
		}

		deposit := ledger.Deposit{
			TxID:       tx.TxID,
			AmountSats: valueSats,
			CreditedAt: w.now().UTC(),
		}

		credited, err := w.store.Commit(ctx, deposit)
		if err != nil {
			// The ledger did not advance and no event was published;
			// the transaction is still uncredited and retried next pass.
			w.logger.Error("failed to commit deposit, will retry next pass",
				"txid", tx.TxID,
				"error", err,
			)
			continue
		}
		if !credited {
			// Lost a race with an overlapping pass; the deposit exists.
			continue
		}

		if w.metrics != nil {
			w.metrics.RecordDepositCredited(deposit.AmountSats)
		}
		account.Deposits = append(account.Deposits, deposit)
		account.BalanceSats += deposit.AmountSats
		if w.metrics != nil {
			w.metrics.RecordLedgerBalance(account.BalanceSats)
		}

		w.publish(ctx, deposit)
	}

	return nil
}

// isConfirmed decides whether a transaction meets the confirmation
// threshold. Any query failure is conservative: prefer under-crediting this
// pass to mis-crediting.
func (w *Watcher) isConfirmed(ctx context.Context, txid string, tip int64) bool {
	status, err := w.chain.GetTxStatus(ctx, txid)
	if err != nil {
		w.logger.Warn("confirmation status unavailable, treating as pending",
			"txid", txid,
			"error", err,
		)
		return false
	}

	if !status.Confirmed {
		return false
	}

	if w.cfg.RequiredConfirmations <= 1 {
		return true
	}

	if tip == 0 || status.BlockHeight <= 0 {
		return false
	}
	depth := tip - status.BlockHeight + 1
	return depth >= int64(w.cfg.RequiredConfirmations)
}

// publish sends the credited deposit to subscribers. Fire-and-forget:
// delivery failure is the sink's concern, never the pass's.
func (w *Watcher) publish(ctx context.Context, deposit ledger.Deposit) {
	if w.publisher == nil {
		return
	}

	event := natspkg.FromDeposit(deposit, w.cfg.Address, w.cfg.Network)
	if err := w.publisher.PublishDeposit(ctx, event); err != nil {
		w.logger.Error("failed to publish deposit event",
			"txid", deposit.TxID,
			"error", err,
		)
	}
}
