package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alexjbarnes/bookmark-sync/internal/adapter"
	bserrors "github.com/alexjbarnes/bookmark-sync/internal/errors"
	"github.com/alexjbarnes/bookmark-sync/internal/mapping"
	"golang.org/x/sync/errgroup"
)

// Account binds a subtree of the local store to one remote backend.
type Account struct {
	ID          string
	LocalRootID string
	Remote      adapter.Adapter

	mu sync.Mutex

	statusMu sync.Mutex
	lastErr  string
	lastRun  Stats
}

// Error returns the failure message of the most recent pass, or ""
// when it succeeded.
func (a *Account) Error() string {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()

	return a.lastErr
}

// LastStats returns the action counts of the most recent pass.
func (a *Account) LastStats() Stats {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()

	return a.lastRun
}

func (a *Account) setResult(stats Stats, err error) {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()

	a.lastRun = stats
	a.lastErr = ""
	if err != nil {
		a.lastErr = err.Error()
	}
}

// Driver owns the shared local adapter and mapping store and runs sync
// passes across a set of accounts.
type Driver struct {
	local  adapter.Adapter
	store  *mapping.Store
	logger *slog.Logger

	accounts []*Account
}

// NewDriver creates a driver. Every account's mapping bucket is set up
// eagerly so a first pass never races bucket creation.
func NewDriver(local adapter.Adapter, store *mapping.Store, logger *slog.Logger, accounts []*Account) (*Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	for _, a := range accounts {
		if err := store.InitAccount(a.ID); err != nil {
			return nil, fmt.Errorf("initializing account %s: %w", a.ID, err)
		}
	}

	return &Driver{
		local:    local,
		store:    store,
		logger:   logger,
		accounts: accounts,
	}, nil
}

// Accounts returns the driver's accounts.
func (d *Driver) Accounts() []*Account {
	return d.accounts
}

// SyncAccount runs one complete pass for the account. A pass already in
// flight for the same account yields ErrSyncInProgress. The pass's
// staged mapping changes are committed on success and rolled back on
// failure; the failure is also recorded on the account.
func (d *Driver) SyncAccount(ctx context.Context, a *Account) error {
	if !a.mu.TryLock() {
		return fmt.Errorf("account %s: %w", a.ID, bserrors.ErrSyncInProgress)
	}
	defer a.mu.Unlock()

	stats, err := d.runPass(ctx, a)
	a.setResult(stats, err)

	if err != nil {
		d.store.Rollback(a.ID)
		d.logger.Error("sync failed",
			slog.String("account", a.ID),
			slog.Any("error", err),
		)

		return err
	}

	if err := d.store.Commit(a.ID); err != nil {
		a.setResult(stats, err)
		d.logger.Error("mapping commit failed",
			slog.String("account", a.ID),
			slog.Any("error", err),
		)

		return fmt.Errorf("committing mapping for account %s: %w", a.ID, err)
	}

	d.logger.Info("sync complete",
		slog.String("account", a.ID),
		slog.Int("actions", stats.Actions()),
		slog.Int("matched", stats.Matched),
	)

	return nil
}

func (d *Driver) runPass(ctx context.Context, a *Account) (Stats, error) {
	batcher, batched := a.Remote.(adapter.Batcher)
	if batched {
		if err := batcher.OnSyncStart(ctx); err != nil {
			return Stats{}, fmt.Errorf("%w: starting batch: %v", bserrors.ErrAdapterUnavailable, err)
		}
	}

	eng := New(Config{
		AccountID:    a.ID,
		LocalRootID:  a.LocalRootID,
		Local:        d.local,
		Remote:       a.Remote,
		Store:        d.store,
		Logger:       d.logger,
		ExcludeRoots: d.excludeRootsFor(a),
	})

	stats, err := eng.Run(ctx)

	if batched {
		if cerr := batcher.OnSyncComplete(ctx); cerr != nil && err == nil {
			err = fmt.Errorf("%w: completing batch: %v", bserrors.ErrAdapterUnavailable, cerr)
		}
	}

	return stats, err
}

// excludeRootsFor returns the local roots of every other account that
// could nest inside a's subtree. Those subtrees belong to their own
// account and must not be synced by a.
func (d *Driver) excludeRootsFor(a *Account) []string {
	var roots []string

	for _, other := range d.accounts {
		if other.ID != a.ID {
			roots = append(roots, other.LocalRootID)
		}
	}

	return roots
}

// SyncAll runs a pass for every account concurrently. Accounts operate
// on disjoint local subtrees, so their passes are independent; one
// account's failure does not stop the others, and the returned error
// joins every failure.
func (d *Driver) SyncAll(ctx context.Context) error {
	errs := make([]error, len(d.accounts))

	var g errgroup.Group

	for i, a := range d.accounts {
		i, a := i, a
		g.Go(func() error {
			errs[i] = d.SyncAccount(ctx, a)
			return nil
		})
	}

	_ = g.Wait()

	return stderrors.Join(errs...)
}
