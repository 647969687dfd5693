package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/bookmark-sync/internal/adapter/memory"
	"github.com/alexjbarnes/bookmark-sync/internal/config"
	"github.com/alexjbarnes/bookmark-sync/internal/engine"
	"github.com/alexjbarnes/bookmark-sync/internal/localstore"
	"github.com/alexjbarnes/bookmark-sync/internal/logging"
	"github.com/alexjbarnes/bookmark-sync/internal/mapping"
	"github.com/alexjbarnes/bookmark-sync/internal/tree"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, logging.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	store, err := localstore.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening bookmark store: %w", err)
	}
	defer store.Close()

	// Import subcommands operate on the local store only; the next
	// daemon run (or the watcher) picks the new nodes up.
	if len(os.Args) > 2 {
		switch os.Args[1] {
		case "import-html":
			return importHTML(store, os.Args[2])
		case "import-chrome":
			return importChrome(store, os.Args[2])
		}
	}

	if len(os.Args) > 1 && os.Args[1] == "inspect" {
		return inspect(store)
	}

	logger.Info("bookmark-sync starting",
		slog.String("version", Version),
		slog.String("db", cfg.DBPath),
		slog.Duration("interval", cfg.SyncInterval),
		slog.Bool("watch", cfg.WatchLocal),
	)

	maps, err := mapping.LoadAt(cfg.MappingPath)
	if err != nil {
		return fmt.Errorf("loading mapping store: %w", err)
	}
	defer maps.Close()

	specs, err := config.LoadAccounts(cfg.AccountsFile)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}

	accounts, err := buildAccounts(specs)
	if err != nil {
		return err
	}

	driver, err := engine.NewDriver(store, maps, logger, accounts)
	if err != nil {
		return fmt.Errorf("creating driver: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	oneShot := len(os.Args) > 1 && os.Args[1] == "sync"
	if oneShot {
		return driver.SyncAll(ctx)
	}

	return runDaemon(ctx, cfg, driver, logger)
}

func runDaemon(ctx context.Context, cfg *config.Config, driver *engine.Driver, logger *slog.Logger) error {
	syncAll := func(ctx context.Context) {
		// Per-account failures are recorded on the accounts; the daemon
		// keeps running and retries on the next trigger.
		if err := driver.SyncAll(ctx); err != nil {
			logger.Warn("sync round finished with errors", slog.Any("error", err))
		}
	}

	syncAll(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				syncAll(gctx)
			}
		}
	})

	if cfg.WatchLocal {
		watcher := engine.NewWatcher(cfg.DBPath, cfg.WatchDebounce, logger, syncAll)
		g.Go(func() error {
			return watcher.Watch(gctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// buildAccounts instantiates the remote backend of every declared
// account.
func buildAccounts(specs []config.AccountSpec) ([]*engine.Account, error) {
	accounts := make([]*engine.Account, 0, len(specs))

	for _, spec := range specs {
		localRoot := spec.LocalRoot
		if localRoot == "" {
			localRoot = localstore.RootID
		}

		a := &engine.Account{
			ID:          spec.ID,
			LocalRootID: localRoot,
		}

		switch spec.Backend {
		case "memory":
			var opts []memory.Option
			if spec.HTTPOnly {
				opts = append(opts, memory.WithHTTPOnly())
			}

			a.Remote = memory.New(opts...)

		default:
			return nil, fmt.Errorf("account %q: unknown backend %q", spec.ID, spec.Backend)
		}

		accounts = append(accounts, a)
	}

	return accounts, nil
}

func importHTML(store *localstore.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening import file: %w", err)
	}
	defer f.Close()

	n, err := store.ImportNetscape(context.Background(), f, localstore.RootID)
	if err != nil {
		return fmt.Errorf("importing bookmarks: %w", err)
	}

	fmt.Printf("imported %d nodes\n", n)

	return nil
}

func importChrome(store *localstore.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading import file: %w", err)
	}

	n, err := store.ImportChrome(context.Background(), data, localstore.RootID)
	if err != nil {
		return fmt.Errorf("importing bookmarks: %w", err)
	}

	fmt.Printf("imported %d nodes\n", n)

	return nil
}

func inspect(store *localstore.Store) error {
	root, err := store.GetBookmarksTree(context.Background())
	if err != nil {
		return fmt.Errorf("loading tree: %w", err)
	}

	fmt.Print(tree.Inspect(root))

	return nil
}
