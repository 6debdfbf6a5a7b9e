package main

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watch/internal/clock/system"
	"github.com/JakeFAU/gazette-watch/internal/config"
	"github.com/JakeFAU/gazette-watch/internal/dou"
	"github.com/JakeFAU/gazette-watch/internal/gazette"
	"github.com/JakeFAU/gazette-watch/internal/id/uuid"
	"github.com/JakeFAU/gazette-watch/internal/notify"
	"github.com/JakeFAU/gazette-watch/internal/notify/email"
	pubsubnotify "github.com/JakeFAU/gazette-watch/internal/notify/pubsub"
	"github.com/JakeFAU/gazette-watch/internal/ratelimit"
	"github.com/JakeFAU/gazette-watch/internal/runguard"
	"github.com/JakeFAU/gazette-watch/internal/storage/gcs"
	"github.com/JakeFAU/gazette-watch/internal/storage/local"
	"github.com/JakeFAU/gazette-watch/internal/storage/memory"
	"github.com/JakeFAU/gazette-watch/internal/storage/postgres"
	"github.com/JakeFAU/gazette-watch/internal/watchlist"
)

// clock returns the system clock in the configured timezone.
func (c *cli) clock() (*system.Clock, error) {
	loc, err := c.cfg.Guard.Location()
	if err != nil {
		return nil, err
	}
	return system.NewIn(loc), nil
}

// pool opens the Postgres pool once, when some backend needs it.
func (c *cli) pool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:             c.cfg.DB.DSN,
		MaxConns:        c.cfg.DB.MaxConns,
		MinConns:        c.cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(c.cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c.onClose(pool.Close)
	return pool, nil
}

func (c *cli) needsPool() bool {
	return c.cfg.Ledger.Provider == config.ProviderPostgres || c.cfg.Guard.Provider == config.ProviderPostgres
}

// backends holds the storage shared by the subcommands.
type backends struct {
	ledger    gazette.Ledger
	lockStore runguard.Store
	pgLocks   *postgres.LockStore
}

func (c *cli) buildBackends(ctx context.Context) (*backends, error) {
	var pool *pgxpool.Pool
	if c.needsPool() {
		p, err := c.pool(ctx)
		if err != nil {
			return nil, err
		}
		pool = p
	}

	b := &backends{}
	switch c.cfg.Ledger.Provider {
	case config.ProviderPostgres:
		ledger, err := postgres.NewLedger(pool, uuid.New())
		if err != nil {
			return nil, fmt.Errorf("init ledger: %w", err)
		}
		b.ledger = ledger
	default:
		c.logger.Warn("using in-memory ledger; run history is lost on exit")
		b.ledger = memory.NewLedger(uuid.New())
	}

	switch c.cfg.Guard.Provider {
	case config.ProviderPostgres:
		store, err := postgres.NewLockStore(pool)
		if err != nil {
			return nil, fmt.Errorf("init lock store: %w", err)
		}
		b.lockStore = store
		b.pgLocks = store
	case config.ProviderMemory:
		b.lockStore = memory.NewLockStore()
	default:
		store, err := runguard.NewFileStore(c.cfg.Guard.Path)
		if err != nil {
			return nil, fmt.Errorf("init marker file: %w", err)
		}
		b.lockStore = store
	}
	return b, nil
}

// ensureSchema creates the ledger and lock tables when absent.
func (b *backends) ensureSchema(ctx context.Context) error {
	if err := b.ledger.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	if b.pgLocks != nil {
		if err := b.pgLocks.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure lock schema: %w", err)
		}
	}
	return nil
}

func (c *cli) guard(b *backends) (*runguard.Guard, error) {
	clock, err := c.clock()
	if err != nil {
		return nil, err
	}
	return runguard.New(b.lockStore, clock, c.logger.Named("runguard")), nil
}

func (c *cli) buildArchive(ctx context.Context) (gazette.BlobStore, error) {
	switch c.cfg.Archive.Provider {
	case config.ProviderMemory:
		return memory.NewBlobStore(), nil
	case config.ProviderLocal:
		store, err := local.New(local.Config{BaseDir: c.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return store, nil
	case config.ProviderGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		c.onClose(func() {
			if err := client.Close(); err != nil {
				c.logger.Warn("storage client close failed", zap.Error(err))
			}
		})
		store, err := gcs.New(client, gcs.Config{Bucket: c.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}

func (c *cli) buildNotifier(ctx context.Context) (*notify.Multi, error) {
	var channels []notify.Named

	if ec := c.cfg.Notify.Email; ec.Enabled {
		n, err := email.New(email.Config{
			Host:     ec.Host,
			Port:     ec.Port,
			Username: ec.Username,
			Password: ec.Password,
			From:     ec.From,
			To:       ec.To,
			Timeout:  time.Duration(ec.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("init email notifier: %w", err)
		}
		channels = append(channels, notify.Named{Name: "email", Notifier: n})
	}

	if pc := c.cfg.Notify.PubSub; pc.Enabled {
		client, err := pubsub.NewClient(ctx, pc.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		topic := client.Topic(pc.TopicName)
		pub := pubsubnotify.New(topic)
		c.onClose(func() {
			pub.Stop()
			if err := client.Close(); err != nil {
				c.logger.Warn("pubsub client close failed", zap.Error(err))
			}
		})
		channels = append(channels, notify.Named{Name: "pubsub", Notifier: pub})
	}

	multi := notify.NewMulti(c.logger.Named("notify"), channels...)
	if multi.Len() == 0 {
		c.logger.Warn("no notification channel enabled; matches are only recorded in the ledger")
	}
	return multi, nil
}

func (c *cli) buildSource(archive gazette.BlobStore) *dou.Source {
	cc := c.cfg.Crawl
	return dou.NewSource(dou.Config{
		BaseURL:       cc.BaseURL,
		WebURL:        cc.WebURL,
		UserAgent:     cc.UserAgent,
		RespectRobots: cc.RespectRobots,
		Timeout:       cc.Timeout(),
		MaxAttempts:   uint(cc.MaxAttempts),
		Backoff:       cc.Backoff(),
		ArchivePrefix: c.cfg.Archive.Prefix,
		Limiter: ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cc.RatePerSecond,
			Burst:             cc.RateBurst,
		}),
	}, archive, c.logger.Named("dou"))
}

func (c *cli) buildWatchlist() *watchlist.FileSource {
	wc := c.cfg.Watchlist
	return watchlist.NewFileSource(watchlist.Config{
		Path:      wc.Path,
		Column:    wc.Column,
		Sheet:     wc.Sheet,
		Delimiter: wc.DelimiterRune(),
	}, c.logger.Named("watchlist"))
}
