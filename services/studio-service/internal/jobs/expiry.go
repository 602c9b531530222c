package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/studiosched/libs/db"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/outbox"
)

// TopicPackageExpired is emitted once per package the sweeper expires.
const TopicPackageExpired = "studio.package.expired.v1"

type ExpiredPackage struct {
	ID          string
	ClientID    string
	PackageType string
	Unused      int
	ExpiryDate  time.Time
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// ExpireDue flips active packages whose expiry has passed to expired and
// returns them. Rows locked by a concurrent booking are skipped until the
// next run.
func (r *Repository) ExpireDue(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]ExpiredPackage, error) {
	rows, err := tx.Query(ctx, `
		WITH due AS (
			SELECT id FROM packages
			WHERE status = 'active' AND expiry_date IS NOT NULL AND expiry_date <= $1
			ORDER BY expiry_date
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE packages p
		SET status = 'expired', updated_at = now()
		FROM due
		WHERE p.id = due.id
		RETURNING p.id::text, p.client_id, p.package_type, p.sessions_included - p.sessions_used, p.expiry_date
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExpiredPackage
	for rows.Next() {
		var p ExpiredPackage
		if err := rows.Scan(&p.ID, &p.ClientID, &p.PackageType, &p.Unused, &p.ExpiryDate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ExpiryWorker periodically expires packages past their expiry date and
// announces each one through the outbox.
type ExpiryWorker struct {
	pool      *db.Pool
	repo      *Repository
	outbox    *outbox.Repository
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	clock     func() time.Time
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewExpiryWorker(pool *db.Pool, repo *Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg WorkerConfig) *ExpiryWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &ExpiryWorker{
		pool:      pool,
		repo:      repo,
		outbox:    outboxRepo,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		clock:     time.Now,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.processBatch(ctx)
			if err != nil {
				w.logger.Error("package expiry batch failed", "err", err)
				continue
			}
			if n > 0 {
				w.logger.Info("packages expired", "count", n)
			}
		}
	}
}

func (w *ExpiryWorker) processBatch(ctx context.Context) (int, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	expired, err := w.repo.ExpireDue(ctx, tx, w.clock().UTC(), w.batchSize)
	if err != nil {
		return 0, err
	}
	for _, p := range expired {
		evt, err := expiredEvent(p)
		if err != nil {
			return 0, err
		}
		if _, err := w.outbox.Insert(ctx, tx, evt); err != nil {
			return 0, err
		}
	}
	return len(expired), tx.Commit(ctx)
}

func expiredEvent(p ExpiredPackage) (outbox.Event, error) {
	payload, err := json.Marshal(map[string]any{
		"package_id":      p.ID,
		"client_id":       p.ClientID,
		"package_type":    p.PackageType,
		"sessions_unused": p.Unused,
		"expired_at":      p.ExpiryDate.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: "package",
		AggregateID:   p.ID,
		EventType:     TopicPackageExpired,
		Payload:       payload,
	}, nil
}
