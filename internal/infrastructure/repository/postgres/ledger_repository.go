package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/receipt-splitter/internal/core/domain"
	"github.com/kirillkom/receipt-splitter/internal/infrastructure/resilience"
)

// LedgerRepository keeps processed receipt ids in Postgres so several
// splitter hosts can share one ledger. Membership checks are served from a
// cache filled by Load and kept current by Record.
type LedgerRepository struct {
	db       *sql.DB
	executor *resilience.Executor
	now      func() time.Time

	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewLedgerRepository(db *sql.DB, executor *resilience.Executor) *LedgerRepository {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &LedgerRepository{
		db:       db,
		executor: executor,
		now:      func() time.Time { return time.Now().UTC() },
		ids:      make(map[string]struct{}),
	}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *LedgerRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent splitter and worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2024011501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS receipt_ledger (
	receipt_id TEXT PRIMARY KEY,
	recorded_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Load replaces the cache with the ids currently stored.
func (r *LedgerRepository) Load(ctx context.Context) error {
	ids := make(map[string]struct{})
	err := r.executor.Execute(ctx, "postgres.ledger.load", func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, `SELECT receipt_id FROM receipt_ledger`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids[id] = struct{}{}
		}
		return rows.Err()
	}, classifyPostgresError)
	if err != nil {
		return domain.WrapError(domain.ErrLedgerUnavailable, "load ledger", err)
	}

	r.mu.Lock()
	r.ids = ids
	r.mu.Unlock()
	return nil
}

func (r *LedgerRepository) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[id]
	return ok
}

func (r *LedgerRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// Record inserts the ids in one transaction and returns how many rows were
// new. Ids another host recorded first are not counted.
func (r *LedgerRepository) Record(ctx context.Context, ids []string) (int, error) {
	fresh := uniqueIDs(ids)
	if len(fresh) == 0 {
		return 0, nil
	}

	var added int
	err := r.executor.Execute(ctx, "postgres.ledger.record", func(ctx context.Context) error {
		n, err := r.insert(ctx, fresh)
		if err != nil {
			return err
		}
		added = n
		return nil
	}, classifyPostgresError)
	if err != nil {
		return 0, domain.WrapError(domain.ErrLedgerUnavailable, "record ledger", err)
	}

	r.mu.Lock()
	for _, id := range fresh {
		r.ids[id] = struct{}{}
	}
	r.mu.Unlock()
	return added, nil
}

func (r *LedgerRepository) insert(ctx context.Context, ids []string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	recordedAt := r.now()
	added := 0
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `
INSERT INTO receipt_ledger (receipt_id, recorded_at)
VALUES ($1, $2)
ON CONFLICT (receipt_id) DO NOTHING
`, id, recordedAt)
		if err != nil {
			return 0, fmt.Errorf("insert receipt %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		added += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ledger tx: %w", err)
	}
	return added, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func classifyPostgresError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			pgErr.Code == "40001", pgErr.Code == "40P01", // serialization failure, deadlock
			pgErr.Code == "57P01": // admin shutdown
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
