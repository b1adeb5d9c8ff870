package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// pgLockNotAvailable is raised when lock_timeout expires while waiting on a
// row lock.
const pgLockNotAvailable = "55P03"

type Store struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// Tx wraps a database transaction and carries the row-lock helpers used by
// the mutating operations. All cross-entity consistency comes from these
// transactions, never from in-process locks.
type Tx struct {
	tx *sqlx.Tx
}

// NewStore creates a new database store
func NewStore(databaseURL string, lockTimeout time.Duration) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, lockTimeout: lockTimeout}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// RunTx executes fn inside one transaction with a bounded lock wait. Any
// error aborts the whole transaction, so partially-applied state is never
// visible. A lock-wait timeout surfaces as a retryable Unavailable error.
func (s *Store) RunTx(ctx context.Context, fn func(tx *Tx) error) error {
	txx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txx.Rollback()

	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := txx.ExecContext(ctx, timeout); err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}

	if err := fn(&Tx{tx: txx}); err != nil {
		return mapLockError(err)
	}

	if err := txx.Commit(); err != nil {
		return mapLockError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func mapLockError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgLockNotAvailable {
		return apperr.Wrap(apperr.KindUnavailable, err, "row lock wait timed out, retry the operation")
	}
	return err
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == "23505"
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("product not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}
