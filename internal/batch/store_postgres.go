package batch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// PostgresStore persists batches in PostgreSQL. See db/schema.sql.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed batch store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) AllocateID(ctx context.Context) (domain.BatchID, error) {
	var id uint64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('batch_ids')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("allocate batch id: %w", err)
	}
	return domain.BatchID(id), nil
}

func (s *PostgresStore) Save(ctx context.Context, b Batch) error {
	metadata, err := json.Marshal(b.Metadata)
	if err != nil {
		return fmt.Errorf("marshal batch metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batches (id, product_id, quantity, manufacture_date, expiry_date,
			manufacturer, root_distribution, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, int64(b.ID), b.ProductID.String(), int64(b.Quantity), b.ManufactureDate, b.ExpiryDate,
		b.Manufacturer.String(), int64(b.RootDistribution), b.CreatedAt, metadata)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("batch %s: %w", b.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("save batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.BatchID) (Batch, error) {
	var (
		b        Batch
		batchID  int64
		rootID   int64
		quantity int64
		metadata []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, quantity, manufacture_date, expiry_date,
			manufacturer, root_distribution, created_at, metadata
		FROM batches WHERE id = $1
	`, int64(id)).Scan(&batchID, &b.ProductID, &quantity, &b.ManufactureDate, &b.ExpiryDate,
		&b.Manufacturer, &rootID, &b.CreatedAt, &metadata)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Batch{}, fmt.Errorf("batch %s: %w", id, sentinel.ErrNotFound)
		}
		return Batch{}, fmt.Errorf("load batch: %w", err)
	}
	b.ID = domain.BatchID(batchID)
	b.RootDistribution = domain.DistributionID(rootID)
	b.Quantity = uint64(quantity)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &b.Metadata); err != nil {
			return Batch{}, fmt.Errorf("decode batch metadata: %w", err)
		}
	}
	return b, nil
}

func (s *PostgresStore) ListForProduct(ctx context.Context, productID domain.ProductID) ([]domain.BatchID, error) {
	// Ids are monotonic, so id order is insertion order.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM batches WHERE product_id = $1 ORDER BY id
	`, productID.String())
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var ids []domain.BatchID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan batch id: %w", err)
		}
		ids = append(ids, domain.BatchID(id))
	}
	return ids, rows.Err()
}
