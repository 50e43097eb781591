package pos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// PostgresStore persists unit sales in PostgreSQL. Per-batch sale ids are
// allocated under a lock on the batch row, so concurrent sales against one
// batch serialize and ids stay dense.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed sale store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, sale UnitSale) (UnitSale, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UnitSale{}, fmt.Errorf("begin sale append: %w", err)
	}
	defer tx.Rollback()

	var batchID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM batches WHERE id = $1 FOR UPDATE
	`, int64(sale.BatchID)).Scan(&batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UnitSale{}, fmt.Errorf("batch %s: %w", sale.BatchID, sentinel.ErrNotFound)
		}
		return UnitSale{}, fmt.Errorf("lock batch: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO unit_sales (batch_id, id, pharmacy, consumer, quantity, node, created_at)
		VALUES ($1, (SELECT COALESCE(MAX(id), 0) + 1 FROM unit_sales WHERE batch_id = $1), $2, $3, $4, $5, $6)
		RETURNING id
	`, int64(sale.BatchID), sale.Pharmacy.String(), sale.Consumer.String(),
		int64(sale.Quantity), int64(sale.Node), sale.CreatedAt).Scan(&id)
	if err != nil {
		return UnitSale{}, fmt.Errorf("insert sale: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return UnitSale{}, fmt.Errorf("commit sale: %w", err)
	}

	sale.ID = domain.SaleID(id)
	return sale, nil
}

func (s *PostgresStore) Get(ctx context.Context, batchID domain.BatchID, saleID domain.SaleID) (UnitSale, error) {
	return scanSale(s.db.QueryRowContext(ctx, `
		SELECT batch_id, id, pharmacy, consumer, quantity, node, created_at
		FROM unit_sales WHERE batch_id = $1 AND id = $2
	`, int64(batchID), int64(saleID)))
}

func (s *PostgresStore) ListForBatch(ctx context.Context, batchID domain.BatchID) ([]UnitSale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, id, pharmacy, consumer, quantity, node, created_at
		FROM unit_sales WHERE batch_id = $1 ORDER BY id
	`, int64(batchID))
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	var sales []UnitSale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (UnitSale, error) {
	var (
		sale           UnitSale
		batchID, id    int64
		quantity, node int64
	)
	err := row.Scan(&batchID, &id, &sale.Pharmacy, &sale.Consumer, &quantity, &node, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UnitSale{}, fmt.Errorf("sale: %w", sentinel.ErrNotFound)
		}
		return UnitSale{}, fmt.Errorf("scan sale: %w", err)
	}
	sale.BatchID = domain.BatchID(batchID)
	sale.ID = domain.SaleID(id)
	sale.Quantity = uint64(quantity)
	sale.Node = domain.DistributionID(node)
	return sale, nil
}
