package custody

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// PostgresStore keeps distribution trees in PostgreSQL. Conservation is
// enforced inside a transaction: the parent row is locked with
// SELECT ... FOR UPDATE before the outgoing quantity is summed, so two
// spenders racing against the same node serialize on the row lock.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed custody store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InitBatch(ctx context.Context, batchID domain.BatchID, manufacturer domain.Identity, quantity uint64, now time.Time) (Distribution, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Distribution{}, fmt.Errorf("begin init batch: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM distributions WHERE batch_id = $1)
	`, int64(batchID)).Scan(&exists)
	if err != nil {
		return Distribution{}, fmt.Errorf("check batch arena: %w", err)
	}
	if exists {
		return Distribution{}, fmt.Errorf("batch %s: %w", batchID, sentinel.ErrConflict)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT nextval('distribution_ids')`).Scan(&id); err != nil {
		return Distribution{}, fmt.Errorf("allocate root id: %w", err)
	}

	root := Distribution{
		ID:        domain.DistributionID(id),
		BatchID:   batchID,
		From:      domain.Sentinel,
		To:        manufacturer,
		Quantity:  quantity,
		CreatedAt: now,
	}
	if err := insertNode(ctx, tx, root); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Distribution{}, fmt.Errorf("batch %s: %w", batchID, sentinel.ErrConflict)
		}
		return Distribution{}, err
	}
	if err := tx.Commit(); err != nil {
		return Distribution{}, fmt.Errorf("commit init batch: %w", err)
	}
	return root, nil
}

func (s *PostgresStore) Get(ctx context.Context, batchID domain.BatchID, id domain.DistributionID) (Distribution, error) {
	return scanNode(s.db.QueryRowContext(ctx, `
		SELECT batch_id, id, parent, from_identity, to_identity, quantity, unit_price, created_at
		FROM distributions WHERE batch_id = $1 AND id = $2
	`, int64(batchID), int64(id)))
}

func (s *PostgresStore) Active(ctx context.Context, batchID domain.BatchID, holder domain.Identity) (Distribution, error) {
	return scanNode(s.db.QueryRowContext(ctx, `
		SELECT d.batch_id, d.id, d.parent, d.from_identity, d.to_identity, d.quantity, d.unit_price, d.created_at
		FROM active_holdings a
		JOIN distributions d ON d.batch_id = a.batch_id AND d.id = a.distribution_id
		WHERE a.batch_id = $1 AND a.holder = $2
	`, int64(batchID), holder.String()))
}

func (s *PostgresStore) AppendChild(ctx context.Context, batchID domain.BatchID, parent domain.DistributionID, from, to domain.Identity, quantity, unitPrice uint64, now time.Time) (Distribution, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Distribution{}, fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback()

	remaining, err := remainingForUpdate(ctx, tx, batchID, parent)
	if err != nil {
		return Distribution{}, err
	}
	if quantity > remaining {
		return Distribution{}, fmt.Errorf("node %s has %d remaining: %w", parent, remaining, sentinel.ErrInsufficient)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT nextval('distribution_ids')`).Scan(&id); err != nil {
		return Distribution{}, fmt.Errorf("allocate distribution id: %w", err)
	}

	child := Distribution{
		ID:        domain.DistributionID(id),
		BatchID:   batchID,
		Parent:    parent,
		From:      from,
		To:        to,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		CreatedAt: now,
	}
	if err := insertNode(ctx, tx, child); err != nil {
		return Distribution{}, err
	}

	// Newest transfer wins the recipient's active slot.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO active_holdings (batch_id, holder, distribution_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (batch_id, holder) DO UPDATE SET distribution_id = EXCLUDED.distribution_id
	`, int64(batchID), to.String(), id)
	if err != nil {
		return Distribution{}, fmt.Errorf("update active holding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Distribution{}, fmt.Errorf("commit transfer: %w", err)
	}
	return child, nil
}

func (s *PostgresStore) Consume(ctx context.Context, batchID domain.BatchID, node domain.DistributionID, quantity uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin consume: %w", err)
	}
	defer tx.Rollback()

	remaining, err := remainingForUpdate(ctx, tx, batchID, node)
	if err != nil {
		return err
	}
	if quantity > remaining {
		return fmt.Errorf("node %s has %d remaining: %w", node, remaining, sentinel.ErrInsufficient)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE distributions SET consumed = consumed + $3
		WHERE batch_id = $1 AND id = $2
	`, int64(batchID), int64(node), int64(quantity))
	if err != nil {
		return fmt.Errorf("record consumption: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) Remaining(ctx context.Context, batchID domain.BatchID, node domain.DistributionID) (uint64, error) {
	var quantity, consumed, children int64
	err := s.db.QueryRowContext(ctx, `
		SELECT d.quantity, d.consumed,
			COALESCE((SELECT SUM(c.quantity) FROM distributions c
				WHERE c.batch_id = d.batch_id AND c.parent = d.id), 0)
		FROM distributions d WHERE d.batch_id = $1 AND d.id = $2
	`, int64(batchID), int64(node)).Scan(&quantity, &consumed, &children)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("node %s: %w", node, sentinel.ErrNotFound)
		}
		return 0, fmt.Errorf("compute remaining: %w", err)
	}
	return uint64(quantity - consumed - children), nil
}

func (s *PostgresStore) Chain(ctx context.Context, batchID domain.BatchID, node domain.DistributionID) ([]Distribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE ancestry AS (
			SELECT batch_id, id, parent, from_identity, to_identity, quantity, unit_price, created_at, 0 AS depth
			FROM distributions WHERE batch_id = $1 AND id = $2
			UNION ALL
			SELECT d.batch_id, d.id, d.parent, d.from_identity, d.to_identity, d.quantity, d.unit_price, d.created_at, a.depth + 1
			FROM distributions d
			JOIN ancestry a ON d.batch_id = a.batch_id AND d.id = a.parent
		)
		SELECT batch_id, id, parent, from_identity, to_identity, quantity, unit_price, created_at
		FROM ancestry ORDER BY depth DESC
	`, int64(batchID), int64(node))
	if err != nil {
		return nil, fmt.Errorf("walk ancestry: %w", err)
	}
	defer rows.Close()

	var chain []Distribution
	for rows.Next() {
		d, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		chain = append(chain, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("walk ancestry: %w", err)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("node %s: %w", node, sentinel.ErrNotFound)
	}
	return chain, nil
}

// remainingForUpdate locks the node's row and returns its outstanding
// quantity. Later inserts against the node wait on the lock, so the value
// stays valid for the rest of the transaction.
func remainingForUpdate(ctx context.Context, tx *sql.Tx, batchID domain.BatchID, node domain.DistributionID) (uint64, error) {
	var quantity, consumed int64
	err := tx.QueryRowContext(ctx, `
		SELECT quantity, consumed FROM distributions
		WHERE batch_id = $1 AND id = $2 FOR UPDATE
	`, int64(batchID), int64(node)).Scan(&quantity, &consumed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("node %s: %w", node, sentinel.ErrNotFound)
		}
		return 0, fmt.Errorf("lock node: %w", err)
	}

	var children int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM distributions
		WHERE batch_id = $1 AND parent = $2
	`, int64(batchID), int64(node)).Scan(&children)
	if err != nil {
		return 0, fmt.Errorf("sum children: %w", err)
	}
	return uint64(quantity - consumed - children), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (Distribution, error) {
	var (
		d               Distribution
		batchID, id     int64
		parent          int64
		quantity, price int64
	)
	err := row.Scan(&batchID, &id, &parent, &d.From, &d.To, &quantity, &price, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Distribution{}, sentinel.ErrNotFound
		}
		return Distribution{}, fmt.Errorf("scan distribution: %w", err)
	}
	d.BatchID = domain.BatchID(batchID)
	d.ID = domain.DistributionID(id)
	d.Parent = domain.DistributionID(parent)
	d.Quantity = uint64(quantity)
	d.UnitPrice = uint64(price)
	return d, nil
}

func insertNode(ctx context.Context, tx *sql.Tx, d Distribution) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO distributions (batch_id, id, parent, from_identity, to_identity,
			quantity, unit_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, int64(d.BatchID), int64(d.ID), int64(d.Parent), d.From.String(), d.To.String(),
		int64(d.Quantity), int64(d.UnitPrice), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert distribution: %w", err)
	}
	return nil
}
