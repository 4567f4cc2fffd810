package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

// WBCTransactionStore implements domain.WBCTransactionStore using PostgreSQL.
type WBCTransactionStore struct {
	pool *pgxpool.Pool
}

// NewWBCTransactionStore creates a new WBCTransactionStore backed by the given connection pool.
func NewWBCTransactionStore(pool *pgxpool.Pool) *WBCTransactionStore {
	return &WBCTransactionStore{pool: pool}
}

var _ domain.WBCTransactionStore = (*WBCTransactionStore)(nil)

const wbcTxSelectCols = `id, tx_hash, from_address, to_address, amount, position_id,
	kind, status, block_number, gas_used, error_message, created_at, confirmed_at`

func scanWBCTx(row pgx.Row) (domain.WBCTransaction, error) {
	var tx domain.WBCTransaction
	var kind, status string
	var block, gas *int64

	err := row.Scan(
		&tx.ID, &tx.TxHash, &tx.FromAddress, &tx.ToAddress, &tx.Amount, &tx.PositionID,
		&kind, &status, &block, &gas, &tx.ErrorMessage, &tx.CreatedAt, &tx.ConfirmedAt,
	)
	if err != nil {
		return domain.WBCTransaction{}, err
	}
	tx.Kind = domain.TxKind(kind)
	tx.Status = domain.TxStatus(status)
	tx.BlockNumber = toUint64Ptr(block)
	tx.GasUsed = toUint64Ptr(gas)
	return tx, nil
}

func toUint64Ptr(v *int64) *uint64 {
	if v == nil {
		return nil
	}
	u := uint64(*v)
	return &u
}

func toInt64Ptr(v *uint64) *int64 {
	if v == nil {
		return nil
	}
	i := int64(*v)
	return &i
}

// Upsert records a transaction. Logging the same hash again updates its
// status and receipt fields instead of inserting a duplicate.
func (s *WBCTransactionStore) Upsert(ctx context.Context, tx domain.WBCTransaction) error {
	const query = `
		INSERT INTO wbc_transactions (
			tx_hash, from_address, to_address, amount, position_id,
			kind, status, block_number, gas_used, error_message, confirmed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (tx_hash) DO UPDATE SET
			status        = EXCLUDED.status,
			block_number  = COALESCE(EXCLUDED.block_number, wbc_transactions.block_number),
			gas_used      = COALESCE(EXCLUDED.gas_used, wbc_transactions.gas_used),
			error_message = EXCLUDED.error_message,
			confirmed_at  = COALESCE(EXCLUDED.confirmed_at, wbc_transactions.confirmed_at)`

	_, err := s.pool.Exec(ctx, query,
		tx.TxHash, domain.NormalizeWallet(tx.FromAddress), domain.NormalizeWallet(tx.ToAddress),
		tx.Amount, tx.PositionID,
		string(tx.Kind), string(tx.Status),
		toInt64Ptr(tx.BlockNumber), toInt64Ptr(tx.GasUsed),
		tx.ErrorMessage, tx.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert wbc transaction %s: %w", tx.TxHash, err)
	}
	return nil
}

// GetByHash returns the record for a transaction hash.
func (s *WBCTransactionStore) GetByHash(ctx context.Context, hash string) (domain.WBCTransaction, error) {
	query := `SELECT ` + wbcTxSelectCols + ` FROM wbc_transactions WHERE tx_hash = $1`

	tx, err := scanWBCTx(s.pool.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WBCTransaction{}, fmt.Errorf("postgres: wbc transaction %s: %w", hash, domain.ErrNotFound)
		}
		return domain.WBCTransaction{}, fmt.Errorf("postgres: get wbc transaction %s: %w", hash, err)
	}
	return tx, nil
}

// List returns transactions matching filter, newest first. A wallet filter
// matches either side of the transfer.
func (s *WBCTransactionStore) List(ctx context.Context, f domain.TxFilter) ([]domain.WBCTransaction, error) {
	query := `SELECT ` + wbcTxSelectCols + ` FROM wbc_transactions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Wallet != "" {
		query += fmt.Sprintf(" AND (to_address = $%d OR from_address = $%d)", argIdx, argIdx)
		args = append(args, domain.NormalizeWallet(f.Wallet))
		argIdx++
	}
	if f.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, string(f.Kind))
		argIdx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	if f.PositionID != nil {
		query += fmt.Sprintf(" AND position_id = $%d", argIdx)
		args = append(args, *f.PositionID)
		argIdx++
	}
	if f.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *f.Since)
		argIdx++
	}
	if f.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *f.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wbc transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.WBCTransaction
	for rows.Next() {
		tx, err := scanWBCTx(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan wbc transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate wbc transactions: %w", err)
	}
	return out, nil
}
