package impl

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/pkg/database"
	"github.com/fairraffle/go-rafflebridge/pkg/nonce"
)

// NonceStore relies on the SQLite mirror database for keeping track of
// pending txs.
type NonceStore struct {
	db *database.SQLiteDB
}

var _ nonce.NonceStore = (*NonceStore)(nil)

// NewNonceStore creates a new nonce store.
func NewNonceStore(db *database.SQLiteDB) *NonceStore {
	return &NonceStore{db: db}
}

// ListPendingTx lists all the pending txs of an address.
func (s *NonceStore) ListPendingTx(
	ctx context.Context,
	chainID bridge.ChainID,
	addr common.Address,
) ([]nonce.PendingTx, error) {
	rows, err := s.db.SQLDB.QueryContext(ctx,
		`SELECT hash, nonce, created_at FROM pending_txs
		 WHERE chain_id = ?1 AND address = ?2 ORDER BY nonce`,
		int64(chainID), addr.Hex())
	if err != nil {
		return nil, fmt.Errorf("list pending txs: %s", err)
	}
	defer func() { _ = rows.Close() }()

	var txs []nonce.PendingTx
	for rows.Next() {
		var hash string
		var n, createdAt int64
		if err := rows.Scan(&hash, &n, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending tx: %s", err)
		}
		txs = append(txs, nonce.PendingTx{
			ChainID:   chainID,
			Hash:      common.HexToHash(hash),
			Nonce:     n,
			Address:   addr,
			CreatedAt: time.Unix(createdAt, 0),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending txs: %s", err)
	}
	return txs, nil
}

// InsertPendingTx saves a new pending tx.
func (s *NonceStore) InsertPendingTx(
	ctx context.Context,
	chainID bridge.ChainID,
	addr common.Address,
	n int64,
	hash common.Hash,
) error {
	_, err := s.db.SQLDB.ExecContext(ctx,
		`INSERT INTO pending_txs (chain_id, address, hash, nonce, created_at)
		 VALUES (?1, ?2, ?3, ?4, ?5)`,
		int64(chainID), addr.Hex(), hash.Hex(), n, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("insert pending tx: %s", err)
	}
	return nil
}

// DeletePendingTxByHash deletes a pending tx.
func (s *NonceStore) DeletePendingTxByHash(ctx context.Context, chainID bridge.ChainID, hash common.Hash) error {
	_, err := s.db.SQLDB.ExecContext(ctx,
		`DELETE FROM pending_txs WHERE chain_id = ?1 AND hash = ?2`,
		int64(chainID), hash.Hex())
	if err != nil {
		return fmt.Errorf("delete pending tx: %s", err)
	}
	return nil
}
