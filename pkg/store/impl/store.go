// Package impl provides the SQLite implementation of the mirror store.
package impl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/pkg/database"
	"github.com/fairraffle/go-rafflebridge/pkg/store"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
)

// ErrRaffleNotFound indicates the raffle isn't in the mirror.
var ErrRaffleNotFound = errors.New("raffle not found")

// MirrorStore is a SQLite-backed store.Store.
type MirrorStore struct {
	log zerolog.Logger
	db  *database.SQLiteDB
}

var _ store.Store = (*MirrorStore)(nil)

// New returns a new MirrorStore.
func New(db *database.SQLiteDB) *MirrorStore {
	log := logger.With().
		Str("component", "mirrorstore").
		Logger()
	return &MirrorStore{
		log: log,
		db:  db,
	}
}

// InsertRaffle inserts a new raffle row.
func (s *MirrorStore) InsertRaffle(ctx context.Context, r store.Raffle) error {
	_, err := s.db.SQLDB.ExecContext(ctx,
		`INSERT INTO raffles (
			raffle_id, asset_contract, raffle_owner, raffle_winner, raffle_state,
			raffle_type, nft_id_or_amount, currency, price_per_ticket,
			merkle_root, end_timestamp, tickets_sold, minimum_tickets_sold,
			number_of_tickets, asset_contract_name, token_uri,
			currency_name, decimals, currency_decimals, symbol
		) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12, ?13, ?14, ?15, ?16, ?17, ?18, ?19, ?20)`,
		r.RaffleID, r.AssetContract, r.Owner, r.Winner, r.State,
		r.Type, r.NftIDOrAmount, r.Currency, r.PricePerTicket,
		r.MerkleRoot, r.EndTimestamp, r.TicketsSold, r.MinimumTicketsSold,
		r.NumberOfTickets, r.AssetName, r.TokenURI,
		r.CurrencyName, r.Decimals, r.CurrencyDecimals, r.Symbol,
	)
	if err != nil {
		return fmt.Errorf("insert into raffles: %s", err)
	}
	return nil
}

// GetRaffle returns a raffle row by id.
func (s *MirrorStore) GetRaffle(ctx context.Context, raffleID int64) (store.Raffle, error) {
	row := s.db.SQLDB.QueryRowContext(ctx,
		`SELECT raffle_id, asset_contract, raffle_owner, raffle_winner, raffle_state,
		        raffle_type, nft_id_or_amount, currency, price_per_ticket,
		        merkle_root, end_timestamp, tickets_sold, minimum_tickets_sold,
		        number_of_tickets, asset_contract_name, token_uri,
		        currency_name, decimals, currency_decimals, symbol
		 FROM raffles WHERE raffle_id = ?1`, raffleID)

	var r store.Raffle
	err := row.Scan(
		&r.RaffleID, &r.AssetContract, &r.Owner, &r.Winner, &r.State,
		&r.Type, &r.NftIDOrAmount, &r.Currency, &r.PricePerTicket,
		&r.MerkleRoot, &r.EndTimestamp, &r.TicketsSold, &r.MinimumTicketsSold,
		&r.NumberOfTickets, &r.AssetName, &r.TokenURI,
		&r.CurrencyName, &r.Decimals, &r.CurrencyDecimals, &r.Symbol,
	)
	if err == sql.ErrNoRows {
		return store.Raffle{}, ErrRaffleNotFound
	}
	if err != nil {
		return store.Raffle{}, fmt.Errorf("query raffle: %s", err)
	}
	return r, nil
}

// SetTicketsSold updates the cumulative tickets-sold counter.
func (s *MirrorStore) SetTicketsSold(ctx context.Context, raffleID int64, ticketsSold int64) error {
	_, err := s.db.SQLDB.ExecContext(ctx,
		`UPDATE raffles SET tickets_sold = ?1 WHERE raffle_id = ?2`, ticketsSold, raffleID)
	if err != nil {
		return fmt.Errorf("update tickets sold: %s", err)
	}
	return nil
}

// SetRaffleState writes the display name of the new state verbatim; the
// contract is the source of truth for transition legality.
func (s *MirrorStore) SetRaffleState(ctx context.Context, raffleID int64, state string) error {
	_, err := s.db.SQLDB.ExecContext(ctx,
		`UPDATE raffles SET raffle_state = ?1 WHERE raffle_id = ?2`, state, raffleID)
	if err != nil {
		return fmt.Errorf("update raffle state: %s", err)
	}
	return nil
}

// InsertTickets inserts one row per ticket. Re-delivered ranges are ignored
// so a duplicate purchase event can't create extra rows.
func (s *MirrorStore) InsertTickets(ctx context.Context, tickets []store.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	tx, err := s.db.SQLDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("opening db tx: %s", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO tickets (raffle_id, ticket_id, account) VALUES (?1, ?2, ?3)`)
	if err != nil {
		return fmt.Errorf("preparing insert ticket: %s", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, t := range tickets {
		if _, err := stmt.ExecContext(ctx, t.RaffleID, t.TicketID, t.Account); err != nil {
			return fmt.Errorf("insert ticket %d/%d: %s", t.RaffleID, t.TicketID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit db tx: %s", err)
	}
	return nil
}

// ListExpiredRaffles returns the ids of raffles still in progress whose end
// timestamp is strictly before the deadline.
func (s *MirrorStore) ListExpiredRaffles(ctx context.Context, deadline int64) ([]int64, error) {
	rows, err := s.db.SQLDB.QueryContext(ctx,
		`SELECT raffle_id FROM raffles
		 WHERE raffle_state = ?1 AND end_timestamp < ?2`,
		bridge.RaffleStateInProgress.String(), deadline)
	if err != nil {
		return nil, fmt.Errorf("query expired raffles: %s", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan raffle id: %s", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expired raffles: %s", err)
	}
	return ids, nil
}

// ReplaceOrder removes any previous order for the same ticket and inserts the
// new one in a single transaction, keeping at most one active order per
// ticket.
func (s *MirrorStore) ReplaceOrder(ctx context.Context, o store.Order) error {
	tx, err := s.db.SQLDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("opening db tx: %s", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM orders WHERE raffle_id = ?1 AND ticket_id = ?2 AND seller = ?3`,
		o.RaffleID, o.TicketID, o.Seller); err != nil {
		return fmt.Errorf("delete superseded order: %s", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO orders (
			raffle_id, ticket_id, seller, currency, price,
			bought, bought_by, currency_name, currency_decimals
		) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9)`,
		o.RaffleID, o.TicketID, o.Seller, o.Currency, o.Price,
		o.Bought, o.BoughtBy, o.CurrencyName, o.CurrencyDecimals); err != nil {
		return fmt.Errorf("insert order: %s", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit db tx: %s", err)
	}
	return nil
}

// DeleteOrder removes the order rows of a ticket.
func (s *MirrorStore) DeleteOrder(ctx context.Context, raffleID int64, ticketID int64) error {
	_, err := s.db.SQLDB.ExecContext(ctx,
		`DELETE FROM orders WHERE raffle_id = ?1 AND ticket_id = ?2`, raffleID, ticketID)
	if err != nil {
		return fmt.Errorf("delete order: %s", err)
	}
	return nil
}

// MarkOrderBought flags the order of a ticket as filled.
func (s *MirrorStore) MarkOrderBought(ctx context.Context, raffleID int64, ticketID int64, buyer string) error {
	_, err := s.db.SQLDB.ExecContext(ctx,
		`UPDATE orders SET bought = 1, bought_by = ?1 WHERE raffle_id = ?2 AND ticket_id = ?3`,
		buyer, raffleID, ticketID)
	if err != nil {
		return fmt.Errorf("mark order bought: %s", err)
	}
	return nil
}

// InsertCurrency registers an allowlisted currency.
func (s *MirrorStore) InsertCurrency(ctx context.Context, c store.Currency) error {
	_, err := s.db.SQLDB.ExecContext(ctx,
		`INSERT OR REPLACE INTO currencies (address, name, symbol, decimals) VALUES (?1, ?2, ?3, ?4)`,
		c.Address, c.Name, c.Symbol, c.Decimals)
	if err != nil {
		return fmt.Errorf("insert currency: %s", err)
	}
	return nil
}

// DeleteCurrency removes a currency from the allowlist mirror.
func (s *MirrorStore) DeleteCurrency(ctx context.Context, address string) error {
	_, err := s.db.SQLDB.ExecContext(ctx, `DELETE FROM currencies WHERE address = ?1`, address)
	if err != nil {
		return fmt.Errorf("delete currency: %s", err)
	}
	return nil
}

// InsertCallback appends a row to the callbacks outbox.
func (s *MirrorStore) InsertCallback(ctx context.Context, cb store.Callback) error {
	_, err := s.db.SQLDB.ExecContext(ctx,
		`INSERT INTO callbacks (
			receiver, asset_contract, is_erc721, amount_or_nft_id,
			claimable_delta, created_at, processed
		) VALUES (?1, ?2, ?3, ?4, ?5, ?6, 0)`,
		cb.Receiver, cb.AssetContract, cb.IsERC721, cb.AmountOrNftID,
		cb.ClaimableDelta, cb.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert callback: %s", err)
	}
	return nil
}

// ListPendingCallbacks returns up to limit unprocessed callbacks in insertion
// order. Processed rows are never returned again.
func (s *MirrorStore) ListPendingCallbacks(ctx context.Context, limit int) ([]store.Callback, error) {
	rows, err := s.db.SQLDB.QueryContext(ctx,
		`SELECT id, receiver, asset_contract, is_erc721, amount_or_nft_id,
		        claimable_delta, created_at, processed
		 FROM callbacks WHERE processed = 0 ORDER BY id LIMIT ?1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending callbacks: %s", err)
	}
	defer func() { _ = rows.Close() }()

	var cbs []store.Callback
	for rows.Next() {
		var cb store.Callback
		if err := rows.Scan(
			&cb.ID, &cb.Receiver, &cb.AssetContract, &cb.IsERC721, &cb.AmountOrNftID,
			&cb.ClaimableDelta, &cb.CreatedAt, &cb.Processed); err != nil {
			return nil, fmt.Errorf("scan callback: %s", err)
		}
		cbs = append(cbs, cb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating callbacks: %s", err)
	}
	return cbs, nil
}

// MarkCallbacksProcessed flips the processed flag of the given rows. The flag
// is never reverted.
func (s *MirrorStore) MarkCallbacksProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	_, err := s.db.SQLDB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE callbacks SET processed = 1 WHERE id IN (%s)`, strings.Join(placeholders, ",")),
		args...)
	if err != nil {
		return fmt.Errorf("mark callbacks processed: %s", err)
	}
	return nil
}

// GetLastProcessedHeight returns the last processed block height of a
// monitored contract, or zero if it was never seen.
func (s *MirrorStore) GetLastProcessedHeight(
	ctx context.Context,
	chainID bridge.ChainID,
	contract common.Address,
) (int64, error) {
	row := s.db.SQLDB.QueryRowContext(ctx,
		`SELECT last_processed_height FROM feed_progress WHERE chain_id = ?1 AND contract_address = ?2`,
		int64(chainID), contract.Hex())
	var height int64
	err := row.Scan(&height)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query last processed height: %s", err)
	}
	return height, nil
}

// SetLastProcessedHeight saves the last processed block height of a monitored
// contract.
func (s *MirrorStore) SetLastProcessedHeight(
	ctx context.Context,
	chainID bridge.ChainID,
	contract common.Address,
	height int64,
) error {
	_, err := s.db.SQLDB.ExecContext(ctx,
		`INSERT INTO feed_progress (chain_id, contract_address, last_processed_height)
		 VALUES (?1, ?2, ?3)
		 ON CONFLICT (chain_id, contract_address) DO UPDATE SET last_processed_height = ?3`,
		int64(chainID), contract.Hex(), height)
	if err != nil {
		return fmt.Errorf("set last processed height: %s", err)
	}
	return nil
}

// AreEVMEventsPersisted returns whether audit rows exist for a txn hash.
func (s *MirrorStore) AreEVMEventsPersisted(
	ctx context.Context,
	chainID bridge.ChainID,
	txnHash common.Hash,
) (bool, error) {
	row := s.db.SQLDB.QueryRowContext(ctx,
		`SELECT 1 FROM evm_events WHERE chain_id = ?1 AND tx_hash = ?2 LIMIT 1`,
		int64(chainID), txnHash.Hex())
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query evm events: %s", err)
	}
	return true, nil
}

// SaveEVMEvents persists decoded events in the audit table.
func (s *MirrorStore) SaveEVMEvents(ctx context.Context, events []bridge.EVMEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.SQLDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("opening db tx: %s", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range events {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO evm_events (
				chain_id, address, topics, data, block_number,
				tx_hash, tx_index, block_hash, event_index, event_json, timestamp
			) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11)`,
			int64(e.ChainID), e.Address.Hex(), string(e.Topics), e.Data, e.BlockNumber,
			e.TxHash.Hex(), e.TxIndex, e.BlockHash.Hex(), e.Index, string(e.EventJSON), e.Timestamp,
		); err != nil {
			return fmt.Errorf("insert evm event: %s", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit db tx: %s", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *MirrorStore) Close() error {
	return s.db.Close()
}
