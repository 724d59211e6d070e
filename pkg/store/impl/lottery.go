package impl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/fairraffle/go-rafflebridge/pkg/store"
)

// ErrLotteryNotFound indicates the lottery isn't in the mirror.
var ErrLotteryNotFound = errors.New("lottery not found")

// InsertLottery inserts a new lottery row.
func (s *MirrorStore) InsertLottery(ctx context.Context, l store.Lottery) error {
	_, err := s.db.SQLDB.ExecContext(ctx,
		`INSERT INTO lotteries (contract_address, lottery_id, status, winner, tickets_sold)
		 VALUES (?1, ?2, ?3, ?4, ?5)`,
		l.Contract, l.LotteryID, l.Status, l.Winner, l.TicketsSold)
	if err != nil {
		return fmt.Errorf("insert into lotteries: %s", err)
	}
	return nil
}

// GetLottery returns the lottery row of a contract.
func (s *MirrorStore) GetLottery(ctx context.Context, contract string, lotteryID int64) (store.Lottery, error) {
	l := store.Lottery{Contract: contract, LotteryID: lotteryID}
	err := s.db.SQLDB.QueryRowContext(ctx,
		`SELECT status, winner, tickets_sold FROM lotteries
		 WHERE contract_address = ?1 AND lottery_id = ?2`,
		contract, lotteryID).Scan(&l.Status, &l.Winner, &l.TicketsSold)
	if err == sql.ErrNoRows {
		return store.Lottery{}, ErrLotteryNotFound
	}
	if err != nil {
		return store.Lottery{}, fmt.Errorf("query lottery: %s", err)
	}
	return l, nil
}

// SetLotteryStatus updates the display status of a lottery.
func (s *MirrorStore) SetLotteryStatus(ctx context.Context, contract string, lotteryID int64, status string) error {
	_, err := s.db.SQLDB.ExecContext(ctx,
		`UPDATE lotteries SET status = ?1 WHERE contract_address = ?2 AND lottery_id = ?3`,
		status, contract, lotteryID)
	if err != nil {
		return fmt.Errorf("update lottery status: %s", err)
	}
	return nil
}

// AssignLotteryTickets records an assigned ticket range and advances the
// lottery's tickets-sold counter to the range's end ticket id, in a single
// transaction.
func (s *MirrorStore) AssignLotteryTickets(ctx context.Context, r store.LotteryTicketRange) error {
	tx, err := s.db.SQLDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("opening db tx: %s", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lottery_tickets (contract_address, lottery_id, init_ticket, end_ticket, account)
		 VALUES (?1, ?2, ?3, ?4, ?5)`,
		r.Contract, r.LotteryID, r.InitTicket, r.EndTicket, r.Account); err != nil {
		return fmt.Errorf("insert lottery tickets: %s", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE lotteries SET tickets_sold = ?1 WHERE contract_address = ?2 AND lottery_id = ?3`,
		r.EndTicket, r.Contract, r.LotteryID); err != nil {
		return fmt.Errorf("update lottery tickets sold: %s", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit db tx: %s", err)
	}
	return nil
}

// AddLotteryPrize accumulates deposited ERC-20 prize funds per
// (lottery, currency). Amounts are decimal strings since they can exceed
// int64.
func (s *MirrorStore) AddLotteryPrize(
	ctx context.Context,
	contract string,
	lotteryID int64,
	currency string,
	amount string,
) error {
	delta, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid prize amount %q", amount)
	}

	tx, err := s.db.SQLDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("opening db tx: %s", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT amount FROM lottery_prizes
		 WHERE contract_address = ?1 AND lottery_id = ?2 AND currency = ?3`,
		contract, lotteryID, currency).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lottery_prizes (contract_address, lottery_id, currency, amount)
			 VALUES (?1, ?2, ?3, ?4)`,
			contract, lotteryID, currency, delta.String()); err != nil {
			return fmt.Errorf("insert lottery prize: %s", err)
		}
	case err != nil:
		return fmt.Errorf("query lottery prize: %s", err)
	default:
		total, ok := new(big.Int).SetString(current, 10)
		if !ok {
			return fmt.Errorf("invalid stored prize amount %q", current)
		}
		total.Add(total, delta)
		if _, err := tx.ExecContext(ctx,
			`UPDATE lottery_prizes SET amount = ?1
			 WHERE contract_address = ?2 AND lottery_id = ?3 AND currency = ?4`,
			total.String(), contract, lotteryID, currency); err != nil {
			return fmt.Errorf("update lottery prize: %s", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit db tx: %s", err)
	}
	return nil
}

// AddLotteryAsset records a deposited ERC-721 prize.
func (s *MirrorStore) AddLotteryAsset(
	ctx context.Context,
	contract string,
	lotteryID int64,
	assetContract string,
	nftID string,
) error {
	_, err := s.db.SQLDB.ExecContext(ctx,
		`INSERT INTO lottery_assets (contract_address, lottery_id, asset_contract, nft_id)
		 VALUES (?1, ?2, ?3, ?4)`,
		contract, lotteryID, assetContract, nftID)
	if err != nil {
		return fmt.Errorf("insert lottery asset: %s", err)
	}
	return nil
}

// InsertLotteryCurrency registers a currency in a lottery contract's
// allowlist mirror.
func (s *MirrorStore) InsertLotteryCurrency(ctx context.Context, contract string, c store.Currency) error {
	_, err := s.db.SQLDB.ExecContext(ctx,
		`INSERT OR REPLACE INTO lottery_currencies (contract_address, address, name, symbol, decimals)
		 VALUES (?1, ?2, ?3, ?4, ?5)`,
		contract, c.Address, c.Name, c.Symbol, c.Decimals)
	if err != nil {
		return fmt.Errorf("insert lottery currency: %s", err)
	}
	return nil
}

// DeleteLotteryCurrency removes a currency from a lottery contract's
// allowlist mirror.
func (s *MirrorStore) DeleteLotteryCurrency(ctx context.Context, contract string, address string) error {
	_, err := s.db.SQLDB.ExecContext(ctx,
		`DELETE FROM lottery_currencies WHERE contract_address = ?1 AND address = ?2`,
		contract, address)
	if err != nil {
		return fmt.Errorf("delete lottery currency: %s", err)
	}
	return nil
}
