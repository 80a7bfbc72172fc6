// Package repository persists the balance journal and settlement results
// in PostgreSQL. The in-memory ledger stays authoritative at runtime; the
// database is the recovery source after a restart.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"lottery-group-bot/internal/model"
)

// JournalRepository handles journal and settlement persistence.
type JournalRepository struct {
	pool *pgxpool.Pool
}

// NewJournalRepository creates a new JournalRepository instance.
func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{pool: pool}
}

// InsertEntries appends journal entries and rolls each player's stored
// balance forward to the entry's post-balance. One batch, one round trip.
func (r *JournalRepository) InsertEntries(ctx context.Context, entries []model.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	const entryQuery = `
		INSERT INTO ledger_entries (id, player_id, amount_delta, kind, balance_before, balance_after, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	const playerQuery = `
		INSERT INTO players (player_id, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (player_id) DO UPDATE
		SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at
	`

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(entryQuery,
			e.ID, e.PlayerID, e.AmountDelta.String(), string(e.Kind),
			e.BalanceBefore.String(), e.BalanceAfter.String(), e.Note, e.Timestamp)
		batch.Queue(playerQuery, e.PlayerID, e.BalanceAfter.String(), e.Timestamp)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert ledger entries: %w", err)
	}
	return nil
}

// InsertSettlements stores per-player settlement outcomes.
func (r *JournalRepository) InsertSettlements(ctx context.Context, entries []model.SettlementEntry) error {
	if len(entries) == 0 {
		return nil
	}
	const query = `
		INSERT INTO settlements (period, player_id, nickname, stake, payout, profit, balance_after, detail, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (period, player_id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(query,
			e.Period, e.PlayerID, e.Nickname, e.Stake.String(), e.Payout.String(),
			e.Profit.String(), e.BalanceAfter.String(), e.Detail, e.SettledAt)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert settlements: %w", err)
	}
	return nil
}

// LoadBalances reads every stored player balance for ledger restore.
func (r *JournalRepository) LoadBalances(ctx context.Context) ([]model.PlayerBalance, error) {
	const query = `
		SELECT player_id, balance::text, updated_at
		FROM players
		ORDER BY player_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	defer rows.Close()

	var balances []model.PlayerBalance
	for rows.Next() {
		var (
			b   model.PlayerBalance
			raw string
		)
		if err := rows.Scan(&b.PlayerID, &raw, &b.LastUpdate); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		if b.Balance, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("bad stored balance for %s: %w", b.PlayerID, err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}
	return balances, nil
}

// EntriesForPlayer retrieves a player's journal, newest first.
func (r *JournalRepository) EntriesForPlayer(ctx context.Context, playerID string, limit int) ([]model.LedgerEntry, error) {
	const query = `
		SELECT id, player_id, amount_delta::text, kind, balance_before::text, balance_after::text, note, created_at
		FROM ledger_entries
		WHERE player_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var (
			e                   model.LedgerEntry
			kind                string
			delta, before, after string
		)
		if err := rows.Scan(&e.ID, &e.PlayerID, &delta, &kind, &before, &after, &e.Note, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Kind = model.EntryKind(kind)
		if e.AmountDelta, err = decimal.NewFromString(delta); err != nil {
			return nil, fmt.Errorf("bad amount delta in entry %s: %w", e.ID, err)
		}
		if e.BalanceBefore, err = decimal.NewFromString(before); err != nil {
			return nil, fmt.Errorf("bad balance before in entry %s: %w", e.ID, err)
		}
		if e.BalanceAfter, err = decimal.NewFromString(after); err != nil {
			return nil, fmt.Errorf("bad balance after in entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return entries, nil
}

// DailyTotals aggregates settlements for one local day: settled periods,
// distinct players, total staked and total paid out.
func (r *JournalRepository) DailyTotals(ctx context.Context, date time.Time) (periods, players int, staked, payout decimal.Decimal, err error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	const query = `
		SELECT COUNT(DISTINCT period),
		       COUNT(DISTINCT player_id),
		       COALESCE(SUM(stake), 0)::text,
		       COALESCE(SUM(payout), 0)::text
		FROM settlements
		WHERE settled_at >= $1 AND settled_at < $2
	`

	var rawStaked, rawPayout string
	if err = r.pool.QueryRow(ctx, query, startOfDay, endOfDay).Scan(&periods, &players, &rawStaked, &rawPayout); err != nil {
		err = fmt.Errorf("failed to get daily totals: %w", err)
		return
	}
	if staked, err = decimal.NewFromString(rawStaked); err != nil {
		return
	}
	payout, err = decimal.NewFromString(rawPayout)
	return
}

// SettlementsForPeriod retrieves a settled period's outcomes.
func (r *JournalRepository) SettlementsForPeriod(ctx context.Context, period int64) ([]model.SettlementEntry, error) {
	const query = `
		SELECT period, player_id, nickname, stake::text, payout::text, profit::text, balance_after::text, detail, settled_at
		FROM settlements
		WHERE period = $1
		ORDER BY player_id
	`

	rows, err := r.pool.Query(ctx, query, period)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlements: %w", err)
	}
	defer rows.Close()

	var entries []model.SettlementEntry
	for rows.Next() {
		var (
			e                            model.SettlementEntry
			stake, payout, profit, after string
		)
		if err := rows.Scan(&e.Period, &e.PlayerID, &e.Nickname, &stake, &payout, &profit, &after, &e.Detail, &e.SettledAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		if e.Stake, err = decimal.NewFromString(stake); err != nil {
			return nil, err
		}
		if e.Payout, err = decimal.NewFromString(payout); err != nil {
			return nil, err
		}
		if e.Profit, err = decimal.NewFromString(profit); err != nil {
			return nil, err
		}
		if e.BalanceAfter, err = decimal.NewFromString(after); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settlements: %w", err)
	}
	return entries, nil
}
