// Tests use testcontainers-go to spin up a PostgreSQL container and are
// skipped when Docker is unavailable.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"lottery-group-bot/internal/model"
)

func checkDockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, pool))

	t.Cleanup(func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	})
	return pool
}

func entry(playerID string, delta, before int64) model.LedgerEntry {
	d := decimal.NewFromInt(delta)
	b := decimal.NewFromInt(before)
	return model.LedgerEntry{
		ID:            uuid.NewString(),
		PlayerID:      playerID,
		AmountDelta:   d,
		Kind:          model.EntryDeposit,
		BalanceBefore: b,
		BalanceAfter:  b.Add(d),
		Timestamp:     time.Now(),
		Note:          model.NoteUpScore,
	}
}

func TestJournalRepository_EntriesAndBalances(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewJournalRepository(pool)
	ctx := context.Background()

	entries := []model.LedgerEntry{
		entry("p1", 500, 0),
		entry("p1", -200, 500),
		entry("p2", 1000, 0),
	}
	require.NoError(t, repo.InsertEntries(ctx, entries))

	// Stored balances follow the last entry per player.
	balances, err := repo.LoadBalances(ctx)
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "p1", balances[0].PlayerID)
	assert.True(t, balances[0].Balance.Equal(decimal.NewFromInt(300)))
	assert.True(t, balances[1].Balance.Equal(decimal.NewFromInt(1000)))

	// Journal reads back newest first.
	got, err := repo.EntriesForPlayer(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, e := range got {
		assert.Equal(t, "p1", e.PlayerID)
		assert.True(t, e.BalanceAfter.Equal(e.BalanceBefore.Add(e.AmountDelta)))
	}
}

func TestJournalRepository_InsertEntriesIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewJournalRepository(pool)
	ctx := context.Background()

	e := entry("p1", 500, 0)
	require.NoError(t, repo.InsertEntries(ctx, []model.LedgerEntry{e}))
	require.NoError(t, repo.InsertEntries(ctx, []model.LedgerEntry{e}))

	got, err := repo.EntriesForPlayer(ctx, "p1", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestJournalRepository_Settlements(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewJournalRepository(pool)
	ctx := context.Background()

	now := time.Now()
	settlements := []model.SettlementEntry{
		{
			Period: 3382900, PlayerID: "p1", Nickname: "老王",
			Stake:  decimal.NewFromInt(200), Payout: decimal.RequireFromString("360"),
			Profit: decimal.NewFromInt(160), BalanceAfter: decimal.NewFromInt(660),
			Detail: "大200中360", SettledAt: now,
		},
		{
			Period: 3382900, PlayerID: "p2", Nickname: "小李",
			Stake:  decimal.NewFromInt(100), Payout: decimal.Zero,
			Profit: decimal.NewFromInt(-100), BalanceAfter: decimal.NewFromInt(900),
			SettledAt: now,
		},
	}
	require.NoError(t, repo.InsertSettlements(ctx, settlements))
	// Replays of the same period change nothing.
	require.NoError(t, repo.InsertSettlements(ctx, settlements))

	got, err := repo.SettlementsForPeriod(ctx, 3382900)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Payout.Equal(decimal.NewFromInt(360)))
	assert.Equal(t, "大200中360", got[0].Detail)

	periods, players, staked, payout, err := repo.DailyTotals(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, periods)
	assert.Equal(t, 2, players)
	assert.True(t, staked.Equal(decimal.NewFromInt(300)))
	assert.True(t, payout.Equal(decimal.NewFromInt(360)))
}

func TestWriter_FlushesBuffered(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewJournalRepository(pool)
	ctx := context.Background()

	w := NewWriter(repo, 50*time.Millisecond, zerolog.Nop())
	w.Append(entry("p1", 500, 0))
	w.SaveSettlement(model.SettlementEntry{
		Period: 100, PlayerID: "p1",
		Stake: decimal.NewFromInt(100), Payout: decimal.Zero,
		Profit: decimal.NewFromInt(-100), BalanceAfter: decimal.NewFromInt(400),
		SettledAt: time.Now(),
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() { w.Run(runCtx); close(done) }()

	require.Eventually(t, func() bool {
		e, s := w.Pending()
		return e == 0 && s == 0
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	<-done

	got, err := repo.EntriesForPlayer(ctx, "p1", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	settled, err := repo.SettlementsForPeriod(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, settled, 1)
}

func TestWriter_FinalFlushOnShutdown(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewJournalRepository(pool)
	ctx := context.Background()

	w := NewWriter(repo, time.Hour, zerolog.Nop())
	w.Append(entry("p1", 500, 0))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() { w.Run(runCtx); close(done) }()
	cancel()
	<-done

	got, err := repo.EntriesForPlayer(ctx, "p1", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
