// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package budget

import (
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-pilot/pkg/types"
)

func openTestDB(t *testing.T, dir string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(dir, "budget.db")+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testGuard(t *testing.T, db *sql.DB, ceiling, fraction float64, alert AlertFunc) *Guard {
	t.Helper()
	g, err := NewGuard(db, types.BudgetConfig{
		MonthlyCeilingUSD: ceiling,
		AlertFraction:     fraction,
	}, alert)
	require.NoError(t, err)
	g.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return g
}

func TestReserveUpToCeiling(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	g := testGuard(t, db, 50, 0.8, nil)

	// Reservations summing to exactly the ceiling all succeed.
	for i := 0; i < 5; i++ {
		require.NoError(t, g.Reserve(10))
	}

	// Any further positive amount is refused.
	err := g.Reserve(0.01)
	assert.ErrorIs(t, err, ErrBudgetExceeded)

	st, err := g.Status()
	require.NoError(t, err)
	assert.InDelta(t, 50, st.SpentUSD, 1e-9)
	assert.InDelta(t, 0, st.RemainingUSD, 1e-9)
}

func TestConcurrentReservationsSerialize(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	g := testGuard(t, db, 50, 0.8, nil)

	// Ten reservations racing for exactly the ceiling: the immediate
	// write lock makes them queue instead of failing on a stale read.
	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = g.Reserve(5)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "reservation %d", i)
	}

	st, err := g.Status()
	require.NoError(t, err)
	assert.InDelta(t, 50, st.SpentUSD, 1e-9)
	assert.ErrorIs(t, g.Reserve(0.01), ErrBudgetExceeded)
}

func TestAlertFiresExactlyOnce(t *testing.T) {
	db := openTestDB(t, t.TempDir())

	var alerts []float64
	g := testGuard(t, db, 50, 0.8, func(spent, ceiling float64) {
		alerts = append(alerts, spent)
	})

	require.NoError(t, g.Reserve(30))
	assert.Empty(t, alerts)

	// Crossing $40 fires the alert once.
	require.NoError(t, g.Reserve(10))
	require.Len(t, alerts, 1)
	assert.InDelta(t, 40, alerts[0], 1e-9)

	// Further spend does not re-fire.
	require.NoError(t, g.Reserve(5))
	assert.Len(t, alerts, 1)
}

func TestAlertStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)

	var count int
	alert := func(spent, ceiling float64) { count++ }

	g := testGuard(t, db, 50, 0.8, alert)
	require.NoError(t, g.Reserve(45))
	assert.Equal(t, 1, count)

	// A relaunched guard over the same ledger must not alert again.
	g2 := testGuard(t, db, 50, 0.8, alert)
	require.NoError(t, g2.Reserve(2))
	assert.Equal(t, 1, count)

	st, err := g2.Status()
	require.NoError(t, err)
	assert.InDelta(t, 47, st.SpentUSD, 1e-9)
	assert.True(t, st.Alerted)
}

func TestCounterPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	db := openTestDB(t, dir)
	g := testGuard(t, db, 50, 0.8, nil)
	require.NoError(t, g.Reserve(48))
	require.NoError(t, db.Close())

	db2 := openTestDB(t, dir)
	g2 := testGuard(t, db2, 50, 0.8, nil)

	err := g2.Reserve(5)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	require.NoError(t, g2.Reserve(2))
}

func TestSettleReconciles(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	g := testGuard(t, db, 50, 0.8, nil)

	// Reserve an estimate, settle to the smaller actual.
	require.NoError(t, g.Reserve(10))
	require.NoError(t, g.Settle(10, 6.5))

	st, err := g.Status()
	require.NoError(t, err)
	assert.InDelta(t, 6.5, st.SpentUSD, 1e-9)

	// Settling above the reservation records the overrun without blocking.
	require.NoError(t, g.Reserve(40))
	require.NoError(t, g.Settle(40, 45))

	st, err = g.Status()
	require.NoError(t, err)
	assert.InDelta(t, 51.5, st.SpentUSD, 1e-9)

	// The next reservation refuses.
	assert.ErrorIs(t, g.Reserve(0.5), ErrBudgetExceeded)
}

func TestRejectsNegativeReservation(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	g := testGuard(t, db, 50, 0.8, nil)
	assert.Error(t, g.Reserve(-1))
}

func TestMonthRollover(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	g := testGuard(t, db, 50, 0.8, nil)

	require.NoError(t, g.Reserve(50))
	assert.ErrorIs(t, g.Reserve(1), ErrBudgetExceeded)

	// A new month starts a fresh counter.
	g.now = func() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, g.Reserve(1))

	st, err := g.Status()
	require.NoError(t, err)
	assert.Equal(t, "2026-04", st.Month)
	assert.InDelta(t, 1, st.SpentUSD, 1e-9)
}
