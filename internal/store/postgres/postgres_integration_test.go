package postgres

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persediaan/backend/internal/apperr"
	"persediaan/backend/internal/config"
	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/ledger"
	"persediaan/backend/internal/migrate"
	"persediaan/backend/internal/numbering"
	"persediaan/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("PERSEDIAAN_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PERSEDIAAN_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, config.DBConfig{
		URL:             databaseURL,
		MaxOpenConns:    20,
		MaxIdleConns:    4,
		ConnMaxLifetime: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, migrate.Run(ctx, s.DB(), "up"))
	return s
}

func seedItem(t *testing.T, s *Store, stamp int64) string {
	t.Helper()
	ctx := context.Background()
	itemID := fmt.Sprintf("brg-it-%d", stamp)
	now := time.Now().UTC()

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertItem(ctx, domain.Item{
			ID: itemID, Code: fmt.Sprintf("IT-%d", stamp), Name: "Barang Uji", Category: "Uji", Unit: "buah",
			CreatedAt: now, UpdatedAt: now,
		})
	}))
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_ledger WHERE item_id = $1`, itemID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, itemID)
	})
	return itemID
}

func TestConcurrentInboundMovementsSerializeOnItemRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	itemID := seedItem(t, s, time.Now().UnixNano())

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
				_, err := ledger.Apply(ctx, tx, ledger.Movement{
					ItemID:    itemID,
					Direction: domain.DirectionIn,
					Qty:       5,
					Source:    ledger.Source{Type: domain.SourceInbound, Ref: "it"},
				}, time.Now().UTC())
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	item, err := s.GetItem(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 10, item.Stock)

	entries, err := s.ListLedger(ctx, itemID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	balances := []int{entries[0].ResultingBalance, entries[1].ResultingBalance}
	sort.Ints(balances)
	assert.Equal(t, []int{5, 10}, balances)
}

func TestOutboundBeyondStockIsRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	itemID := seedItem(t, s, time.Now().UnixNano())

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := ledger.Apply(ctx, tx, ledger.Movement{
			ItemID: itemID, Direction: domain.DirectionOut, Qty: 1,
			Source: ledger.Source{Type: domain.SourceOutbound, Ref: "it"},
		}, time.Now().UTC())
		return err
	})
	assert.True(t, apperr.IsCode(err, apperr.CodeInsufficientStock))
}

func TestConcurrentNumberAllocationYieldsDistinctNumbers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()

	employeeID := fmt.Sprintf("pgw-it-%d", stamp)
	_, err := s.db.ExecContext(ctx, `INSERT INTO employees (id, nip, name) VALUES ($1, $1, 'Pegawai Uji')`, employeeID)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM requests WHERE requester_id = $1`, employeeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM employees WHERE id = $1`, employeeID)
	})

	// A far-future period keeps this test away from real documents.
	at := time.Date(2099, time.January, 1, 0, 0, 0, 0, time.UTC)
	_, _ = s.db.ExecContext(ctx, `DELETE FROM requests WHERE number LIKE 'SPB/2099/01/%'`)

	const workers = 8
	policy := numbering.Policy{MaxAttempts: workers + 2}
	numbers := make(chan string, workers)
	errs := make(chan error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var allocated string
			err := policy.Run(ctx, numbering.KindRequest, func(ctx context.Context, _ int) error {
				return s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
					number, err := numbering.Next(ctx, tx, numbering.KindRequest, at)
					if err != nil {
						return err
					}
					if err := tx.InsertRequest(ctx, domain.Request{
						ID: fmt.Sprintf("spb-it-%d-%d", stamp, i), Number: number, Date: at,
						RequesterID: employeeID, Status: domain.RequestAwaitingOrder, CreatedBy: "it",
						CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
					}); err != nil {
						return err
					}
					allocated = number
					return nil
				})
			})
			if err == nil {
				numbers <- allocated
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	close(numbers)

	for err := range errs {
		require.NoError(t, err)
	}
	seen := map[string]bool{}
	for number := range numbers {
		assert.False(t, seen[number], "duplicate number %s", number)
		seen[number] = true
	}
	assert.Len(t, seen, workers)
}
