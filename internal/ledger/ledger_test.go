package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persediaan/backend/internal/apperr"
	"persediaan/backend/internal/domain"
)

type fakeWriter struct {
	items   map[string]domain.Item
	entries []domain.LedgerEntry
	locks   int
}

func newFakeWriter(stock map[string]int) *fakeWriter {
	w := &fakeWriter{items: make(map[string]domain.Item)}
	for id, qty := range stock {
		w.items[id] = domain.Item{ID: id, Code: "KODE-" + id, Stock: qty}
	}
	return w
}

func (w *fakeWriter) LockItem(_ context.Context, itemID string) (domain.Item, error) {
	item, ok := w.items[itemID]
	if !ok {
		return domain.Item{}, apperr.NotFound("item", itemID)
	}
	w.locks++
	return item, nil
}

func (w *fakeWriter) SetItemStock(_ context.Context, itemID string, stock int, _ time.Time) error {
	item := w.items[itemID]
	item.Stock = stock
	w.items[itemID] = item
	return nil
}

func (w *fakeWriter) AppendLedger(_ context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	entry.ID = int64(len(w.entries) + 1)
	w.entries = append(w.entries, entry)
	return entry, nil
}

func TestApplyInAndOut(t *testing.T) {
	ctx := context.Background()
	w := newFakeWriter(map[string]int{"a": 0})
	at := time.Now().UTC()
	src := Source{Type: domain.SourceInbound, Ref: "BAST-M/2026/10/0001"}

	entry, err := Apply(ctx, w, Movement{ItemID: "a", Direction: domain.DirectionIn, Qty: 12, Source: src}, at)
	require.NoError(t, err)
	assert.Equal(t, 12, entry.QtyIn)
	assert.Equal(t, 12, entry.ResultingBalance)

	entry, err = Apply(ctx, w, Movement{ItemID: "a", Direction: domain.DirectionOut, Qty: 5, Source: src}, at)
	require.NoError(t, err)
	assert.Equal(t, 5, entry.QtyOut)
	assert.Equal(t, 7, entry.ResultingBalance)
	assert.Equal(t, 7, w.items["a"].Stock)
}

func TestApplyRejectsNegativeBalance(t *testing.T) {
	ctx := context.Background()
	w := newFakeWriter(map[string]int{"a": 3})

	_, err := Apply(ctx, w, Movement{ItemID: "a", Direction: domain.DirectionOut, Qty: 4}, time.Now())
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInsufficientStock))
	assert.Equal(t, 3, w.items["a"].Stock)
	assert.Empty(t, w.entries)
}

func TestApplyValidatesQuantity(t *testing.T) {
	ctx := context.Background()
	w := newFakeWriter(map[string]int{"a": 3})

	cases := []Movement{
		{ItemID: "a", Direction: domain.DirectionIn, Qty: 0},
		{ItemID: "a", Direction: domain.DirectionOut, Qty: -1},
		{ItemID: "a", Direction: domain.DirectionAdjust, Qty: 0},
		{ItemID: "a", Direction: "SIDEWAYS", Qty: 1},
		{Direction: domain.DirectionIn, Qty: 1},
	}
	for _, m := range cases {
		_, err := Apply(ctx, w, m, time.Now())
		assert.True(t, apperr.IsCode(err, apperr.CodeValidation), "movement %+v", m)
	}
	assert.Zero(t, w.locks)
}

func TestAdjustToForcesTargetBalance(t *testing.T) {
	ctx := context.Background()
	w := newFakeWriter(map[string]int{"a": 10, "b": 5})
	src := Source{Type: domain.SourceOpname, Ref: "SO/2026/10/0001"}

	entry, applied, err := AdjustTo(ctx, w, "a", 7, src, time.Now())
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, domain.DirectionAdjust, entry.Direction)
	assert.Equal(t, 3, entry.QtyOut)
	assert.Equal(t, 7, entry.ResultingBalance)

	_, applied, err = AdjustTo(ctx, w, "b", 5, src, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Len(t, w.entries, 1)
}

func TestReverseFlipsDirection(t *testing.T) {
	in := Movement{ItemID: "a", Direction: domain.DirectionIn, Qty: 4}
	out := Reverse(in)
	assert.Equal(t, domain.DirectionOut, out.Direction)
	assert.Equal(t, 4, out.Qty)
	assert.True(t, out.Source.Correction)

	adj := Reverse(Movement{ItemID: "a", Direction: domain.DirectionAdjust, Qty: -2})
	assert.Equal(t, 2, adj.Qty)
}

func TestReplayDetectsBrokenChain(t *testing.T) {
	entries := []domain.LedgerEntry{
		{ID: 1, QtyIn: 10, ResultingBalance: 10},
		{ID: 2, QtyOut: 4, ResultingBalance: 6},
		{ID: 3, QtyIn: 1, ResultingBalance: 9},
	}

	balance, brokenAt := Replay(entries[:2])
	assert.Equal(t, 6, balance)
	assert.Zero(t, brokenAt)

	_, brokenAt = Replay(entries)
	assert.Equal(t, int64(3), brokenAt)
}
