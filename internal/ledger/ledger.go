package ledger

import (
	"context"
	"fmt"
	"time"

	"persediaan/backend/internal/apperr"
	"persediaan/backend/internal/domain"
)

// Writer is the slice of a store transaction the ledger needs. LockItem must
// hold the item row until the surrounding transaction ends.
type Writer interface {
	LockItem(ctx context.Context, itemID string) (domain.Item, error)
	SetItemStock(ctx context.Context, itemID string, stock int, at time.Time) error
	AppendLedger(ctx context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, error)
}

type Source struct {
	Type       domain.SourceType
	Ref        string
	Correction bool
	Note       string
}

// Movement quantities are positive for IN and OUT. For ADJUST, Qty is the
// signed delta.
type Movement struct {
	ItemID    string
	Direction domain.Direction
	Qty       int
	Source    Source
}

// Apply is the only writer of Item.Stock. It must run inside the caller's
// transaction.
func Apply(ctx context.Context, w Writer, m Movement, at time.Time) (domain.LedgerEntry, error) {
	if m.ItemID == "" {
		return domain.LedgerEntry{}, apperr.Validation("movement item id is required")
	}

	var qtyIn, qtyOut int
	switch m.Direction {
	case domain.DirectionIn:
		if m.Qty < 1 {
			return domain.LedgerEntry{}, apperr.Validation("IN quantity must be at least 1, got %d", m.Qty)
		}
		qtyIn = m.Qty
	case domain.DirectionOut:
		if m.Qty < 1 {
			return domain.LedgerEntry{}, apperr.Validation("OUT quantity must be at least 1, got %d", m.Qty)
		}
		qtyOut = m.Qty
	case domain.DirectionAdjust:
		if m.Qty == 0 {
			return domain.LedgerEntry{}, apperr.Validation("ADJUST delta must not be zero")
		}
		if m.Qty > 0 {
			qtyIn = m.Qty
		} else {
			qtyOut = -m.Qty
		}
	default:
		return domain.LedgerEntry{}, apperr.Validation("unknown movement direction %q", m.Direction)
	}

	item, err := w.LockItem(ctx, m.ItemID)
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	balance := item.Stock + qtyIn - qtyOut
	if balance < 0 {
		return domain.LedgerEntry{}, apperr.Newf(apperr.CodeInsufficientStock,
			"insufficient stock for item %s: available %d, required %d", item.Code, item.Stock, qtyOut).
			WithDetails(map[string]any{
				"item_id":   item.ID,
				"item_code": item.Code,
				"available": item.Stock,
				"required":  qtyOut,
				"source":    m.Source.Ref,
			})
	}

	if err := w.SetItemStock(ctx, item.ID, balance, at); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("update stock for item %s: %w", item.Code, err)
	}

	entry, err := w.AppendLedger(ctx, domain.LedgerEntry{
		ItemID:           item.ID,
		At:               at,
		Direction:        m.Direction,
		QtyIn:            qtyIn,
		QtyOut:           qtyOut,
		ResultingBalance: balance,
		SourceType:       m.Source.Type,
		SourceRef:        m.Source.Ref,
		Correction:       m.Source.Correction,
		Note:             m.Source.Note,
	})
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("append ledger for item %s: %w", item.Code, err)
	}
	return entry, nil
}

// AdjustTo forces the balance to target with one ADJUST entry. It reports
// false and writes nothing when the balance already equals target.
func AdjustTo(ctx context.Context, w Writer, itemID string, target int, src Source, at time.Time) (domain.LedgerEntry, bool, error) {
	if target < 0 {
		return domain.LedgerEntry{}, false, apperr.Validation("adjustment target must not be negative, got %d", target)
	}
	item, err := w.LockItem(ctx, itemID)
	if err != nil {
		return domain.LedgerEntry{}, false, err
	}
	delta := target - item.Stock
	if delta == 0 {
		return domain.LedgerEntry{}, false, nil
	}
	entry, err := Apply(ctx, w, Movement{
		ItemID:    itemID,
		Direction: domain.DirectionAdjust,
		Qty:       delta,
		Source:    src,
	}, at)
	if err != nil {
		return domain.LedgerEntry{}, false, err
	}
	return entry, true, nil
}

// Reverse returns the movement that undoes m as a correction.
func Reverse(m Movement) Movement {
	reversed := m
	reversed.Source.Correction = true
	switch m.Direction {
	case domain.DirectionIn:
		reversed.Direction = domain.DirectionOut
	case domain.DirectionOut:
		reversed.Direction = domain.DirectionIn
	case domain.DirectionAdjust:
		reversed.Qty = -m.Qty
	}
	return reversed
}

// Replay sums one item's entries (ordered by id) from a zero balance. It also
// checks every link of the chain and returns the id of the first entry whose
// ResultingBalance does not follow from its predecessor, or 0.
func Replay(entries []domain.LedgerEntry) (balance int, brokenAt int64) {
	previous := 0
	for _, entry := range entries {
		balance += entry.QtyIn - entry.QtyOut
		if brokenAt == 0 && previous+entry.QtyIn-entry.QtyOut != entry.ResultingBalance {
			brokenAt = entry.ID
		}
		previous = entry.ResultingBalance
	}
	return balance, brokenAt
}
