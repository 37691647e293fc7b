package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"persediaan/backend/internal/apperr"
	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/ledger"
	"persediaan/backend/internal/numbering"
)

// memTx works on a draft state owned by one WithinTx call; the store mutex is
// already held, so no method locks.
type memTx struct {
	st *state
}

func (tx *memTx) postOpening(itemID string, qty int, at time.Time) error {
	_, err := ledger.Apply(context.Background(), tx, ledger.Movement{
		ItemID:    itemID,
		Direction: domain.DirectionIn,
		Qty:       qty,
		Source:    ledger.Source{Type: domain.SourceOpening, Ref: itemID, Note: "saldo awal"},
	}, at)
	return err
}

func (tx *memTx) LockItem(_ context.Context, itemID string) (domain.Item, error) {
	item, ok := tx.st.items[itemID]
	if !ok {
		return domain.Item{}, apperr.NotFound("item", itemID)
	}
	return item, nil
}

func (tx *memTx) LockItems(_ context.Context, ids []string) (map[string]domain.Item, error) {
	result := make(map[string]domain.Item, len(ids))
	for _, id := range ids {
		item, ok := tx.st.items[id]
		if !ok {
			return nil, apperr.NotFound("item", id)
		}
		result[id] = item
	}
	return result, nil
}

func (tx *memTx) SetItemStock(_ context.Context, itemID string, stock int, at time.Time) error {
	item, ok := tx.st.items[itemID]
	if !ok {
		return apperr.NotFound("item", itemID)
	}
	if stock < 0 {
		return fmt.Errorf("stock for item %s would become %d", item.Code, stock)
	}
	item.Stock = stock
	item.UpdatedAt = at
	tx.st.items[itemID] = item
	return nil
}

func (tx *memTx) AppendLedger(_ context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	tx.st.nextLedgerID++
	entry.ID = tx.st.nextLedgerID
	tx.st.ledger = append(tx.st.ledger, entry)
	return entry, nil
}

func (tx *memTx) InsertItem(_ context.Context, item domain.Item) error {
	if _, exists := tx.st.items[item.ID]; exists {
		return apperr.Newf(apperr.CodeDuplicateReference, "item %s already exists", item.ID)
	}
	for _, existing := range tx.st.items {
		if strings.EqualFold(existing.Code, item.Code) {
			return apperr.Newf(apperr.CodeDuplicateReference, "item code %s already exists", item.Code).
				WithDetails(map[string]any{"field": "code", "value": item.Code})
		}
	}
	tx.st.items[item.ID] = item
	return nil
}

func (tx *memTx) SnapshotItems(_ context.Context) ([]domain.Item, error) {
	items := make([]domain.Item, 0, len(tx.st.items))
	for _, item := range tx.st.items {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.Item) int {
		return strings.Compare(a.Code, b.Code)
	})
	return items, nil
}

func (tx *memTx) MaxSequence(_ context.Context, kind numbering.Kind, prefix string) (int, error) {
	var numbers []string
	switch kind {
	case numbering.KindRequest:
		for _, r := range tx.st.requests {
			numbers = append(numbers, r.Number)
		}
	case numbering.KindDistributionOrder:
		for _, o := range tx.st.orders {
			numbers = append(numbers, o.Number)
		}
	case numbering.KindOutbound:
		for _, h := range tx.st.outbound {
			numbers = append(numbers, h.Number)
		}
	case numbering.KindInbound:
		for _, h := range tx.st.inbound {
			numbers = append(numbers, h.ReferenceNumber)
		}
	case numbering.KindOpname:
		for _, s := range tx.st.opname {
			numbers = append(numbers, s.Number)
		}
	default:
		return 0, fmt.Errorf("unknown document kind %q", kind)
	}

	highest := 0
	for _, number := range numbers {
		if seq, ok := numbering.ParseSequence(number, prefix); ok && seq > highest {
			highest = seq
		}
	}
	return highest, nil
}

func numberTaken(kind numbering.Kind, number string) error {
	return fmt.Errorf("%s number %s: %w", kind, number, numbering.ErrConflict)
}

func (tx *memTx) InsertRequest(_ context.Context, req domain.Request) error {
	for _, existing := range tx.st.requests {
		if existing.Number == req.Number {
			return numberTaken(numbering.KindRequest, req.Number)
		}
	}
	tx.st.requests[req.ID] = cloneRequest(req)
	return nil
}

func (tx *memTx) GetRequestForUpdate(_ context.Context, id string) (*domain.Request, error) {
	req, ok := tx.st.requests[id]
	if !ok {
		return nil, apperr.NotFound("request", id)
	}
	cloned := cloneRequest(req)
	return &cloned, nil
}

func (tx *memTx) UpdateRequest(_ context.Context, req domain.Request) error {
	if _, ok := tx.st.requests[req.ID]; !ok {
		return apperr.NotFound("request", req.ID)
	}
	tx.st.requests[req.ID] = cloneRequest(req)
	return nil
}

func (tx *memTx) DeleteRequest(_ context.Context, id string) error {
	if _, ok := tx.st.requests[id]; !ok {
		return apperr.NotFound("request", id)
	}
	delete(tx.st.requests, id)
	return nil
}

func (tx *memTx) InsertDistributionOrder(_ context.Context, order domain.DistributionOrder) error {
	for _, existing := range tx.st.orders {
		if existing.Number == order.Number {
			return numberTaken(numbering.KindDistributionOrder, order.Number)
		}
		if existing.RequestID == order.RequestID {
			return apperr.InvalidState("request %s already has distribution order %s", order.RequestID, existing.Number)
		}
	}
	tx.st.orders[order.ID] = cloneOrder(order)
	return nil
}

func (tx *memTx) GetDistributionOrderForUpdate(_ context.Context, id string) (*domain.DistributionOrder, error) {
	order, ok := tx.st.orders[id]
	if !ok {
		return nil, apperr.NotFound("distribution order", id)
	}
	cloned := cloneOrder(order)
	return &cloned, nil
}

func (tx *memTx) FindDistributionOrderByRequest(_ context.Context, requestID string) (*domain.DistributionOrder, error) {
	for _, order := range tx.st.orders {
		if order.RequestID == requestID {
			cloned := cloneOrder(order)
			return &cloned, nil
		}
	}
	return nil, nil
}

func (tx *memTx) UpdateDistributionOrder(_ context.Context, order domain.DistributionOrder) error {
	if _, ok := tx.st.orders[order.ID]; !ok {
		return apperr.NotFound("distribution order", order.ID)
	}
	tx.st.orders[order.ID] = cloneOrder(order)
	return nil
}

func (tx *memTx) DeleteDistributionOrder(_ context.Context, id string) error {
	if _, ok := tx.st.orders[id]; !ok {
		return apperr.NotFound("distribution order", id)
	}
	delete(tx.st.orders, id)
	return nil
}

func (tx *memTx) InsertOutboundHandover(_ context.Context, handover domain.OutboundHandover) error {
	for _, existing := range tx.st.outbound {
		if existing.Number == handover.Number {
			return numberTaken(numbering.KindOutbound, handover.Number)
		}
		if existing.OrderID == handover.OrderID {
			return apperr.InvalidState("distribution order %s already handed over in %s", handover.OrderID, existing.Number)
		}
	}
	tx.st.outbound[handover.ID] = cloneOutbound(handover)
	return nil
}

func (tx *memTx) GetOutboundHandoverForUpdate(_ context.Context, id string) (*domain.OutboundHandover, error) {
	handover, ok := tx.st.outbound[id]
	if !ok {
		return nil, apperr.NotFound("outbound handover", id)
	}
	cloned := cloneOutbound(handover)
	return &cloned, nil
}

func (tx *memTx) FindOutboundHandoverByOrder(_ context.Context, orderID string) (*domain.OutboundHandover, error) {
	for _, handover := range tx.st.outbound {
		if handover.OrderID == orderID {
			cloned := cloneOutbound(handover)
			return &cloned, nil
		}
	}
	return nil, nil
}

func (tx *memTx) DeleteOutboundHandover(_ context.Context, id string) error {
	if _, ok := tx.st.outbound[id]; !ok {
		return apperr.NotFound("outbound handover", id)
	}
	delete(tx.st.outbound, id)
	return nil
}

func (tx *memTx) checkInboundReferences(handover domain.InboundHandover) error {
	for _, existing := range tx.st.inbound {
		if existing.ID == handover.ID {
			continue
		}
		if existing.ReferenceNumber == handover.ReferenceNumber {
			return numberTaken(numbering.KindInbound, handover.ReferenceNumber)
		}
		if strings.EqualFold(existing.DocumentNumber, handover.DocumentNumber) {
			return duplicateReference("document_number", handover.DocumentNumber)
		}
		if strings.EqualFold(existing.InvoiceNumber, handover.InvoiceNumber) {
			return duplicateReference("invoice_number", handover.InvoiceNumber)
		}
	}
	return nil
}

func duplicateReference(field, value string) error {
	return apperr.Newf(apperr.CodeDuplicateReference, "%s %s is already recorded", field, value).
		WithDetails(map[string]any{"field": field, "value": value})
}

func (tx *memTx) InsertInboundHandover(_ context.Context, handover domain.InboundHandover) error {
	if err := tx.checkInboundReferences(handover); err != nil {
		return err
	}
	tx.st.inbound[handover.ID] = cloneInbound(handover)
	return nil
}

func (tx *memTx) GetInboundHandoverForUpdate(_ context.Context, id string) (*domain.InboundHandover, error) {
	handover, ok := tx.st.inbound[id]
	if !ok {
		return nil, apperr.NotFound("inbound handover", id)
	}
	cloned := cloneInbound(handover)
	return &cloned, nil
}

func (tx *memTx) UpdateInboundHandover(_ context.Context, handover domain.InboundHandover) error {
	if _, ok := tx.st.inbound[handover.ID]; !ok {
		return apperr.NotFound("inbound handover", handover.ID)
	}
	if err := tx.checkInboundReferences(handover); err != nil {
		return err
	}
	tx.st.inbound[handover.ID] = cloneInbound(handover)
	return nil
}

func (tx *memTx) DeleteInboundHandover(_ context.Context, id string) error {
	if _, ok := tx.st.inbound[id]; !ok {
		return apperr.NotFound("inbound handover", id)
	}
	delete(tx.st.inbound, id)
	return nil
}

func (tx *memTx) InsertOpnameSession(_ context.Context, session domain.OpnameSession) error {
	for _, existing := range tx.st.opname {
		if existing.Number == session.Number {
			return numberTaken(numbering.KindOpname, session.Number)
		}
	}
	tx.st.opname[session.ID] = cloneOpname(session)
	return nil
}

func (tx *memTx) GetOpnameSessionForUpdate(_ context.Context, id string) (*domain.OpnameSession, error) {
	session, ok := tx.st.opname[id]
	if !ok {
		return nil, apperr.NotFound("stock opname session", id)
	}
	cloned := cloneOpname(session)
	return &cloned, nil
}

func (tx *memTx) UpdateOpnameSession(_ context.Context, session domain.OpnameSession) error {
	if _, ok := tx.st.opname[session.ID]; !ok {
		return apperr.NotFound("stock opname session", session.ID)
	}
	tx.st.opname[session.ID] = cloneOpname(session)
	return nil
}
