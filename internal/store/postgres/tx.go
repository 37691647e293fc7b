package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"persediaan/backend/internal/apperr"
	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/numbering"
	"persediaan/backend/internal/store"
)

type pgTx struct {
	tx *sql.Tx
}

var _ store.Tx = (*pgTx)(nil)

func (t *pgTx) LockItem(ctx context.Context, itemID string) (domain.Item, error) {
	item, err := scanItem(t.tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, itemID))
	if err != nil {
		return domain.Item{}, notFoundOr(err, "item", itemID)
	}
	return item, nil
}

// LockItems takes row locks in ascending id order so two documents touching
// the same items cannot deadlock.
func (t *pgTx) LockItems(ctx context.Context, ids []string) (map[string]domain.Item, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	items, err := queryItems(ctx, t.tx,
		`SELECT `+itemColumns+` FROM items WHERE id = ANY($1) ORDER BY id FOR UPDATE`, sorted)
	if err != nil {
		return nil, err
	}
	result := make(map[string]domain.Item, len(items))
	for _, item := range items {
		result[item.ID] = item
	}
	for _, id := range sorted {
		if _, ok := result[id]; !ok {
			return nil, apperr.NotFound("item", id)
		}
	}
	return result, nil
}

func (t *pgTx) SetItemStock(ctx context.Context, itemID string, stock int, at time.Time) error {
	ok, err := rowsAffected(t.tx.ExecContext(ctx,
		`UPDATE items SET stock = $2, updated_at = $3 WHERE id = $1`, itemID, stock, at))
	if err != nil {
		return mapWriteError(err)
	}
	if !ok {
		return apperr.NotFound("item", itemID)
	}
	return nil
}

func (t *pgTx) AppendLedger(ctx context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO stock_ledger (
			item_id, at, direction, qty_in, qty_out, resulting_balance,
			source_type, source_ref, correction, note
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`, entry.ItemID, entry.At, entry.Direction, entry.QtyIn, entry.QtyOut, entry.ResultingBalance,
		entry.SourceType, entry.SourceRef, entry.Correction, entry.Note).Scan(&entry.ID)
	if err != nil {
		return domain.LedgerEntry{}, mapWriteError(err)
	}
	return entry, nil
}

func (t *pgTx) InsertItem(ctx context.Context, item domain.Item) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO items (id, code, name, category, unit, stock, min_stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, item.ID, item.Code, item.Name, item.Category, item.Unit, item.Stock, item.MinStock, item.CreatedAt, item.UpdatedAt)
	return mapWriteError(err)
}

// SnapshotItems reads every item under FOR SHARE so stock cannot move while
// an opname session copies its system counts.
func (t *pgTx) SnapshotItems(ctx context.Context) ([]domain.Item, error) {
	return queryItems(ctx, t.tx, `SELECT `+itemColumns+` FROM items ORDER BY code FOR SHARE`)
}

var sequenceSources = map[numbering.Kind]struct{ table, column string }{
	numbering.KindRequest:           {"requests", "number"},
	numbering.KindDistributionOrder: {"distribution_orders", "number"},
	numbering.KindOutbound:          {"outbound_handovers", "number"},
	numbering.KindInbound:           {"inbound_handovers", "reference_number"},
	numbering.KindOpname:            {"stock_opname_sessions", "number"},
}

func (t *pgTx) MaxSequence(ctx context.Context, kind numbering.Kind, prefix string) (int, error) {
	src, ok := sequenceSources[kind]
	if !ok {
		return 0, fmt.Errorf("unknown document kind %q", kind)
	}
	rows, err := t.tx.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s LIKE $1 || '%%'`, src.column, src.table, src.column), prefix)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	highest := 0
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return 0, err
		}
		if seq, ok := numbering.ParseSequence(number, prefix); ok && seq > highest {
			highest = seq
		}
	}
	return highest, rows.Err()
}

func (t *pgTx) InsertRequest(ctx context.Context, req domain.Request) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO requests (id, number, date, requester_id, purpose, status, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, req.ID, req.Number, req.Date, req.RequesterID, req.Purpose, req.Status, req.CreatedBy, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return writeRequestLines(ctx, t.tx, req)
}

func (t *pgTx) GetRequestForUpdate(ctx context.Context, id string) (*domain.Request, error) {
	return loadRequest(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateRequest(ctx context.Context, req domain.Request) error {
	ok, err := rowsAffected(t.tx.ExecContext(ctx, `
		UPDATE requests
		SET date = $2, purpose = $3, status = $4, updated_at = $5
		WHERE id = $1
	`, req.ID, req.Date, req.Purpose, req.Status, req.UpdatedAt))
	if err != nil {
		return mapWriteError(err)
	}
	if !ok {
		return apperr.NotFound("request", req.ID)
	}
	return writeRequestLines(ctx, t.tx, req)
}

func (t *pgTx) DeleteRequest(ctx context.Context, id string) error {
	ok, err := rowsAffected(t.tx.ExecContext(ctx, `DELETE FROM requests WHERE id = $1`, id))
	if err != nil {
		return mapWriteError(err)
	}
	if !ok {
		return apperr.NotFound("request", id)
	}
	return nil
}

func (t *pgTx) InsertDistributionOrder(ctx context.Context, order domain.DistributionOrder) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO distribution_orders (
			id, number, date, request_id, approver_id, recipient_id, performer_id,
			status, note, created_by, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, order.ID, order.Number, order.Date, order.RequestID, order.ApproverID, order.RecipientID,
		nullable(order.PerformerID), order.Status, order.Note, order.CreatedBy, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return writeOrderLines(ctx, t.tx, order)
}

func (t *pgTx) GetDistributionOrderForUpdate(ctx context.Context, id string) (*domain.DistributionOrder, error) {
	return loadOrder(ctx, t.tx, id, true)
}

// FindDistributionOrderByRequest reads without locking the order; locks are
// always taken order before request.
func (t *pgTx) FindDistributionOrderByRequest(ctx context.Context, requestID string) (*domain.DistributionOrder, error) {
	var id string
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM distribution_orders WHERE request_id = $1`, requestID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return loadOrder(ctx, t.tx, id, false)
}

func (t *pgTx) UpdateDistributionOrder(ctx context.Context, order domain.DistributionOrder) error {
	ok, err := rowsAffected(t.tx.ExecContext(ctx, `
		UPDATE distribution_orders
		SET performer_id = $2, status = $3, note = $4, updated_at = $5
		WHERE id = $1
	`, order.ID, nullable(order.PerformerID), order.Status, order.Note, order.UpdatedAt))
	if err != nil {
		return mapWriteError(err)
	}
	if !ok {
		return apperr.NotFound("distribution order", order.ID)
	}
	return nil
}

func (t *pgTx) DeleteDistributionOrder(ctx context.Context, id string) error {
	ok, err := rowsAffected(t.tx.ExecContext(ctx, `DELETE FROM distribution_orders WHERE id = $1`, id))
	if err != nil {
		return mapWriteError(err)
	}
	if !ok {
		return apperr.NotFound("distribution order", id)
	}
	return nil
}

func (t *pgTx) InsertOutboundHandover(ctx context.Context, h domain.OutboundHandover) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbound_handovers (
			id, number, date, order_id, handed_over_by, received_by,
			subtotal, tax_total, grand_total, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, h.ID, h.Number, h.Date, h.OrderID, h.HandedOverBy, h.ReceivedBy,
		h.Subtotal, h.TaxTotal, h.GrandTotal, h.CreatedBy, h.CreatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	for i, line := range h.Lines {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO outbound_handover_lines (
				handover_id, line_no, item_id, qty, unit_price, tax_rate, tax_amount, line_total
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, h.ID, i+1, line.ItemID, line.Qty, line.UnitPrice, line.TaxRate, line.TaxAmount, line.LineTotal); err != nil {
			return mapWriteError(fmt.Errorf("insert outbound line %s: %w", line.ItemID, err))
		}
	}
	return nil
}

func (t *pgTx) GetOutboundHandoverForUpdate(ctx context.Context, id string) (*domain.OutboundHandover, error) {
	return loadOutbound(ctx, t.tx, `WHERE id = $1`, id, true)
}

func (t *pgTx) FindOutboundHandoverByOrder(ctx context.Context, orderID string) (*domain.OutboundHandover, error) {
	h, err := loadOutbound(ctx, t.tx, `WHERE order_id = $1`, orderID, true)
	if apperr.IsCode(err, apperr.CodeNotFound) {
		return nil, nil
	}
	return h, err
}

func (t *pgTx) DeleteOutboundHandover(ctx context.Context, id string) error {
	ok, err := rowsAffected(t.tx.ExecContext(ctx, `DELETE FROM outbound_handovers WHERE id = $1`, id))
	if err != nil {
		return mapWriteError(err)
	}
	if !ok {
		return apperr.NotFound("outbound handover", id)
	}
	return nil
}

func (t *pgTx) InsertInboundHandover(ctx context.Context, h domain.InboundHandover) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inbound_handovers (
			id, reference_number, document_number, invoice_number, document_date, received_date,
			supplier, approver_id, funding_account, note, total, created_by, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, h.ID, h.ReferenceNumber, h.DocumentNumber, h.InvoiceNumber, h.DocumentDate, h.ReceivedDate,
		h.Supplier, h.ApproverID, h.FundingAccount, h.Note, h.Total, h.CreatedBy, h.CreatedAt, h.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return writeInboundLines(ctx, t.tx, h)
}

func (t *pgTx) GetInboundHandoverForUpdate(ctx context.Context, id string) (*domain.InboundHandover, error) {
	return loadInbound(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateInboundHandover(ctx context.Context, h domain.InboundHandover) error {
	ok, err := rowsAffected(t.tx.ExecContext(ctx, `
		UPDATE inbound_handovers
		SET document_number = $2, invoice_number = $3, document_date = $4, received_date = $5,
			supplier = $6, approver_id = $7, funding_account = $8, note = $9, total = $10, updated_at = $11
		WHERE id = $1
	`, h.ID, h.DocumentNumber, h.InvoiceNumber, h.DocumentDate, h.ReceivedDate,
		h.Supplier, h.ApproverID, h.FundingAccount, h.Note, h.Total, h.UpdatedAt))
	if err != nil {
		return mapWriteError(err)
	}
	if !ok {
		return apperr.NotFound("inbound handover", h.ID)
	}
	return writeInboundLines(ctx, t.tx, h)
}

func (t *pgTx) DeleteInboundHandover(ctx context.Context, id string) error {
	ok, err := rowsAffected(t.tx.ExecContext(ctx, `DELETE FROM inbound_handovers WHERE id = $1`, id))
	if err != nil {
		return mapWriteError(err)
	}
	if !ok {
		return apperr.NotFound("inbound handover", id)
	}
	return nil
}

func (t *pgTx) InsertOpnameSession(ctx context.Context, s domain.OpnameSession) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stock_opname_sessions (id, number, date, operator_id, status, note, created_by, created_at, finalized_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, s.ID, s.Number, s.Date, s.OperatorID, s.Status, s.Note, s.CreatedBy, s.CreatedAt, s.FinalizedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return writeOpnameLines(ctx, t.tx, s)
}

func (t *pgTx) GetOpnameSessionForUpdate(ctx context.Context, id string) (*domain.OpnameSession, error) {
	return loadOpname(ctx, t.tx, id, true)
}

// UpdateOpnameSession writes the header and the counted values; the set of
// lines is fixed when the session is created.
func (t *pgTx) UpdateOpnameSession(ctx context.Context, s domain.OpnameSession) error {
	ok, err := rowsAffected(t.tx.ExecContext(ctx, `
		UPDATE stock_opname_sessions
		SET status = $2, note = $3, finalized_at = $4
		WHERE id = $1
	`, s.ID, s.Status, s.Note, s.FinalizedAt))
	if err != nil {
		return mapWriteError(err)
	}
	if !ok {
		return apperr.NotFound("stock opname session", s.ID)
	}
	for _, line := range s.Lines {
		updated, err := rowsAffected(t.tx.ExecContext(ctx, `
			UPDATE stock_opname_lines
			SET physical_count = $3, variance = $4, note = $5
			WHERE session_id = $1 AND item_id = $2
		`, s.ID, line.ItemID, line.PhysicalCount, line.Variance, line.Note))
		if err != nil {
			return mapWriteError(err)
		}
		if !updated {
			return apperr.NotFound("stock opname line", line.ItemID)
		}
	}
	return nil
}
