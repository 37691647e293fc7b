package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"persediaan/backend/internal/domain"
)

// Document headers and their lines. Lines are always rewritten as a whole,
// ordered by line_no, inside the caller's transaction.

func lockClause(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func rowsAffected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Requests (SPB).

const requestColumns = `id, number, date, requester_id, purpose, status, created_by, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (domain.Request, error) {
	var r domain.Request
	err := row.Scan(&r.ID, &r.Number, &r.Date, &r.RequesterID, &r.Purpose, &r.Status,
		&r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	r.Date = r.Date.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, err
}

func requestLines(ctx context.Context, q queryer, ids []string) (map[string][]domain.RequestLine, error) {
	result := make(map[string][]domain.RequestLine, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT request_id, item_id, qty, note
		FROM request_lines
		WHERE request_id = ANY($1)
		ORDER BY request_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var requestID string
		var line domain.RequestLine
		if err := rows.Scan(&requestID, &line.ItemID, &line.Qty, &line.Note); err != nil {
			return nil, err
		}
		result[requestID] = append(result[requestID], line)
	}
	return result, rows.Err()
}

func loadRequest(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.Request, error) {
	r, err := scanRequest(q.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = $1`+lockClause(forUpdate), id))
	if err != nil {
		return nil, notFoundOr(err, "request", id)
	}
	lines, err := requestLines(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	r.Lines = lines[id]
	return &r, nil
}

func queryRequests(ctx context.Context, q queryer, query string, args ...any) ([]domain.Request, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	requests := make([]domain.Request, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		requests = append(requests, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	lines, err := requestLines(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range requests {
		requests[i].Lines = lines[requests[i].ID]
	}
	return requests, nil
}

func writeRequestLines(ctx context.Context, q queryer, req domain.Request) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM request_lines WHERE request_id = $1`, req.ID); err != nil {
		return err
	}
	for i, line := range req.Lines {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO request_lines (request_id, line_no, item_id, qty, note)
			VALUES ($1,$2,$3,$4,$5)
		`, req.ID, i+1, line.ItemID, line.Qty, line.Note); err != nil {
			return mapWriteError(fmt.Errorf("insert request line %s: %w", line.ItemID, err))
		}
	}
	return nil
}

// Distribution orders (SPPB).

const orderColumns = `id, number, date, request_id, approver_id, recipient_id, COALESCE(performer_id, ''), status, note, created_by, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (domain.DistributionOrder, error) {
	var o domain.DistributionOrder
	err := row.Scan(&o.ID, &o.Number, &o.Date, &o.RequestID, &o.ApproverID, &o.RecipientID,
		&o.PerformerID, &o.Status, &o.Note, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	o.Date = o.Date.UTC()
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, err
}

func orderLines(ctx context.Context, q queryer, ids []string) (map[string][]domain.DistributionOrderLine, error) {
	result := make(map[string][]domain.DistributionOrderLine, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT order_id, item_id, requested_qty, approved_qty
		FROM distribution_order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var line domain.DistributionOrderLine
		if err := rows.Scan(&orderID, &line.ItemID, &line.RequestedQty, &line.ApprovedQty); err != nil {
			return nil, err
		}
		result[orderID] = append(result[orderID], line)
	}
	return result, rows.Err()
}

func loadOrder(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.DistributionOrder, error) {
	o, err := scanOrder(q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM distribution_orders WHERE id = $1`+lockClause(forUpdate), id))
	if err != nil {
		return nil, notFoundOr(err, "distribution order", id)
	}
	lines, err := orderLines(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	o.Lines = lines[id]
	return &o, nil
}

func queryOrders(ctx context.Context, q queryer, query string, args ...any) ([]domain.DistributionOrder, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.DistributionOrder, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	lines, err := orderLines(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

func writeOrderLines(ctx context.Context, q queryer, order domain.DistributionOrder) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM distribution_order_lines WHERE order_id = $1`, order.ID); err != nil {
		return err
	}
	for i, line := range order.Lines {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO distribution_order_lines (order_id, line_no, item_id, requested_qty, approved_qty)
			VALUES ($1,$2,$3,$4,$5)
		`, order.ID, i+1, line.ItemID, line.RequestedQty, line.ApprovedQty); err != nil {
			return mapWriteError(fmt.Errorf("insert distribution order line %s: %w", line.ItemID, err))
		}
	}
	return nil
}

// Outbound handovers (BAST Keluar).

const outboundColumns = `id, number, date, order_id, handed_over_by, received_by, subtotal, tax_total, grand_total, created_by, created_at`

func scanOutbound(row interface{ Scan(...any) error }) (domain.OutboundHandover, error) {
	var h domain.OutboundHandover
	err := row.Scan(&h.ID, &h.Number, &h.Date, &h.OrderID, &h.HandedOverBy, &h.ReceivedBy,
		&h.Subtotal, &h.TaxTotal, &h.GrandTotal, &h.CreatedBy, &h.CreatedAt)
	h.Date = h.Date.UTC()
	h.CreatedAt = h.CreatedAt.UTC()
	return h, err
}

func outboundLines(ctx context.Context, q queryer, ids []string) (map[string][]domain.OutboundHandoverLine, error) {
	result := make(map[string][]domain.OutboundHandoverLine, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT handover_id, item_id, qty, unit_price, tax_rate, tax_amount, line_total
		FROM outbound_handover_lines
		WHERE handover_id = ANY($1)
		ORDER BY handover_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var handoverID string
		var line domain.OutboundHandoverLine
		if err := rows.Scan(&handoverID, &line.ItemID, &line.Qty, &line.UnitPrice,
			&line.TaxRate, &line.TaxAmount, &line.LineTotal); err != nil {
			return nil, err
		}
		result[handoverID] = append(result[handoverID], line)
	}
	return result, rows.Err()
}

// loadOutbound returns the single handover matching where; sql.ErrNoRows
// becomes NOT_FOUND.
func loadOutbound(ctx context.Context, q queryer, where string, arg string, forUpdate bool) (*domain.OutboundHandover, error) {
	h, err := scanOutbound(q.QueryRowContext(ctx,
		`SELECT `+outboundColumns+` FROM outbound_handovers `+where+lockClause(forUpdate), arg))
	if err != nil {
		return nil, notFoundOr(err, "outbound handover", arg)
	}
	lines, err := outboundLines(ctx, q, []string{h.ID})
	if err != nil {
		return nil, err
	}
	h.Lines = lines[h.ID]
	return &h, nil
}

func queryOutbound(ctx context.Context, q queryer, query string, args ...any) ([]domain.OutboundHandover, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	handovers := make([]domain.OutboundHandover, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		h, err := scanOutbound(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		handovers = append(handovers, h)
		ids = append(ids, h.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	lines, err := outboundLines(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range handovers {
		handovers[i].Lines = lines[handovers[i].ID]
	}
	return handovers, nil
}

// Inbound handovers (BAST Masuk).

const inboundColumns = `id, reference_number, document_number, invoice_number, document_date, received_date, supplier, approver_id, funding_account, note, total, created_by, created_at, updated_at`

func scanInbound(row interface{ Scan(...any) error }) (domain.InboundHandover, error) {
	var h domain.InboundHandover
	err := row.Scan(&h.ID, &h.ReferenceNumber, &h.DocumentNumber, &h.InvoiceNumber,
		&h.DocumentDate, &h.ReceivedDate, &h.Supplier, &h.ApproverID, &h.FundingAccount,
		&h.Note, &h.Total, &h.CreatedBy, &h.CreatedAt, &h.UpdatedAt)
	h.DocumentDate = h.DocumentDate.UTC()
	h.ReceivedDate = h.ReceivedDate.UTC()
	h.CreatedAt = h.CreatedAt.UTC()
	h.UpdatedAt = h.UpdatedAt.UTC()
	return h, err
}

func inboundLines(ctx context.Context, q queryer, ids []string) (map[string][]domain.InboundHandoverLine, error) {
	result := make(map[string][]domain.InboundHandoverLine, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT handover_id, item_id, package_qty, package_unit, conversion_factor, base_qty, unit_price, line_total
		FROM inbound_handover_lines
		WHERE handover_id = ANY($1)
		ORDER BY handover_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var handoverID string
		var line domain.InboundHandoverLine
		if err := rows.Scan(&handoverID, &line.ItemID, &line.PackageQty, &line.PackageUnit,
			&line.ConversionFactor, &line.BaseQty, &line.UnitPrice, &line.LineTotal); err != nil {
			return nil, err
		}
		result[handoverID] = append(result[handoverID], line)
	}
	return result, rows.Err()
}

func loadInbound(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.InboundHandover, error) {
	h, err := scanInbound(q.QueryRowContext(ctx,
		`SELECT `+inboundColumns+` FROM inbound_handovers WHERE id = $1`+lockClause(forUpdate), id))
	if err != nil {
		return nil, notFoundOr(err, "inbound handover", id)
	}
	lines, err := inboundLines(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	h.Lines = lines[id]
	return &h, nil
}

func queryInbound(ctx context.Context, q queryer, query string, args ...any) ([]domain.InboundHandover, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	handovers := make([]domain.InboundHandover, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		h, err := scanInbound(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		handovers = append(handovers, h)
		ids = append(ids, h.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	lines, err := inboundLines(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range handovers {
		handovers[i].Lines = lines[handovers[i].ID]
	}
	return handovers, nil
}

func writeInboundLines(ctx context.Context, q queryer, h domain.InboundHandover) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM inbound_handover_lines WHERE handover_id = $1`, h.ID); err != nil {
		return err
	}
	for i, line := range h.Lines {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO inbound_handover_lines (
				handover_id, line_no, item_id, package_qty, package_unit,
				conversion_factor, base_qty, unit_price, line_total
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, h.ID, i+1, line.ItemID, line.PackageQty, line.PackageUnit,
			line.ConversionFactor, line.BaseQty, line.UnitPrice, line.LineTotal); err != nil {
			return mapWriteError(fmt.Errorf("insert inbound line %s: %w", line.ItemID, err))
		}
	}
	return nil
}

// Stock opname sessions.

const opnameColumns = `id, number, date, operator_id, status, note, created_by, created_at, finalized_at`

func scanOpname(row interface{ Scan(...any) error }) (domain.OpnameSession, error) {
	var s domain.OpnameSession
	var finalizedAt sql.NullTime
	err := row.Scan(&s.ID, &s.Number, &s.Date, &s.OperatorID, &s.Status, &s.Note,
		&s.CreatedBy, &s.CreatedAt, &finalizedAt)
	s.Date = s.Date.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	if finalizedAt.Valid {
		at := finalizedAt.Time.UTC()
		s.FinalizedAt = &at
	}
	return s, err
}

func opnameLines(ctx context.Context, q queryer, ids []string) (map[string][]domain.OpnameLine, error) {
	result := make(map[string][]domain.OpnameLine, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT l.session_id, l.item_id, l.system_stock, l.physical_count, l.variance, l.note
		FROM stock_opname_lines l
		JOIN items i ON i.id = l.item_id
		WHERE l.session_id = ANY($1)
		ORDER BY l.session_id, i.code
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var sessionID string
		var line domain.OpnameLine
		if err := rows.Scan(&sessionID, &line.ItemID, &line.SystemStock, &line.PhysicalCount,
			&line.Variance, &line.Note); err != nil {
			return nil, err
		}
		result[sessionID] = append(result[sessionID], line)
	}
	return result, rows.Err()
}

func loadOpname(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.OpnameSession, error) {
	s, err := scanOpname(q.QueryRowContext(ctx,
		`SELECT `+opnameColumns+` FROM stock_opname_sessions WHERE id = $1`+lockClause(forUpdate), id))
	if err != nil {
		return nil, notFoundOr(err, "stock opname session", id)
	}
	lines, err := opnameLines(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	s.Lines = lines[id]
	return &s, nil
}

func queryOpname(ctx context.Context, q queryer, query string, args ...any) ([]domain.OpnameSession, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	sessions := make([]domain.OpnameSession, 0, 16)
	ids := make([]string, 0, 16)
	for rows.Next() {
		s, err := scanOpname(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		sessions = append(sessions, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	lines, err := opnameLines(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].Lines = lines[sessions[i].ID]
	}
	return sessions, nil
}

func writeOpnameLines(ctx context.Context, q queryer, session domain.OpnameSession) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM stock_opname_lines WHERE session_id = $1`, session.ID); err != nil {
		return err
	}
	for _, line := range session.Lines {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO stock_opname_lines (session_id, item_id, system_stock, physical_count, variance, note)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, session.ID, line.ItemID, line.SystemStock, line.PhysicalCount, line.Variance, line.Note); err != nil {
			return mapWriteError(fmt.Errorf("insert opname line %s: %w", line.ItemID, err))
		}
	}
	return nil
}
