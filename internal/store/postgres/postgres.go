package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"persediaan/backend/internal/apperr"
	"persediaan/backend/internal/config"
	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/numbering"
	"persediaan/backend/internal/store"
	"persediaan/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx so read helpers serve the
// repository and the transaction alike.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, cfg config.DBConfig) (*Store, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool for migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithinTx runs fn under READ COMMITTED. Stock rows are serialized with
// SELECT ... FOR UPDATE and document numbers by their unique constraints, so
// a stronger isolation level would only add serialization failures.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &pgTx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return mapWriteError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

var numberConstraints = map[string]numbering.Kind{
	"requests_number_key":                    numbering.KindRequest,
	"distribution_orders_number_key":         numbering.KindDistributionOrder,
	"outbound_handovers_number_key":          numbering.KindOutbound,
	"inbound_handovers_reference_number_key": numbering.KindInbound,
	"stock_opname_sessions_number_key":       numbering.KindOpname,
}

var referenceConstraints = map[string]string{
	"items_code_key":                        "code",
	"employees_nip_key":                     "nip",
	"inbound_handovers_document_number_key": "document_number",
	"inbound_handovers_invoice_number_key":  "invoice_number",
}

// mapWriteError turns constraint violations into domain errors. Number
// collisions wrap numbering.ErrConflict so the allocation policy retries.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		if kind, ok := numberConstraints[pgErr.ConstraintName]; ok {
			return fmt.Errorf("%s number: %w", kind, numbering.ErrConflict)
		}
		if field, ok := referenceConstraints[pgErr.ConstraintName]; ok {
			return apperr.Wrap(apperr.CodeDuplicateReference, err, field+" is already recorded").
				WithDetails(map[string]any{"field": field})
		}
		switch pgErr.ConstraintName {
		case "distribution_orders_request_id_key":
			return apperr.Wrap(apperr.CodeInvalidState, err, "request already has a distribution order")
		case "outbound_handovers_order_id_key":
			return apperr.Wrap(apperr.CodeInvalidState, err, "distribution order already handed over")
		}
		return apperr.Wrap(apperr.CodeValidation, err, "duplicate line or key")
	case "23514":
		if strings.Contains(pgErr.ConstraintName, "stock") || strings.Contains(pgErr.ConstraintName, "balance") {
			return apperr.Wrap(apperr.CodeInsufficientStock, err, "stock would become negative")
		}
		return apperr.Wrap(apperr.CodeValidation, err, "value out of range")
	case "23503":
		return apperr.Wrap(apperr.CodeValidation, err, "unknown reference")
	}
	return err
}

func notFoundOr(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return err
}

const itemColumns = `id, code, name, category, unit, stock, min_stock, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (domain.Item, error) {
	var item domain.Item
	err := row.Scan(&item.ID, &item.Code, &item.Name, &item.Category, &item.Unit,
		&item.Stock, &item.MinStock, &item.CreatedAt, &item.UpdatedAt)
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, err
}

func queryItems(ctx context.Context, q queryer, query string, args ...any) ([]domain.Item, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 64)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	return queryItems(ctx, s.db, `SELECT `+itemColumns+` FROM items ORDER BY code`)
}

func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "item", id)
	}
	return &item, nil
}

func (s *Store) GetItemsByIDs(ctx context.Context, ids []string) (map[string]domain.Item, error) {
	result := make(map[string]domain.Item, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	items, err := queryItems(ctx, s.db, `SELECT `+itemColumns+` FROM items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		result[item.ID] = item
	}
	return result, nil
}

const ledgerColumns = `id, item_id, at, direction, qty_in, qty_out, resulting_balance, source_type, source_ref, correction, note`

func queryLedger(ctx context.Context, q queryer, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, 64)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.ItemID, &e.At, &e.Direction, &e.QtyIn, &e.QtyOut,
			&e.ResultingBalance, &e.SourceType, &e.SourceRef, &e.Correction, &e.Note); err != nil {
			return nil, err
		}
		e.At = e.At.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) ListLedger(ctx context.Context, itemID string, limit int) ([]domain.LedgerEntry, error) {
	if limit > 0 {
		return queryLedger(ctx, s.db, `
			SELECT `+ledgerColumns+` FROM (
				SELECT `+ledgerColumns+` FROM stock_ledger
				WHERE item_id = $1
				ORDER BY id DESC
				LIMIT $2
			) recent
			ORDER BY id
		`, itemID, limit)
	}
	return queryLedger(ctx, s.db, `SELECT `+ledgerColumns+` FROM stock_ledger WHERE item_id = $1 ORDER BY id`, itemID)
}

func (s *Store) ListLedgerSince(ctx context.Context, since time.Time) ([]domain.LedgerEntry, error) {
	return queryLedger(ctx, s.db, `SELECT `+ledgerColumns+` FROM stock_ledger WHERE at >= $1 ORDER BY id`, since)
}

func (s *Store) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, nip, name, position FROM employees ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := make([]domain.Employee, 0, 32)
	for rows.Next() {
		var e domain.Employee
		if err := rows.Scan(&e.ID, &e.NIP, &e.Name, &e.Position); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*domain.Employee, error) {
	var e domain.Employee
	err := s.db.QueryRowContext(ctx, `SELECT id, nip, name, position FROM employees WHERE id = $1`, id).
		Scan(&e.ID, &e.NIP, &e.Name, &e.Position)
	if err != nil {
		return nil, notFoundOr(err, "employee", id)
	}
	return &e, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*domain.Request, error) {
	return loadRequest(ctx, s.db, id, false)
}

func (s *Store) ListRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.Request, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}
	return queryRequests(ctx, s.db, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR requester_id = $2)
		ORDER BY created_at DESC, number DESC
		LIMIT $3
	`, string(filter.Status), filter.RequesterID, limit)
}

func (s *Store) GetDistributionOrder(ctx context.Context, id string) (*domain.DistributionOrder, error) {
	return loadOrder(ctx, s.db, id, false)
}

func (s *Store) ListDistributionOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.DistributionOrder, error) {
	if limit < 1 {
		limit = 200
	}
	return queryOrders(ctx, s.db, `
		SELECT `+orderColumns+`
		FROM distribution_orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, number DESC
		LIMIT $2
	`, string(status), limit)
}

func (s *Store) GetOutboundHandover(ctx context.Context, id string) (*domain.OutboundHandover, error) {
	return loadOutbound(ctx, s.db, `WHERE id = $1`, id, false)
}

func (s *Store) ListOutboundHandovers(ctx context.Context, limit int) ([]domain.OutboundHandover, error) {
	if limit < 1 {
		limit = 200
	}
	return queryOutbound(ctx, s.db, `
		SELECT `+outboundColumns+`
		FROM outbound_handovers
		ORDER BY created_at DESC, number DESC
		LIMIT $1
	`, limit)
}

func (s *Store) GetInboundHandover(ctx context.Context, id string) (*domain.InboundHandover, error) {
	return loadInbound(ctx, s.db, id, false)
}

func (s *Store) ListInboundHandovers(ctx context.Context, limit int) ([]domain.InboundHandover, error) {
	if limit < 1 {
		limit = 200
	}
	return queryInbound(ctx, s.db, `
		SELECT `+inboundColumns+`
		FROM inbound_handovers
		ORDER BY created_at DESC, reference_number DESC
		LIMIT $1
	`, limit)
}

func (s *Store) GetOpnameSession(ctx context.Context, id string) (*domain.OpnameSession, error) {
	return loadOpname(ctx, s.db, id, false)
}

func (s *Store) ListOpnameSessions(ctx context.Context, limit int) ([]domain.OpnameSession, error) {
	if limit < 1 {
		limit = 200
	}
	return queryOpname(ctx, s.db, `
		SELECT `+opnameColumns+`
		FROM stock_opname_sessions
		ORDER BY created_at DESC, number DESC
		LIMIT $1
	`, limit)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return apperr.Validation("username and password are required")
	}
	if user.Role == "" {
		user.Role = domain.RolePetugas
	}
	var employeeID sql.NullString
	if user.EmployeeID != "" {
		employeeID = sql.NullString{String: user.EmployeeID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, employee_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,true,now(),now())
	`, username, user.Password, user.Role, employeeID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.Newf(apperr.CodeDuplicateReference, "user %s already exists", username)
		}
		return mapWriteError(err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, COALESCE(employee_id, ''), active, created_at
		FROM app_users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.EmployeeID, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users SET password = $2, updated_at = now() WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.NotFound("user", username)
	}
	return nil
}

var _ store.Repository = (*Store)(nil)
