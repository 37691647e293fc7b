package store

import (
	"context"
	"time"

	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/ledger"
	"persediaan/backend/internal/numbering"
)

// Reader holds the side-effect free queries behind the read models.
// Get* methods return an apperr NOT_FOUND error when the row is missing.
type Reader interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	GetItemsByIDs(ctx context.Context, ids []string) (map[string]domain.Item, error)
	ListLedger(ctx context.Context, itemID string, limit int) ([]domain.LedgerEntry, error)
	ListLedgerSince(ctx context.Context, since time.Time) ([]domain.LedgerEntry, error)
	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	GetEmployee(ctx context.Context, id string) (*domain.Employee, error)
	GetRequest(ctx context.Context, id string) (*domain.Request, error)
	ListRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.Request, error)
	GetDistributionOrder(ctx context.Context, id string) (*domain.DistributionOrder, error)
	ListDistributionOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.DistributionOrder, error)
	GetOutboundHandover(ctx context.Context, id string) (*domain.OutboundHandover, error)
	ListOutboundHandovers(ctx context.Context, limit int) ([]domain.OutboundHandover, error)
	GetInboundHandover(ctx context.Context, id string) (*domain.InboundHandover, error)
	ListInboundHandovers(ctx context.Context, limit int) ([]domain.InboundHandover, error)
	GetOpnameSession(ctx context.Context, id string) (*domain.OpnameSession, error)
	ListOpnameSessions(ctx context.Context, limit int) ([]domain.OpnameSession, error)
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}

// Tx is one unit of work. Every stock movement and number allocation of an
// operation goes through the same Tx; nothing is visible to readers until
// WithinTx commits.
type Tx interface {
	ledger.Writer
	numbering.Scanner

	// LockItems locks the given item rows in ascending id order.
	LockItems(ctx context.Context, ids []string) (map[string]domain.Item, error)
	InsertItem(ctx context.Context, item domain.Item) error
	SnapshotItems(ctx context.Context) ([]domain.Item, error)

	InsertRequest(ctx context.Context, req domain.Request) error
	GetRequestForUpdate(ctx context.Context, id string) (*domain.Request, error)
	UpdateRequest(ctx context.Context, req domain.Request) error
	DeleteRequest(ctx context.Context, id string) error

	InsertDistributionOrder(ctx context.Context, order domain.DistributionOrder) error
	GetDistributionOrderForUpdate(ctx context.Context, id string) (*domain.DistributionOrder, error)
	// FindDistributionOrderByRequest returns nil when the request has no order.
	// The caller must hold the request row lock.
	FindDistributionOrderByRequest(ctx context.Context, requestID string) (*domain.DistributionOrder, error)
	UpdateDistributionOrder(ctx context.Context, order domain.DistributionOrder) error
	DeleteDistributionOrder(ctx context.Context, id string) error

	InsertOutboundHandover(ctx context.Context, handover domain.OutboundHandover) error
	GetOutboundHandoverForUpdate(ctx context.Context, id string) (*domain.OutboundHandover, error)
	// FindOutboundHandoverByOrder returns nil when the order has no handover.
	FindOutboundHandoverByOrder(ctx context.Context, orderID string) (*domain.OutboundHandover, error)
	DeleteOutboundHandover(ctx context.Context, id string) error

	InsertInboundHandover(ctx context.Context, handover domain.InboundHandover) error
	GetInboundHandoverForUpdate(ctx context.Context, id string) (*domain.InboundHandover, error)
	UpdateInboundHandover(ctx context.Context, handover domain.InboundHandover) error
	DeleteInboundHandover(ctx context.Context, id string) error

	InsertOpnameSession(ctx context.Context, session domain.OpnameSession) error
	GetOpnameSessionForUpdate(ctx context.Context, id string) (*domain.OpnameSession, error)
	UpdateOpnameSession(ctx context.Context, session domain.OpnameSession) error
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	Reader
	UserStore

	// WithinTx runs fn in a transaction and commits when fn returns nil.
	// Any error, or a cancelled ctx, rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
}
