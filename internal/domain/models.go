package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin      = "admin"
	RolePetugas    = "petugas"
	RoleSupervisor = "supervisor"
)

type Actor struct {
	Username   string `json:"username"`
	Role       string `json:"role"`
	EmployeeID string `json:"employee_id,omitempty"`
}

type UserAccount struct {
	Username   string    `json:"username"`
	Password   string    `json:"-"`
	Role       string    `json:"role"`
	EmployeeID string    `json:"employee_id,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type Employee struct {
	ID       string `json:"id"`
	NIP      string `json:"nip"`
	Name     string `json:"name"`
	Position string `json:"position"`
}

type Item struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Unit      string    `json:"unit"`
	Stock     int       `json:"stock"`
	MinStock  int       `json:"min_stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Direction string

const (
	DirectionIn     Direction = "IN"
	DirectionOut    Direction = "OUT"
	DirectionAdjust Direction = "ADJUST"
)

// SourceType tags the document kind a ledger entry came from.
type SourceType string

const (
	SourceOpening  SourceType = "saldo_awal"
	SourceOutbound SourceType = "bast_keluar"
	SourceInbound  SourceType = "bast_masuk"
	SourceOpname   SourceType = "stock_opname"
)

type LedgerEntry struct {
	ID               int64      `json:"id"`
	ItemID           string     `json:"item_id"`
	At               time.Time  `json:"at"`
	Direction        Direction  `json:"direction"`
	QtyIn            int        `json:"qty_in"`
	QtyOut           int        `json:"qty_out"`
	ResultingBalance int        `json:"resulting_balance"`
	SourceType       SourceType `json:"source_type"`
	SourceRef        string     `json:"source_ref"`
	Correction       bool       `json:"correction"`
	Note             string     `json:"note,omitempty"`
}

type RequestStatus string

const (
	RequestAwaitingOrder RequestStatus = "menunggu_sppb"
	RequestCompleted     RequestStatus = "selesai"
	RequestCancelled     RequestStatus = "dibatalkan"
)

type RequestLine struct {
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
	Note   string `json:"note,omitempty"`
}

// Request is an SPB (Surat Permintaan Barang).
type Request struct {
	ID          string        `json:"id"`
	Number      string        `json:"number"`
	Date        time.Time     `json:"date"`
	RequesterID string        `json:"requester_id"`
	Purpose     string        `json:"purpose,omitempty"`
	Status      RequestStatus `json:"status"`
	Lines       []RequestLine `json:"lines"`
	CreatedBy   string        `json:"created_by"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type OrderStatus string

const (
	OrderAwaitingHandover OrderStatus = "menunggu_bast"
	OrderCompleted        OrderStatus = "selesai"
	OrderCancelled        OrderStatus = "dibatalkan"
)

type DistributionOrderLine struct {
	ItemID       string `json:"item_id"`
	RequestedQty int    `json:"requested_qty"`
	ApprovedQty  int    `json:"approved_qty"`
}

// DistributionOrder is an SPPB (Surat Perintah Penyaluran Barang).
type DistributionOrder struct {
	ID          string                  `json:"id"`
	Number      string                  `json:"number"`
	Date        time.Time               `json:"date"`
	RequestID   string                  `json:"request_id"`
	ApproverID  string                  `json:"approver_id"`
	RecipientID string                  `json:"recipient_id"`
	PerformerID string                  `json:"performer_id,omitempty"`
	Status      OrderStatus             `json:"status"`
	Note        string                  `json:"note,omitempty"`
	Lines       []DistributionOrderLine `json:"lines"`
	CreatedBy   string                  `json:"created_by"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

type OutboundHandoverLine struct {
	ItemID    string          `json:"item_id"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// OutboundHandover is a BAST Keluar.
type OutboundHandover struct {
	ID           string                 `json:"id"`
	Number       string                 `json:"number"`
	Date         time.Time              `json:"date"`
	OrderID      string                 `json:"order_id"`
	HandedOverBy string                 `json:"handed_over_by"`
	ReceivedBy   string                 `json:"received_by"`
	Lines        []OutboundHandoverLine `json:"lines"`
	Subtotal     decimal.Decimal        `json:"subtotal"`
	TaxTotal     decimal.Decimal        `json:"tax_total"`
	GrandTotal   decimal.Decimal        `json:"grand_total"`
	CreatedBy    string                 `json:"created_by"`
	CreatedAt    time.Time              `json:"created_at"`
}

type InboundHandoverLine struct {
	ItemID           string          `json:"item_id"`
	PackageQty       int             `json:"package_qty"`
	PackageUnit      string          `json:"package_unit"`
	ConversionFactor int             `json:"conversion_factor"`
	BaseQty          int             `json:"base_qty"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	LineTotal        decimal.Decimal `json:"line_total"`
}

// InboundHandover is a BAST Masuk.
type InboundHandover struct {
	ID              string                `json:"id"`
	ReferenceNumber string                `json:"reference_number"`
	DocumentNumber  string                `json:"document_number"`
	InvoiceNumber   string                `json:"invoice_number"`
	DocumentDate    time.Time             `json:"document_date"`
	ReceivedDate    time.Time             `json:"received_date"`
	Supplier        string                `json:"supplier"`
	ApproverID      string                `json:"approver_id"`
	FundingAccount  string                `json:"funding_account"`
	Note            string                `json:"note,omitempty"`
	Lines           []InboundHandoverLine `json:"lines"`
	Total           decimal.Decimal       `json:"total"`
	CreatedBy       string                `json:"created_by"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

type OpnameStatus string

const (
	OpnameDraft     OpnameStatus = "draft"
	OpnameCompleted OpnameStatus = "selesai"
	OpnameCancelled OpnameStatus = "dibatalkan"
)

type OpnameLine struct {
	ItemID        string `json:"item_id"`
	SystemStock   int    `json:"system_stock"`
	PhysicalCount int    `json:"physical_count"`
	Variance      int    `json:"variance"`
	Note          string `json:"note,omitempty"`
}

type OpnameSession struct {
	ID          string       `json:"id"`
	Number      string       `json:"number"`
	Date        time.Time    `json:"date"`
	OperatorID  string       `json:"operator_id"`
	Status      OpnameStatus `json:"status"`
	Note        string       `json:"note,omitempty"`
	Lines       []OpnameLine `json:"lines"`
	CreatedBy   string       `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	FinalizedAt *time.Time   `json:"finalized_at,omitempty"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
