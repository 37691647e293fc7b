package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Read models returned by the service. Each one joins reference data
// (item and employee names) so callers never assemble rows themselves.

type EmployeeRef struct {
	ID   string `json:"id"`
	NIP  string `json:"nip,omitempty"`
	Name string `json:"name"`
}

type ItemRef struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

type ItemStockView struct {
	Item
	LowStock bool `json:"low_stock"`
}

type LedgerEntryView struct {
	LedgerEntry
	Item ItemRef `json:"item"`
}

type LedgerVerification struct {
	ItemID          string `json:"item_id"`
	Stock           int    `json:"stock"`
	ReplayedBalance int    `json:"replayed_balance"`
	Entries         int    `json:"entries"`
	Consistent      bool   `json:"consistent"`
	BrokenAtEntryID int64  `json:"broken_at_entry_id,omitempty"`
}

type RequestLineView struct {
	Item ItemRef `json:"item"`
	Qty  int     `json:"qty"`
	Note string  `json:"note,omitempty"`
}

type RequestView struct {
	ID        string            `json:"id"`
	Number    string            `json:"number"`
	Date      string            `json:"date"`
	Status    RequestStatus     `json:"status"`
	Purpose   string            `json:"purpose,omitempty"`
	Requester EmployeeRef       `json:"requester"`
	Lines     []RequestLineView `json:"lines"`
	CreatedBy string            `json:"created_by"`
	CreatedAt time.Time         `json:"created_at"`
}

type DistributionOrderLineView struct {
	Item         ItemRef `json:"item"`
	RequestedQty int     `json:"requested_qty"`
	ApprovedQty  int     `json:"approved_qty"`
}

type DistributionOrderView struct {
	ID            string                      `json:"id"`
	Number        string                      `json:"number"`
	Date          string                      `json:"date"`
	Status        OrderStatus                 `json:"status"`
	RequestID     string                      `json:"request_id"`
	RequestNumber string                      `json:"request_number"`
	Approver      EmployeeRef                 `json:"approver"`
	Recipient     EmployeeRef                 `json:"recipient"`
	Performer     *EmployeeRef                `json:"performer,omitempty"`
	Note          string                      `json:"note,omitempty"`
	Lines         []DistributionOrderLineView `json:"lines"`
	CreatedAt     time.Time                   `json:"created_at"`
}

type OutboundHandoverLineView struct {
	Item      ItemRef         `json:"item"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type OutboundHandoverView struct {
	ID           string                     `json:"id"`
	Number       string                     `json:"number"`
	Date         string                     `json:"date"`
	OrderID      string                     `json:"order_id"`
	OrderNumber  string                     `json:"order_number"`
	HandedOverBy EmployeeRef                `json:"handed_over_by"`
	ReceivedBy   EmployeeRef                `json:"received_by"`
	Lines        []OutboundHandoverLineView `json:"lines"`
	Subtotal     decimal.Decimal            `json:"subtotal"`
	TaxTotal     decimal.Decimal            `json:"tax_total"`
	GrandTotal   decimal.Decimal            `json:"grand_total"`
	CreatedAt    time.Time                  `json:"created_at"`
}

type InboundHandoverLineView struct {
	Item             ItemRef         `json:"item"`
	PackageQty       int             `json:"package_qty"`
	PackageUnit      string          `json:"package_unit"`
	ConversionFactor int             `json:"conversion_factor"`
	BaseQty          int             `json:"base_qty"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	LineTotal        decimal.Decimal `json:"line_total"`
}

type InboundHandoverView struct {
	ID              string                    `json:"id"`
	ReferenceNumber string                    `json:"reference_number"`
	DocumentNumber  string                    `json:"document_number"`
	InvoiceNumber   string                    `json:"invoice_number"`
	DocumentDate    string                    `json:"document_date"`
	ReceivedDate    string                    `json:"received_date"`
	Supplier        string                    `json:"supplier"`
	Approver        EmployeeRef               `json:"approver"`
	FundingAccount  string                    `json:"funding_account"`
	Note            string                    `json:"note,omitempty"`
	Lines           []InboundHandoverLineView `json:"lines"`
	Total           decimal.Decimal           `json:"total"`
	CreatedAt       time.Time                 `json:"created_at"`
}

type OpnameLineView struct {
	Item          ItemRef `json:"item"`
	SystemStock   int     `json:"system_stock"`
	PhysicalCount int     `json:"physical_count"`
	Variance      int     `json:"variance"`
	Note          string  `json:"note,omitempty"`
}

type OpnameSessionView struct {
	ID          string           `json:"id"`
	Number      string           `json:"number"`
	Date        string           `json:"date"`
	Status      OpnameStatus     `json:"status"`
	Operator    EmployeeRef      `json:"operator"`
	Note        string           `json:"note,omitempty"`
	Lines       []OpnameLineView `json:"lines"`
	CreatedAt   time.Time        `json:"created_at"`
	FinalizedAt *time.Time       `json:"finalized_at,omitempty"`
}

type RestockSuggestion struct {
	Item         ItemRef `json:"item"`
	Stock        int     `json:"stock"`
	MinStock     int     `json:"min_stock"`
	DailyUsage   float64 `json:"daily_usage"`
	DaysOfCover  float64 `json:"days_of_cover"`
	SuggestedQty int     `json:"suggested_qty"`
	ReasonCode   string  `json:"reason_code"`
	Priority     float64 `json:"priority"`
}

type RestockSuggestionResponse struct {
	GeneratedAt time.Time           `json:"generated_at"`
	WindowDays  int                 `json:"window_days"`
	Suggestions []RestockSuggestion `json:"suggestions"`
}
