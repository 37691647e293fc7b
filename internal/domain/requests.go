package domain

import "github.com/shopspring/decimal"

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type ItemCreateRequest struct {
	Code         string `json:"code" validate:"required,max=32"`
	Name         string `json:"name" validate:"required,max=160"`
	Category     string `json:"category" validate:"required"`
	Unit         string `json:"unit" validate:"required"`
	MinStock     int    `json:"min_stock" validate:"min=0"`
	InitialStock int    `json:"initial_stock" validate:"min=0"`
}

type RequestLineInput struct {
	ItemID string `json:"item_id" validate:"required"`
	Qty    int    `json:"qty" validate:"min=1"`
	Note   string `json:"note"`
}

type RequestCreateRequest struct {
	Date        string             `json:"date"`
	RequesterID string             `json:"requester_id"`
	Purpose     string             `json:"purpose"`
	Lines       []RequestLineInput `json:"lines" validate:"required,min=1,dive"`
}

type RequestUpdateRequest struct {
	Date    string             `json:"date"`
	Purpose string             `json:"purpose"`
	Lines   []RequestLineInput `json:"lines" validate:"required,min=1,dive"`
}

type RequestFilter struct {
	Status      RequestStatus
	RequesterID string
	Limit       int
}

type DistributionOrderLineInput struct {
	ItemID      string `json:"item_id" validate:"required"`
	ApprovedQty int    `json:"approved_qty" validate:"min=1"`
}

type DistributionOrderCreateRequest struct {
	RequestID   string                       `json:"request_id" validate:"required"`
	Date        string                       `json:"date"`
	ApproverID  string                       `json:"approver_id" validate:"required"`
	RecipientID string                       `json:"recipient_id" validate:"required"`
	Note        string                       `json:"note"`
	Lines       []DistributionOrderLineInput `json:"lines" validate:"required,min=1,dive"`
}

type OutboundHandoverLineInput struct {
	ItemID    string          `json:"item_id" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
}

type OutboundHandoverCreateRequest struct {
	OrderID      string                      `json:"order_id" validate:"required"`
	Date         string                      `json:"date"`
	HandedOverBy string                      `json:"handed_over_by" validate:"required"`
	ReceivedBy   string                      `json:"received_by" validate:"required"`
	Lines        []OutboundHandoverLineInput `json:"lines" validate:"required,min=1,dive"`
}

type InboundHandoverLineInput struct {
	ItemID           string          `json:"item_id" validate:"required"`
	PackageQty       int             `json:"package_qty" validate:"min=1"`
	PackageUnit      string          `json:"package_unit"`
	ConversionFactor int             `json:"conversion_factor" validate:"min=1"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
}

// InboundHandoverInput is used for both create and edit.
type InboundHandoverInput struct {
	DocumentNumber string                     `json:"document_number" validate:"required"`
	InvoiceNumber  string                     `json:"invoice_number" validate:"required"`
	DocumentDate   string                     `json:"document_date"`
	ReceivedDate   string                     `json:"received_date"`
	Supplier       string                     `json:"supplier" validate:"required"`
	ApproverID     string                     `json:"approver_id" validate:"required"`
	FundingAccount string                     `json:"funding_account"`
	Note           string                     `json:"note"`
	Lines          []InboundHandoverLineInput `json:"lines" validate:"required,min=1,dive"`
}

type OpnameCreateRequest struct {
	Date       string `json:"date"`
	OperatorID string `json:"operator_id" validate:"required"`
	Note       string `json:"note"`
}

type OpnameLineUpdateRequest struct {
	PhysicalCount int    `json:"physical_count" validate:"min=0"`
	Note          string `json:"note"`
}

type UserCreateRequest struct {
	Username   string `json:"username" validate:"required,min=4,max=64"`
	Password   string `json:"password" validate:"required,min=8"`
	Role       string `json:"role" validate:"required,oneof=admin petugas supervisor"`
	EmployeeID string `json:"employee_id"`
}
