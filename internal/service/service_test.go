package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persediaan/backend/internal/apperr"
	"persediaan/backend/internal/cache"
	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/restock"
	"persediaan/backend/internal/store/memory"
)

var testNow = time.Date(2026, time.October, 5, 9, 0, 0, 0, time.UTC)

var (
	adminCtx      = WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin, EmployeeID: "pgw-002"})
	petugasCtx    = WithActor(context.Background(), domain.Actor{Username: "petugas", Role: domain.RolePetugas, EmployeeID: "pgw-003"})
	supervisorCtx = WithActor(context.Background(), domain.Actor{Username: "supervisor", Role: domain.RoleSupervisor, EmployeeID: "pgw-004"})
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo, err := memory.NewSeeded()
	require.NoError(t, err)
	return New(repo, nil, Options{Now: func() time.Time { return testNow }}), repo
}

func requireCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperr.CodeOf(err), "unexpected error: %v", err)
}

type stateSnapshot struct {
	items  []domain.Item
	ledger []domain.LedgerEntry
}

func snapshot(t *testing.T, repo *memory.Store) stateSnapshot {
	t.Helper()
	items, err := repo.ListItems(context.Background())
	require.NoError(t, err)
	entries, err := repo.ListLedgerSince(context.Background(), time.Time{})
	require.NoError(t, err)
	return stateSnapshot{items: items, ledger: entries}
}

func stockOf(t *testing.T, svc *Service, itemID string) int {
	t.Helper()
	item, err := svc.GetItem(adminCtx, itemID)
	require.NoError(t, err)
	return item.Stock
}

// requireLedgerConsistent checks that every item replays to its stock and
// never went negative.
func requireLedgerConsistent(t *testing.T, svc *Service) {
	t.Helper()
	items, err := svc.ListItems(adminCtx)
	require.NoError(t, err)
	for _, item := range items {
		assert.GreaterOrEqual(t, item.Stock, 0, item.Code)
		check, err := svc.VerifyItemLedger(adminCtx, item.ID)
		require.NoError(t, err)
		assert.True(t, check.Consistent, "%s: stock %d, replayed %d, broken at %d", item.Code, check.Stock, check.ReplayedBalance, check.BrokenAtEntryID)

		entries, err := svc.ItemLedger(adminCtx, item.ID, 500)
		require.NoError(t, err)
		for _, entry := range entries {
			assert.GreaterOrEqual(t, entry.ResultingBalance, 0)
		}
	}
}

func createRequest(t *testing.T, svc *Service, ctx context.Context, requesterID string, lines ...domain.RequestLineInput) domain.RequestView {
	t.Helper()
	req, err := svc.CreateRequest(ctx, domain.RequestCreateRequest{RequesterID: requesterID, Purpose: "kebutuhan bulanan", Lines: lines})
	require.NoError(t, err)
	return req
}

func approveAll(t *testing.T, svc *Service, req domain.RequestView) domain.DistributionOrderView {
	t.Helper()
	lines := make([]domain.DistributionOrderLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, domain.DistributionOrderLineInput{ItemID: line.Item.ID, ApprovedQty: line.Qty})
	}
	order, err := svc.CreateDistributionOrder(adminCtx, domain.DistributionOrderCreateRequest{
		RequestID:   req.ID,
		ApproverID:  "pgw-001",
		RecipientID: req.Requester.ID,
		Lines:       lines,
	})
	require.NoError(t, err)
	return order
}

func handOver(svc *Service, order domain.DistributionOrderView) (domain.OutboundHandoverView, error) {
	lines := make([]domain.OutboundHandoverLineInput, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, domain.OutboundHandoverLineInput{
			ItemID:    line.Item.ID,
			UnitPrice: decimal.NewFromInt(50000),
			TaxRate:   decimal.NewFromInt(11),
		})
	}
	return svc.CreateOutboundHandover(adminCtx, domain.OutboundHandoverCreateRequest{
		OrderID:      order.ID,
		HandedOverBy: "pgw-002",
		ReceivedBy:   order.Recipient.ID,
		Lines:        lines,
	})
}

func inboundInput(document string, lines ...domain.InboundHandoverLineInput) domain.InboundHandoverInput {
	return domain.InboundHandoverInput{
		DocumentNumber: document,
		InvoiceNumber:  "INV-" + document,
		DocumentDate:   "2026-10-03",
		ReceivedDate:   "2026-10-04",
		Supplier:       "CV Sumber Makmur",
		ApproverID:     "pgw-001",
		FundingAccount: "521811",
		Lines:          lines,
	}
}

func TestRequestLifecycleAndOwnership(t *testing.T) {
	svc, _ := newTestService(t)

	own := createRequest(t, svc, petugasCtx, "", domain.RequestLineInput{ItemID: "brg-001", Qty: 4})
	assert.Equal(t, "SPB/2026/10/0001", own.Number)
	assert.Equal(t, "pgw-003", own.Requester.ID)
	assert.Equal(t, "Andi Pratama", own.Requester.Name)
	assert.Equal(t, "Kertas HVS A4 80gr", own.Lines[0].Item.Name)
	assert.Equal(t, domain.RequestAwaitingOrder, own.Status)

	_, err := svc.CreateRequest(petugasCtx, domain.RequestCreateRequest{
		RequesterID: "pgw-005",
		Lines:       []domain.RequestLineInput{{ItemID: "brg-001", Qty: 1}},
	})
	requireCode(t, err, apperr.CodeForbidden)

	other := createRequest(t, svc, adminCtx, "pgw-005", domain.RequestLineInput{ItemID: "brg-002", Qty: 2})
	assert.Equal(t, "SPB/2026/10/0002", other.Number)

	_, err = svc.UpdateRequest(petugasCtx, other.ID, domain.RequestUpdateRequest{
		Lines: []domain.RequestLineInput{{ItemID: "brg-002", Qty: 3}},
	})
	requireCode(t, err, apperr.CodeForbidden)
	requireCode(t, svc.DeleteRequest(petugasCtx, other.ID), apperr.CodeForbidden)

	updated, err := svc.UpdateRequest(petugasCtx, own.ID, domain.RequestUpdateRequest{
		Date:  "2026-10-02",
		Lines: []domain.RequestLineInput{{ItemID: "brg-003", Qty: 10}, {ItemID: "brg-004", Qty: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, own.Number, updated.Number)
	assert.Equal(t, "2026-10-02", updated.Date)
	require.Len(t, updated.Lines, 2)

	_, err = svc.CancelRequest(petugasCtx, other.ID)
	requireCode(t, err, apperr.CodeForbidden)

	cancelled, err := svc.CancelRequest(adminCtx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestCancelled, cancelled.Status)

	_, err = svc.CancelRequest(adminCtx, other.ID)
	requireCode(t, err, apperr.CodeInvalidState)
	requireCode(t, svc.DeleteRequest(adminCtx, other.ID), apperr.CodeInvalidState)

	require.NoError(t, svc.DeleteRequest(petugasCtx, own.ID))
	_, err = svc.GetRequest(adminCtx, own.ID)
	requireCode(t, err, apperr.CodeNotFound)
}

func TestRequestValidationListsEveryProblem(t *testing.T) {
	svc, repo := newTestService(t)
	before := snapshot(t, repo)

	_, err := svc.CreateRequest(adminCtx, domain.RequestCreateRequest{
		RequesterID: "pgw-001",
		Lines: []domain.RequestLineInput{
			{ItemID: "brg-001", Qty: 1},
			{ItemID: "brg-001", Qty: 2},
			{ItemID: "brg-002", Qty: 0},
			{ItemID: "brg-404", Qty: 1},
		},
	})
	requireCode(t, err, apperr.CodeValidation)
	details, ok := apperr.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Len(t, details["problems"], 3)

	_, err = svc.CreateRequest(adminCtx, domain.RequestCreateRequest{
		RequesterID: "pgw-001",
		Date:        "05/10/2026",
		Lines:       []domain.RequestLineInput{{ItemID: "brg-001", Qty: 1}},
	})
	requireCode(t, err, apperr.CodeValidation)

	_, err = svc.CreateRequest(context.Background(), domain.RequestCreateRequest{})
	requireCode(t, err, apperr.CodeUnauthorized)

	assert.Equal(t, before, snapshot(t, repo))
}

func TestDistributionOrderLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	req := createRequest(t, svc, adminCtx, "pgw-005",
		domain.RequestLineInput{ItemID: "brg-001", Qty: 10},
		domain.RequestLineInput{ItemID: "brg-002", Qty: 5},
	)

	base := domain.DistributionOrderCreateRequest{RequestID: req.ID, ApproverID: "pgw-001", RecipientID: "pgw-005"}

	tooMuch := base
	tooMuch.Lines = []domain.DistributionOrderLineInput{{ItemID: "brg-001", ApprovedQty: 11}}
	_, err := svc.CreateDistributionOrder(adminCtx, tooMuch)
	requireCode(t, err, apperr.CodeValidation)

	foreign := base
	foreign.Lines = []domain.DistributionOrderLineInput{{ItemID: "brg-003", ApprovedQty: 1}}
	_, err = svc.CreateDistributionOrder(adminCtx, foreign)
	requireCode(t, err, apperr.CodeValidation)

	valid := base
	valid.Lines = []domain.DistributionOrderLineInput{{ItemID: "brg-001", ApprovedQty: 8}}
	_, err = svc.CreateDistributionOrder(petugasCtx, valid)
	requireCode(t, err, apperr.CodeForbidden)

	order, err := svc.CreateDistributionOrder(adminCtx, valid)
	require.NoError(t, err)
	assert.Equal(t, "SPPB/2026/10/0001", order.Number)
	assert.Equal(t, req.Number, order.RequestNumber)
	assert.Equal(t, domain.OrderAwaitingHandover, order.Status)
	assert.Nil(t, order.Performer)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, 10, order.Lines[0].RequestedQty)
	assert.Equal(t, 8, order.Lines[0].ApprovedQty)

	got, err := svc.GetRequest(adminCtx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestAwaitingOrder, got.Status)

	_, err = svc.CreateDistributionOrder(adminCtx, valid)
	requireCode(t, err, apperr.CodeInvalidState)

	// a request with an order is frozen until the order goes away
	_, err = svc.UpdateRequest(adminCtx, req.ID, domain.RequestUpdateRequest{
		Lines: []domain.RequestLineInput{{ItemID: "brg-001", Qty: 1}},
	})
	requireCode(t, err, apperr.CodeInvalidState)
	requireCode(t, svc.DeleteRequest(adminCtx, req.ID), apperr.CodeInvalidState)
	_, err = svc.CancelRequest(adminCtx, req.ID)
	requireCode(t, err, apperr.CodeInvalidState)

	require.NoError(t, svc.DeleteDistributionOrder(adminCtx, order.ID))
	got, err = svc.GetRequest(adminCtx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestAwaitingOrder, got.Status)

	again, err := svc.CreateDistributionOrder(adminCtx, valid)
	require.NoError(t, err)

	cancelled, err := svc.CancelDistributionOrder(adminCtx, again.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, cancelled.Status)
	got, err = svc.GetRequest(adminCtx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestCancelled, got.Status)

	_, err = svc.CancelDistributionOrder(adminCtx, again.ID)
	requireCode(t, err, apperr.CodeInvalidState)

	require.NoError(t, svc.DeleteDistributionOrder(adminCtx, again.ID))
	got, err = svc.GetRequest(adminCtx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestCancelled, got.Status)
}

func TestCompletedRequestNeverLeavesCompleted(t *testing.T) {
	svc, _ := newTestService(t)
	req := createRequest(t, svc, adminCtx, "pgw-005", domain.RequestLineInput{ItemID: "brg-001", Qty: 4})
	order := approveAll(t, svc, req)

	handover, err := handOver(svc, order)
	require.NoError(t, err)
	requestStatus := func() domain.RequestStatus {
		t.Helper()
		got, err := svc.GetRequest(adminCtx, req.ID)
		require.NoError(t, err)
		return got.Status
	}
	assert.Equal(t, domain.RequestCompleted, requestStatus())

	require.NoError(t, svc.DeleteOutboundHandover(adminCtx, handover.ID))
	assert.Equal(t, domain.RequestCompleted, requestStatus())

	reopened, err := svc.GetDistributionOrder(adminCtx, order.ID)
	require.NoError(t, err)
	_, err = handOver(svc, reopened)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestCompleted, requestStatus())

	other := createRequest(t, svc, adminCtx, "pgw-005", domain.RequestLineInput{ItemID: "brg-002", Qty: 1})
	otherOrder := approveAll(t, svc, other)
	otherHandover, err := handOver(svc, otherOrder)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteOutboundHandover(adminCtx, otherHandover.ID))

	_, err = svc.CancelDistributionOrder(adminCtx, otherOrder.ID)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteDistributionOrder(adminCtx, otherOrder.ID))
	got, err := svc.GetRequest(adminCtx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestCompleted, got.Status)

	_, err = svc.CancelRequest(adminCtx, other.ID)
	requireCode(t, err, apperr.CodeInvalidState)
	requireCode(t, svc.DeleteRequest(adminCtx, other.ID), apperr.CodeInvalidState)
}

func TestOutboundHandoverMovesStockOnce(t *testing.T) {
	svc, _ := newTestService(t)
	req := createRequest(t, svc, petugasCtx, "", domain.RequestLineInput{ItemID: "brg-001", Qty: 8})
	order := approveAll(t, svc, req)

	handover, err := handOver(svc, order)
	require.NoError(t, err)
	assert.Equal(t, "BAST-K/2026/10/0001", handover.Number)
	assert.Equal(t, order.Number, handover.OrderNumber)
	require.Len(t, handover.Lines, 1)
	assert.Equal(t, 8, handover.Lines[0].Qty)
	assert.Equal(t, "400000.00", handover.Subtotal.StringFixed(2))
	assert.Equal(t, "44000.00", handover.TaxTotal.StringFixed(2))
	assert.Equal(t, "444000.00", handover.GrandTotal.StringFixed(2))
	assert.Equal(t, 52, stockOf(t, svc, "brg-001"))

	completed, err := svc.GetDistributionOrder(adminCtx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, completed.Status)
	require.NotNil(t, completed.Performer)
	assert.Equal(t, "Siti Rahmawati", completed.Performer.Name)

	_, err = handOver(svc, order)
	requireCode(t, err, apperr.CodeInvalidState)
	assert.Equal(t, 52, stockOf(t, svc, "brg-001"))

	requireCode(t, svc.DeleteDistributionOrder(adminCtx, order.ID), apperr.CodeInvalidState)

	require.NoError(t, svc.DeleteOutboundHandover(adminCtx, handover.ID))
	assert.Equal(t, 60, stockOf(t, svc, "brg-001"))
	reopened, err := svc.GetDistributionOrder(adminCtx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderAwaitingHandover, reopened.Status)
	assert.Nil(t, reopened.Performer)

	history, err := svc.ItemLedger(adminCtx, "brg-001", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.DirectionOut, history[0].Direction)
	assert.Equal(t, domain.DirectionIn, history[1].Direction)
	assert.True(t, history[1].Correction)
	assert.Equal(t, handover.Number, history[1].SourceRef)
	assert.Equal(t, 60, history[1].ResultingBalance)

	_, err = handOver(svc, reopened)
	require.NoError(t, err)
	assert.Equal(t, 52, stockOf(t, svc, "brg-001"))
	requireLedgerConsistent(t, svc)
}

func TestOutboundHandoverRejectsWhenOrderNotPending(t *testing.T) {
	svc, _ := newTestService(t)
	req := createRequest(t, svc, adminCtx, "pgw-005", domain.RequestLineInput{ItemID: "brg-002", Qty: 2})
	order := approveAll(t, svc, req)
	_, err := svc.CancelDistributionOrder(adminCtx, order.ID)
	require.NoError(t, err)

	_, err = handOver(svc, order)
	requireCode(t, err, apperr.CodeInvalidState)
	assert.Equal(t, 25, stockOf(t, svc, "brg-002"))
}

func TestOutboundHandoverNeedsAPriceForEveryLine(t *testing.T) {
	svc, _ := newTestService(t)
	req := createRequest(t, svc, adminCtx, "pgw-005",
		domain.RequestLineInput{ItemID: "brg-001", Qty: 1},
		domain.RequestLineInput{ItemID: "brg-002", Qty: 1},
	)
	order := approveAll(t, svc, req)

	_, err := svc.CreateOutboundHandover(adminCtx, domain.OutboundHandoverCreateRequest{
		OrderID:      order.ID,
		HandedOverBy: "pgw-002",
		ReceivedBy:   "pgw-005",
		Lines:        []domain.OutboundHandoverLineInput{{ItemID: "brg-001", UnitPrice: decimal.NewFromInt(1000)}},
	})
	requireCode(t, err, apperr.CodeValidation)

	_, err = svc.CreateOutboundHandover(adminCtx, domain.OutboundHandoverCreateRequest{
		OrderID:      order.ID,
		HandedOverBy: "pgw-002",
		ReceivedBy:   "pgw-005",
		Lines: []domain.OutboundHandoverLineInput{
			{ItemID: "brg-001", TaxRate: decimal.NewFromInt(101)},
			{ItemID: "brg-002", UnitPrice: decimal.NewFromInt(-1)},
		},
	})
	requireCode(t, err, apperr.CodeValidation)
}

func TestOutboundInsufficientStockLeavesStateUnchanged(t *testing.T) {
	svc, repo := newTestService(t)
	req := createRequest(t, svc, adminCtx, "pgw-005",
		domain.RequestLineInput{ItemID: "brg-001", Qty: 5},
		domain.RequestLineInput{ItemID: "brg-008", Qty: 3},
	)
	order := approveAll(t, svc, req)
	before := snapshot(t, repo)

	_, err := handOver(svc, order)
	requireCode(t, err, apperr.CodeInsufficientStock)
	assert.Equal(t, before, snapshot(t, repo))

	pending, err := svc.GetDistributionOrder(adminCtx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderAwaitingHandover, pending.Status)
	handovers, err := svc.ListOutboundHandovers(adminCtx, 0)
	require.NoError(t, err)
	assert.Empty(t, handovers)
}

func TestInboundHandoverCreateUpdateDelete(t *testing.T) {
	svc, _ := newTestService(t)

	in := inboundInput("SJ-0091", domain.InboundHandoverLineInput{
		ItemID:           "brg-008",
		PackageQty:       2,
		PackageUnit:      "dus",
		ConversionFactor: 12,
		UnitPrice:        decimal.NewFromInt(30000),
	})
	created, err := svc.CreateInboundHandover(adminCtx, in)
	require.NoError(t, err)
	assert.Equal(t, "BAST-M/2026/10/0001", created.ReferenceNumber)
	assert.Equal(t, 24, created.Lines[0].BaseQty)
	assert.Equal(t, "60000.00", created.Total.StringFixed(2))
	assert.Equal(t, "Budi Santoso", created.Approver.Name)
	assert.Equal(t, 24, stockOf(t, svc, "brg-008"))

	dup := inboundInput("sj-0091", domain.InboundHandoverLineInput{ItemID: "brg-001", PackageQty: 1, ConversionFactor: 1})
	_, err = svc.CreateInboundHandover(adminCtx, dup)
	requireCode(t, err, apperr.CodeDuplicateReference)

	edit := in
	edit.Lines = []domain.InboundHandoverLineInput{
		{ItemID: "brg-008", PackageQty: 1, ConversionFactor: 12, UnitPrice: decimal.NewFromInt(30000)},
		{ItemID: "brg-007", PackageQty: 6, ConversionFactor: 1, UnitPrice: decimal.NewFromInt(15000)},
	}
	updated, err := svc.UpdateInboundHandover(adminCtx, created.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, created.ReferenceNumber, updated.ReferenceNumber)
	assert.Equal(t, "120000.00", updated.Total.StringFixed(2))
	assert.Equal(t, 12, stockOf(t, svc, "brg-008"))
	assert.Equal(t, 24, stockOf(t, svc, "brg-007"))

	require.NoError(t, svc.DeleteInboundHandover(adminCtx, created.ID))
	assert.Equal(t, 0, stockOf(t, svc, "brg-008"))
	assert.Equal(t, 18, stockOf(t, svc, "brg-007"))
	_, err = svc.GetInboundHandover(adminCtx, created.ID)
	requireCode(t, err, apperr.CodeNotFound)
	requireLedgerConsistent(t, svc)
}

func TestInboundRejectsBaseQtyBeyondColumnRange(t *testing.T) {
	svc, repo := newTestService(t)
	before := snapshot(t, repo)

	_, err := svc.CreateInboundHandover(adminCtx, inboundInput("SJ-HUGE", domain.InboundHandoverLineInput{
		ItemID:           "brg-008",
		PackageQty:       1 << 20,
		ConversionFactor: 1 << 12,
	}))
	requireCode(t, err, apperr.CodeValidation)
	details, ok := apperr.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"line 1: package_qty x conversion_factor exceeds 2147483647"}, details["problems"])
	assert.Equal(t, before, snapshot(t, repo))

	created, err := svc.CreateInboundHandover(adminCtx, inboundInput("SJ-EDGE", domain.InboundHandoverLineInput{
		ItemID:           "brg-008",
		PackageQty:       maxBaseQty,
		ConversionFactor: 1,
	}))
	require.NoError(t, err)
	assert.Equal(t, maxBaseQty, created.Lines[0].BaseQty)
}

func TestDeletingConsumedInboundHandoverFails(t *testing.T) {
	svc, repo := newTestService(t)
	inbound, err := svc.CreateInboundHandover(adminCtx, inboundInput("SJ-0100",
		domain.InboundHandoverLineInput{ItemID: "brg-008", PackageQty: 10, ConversionFactor: 1, UnitPrice: decimal.NewFromInt(9000)}))
	require.NoError(t, err)

	req := createRequest(t, svc, adminCtx, "pgw-005", domain.RequestLineInput{ItemID: "brg-008", Qty: 4})
	_, err = handOver(svc, approveAll(t, svc, req))
	require.NoError(t, err)
	assert.Equal(t, 6, stockOf(t, svc, "brg-008"))

	before := snapshot(t, repo)
	err = svc.DeleteInboundHandover(adminCtx, inbound.ID)
	requireCode(t, err, apperr.CodeInsufficientStock)
	assert.Contains(t, err.Error(), inbound.ReferenceNumber)
	assert.Equal(t, before, snapshot(t, repo))

	_, err = svc.UpdateInboundHandover(adminCtx, inbound.ID, inboundInput("SJ-0100",
		domain.InboundHandoverLineInput{ItemID: "brg-008", PackageQty: 1, ConversionFactor: 1}))
	requireCode(t, err, apperr.CodeInsufficientStock)
	assert.Equal(t, before, snapshot(t, repo))

	_, err = svc.GetInboundHandover(adminCtx, inbound.ID)
	require.NoError(t, err)
}

func TestOpnameFinalizeAdjustsOnlyCountedDifferences(t *testing.T) {
	svc, _ := newTestService(t)
	a, err := svc.CreateItem(adminCtx, domain.ItemCreateRequest{Code: "opn-a", Name: "Barang A", Category: "Uji", Unit: "buah", InitialStock: 10})
	require.NoError(t, err)
	assert.Equal(t, "OPN-A", a.Code)
	b, err := svc.CreateItem(adminCtx, domain.ItemCreateRequest{Code: "OPN-B", Name: "Barang B", Category: "Uji", Unit: "buah", InitialStock: 5})
	require.NoError(t, err)

	session, err := svc.CreateOpnameSession(adminCtx, domain.OpnameCreateRequest{OperatorID: "pgw-002"})
	require.NoError(t, err)
	assert.Equal(t, "SO/2026/10/0001", session.Number)
	assert.Len(t, session.Lines, 10)

	session, err = svc.UpdateOpnameLine(adminCtx, session.ID, a.ID, domain.OpnameLineUpdateRequest{PhysicalCount: 7, Note: "rusak"})
	require.NoError(t, err)
	session, err = svc.UpdateOpnameLine(adminCtx, session.ID, b.ID, domain.OpnameLineUpdateRequest{PhysicalCount: 5})
	require.NoError(t, err)
	for _, line := range session.Lines {
		if line.Item.ID == a.ID {
			assert.Equal(t, 10, line.SystemStock)
			assert.Equal(t, -3, line.Variance)
		}
	}

	_, err = svc.UpdateOpnameLine(adminCtx, session.ID, "brg-404", domain.OpnameLineUpdateRequest{PhysicalCount: 1})
	requireCode(t, err, apperr.CodeNotFound)
	_, err = svc.UpdateOpnameLine(adminCtx, session.ID, a.ID, domain.OpnameLineUpdateRequest{PhysicalCount: -1})
	requireCode(t, err, apperr.CodeValidation)

	finalized, err := svc.FinalizeOpnameSession(adminCtx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OpnameCompleted, finalized.Status)
	require.NotNil(t, finalized.FinalizedAt)

	historyA, err := svc.ItemLedger(adminCtx, a.ID, 0)
	require.NoError(t, err)
	require.Len(t, historyA, 2)
	adjust := historyA[1]
	assert.Equal(t, domain.DirectionAdjust, adjust.Direction)
	assert.Equal(t, 3, adjust.QtyOut)
	assert.Equal(t, 7, adjust.ResultingBalance)
	assert.Equal(t, session.Number, adjust.SourceRef)
	assert.Equal(t, 7, stockOf(t, svc, a.ID))

	historyB, err := svc.ItemLedger(adminCtx, b.ID, 0)
	require.NoError(t, err)
	require.Len(t, historyB, 1)
	assert.Equal(t, domain.SourceOpening, historyB[0].SourceType)
	assert.Equal(t, 5, stockOf(t, svc, b.ID))

	_, err = svc.FinalizeOpnameSession(adminCtx, session.ID)
	requireCode(t, err, apperr.CodeInvalidState)
	_, err = svc.UpdateOpnameLine(adminCtx, session.ID, a.ID, domain.OpnameLineUpdateRequest{PhysicalCount: 1})
	requireCode(t, err, apperr.CodeInvalidState)
	requireLedgerConsistent(t, svc)
}

func TestOpnameCancelHasNoStockEffect(t *testing.T) {
	svc, repo := newTestService(t)
	session, err := svc.CreateOpnameSession(adminCtx, domain.OpnameCreateRequest{OperatorID: "pgw-002"})
	require.NoError(t, err)
	_, err = svc.UpdateOpnameLine(adminCtx, session.ID, "brg-001", domain.OpnameLineUpdateRequest{PhysicalCount: 1})
	require.NoError(t, err)
	before := snapshot(t, repo)

	cancelled, err := svc.CancelOpnameSession(adminCtx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OpnameCancelled, cancelled.Status)
	assert.Equal(t, before, snapshot(t, repo))

	_, err = svc.FinalizeOpnameSession(adminCtx, session.ID)
	requireCode(t, err, apperr.CodeInvalidState)
}

func TestConcurrentInboundHandoversSerialize(t *testing.T) {
	svc, _ := newTestService(t)
	item, err := svc.CreateItem(adminCtx, domain.ItemCreateRequest{Code: "CNC-001", Name: "Amplop", Category: "Uji", Unit: "pak"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateInboundHandover(adminCtx, inboundInput(fmt.Sprintf("SJ-CNC-%d", i),
				domain.InboundHandoverLineInput{ItemID: item.ID, PackageQty: 5, ConversionFactor: 1, UnitPrice: decimal.NewFromInt(1000)}))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 10, stockOf(t, svc, item.ID))
	history, err := svc.ItemLedger(adminCtx, item.ID, 0)
	require.NoError(t, err)
	balances := make([]int, 0, len(history))
	for _, entry := range history {
		balances = append(balances, entry.ResultingBalance)
	}
	assert.Equal(t, []int{5, 10}, balances)

	handovers, err := svc.ListInboundHandovers(adminCtx, 0)
	require.NoError(t, err)
	require.Len(t, handovers, 2)
	assert.NotEqual(t, handovers[0].ReferenceNumber, handovers[1].ReferenceNumber)
}

func TestConcurrentRequestsGetDistinctNumbers(t *testing.T) {
	svc, _ := newTestService(t)
	const n = 16

	var wg sync.WaitGroup
	numbers := make(chan string, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := adminCtx
			if i%2 == 0 {
				ctx = petugasCtx
			}
			req, err := svc.CreateRequest(ctx, domain.RequestCreateRequest{
				RequesterID: "pgw-003",
				Lines:       []domain.RequestLineInput{{ItemID: "brg-003", Qty: 1}},
			})
			if err != nil {
				t.Errorf("create request: %v", err)
				return
			}
			numbers <- req.Number
		}()
	}
	wg.Wait()
	close(numbers)

	got := make([]string, 0, n)
	for number := range numbers {
		got = append(got, number)
	}
	sort.Strings(got)
	require.Len(t, got, n)
	for i, number := range got {
		assert.Equal(t, fmt.Sprintf("SPB/2026/10/%04d", i+1), number)
	}
}

func TestSupervisorIsReadOnly(t *testing.T) {
	svc, repo := newTestService(t)
	before := snapshot(t, repo)

	_, err := svc.ListItems(supervisorCtx)
	require.NoError(t, err)
	_, err = svc.ListAuditLogs(supervisorCtx, 10)
	require.NoError(t, err)
	_, err = svc.RestockSuggestions(supervisorCtx)
	require.NoError(t, err)

	_, err = svc.CreateRequest(supervisorCtx, domain.RequestCreateRequest{
		Lines: []domain.RequestLineInput{{ItemID: "brg-001", Qty: 1}},
	})
	requireCode(t, err, apperr.CodeForbidden)
	_, err = svc.CreateInboundHandover(supervisorCtx, inboundInput("SJ-SPV",
		domain.InboundHandoverLineInput{ItemID: "brg-001", PackageQty: 1, ConversionFactor: 1}))
	requireCode(t, err, apperr.CodeForbidden)
	_, err = svc.CreateOpnameSession(supervisorCtx, domain.OpnameCreateRequest{OperatorID: "pgw-004"})
	requireCode(t, err, apperr.CodeForbidden)
	_, err = svc.CreateItem(supervisorCtx, domain.ItemCreateRequest{Code: "X", Name: "X", Category: "X", Unit: "X"})
	requireCode(t, err, apperr.CodeForbidden)

	_, err = svc.ListAuditLogs(petugasCtx, 10)
	requireCode(t, err, apperr.CodeForbidden)
	assert.Equal(t, before, snapshot(t, repo))
}

func TestMutationsAreAudited(t *testing.T) {
	svc, _ := newTestService(t)
	req := createRequest(t, svc, petugasCtx, "", domain.RequestLineInput{ItemID: "brg-001", Qty: 1})
	_, err := svc.CancelRequest(adminCtx, req.ID)
	require.NoError(t, err)

	logs, err := svc.ListAuditLogs(adminCtx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	actions := []string{logs[0].Action, logs[1].Action}
	assert.ElementsMatch(t, []string{"request_create", "request_cancel"}, actions)
	for _, entry := range logs {
		assert.Equal(t, req.ID, entry.EntityID)
	}
}

func TestRestockSuggestionsFollowStockMovements(t *testing.T) {
	repo, err := memory.NewSeeded()
	require.NoError(t, err)
	engine := restock.NewEngine(repo, cache.NewMemoryRestockCache(), time.Hour, 30)
	svc := New(repo, engine, Options{Now: func() time.Time { return testNow }})

	listed := func() []string {
		resp, err := svc.RestockSuggestions(adminCtx)
		require.NoError(t, err)
		codes := make([]string, 0, len(resp.Suggestions))
		for _, s := range resp.Suggestions {
			codes = append(codes, s.Item.Code)
		}
		return codes
	}

	assert.Contains(t, listed(), "KBR-002")

	_, err = svc.CreateInboundHandover(adminCtx, inboundInput("SJ-RST",
		domain.InboundHandoverLineInput{ItemID: "brg-008", PackageQty: 100, ConversionFactor: 1, UnitPrice: decimal.NewFromInt(7000)}))
	require.NoError(t, err)
	assert.NotContains(t, listed(), "KBR-002")
}

func TestLedgerReplaysAfterMixedWorkflow(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateInboundHandover(adminCtx, inboundInput("SJ-MIX",
		domain.InboundHandoverLineInput{ItemID: "brg-005", PackageQty: 2, ConversionFactor: 6, UnitPrice: decimal.NewFromInt(120000)},
		domain.InboundHandoverLineInput{ItemID: "brg-006", PackageQty: 3, ConversionFactor: 1, UnitPrice: decimal.NewFromInt(850000)},
	))
	require.NoError(t, err)

	req := createRequest(t, svc, petugasCtx, "",
		domain.RequestLineInput{ItemID: "brg-005", Qty: 20},
		domain.RequestLineInput{ItemID: "brg-006", Qty: 7},
	)
	handover, err := handOver(svc, approveAll(t, svc, req))
	require.NoError(t, err)

	session, err := svc.CreateOpnameSession(adminCtx, domain.OpnameCreateRequest{OperatorID: "pgw-002"})
	require.NoError(t, err)
	_, err = svc.UpdateOpnameLine(adminCtx, session.ID, "brg-005", domain.OpnameLineUpdateRequest{PhysicalCount: 5})
	require.NoError(t, err)
	_, err = svc.FinalizeOpnameSession(adminCtx, session.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteOutboundHandover(adminCtx, handover.ID))

	assert.Equal(t, 25, stockOf(t, svc, "brg-005"))
	assert.Equal(t, 7, stockOf(t, svc, "brg-006"))
	requireLedgerConsistent(t, svc)
}
