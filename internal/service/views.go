package service

import (
	"context"

	"persediaan/backend/internal/domain"
)

// refs resolves item and employee ids into the names shown by projections.
type refs struct {
	items     map[string]domain.Item
	employees map[string]domain.Employee
}

func (s *Service) loadRefs(ctx context.Context) (refs, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return refs{}, err
	}
	employees, err := s.repo.ListEmployees(ctx)
	if err != nil {
		return refs{}, err
	}
	r := refs{
		items:     make(map[string]domain.Item, len(items)),
		employees: make(map[string]domain.Employee, len(employees)),
	}
	for _, item := range items {
		r.items[item.ID] = item
	}
	for _, e := range employees {
		r.employees[e.ID] = e
	}
	return r, nil
}

func (r refs) item(id string) domain.ItemRef {
	item, ok := r.items[id]
	if !ok {
		return domain.ItemRef{ID: id, Name: id}
	}
	return itemRef(item)
}

func itemRef(item domain.Item) domain.ItemRef {
	return domain.ItemRef{ID: item.ID, Code: item.Code, Name: item.Name, Unit: item.Unit}
}

func (r refs) employee(id string) domain.EmployeeRef {
	e, ok := r.employees[id]
	if !ok {
		return domain.EmployeeRef{ID: id, Name: id}
	}
	return domain.EmployeeRef{ID: e.ID, NIP: e.NIP, Name: e.Name}
}

func itemStockView(item domain.Item) domain.ItemStockView {
	return domain.ItemStockView{
		Item:     item,
		LowStock: item.MinStock > 0 && item.Stock <= item.MinStock,
	}
}

func (r refs) ledgerEntryView(entry domain.LedgerEntry) domain.LedgerEntryView {
	return domain.LedgerEntryView{LedgerEntry: entry, Item: r.item(entry.ItemID)}
}

func (r refs) requestView(req domain.Request) domain.RequestView {
	lines := make([]domain.RequestLineView, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, domain.RequestLineView{Item: r.item(line.ItemID), Qty: line.Qty, Note: line.Note})
	}
	return domain.RequestView{
		ID:        req.ID,
		Number:    req.Number,
		Date:      req.Date.Format(dateLayout),
		Status:    req.Status,
		Purpose:   req.Purpose,
		Requester: r.employee(req.RequesterID),
		Lines:     lines,
		CreatedBy: req.CreatedBy,
		CreatedAt: req.CreatedAt,
	}
}

func (r refs) orderView(order domain.DistributionOrder, requestNumber string) domain.DistributionOrderView {
	lines := make([]domain.DistributionOrderLineView, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, domain.DistributionOrderLineView{
			Item:         r.item(line.ItemID),
			RequestedQty: line.RequestedQty,
			ApprovedQty:  line.ApprovedQty,
		})
	}
	view := domain.DistributionOrderView{
		ID:            order.ID,
		Number:        order.Number,
		Date:          order.Date.Format(dateLayout),
		Status:        order.Status,
		RequestID:     order.RequestID,
		RequestNumber: requestNumber,
		Approver:      r.employee(order.ApproverID),
		Recipient:     r.employee(order.RecipientID),
		Note:          order.Note,
		Lines:         lines,
		CreatedAt:     order.CreatedAt,
	}
	if order.PerformerID != "" {
		performer := r.employee(order.PerformerID)
		view.Performer = &performer
	}
	return view
}

func (r refs) outboundView(h domain.OutboundHandover, orderNumber string) domain.OutboundHandoverView {
	lines := make([]domain.OutboundHandoverLineView, 0, len(h.Lines))
	for _, line := range h.Lines {
		lines = append(lines, domain.OutboundHandoverLineView{
			Item:      r.item(line.ItemID),
			Qty:       line.Qty,
			UnitPrice: line.UnitPrice,
			TaxRate:   line.TaxRate,
			TaxAmount: line.TaxAmount,
			LineTotal: line.LineTotal,
		})
	}
	return domain.OutboundHandoverView{
		ID:           h.ID,
		Number:       h.Number,
		Date:         h.Date.Format(dateLayout),
		OrderID:      h.OrderID,
		OrderNumber:  orderNumber,
		HandedOverBy: r.employee(h.HandedOverBy),
		ReceivedBy:   r.employee(h.ReceivedBy),
		Lines:        lines,
		Subtotal:     h.Subtotal,
		TaxTotal:     h.TaxTotal,
		GrandTotal:   h.GrandTotal,
		CreatedAt:    h.CreatedAt,
	}
}

func (r refs) inboundView(h domain.InboundHandover) domain.InboundHandoverView {
	lines := make([]domain.InboundHandoverLineView, 0, len(h.Lines))
	for _, line := range h.Lines {
		lines = append(lines, domain.InboundHandoverLineView{
			Item:             r.item(line.ItemID),
			PackageQty:       line.PackageQty,
			PackageUnit:      line.PackageUnit,
			ConversionFactor: line.ConversionFactor,
			BaseQty:          line.BaseQty,
			UnitPrice:        line.UnitPrice,
			LineTotal:        line.LineTotal,
		})
	}
	return domain.InboundHandoverView{
		ID:              h.ID,
		ReferenceNumber: h.ReferenceNumber,
		DocumentNumber:  h.DocumentNumber,
		InvoiceNumber:   h.InvoiceNumber,
		DocumentDate:    h.DocumentDate.Format(dateLayout),
		ReceivedDate:    h.ReceivedDate.Format(dateLayout),
		Supplier:        h.Supplier,
		Approver:        r.employee(h.ApproverID),
		FundingAccount:  h.FundingAccount,
		Note:            h.Note,
		Lines:           lines,
		Total:           h.Total,
		CreatedAt:       h.CreatedAt,
	}
}

func (r refs) opnameView(session domain.OpnameSession) domain.OpnameSessionView {
	lines := make([]domain.OpnameLineView, 0, len(session.Lines))
	for _, line := range session.Lines {
		lines = append(lines, domain.OpnameLineView{
			Item:          r.item(line.ItemID),
			SystemStock:   line.SystemStock,
			PhysicalCount: line.PhysicalCount,
			Variance:      line.Variance,
			Note:          line.Note,
		})
	}
	return domain.OpnameSessionView{
		ID:          session.ID,
		Number:      session.Number,
		Date:        session.Date.Format(dateLayout),
		Status:      session.Status,
		Operator:    r.employee(session.OperatorID),
		Note:        session.Note,
		Lines:       lines,
		CreatedAt:   session.CreatedAt,
		FinalizedAt: session.FinalizedAt,
	}
}
