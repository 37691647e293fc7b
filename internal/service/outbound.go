package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"persediaan/backend/internal/apperr"
	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/ledger"
	"persediaan/backend/internal/numbering"
	"persediaan/backend/internal/xid"
)

var hundred = decimal.NewFromInt(100)

// priceOutboundLine computes tax and total for qty units.
func priceOutboundLine(itemID string, qty int, unitPrice, taxRate decimal.Decimal) domain.OutboundHandoverLine {
	base := unitPrice.Mul(decimal.NewFromInt(int64(qty)))
	tax := base.Mul(taxRate).Div(hundred).Round(2)
	return domain.OutboundHandoverLine{
		ItemID:    itemID,
		Qty:       qty,
		UnitPrice: unitPrice,
		TaxRate:   taxRate,
		TaxAmount: tax,
		LineTotal: base.Add(tax),
	}
}

func outboundMovement(h domain.OutboundHandover, line domain.OutboundHandoverLine) ledger.Movement {
	return ledger.Movement{
		ItemID:    line.ItemID,
		Direction: domain.DirectionOut,
		Qty:       line.Qty,
		Source:    ledger.Source{Type: domain.SourceOutbound, Ref: h.Number},
	}
}

// CreateOutboundHandover hands the approved quantities of an SPPB to the
// recipient. Stock leaves in the same transaction that completes the order.
func (s *Service) CreateOutboundHandover(ctx context.Context, in domain.OutboundHandoverCreateRequest) (domain.OutboundHandoverView, error) {
	actor, err := requireRole(ctx, admins...)
	if err != nil {
		return domain.OutboundHandoverView{}, err
	}

	date, err := s.parseDate("date", in.Date)
	if err != nil {
		return domain.OutboundHandoverView{}, err
	}
	var p problems
	if strings.TrimSpace(in.OrderID) == "" {
		p.addf("order_id is required")
	}
	s.requireEmployee(ctx, &p, "handed_over_by", in.HandedOverBy)
	s.requireEmployee(ctx, &p, "received_by", in.ReceivedBy)
	if len(in.Lines) == 0 {
		p.addf("at least one line is required")
	}
	prices := make(map[string]domain.OutboundHandoverLineInput, len(in.Lines))
	for i, line := range in.Lines {
		if _, dup := prices[line.ItemID]; dup {
			p.addf("line %d: item %s is listed twice", i+1, line.ItemID)
		}
		prices[line.ItemID] = line
		if line.UnitPrice.IsNegative() {
			p.addf("line %d: unit_price must not be negative", i+1)
		}
		if line.TaxRate.IsNegative() || line.TaxRate.GreaterThan(hundred) {
			p.addf("line %d: tax_rate must be between 0 and 100", i+1)
		}
	}
	if err := p.result("invalid outbound handover"); err != nil {
		return domain.OutboundHandoverView{}, err
	}

	handover := domain.OutboundHandover{
		ID:           xid.New("bastk"),
		Date:         date,
		OrderID:      in.OrderID,
		HandedOverBy: in.HandedOverBy,
		ReceivedBy:   in.ReceivedBy,
		CreatedBy:    actor.Username,
		CreatedAt:    s.now().UTC(),
	}
	var orderNumber string

	err = s.mutate(ctx, numbering.KindOutbound, func(ctx context.Context, sc *txScope) error {
		order, err := sc.tx.GetDistributionOrderForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderAwaitingHandover {
			return apperr.InvalidState("distribution order %s is %s and cannot be handed over", order.Number, order.Status)
		}
		existing, err := sc.tx.FindOutboundHandoverByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.InvalidState("distribution order %s already has handover %s", order.Number, existing.Number)
		}

		var lp problems
		lines := make([]domain.OutboundHandoverLine, 0, len(order.Lines))
		for _, line := range order.Lines {
			price, ok := prices[line.ItemID]
			if !ok {
				lp.addf("item %s of order %s has no price line", line.ItemID, order.Number)
				continue
			}
			lines = append(lines, priceOutboundLine(line.ItemID, line.ApprovedQty, price.UnitPrice, price.TaxRate))
		}
		if len(prices) > len(order.Lines) {
			for itemID := range prices {
				if !slices.ContainsFunc(order.Lines, func(l domain.DistributionOrderLine) bool { return l.ItemID == itemID }) {
					lp.addf("item %s is not part of order %s", itemID, order.Number)
				}
			}
		}
		if err := lp.result("invalid outbound handover"); err != nil {
			return err
		}
		slices.SortFunc(lines, func(a, b domain.OutboundHandoverLine) int { return strings.Compare(a.ItemID, b.ItemID) })

		number, err := numbering.Next(ctx, sc.tx, numbering.KindOutbound, date)
		if err != nil {
			return err
		}
		handover.Number = number
		handover.Lines = lines
		handover.Subtotal, handover.TaxTotal, handover.GrandTotal = decimal.Zero, decimal.Zero, decimal.Zero
		for _, line := range lines {
			handover.Subtotal = handover.Subtotal.Add(line.LineTotal.Sub(line.TaxAmount))
			handover.TaxTotal = handover.TaxTotal.Add(line.TaxAmount)
			handover.GrandTotal = handover.GrandTotal.Add(line.LineTotal)
		}

		if _, err := sc.tx.LockItems(ctx, lineItemIDs(lines, func(l domain.OutboundHandoverLine) string { return l.ItemID })); err != nil {
			return err
		}
		for _, line := range lines {
			if err := sc.apply(ctx, outboundMovement(handover, line)); err != nil {
				return err
			}
		}

		order.Status = domain.OrderCompleted
		order.PerformerID = handover.HandedOverBy
		order.UpdatedAt = handover.CreatedAt
		if err := sc.tx.UpdateDistributionOrder(ctx, *order); err != nil {
			return err
		}
		if err := completeRequest(ctx, sc, order.RequestID, handover.CreatedAt); err != nil {
			return err
		}
		orderNumber = order.Number
		return sc.tx.InsertOutboundHandover(ctx, handover)
	})
	if err != nil {
		return domain.OutboundHandoverView{}, err
	}

	s.logAudit(ctx, "outbound_create", "outbound_handover", handover.ID,
		fmt.Sprintf("number=%s,order=%s,grand_total=%s", handover.Number, orderNumber, handover.GrandTotal.StringFixed(2)))
	r, err := s.loadRefs(ctx)
	if err != nil {
		return domain.OutboundHandoverView{}, err
	}
	return r.outboundView(handover, orderNumber), nil
}

// completeRequest closes the SPB of a handed-over order. A request completed
// by an earlier, since deleted handover is left as is.
func completeRequest(ctx context.Context, sc *txScope, requestID string, at time.Time) error {
	req, err := sc.tx.GetRequestForUpdate(ctx, requestID)
	if err != nil {
		return err
	}
	switch req.Status {
	case domain.RequestCompleted:
		return nil
	case domain.RequestAwaitingOrder:
		req.Status = domain.RequestCompleted
		req.UpdatedAt = at
		return sc.tx.UpdateRequest(ctx, *req)
	default:
		return apperr.InvalidState("request %s is %s and cannot be completed", req.Number, req.Status)
	}
}

// DeleteOutboundHandover puts the handed-over stock back with correction
// entries and reopens the order for a new handover. The request stays
// Completed.
func (s *Service) DeleteOutboundHandover(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, admins...); err != nil {
		return err
	}

	var number string
	err := s.mutate(ctx, "", func(ctx context.Context, sc *txScope) error {
		handover, err := sc.tx.GetOutboundHandoverForUpdate(ctx, id)
		if err != nil {
			return err
		}
		order, err := sc.tx.GetDistributionOrderForUpdate(ctx, handover.OrderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderCompleted {
			return apperr.InvalidState("distribution order %s is %s, expected %s", order.Number, order.Status, domain.OrderCompleted)
		}

		if _, err := sc.tx.LockItems(ctx, lineItemIDs(handover.Lines, func(l domain.OutboundHandoverLine) string { return l.ItemID })); err != nil {
			return err
		}
		for _, line := range handover.Lines {
			if err := sc.apply(ctx, ledger.Reverse(outboundMovement(*handover, line))); err != nil {
				return err
			}
		}

		order.Status = domain.OrderAwaitingHandover
		order.PerformerID = ""
		order.UpdatedAt = s.now().UTC()
		if err := sc.tx.UpdateDistributionOrder(ctx, *order); err != nil {
			return err
		}
		number = handover.Number
		return sc.tx.DeleteOutboundHandover(ctx, handover.ID)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "outbound_delete", "outbound_handover", id, "number="+number)
	return nil
}

func (s *Service) GetOutboundHandover(ctx context.Context, id string) (domain.OutboundHandoverView, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return domain.OutboundHandoverView{}, err
	}
	handover, err := s.repo.GetOutboundHandover(ctx, id)
	if err != nil {
		return domain.OutboundHandoverView{}, err
	}
	r, err := s.loadRefs(ctx)
	if err != nil {
		return domain.OutboundHandoverView{}, err
	}
	number, err := s.orderNumber(ctx, handover.OrderID)
	if err != nil {
		return domain.OutboundHandoverView{}, err
	}
	return r.outboundView(*handover, number), nil
}

func (s *Service) ListOutboundHandovers(ctx context.Context, limit int) ([]domain.OutboundHandoverView, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return nil, err
	}
	handovers, err := s.repo.ListOutboundHandovers(ctx, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	r, err := s.loadRefs(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.OutboundHandoverView, 0, len(handovers))
	for _, h := range handovers {
		number, err := s.orderNumber(ctx, h.OrderID)
		if err != nil {
			return nil, err
		}
		views = append(views, r.outboundView(h, number))
	}
	return views, nil
}

func (s *Service) orderNumber(ctx context.Context, id string) (string, error) {
	order, err := s.repo.GetDistributionOrder(ctx, id)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return "", nil
		}
		return "", err
	}
	return order.Number, nil
}
