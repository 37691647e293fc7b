package service

import (
	"context"
	"fmt"
	"strings"

	"persediaan/backend/internal/apperr"
	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/numbering"
	"persediaan/backend/internal/xid"
)

// CreateDistributionOrder issues the SPPB for a pending request. The request
// stays AwaitingOrder until the order is handed over.
func (s *Service) CreateDistributionOrder(ctx context.Context, in domain.DistributionOrderCreateRequest) (domain.DistributionOrderView, error) {
	actor, err := requireRole(ctx, admins...)
	if err != nil {
		return domain.DistributionOrderView{}, err
	}

	date, err := s.parseDate("date", in.Date)
	if err != nil {
		return domain.DistributionOrderView{}, err
	}
	var p problems
	if strings.TrimSpace(in.RequestID) == "" {
		p.addf("request_id is required")
	}
	s.requireEmployee(ctx, &p, "approver_id", in.ApproverID)
	s.requireEmployee(ctx, &p, "recipient_id", in.RecipientID)
	if len(in.Lines) == 0 {
		p.addf("at least one line is required")
	}
	seen := make(map[string]bool, len(in.Lines))
	for i, line := range in.Lines {
		if seen[line.ItemID] {
			p.addf("line %d: item %s is listed twice", i+1, line.ItemID)
		}
		seen[line.ItemID] = true
		if line.ApprovedQty < 1 {
			p.addf("line %d: approved_qty must be at least 1", i+1)
		}
	}
	if err := p.result("invalid distribution order"); err != nil {
		return domain.DistributionOrderView{}, err
	}

	now := s.now().UTC()
	order := domain.DistributionOrder{
		ID:          xid.New("sppb"),
		Date:        date,
		RequestID:   in.RequestID,
		ApproverID:  in.ApproverID,
		RecipientID: in.RecipientID,
		Status:      domain.OrderAwaitingHandover,
		Note:        strings.TrimSpace(in.Note),
		CreatedBy:   actor.Username,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var requestNumber string

	err = s.mutate(ctx, numbering.KindDistributionOrder, func(ctx context.Context, sc *txScope) error {
		req, err := sc.tx.GetRequestForUpdate(ctx, in.RequestID)
		if err != nil {
			return err
		}
		if req.Status != domain.RequestAwaitingOrder {
			return apperr.InvalidState("request %s is %s and cannot receive a distribution order", req.Number, req.Status)
		}
		if err := noOrderYet(ctx, sc, *req); err != nil {
			return err
		}
		requestNumber = req.Number

		requested := make(map[string]int, len(req.Lines))
		for _, line := range req.Lines {
			requested[line.ItemID] = line.Qty
		}
		var lp problems
		lines := make([]domain.DistributionOrderLine, 0, len(in.Lines))
		for i, line := range in.Lines {
			qty, ok := requested[line.ItemID]
			if !ok {
				lp.addf("line %d: item %s is not part of request %s", i+1, line.ItemID, req.Number)
				continue
			}
			if line.ApprovedQty > qty {
				lp.addf("line %d: approved_qty %d exceeds requested %d", i+1, line.ApprovedQty, qty)
			}
			lines = append(lines, domain.DistributionOrderLine{
				ItemID:       line.ItemID,
				RequestedQty: qty,
				ApprovedQty:  line.ApprovedQty,
			})
		}
		if err := lp.result("invalid distribution order"); err != nil {
			return err
		}

		number, err := numbering.Next(ctx, sc.tx, numbering.KindDistributionOrder, date)
		if err != nil {
			return err
		}
		order.Number = number
		order.Lines = lines
		return sc.tx.InsertDistributionOrder(ctx, order)
	})
	if err != nil {
		return domain.DistributionOrderView{}, err
	}

	s.logAudit(ctx, "order_create", "distribution_order", order.ID, fmt.Sprintf("number=%s,request=%s", order.Number, requestNumber))
	return s.orderView(ctx, order)
}

// CancelDistributionOrder cancels a pending order. A request that was never
// handed over is cancelled with it; a Completed request keeps its status.
func (s *Service) CancelDistributionOrder(ctx context.Context, id string) (domain.DistributionOrderView, error) {
	if _, err := requireRole(ctx, admins...); err != nil {
		return domain.DistributionOrderView{}, err
	}

	var cancelled domain.DistributionOrder
	err := s.mutate(ctx, "", func(ctx context.Context, sc *txScope) error {
		order, err := sc.tx.GetDistributionOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderAwaitingHandover {
			return apperr.InvalidState("distribution order %s is %s and cannot be cancelled", order.Number, order.Status)
		}
		now := s.now().UTC()
		order.Status = domain.OrderCancelled
		order.UpdatedAt = now
		if err := sc.tx.UpdateDistributionOrder(ctx, *order); err != nil {
			return err
		}

		req, err := sc.tx.GetRequestForUpdate(ctx, order.RequestID)
		if err != nil {
			return err
		}
		if req.Status == domain.RequestAwaitingOrder {
			req.Status = domain.RequestCancelled
			req.UpdatedAt = now
			if err := sc.tx.UpdateRequest(ctx, *req); err != nil {
				return err
			}
		}
		cancelled = *order
		return nil
	})
	if err != nil {
		return domain.DistributionOrderView{}, err
	}

	s.logAudit(ctx, "order_cancel", "distribution_order", cancelled.ID, "number="+cancelled.Number)
	return s.orderView(ctx, cancelled)
}

// DeleteDistributionOrder removes an order that never reached handover. The
// linked request keeps its status.
func (s *Service) DeleteDistributionOrder(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, admins...); err != nil {
		return err
	}

	var number string
	err := s.mutate(ctx, "", func(ctx context.Context, sc *txScope) error {
		order, err := sc.tx.GetDistributionOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderCompleted {
			return apperr.InvalidState("distribution order %s is %s and cannot be deleted", order.Number, order.Status)
		}
		number = order.Number
		return sc.tx.DeleteDistributionOrder(ctx, order.ID)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "order_delete", "distribution_order", id, "number="+number)
	return nil
}

// noOrderYet rejects changes to a request that already has an SPPB.
func noOrderYet(ctx context.Context, sc *txScope, req domain.Request) error {
	order, err := sc.tx.FindDistributionOrderByRequest(ctx, req.ID)
	if err != nil {
		return err
	}
	if order != nil {
		return apperr.InvalidState("request %s already has distribution order %s", req.Number, order.Number)
	}
	return nil
}

func (s *Service) GetDistributionOrder(ctx context.Context, id string) (domain.DistributionOrderView, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return domain.DistributionOrderView{}, err
	}
	order, err := s.repo.GetDistributionOrder(ctx, id)
	if err != nil {
		return domain.DistributionOrderView{}, err
	}
	return s.orderView(ctx, *order)
}

func (s *Service) ListDistributionOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.DistributionOrderView, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return nil, err
	}
	orders, err := s.repo.ListDistributionOrders(ctx, status, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	r, err := s.loadRefs(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.DistributionOrderView, 0, len(orders))
	for _, order := range orders {
		number, err := s.requestNumber(ctx, order.RequestID)
		if err != nil {
			return nil, err
		}
		views = append(views, r.orderView(order, number))
	}
	return views, nil
}

func (s *Service) orderView(ctx context.Context, order domain.DistributionOrder) (domain.DistributionOrderView, error) {
	r, err := s.loadRefs(ctx)
	if err != nil {
		return domain.DistributionOrderView{}, err
	}
	number, err := s.requestNumber(ctx, order.RequestID)
	if err != nil {
		return domain.DistributionOrderView{}, err
	}
	return r.orderView(order, number), nil
}

func (s *Service) requestNumber(ctx context.Context, id string) (string, error) {
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return "", nil
		}
		return "", err
	}
	return req.Number, nil
}
