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

func (s *Service) requestLines(ctx context.Context, p *problems, inputs []domain.RequestLineInput) []domain.RequestLine {
	if len(inputs) == 0 {
		p.addf("at least one line is required")
		return nil
	}
	seen := make(map[string]bool, len(inputs))
	lines := make([]domain.RequestLine, 0, len(inputs))
	for i, in := range inputs {
		itemID := strings.TrimSpace(in.ItemID)
		switch {
		case itemID == "":
			p.addf("line %d: item_id is required", i+1)
			continue
		case seen[itemID]:
			p.addf("line %d: item %s is listed twice", i+1, itemID)
			continue
		}
		seen[itemID] = true
		if in.Qty < 1 {
			p.addf("line %d: qty must be at least 1", i+1)
		}
		lines = append(lines, domain.RequestLine{ItemID: itemID, Qty: in.Qty, Note: strings.TrimSpace(in.Note)})
	}
	s.requireItems(ctx, p, lineItemIDs(lines, func(l domain.RequestLine) string { return l.ItemID }))
	return lines
}

// ownsRequest lets a petugas touch only requests filed under its own
// employee identity.
func ownsRequest(actor domain.Actor, req domain.Request) error {
	if actor.Role != domain.RolePetugas {
		return nil
	}
	if actor.EmployeeID == "" || actor.EmployeeID != req.RequesterID {
		return apperr.Forbidden("petugas may only act on their own requests")
	}
	return nil
}

// CreateRequest files an SPB. A petugas always files for itself.
func (s *Service) CreateRequest(ctx context.Context, in domain.RequestCreateRequest) (domain.RequestView, error) {
	actor, err := requireRole(ctx, writers...)
	if err != nil {
		return domain.RequestView{}, err
	}

	requesterID := strings.TrimSpace(in.RequesterID)
	if actor.Role == domain.RolePetugas {
		if actor.EmployeeID == "" {
			return domain.RequestView{}, apperr.Forbidden("account is not linked to an employee")
		}
		if requesterID == "" {
			requesterID = actor.EmployeeID
		}
		if requesterID != actor.EmployeeID {
			return domain.RequestView{}, apperr.Forbidden("petugas may only file requests for themselves")
		}
	}

	var p problems
	date, err := s.parseDate("date", in.Date)
	if err != nil {
		return domain.RequestView{}, err
	}
	s.requireEmployee(ctx, &p, "requester_id", requesterID)
	lines := s.requestLines(ctx, &p, in.Lines)
	if err := p.result("invalid request"); err != nil {
		return domain.RequestView{}, err
	}

	now := s.now().UTC()
	req := domain.Request{
		ID:          xid.New("spb"),
		Date:        date,
		RequesterID: requesterID,
		Purpose:     strings.TrimSpace(in.Purpose),
		Status:      domain.RequestAwaitingOrder,
		Lines:       lines,
		CreatedBy:   actor.Username,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.mutate(ctx, numbering.KindRequest, func(ctx context.Context, sc *txScope) error {
		number, err := numbering.Next(ctx, sc.tx, numbering.KindRequest, date)
		if err != nil {
			return err
		}
		req.Number = number
		return sc.tx.InsertRequest(ctx, req)
	})
	if err != nil {
		return domain.RequestView{}, err
	}

	s.logAudit(ctx, "request_create", "request", req.ID, fmt.Sprintf("number=%s,lines=%d", req.Number, len(req.Lines)))
	return s.requestView(ctx, req)
}

// UpdateRequest replaces the date, purpose and every line of a pending SPB.
func (s *Service) UpdateRequest(ctx context.Context, id string, in domain.RequestUpdateRequest) (domain.RequestView, error) {
	actor, err := requireRole(ctx, writers...)
	if err != nil {
		return domain.RequestView{}, err
	}

	var p problems
	date, err := s.parseDate("date", in.Date)
	if err != nil {
		return domain.RequestView{}, err
	}
	lines := s.requestLines(ctx, &p, in.Lines)
	if err := p.result("invalid request"); err != nil {
		return domain.RequestView{}, err
	}

	var updated domain.Request
	err = s.mutate(ctx, "", func(ctx context.Context, sc *txScope) error {
		req, err := sc.tx.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := ownsRequest(actor, *req); err != nil {
			return err
		}
		if req.Status != domain.RequestAwaitingOrder {
			return apperr.InvalidState("request %s is %s and can no longer be edited", req.Number, req.Status)
		}
		if err := noOrderYet(ctx, sc, *req); err != nil {
			return err
		}
		// The number keeps its original period even when the date moves.
		req.Date = date
		req.Purpose = strings.TrimSpace(in.Purpose)
		req.Lines = lines
		req.UpdatedAt = s.now().UTC()
		if err := sc.tx.UpdateRequest(ctx, *req); err != nil {
			return err
		}
		updated = *req
		return nil
	})
	if err != nil {
		return domain.RequestView{}, err
	}

	s.logAudit(ctx, "request_update", "request", updated.ID, fmt.Sprintf("number=%s,lines=%d", updated.Number, len(updated.Lines)))
	return s.requestView(ctx, updated)
}

func (s *Service) DeleteRequest(ctx context.Context, id string) error {
	actor, err := requireRole(ctx, writers...)
	if err != nil {
		return err
	}

	var number string
	err = s.mutate(ctx, "", func(ctx context.Context, sc *txScope) error {
		req, err := sc.tx.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := ownsRequest(actor, *req); err != nil {
			return err
		}
		if req.Status != domain.RequestAwaitingOrder {
			return apperr.InvalidState("request %s is %s and can no longer be deleted", req.Number, req.Status)
		}
		if err := noOrderYet(ctx, sc, *req); err != nil {
			return err
		}
		number = req.Number
		return sc.tx.DeleteRequest(ctx, req.ID)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "request_delete", "request", id, "number="+number)
	return nil
}

func (s *Service) CancelRequest(ctx context.Context, id string) (domain.RequestView, error) {
	if _, err := requireRole(ctx, admins...); err != nil {
		return domain.RequestView{}, err
	}

	var cancelled domain.Request
	err := s.mutate(ctx, "", func(ctx context.Context, sc *txScope) error {
		req, err := sc.tx.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != domain.RequestAwaitingOrder {
			return apperr.InvalidState("request %s is %s and cannot be cancelled", req.Number, req.Status)
		}
		if err := noOrderYet(ctx, sc, *req); err != nil {
			return err
		}
		req.Status = domain.RequestCancelled
		req.UpdatedAt = s.now().UTC()
		if err := sc.tx.UpdateRequest(ctx, *req); err != nil {
			return err
		}
		cancelled = *req
		return nil
	})
	if err != nil {
		return domain.RequestView{}, err
	}

	s.logAudit(ctx, "request_cancel", "request", cancelled.ID, "number="+cancelled.Number)
	return s.requestView(ctx, cancelled)
}

func (s *Service) GetRequest(ctx context.Context, id string) (domain.RequestView, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return domain.RequestView{}, err
	}
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return domain.RequestView{}, err
	}
	return s.requestView(ctx, *req)
}

func (s *Service) ListRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.RequestView, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return nil, err
	}
	filter.Limit = clampLimit(filter.Limit)
	requests, err := s.repo.ListRequests(ctx, filter)
	if err != nil {
		return nil, err
	}
	r, err := s.loadRefs(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.RequestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, r.requestView(req))
	}
	return views, nil
}

func (s *Service) requestView(ctx context.Context, req domain.Request) (domain.RequestView, error) {
	r, err := s.loadRefs(ctx)
	if err != nil {
		return domain.RequestView{}, err
	}
	return r.requestView(req), nil
}
