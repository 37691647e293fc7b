package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"persediaan/backend/internal/apperr"
	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/ledger"
	"persediaan/backend/internal/numbering"
	"persediaan/backend/internal/xid"
)

type inboundDraft struct {
	documentNumber string
	invoiceNumber  string
	documentDate   time.Time
	receivedDate   time.Time
	supplier       string
	approverID     string
	fundingAccount string
	note           string
	lines          []domain.InboundHandoverLine
	total          decimal.Decimal
}

func (d inboundDraft) applyTo(h *domain.InboundHandover) {
	h.DocumentNumber = d.documentNumber
	h.InvoiceNumber = d.invoiceNumber
	h.DocumentDate = d.documentDate
	h.ReceivedDate = d.receivedDate
	h.Supplier = d.supplier
	h.ApproverID = d.approverID
	h.FundingAccount = d.fundingAccount
	h.Note = d.note
	h.Lines = d.lines
	h.Total = d.total
}

// validateInbound checks a BAST Masuk input and converts package quantities
// into base units. Unit prices are per package.
func (s *Service) validateInbound(ctx context.Context, in domain.InboundHandoverInput) (inboundDraft, error) {
	documentDate, err := s.parseDate("document_date", in.DocumentDate)
	if err != nil {
		return inboundDraft{}, err
	}
	receivedDate := documentDate
	if strings.TrimSpace(in.ReceivedDate) != "" {
		if receivedDate, err = s.parseDate("received_date", in.ReceivedDate); err != nil {
			return inboundDraft{}, err
		}
	}

	d := inboundDraft{
		documentNumber: strings.TrimSpace(in.DocumentNumber),
		invoiceNumber:  strings.TrimSpace(in.InvoiceNumber),
		documentDate:   documentDate,
		receivedDate:   receivedDate,
		supplier:       strings.TrimSpace(in.Supplier),
		approverID:     strings.TrimSpace(in.ApproverID),
		fundingAccount: strings.TrimSpace(in.FundingAccount),
		note:           strings.TrimSpace(in.Note),
		total:          decimal.Zero,
	}

	var p problems
	if d.documentNumber == "" {
		p.addf("document_number is required")
	}
	if d.invoiceNumber == "" {
		p.addf("invoice_number is required")
	}
	if d.supplier == "" {
		p.addf("supplier is required")
	}
	if receivedDate.Before(documentDate) {
		p.addf("received_date must not precede document_date")
	}
	s.requireEmployee(ctx, &p, "approver_id", d.approverID)
	if len(in.Lines) == 0 {
		p.addf("at least one line is required")
	}

	ids := make([]string, 0, len(in.Lines))
	for _, line := range in.Lines {
		ids = append(ids, strings.TrimSpace(line.ItemID))
	}
	items, err := s.repo.GetItemsByIDs(ctx, ids)
	if err != nil {
		return inboundDraft{}, err
	}

	seen := make(map[string]bool, len(in.Lines))
	for i, line := range in.Lines {
		itemID := ids[i]
		item, ok := items[itemID]
		switch {
		case itemID == "":
			p.addf("line %d: item_id is required", i+1)
			continue
		case !ok:
			p.addf("line %d: item %s does not exist", i+1, itemID)
			continue
		case seen[itemID]:
			p.addf("line %d: item %s is listed twice", i+1, itemID)
			continue
		}
		seen[itemID] = true
		if line.PackageQty < 1 {
			p.addf("line %d: package_qty must be at least 1", i+1)
		}
		if line.ConversionFactor < 1 {
			p.addf("line %d: conversion_factor must be at least 1", i+1)
		}
		if line.PackageQty >= 1 && line.ConversionFactor >= 1 && line.PackageQty > maxBaseQty/line.ConversionFactor {
			p.addf("line %d: package_qty x conversion_factor exceeds %d", i+1, maxBaseQty)
		}
		if line.UnitPrice.IsNegative() {
			p.addf("line %d: unit_price must not be negative", i+1)
		}
		unit := strings.TrimSpace(line.PackageUnit)
		if unit == "" {
			unit = item.Unit
		}
		total := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.PackageQty))).Round(2)
		d.lines = append(d.lines, domain.InboundHandoverLine{
			ItemID:           itemID,
			PackageQty:       line.PackageQty,
			PackageUnit:      unit,
			ConversionFactor: line.ConversionFactor,
			BaseQty:          line.PackageQty * line.ConversionFactor,
			UnitPrice:        line.UnitPrice,
			LineTotal:        total,
		})
		d.total = d.total.Add(total)
	}
	if err := p.result("invalid inbound handover"); err != nil {
		return inboundDraft{}, err
	}
	return d, nil
}

// maxBaseQty is the largest base quantity the stock columns can hold.
const maxBaseQty = math.MaxInt32

func inboundMovement(h domain.InboundHandover, line domain.InboundHandoverLine) ledger.Movement {
	return ledger.Movement{
		ItemID:    line.ItemID,
		Direction: domain.DirectionIn,
		Qty:       line.BaseQty,
		Source:    ledger.Source{Type: domain.SourceInbound, Ref: h.ReferenceNumber},
	}
}

// reverseInbound takes the stock of a recorded BAST Masuk back out. It fails
// with INSUFFICIENT_STOCK when part of that stock was already handed out.
func reverseInbound(ctx context.Context, sc *txScope, h domain.InboundHandover) error {
	for _, line := range h.Lines {
		m := ledger.Reverse(inboundMovement(h, line))
		if err := sc.apply(ctx, m); err != nil {
			if typed := apperr.As(err); typed != nil && typed.Code() == apperr.CodeInsufficientStock {
				return apperr.Wrap(apperr.CodeInsufficientStock, err,
					fmt.Sprintf("cannot reverse %s: stock received for item %s was already consumed", h.ReferenceNumber, line.ItemID)).
					WithDetails(typed.Details())
			}
			return err
		}
	}
	return nil
}

func (s *Service) CreateInboundHandover(ctx context.Context, in domain.InboundHandoverInput) (domain.InboundHandoverView, error) {
	actor, err := requireRole(ctx, admins...)
	if err != nil {
		return domain.InboundHandoverView{}, err
	}
	draft, err := s.validateInbound(ctx, in)
	if err != nil {
		return domain.InboundHandoverView{}, err
	}

	now := s.now().UTC()
	handover := domain.InboundHandover{ID: xid.New("bastm"), CreatedBy: actor.Username, CreatedAt: now, UpdatedAt: now}
	draft.applyTo(&handover)

	err = s.mutate(ctx, numbering.KindInbound, func(ctx context.Context, sc *txScope) error {
		number, err := numbering.Next(ctx, sc.tx, numbering.KindInbound, handover.DocumentDate)
		if err != nil {
			return err
		}
		handover.ReferenceNumber = number
		if err := sc.tx.InsertInboundHandover(ctx, handover); err != nil {
			return err
		}
		if _, err := sc.tx.LockItems(ctx, lineItemIDs(handover.Lines, inboundItemID)); err != nil {
			return err
		}
		for _, line := range handover.Lines {
			if err := sc.apply(ctx, inboundMovement(handover, line)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.InboundHandoverView{}, err
	}

	s.logAudit(ctx, "inbound_create", "inbound_handover", handover.ID,
		fmt.Sprintf("reference=%s,document=%s,total=%s", handover.ReferenceNumber, handover.DocumentNumber, handover.Total.StringFixed(2)))
	return s.inboundView(ctx, handover)
}

// UpdateInboundHandover reverses the recorded lines and books the new ones
// in a single transaction. The reference number is kept.
func (s *Service) UpdateInboundHandover(ctx context.Context, id string, in domain.InboundHandoverInput) (domain.InboundHandoverView, error) {
	if _, err := requireRole(ctx, admins...); err != nil {
		return domain.InboundHandoverView{}, err
	}
	draft, err := s.validateInbound(ctx, in)
	if err != nil {
		return domain.InboundHandoverView{}, err
	}

	var updated domain.InboundHandover
	err = s.mutate(ctx, "", func(ctx context.Context, sc *txScope) error {
		handover, err := sc.tx.GetInboundHandoverForUpdate(ctx, id)
		if err != nil {
			return err
		}
		ids := append(lineItemIDs(handover.Lines, inboundItemID), lineItemIDs(draft.lines, inboundItemID)...)
		if _, err := sc.tx.LockItems(ctx, ids); err != nil {
			return err
		}
		if err := reverseInbound(ctx, sc, *handover); err != nil {
			return err
		}

		draft.applyTo(handover)
		handover.UpdatedAt = s.now().UTC()
		if err := sc.tx.UpdateInboundHandover(ctx, *handover); err != nil {
			return err
		}
		for _, line := range handover.Lines {
			if err := sc.apply(ctx, inboundMovement(*handover, line)); err != nil {
				return err
			}
		}
		updated = *handover
		return nil
	})
	if err != nil {
		return domain.InboundHandoverView{}, err
	}

	s.logAudit(ctx, "inbound_update", "inbound_handover", updated.ID,
		fmt.Sprintf("reference=%s,lines=%d,total=%s", updated.ReferenceNumber, len(updated.Lines), updated.Total.StringFixed(2)))
	return s.inboundView(ctx, updated)
}

func (s *Service) DeleteInboundHandover(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, admins...); err != nil {
		return err
	}

	var reference string
	err := s.mutate(ctx, "", func(ctx context.Context, sc *txScope) error {
		handover, err := sc.tx.GetInboundHandoverForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if _, err := sc.tx.LockItems(ctx, lineItemIDs(handover.Lines, inboundItemID)); err != nil {
			return err
		}
		if err := reverseInbound(ctx, sc, *handover); err != nil {
			return err
		}
		reference = handover.ReferenceNumber
		return sc.tx.DeleteInboundHandover(ctx, handover.ID)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "inbound_delete", "inbound_handover", id, "reference="+reference)
	return nil
}

func (s *Service) GetInboundHandover(ctx context.Context, id string) (domain.InboundHandoverView, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return domain.InboundHandoverView{}, err
	}
	handover, err := s.repo.GetInboundHandover(ctx, id)
	if err != nil {
		return domain.InboundHandoverView{}, err
	}
	return s.inboundView(ctx, *handover)
}

func (s *Service) ListInboundHandovers(ctx context.Context, limit int) ([]domain.InboundHandoverView, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return nil, err
	}
	handovers, err := s.repo.ListInboundHandovers(ctx, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	r, err := s.loadRefs(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.InboundHandoverView, 0, len(handovers))
	for _, h := range handovers {
		views = append(views, r.inboundView(h))
	}
	return views, nil
}

func (s *Service) inboundView(ctx context.Context, h domain.InboundHandover) (domain.InboundHandoverView, error) {
	r, err := s.loadRefs(ctx)
	if err != nil {
		return domain.InboundHandoverView{}, err
	}
	return r.inboundView(h), nil
}

func inboundItemID(l domain.InboundHandoverLine) string { return l.ItemID }
