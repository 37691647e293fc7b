package service

import (
	"context"
	"fmt"
	"strings"

	"persediaan/backend/internal/apperr"
	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/ledger"
	"persediaan/backend/internal/numbering"
	"persediaan/backend/internal/xid"
)

// CreateOpnameSession freezes the current stock of every item as the
// system count of a new draft session.
func (s *Service) CreateOpnameSession(ctx context.Context, in domain.OpnameCreateRequest) (domain.OpnameSessionView, error) {
	actor, err := requireRole(ctx, admins...)
	if err != nil {
		return domain.OpnameSessionView{}, err
	}
	date, err := s.parseDate("date", in.Date)
	if err != nil {
		return domain.OpnameSessionView{}, err
	}
	var p problems
	s.requireEmployee(ctx, &p, "operator_id", in.OperatorID)
	if err := p.result("invalid stock opname"); err != nil {
		return domain.OpnameSessionView{}, err
	}

	session := domain.OpnameSession{
		ID:         xid.New("so"),
		Date:       date,
		OperatorID: in.OperatorID,
		Status:     domain.OpnameDraft,
		Note:       strings.TrimSpace(in.Note),
		CreatedBy:  actor.Username,
		CreatedAt:  s.now().UTC(),
	}
	err = s.mutate(ctx, numbering.KindOpname, func(ctx context.Context, sc *txScope) error {
		items, err := sc.tx.SnapshotItems(ctx)
		if err != nil {
			return err
		}
		lines := make([]domain.OpnameLine, 0, len(items))
		for _, item := range items {
			lines = append(lines, domain.OpnameLine{
				ItemID:        item.ID,
				SystemStock:   item.Stock,
				PhysicalCount: item.Stock,
			})
		}
		number, err := numbering.Next(ctx, sc.tx, numbering.KindOpname, date)
		if err != nil {
			return err
		}
		session.Number = number
		session.Lines = lines
		return sc.tx.InsertOpnameSession(ctx, session)
	})
	if err != nil {
		return domain.OpnameSessionView{}, err
	}

	s.logAudit(ctx, "opname_create", "stock_opname", session.ID, fmt.Sprintf("number=%s,items=%d", session.Number, len(session.Lines)))
	return s.opnameView(ctx, session)
}

// UpdateOpnameLine records the physical count of one item. The system count
// stays as captured when the session opened.
func (s *Service) UpdateOpnameLine(ctx context.Context, sessionID string, itemID string, in domain.OpnameLineUpdateRequest) (domain.OpnameSessionView, error) {
	if _, err := requireRole(ctx, admins...); err != nil {
		return domain.OpnameSessionView{}, err
	}
	if in.PhysicalCount < 0 {
		return domain.OpnameSessionView{}, apperr.Validation("physical_count must not be negative, got %d", in.PhysicalCount)
	}

	var updated domain.OpnameSession
	err := s.mutate(ctx, "", func(ctx context.Context, sc *txScope) error {
		session, err := sc.tx.GetOpnameSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status != domain.OpnameDraft {
			return apperr.InvalidState("stock opname %s is %s and can no longer be counted", session.Number, session.Status)
		}
		found := false
		for i := range session.Lines {
			line := &session.Lines[i]
			if line.ItemID != itemID {
				continue
			}
			line.PhysicalCount = in.PhysicalCount
			line.Variance = in.PhysicalCount - line.SystemStock
			line.Note = strings.TrimSpace(in.Note)
			found = true
			break
		}
		if !found {
			return apperr.NotFound("stock opname line", itemID)
		}
		if err := sc.tx.UpdateOpnameSession(ctx, *session); err != nil {
			return err
		}
		updated = *session
		return nil
	})
	if err != nil {
		return domain.OpnameSessionView{}, err
	}
	return s.opnameView(ctx, updated)
}

// FinalizeOpnameSession books one ADJUST entry per counted difference and
// closes the session. Lines without variance leave the ledger untouched.
func (s *Service) FinalizeOpnameSession(ctx context.Context, id string) (domain.OpnameSessionView, error) {
	if _, err := requireRole(ctx, admins...); err != nil {
		return domain.OpnameSessionView{}, err
	}

	var finalized domain.OpnameSession
	adjusted := 0
	err := s.mutate(ctx, "", func(ctx context.Context, sc *txScope) error {
		adjusted = 0
		session, err := sc.tx.GetOpnameSessionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if session.Status != domain.OpnameDraft {
			return apperr.InvalidState("stock opname %s is %s and cannot be finalized", session.Number, session.Status)
		}

		var varied []domain.OpnameLine
		for _, line := range session.Lines {
			if line.Variance != 0 {
				varied = append(varied, line)
			}
		}
		if _, err := sc.tx.LockItems(ctx, lineItemIDs(varied, func(l domain.OpnameLine) string { return l.ItemID })); err != nil {
			return err
		}
		for _, line := range varied {
			src := ledger.Source{Type: domain.SourceOpname, Ref: session.Number, Note: line.Note}
			if err := sc.adjustTo(ctx, line.ItemID, line.PhysicalCount, src); err != nil {
				return err
			}
		}
		adjusted = len(sc.entries)

		at := sc.at
		session.Status = domain.OpnameCompleted
		session.FinalizedAt = &at
		if err := sc.tx.UpdateOpnameSession(ctx, *session); err != nil {
			return err
		}
		finalized = *session
		return nil
	})
	if err != nil {
		return domain.OpnameSessionView{}, err
	}

	s.logAudit(ctx, "opname_finalize", "stock_opname", finalized.ID, fmt.Sprintf("number=%s,adjustments=%d", finalized.Number, adjusted))
	return s.opnameView(ctx, finalized)
}

func (s *Service) CancelOpnameSession(ctx context.Context, id string) (domain.OpnameSessionView, error) {
	if _, err := requireRole(ctx, admins...); err != nil {
		return domain.OpnameSessionView{}, err
	}

	var cancelled domain.OpnameSession
	err := s.mutate(ctx, "", func(ctx context.Context, sc *txScope) error {
		session, err := sc.tx.GetOpnameSessionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if session.Status != domain.OpnameDraft {
			return apperr.InvalidState("stock opname %s is %s and cannot be cancelled", session.Number, session.Status)
		}
		session.Status = domain.OpnameCancelled
		if err := sc.tx.UpdateOpnameSession(ctx, *session); err != nil {
			return err
		}
		cancelled = *session
		return nil
	})
	if err != nil {
		return domain.OpnameSessionView{}, err
	}

	s.logAudit(ctx, "opname_cancel", "stock_opname", cancelled.ID, "number="+cancelled.Number)
	return s.opnameView(ctx, cancelled)
}

func (s *Service) GetOpnameSession(ctx context.Context, id string) (domain.OpnameSessionView, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return domain.OpnameSessionView{}, err
	}
	session, err := s.repo.GetOpnameSession(ctx, id)
	if err != nil {
		return domain.OpnameSessionView{}, err
	}
	return s.opnameView(ctx, *session)
}

func (s *Service) ListOpnameSessions(ctx context.Context, limit int) ([]domain.OpnameSessionView, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return nil, err
	}
	sessions, err := s.repo.ListOpnameSessions(ctx, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	r, err := s.loadRefs(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.OpnameSessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, r.opnameView(session))
	}
	return views, nil
}

func (s *Service) opnameView(ctx context.Context, session domain.OpnameSession) (domain.OpnameSessionView, error) {
	r, err := s.loadRefs(ctx)
	if err != nil {
		return domain.OpnameSessionView{}, err
	}
	return r.opnameView(session), nil
}
