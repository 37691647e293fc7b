package service

import (
	"context"
	"fmt"
	"strings"

	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/ledger"
	"persediaan/backend/internal/xid"
)

func (s *Service) ListItems(ctx context.Context) ([]domain.ItemStockView, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.ItemStockView, 0, len(items))
	for _, item := range items {
		views = append(views, itemStockView(item))
	}
	return views, nil
}

func (s *Service) GetItem(ctx context.Context, id string) (domain.ItemStockView, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return domain.ItemStockView{}, err
	}
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return domain.ItemStockView{}, err
	}
	return itemStockView(*item), nil
}

// CreateItem registers an item with zero stock and books any initial
// quantity as an opening-balance entry, so the ledger always replays from 0.
func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.ItemStockView, error) {
	if _, err := requireRole(ctx, admins...); err != nil {
		return domain.ItemStockView{}, err
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Unit = strings.TrimSpace(req.Unit)

	var p problems
	if req.Code == "" {
		p.addf("code is required")
	}
	if req.Name == "" {
		p.addf("name is required")
	}
	if req.Category == "" {
		p.addf("category is required")
	}
	if req.Unit == "" {
		p.addf("unit is required")
	}
	if req.MinStock < 0 {
		p.addf("min_stock must not be negative")
	}
	if req.InitialStock < 0 {
		p.addf("initial_stock must not be negative")
	}
	if err := p.result("invalid item"); err != nil {
		return domain.ItemStockView{}, err
	}

	now := s.now().UTC()
	item := domain.Item{
		ID:        xid.New("brg"),
		Code:      req.Code,
		Name:      req.Name,
		Category:  req.Category,
		Unit:      req.Unit,
		MinStock:  req.MinStock,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.mutate(ctx, "", func(ctx context.Context, sc *txScope) error {
		if err := sc.tx.InsertItem(ctx, item); err != nil {
			return err
		}
		if req.InitialStock == 0 {
			return nil
		}
		return sc.apply(ctx, ledger.Movement{
			ItemID:    item.ID,
			Direction: domain.DirectionIn,
			Qty:       req.InitialStock,
			Source:    ledger.Source{Type: domain.SourceOpening, Ref: item.ID, Note: "saldo awal"},
		})
	})
	if err != nil {
		return domain.ItemStockView{}, err
	}

	s.logAudit(ctx, "item_create", "item", item.ID, fmt.Sprintf("code=%s,initial_stock=%d", item.Code, req.InitialStock))
	item.Stock = req.InitialStock
	return itemStockView(item), nil
}

// ItemLedger returns the latest limit entries of one item, oldest first.
func (s *Service) ItemLedger(ctx context.Context, itemID string, limit int) ([]domain.LedgerEntryView, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return nil, err
	}
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListLedger(ctx, item.ID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	r := refs{items: map[string]domain.Item{item.ID: *item}}
	views := make([]domain.LedgerEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, r.ledgerEntryView(entry))
	}
	return views, nil
}

// VerifyItemLedger replays the full history of an item and compares it with
// the stored stock.
func (s *Service) VerifyItemLedger(ctx context.Context, itemID string) (domain.LedgerVerification, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return domain.LedgerVerification{}, err
	}
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return domain.LedgerVerification{}, err
	}
	entries, err := s.repo.ListLedger(ctx, item.ID, 0)
	if err != nil {
		return domain.LedgerVerification{}, err
	}

	balance, brokenAt := ledger.Replay(entries)
	result := domain.LedgerVerification{
		ItemID:          item.ID,
		Stock:           item.Stock,
		ReplayedBalance: balance,
		Entries:         len(entries),
		Consistent:      balance == item.Stock && brokenAt == 0,
		BrokenAtEntryID: brokenAt,
	}
	if !result.Consistent {
		s.logger.Warn(s.logger.WithFields(ctx, map[string]any{
			"item_id":  item.ID,
			"stock":    item.Stock,
			"replayed": balance,
			"broken":   brokenAt,
		}), "item ledger does not replay to stored stock")
	}
	return result, nil
}

func (s *Service) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return nil, err
	}
	return s.repo.ListEmployees(ctx)
}

func (s *Service) RestockSuggestions(ctx context.Context) (domain.RestockSuggestionResponse, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return domain.RestockSuggestionResponse{}, err
	}
	return s.restock.Suggest(ctx)
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleSupervisor); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, clampLimit(limit))
}

func (s *Service) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	if _, err := requireRole(ctx, readers...); err != nil {
		return domain.Employee{}, err
	}
	e, err := s.repo.GetEmployee(ctx, id)
	if err != nil {
		return domain.Employee{}, err
	}
	return *e, nil
}
