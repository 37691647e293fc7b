package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/multierr"

	"persediaan/backend/internal/apperr"
	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/ledger"
	"persediaan/backend/internal/logger"
	"persediaan/backend/internal/metrics"
	"persediaan/backend/internal/numbering"
	"persediaan/backend/internal/restock"
	"persediaan/backend/internal/store"
	"persediaan/backend/internal/xid"
)

const dateLayout = "2006-01-02"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
	MaxAttempts int
	Now         func() time.Time
}

type Service struct {
	repo    store.Repository
	restock *restock.Engine
	metrics *metrics.Metrics
	logger  *logger.Logger
	policy  numbering.Policy
	now     func() time.Time
}

// New wires the document workflows over repo. A nil restock engine gets an
// uncached one reading from repo.
func New(repo store.Repository, restocker *restock.Engine, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if restocker == nil {
		restocker = restock.NewEngine(repo, nil, 0, 0).WithLogger(opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:    repo,
		restock: restocker,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		policy:  numbering.Policy{MaxAttempts: opts.MaxAttempts, Observer: opts.Metrics},
		now:     opts.Now,
	}
}

var (
	readers = []string{domain.RoleAdmin, domain.RolePetugas, domain.RoleSupervisor}
	writers = []string{domain.RoleAdmin, domain.RolePetugas}
	admins  = []string{domain.RoleAdmin}
)

func requireRole(ctx context.Context, allowed ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, apperr.New(apperr.CodeUnauthorized, "no authenticated actor")
	}
	if !slices.Contains(allowed, actor.Role) {
		return domain.Actor{}, apperr.Forbidden(fmt.Sprintf("role %s may not perform this action", actor.Role))
	}
	return actor, nil
}

// txScope is handed to one transaction attempt. Movements go through it so
// the committed entries can be reported once the attempt wins.
type txScope struct {
	tx      store.Tx
	at      time.Time
	entries []domain.LedgerEntry
}

func (sc *txScope) apply(ctx context.Context, m ledger.Movement) error {
	entry, err := ledger.Apply(ctx, sc.tx, m, sc.at)
	if err != nil {
		return err
	}
	sc.entries = append(sc.entries, entry)
	return nil
}

func (sc *txScope) adjustTo(ctx context.Context, itemID string, target int, src ledger.Source) error {
	entry, applied, err := ledger.AdjustTo(ctx, sc.tx, itemID, target, src, sc.at)
	if err != nil {
		return err
	}
	if applied {
		sc.entries = append(sc.entries, entry)
	}
	return nil
}

// mutate runs fn in one transaction. With a non-empty kind every attempt
// gets a fresh transaction and lost number races are retried by the policy.
func (s *Service) mutate(ctx context.Context, kind numbering.Kind, fn func(ctx context.Context, sc *txScope) error) error {
	var committed []domain.LedgerEntry
	attempt := func(ctx context.Context, _ int) error {
		return s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			sc := &txScope{tx: tx, at: s.now().UTC()}
			if err := fn(ctx, sc); err != nil {
				return err
			}
			committed = sc.entries
			return nil
		})
	}

	var err error
	if kind == "" {
		err = attempt(ctx, 1)
	} else {
		err = s.policy.Run(ctx, kind, attempt)
	}
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNumberExhausted) {
			s.logger.Warn(s.logger.WithField(ctx, "kind", string(kind)), "document number allocation exhausted")
		}
		return err
	}

	if len(committed) > 0 {
		s.metrics.ObserveMovements(committed)
		if err := s.restock.Invalidate(ctx); err != nil {
			s.logger.Warn(s.logger.WithField(ctx, "error", err.Error()), "restock cache invalidation failed")
		}
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	})
	if err != nil {
		logCtx := s.logger.WithFields(ctx, map[string]any{"action": action, "entity_id": entityID})
		s.logger.Error(logCtx, "failed to write audit log", err)
		return
	}
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"actor":     actor.Username,
		"action":    action,
		"entity_id": entityID,
	}), "audit")
}

// parseDate reads a YYYY-MM-DD value; empty means today (UTC).
func (s *Service) parseDate(field string, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		now := s.now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	at, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, apperr.Validation("%s must use YYYY-MM-DD, got %q", field, value).
			WithDetails(map[string]any{"field": field})
	}
	return at, nil
}

// problems collects independent input errors so one response lists them all.
// A lookup failure is kept apart in fault and wins over the input errors.
type problems struct {
	err   error
	fault error
}

func (p *problems) addf(format string, args ...any) {
	p.err = multierr.Append(p.err, fmt.Errorf(format, args...))
}

func (p *problems) result(message string) error {
	if p.fault != nil {
		return p.fault
	}
	if p.err == nil {
		return nil
	}
	errs := multierr.Errors(p.err)
	list := make([]string, 0, len(errs))
	for _, err := range errs {
		list = append(list, err.Error())
	}
	return apperr.Wrap(apperr.CodeValidation, p.err, message).WithDetails(map[string]any{"problems": list})
}

func (s *Service) requireEmployee(ctx context.Context, p *problems, field string, id string) {
	if strings.TrimSpace(id) == "" {
		p.addf("%s is required", field)
		return
	}
	if _, err := s.repo.GetEmployee(ctx, id); err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			p.addf("%s %s does not exist", field, id)
			return
		}
		p.fault = err
	}
}

// requireItems reports every id in ids that is not a known item.
func (s *Service) requireItems(ctx context.Context, p *problems, ids []string) {
	if len(ids) == 0 {
		return
	}
	found, err := s.repo.GetItemsByIDs(ctx, ids)
	if err != nil {
		p.fault = err
		return
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			p.addf("item %s does not exist", id)
		}
	}
}

// lineItemIDs returns the distinct item ids of a document sorted ascending,
// which is also the order the rows get locked in.
func lineItemIDs[L any](lines []L, itemID func(L) string) []string {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, itemID(line))
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
