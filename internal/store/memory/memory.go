package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"persediaan/backend/internal/apperr"
	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/store"
	"persediaan/backend/internal/xid"
)

// Store keeps everything in process memory. Transactions are serialized by
// mu and work on a copy of the state that replaces the live one on commit.
type Store struct {
	mu    sync.RWMutex
	state *state
}

type state struct {
	items        map[string]domain.Item
	ledger       []domain.LedgerEntry
	nextLedgerID int64
	employees    map[string]domain.Employee
	requests     map[string]domain.Request
	orders       map[string]domain.DistributionOrder
	outbound     map[string]domain.OutboundHandover
	inbound      map[string]domain.InboundHandover
	opname       map[string]domain.OpnameSession
	auditLogs    []domain.AuditLog
	users        map[string]domain.UserAccount
}

func newState() *state {
	return &state{
		items:     make(map[string]domain.Item),
		ledger:    make([]domain.LedgerEntry, 0, 256),
		employees: make(map[string]domain.Employee),
		requests:  make(map[string]domain.Request),
		orders:    make(map[string]domain.DistributionOrder),
		outbound:  make(map[string]domain.OutboundHandover),
		inbound:   make(map[string]domain.InboundHandover),
		opname:    make(map[string]domain.OpnameSession),
		auditLogs: make([]domain.AuditLog, 0, 128),
		users:     make(map[string]domain.UserAccount),
	}
}

// clone copies the maps. Document values are replaced, never mutated in
// place, so sharing their line slices with the draft is safe. The append-only
// slices are capped so a draft append never writes into the live array.
func (st *state) clone() *state {
	return &state{
		items:        cloneMap(st.items),
		ledger:       st.ledger[:len(st.ledger):len(st.ledger)],
		nextLedgerID: st.nextLedgerID,
		employees:    cloneMap(st.employees),
		requests:     cloneMap(st.requests),
		orders:       cloneMap(st.orders),
		outbound:     cloneMap(st.outbound),
		inbound:      cloneMap(st.inbound),
		opname:       cloneMap(st.opname),
		auditLogs:    st.auditLogs[:len(st.auditLogs):len(st.auditLogs)],
		users:        cloneMap(st.users),
	}
}

func cloneMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD, SEED_PETUGAS_PASSWORD and SEED_SUPERVISOR_PASSWORD and
// fall back to fixed dev defaults; see DefaultSeedCredentials.
func seedUsers() (map[string]domain.UserAccount, error) {
	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username   string
		password   string
		role       string
		employeeID string
	}{
		{"admin", envOr("SEED_ADMIN_PASSWORD", "admin123"), domain.RoleAdmin, "pgw-002"},
		{"petugas", envOr("SEED_PETUGAS_PASSWORD", "petugas123"), domain.RolePetugas, "pgw-003"},
		{"supervisor", envOr("SEED_SUPERVISOR_PASSWORD", "supervisor123"), domain.RoleSupervisor, "pgw-004"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:   u.username,
			Password:   string(hash),
			Role:       u.role,
			EmployeeID: u.employeeID,
			Active:     true,
			CreatedAt:  now,
		}
	}
	return users, nil
}

// DefaultSeedCredentials reports whether any seeded account still uses its
// dev default password.
func DefaultSeedCredentials() bool {
	return os.Getenv("SEED_ADMIN_PASSWORD") == "" ||
		os.Getenv("SEED_PETUGAS_PASSWORD") == "" ||
		os.Getenv("SEED_SUPERVISOR_PASSWORD") == ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo employees, users and office supplies.
// Each opening stock is posted to the ledger as a saldo_awal entry.
func NewSeeded() (*Store, error) {
	st := newState()

	for _, e := range []domain.Employee{
		{ID: "pgw-001", NIP: "197805122005011003", Name: "Budi Santoso", Position: "Kepala Subbagian Umum"},
		{ID: "pgw-002", NIP: "198603182010012014", Name: "Siti Rahmawati", Position: "Pengurus Barang"},
		{ID: "pgw-003", NIP: "199201052019031007", Name: "Andi Pratama", Position: "Staf Tata Usaha"},
		{ID: "pgw-004", NIP: "197511232001122002", Name: "Dewi Lestari", Position: "Kepala Bagian Umum"},
		{ID: "pgw-005", NIP: "199507142020121004", Name: "Rizky Hidayat", Position: "Staf Keuangan"},
	} {
		st.employees[e.ID] = e
	}

	users, err := seedUsers()
	if err != nil {
		return nil, err
	}
	st.users = users

	now := time.Now().UTC()
	for _, seed := range []struct {
		item  domain.Item
		stock int
	}{
		{domain.Item{ID: "brg-001", Code: "ATK-001", Name: "Kertas HVS A4 80gr", Category: "Alat Tulis Kantor", Unit: "rim", MinStock: 20}, 60},
		{domain.Item{ID: "brg-002", Code: "ATK-002", Name: "Pulpen Hitam", Category: "Alat Tulis Kantor", Unit: "pak", MinStock: 10}, 25},
		{domain.Item{ID: "brg-003", Code: "ATK-003", Name: "Map Snelhecter", Category: "Alat Tulis Kantor", Unit: "buah", MinStock: 50}, 120},
		{domain.Item{ID: "brg-004", Code: "ATK-004", Name: "Stapler Besar", Category: "Alat Tulis Kantor", Unit: "buah", MinStock: 3}, 8},
		{domain.Item{ID: "brg-005", Code: "CTK-001", Name: "Tinta Printer Hitam", Category: "Bahan Cetak", Unit: "botol", MinStock: 6}, 12},
		{domain.Item{ID: "brg-006", Code: "CTK-002", Name: "Toner Laser 85A", Category: "Bahan Cetak", Unit: "buah", MinStock: 2}, 4},
		{domain.Item{ID: "brg-007", Code: "KBR-001", Name: "Sabun Cuci Tangan", Category: "Bahan Kebersihan", Unit: "botol", MinStock: 10}, 18},
		{domain.Item{ID: "brg-008", Code: "KBR-002", Name: "Tisu Gulung", Category: "Bahan Kebersihan", Unit: "pak", MinStock: 15}, 0},
	} {
		item := seed.item
		item.CreatedAt = now
		item.UpdatedAt = now
		st.items[item.ID] = item
		if seed.stock > 0 {
			tx := &memTx{st: st}
			if err := tx.postOpening(item.ID, seed.stock, now); err != nil {
				return nil, err
			}
		}
	}

	return &Store{state: st}, nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.state.clone()
	if err := fn(ctx, &memTx{st: draft}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = draft
	return nil
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.state.items))
	for _, item := range s.state.items {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.Item) int {
		return strings.Compare(a.Code, b.Code)
	})
	return items, nil
}

func (s *Store) GetItem(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.state.items[id]
	if !ok {
		return nil, apperr.NotFound("item", id)
	}
	return &item, nil
}

func (s *Store) GetItemsByIDs(_ context.Context, ids []string) (map[string]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Item, len(ids))
	for _, id := range ids {
		if item, ok := s.state.items[id]; ok {
			result[id] = item
		}
	}
	return result, nil
}

func (s *Store) ListLedger(_ context.Context, itemID string, limit int) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.LedgerEntry, 0)
	for _, entry := range s.state.ledger {
		if entry.ItemID == itemID {
			entries = append(entries, entry)
		}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (s *Store) ListLedgerSince(_ context.Context, since time.Time) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.LedgerEntry, 0)
	for _, entry := range s.state.ledger {
		if !entry.At.Before(since) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *Store) ListEmployees(_ context.Context) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employees := make([]domain.Employee, 0, len(s.state.employees))
	for _, e := range s.state.employees {
		employees = append(employees, e)
	}
	slices.SortFunc(employees, func(a, b domain.Employee) int {
		return strings.Compare(a.Name, b.Name)
	})
	return employees, nil
}

func (s *Store) GetEmployee(_ context.Context, id string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.state.employees[id]
	if !ok {
		return nil, apperr.NotFound("employee", id)
	}
	return &e, nil
}

func (s *Store) GetRequest(_ context.Context, id string) (*domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.state.requests[id]
	if !ok {
		return nil, apperr.NotFound("request", id)
	}
	cloned := cloneRequest(req)
	return &cloned, nil
}

func (s *Store) ListRequests(_ context.Context, filter domain.RequestFilter) ([]domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Request, 0)
	for _, req := range s.state.requests {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.RequesterID != "" && req.RequesterID != filter.RequesterID {
			continue
		}
		result = append(result, cloneRequest(req))
	}
	slices.SortFunc(result, func(a, b domain.Request) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.Number, b.Number)
	})
	return truncate(result, filter.Limit), nil
}

func (s *Store) GetDistributionOrder(_ context.Context, id string) (*domain.DistributionOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.state.orders[id]
	if !ok {
		return nil, apperr.NotFound("distribution order", id)
	}
	cloned := cloneOrder(order)
	return &cloned, nil
}

func (s *Store) ListDistributionOrders(_ context.Context, status domain.OrderStatus, limit int) ([]domain.DistributionOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DistributionOrder, 0)
	for _, order := range s.state.orders {
		if status != "" && order.Status != status {
			continue
		}
		result = append(result, cloneOrder(order))
	}
	slices.SortFunc(result, func(a, b domain.DistributionOrder) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.Number, b.Number)
	})
	return truncate(result, limit), nil
}

func (s *Store) GetOutboundHandover(_ context.Context, id string) (*domain.OutboundHandover, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handover, ok := s.state.outbound[id]
	if !ok {
		return nil, apperr.NotFound("outbound handover", id)
	}
	cloned := cloneOutbound(handover)
	return &cloned, nil
}

func (s *Store) ListOutboundHandovers(_ context.Context, limit int) ([]domain.OutboundHandover, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.OutboundHandover, 0, len(s.state.outbound))
	for _, handover := range s.state.outbound {
		result = append(result, cloneOutbound(handover))
	}
	slices.SortFunc(result, func(a, b domain.OutboundHandover) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.Number, b.Number)
	})
	return truncate(result, limit), nil
}

func (s *Store) GetInboundHandover(_ context.Context, id string) (*domain.InboundHandover, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handover, ok := s.state.inbound[id]
	if !ok {
		return nil, apperr.NotFound("inbound handover", id)
	}
	cloned := cloneInbound(handover)
	return &cloned, nil
}

func (s *Store) ListInboundHandovers(_ context.Context, limit int) ([]domain.InboundHandover, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InboundHandover, 0, len(s.state.inbound))
	for _, handover := range s.state.inbound {
		result = append(result, cloneInbound(handover))
	}
	slices.SortFunc(result, func(a, b domain.InboundHandover) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ReferenceNumber, b.ReferenceNumber)
	})
	return truncate(result, limit), nil
}

func (s *Store) GetOpnameSession(_ context.Context, id string) (*domain.OpnameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.state.opname[id]
	if !ok {
		return nil, apperr.NotFound("stock opname session", id)
	}
	cloned := cloneOpname(session)
	return &cloned, nil
}

func (s *Store) ListOpnameSessions(_ context.Context, limit int) ([]domain.OpnameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.OpnameSession, 0, len(s.state.opname))
	for _, session := range s.state.opname {
		result = append(result, cloneOpname(session))
	}
	slices.SortFunc(result, func(a, b domain.OpnameSession) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.Number, b.Number)
	})
	return truncate(result, limit), nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.state.auditLogs = append(s.state.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.state.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.state.auditLogs[i])
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return apperr.Validation("username and password are required")
	}
	if _, exists := s.state.users[username]; exists {
		return apperr.Newf(apperr.CodeDuplicateReference, "user %s already exists", username)
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RolePetugas
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.state.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.state.users))
	for _, user := range s.state.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.state.users[username]
	if !ok {
		return apperr.NotFound("user", username)
	}
	user.Password = password
	s.state.users[username] = user
	return nil
}

func newestFirst(aAt, bAt time.Time, aKey, bKey string) int {
	if c := bAt.Compare(aAt); c != 0 {
		return c
	}
	return strings.Compare(bKey, aKey)
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func cloneRequest(src domain.Request) domain.Request {
	dst := src
	dst.Lines = slices.Clone(src.Lines)
	return dst
}

func cloneOrder(src domain.DistributionOrder) domain.DistributionOrder {
	dst := src
	dst.Lines = slices.Clone(src.Lines)
	return dst
}

func cloneOutbound(src domain.OutboundHandover) domain.OutboundHandover {
	dst := src
	dst.Lines = slices.Clone(src.Lines)
	return dst
}

func cloneInbound(src domain.InboundHandover) domain.InboundHandover {
	dst := src
	dst.Lines = slices.Clone(src.Lines)
	return dst
}

func cloneOpname(src domain.OpnameSession) domain.OpnameSession {
	dst := src
	dst.Lines = slices.Clone(src.Lines)
	if src.FinalizedAt != nil {
		at := *src.FinalizedAt
		dst.FinalizedAt = &at
	}
	return dst
}

var _ store.Repository = (*Store)(nil)
