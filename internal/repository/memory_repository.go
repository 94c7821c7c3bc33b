package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prohmpiriya/leadflow/internal/domain"
)

// MemoryStore backs the in-memory repositories. Tenants, leads, messages and
// transitions share one lock so message appends and counter bumps are atomic.
type MemoryStore struct {
	mu          sync.RWMutex
	tenants     map[string]*domain.Tenant
	leads       map[string]*domain.Lead            // leadID -> lead
	byUsername  map[string]string                  // tenant|username -> leadID
	messages    map[string][]*domain.Message       // leadID -> ordered log
	transitions map[string][]*domain.StatusTransition // tenantID -> rows
	seq         int64
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:     make(map[string]*domain.Tenant),
		leads:       make(map[string]*domain.Lead),
		byUsername:  make(map[string]string),
		messages:    make(map[string][]*domain.Message),
		transitions: make(map[string][]*domain.StatusTransition),
	}
}

func usernameKey(tenantID, username string) string {
	return tenantID + "|" + strings.ToLower(username)
}

func copyTenant(t *domain.Tenant) *domain.Tenant {
	c := *t
	if t.Channel.ConnectedAt != nil {
		at := *t.Channel.ConnectedAt
		c.Channel.ConnectedAt = &at
	}
	if t.DeletedAt != nil {
		at := *t.DeletedAt
		c.DeletedAt = &at
	}
	return &c
}

func copyMessage(m *domain.Message) *domain.Message {
	c := *m
	return &c
}

// MemoryTenantRepository is an in-memory TenantRepository
type MemoryTenantRepository struct {
	s *MemoryStore
}

// NewMemoryTenantRepository creates a tenant repository over s
func NewMemoryTenantRepository(s *MemoryStore) *MemoryTenantRepository {
	return &MemoryTenantRepository{s: s}
}

func (r *MemoryTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.tenants[tenant.TenantID]; exists {
		return domain.ErrDuplicateTenant
	}
	if tenant.LoginEmail != "" {
		for _, t := range r.s.tenants {
			if t.DeletedAt == nil && t.LoginEmail == tenant.LoginEmail {
				return domain.ErrDuplicateTenant
			}
		}
	}
	r.s.tenants[tenant.TenantID] = copyTenant(tenant)
	return nil
}

func (r *MemoryTenantRepository) GetByID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tenants[tenantID]
	if !ok || t.DeletedAt != nil {
		return nil, nil
	}
	return copyTenant(t), nil
}

func (r *MemoryTenantRepository) GetByLoginEmail(ctx context.Context, email string) (*domain.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, t := range r.s.tenants {
		if t.DeletedAt == nil && t.LoginEmail != "" && t.LoginEmail == email {
			return copyTenant(t), nil
		}
	}
	return nil, nil
}

func (r *MemoryTenantRepository) List(ctx context.Context, filter TenantListFilter) ([]*domain.Tenant, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	q := strings.ToLower(filter.Search)
	var matched []*domain.Tenant
	for _, t := range r.s.tenants {
		if t.DeletedAt != nil {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(t.BusinessName), q) &&
			!strings.Contains(strings.ToLower(t.TenantID), q) &&
			!strings.Contains(t.LoginEmail, q) {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].TenantID < matched[j].TenantID
	})

	total := len(matched)
	page, limit := normalizePage(filter.Page, filter.Limit)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	out := make([]*domain.Tenant, 0, end-start)
	for _, t := range matched[start:end] {
		out = append(out, copyTenant(t))
	}
	return out, total, nil
}

func (r *MemoryTenantRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var ids []string
	for id, t := range r.s.tenants {
		if t.IsActive() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryTenantRepository) Update(ctx context.Context, tenant *domain.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.tenants[tenant.TenantID]
	if !ok || cur.DeletedAt != nil {
		return domain.ErrTenantNotFound
	}
	if tenant.LoginEmail != "" && tenant.LoginEmail != cur.LoginEmail {
		for id, t := range r.s.tenants {
			if id != tenant.TenantID && t.DeletedAt == nil && t.LoginEmail == tenant.LoginEmail {
				return domain.ErrDuplicateTenant
			}
		}
	}
	r.s.tenants[tenant.TenantID] = copyTenant(tenant)
	return nil
}

func (r *MemoryTenantRepository) SoftDelete(ctx context.Context, tenantID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tenants[tenantID]
	if !ok || t.DeletedAt != nil {
		return domain.ErrTenantNotFound
	}
	t.DeletedAt = &at
	t.Status = domain.TenantInactive
	t.UpdatedAt = at
	return nil
}

func (r *MemoryTenantRepository) ExistsByID(ctx context.Context, tenantID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	_, ok := r.s.tenants[tenantID]
	return ok, nil
}

// MemoryLeadRepository is an in-memory LeadRepository
type MemoryLeadRepository struct {
	s *MemoryStore
}

// NewMemoryLeadRepository creates a lead repository over s
func NewMemoryLeadRepository(s *MemoryStore) *MemoryLeadRepository {
	return &MemoryLeadRepository{s: s}
}

func (r *MemoryLeadRepository) Create(ctx context.Context, lead *domain.Lead) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := usernameKey(lead.TenantID, lead.ExternalUsername)
	if _, exists := r.s.byUsername[key]; exists {
		return ErrLeadExists
	}
	if _, exists := r.s.leads[lead.LeadID]; exists {
		return ErrLeadExists
	}
	c := lead.Clone()
	c.Version = 1
	lead.Version = 1
	r.s.leads[lead.LeadID] = c
	r.s.byUsername[key] = lead.LeadID
	return nil
}

// get must be called with the lock held
func (r *MemoryLeadRepository) get(tenantID, leadID string) *domain.Lead {
	l, ok := r.s.leads[leadID]
	if !ok || l.TenantID != tenantID {
		return nil
	}
	return l
}

func (r *MemoryLeadRepository) GetByID(ctx context.Context, tenantID, leadID string) (*domain.Lead, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if l := r.get(tenantID, leadID); l != nil {
		return l.Clone(), nil
	}
	return nil, nil
}

func (r *MemoryLeadRepository) GetByUsername(ctx context.Context, tenantID, username string) (*domain.Lead, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.byUsername[usernameKey(tenantID, username)]
	if !ok {
		return nil, nil
	}
	return r.s.leads[id].Clone(), nil
}

func (r *MemoryLeadRepository) List(ctx context.Context, tenantID string, filter domain.LeadFilter) ([]*domain.Lead, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*domain.Lead
	for _, l := range r.s.leads {
		if l.TenantID == tenantID && filter.Matches(l) {
			matched = append(matched, l)
		}
	}
	SortByRecentInteraction(matched)

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < total {
		end = start + filter.Limit
	}
	out := make([]*domain.Lead, 0, end-start)
	for _, l := range matched[start:end] {
		out = append(out, l.Clone())
	}
	return out, total, nil
}

func (r *MemoryLeadRepository) ListAll(ctx context.Context, tenantID string) ([]*domain.Lead, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.Lead
	for _, l := range r.s.leads {
		if l.TenantID == tenantID {
			out = append(out, l.Clone())
		}
	}
	return out, nil
}

// update must be called with the write lock held
func (r *MemoryLeadRepository) update(lead *domain.Lead) error {
	cur := r.get(lead.TenantID, lead.LeadID)
	if cur == nil {
		return domain.ErrLeadNotFound
	}
	if cur.Version != lead.Version {
		return domain.ErrVersionConflict
	}
	c := lead.Clone()
	c.Version = cur.Version + 1
	// counters are owned by the message log
	c.MessageCount = cur.MessageCount
	c.LastInteractionAt = cur.LastInteractionAt
	r.s.leads[lead.LeadID] = c
	lead.Version = c.Version
	lead.MessageCount = c.MessageCount
	lead.LastInteractionAt = c.LastInteractionAt
	return nil
}

func (r *MemoryLeadRepository) Update(ctx context.Context, lead *domain.Lead) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.update(lead)
}

func (r *MemoryLeadRepository) SaveTransition(ctx context.Context, lead *domain.Lead, tr *domain.StatusTransition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.update(lead); err != nil {
		return err
	}
	c := *tr
	r.s.transitions[tr.TenantID] = append(r.s.transitions[tr.TenantID], &c)
	return nil
}

func (r *MemoryLeadRepository) ListTransitionsInto(ctx context.Context, tenantID string, status domain.LeadStatus, from, to time.Time) ([]*domain.StatusTransition, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	w := domain.Window{Start: from, End: to}
	var out []*domain.StatusTransition
	for _, tr := range r.s.transitions[tenantID] {
		if tr.To == status && w.Contains(tr.Timestamp) {
			c := *tr
			out = append(out, &c)
		}
	}
	return out, nil
}

// MemoryMessageRepository is an in-memory MessageRepository
type MemoryMessageRepository struct {
	s *MemoryStore
}

// NewMemoryMessageRepository creates a message repository over s
func NewMemoryMessageRepository(s *MemoryStore) *MemoryMessageRepository {
	return &MemoryMessageRepository{s: s}
}

func (r *MemoryMessageRepository) Append(ctx context.Context, msg *domain.Message) (*domain.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	lead, ok := r.s.leads[msg.LeadID]
	if !ok || lead.TenantID != msg.TenantID {
		return nil, domain.ErrLeadNotFound
	}

	r.s.seq++
	stored := copyMessage(msg)
	stored.Seq = r.s.seq
	msg.Seq = stored.Seq

	log := r.s.messages[msg.LeadID]
	i := sort.Search(len(log), func(i int) bool { return stored.Before(log[i]) })
	log = append(log, nil)
	copy(log[i+1:], log[i:])
	log[i] = stored
	r.s.messages[msg.LeadID] = log

	ApplyMessage(lead, stored)
	lead.Version++
	return lead.Clone(), nil
}

func (r *MemoryMessageRepository) List(ctx context.Context, tenantID, leadID string, offset, limit int) ([]*domain.Message, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	lead, ok := r.s.leads[leadID]
	if !ok || lead.TenantID != tenantID {
		return nil, 0, domain.ErrLeadNotFound
	}
	log := r.s.messages[leadID]
	total := len(log)
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	out := make([]*domain.Message, 0, end-offset)
	for _, m := range log[offset:end] {
		out = append(out, copyMessage(m))
	}
	return out, total, nil
}

func (r *MemoryMessageRepository) Latest(ctx context.Context, tenantID, leadID string, n int) ([]*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	lead, ok := r.s.leads[leadID]
	if !ok || lead.TenantID != tenantID {
		return nil, domain.ErrLeadNotFound
	}
	log := r.s.messages[leadID]
	start := len(log) - n
	if start < 0 {
		start = 0
	}
	out := make([]*domain.Message, 0, len(log)-start)
	for _, m := range log[start:] {
		out = append(out, copyMessage(m))
	}
	return out, nil
}

func (r *MemoryMessageRepository) ListBetween(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	w := domain.Window{Start: from, End: to}
	var out []*domain.Message
	for leadID, log := range r.s.messages {
		if r.s.leads[leadID].TenantID != tenantID {
			continue
		}
		for _, m := range log {
			if w.Contains(m.Timestamp) {
				out = append(out, copyMessage(m))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (r *MemoryMessageRepository) FirstMessageAt(ctx context.Context, tenantID string, leadIDs []string) (map[string]time.Time, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[string]time.Time, len(leadIDs))
	for _, id := range leadIDs {
		lead, ok := r.s.leads[id]
		if !ok || lead.TenantID != tenantID {
			continue
		}
		if log := r.s.messages[id]; len(log) > 0 {
			out[id] = log[0].Timestamp
		}
	}
	return out, nil
}

// ApplyMessage folds msg into the lead's derived counters. Booking intent
// follows the most recent message whatever its role. Follow-up messages also
// advance the follow-up counters.
func ApplyMessage(lead *domain.Lead, msg *domain.Message) {
	lead.MessageCount++
	if msg.IsFollowup {
		lead.FollowupCount++
		if lead.LastFollowupAt == nil || msg.Timestamp.After(*lead.LastFollowupAt) {
			at := msg.Timestamp
			lead.LastFollowupAt = &at
		}
	}
	if msg.Timestamp.Before(lead.LastInteractionAt) {
		return
	}
	lead.LastInteractionAt = msg.Timestamp
	lead.UpdatedAt = msg.Timestamp
	lead.BookingIntent = msg.BookingIntent
}

// SortByRecentInteraction orders leads by last_interaction_at desc, ties by lead_id
func SortByRecentInteraction(leads []*domain.Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		a, b := leads[i], leads[j]
		if !a.LastInteractionAt.Equal(b.LastInteractionAt) {
			return a.LastInteractionAt.After(b.LastInteractionAt)
		}
		return a.LeadID < b.LeadID
	})
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return page, limit
}
