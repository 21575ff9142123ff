package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
)

type memoryReportRepository struct {
	mu      sync.Mutex
	reports map[string]*entity.MessageReport
}

func NewMemoryReportRepository() repository.ReportRepository {
	return &memoryReportRepository{reports: make(map[string]*entity.MessageReport)}
}

func (r *memoryReportRepository) Create(ctx context.Context, report *entity.MessageReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if report.ID == "" {
		report.ID = newID()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	stored := *report
	r.reports[report.ID] = &stored
	return nil
}

func (r *memoryReportRepository) GetByID(ctx context.Context, id string) (*entity.MessageReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report, ok := r.reports[id]
	if !ok {
		return nil, errors.NotFound("Report", nil)
	}
	out := *report
	return &out, nil
}

func (r *memoryReportRepository) Review(ctx context.Context, id string, allowedFrom []entity.ReportStatus, to entity.ReportStatus, reviewerID, notes string, at time.Time) (*entity.MessageReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report, ok := r.reports[id]
	if !ok {
		return nil, errors.NotFound("Report", nil)
	}
	if !statusIn(report.Status, allowedFrom) {
		return nil, errors.InvalidState("Report cannot move from " + string(report.Status) + " to " + string(to))
	}
	applyReview(report, to, reviewerID, notes, at)
	out := *report
	return &out, nil
}

func (r *memoryReportRepository) List(ctx context.Context, filter entity.ReportFilter) ([]*entity.MessageReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.MessageReport
	for _, report := range r.reports {
		if filter.Matches(report) {
			copied := *report
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// memoryAuditRepository exposes no way to change an entry once appended.
type memoryAuditRepository struct {
	mu      sync.Mutex
	entries []*entity.AuditLogEntry
}

func NewMemoryAuditRepository() repository.AuditRepository {
	return &memoryAuditRepository{}
}

func (r *memoryAuditRepository) Append(ctx context.Context, entry *entity.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	stored := *entry
	r.entries = append(r.entries, &stored)
	return nil
}

func (r *memoryAuditRepository) List(ctx context.Context, filter entity.AuditFilter) ([]*entity.AuditLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.AuditLogEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if !filter.Matches(r.entries[i]) {
			continue
		}
		copied := *r.entries[i]
		out = append(out, &copied)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

type memoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*entity.Account
}

// NewMemoryAccountRepository returns a read-only account directory seeded
// with the given accounts.
func NewMemoryAccountRepository(accounts ...*entity.Account) repository.AccountRepository {
	r := &memoryAccountRepository{accounts: make(map[string]*entity.Account)}
	for _, account := range accounts {
		copied := *account
		r.accounts[account.ID] = &copied
	}
	return r
}

func (r *memoryAccountRepository) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, errors.NotFound("Account", nil)
	}
	out := *account
	return &out, nil
}
