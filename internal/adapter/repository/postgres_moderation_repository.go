package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
)

const reportColumns = `id, message_id, conversation_id, reporter_id, reason, description, status,
	reviewer_id, review_notes, reviewed_at, created_at`

type postgresReportRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresReportRepository(pool *pgxpool.Pool) repository.ReportRepository {
	return &postgresReportRepository{pool: pool}
}

func scanReport(row pgx.Row) (*entity.MessageReport, error) {
	var (
		report         entity.MessageReport
		reason, status string
	)
	err := row.Scan(&report.ID, &report.MessageID, &report.ConversationID, &report.ReporterID, &reason,
		&report.Description, &status, &report.ReviewerID, &report.ReviewNotes, &report.ReviewedAt, &report.CreatedAt)
	if err != nil {
		return nil, err
	}
	report.Reason = entity.ReportReason(reason)
	report.Status = entity.ReportStatus(status)
	return &report, nil
}

func (r *postgresReportRepository) Create(ctx context.Context, report *entity.MessageReport) error {
	if report.ID == "" {
		report.ID = newID()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO message_reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		report.ID, report.MessageID, report.ConversationID, report.ReporterID, string(report.Reason),
		report.Description, string(report.Status), report.ReviewerID, report.ReviewNotes,
		report.ReviewedAt, report.CreatedAt)
	if err != nil {
		return errors.Internal("Failed to create report", err)
	}
	return nil
}

func (r *postgresReportRepository) GetByID(ctx context.Context, id string) (*entity.MessageReport, error) {
	report, err := scanReport(r.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM message_reports WHERE id = $1`, id))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("Report", err)
		}
		return nil, errors.Internal("Failed to get report", err)
	}
	return report, nil
}

func (r *postgresReportRepository) Review(ctx context.Context, id string, allowedFrom []entity.ReportStatus, to entity.ReportStatus, reviewerID, notes string, at time.Time) (*entity.MessageReport, error) {
	from := make([]string, len(allowedFrom))
	for i, s := range allowedFrom {
		from[i] = string(s)
	}

	report, err := scanReport(r.pool.QueryRow(ctx, `
		UPDATE message_reports SET status = $3, reviewer_id = $4, review_notes = $5, reviewed_at = $6
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+reportColumns, id, from, string(to), reviewerID, notes, at))
	if err == nil {
		return report, nil
	}
	if !stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Internal("Failed to review report", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, errors.InvalidState("Report cannot move from " + string(current.Status) + " to " + string(to))
}

func (r *postgresReportRepository) List(ctx context.Context, filter entity.ReportFilter) ([]*entity.MessageReport, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reportColumns+` FROM message_reports
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR conversation_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($3::bigint, 0)`,
		string(filter.Status), filter.ConversationID, int64(filter.Limit))
	if err != nil {
		return nil, errors.Internal("Failed to list reports", err)
	}
	defer rows.Close()

	var out []*entity.MessageReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, errors.Internal("Failed to parse report row", err)
		}
		out = append(out, report)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal("Failed to list reports", err)
	}
	return out, nil
}

type postgresAuditRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAuditRepository(pool *pgxpool.Pool) repository.AuditRepository {
	return &postgresAuditRepository{pool: pool}
}

func (r *postgresAuditRepository) Append(ctx context.Context, entry *entity.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	detail := entry.Detail
	if detail == nil {
		detail = map[string]interface{}{}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (id, conversation_id, message_id, action, actor_id, target_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.ConversationID, entry.MessageID, string(entry.Action), entry.ActorID,
		entry.TargetID, detail, entry.CreatedAt)
	if err != nil {
		return errors.Internal("Failed to append audit entry", err)
	}
	return nil
}

func (r *postgresAuditRepository) List(ctx context.Context, filter entity.AuditFilter) ([]*entity.AuditLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, message_id, action, actor_id, target_id, detail, created_at
		FROM audit_log
		WHERE ($1 = '' OR action = $1) AND ($2 = '' OR actor_id = $2) AND ($3 = '' OR conversation_id = $3)
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($4::bigint, 0)`,
		string(filter.Action), filter.ActorID, filter.ConversationID, int64(filter.Limit))
	if err != nil {
		return nil, errors.Internal("Failed to list audit log", err)
	}
	defer rows.Close()

	var out []*entity.AuditLogEntry
	for rows.Next() {
		var (
			entry  entity.AuditLogEntry
			action string
		)
		if err := rows.Scan(&entry.ID, &entry.ConversationID, &entry.MessageID, &action, &entry.ActorID,
			&entry.TargetID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, errors.Internal("Failed to parse audit row", err)
		}
		entry.Action = entity.AuditAction(action)
		out = append(out, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal("Failed to list audit log", err)
	}
	return out, nil
}

type postgresAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepository(pool *pgxpool.Pool) repository.AccountRepository {
	return &postgresAccountRepository{pool: pool}
}

func (r *postgresAccountRepository) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	var (
		account     entity.Account
		accountType string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, username, account_type, status, created_at FROM accounts WHERE id = $1`, id).
		Scan(&account.ID, &account.Username, &accountType, &account.Status, &account.CreatedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("Account", err)
		}
		return nil, errors.Internal("Failed to get account", err)
	}
	account.AccountType = entity.AccountType(accountType)
	return &account, nil
}
