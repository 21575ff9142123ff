package repository

import (
	"context"
	_ "embed"
	stderrors "errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
)

//go:embed schema.sql
var postgresSchema string

// EnsurePostgresSchema creates the messaging tables when they are missing. All
// statements are idempotent.
func EnsurePostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return errors.Internal("Failed to apply schema", err)
	}
	return nil
}

const conversationColumns = `id, type, participant1, participant2, order_id, delivery_id, support_ticket_id,
	status, last_message_id, last_message_at, unread1, unread2, created_at, updated_at`

const messageColumns = `id, conversation_id, sender_id, content, translated_content, language, status,
	read_by, reply_to_id, attachments, created_at, updated_at, deleted_at`

type postgresChatRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresChatRepository(pool *pgxpool.Pool) repository.ChatRepository {
	return &postgresChatRepository{pool: pool}
}

func scanConversation(row pgx.Row) (*entity.Conversation, error) {
	var (
		conv       entity.Conversation
		convType   string
		convStatus string
	)
	err := row.Scan(&conv.ID, &convType, &conv.Participant1, &conv.Participant2, &conv.OrderID,
		&conv.DeliveryID, &conv.SupportTicketID, &convStatus, &conv.LastMessageID, &conv.LastMessageAt,
		&conv.Unread1, &conv.Unread2, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	conv.Type = entity.ConversationType(convType)
	conv.Status = entity.ConversationStatus(convStatus)
	conv.Participants = []string{conv.Participant1, conv.Participant2}
	conv.ParticipantKey = entity.PairKey(conv.Participant1, conv.Participant2)
	return &conv, nil
}

func scanMessage(row pgx.Row) (*entity.Message, error) {
	var (
		msg       entity.Message
		msgStatus string
	)
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.TranslatedContent,
		&msg.Language, &msgStatus, &msg.ReadBy, &msg.ReplyToID, &msg.Attachments, &msg.CreatedAt,
		&msg.UpdatedAt, &msg.DeletedAt)
	if err != nil {
		return nil, err
	}
	msg.Status = entity.MessageStatus(msgStatus)
	if len(msg.TranslatedContent) == 0 {
		msg.TranslatedContent = nil
	}
	if len(msg.Attachments) == 0 {
		msg.Attachments = nil
	}
	return &msg, nil
}

func (r *postgresChatRepository) CreateIfAbsent(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	fresh := cloneConversation(conv)
	if fresh.ID == "" {
		fresh.ID = newID()
	}
	prepareConversation(fresh, time.Now())

	// The unique constraint on (pair_key, type, correlation_id) decides the
	// race; the loser reads the winner's row.
	row := r.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, type, participant1, participant2, pair_key, correlation_id,
			order_id, delivery_id, support_ticket_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (pair_key, type, correlation_id) DO NOTHING
		RETURNING `+conversationColumns,
		fresh.ID, string(fresh.Type), fresh.Participant1, fresh.Participant2, fresh.ParticipantKey,
		fresh.CorrelationID(), fresh.OrderID, fresh.DeliveryID, fresh.SupportTicketID,
		string(fresh.Status), fresh.CreatedAt, fresh.UpdatedAt)

	stored, err := scanConversation(row)
	if err == nil {
		return stored, true, nil
	}
	if !stderrors.Is(err, pgx.ErrNoRows) {
		return nil, false, errors.Internal("Failed to create conversation", err)
	}

	row = r.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations
		WHERE pair_key = $1 AND type = $2 AND correlation_id = $3`,
		fresh.ParticipantKey, string(fresh.Type), fresh.CorrelationID())
	stored, err = scanConversation(row)
	if err != nil {
		return nil, false, errors.Internal("Failed to load existing conversation", err)
	}
	return stored, false, nil
}

func (r *postgresChatRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	conv, err := scanConversation(r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}
	return conv, nil
}

func (r *postgresChatRepository) ListByParticipant(ctx context.Context, userID string, filter entity.ConversationFilter) ([]*entity.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE (participant1 = $1 OR participant2 = $1)
			AND ($2 = '' OR type = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY COALESCE(last_message_at, created_at) DESC, id DESC
		LIMIT NULLIF($4::bigint, 0)`,
		userID, string(filter.Type), string(filter.Status), int64(filter.Limit))
	if err != nil {
		return nil, errors.Internal("Failed to list conversations", err)
	}
	defer rows.Close()

	var out []*entity.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, errors.Internal("Failed to parse conversation row", err)
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal("Failed to list conversations", err)
	}
	return out, nil
}

func (r *postgresChatRepository) UpdateStatus(ctx context.Context, id string, from, to entity.ConversationStatus) (*entity.Conversation, error) {
	conv, err := scanConversation(r.pool.QueryRow(ctx, `
		UPDATE conversations SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+conversationColumns, id, string(from), string(to)))
	if err == nil {
		return conv, nil
	}
	if !stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Internal("Failed to update conversation status", err)
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, errors.InvalidState("Conversation status changed concurrently")
}

func (r *postgresChatRepository) AppendMessage(ctx context.Context, msg *entity.Message, recipientID string) (*entity.Conversation, error) {
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.UpdatedAt = msg.CreatedAt

	var updated *entity.Conversation
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// Increment in place under the row lock so concurrent senders in the
		// same conversation never lose an update.
		conv, err := scanConversation(tx.QueryRow(ctx, `
			UPDATE conversations SET
				unread1 = unread1 + CASE WHEN participant1 = $2 THEN 1 ELSE 0 END,
				unread2 = unread2 + CASE WHEN participant2 = $2 THEN 1 ELSE 0 END,
				last_message_id = $4, last_message_at = $5, updated_at = $5
			WHERE id = $1 AND status = 'ACTIVE' AND $2 <> $3 AND $2 IN (participant1, participant2)
			RETURNING `+conversationColumns,
			msg.ConversationID, recipientID, msg.SenderID, msg.ID, msg.CreatedAt))
		if err != nil {
			if stderrors.Is(err, pgx.ErrNoRows) {
				return r.explainRejectedAppend(ctx, tx, msg.ConversationID)
			}
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO messages (`+messageColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			msg.ID, msg.ConversationID, msg.SenderID, msg.Content, nonNilMap(msg.TranslatedContent),
			msg.Language, string(msg.Status), nonNilStrings(msg.ReadBy), msg.ReplyToID,
			nonNilStrings(msg.Attachments), msg.CreatedAt, msg.UpdatedAt, msg.DeletedAt)
		if err != nil {
			return err
		}
		updated = conv
		return nil
	})
	if err != nil {
		return nil, wrapPostgres("Failed to append message", err)
	}
	return updated, nil
}

func (r *postgresChatRepository) explainRejectedAppend(ctx context.Context, tx pgx.Tx, conversationID string) error {
	var convStatus string
	err := tx.QueryRow(ctx, `SELECT status FROM conversations WHERE id = $1`, conversationID).Scan(&convStatus)
	switch {
	case stderrors.Is(err, pgx.ErrNoRows):
		return errors.NotFound("Conversation", nil)
	case err != nil:
		return err
	case convStatus != string(entity.ConversationActive):
		return errors.InvalidState("Conversation is not active")
	default:
		return errors.InvalidArgument("Recipient is not the other participant")
	}
}

func (r *postgresChatRepository) GetMessage(ctx context.Context, id string) (*entity.Message, error) {
	msg, err := scanMessage(r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("Message", err)
		}
		return nil, errors.Internal("Failed to get message", err)
	}
	return msg, nil
}

func (r *postgresChatRepository) ListMessages(ctx context.Context, conversationID string, limit int, beforeID string) ([]*entity.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 AND ($2 = '' OR id < $2)
		ORDER BY id DESC
		LIMIT NULLIF($3::bigint, 0)`,
		conversationID, beforeID, int64(limit))
	if err != nil {
		return nil, errors.Internal("Failed to list messages", err)
	}
	defer rows.Close()

	var out []*entity.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Internal("Failed to parse message row", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal("Failed to list messages", err)
	}
	return out, nil
}

func (r *postgresChatRepository) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) ([]string, error) {
	var changed []string
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		changed = nil

		var p1, p2 string
		err := tx.QueryRow(ctx, `SELECT participant1, participant2 FROM conversations WHERE id = $1 FOR UPDATE`,
			conversationID).Scan(&p1, &p2)
		if err != nil {
			if stderrors.Is(err, pgx.ErrNoRows) {
				return errors.NotFound("Conversation", err)
			}
			return err
		}
		if readerID != p1 && readerID != p2 {
			return errors.Forbidden("Reader is not a participant", nil)
		}

		rows, err := tx.Query(ctx, `
			UPDATE messages SET
				read_by = array_append(read_by, $2),
				status = CASE WHEN status IN ('SENT', 'DELIVERED') THEN 'READ' ELSE status END,
				updated_at = $3
			WHERE conversation_id = $1 AND sender_id <> $2 AND NOT ($2 = ANY(read_by))
			RETURNING id`, conversationID, readerID, at)
		if err != nil {
			return err
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		sort.Strings(ids)
		changed = ids

		_, err = tx.Exec(ctx, `
			UPDATE conversations SET
				unread1 = CASE WHEN participant1 = $2 THEN 0 ELSE unread1 END,
				unread2 = CASE WHEN participant2 = $2 THEN 0 ELSE unread2 END
			WHERE id = $1`, conversationID, readerID)
		return err
	})
	if err != nil {
		return nil, wrapPostgres("Failed to mark conversation read", err)
	}
	return changed, nil
}

func (r *postgresChatRepository) SoftDeleteMessage(ctx context.Context, id string, at time.Time) (*entity.Message, bool, error) {
	var (
		result  *entity.Message
		changed bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		msg, err := scanMessage(tx.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if stderrors.Is(err, pgx.ErrNoRows) {
				return errors.NotFound("Message", err)
			}
			return err
		}
		result, changed = msg, msg.ApplySoftDelete(at)
		if !changed {
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE messages SET content = $2, translated_content = '{}'::jsonb, attachments = '{}',
				status = $3, deleted_at = $4, updated_at = $4
			WHERE id = $1`, id, msg.Content, string(msg.Status), at)
		return err
	})
	if err != nil {
		return nil, false, wrapPostgres("Failed to delete message", err)
	}
	return result, changed, nil
}

func wrapPostgres(message string, err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return errors.Internal(message, err)
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilMap(values map[string]string) map[string]string {
	if values == nil {
		return map[string]string{}
	}
	return values
}
