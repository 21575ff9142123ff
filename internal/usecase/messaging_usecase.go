package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/internal/domain/service"
	"marketchat/internal/infrastructure/metrics"
	"marketchat/internal/infrastructure/ratelimit"
	"marketchat/internal/infrastructure/translation"
	"marketchat/pkg/errors"
	"marketchat/pkg/logger"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// MultiTranslator renders one text into several languages without failing.
type MultiTranslator interface {
	TranslateToAll(ctx context.Context, text, sourceLang string, targets []string) map[string]string
}

// MessagingOptions carries the optional collaborators of the messaging
// service. Zero values disable the feature they provide.
type MessagingOptions struct {
	Translator  MultiTranslator
	Languages   []string
	Attachments service.AttachmentChecker
	RateLimiter *ratelimit.RateLimiter
}

type MessagingUseCase struct {
	chatRepo    repository.ChatRepository
	accountRepo repository.AccountRepository
	reportRepo  repository.ReportRepository
	audit       *AuditUseCase
	publisher   EventPublisher
	translator  MultiTranslator
	languages   []string
	attachments service.AttachmentChecker
	rateLimiter *ratelimit.RateLimiter
	locks       *conversationLocks
	now         func() time.Time
}

func NewMessagingUseCase(
	chatRepo repository.ChatRepository,
	accountRepo repository.AccountRepository,
	reportRepo repository.ReportRepository,
	audit *AuditUseCase,
	publisher EventPublisher,
	opts MessagingOptions,
) *MessagingUseCase {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if opts.Translator == nil {
		opts.Translator = translation.NewService(translation.Passthrough{}, 0)
	}
	languages := make([]string, 0, len(opts.Languages))
	for _, lang := range opts.Languages {
		if lang = translation.Normalize(lang); lang != "" {
			languages = append(languages, lang)
		}
	}

	return &MessagingUseCase{
		chatRepo:    chatRepo,
		accountRepo: accountRepo,
		reportRepo:  reportRepo,
		audit:       audit,
		publisher:   publisher,
		translator:  opts.Translator,
		languages:   languages,
		attachments: opts.Attachments,
		rateLimiter: opts.RateLimiter,
		locks:       newConversationLocks(),
		now:         time.Now,
	}
}

type CreateConversationInput struct {
	CounterpartID string
	Type          string
	Correlation   entity.CorrelationIDs
}

type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Content        string
	Language       string
	ReplyToID      string
	Attachments    []string
}

type ReportMessageInput struct {
	MessageID   string
	ReporterID  string
	Reason      entity.ReportReason
	Description string
}

type MessagePage struct {
	Messages   []*entity.Message `json:"messages"`
	HasMore    bool              `json:"has_more"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// CreateOrGetConversation returns the conversation for (initiator,
// counterpart, type, correlation id), creating it on first contact. The
// boolean reports whether this call created it.
func (uc *MessagingUseCase) CreateOrGetConversation(ctx context.Context, initiatorID string, input CreateConversationInput) (*entity.Conversation, bool, error) {
	conversationType, ok := service.ParseConversationType(input.Type)
	if !ok {
		return nil, false, errors.InvalidArgument(fmt.Sprintf("Unknown conversation type %q", input.Type))
	}
	if input.CounterpartID == "" {
		return nil, false, errors.InvalidArgument("Counterpart is required")
	}
	if input.CounterpartID == initiatorID {
		return nil, false, errors.InvalidArgument("You cannot open a conversation with yourself")
	}
	if err := uc.allow(initiatorID, ratelimit.ActionCreateConversation); err != nil {
		return nil, false, err
	}

	initiator, err := uc.accountRepo.GetByID(ctx, initiatorID)
	if err != nil {
		logger.Error("CreateConversation Error: initiator %s lookup failed: %v", initiatorID, err)
		return nil, false, err
	}
	counterpart, err := uc.accountRepo.GetByID(ctx, input.CounterpartID)
	if err != nil {
		logger.Error("CreateConversation Error: counterpart %s lookup failed: %v", input.CounterpartID, err)
		return nil, false, err
	}

	if !service.CanConverse(initiator.AccountType, counterpart.AccountType, conversationType) {
		return nil, false, errors.Forbidden(fmt.Sprintf("%s conversations are not allowed between %s and %s",
			conversationType, initiator.AccountType, counterpart.AccountType), nil)
	}

	conv := &entity.Conversation{
		ID:           newEntityID(),
		Type:         conversationType,
		Participant1: initiatorID,
		Participant2: input.CounterpartID,
		Status:       entity.ConversationActive,
		CreatedAt:    uc.now(),
	}
	switch conversationType {
	case entity.ConversationOrder:
		conv.OrderID = input.Correlation.OrderID
	case entity.ConversationDelivery:
		conv.DeliveryID = input.Correlation.DeliveryID
	case entity.ConversationSupport:
		conv.SupportTicketID = input.Correlation.SupportTicketID
	}

	stored, created, err := uc.chatRepo.CreateIfAbsent(ctx, conv)
	if err != nil {
		logger.Error("CreateConversation Error: store rejected conversation: %v", err)
		return nil, false, err
	}

	if created {
		uc.audit.Record(ctx, &entity.AuditLogEntry{
			ConversationID: stored.ID,
			Action:         entity.AuditCreateConversation,
			ActorID:        initiatorID,
			TargetID:       input.CounterpartID,
			Detail: map[string]interface{}{
				"type":           string(stored.Type),
				"correlation_id": stored.CorrelationID(),
			},
		})
		uc.publisher.PublishToUser(ctx, stored.Participant1, EventConversationNew, stored)
		uc.publisher.PublishToUser(ctx, stored.Participant2, EventConversationNew, stored)
	}
	return stored, created, nil
}

func (uc *MessagingUseCase) GetConversation(ctx context.Context, conversationID, requesterID string) (*entity.Conversation, error) {
	conv, err := uc.chatRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := uc.authorizeView(ctx, conv, requesterID); err != nil {
		return nil, err
	}
	return conv, nil
}

func (uc *MessagingUseCase) ListConversations(ctx context.Context, userID string, filter entity.ConversationFilter) ([]*entity.Conversation, error) {
	if filter.Type != "" {
		if _, ok := service.ParseConversationType(string(filter.Type)); !ok {
			return nil, errors.InvalidArgument(fmt.Sprintf("Unknown conversation type %q", filter.Type))
		}
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, errors.InvalidArgument(fmt.Sprintf("Unknown conversation status %q", filter.Status))
	}
	filter.Limit = clampPageSize(filter.Limit)
	return uc.chatRepo.ListByParticipant(ctx, userID, filter)
}

// ListActiveConversationIDs is used to subscribe a fresh connection to the
// groups of every conversation its user can still write to.
func (uc *MessagingUseCase) ListActiveConversationIDs(ctx context.Context, userID string) ([]string, error) {
	convs, err := uc.chatRepo.ListByParticipant(ctx, userID, entity.ConversationFilter{Status: entity.ConversationActive})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(convs))
	for _, conv := range convs {
		ids = append(ids, conv.ID)
	}
	return ids, nil
}

// IsParticipant re-reads the conversation from the store. The gateway calls
// it on every join instead of trusting its cached group membership.
func (uc *MessagingUseCase) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	conv, err := uc.chatRepo.GetByID(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return conv.HasParticipant(userID), nil
}

func (uc *MessagingUseCase) UpdateConversationStatus(ctx context.Context, conversationID, requesterID string, status entity.ConversationStatus) (*entity.Conversation, error) {
	if !status.Valid() {
		return nil, errors.InvalidArgument(fmt.Sprintf("Unknown conversation status %q", status))
	}
	conv, err := uc.chatRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := uc.authorizeView(ctx, conv, requesterID); err != nil {
		return nil, err
	}
	if conv.Status == status {
		return conv, nil
	}
	if !conv.Status.CanTransition(status) {
		return nil, errors.InvalidState(fmt.Sprintf("Conversation cannot move from %s to %s", conv.Status, status))
	}

	unlock := uc.locks.lock(conversationID)
	defer unlock()

	updated, err := uc.chatRepo.UpdateStatus(ctx, conversationID, conv.Status, status)
	if err != nil {
		return nil, err
	}
	uc.publisher.PublishToConversation(ctx, conversationID, EventConversationUpdated, updated)
	return updated, nil
}

// Send validates and commits a message, then publishes message-new to the
// conversation group, sender included.
func (uc *MessagingUseCase) Send(ctx context.Context, input SendMessageInput) (*entity.Message, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" && len(input.Attachments) == 0 {
		return nil, errors.InvalidArgument("Message must have content or at least one attachment")
	}
	if err := uc.allow(input.SenderID, ratelimit.ActionSendMessage); err != nil {
		return nil, err
	}

	conv, err := uc.chatRepo.GetByID(ctx, input.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(input.SenderID) {
		return nil, errors.Forbidden("You are not a participant of this conversation", nil)
	}
	if conv.Status != entity.ConversationActive {
		return nil, errors.InvalidState(fmt.Sprintf("Conversation is %s", conv.Status))
	}

	var replyTo *entity.Message
	if input.ReplyToID != "" {
		replyTo, err = uc.chatRepo.GetMessage(ctx, input.ReplyToID)
		if err != nil {
			if errors.Is(err, errors.CodeNotFound) {
				return nil, errors.InvalidArgument("Reply target does not exist")
			}
			return nil, err
		}
		if replyTo.ConversationID != conv.ID {
			return nil, errors.InvalidArgument("Reply target belongs to another conversation")
		}
	}

	if len(input.Attachments) > 0 && uc.attachments != nil {
		if err := uc.attachments.CheckAttachments(ctx, input.Attachments); err != nil {
			return nil, err
		}
	}

	language := translation.Normalize(input.Language)
	if language == "" && len(uc.languages) > 0 {
		language = uc.languages[0]
	}

	msg := &entity.Message{
		ConversationID: conv.ID,
		SenderID:       input.SenderID,
		Language:       language,
		Status:         entity.MessageSent,
		ReadBy:         []string{},
		ReplyToID:      input.ReplyToID,
		Attachments:    input.Attachments,
	}
	if content != "" {
		msg.Content = entity.StringPtr(content)
		if translated := uc.translator.TranslateToAll(ctx, content, language, uc.languages); len(translated) > 0 {
			msg.TranslatedContent = translated
		}
	}

	// Identity is assigned under the lock so id order matches commit order.
	unlock := uc.locks.lock(conv.ID)
	msg.ID = newEntityID()
	msg.CreatedAt = uc.now()
	updated, err := uc.chatRepo.AppendMessage(ctx, msg, conv.Counterpart(input.SenderID))
	if err != nil {
		unlock()
		logger.Error("SendMessage Error: failed to append message to %s: %v", conv.ID, err)
		return nil, err
	}
	if replyTo != nil {
		msg.ReplyTo = replyTo.Preview()
	}
	uc.publisher.PublishToConversation(ctx, conv.ID, EventMessageNew, msg)
	unlock()

	metrics.MessagesSent.WithLabelValues(string(updated.Type)).Inc()
	uc.audit.Record(ctx, &entity.AuditLogEntry{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		Action:         entity.AuditSendMessage,
		ActorID:        input.SenderID,
		TargetID:       conv.Counterpart(input.SenderID),
		Detail: map[string]interface{}{
			"language":    msg.Language,
			"attachments": len(msg.Attachments),
		},
	})
	return msg, nil
}

// MarkRead records readerID on every message of the other participant and
// resets the reader's unread counter. Repeated calls change nothing.
func (uc *MessagingUseCase) MarkRead(ctx context.Context, conversationID, readerID string) ([]string, error) {
	conv, err := uc.chatRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(readerID) {
		return nil, errors.Forbidden("You are not a participant of this conversation", nil)
	}

	unlock := uc.locks.lock(conversationID)
	defer unlock()

	at := uc.now()
	changed, err := uc.chatRepo.MarkConversationRead(ctx, conversationID, readerID, at)
	if err != nil {
		logger.Error("MarkRead Error: conversation %s reader %s: %v", conversationID, readerID, err)
		return nil, err
	}
	if len(changed) > 0 {
		uc.publisher.PublishToConversation(ctx, conversationID, EventMessagesRead, &MessagesReadEvent{
			ConversationID: conversationID,
			ReaderID:       readerID,
			MessageIDs:     changed,
			ReadAt:         at,
		})
	}
	return changed, nil
}

// ListMessages returns one page, oldest first. cursor is the NextCursor of
// the previous page and excludes itself.
func (uc *MessagingUseCase) ListMessages(ctx context.Context, conversationID, requesterID string, limit int, cursor string) (*MessagePage, error) {
	conv, err := uc.chatRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := uc.authorizeView(ctx, conv, requesterID); err != nil {
		return nil, err
	}

	limit = clampPageSize(limit)
	newestFirst, err := uc.chatRepo.ListMessages(ctx, conversationID, limit+1, cursor)
	if err != nil {
		return nil, err
	}

	page := &MessagePage{Messages: []*entity.Message{}}
	if len(newestFirst) > limit {
		newestFirst = newestFirst[:limit]
		page.HasMore = true
		page.NextCursor = newestFirst[len(newestFirst)-1].ID
	}

	for i := len(newestFirst) - 1; i >= 0; i-- {
		page.Messages = append(page.Messages, newestFirst[i])
	}
	uc.resolveReplies(ctx, page.Messages)
	return page, nil
}

// resolveReplies attaches a one-hop preview of each replied-to message.
// Deeper chains are not followed.
func (uc *MessagingUseCase) resolveReplies(ctx context.Context, messages []*entity.Message) {
	byID := make(map[string]*entity.Message, len(messages))
	for _, msg := range messages {
		byID[msg.ID] = msg
	}
	for _, msg := range messages {
		if msg.ReplyToID == "" {
			continue
		}
		target, ok := byID[msg.ReplyToID]
		if !ok {
			fetched, err := uc.chatRepo.GetMessage(ctx, msg.ReplyToID)
			if err != nil {
				logger.Warn("ListMessages: reply target %s of %s unavailable: %v", msg.ReplyToID, msg.ID, err)
				continue
			}
			target = fetched
			byID[target.ID] = target
		}
		msg.ReplyTo = target.Preview()
	}
}

func (uc *MessagingUseCase) Report(ctx context.Context, input ReportMessageInput) (*entity.MessageReport, error) {
	if !input.Reason.Valid() {
		return nil, errors.InvalidArgument("A valid report reason is required")
	}

	msg, err := uc.chatRepo.GetMessage(ctx, input.MessageID)
	if err != nil {
		return nil, err
	}
	conv, err := uc.chatRepo.GetByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(input.ReporterID) {
		return nil, errors.Forbidden("Only participants can report messages in this conversation", nil)
	}
	if err := uc.allow(input.ReporterID, ratelimit.ActionReport); err != nil {
		return nil, err
	}

	report := &entity.MessageReport{
		ID:             newEntityID(),
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		ReporterID:     input.ReporterID,
		Reason:         input.Reason,
		Description:    strings.TrimSpace(input.Description),
		Status:         entity.ReportPending,
		CreatedAt:      uc.now(),
	}
	if err := uc.reportRepo.Create(ctx, report); err != nil {
		logger.Error("ReportMessage Error: failed to store report on %s: %v", msg.ID, err)
		return nil, err
	}

	uc.audit.Record(ctx, &entity.AuditLogEntry{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		Action:         entity.AuditReportMessage,
		ActorID:        input.ReporterID,
		TargetID:       msg.SenderID,
		Detail: map[string]interface{}{
			"report_id": report.ID,
			"reason":    string(report.Reason),
		},
	})
	return report, nil
}

// Delete soft-deletes a message. The sender and moderation staff may delete;
// deleting an already deleted message returns it unchanged.
func (uc *MessagingUseCase) Delete(ctx context.Context, messageID, requesterID string) (*entity.Message, error) {
	msg, err := uc.chatRepo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	byModerator := false
	if msg.SenderID != requesterID {
		if !uc.isModerationStaff(ctx, requesterID) {
			return nil, errors.Forbidden("Only the sender or a moderator can delete this message", nil)
		}
		byModerator = true
	}
	original := entity.StringValue(msg.Content)

	unlock := uc.locks.lock(msg.ConversationID)
	deleted, changed, err := uc.chatRepo.SoftDeleteMessage(ctx, messageID, uc.now())
	if err != nil {
		unlock()
		logger.Error("DeleteMessage Error: %s: %v", messageID, err)
		return nil, err
	}
	if changed {
		uc.publisher.PublishToConversation(ctx, deleted.ConversationID, EventMessageDeleted, &MessageDeletedEvent{
			ConversationID: deleted.ConversationID,
			MessageID:      deleted.ID,
			DeletedBy:      requesterID,
			Message:        deleted,
		})
	}
	unlock()

	if changed {
		uc.audit.Record(ctx, &entity.AuditLogEntry{
			ConversationID: deleted.ConversationID,
			MessageID:      deleted.ID,
			Action:         entity.AuditDeleteMessage,
			ActorID:        requesterID,
			TargetID:       deleted.SenderID,
			Detail: map[string]interface{}{
				"original_content": original,
				"by_moderator":     byModerator,
			},
		})
	}
	return deleted, nil
}

// ReviewReport moves a report forward. RESOLVED and DISMISSED are final.
func (uc *MessagingUseCase) ReviewReport(ctx context.Context, reportID, reviewerID string, status entity.ReportStatus, notes string) (*entity.MessageReport, error) {
	if !uc.isModerationStaff(ctx, reviewerID) {
		return nil, errors.Forbidden("Moderation privileges required", nil)
	}
	if !status.Valid() || status == entity.ReportPending {
		return nil, errors.InvalidArgument(fmt.Sprintf("Reports cannot be moved to %q", status))
	}

	report, err := uc.reportRepo.Review(ctx, reportID, status.ReviewableFrom(), status, reviewerID, strings.TrimSpace(notes), uc.now())
	if err != nil {
		return nil, err
	}

	uc.audit.Record(ctx, &entity.AuditLogEntry{
		ConversationID: report.ConversationID,
		MessageID:      report.MessageID,
		Action:         entity.AuditReviewReport,
		ActorID:        reviewerID,
		TargetID:       report.ID,
		Detail: map[string]interface{}{
			"status": string(report.Status),
			"notes":  report.ReviewNotes,
		},
	})
	return report, nil
}

func (uc *MessagingUseCase) authorizeView(ctx context.Context, conv *entity.Conversation, userID string) error {
	if conv.HasParticipant(userID) || uc.isModerationStaff(ctx, userID) {
		return nil
	}
	return errors.Forbidden("You do not have access to this conversation", nil)
}

func (uc *MessagingUseCase) isModerationStaff(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	account, err := uc.accountRepo.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, errors.CodeNotFound) {
			logger.Warn("Account lookup for %s failed: %v", userID, err)
		}
		return false
	}
	return service.IsModerationStaff(account.AccountType)
}

func (uc *MessagingUseCase) allow(userID, action string) error {
	if uc.rateLimiter == nil {
		return nil
	}
	if ok, wait := uc.rateLimiter.Allow(userID, action); !ok {
		logger.Warn("Rate limited: user %s action %s must wait %v", userID, action, wait)
		return errors.TooManyRequests(fmt.Sprintf("Rate limit exceeded, retry in %s", wait.Round(time.Second)))
	}
	return nil
}

func clampPageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// newEntityID returns a time-ordered UUIDv7, so identity order is creation
// order and ids double as pagination cursors.
func newEntityID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
