package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
)

// memoryChatRepository keeps conversations and messages in process. It backs
// STORE_DRIVER=memory and the service tests. A single mutex makes every
// method one atomic step, which is the guarantee the other stores give with
// transactions.
type memoryChatRepository struct {
	mu             sync.Mutex
	conversations  map[string]*entity.Conversation
	keys           map[string]string
	messages       map[string]*entity.Message
	byConversation map[string][]string
}

func NewMemoryChatRepository() repository.ChatRepository {
	return &memoryChatRepository{
		conversations:  make(map[string]*entity.Conversation),
		keys:           make(map[string]string),
		messages:       make(map[string]*entity.Message),
		byConversation: make(map[string][]string),
	}
}

func (r *memoryChatRepository) CreateIfAbsent(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := conv.Key()
	if id, ok := r.keys[key]; ok {
		return cloneConversation(r.conversations[id]), false, nil
	}

	stored := cloneConversation(conv)
	if stored.ID == "" {
		stored.ID = newID()
	}
	prepareConversation(stored, time.Now())

	r.conversations[stored.ID] = stored
	r.keys[key] = stored.ID
	return cloneConversation(stored), true, nil
}

func (r *memoryChatRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return cloneConversation(conv), nil
}

func (r *memoryChatRepository) ListByParticipant(ctx context.Context, userID string, filter entity.ConversationFilter) ([]*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.Conversation
	for _, conv := range r.conversations {
		if conv.HasParticipant(userID) && filter.Matches(conv) {
			out = append(out, cloneConversation(conv))
		}
	}
	sortByActivity(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryChatRepository) UpdateStatus(ctx context.Context, id string, from, to entity.ConversationStatus) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	if conv.Status != from {
		return nil, errors.InvalidState("Conversation status changed concurrently")
	}
	conv.Status = to
	conv.UpdatedAt = time.Now()
	return cloneConversation(conv), nil
}

func (r *memoryChatRepository) AppendMessage(ctx context.Context, msg *entity.Message, recipientID string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[msg.ConversationID]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	if conv.Status != entity.ConversationActive {
		return nil, errors.InvalidState("Conversation is not active")
	}
	slot := conv.UnreadSlot(recipientID)
	if slot == 0 || recipientID == msg.SenderID {
		return nil, errors.InvalidArgument("Recipient is not the other participant")
	}

	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.UpdatedAt = msg.CreatedAt

	r.messages[msg.ID] = cloneMessage(msg)
	ids := append(r.byConversation[msg.ConversationID], msg.ID)
	sort.Strings(ids)
	r.byConversation[msg.ConversationID] = ids

	if slot == 1 {
		conv.Unread1++
	} else {
		conv.Unread2++
	}
	at := msg.CreatedAt
	conv.LastMessageID = msg.ID
	conv.LastMessageAt = &at
	conv.UpdatedAt = at

	return cloneConversation(conv), nil
}

func (r *memoryChatRepository) GetMessage(ctx context.Context, id string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	return cloneMessage(msg), nil
}

func (r *memoryChatRepository) ListMessages(ctx context.Context, conversationID string, limit int, beforeID string) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.byConversation[conversationID]
	var out []*entity.Message
	for i := len(ids) - 1; i >= 0; i-- {
		if beforeID != "" && ids[i] >= beforeID {
			continue
		}
		out = append(out, cloneMessage(r.messages[ids[i]]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryChatRepository) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[conversationID]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}

	var changed []string
	for _, id := range r.byConversation[conversationID] {
		msg := r.messages[id]
		if msg.ApplyRead(readerID) {
			msg.UpdatedAt = at
			changed = append(changed, id)
		}
	}

	switch conv.UnreadSlot(readerID) {
	case 1:
		conv.Unread1 = 0
	case 2:
		conv.Unread2 = 0
	}
	return changed, nil
}

func (r *memoryChatRepository) SoftDeleteMessage(ctx context.Context, id string, at time.Time) (*entity.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return nil, false, errors.NotFound("Message", nil)
	}
	changed := msg.ApplySoftDelete(at)
	return cloneMessage(msg), changed, nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func prepareConversation(conv *entity.Conversation, now time.Time) {
	conv.Participants = []string{conv.Participant1, conv.Participant2}
	conv.ParticipantKey = entity.PairKey(conv.Participant1, conv.Participant2)
	if conv.Status == "" {
		conv.Status = entity.ConversationActive
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = conv.CreatedAt
}

func sortByActivity(convs []*entity.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		ai, aj := convs[i].LastActivity(), convs[j].LastActivity()
		if ai.Equal(aj) {
			return convs[i].ID > convs[j].ID
		}
		return ai.After(aj)
	})
}

func cloneConversation(c *entity.Conversation) *entity.Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	if c.LastMessageAt != nil {
		at := *c.LastMessageAt
		out.LastMessageAt = &at
	}
	return &out
}

func cloneMessage(m *entity.Message) *entity.Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.Content != nil {
		out.Content = entity.StringPtr(*m.Content)
	}
	if m.TranslatedContent != nil {
		out.TranslatedContent = make(map[string]string, len(m.TranslatedContent))
		for k, v := range m.TranslatedContent {
			out.TranslatedContent[k] = v
		}
	}
	out.ReadBy = append([]string{}, m.ReadBy...)
	out.Attachments = append([]string(nil), m.Attachments...)
	if m.DeletedAt != nil {
		at := *m.DeletedAt
		out.DeletedAt = &at
	}
	out.ReplyTo = nil
	return &out
}
