package service

import "marketchat/internal/domain/entity"

type accountPair struct {
	a, b entity.AccountType
}

// commercePairs are the account pairings allowed to talk about an order or a
// delivery. Lookups normalize the pair so the table is symmetric.
var commercePairs = map[accountPair]bool{
	{entity.AccountBuyer, entity.AccountSeller}:         true,
	{entity.AccountBuyer, entity.AccountDeliveryAgent}:  true,
	{entity.AccountSeller, entity.AccountDeliveryAgent}: true,
}

var supportStaff = map[entity.AccountType]bool{
	entity.AccountAdmin:           true,
	entity.AccountModerator:       true,
	entity.AccountCommercialAgent: true,
}

var moderationStaff = map[entity.AccountType]bool{
	entity.AccountAdmin:     true,
	entity.AccountModerator: true,
}

// CanConverse decides whether accounts of the two types may open a
// conversation of the given type. It performs no I/O.
func CanConverse(first, second entity.AccountType, conversationType entity.ConversationType) bool {
	switch conversationType {
	case entity.ConversationOrder, entity.ConversationDelivery:
		return commercePairs[accountPair{first, second}] || commercePairs[accountPair{second, first}]
	case entity.ConversationSupport:
		return supportStaff[first] || supportStaff[second]
	default:
		return false
	}
}

func IsSupportStaff(t entity.AccountType) bool {
	return supportStaff[t]
}

// IsModerationStaff reports whether t may read, delete and adjudicate reports
// in conversations it does not take part in.
func IsModerationStaff(t entity.AccountType) bool {
	return moderationStaff[t]
}

func ParseConversationType(raw string) (entity.ConversationType, bool) {
	for _, t := range entity.AllConversationTypes {
		if string(t) == raw {
			return t, true
		}
	}
	return "", false
}
