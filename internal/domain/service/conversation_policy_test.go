package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"marketchat/internal/domain/entity"
)

func TestCanConverseMatrix(t *testing.T) {
	commerce := map[[2]entity.AccountType]bool{
		{entity.AccountBuyer, entity.AccountSeller}:         true,
		{entity.AccountBuyer, entity.AccountDeliveryAgent}:  true,
		{entity.AccountSeller, entity.AccountDeliveryAgent}: true,
	}
	staff := map[entity.AccountType]bool{
		entity.AccountAdmin:           true,
		entity.AccountModerator:       true,
		entity.AccountCommercialAgent: true,
	}

	types := append([]entity.ConversationType{}, entity.AllConversationTypes...)
	types = append(types, "CHITCHAT", "")

	for _, a := range entity.AllAccountTypes {
		for _, b := range entity.AllAccountTypes {
			for _, ct := range types {
				var want bool
				switch ct {
				case entity.ConversationOrder, entity.ConversationDelivery:
					want = commerce[[2]entity.AccountType{a, b}] || commerce[[2]entity.AccountType{b, a}]
				case entity.ConversationSupport:
					want = staff[a] || staff[b]
				}

				t.Run(fmt.Sprintf("%s/%s/%s", a, b, ct), func(t *testing.T) {
					assert.Equal(t, want, CanConverse(a, b, ct))
					assert.Equal(t, CanConverse(a, b, ct), CanConverse(b, a, ct), "matrix must be symmetric")
				})
			}
		}
	}
}

func TestCanConverseScenarios(t *testing.T) {
	assert.True(t, CanConverse(entity.AccountBuyer, entity.AccountSeller, entity.ConversationOrder))
	assert.False(t, CanConverse(entity.AccountBuyer, entity.AccountBuyer, entity.ConversationOrder))
	assert.False(t, CanConverse(entity.AccountSeller, entity.AccountSeller, entity.ConversationDelivery))
	assert.True(t, CanConverse(entity.AccountBuyer, entity.AccountCommercialAgent, entity.ConversationSupport))
	assert.False(t, CanConverse(entity.AccountBuyer, entity.AccountSeller, entity.ConversationSupport))
	assert.False(t, CanConverse(entity.AccountBuyer, entity.AccountAdmin, entity.ConversationOrder))
}

func TestStaffSets(t *testing.T) {
	assert.True(t, IsModerationStaff(entity.AccountModerator))
	assert.True(t, IsModerationStaff(entity.AccountAdmin))
	assert.False(t, IsModerationStaff(entity.AccountCommercialAgent))
	assert.True(t, IsSupportStaff(entity.AccountCommercialAgent))
	assert.False(t, IsSupportStaff(entity.AccountBuyer))
}

func TestParseConversationType(t *testing.T) {
	ct, ok := ParseConversationType("DELIVERY")
	assert.True(t, ok)
	assert.Equal(t, entity.ConversationDelivery, ct)

	_, ok = ParseConversationType("delivery")
	assert.False(t, ok)
}
