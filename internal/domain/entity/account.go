package entity

import "time"

type AccountType string

const (
	AccountBuyer           AccountType = "buyer"
	AccountSeller          AccountType = "seller"
	AccountDeliveryAgent   AccountType = "delivery_agent"
	AccountCommercialAgent AccountType = "commercial_agent"
	AccountModerator       AccountType = "moderator"
	AccountAdmin           AccountType = "admin"
)

// AllAccountTypes lists every account type the marketplace knows about.
var AllAccountTypes = []AccountType{
	AccountBuyer,
	AccountSeller,
	AccountDeliveryAgent,
	AccountCommercialAgent,
	AccountModerator,
	AccountAdmin,
}

func (t AccountType) Valid() bool {
	for _, known := range AllAccountTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Account is the messaging view of a marketplace user. Accounts are owned by
// the user service; this subsystem only reads them.
type Account struct {
	ID          string      `json:"id" firestore:"id"`
	Username    string      `json:"username" firestore:"username"`
	AccountType AccountType `json:"account_type" firestore:"accountType"`
	Status      string      `json:"status" firestore:"status"`
	CreatedAt   time.Time   `json:"created_at" firestore:"createdAt"`
}
