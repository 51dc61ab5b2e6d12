package domain

import "time"

// Purchase records a confirmed in-app purchase transaction. The unique
// transaction id is what guarantees at-most-once crediting when the store
// delivers the same confirmation twice.
type Purchase struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"user_id"`
	ProductID      string    `json:"product_id"`
	TransactionID  string    `json:"transaction_id"`
	CreditsGranted int64     `json:"credits_granted"`
	CreatedAt      time.Time `json:"created_at"`
}
