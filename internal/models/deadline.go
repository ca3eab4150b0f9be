package models

import "time"

// Deadline maps a time-boxed claim account to a receiving account, a
// claimable project, a refund account and an expiry instant. A deadline
// account becomes "seen" when its on-chain creation event is processed;
// senders whose edges point at it are then revalidated.
type Deadline struct {
	AccountID         string    `json:"accountId" db:"account_id"`
	ReceiverAccountID string    `json:"receiverAccountId" db:"receiver_account_id"`
	ProjectAccountID  string    `json:"projectAccountId" db:"project_account_id"`
	RefundAccountID   string    `json:"refundAccountId" db:"refund_account_id"`
	ClaimDeadline     time.Time `json:"claimDeadline" db:"claim_deadline"`
	IsVisible         bool      `json:"isVisible" db:"is_visible"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}
