package domain

import "time"

// QueueItemStatus enumerates the lifecycle of a durable send queue item.
//
//	pending --[worker claims]--> sending --[send ok]--> sent
//	                             sending --[send err]--> failed
//
// sent and failed are terminal; a failed item is only ever re-enqueued
// deliberately by an operator, never retried automatically.
type QueueItemStatus string

const (
	QueuePending QueueItemStatus = "pending"
	QueueSending QueueItemStatus = "sending"
	QueueSent    QueueItemStatus = "sent"
	QueueFailed  QueueItemStatus = "failed"
)

// SendQueueItem is one durable unit of outbound WhatsApp work. The message
// body is rendered and media links side-loaded at enqueue time, so the
// dispatch worker sends it verbatim.
type SendQueueItem struct {
	ID           string          `json:"id" db:"id"`
	ContactID    string          `json:"contact_id" db:"contact_id"`
	CampaignID   string          `json:"campaign_id" db:"campaign_id"`
	SDRID        *string         `json:"sdr_id" db:"sdr_id"`
	Destination  string          `json:"destination" db:"destination"`
	Body         string          `json:"body" db:"body"`
	Status       QueueItemStatus `json:"status" db:"status"`
	ErrorMessage *string         `json:"error_message" db:"error_message"`

	// ProviderMessageID is the gateway-assigned message id, set on success.
	ProviderMessageID *string    `json:"provider_message_id" db:"provider_message_id"`
	ClaimedBy         *string    `json:"claimed_by" db:"claimed_by"`
	ClaimedAt         *time.Time `json:"claimed_at" db:"claimed_at"`
	SentAt            *time.Time `json:"sent_at" db:"sent_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the queue item can never be claimed again.
func (q *SendQueueItem) IsTerminal() bool {
	return q.Status == QueueSent || q.Status == QueueFailed
}
