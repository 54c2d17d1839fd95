package domain

import "time"

// ChannelType identifies the outbound messaging channel.
type ChannelType string

const (
	ChannelWhatsApp ChannelType = "whatsapp"
	ChannelEmail    ChannelType = "email"
)

// ChannelMessage is the fully-resolved message ready for a channel sender.
// By the time a message reaches this struct, all template rendering and
// media link side-loading is complete; senders transmit it as-is.
type ChannelMessage struct {
	ID          string      `json:"id"`
	ContactID   string      `json:"contact_id"`
	CampaignID  string      `json:"campaign_id"`
	Channel     ChannelType `json:"channel"`
	Destination string      `json:"destination"` // phone for whatsapp, address for email
	Subject     string      `json:"subject,omitempty"`
	Body        string      `json:"body"`
	HTMLBody    string      `json:"html_body,omitempty"`
	FromName    string      `json:"from_name,omitempty"`
	FromEmail   string      `json:"from_email,omitempty"`
	ReplyTo     string      `json:"reply_to,omitempty"`
}

// SendResult is returned by a channel sender after attempting delivery.
type SendResult struct {
	Success           bool        `json:"success"`
	ProviderMessageID string      `json:"provider_message_id"`
	Channel           ChannelType `json:"channel"`
	SentAt            time.Time   `json:"sent_at"`
	Error             string      `json:"error,omitempty"`
}
