package domain

import (
	"strings"
	"time"
)

// ContactStatus enumerates the lifecycle states of an outreach contact.
// Transitions are one-way: pending moves to sent or failed and never back.
type ContactStatus string

const (
	ContactPending ContactStatus = "pending"
	ContactSent    ContactStatus = "sent"
	ContactFailed  ContactStatus = "failed"
)

// Contact represents a lead/prospect targeted by outreach.
type Contact struct {
	ID              string        `json:"id" db:"id"`
	CampaignID      string        `json:"campaign_id" db:"campaign_id"`
	FirstName       string        `json:"first_name" db:"first_name"`
	LastName        string        `json:"last_name" db:"last_name"`
	Company         string        `json:"company" db:"company"`
	Phone           string        `json:"phone" db:"phone"`
	Email           *string       `json:"email" db:"email"`
	Status          ContactStatus `json:"status" db:"status"`
	ScheduledSendAt *time.Time    `json:"scheduled_send_at" db:"scheduled_send_at"`
	AssignedSDRID   *string       `json:"assigned_sdr_id" db:"assigned_sdr_id"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the contact has reached a final status.
func (c *Contact) IsTerminal() bool {
	return c.Status == ContactSent || c.Status == ContactFailed
}

// HasDestination reports whether the contact can be reached on the given channel.
func (c *Contact) HasDestination(ch ChannelType) bool {
	switch ch {
	case ChannelWhatsApp:
		return strings.TrimSpace(c.Phone) != ""
	case ChannelEmail:
		return c.Email != nil && strings.TrimSpace(*c.Email) != ""
	}
	return false
}

// ContactOutcome enumerates what happened on a single contact attempt.
type ContactOutcome string

const (
	OutcomeSent    ContactOutcome = "sent"
	OutcomeFailed  ContactOutcome = "failed"
	OutcomeSkipped ContactOutcome = "skipped"
)

// ContactHistoryRecord is one append-only ledger entry per actual send
// attempt. Eligibility cooldowns and daily volume counters are derived
// exclusively from this ledger, never from in-process state.
type ContactHistoryRecord struct {
	ID           string         `json:"id" db:"id"`
	ContactID    string         `json:"contact_id" db:"contact_id"`
	CampaignID   string         `json:"campaign_id" db:"campaign_id"`
	SDRID        *string        `json:"sdr_id" db:"sdr_id"`
	Channel      ChannelType    `json:"channel" db:"channel"`
	Phone        string         `json:"phone" db:"phone"`
	Email        *string        `json:"email" db:"email"`
	Outcome      ContactOutcome `json:"outcome" db:"outcome"`
	DelaySeconds *int           `json:"delay_seconds" db:"delay_seconds"`
	BreakTaken   *string        `json:"break_taken" db:"break_taken"`
	ErrorMessage *string        `json:"error_message" db:"error_message"`
	ContactedAt  time.Time      `json:"contacted_at" db:"contacted_at"`
}
