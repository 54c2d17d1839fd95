package domain

import "time"

// ABTestStatus enumerates the lifecycle states of an A/B test.
type ABTestStatus string

const (
	ABTestDraft     ABTestStatus = "draft"
	ABTestActive    ABTestStatus = "active"
	ABTestPaused    ABTestStatus = "paused"
	ABTestCompleted ABTestStatus = "completed"
)

// ABTest is a content experiment over a campaign's contacts. Variant weights
// are percentages and must sum to 100.
type ABTest struct {
	ID              string       `json:"id" db:"id"`
	CampaignID      string       `json:"campaign_id" db:"campaign_id"`
	Name            string       `json:"name" db:"name"`
	Status          ABTestStatus `json:"status" db:"status"`
	Variants        []ABVariant  `json:"variants"`
	WinnerVariant   *string      `json:"winner_variant" db:"winner_variant"`
	ConfidenceLevel *float64     `json:"confidence_level" db:"confidence_level"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// ValidateWeights checks that variant weights are in range and sum to 100.
func (t *ABTest) ValidateWeights() bool {
	sum := 0
	for _, v := range t.Variants {
		if v.Weight < 0 || v.Weight > 100 {
			return false
		}
		sum += v.Weight
	}
	return sum == 100
}

// ABVariant is one content alternative in an A/B test.
type ABVariant struct {
	ID      string `json:"id" db:"id"`
	TestID  string `json:"test_id" db:"test_id"`
	Name    string `json:"name" db:"name"`     // A, B, C, ...
	Weight  int    `json:"weight" db:"weight"` // target share, 0-100
	Subject string `json:"subject" db:"subject"`
	Body    string `json:"body" db:"body"`
}

// ABTestAssignment pins one contact to one variant for the lifetime of a
// test. The (test_id, contact_id) pair is unique at the store level, which
// is the safety net against concurrent assignment races.
type ABTestAssignment struct {
	ID          string    `json:"id" db:"id"`
	TestID      string    `json:"test_id" db:"test_id"`
	ContactID   string    `json:"contact_id" db:"contact_id"`
	VariantName string    `json:"variant_name" db:"variant_name"`
	AssignedAt  time.Time `json:"assigned_at" db:"assigned_at"`
}

// ABEventType enumerates trackable funnel events for an assignment.
type ABEventType string

const (
	ABEventSent      ABEventType = "sent"
	ABEventOpened    ABEventType = "opened"
	ABEventClicked   ABEventType = "clicked"
	ABEventResponded ABEventType = "responded"
	ABEventBooked    ABEventType = "booked"
	ABEventBounced   ABEventType = "bounced"
)

// IsValid reports whether the value is one of the trackable funnel events.
func (e ABEventType) IsValid() bool {
	switch e {
	case ABEventSent, ABEventOpened, ABEventClicked, ABEventResponded, ABEventBooked, ABEventBounced:
		return true
	}
	return false
}

// ABTestEvent is an append-only funnel event attributed to an assignment.
type ABTestEvent struct {
	ID           string      `json:"id" db:"id"`
	AssignmentID string      `json:"assignment_id" db:"assignment_id"`
	EventType    ABEventType `json:"event_type" db:"event_type"`
	Payload      string      `json:"payload,omitempty" db:"payload"`
	OccurredAt   time.Time   `json:"occurred_at" db:"occurred_at"`
}

// ABVariantResult is a per-variant rollup of assignment and event counts.
// Statistical winner selection happens outside this engine.
type ABVariantResult struct {
	VariantName    string  `json:"variant_name"`
	AssignedCount  int     `json:"assigned_count"`
	SentCount      int     `json:"sent_count"`
	OpenCount      int     `json:"open_count"`
	ClickCount     int     `json:"click_count"`
	ResponseCount  int     `json:"response_count"`
	BookedCount    int     `json:"booked_count"`
	BounceCount    int     `json:"bounce_count"`
	TargetWeight   int     `json:"target_weight"`
	ActualSharePct float64 `json:"actual_share_pct"`
}
