// Package abtest implements variant assignment balancing for content
// experiments. Assignment happens once per (test, contact) pair, before the
// message is paced and dispatched.
package abtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/leadline/outreach-engine/internal/domain"
)

var (
	// ErrNotFound indicates the test or assignment does not exist.
	ErrNotFound = errors.New("ab test not found")
	// ErrNotActive indicates the test is not accepting assignments.
	ErrNotActive = errors.New("ab test is not active")
	// ErrNoVariants indicates the test has no variants configured.
	ErrNoVariants = errors.New("ab test has no variants")
	// ErrDuplicateAssignment is returned by repositories when the store's
	// (test_id, contact_id) uniqueness constraint rejects an insert.
	ErrDuplicateAssignment = errors.New("assignment already exists")
	// ErrInvalidWeights indicates variant weights are out of range or do not
	// sum to 100.
	ErrInvalidWeights = errors.New("variant weights must be 0-100 and sum to 100")
	// ErrInvalidTransition indicates a disallowed test status change.
	ErrInvalidTransition = errors.New("invalid ab test status transition")
	// ErrInvalidEventType indicates an event type outside the funnel enum.
	ErrInvalidEventType = errors.New("unknown ab event type")
)

// Repository is the persistence the balancer needs.
type Repository interface {
	GetTest(ctx context.Context, testID string) (*domain.ABTest, error)
	// ActiveTestForCampaign returns the campaign's active test, or nil when
	// the campaign has none.
	ActiveTestForCampaign(ctx context.Context, campaignID string) (*domain.ABTest, error)
	CreateTest(ctx context.Context, t *domain.ABTest) error
	UpdateTestStatus(ctx context.Context, testID string, status domain.ABTestStatus) error

	// GetAssignment returns nil when no assignment exists.
	GetAssignment(ctx context.Context, testID, contactID string) (*domain.ABTestAssignment, error)
	// CreateAssignment must return ErrDuplicateAssignment when the unique
	// (test_id, contact_id) constraint fires.
	CreateAssignment(ctx context.Context, a *domain.ABTestAssignment) error
	// AssignmentCounts returns current assignment counts per variant name.
	AssignmentCounts(ctx context.Context, testID string) (map[string]int, error)

	AppendEvent(ctx context.Context, e *domain.ABTestEvent) error
	VariantResults(ctx context.Context, testID string) ([]domain.ABVariantResult, error)
}

const (
	// Once a test has more than balancedMinTotal assignments and no variant
	// is further than balancedDeficitPP percentage points from its target,
	// selection switches from deficit-maximization to weighted random.
	// Pure deficit-maximization at scale oscillates deterministically,
	// always picking whichever variant last fell slightly behind.
	balancedMinTotal  = 20
	balancedDeficitPP = 5.0
)

// Service assigns variants and records experiment events.
type Service struct {
	repo Repository
	rng  *rand.Rand
}

// NewService creates an A/B testing service.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateTest persists a new experiment as a draft. A test needs at least
// two variants with weights summing to 100; a single-variant "test" is not
// an experiment.
func (s *Service) CreateTest(ctx context.Context, t *domain.ABTest) error {
	if len(t.Variants) < 2 {
		return ErrNoVariants
	}
	if !t.ValidateWeights() {
		return ErrInvalidWeights
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.Status = domain.ABTestDraft
	if err := s.repo.CreateTest(ctx, t); err != nil {
		return fmt.Errorf("create ab test: %w", err)
	}
	return nil
}

// GetTest returns one test with its variants.
func (s *Service) GetTest(ctx context.Context, testID string) (*domain.ABTest, error) {
	return s.repo.GetTest(ctx, testID)
}

// allowedTransitions maps each status to the statuses it may move to.
// Completed is terminal. Re-applying the current status is a no-op.
var allowedTransitions = map[domain.ABTestStatus][]domain.ABTestStatus{
	domain.ABTestDraft:  {domain.ABTestActive},
	domain.ABTestActive: {domain.ABTestPaused, domain.ABTestCompleted},
	domain.ABTestPaused: {domain.ABTestActive, domain.ABTestCompleted},
}

// UpdateTestStatus moves a test through its lifecycle, rejecting jumps the
// state machine does not allow (a draft cannot complete, completed never
// reopens).
func (s *Service) UpdateTestStatus(ctx context.Context, testID string, status domain.ABTestStatus) error {
	test, err := s.repo.GetTest(ctx, testID)
	if err != nil {
		return err
	}
	if test.Status == status {
		return nil
	}

	ok := false
	for _, next := range allowedTransitions[test.Status] {
		if next == status {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, test.Status, status)
	}

	if err := s.repo.UpdateTestStatus(ctx, testID, status); err != nil {
		return fmt.Errorf("update ab test status: %w", err)
	}
	return nil
}

// Assignment is the resolved variant for a contact.
type Assignment struct {
	TestID      string `json:"test_id"`
	ContactID   string `json:"contact_id"`
	VariantName string `json:"variant_name"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// AssignVariant resolves the variant for a contact, creating a one-time
// assignment on first call. Subsequent calls return the stored assignment
// unchanged; there is no re-roll.
//
// New assignments pick the variant with the maximum deficit against its
// target weight so small-sample tests converge quickly. Once the test is
// both large and well-balanced, selection degrades to cumulative-weight
// random. Concurrent calls for the same contact are resolved by the store's
// uniqueness constraint, not by locking here.
func (s *Service) AssignVariant(ctx context.Context, testID, contactID string) (*Assignment, error) {
	existing, err := s.repo.GetAssignment(ctx, testID, contactID)
	if err != nil {
		return nil, fmt.Errorf("load assignment: %w", err)
	}

	test, err := s.repo.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if len(test.Variants) == 0 {
		return nil, ErrNoVariants
	}

	if existing != nil {
		return s.resolve(test, existing.ContactID, existing.VariantName), nil
	}

	if test.Status != domain.ABTestActive {
		return nil, ErrNotActive
	}

	counts, err := s.repo.AssignmentCounts(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("load assignment counts: %w", err)
	}

	variant := s.pickVariant(test.Variants, counts)

	a := &domain.ABTestAssignment{
		ID:          uuid.New().String(),
		TestID:      testID,
		ContactID:   contactID,
		VariantName: variant.Name,
		AssignedAt:  time.Now(),
	}
	if err := s.repo.CreateAssignment(ctx, a); err != nil {
		if errors.Is(err, ErrDuplicateAssignment) {
			// Lost the race; the winner's assignment is authoritative.
			winner, gerr := s.repo.GetAssignment(ctx, testID, contactID)
			if gerr != nil || winner == nil {
				return nil, fmt.Errorf("reload racing assignment: %w", gerr)
			}
			return s.resolve(test, contactID, winner.VariantName), nil
		}
		return nil, fmt.Errorf("create assignment: %w", err)
	}

	return s.resolve(test, contactID, variant.Name), nil
}

func (s *Service) resolve(test *domain.ABTest, contactID, variantName string) *Assignment {
	a := &Assignment{TestID: test.ID, ContactID: contactID, VariantName: variantName}
	for _, v := range test.Variants {
		if v.Name == variantName {
			a.Subject = v.Subject
			a.Body = v.Body
			break
		}
	}
	return a
}

// pickVariant selects by maximum deficit, or by cumulative weight once the
// test is large and already balanced.
func (s *Service) pickVariant(variants []domain.ABVariant, counts map[string]int) domain.ABVariant {
	total := 0
	for _, n := range counts {
		total += n
	}

	if total == 0 {
		return s.weightedRandom(variants)
	}

	best := variants[0]
	maxDeficit := -1000.0
	for _, v := range variants {
		share := float64(counts[v.Name]) / float64(total) * 100
		deficit := float64(v.Weight) - share
		if deficit > maxDeficit {
			maxDeficit = deficit
			best = v
		}
	}

	if total > balancedMinTotal && maxDeficit <= balancedDeficitPP {
		return s.weightedRandom(variants)
	}
	return best
}

// weightedRandom does standard cumulative-weight selection.
func (s *Service) weightedRandom(variants []domain.ABVariant) domain.ABVariant {
	totalWeight := 0
	for _, v := range variants {
		totalWeight += v.Weight
	}
	if totalWeight <= 0 {
		return variants[s.rng.Intn(len(variants))]
	}

	roll := s.rng.Intn(totalWeight)
	cum := 0
	for _, v := range variants {
		cum += v.Weight
		if roll < cum {
			return v
		}
	}
	return variants[len(variants)-1]
}

// ActiveTestForCampaign returns the campaign's currently active test, or
// nil when the campaign is not experimenting.
func (s *Service) ActiveTestForCampaign(ctx context.Context, campaignID string) (*domain.ABTest, error) {
	test, err := s.repo.ActiveTestForCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load active test: %w", err)
	}
	return test, nil
}

// RecordEvent appends one funnel event for an assignment. The event type
// must be one of the funnel enum values; the ledger never stores free text.
func (s *Service) RecordEvent(ctx context.Context, assignmentID string, eventType domain.ABEventType, payload string) error {
	if !eventType.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidEventType, string(eventType))
	}
	e := &domain.ABTestEvent{
		ID:           uuid.New().String(),
		AssignmentID: assignmentID,
		EventType:    eventType,
		Payload:      payload,
		OccurredAt:   time.Now(),
	}
	if err := s.repo.AppendEvent(ctx, e); err != nil {
		return fmt.Errorf("record ab event: %w", err)
	}
	return nil
}

// Results returns per-variant assignment/event rollups. Winner selection
// from these numbers happens outside this engine.
func (s *Service) Results(ctx context.Context, testID string) ([]domain.ABVariantResult, error) {
	if _, err := s.repo.GetTest(ctx, testID); err != nil {
		return nil, err
	}
	return s.repo.VariantResults(ctx, testID)
}
