package intake

import (
	"context"

	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/pkg/logger"
)

// Step is one independent enrichment applied to a freshly created contact.
// Steps must tolerate running in any order and must not depend on each
// other's success.
type Step interface {
	Name() string
	Run(ctx context.Context, c *domain.Contact) (string, error)
}

// StepResult is the outcome of one enrichment step.
type StepResult struct {
	Step   string `json:"step"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Pipeline runs enrichment steps after contact creation. A step failure is
// logged and reported in the results, never propagated: intake itself has
// already succeeded by the time enrichment runs, and a half-enriched
// contact is still dispatchable.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates an enrichment pipeline over the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Enrich runs every step against the contact and returns per-step results.
func (p *Pipeline) Enrich(ctx context.Context, c *domain.Contact) []StepResult {
	results := make([]StepResult, 0, len(p.steps))
	for _, step := range p.steps {
		detail, err := step.Run(ctx, c)
		r := StepResult{Step: step.Name(), Detail: detail}
		if err != nil {
			r.Error = err.Error()
			logger.Warn("intake enrichment step failed",
				"step", step.Name(),
				"contact_id", c.ID,
				"error", err.Error(),
			)
		}
		results = append(results, r)
	}
	return results
}
