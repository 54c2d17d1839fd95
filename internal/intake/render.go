// Package intake handles what happens right after a contact enters the
// system: template personalization, variant assignment, and the send-time
// scheduling hint. Messages are fully rendered here, at intake/enqueue
// time, so the dispatch worker sends bodies verbatim.
package intake

import (
	"fmt"

	"github.com/osteele/liquid"

	"github.com/leadline/outreach-engine/internal/domain"
)

// Renderer personalizes Liquid message templates with contact fields.
type Renderer struct {
	engine *liquid.Engine
}

// NewRenderer creates a template renderer.
func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Render resolves a Liquid template against the contact's fields. Unknown
// variables render empty rather than erroring, which matches how sales
// templates degrade when a lead record is sparse.
func (r *Renderer) Render(template string, c *domain.Contact) (string, error) {
	email := ""
	if c.Email != nil {
		email = *c.Email
	}
	bindings := liquid.Bindings{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"company":    c.Company,
		"phone":      c.Phone,
		"email":      email,
	}
	out, err := r.engine.ParseAndRenderString(template, bindings)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}
