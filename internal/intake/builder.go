package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/leadline/outreach-engine/internal/abtest"
	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/pkg/logger"
)

// ErrNoDestination indicates the contact has neither a phone nor an email
// to deliver to.
var ErrNoDestination = errors.New("contact has no deliverable destination")

// Builder resolves a contact into a fully-rendered ChannelMessage: variant
// content when the campaign has an active test, the default template
// otherwise, personalized through the Liquid renderer. WhatsApp is
// preferred when the contact has a phone; email is the fallback channel.
type Builder struct {
	renderer *Renderer
	tests    *abtest.Service

	defaultTemplate string
	defaultSubject  string
}

// NewBuilder creates a message builder. The default template applies to
// campaigns without an active experiment.
func NewBuilder(renderer *Renderer, tests *abtest.Service, defaultTemplate, defaultSubject string) *Builder {
	return &Builder{
		renderer:        renderer,
		tests:           tests,
		defaultTemplate: defaultTemplate,
		defaultSubject:  defaultSubject,
	}
}

// Build renders the outbound message for a contact. Variant lookup failures
// degrade to the default template: a broken experiment must not stop the
// outreach it was meant to improve.
func (b *Builder) Build(ctx context.Context, c *domain.Contact) (*domain.ChannelMessage, error) {
	template := b.defaultTemplate
	subject := b.defaultSubject

	if b.tests != nil {
		test, err := b.tests.ActiveTestForCampaign(ctx, c.CampaignID)
		if err != nil {
			logger.Warn("active test lookup failed, using default template",
				"campaign_id", c.CampaignID, "error", err.Error())
		} else if test != nil {
			a, err := b.tests.AssignVariant(ctx, test.ID, c.ID)
			if err != nil {
				logger.Warn("variant assignment failed, using default template",
					"test_id", test.ID, "contact_id", c.ID, "error", err.Error())
			} else {
				if a.Body != "" {
					template = a.Body
				}
				if a.Subject != "" {
					subject = a.Subject
				}
			}
		}
	}

	body, err := b.renderer.Render(template, c)
	if err != nil {
		return nil, fmt.Errorf("build message for contact %s: %w", c.ID, err)
	}
	renderedSubject := subject
	if subject != "" {
		if rs, err := b.renderer.Render(subject, c); err == nil {
			renderedSubject = rs
		}
	}

	msg := &domain.ChannelMessage{
		ContactID:  c.ID,
		CampaignID: c.CampaignID,
		Body:       body,
		Subject:    renderedSubject,
	}
	switch {
	case c.Phone != "":
		msg.Channel = domain.ChannelWhatsApp
		msg.Destination = c.Phone
	case c.Email != nil && *c.Email != "":
		msg.Channel = domain.ChannelEmail
		msg.Destination = *c.Email
	default:
		return nil, ErrNoDestination
	}
	return msg, nil
}
