// Package channel defines the outbound delivery abstraction shared by the
// dispatch worker and the on-demand processor.
//
// Each channel (WhatsApp gateway session, transactional email) implements
// the Sender interface, so pacing and bookkeeping are written once against
// the abstraction rather than duplicated per channel.
package channel

import (
	"context"
	"errors"

	"github.com/leadline/outreach-engine/internal/domain"
)

// ErrNoDestination indicates the message carries no usable address for its
// channel. This is a data-integrity fault, not a transport failure.
var ErrNoDestination = errors.New("message has no destination address")

// Sender delivers a single message through one channel. The call blocks
// until the destination transport accepts or rejects the message.
// Implementations must be safe for concurrent use, though the dispatch
// worker deliberately never calls one concurrently for the same session.
type Sender interface {
	Send(ctx context.Context, msg *domain.ChannelMessage) (*domain.SendResult, error)
	Channel() domain.ChannelType
}
