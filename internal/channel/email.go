package channel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/pkg/logger"
)

// EmailSender delivers messages via AWS SES using the SDK v2.
type EmailSender struct {
	region string
	client *sesv2.Client

	defaultFromName  string
	defaultFromEmail string
	defaultReplyTo   string
}

// NewEmailSender creates an SES-backed email sender. Initializes the AWS
// SDK client if credentials are provided.
func NewEmailSender(accessKey, secretKey, region string) *EmailSender {
	if region == "" {
		region = "us-east-1"
	}

	sender := &EmailSender{region: region}

	if accessKey != "" && secretKey != "" {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		)
		if err != nil {
			logger.Warn("email sender AWS config init failed", "error", err)
		} else {
			sender.client = sesv2.NewFromConfig(cfg)
		}
	}

	return sender
}

// SetDefaultFrom sets the sender identity used when a message does not
// carry its own.
func (s *EmailSender) SetDefaultFrom(name, email, replyTo string) {
	s.defaultFromName = name
	s.defaultFromEmail = email
	s.defaultReplyTo = replyTo
}

// Channel identifies this sender's channel.
func (s *EmailSender) Channel() domain.ChannelType { return domain.ChannelEmail }

// Send delivers one email through SES.
func (s *EmailSender) Send(ctx context.Context, msg *domain.ChannelMessage) (*domain.SendResult, error) {
	if s.client == nil {
		return nil, fmt.Errorf("email sender not initialized - check credentials")
	}
	if strings.TrimSpace(msg.Destination) == "" {
		return nil, ErrNoDestination
	}

	fromEmail := msg.FromEmail
	if fromEmail == "" {
		fromEmail = s.defaultFromEmail
	}
	fromName := msg.FromName
	if fromName == "" {
		fromName = s.defaultFromName
	}
	from := fromEmail
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromEmail)
	}

	body := &types.Body{}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}
	}
	if msg.Body != "" {
		body.Text = &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.Destination}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)},
			{Name: aws.String("contact_id"), Value: aws.String(msg.ContactID)},
		},
	}
	replyTo := msg.ReplyTo
	if replyTo == "" {
		replyTo = s.defaultReplyTo
	}
	if replyTo != "" {
		input.ReplyToAddresses = []string{replyTo}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return &domain.SendResult{
			Success: false,
			Channel: domain.ChannelEmail,
			Error:   err.Error(),
		}, nil
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}

	logger.Info("email accepted", "email", msg.Destination, "provider_message_id", messageID)

	return &domain.SendResult{
		Success:           true,
		ProviderMessageID: messageID,
		Channel:           domain.ChannelEmail,
		SentAt:            time.Now(),
	}, nil
}
