package provider

import (
	"context"

	"github.com/google/uuid"
)

// SMSRequest holds the data for sending one SMS via a provider.
type SMSRequest struct {
	RecipientID uuid.UUID
	Phone       string
	Content     string
}

// EmailRequest holds the data for sending one email via a provider.
type EmailRequest struct {
	RecipientID uuid.UUID
	Email       string
	Subject     string
	Content     string
}

// SendResult is the outcome of a successful submission to a provider.
type SendResult struct {
	ExternalID   string // provider-assigned message identifier
	ProviderName string
}

// ChannelProvider transmits messages over SMS or email. Failures are returned
// as *domain.SendError so the queue processor can classify them structurally
// as transient or terminal.
type ChannelProvider interface {
	SendSMS(ctx context.Context, orgID uuid.UUID, req SMSRequest) (*SendResult, error)
	SendEmail(ctx context.Context, orgID uuid.UUID, req EmailRequest) (*SendResult, error)
	GetName() string
}
