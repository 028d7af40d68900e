package provider

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
)

// MockProvider simulates a channel provider for development and testing.
// Addresses containing "fail" produce a permanent error; addresses containing
// "timeout" produce a transient one.
type MockProvider struct {
	logger *slog.Logger
	delay  time.Duration
}

// NewMockProvider creates a mock provider. delay simulates provider latency.
func NewMockProvider(logger *slog.Logger, delay time.Duration) *MockProvider {
	return &MockProvider{logger: logger.With("provider", "mock"), delay: delay}
}

func (p *MockProvider) GetName() string { return "mock" }

func (p *MockProvider) SendSMS(ctx context.Context, orgID uuid.UUID, req SMSRequest) (*SendResult, error) {
	return p.send(ctx, req.Phone, "sms", req.RecipientID)
}

func (p *MockProvider) SendEmail(ctx context.Context, orgID uuid.UUID, req EmailRequest) (*SendResult, error) {
	return p.send(ctx, req.Email, "email", req.RecipientID)
}

func (p *MockProvider) send(ctx context.Context, address, kind string, recipientID uuid.UUID) (*SendResult, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, domain.NewSendError(domain.SendErrTimeout, "mock send interrupted: %v", ctx.Err())
		}
	}

	switch {
	case strings.Contains(address, "timeout"):
		return nil, domain.NewSendError(domain.SendErrTimeout, "mock %s send timed out", kind)
	case strings.Contains(address, "fail"):
		return nil, domain.NewSendError(domain.SendErrPermanent, "mock %s rejected by provider", kind)
	}

	externalID := "mock-" + uuid.NewString()
	p.logger.DebugContext(ctx, "Mock message sent", "kind", kind, "recipient_id", recipientID, "external_id", externalID)
	return &SendResult{ExternalID: externalID, ProviderName: "mock"}, nil
}
