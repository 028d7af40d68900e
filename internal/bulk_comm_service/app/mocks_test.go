package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/adapters/provider"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/repository"
)

// --- Mocks ---

type MockBatchStore struct {
	mock.Mock
}

func (m *MockBatchStore) CreateWithItems(ctx context.Context, batch *domain.Batch, items []*domain.QueueItem, skipped []*domain.SkippedRecipient) error {
	args := m.Called(ctx, batch, items, skipped)
	return args.Error(0)
}

func (m *MockBatchStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Batch), args.Error(1)
}

func (m *MockBatchStore) MarkProcessing(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	args := m.Called(ctx, ids, at)
	return args.Error(0)
}

func (m *MockBatchStore) UpdateStats(ctx context.Context, id uuid.UUID, counts domain.BatchCounts, status domain.BatchStatus, completedAt *time.Time) (bool, error) {
	args := m.Called(ctx, id, counts, status, completedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockBatchStore) Cancel(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockBatchStore) List(ctx context.Context, filter repository.BatchFilter) ([]*domain.Batch, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.Batch), args.Int(1), args.Error(2)
}

type MockQueueItemRepository struct {
	mock.Mock
}

func (m *MockQueueItemRepository) ClaimDueForOrg(ctx context.Context, orgID uuid.UUID, limit, maxRetries int, now time.Time) ([]*domain.QueueItem, error) {
	args := m.Called(ctx, orgID, limit, maxRetries, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.QueueItem), args.Error(1)
}

func (m *MockQueueItemRepository) DueOrganizations(ctx context.Context, maxRetries int, now time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, maxRetries, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockQueueItemRepository) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, at time.Time) error {
	args := m.Called(ctx, id, providerMessageID, at)
	return args.Error(0)
}

func (m *MockQueueItemRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, at time.Time) error {
	args := m.Called(ctx, id, errMsg, at)
	return args.Error(0)
}

func (m *MockQueueItemRepository) Requeue(ctx context.Context, id uuid.UUID, errMsg string, nextAttempt, at time.Time) error {
	args := m.Called(ctx, id, errMsg, nextAttempt, at)
	return args.Error(0)
}

func (m *MockQueueItemRepository) CancelActiveForBatch(ctx context.Context, batchID uuid.UUID, at time.Time) (int64, error) {
	args := m.Called(ctx, batchID, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockQueueItemRepository) CountByStatusForBatch(ctx context.Context, batchID uuid.UUID) (domain.BatchCounts, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).(domain.BatchCounts), args.Error(1)
}

func (m *MockQueueItemRepository) CountSentSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error) {
	args := m.Called(ctx, orgID, since)
	return args.Int(0), args.Error(1)
}

func (m *MockQueueItemRepository) RecentFailures(ctx context.Context, batchID uuid.UUID, limit int) ([]*domain.FailureDetail, error) {
	args := m.Called(ctx, batchID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FailureDetail), args.Error(1)
}

func (m *MockQueueItemRepository) ListForBatch(ctx context.Context, batchID uuid.UUID, filter repository.ItemFilter) ([]*domain.QueueItem, int, error) {
	args := m.Called(ctx, batchID, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.QueueItem), args.Int(1), args.Error(2)
}

type MockSkippedRecipientRepository struct {
	mock.Mock
}

func (m *MockSkippedRecipientRepository) ListForBatch(ctx context.Context, batchID uuid.UUID) ([]*domain.SkippedRecipient, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SkippedRecipient), args.Error(1)
}

type MockRecipientRepository struct {
	mock.Mock
}

func (m *MockRecipientRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.Recipient, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Recipient), args.Error(1)
}

func (m *MockRecipientRepository) GetByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*domain.Recipient, error) {
	args := m.Called(ctx, orgID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Recipient), args.Error(1)
}

type MockOrganizationRepository struct {
	mock.Mock
}

func (m *MockOrganizationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Organization), args.Error(1)
}

type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.MessageTemplate, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessageTemplate), args.Error(1)
}

type MockChannelProvider struct {
	mock.Mock
}

func (m *MockChannelProvider) SendSMS(ctx context.Context, orgID uuid.UUID, req provider.SMSRequest) (*provider.SendResult, error) {
	args := m.Called(ctx, orgID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.SendResult), args.Error(1)
}

func (m *MockChannelProvider) SendEmail(ctx context.Context, orgID uuid.UUID, req provider.EmailRequest) (*provider.SendResult, error) {
	args := m.Called(ctx, orgID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.SendResult), args.Error(1)
}

func (m *MockChannelProvider) GetName() string {
	args := m.Called()
	return args.String(0)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

type MockRateGate struct {
	mock.Mock
}

func (m *MockRateGate) CanProceed(ctx context.Context, orgID uuid.UUID) (bool, error) {
	args := m.Called(ctx, orgID)
	return args.Bool(0), args.Error(1)
}
