package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSubscriptionRepository mocks the subscription repository
type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) GetByCustomerAndName(ctx context.Context, db ports.DBTX, customerID, name string) (*domain.Subscription, error) {
	args := m.Called(ctx, db, customerID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) GetByGatewayID(ctx context.Context, db ports.DBTX, gatewaySubscriptionID string) (*domain.Subscription, error) {
	args := m.Called(ctx, db, gatewaySubscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) ListByCustomer(ctx context.Context, db ports.DBTX, customerID string) ([]*domain.Subscription, error) {
	args := m.Called(ctx, db, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) Create(ctx context.Context, tx ports.DBTX, subscription *domain.Subscription) error {
	args := m.Called(ctx, tx, subscription)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) Update(ctx context.Context, tx ports.DBTX, subscription *domain.Subscription) error {
	args := m.Called(ctx, tx, subscription)
	return args.Error(0)
}

// MockPaymentGateway mocks the subset of gateway calls the lifecycle service
// makes
type MockPaymentGateway struct {
	mock.Mock
	ports.PaymentGateway
}

func (m *MockPaymentGateway) UpdateSubscription(ctx context.Context, subscriptionID string, req *ports.UpdateSubscriptionRequest) (*ports.GatewaySubscription, error) {
	args := m.Called(ctx, subscriptionID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.GatewaySubscription), args.Error(1)
}

func (m *MockPaymentGateway) CancelSubscription(ctx context.Context, subscriptionID string, immediately bool) (*ports.GatewaySubscription, error) {
	args := m.Called(ctx, subscriptionID, immediately)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.GatewaySubscription), args.Error(1)
}

func (m *MockPaymentGateway) ResumeSubscription(ctx context.Context, subscriptionID string, trialEnd *time.Time) (*ports.GatewaySubscription, error) {
	args := m.Called(ctx, subscriptionID, trialEnd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.GatewaySubscription), args.Error(1)
}

// MockLogger mocks the logger
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Info(msg string, fields ...ports.Field) {
	m.Called(msg, fields)
}

func (m *MockLogger) Warn(msg string, fields ...ports.Field) {
	m.Called(msg, fields)
}

func (m *MockLogger) Error(msg string, fields ...ports.Field) {
	m.Called(msg, fields)
}

func (m *MockLogger) Debug(msg string, fields ...ports.Field) {
	m.Called(msg, fields)
}

func newMockLogger() *MockLogger {
	l := new(MockLogger)
	l.On("Info", mock.Anything, mock.Anything).Return().Maybe()
	l.On("Warn", mock.Anything, mock.Anything).Return().Maybe()
	l.On("Error", mock.Anything, mock.Anything).Return().Maybe()
	l.On("Debug", mock.Anything, mock.Anything).Return().Maybe()
	return l
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func activeSubscription() *domain.Subscription {
	return &domain.Subscription{
		ID:                    "sub-1",
		CustomerID:            "cust-1",
		Name:                  "default",
		GatewaySubscriptionID: "sub_gw_1",
		Plan:                  "premium-monthly",
		Quantity:              1,
	}
}

func TestService_Cancel_AtPeriodEnd(t *testing.T) {
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := NewService(mockSubRepo, mockGateway, newMockLogger(), true)

	ctx := context.Background()
	periodEnd := time.Now().UTC().Add(20 * 24 * time.Hour)

	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").
		Return(activeSubscription(), nil)
	mockGateway.On("CancelSubscription", ctx, "sub_gw_1", false).
		Return(&ports.GatewaySubscription{ID: "sub_gw_1", CurrentPeriodEnd: periodEnd, CancelAtPeriodEnd: true}, nil)
	mockSubRepo.On("Update", ctx, nil, mock.MatchedBy(func(sub *domain.Subscription) bool {
		return sub.Cancelled() && sub.EndsAt.Equal(periodEnd)
	})).Return(nil)

	sub, err := service.Cancel(ctx, "cust-1", "default", false)

	require.NoError(t, err)
	assert.True(t, sub.OnGracePeriod())
	assert.True(t, sub.Active())
	mockGateway.AssertExpectations(t)
}

func TestService_Cancel_Immediately(t *testing.T) {
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := NewService(mockSubRepo, mockGateway, newMockLogger(), true)

	ctx := context.Background()
	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").
		Return(activeSubscription(), nil)
	mockGateway.On("CancelSubscription", ctx, "sub_gw_1", true).
		Return(&ports.GatewaySubscription{ID: "sub_gw_1", Status: "canceled"}, nil)
	mockSubRepo.On("Update", ctx, nil, mock.Anything).Return(nil)

	sub, err := service.Cancel(ctx, "cust-1", "default", true)

	require.NoError(t, err)
	assert.True(t, sub.Cancelled())
	assert.False(t, sub.OnGracePeriod())
	assert.True(t, sub.Ended())
}

func TestService_Cancel_DuringTrialEndsAtTrialEnd(t *testing.T) {
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := NewService(mockSubRepo, mockGateway, newMockLogger(), true)

	ctx := context.Background()
	trialEnd := time.Now().UTC().Add(7 * 24 * time.Hour)
	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour)
	sub := activeSubscription()
	sub.TrialEndsAt = &trialEnd

	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").Return(sub, nil)
	mockGateway.On("CancelSubscription", ctx, "sub_gw_1", false).
		Return(&ports.GatewaySubscription{ID: "sub_gw_1", CurrentPeriodEnd: periodEnd}, nil)
	mockSubRepo.On("Update", ctx, nil, mock.Anything).Return(nil)

	got, err := service.Cancel(ctx, "cust-1", "default", false)

	require.NoError(t, err)
	// Grace runs to the trial end, not the billing period end
	assert.True(t, got.EndsAt.Equal(trialEnd))
}

func TestService_Cancel_AlreadyCancelled(t *testing.T) {
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := NewService(mockSubRepo, mockGateway, newMockLogger(), true)

	ctx := context.Background()
	sub := activeSubscription()
	sub.EndsAt = timePtr(time.Now().UTC().Add(10 * 24 * time.Hour))

	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").Return(sub, nil)

	_, err := service.Cancel(ctx, "cust-1", "default", false)

	require.Error(t, err)
	assert.True(t, domain.IsInvalidStateError(err))
	mockGateway.AssertNotCalled(t, "CancelSubscription", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Cancel_NotFound(t *testing.T) {
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := NewService(mockSubRepo, mockGateway, newMockLogger(), true)

	ctx := context.Background()
	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").
		Return(nil, domain.ErrSubscriptionNotFound)

	_, err := service.Cancel(ctx, "cust-1", "default", false)

	require.Error(t, err)
	assert.True(t, domain.IsNotFoundError(err))
}

func TestService_Resume_DuringGracePeriod(t *testing.T) {
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := NewService(mockSubRepo, mockGateway, newMockLogger(), true)

	ctx := context.Background()
	sub := activeSubscription()
	sub.EndsAt = timePtr(time.Now().UTC().Add(10 * 24 * time.Hour))

	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").Return(sub, nil)
	mockGateway.On("ResumeSubscription", ctx, "sub_gw_1", (*time.Time)(nil)).
		Return(&ports.GatewaySubscription{ID: "sub_gw_1", Status: "active"}, nil)
	mockSubRepo.On("Update", ctx, nil, mock.MatchedBy(func(s *domain.Subscription) bool {
		return !s.Cancelled()
	})).Return(nil)

	got, err := service.Resume(ctx, "cust-1", "default")

	require.NoError(t, err)
	assert.True(t, got.Active())
	assert.Nil(t, got.EndsAt)
	mockGateway.AssertExpectations(t)
}

func TestService_Resume_RestoresRunningTrial(t *testing.T) {
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := NewService(mockSubRepo, mockGateway, newMockLogger(), true)

	ctx := context.Background()
	trialEnd := time.Now().UTC().Add(5 * 24 * time.Hour)
	sub := activeSubscription()
	sub.TrialEndsAt = &trialEnd
	sub.EndsAt = &trialEnd

	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").Return(sub, nil)
	mockGateway.On("ResumeSubscription", ctx, "sub_gw_1", mock.MatchedBy(func(t *time.Time) bool {
		return t != nil && t.Equal(trialEnd)
	})).Return(&ports.GatewaySubscription{ID: "sub_gw_1", TrialEnd: &trialEnd}, nil)
	mockSubRepo.On("Update", ctx, nil, mock.Anything).Return(nil)

	got, err := service.Resume(ctx, "cust-1", "default")

	require.NoError(t, err)
	assert.True(t, got.OnTrial())
	mockGateway.AssertExpectations(t)
}

func TestService_Resume_AfterGracePeriod(t *testing.T) {
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := NewService(mockSubRepo, mockGateway, newMockLogger(), true)

	ctx := context.Background()
	sub := activeSubscription()
	sub.EndsAt = timePtr(time.Now().UTC().Add(-time.Hour))

	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").Return(sub, nil)

	_, err := service.Resume(ctx, "cust-1", "default")

	require.Error(t, err)
	assert.True(t, domain.IsInvalidStateError(err))
	mockGateway.AssertNotCalled(t, "ResumeSubscription", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Resume_NeverCancelled(t *testing.T) {
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := NewService(mockSubRepo, mockGateway, newMockLogger(), true)

	ctx := context.Background()
	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").
		Return(activeSubscription(), nil)

	_, err := service.Resume(ctx, "cust-1", "default")

	require.Error(t, err)
	assert.True(t, domain.IsInvalidStateError(err))
}

func TestService_Swap_Success(t *testing.T) {
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := NewService(mockSubRepo, mockGateway, newMockLogger(), true)

	ctx := context.Background()
	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").
		Return(activeSubscription(), nil)
	mockGateway.On("UpdateSubscription", ctx, "sub_gw_1", mock.MatchedBy(func(req *ports.UpdateSubscriptionRequest) bool {
		return req.Plan != nil && *req.Plan == "enterprise-monthly" && req.Prorate
	})).Return(&ports.GatewaySubscription{ID: "sub_gw_1", Plan: "enterprise-monthly"}, nil)
	mockSubRepo.On("Update", ctx, nil, mock.MatchedBy(func(sub *domain.Subscription) bool {
		return sub.Plan == "enterprise-monthly"
	})).Return(nil)

	sub, err := service.Swap(ctx, "cust-1", "default", "enterprise-monthly")

	require.NoError(t, err)
	assert.Equal(t, "enterprise-monthly", sub.Plan)
	mockGateway.AssertExpectations(t)
}

func TestService_Swap_GatewayFailureLeavesLocalUntouched(t *testing.T) {
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := NewService(mockSubRepo, mockGateway, newMockLogger(), true)

	ctx := context.Background()
	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").
		Return(activeSubscription(), nil)
	mockGateway.On("UpdateSubscription", ctx, "sub_gw_1", mock.Anything).
		Return(nil, domain.ErrGatewayTimedOut)

	_, err := service.Swap(ctx, "cust-1", "default", "enterprise-monthly")

	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeGatewayTimeout, domain.GetErrorCode(err))
	mockSubRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Swap_EndedSubscription(t *testing.T) {
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := NewService(mockSubRepo, mockGateway, newMockLogger(), true)

	ctx := context.Background()
	sub := activeSubscription()
	sub.EndsAt = timePtr(time.Now().UTC().Add(-time.Hour))

	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").Return(sub, nil)

	_, err := service.Swap(ctx, "cust-1", "default", "enterprise-monthly")

	require.Error(t, err)
	assert.True(t, domain.IsInvalidStateError(err))
}

func TestService_QuantityChanges(t *testing.T) {
	tests := []struct {
		name         string
		startQty     int
		run          func(svc *Service, ctx context.Context) (*domain.Subscription, error)
		wantQty      int
	}{
		{
			name:     "increment",
			startQty: 3,
			run: func(svc *Service, ctx context.Context) (*domain.Subscription, error) {
				return svc.IncrementQuantity(ctx, "cust-1", "default", 2)
			},
			wantQty: 5,
		},
		{
			name:     "decrement",
			startQty: 3,
			run: func(svc *Service, ctx context.Context) (*domain.Subscription, error) {
				return svc.DecrementQuantity(ctx, "cust-1", "default", 1)
			},
			wantQty: 2,
		},
		{
			name:     "decrement floors at one",
			startQty: 2,
			run: func(svc *Service, ctx context.Context) (*domain.Subscription, error) {
				return svc.DecrementQuantity(ctx, "cust-1", "default", 10)
			},
			wantQty: 1,
		},
		{
			name:     "set explicit",
			startQty: 1,
			run: func(svc *Service, ctx context.Context) (*domain.Subscription, error) {
				return svc.UpdateQuantity(ctx, "cust-1", "default", 7)
			},
			wantQty: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSubRepo := new(MockSubscriptionRepository)
			mockGateway := new(MockPaymentGateway)
			service := NewService(mockSubRepo, mockGateway, newMockLogger(), true)

			ctx := context.Background()
			sub := activeSubscription()
			sub.Quantity = tt.startQty

			mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").Return(sub, nil)
			mockGateway.On("UpdateSubscription", ctx, "sub_gw_1", mock.MatchedBy(func(req *ports.UpdateSubscriptionRequest) bool {
				return req.Quantity != nil && *req.Quantity == tt.wantQty
			})).Return(&ports.GatewaySubscription{ID: "sub_gw_1", Quantity: tt.wantQty}, nil)
			mockSubRepo.On("Update", ctx, nil, mock.Anything).Return(nil)

			got, err := tt.run(service, ctx)

			require.NoError(t, err)
			assert.Equal(t, tt.wantQty, got.Quantity)
			mockGateway.AssertExpectations(t)
		})
	}
}

func TestService_UpdateQuantity_Invalid(t *testing.T) {
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := NewService(mockSubRepo, mockGateway, newMockLogger(), true)

	ctx := context.Background()
	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").
		Return(activeSubscription(), nil)

	_, err := service.UpdateQuantity(ctx, "cust-1", "default", 0)

	require.Error(t, err)
	assert.True(t, domain.IsInvalidArgumentError(err))
	mockGateway.AssertNotCalled(t, "UpdateSubscription", mock.Anything, mock.Anything, mock.Anything)
}
