package billing

import (
	"context"
	"testing"
	"time"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionBuilder_Create_Success(t *testing.T) {
	mockCustomerRepo := new(MockCustomerRepository)
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := newTestService(mockCustomerRepo, mockSubRepo, mockGateway)

	ctx := context.Background()
	mockCustomerRepo.On("GetByID", ctx, nil, "cust-1").Return(linkedCustomer(), nil)
	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").
		Return(nil, domain.ErrSubscriptionNotFound)
	mockGateway.On("CreateSubscription", ctx, mock.MatchedBy(func(req *ports.CreateSubscriptionRequest) bool {
		return req.CustomerID == "cus_abc" &&
			req.Plan == "premium-monthly" &&
			req.Quantity == 1 &&
			req.TrialEnd == nil
	})).Return(&ports.GatewaySubscription{ID: "sub_gw_1", Plan: "premium-monthly", Status: "active"}, nil)
	mockSubRepo.On("Create", ctx, nil, mock.MatchedBy(func(sub *domain.Subscription) bool {
		return sub.CustomerID == "cust-1" &&
			sub.Name == "default" &&
			sub.Plan == "premium-monthly" &&
			sub.GatewaySubscriptionID == "sub_gw_1" &&
			sub.ID != ""
	})).Return(nil)

	sub, err := service.NewSubscription("cust-1", "default", "premium-monthly").Create(ctx, "")

	require.NoError(t, err)
	assert.True(t, sub.Active())
	assert.False(t, sub.OnTrial())
	mockSubRepo.AssertExpectations(t)
	mockGateway.AssertExpectations(t)
}

func TestSubscriptionBuilder_Create_WithTrialDays(t *testing.T) {
	mockCustomerRepo := new(MockCustomerRepository)
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := newTestService(mockCustomerRepo, mockSubRepo, mockGateway)

	ctx := context.Background()
	mockCustomerRepo.On("GetByID", ctx, nil, "cust-1").Return(linkedCustomer(), nil)
	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").
		Return(nil, domain.ErrSubscriptionNotFound)
	mockGateway.On("CreateSubscription", ctx, mock.MatchedBy(func(req *ports.CreateSubscriptionRequest) bool {
		return req.TrialEnd != nil && req.TrialEnd.After(time.Now().Add(13*24*time.Hour))
	})).Return(&ports.GatewaySubscription{ID: "sub_gw_1", Status: "trialing"}, nil)
	mockSubRepo.On("Create", ctx, nil, mock.Anything).Return(nil)

	sub, err := service.NewSubscription("cust-1", "default", "premium-monthly").
		TrialDays(14).
		Create(ctx, "")

	require.NoError(t, err)
	assert.True(t, sub.OnTrial())
	mockGateway.AssertExpectations(t)
}

func TestSubscriptionBuilder_Create_InheritsGenericTrial(t *testing.T) {
	mockCustomerRepo := new(MockCustomerRepository)
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := newTestService(mockCustomerRepo, mockSubRepo, mockGateway)

	ctx := context.Background()
	trialEnd := time.Now().UTC().Add(5 * 24 * time.Hour)
	customer := linkedCustomer()
	customer.TrialEndsAt = &trialEnd

	mockCustomerRepo.On("GetByID", ctx, nil, "cust-1").Return(customer, nil)
	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").
		Return(nil, domain.ErrSubscriptionNotFound)
	mockGateway.On("CreateSubscription", ctx, mock.MatchedBy(func(req *ports.CreateSubscriptionRequest) bool {
		return req.TrialEnd != nil && req.TrialEnd.Equal(trialEnd)
	})).Return(&ports.GatewaySubscription{ID: "sub_gw_1"}, nil)
	mockSubRepo.On("Create", ctx, nil, mock.Anything).Return(nil)

	sub, err := service.NewSubscription("cust-1", "default", "premium-monthly").Create(ctx, "")

	require.NoError(t, err)
	assert.True(t, sub.OnTrial())
}

func TestSubscriptionBuilder_Create_SkipTrialOverridesGenericTrial(t *testing.T) {
	mockCustomerRepo := new(MockCustomerRepository)
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := newTestService(mockCustomerRepo, mockSubRepo, mockGateway)

	ctx := context.Background()
	trialEnd := time.Now().UTC().Add(5 * 24 * time.Hour)
	customer := linkedCustomer()
	customer.TrialEndsAt = &trialEnd

	mockCustomerRepo.On("GetByID", ctx, nil, "cust-1").Return(customer, nil)
	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").
		Return(nil, domain.ErrSubscriptionNotFound)
	mockGateway.On("CreateSubscription", ctx, mock.MatchedBy(func(req *ports.CreateSubscriptionRequest) bool {
		return req.TrialEnd == nil
	})).Return(&ports.GatewaySubscription{ID: "sub_gw_1"}, nil)
	mockSubRepo.On("Create", ctx, nil, mock.Anything).Return(nil)

	sub, err := service.NewSubscription("cust-1", "default", "premium-monthly").
		SkipTrial().
		Create(ctx, "")

	require.NoError(t, err)
	assert.False(t, sub.OnTrial())
}

func TestSubscriptionBuilder_Create_DuplicateFailsFast(t *testing.T) {
	mockCustomerRepo := new(MockCustomerRepository)
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := newTestService(mockCustomerRepo, mockSubRepo, mockGateway)

	ctx := context.Background()
	mockCustomerRepo.On("GetByID", ctx, nil, "cust-1").Return(linkedCustomer(), nil)
	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").
		Return(&domain.Subscription{CustomerID: "cust-1", Name: "default", Plan: "basic"}, nil)

	_, err := service.NewSubscription("cust-1", "default", "premium-monthly").Create(ctx, "")

	require.Error(t, err)
	assert.True(t, domain.IsDuplicateSubscriptionError(err))
	mockGateway.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)
}

func TestSubscriptionBuilder_Create_EndedSubscriptionAllowsNew(t *testing.T) {
	mockCustomerRepo := new(MockCustomerRepository)
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := newTestService(mockCustomerRepo, mockSubRepo, mockGateway)

	ctx := context.Background()
	endedAt := time.Now().UTC().Add(-24 * time.Hour)
	mockCustomerRepo.On("GetByID", ctx, nil, "cust-1").Return(linkedCustomer(), nil)
	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").
		Return(&domain.Subscription{CustomerID: "cust-1", Name: "default", EndsAt: &endedAt}, nil)
	mockGateway.On("CreateSubscription", ctx, mock.Anything).
		Return(&ports.GatewaySubscription{ID: "sub_gw_2"}, nil)
	mockSubRepo.On("Create", ctx, nil, mock.Anything).Return(nil)

	sub, err := service.NewSubscription("cust-1", "default", "premium-monthly").Create(ctx, "")

	require.NoError(t, err)
	assert.Equal(t, "sub_gw_2", sub.GatewaySubscriptionID)
}

func TestSubscriptionBuilder_Create_RaceLostAtInsert(t *testing.T) {
	mockCustomerRepo := new(MockCustomerRepository)
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := newTestService(mockCustomerRepo, mockSubRepo, mockGateway)

	ctx := context.Background()
	mockCustomerRepo.On("GetByID", ctx, nil, "cust-1").Return(linkedCustomer(), nil)
	// Pre-check saw nothing, but a concurrent create won the unique index
	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").
		Return(nil, domain.ErrSubscriptionNotFound)
	mockGateway.On("CreateSubscription", ctx, mock.Anything).
		Return(&ports.GatewaySubscription{ID: "sub_gw_3"}, nil)
	mockSubRepo.On("Create", ctx, nil, mock.Anything).
		Return(domain.ErrDuplicateSubscription)

	_, err := service.NewSubscription("cust-1", "default", "premium-monthly").Create(ctx, "")

	require.Error(t, err)
	assert.True(t, domain.IsDuplicateSubscriptionError(err))
}

func TestSubscriptionBuilder_Create_CreatesGatewayCustomer(t *testing.T) {
	mockCustomerRepo := new(MockCustomerRepository)
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := newTestService(mockCustomerRepo, mockSubRepo, mockGateway)

	ctx := context.Background()
	unlinked := &domain.Customer{ID: "cust-1", Email: "jane@example.com", Currency: "usd"}
	newCard := ports.Card{ID: "card_1", Brand: "visa", LastFour: "4242", Fingerprint: "fp_1"}

	mockCustomerRepo.On("GetByID", ctx, nil, "cust-1").Return(unlinked, nil)
	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "default").
		Return(nil, domain.ErrSubscriptionNotFound)
	mockGateway.On("CreateCustomer", ctx, mock.Anything).
		Return(&ports.GatewayCustomer{ID: "cus_new"}, nil)
	mockCustomerRepo.On("Update", ctx, nil, mock.Anything).Return(nil)
	// Token is attached as the default card after the id is persisted
	mockGateway.On("GetToken", ctx, "tok_visa").
		Return(&ports.CardToken{ID: "tok_visa", Card: ports.Card{Fingerprint: "fp_1"}}, nil)
	mockGateway.On("ListSources", ctx, "cus_new").Return([]ports.Card{}, nil)
	mockGateway.On("CreateSource", ctx, "cus_new", "tok_visa").Return(&newCard, nil)
	mockGateway.On("UpdateCustomer", ctx, "cus_new", mock.Anything).Return(&ports.GatewayCustomer{
		ID:              "cus_new",
		DefaultSourceID: "card_1",
		Sources:         []ports.Card{newCard},
	}, nil)
	mockGateway.On("CreateSubscription", ctx, mock.MatchedBy(func(req *ports.CreateSubscriptionRequest) bool {
		return req.CustomerID == "cus_new"
	})).Return(&ports.GatewaySubscription{ID: "sub_gw_1"}, nil)
	mockSubRepo.On("Create", ctx, nil, mock.Anything).Return(nil)

	sub, err := service.NewSubscription("cust-1", "default", "premium-monthly").Create(ctx, "tok_visa")

	require.NoError(t, err)
	assert.Equal(t, "sub_gw_1", sub.GatewaySubscriptionID)
	mockGateway.AssertExpectations(t)
}

func TestSubscriptionBuilder_Create_InvalidQuantity(t *testing.T) {
	mockCustomerRepo := new(MockCustomerRepository)
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := newTestService(mockCustomerRepo, mockSubRepo, mockGateway)

	_, err := service.NewSubscription("cust-1", "default", "premium-monthly").
		Quantity(0).
		Create(context.Background(), "")

	require.Error(t, err)
	assert.True(t, domain.IsInvalidArgumentError(err))
	mockCustomerRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubscriptionBuilder_Options(t *testing.T) {
	mockCustomerRepo := new(MockCustomerRepository)
	mockSubRepo := new(MockSubscriptionRepository)
	mockGateway := new(MockPaymentGateway)
	service := newTestService(mockCustomerRepo, mockSubRepo, mockGateway)

	ctx := context.Background()
	tax := decimal.NewFromFloat(8.25)

	mockCustomerRepo.On("GetByID", ctx, nil, "cust-1").Return(linkedCustomer(), nil)
	mockSubRepo.On("GetByCustomerAndName", ctx, nil, "cust-1", "team").
		Return(nil, domain.ErrSubscriptionNotFound)
	mockGateway.On("CreateSubscription", ctx, mock.MatchedBy(func(req *ports.CreateSubscriptionRequest) bool {
		return req.Quantity == 5 &&
			req.Coupon == "LAUNCH" &&
			req.TaxPercent != nil && req.TaxPercent.Equal(tax) &&
			!req.Prorate &&
			req.Metadata["team"] == "platform"
	})).Return(&ports.GatewaySubscription{ID: "sub_gw_1"}, nil)
	mockSubRepo.On("Create", ctx, nil, mock.MatchedBy(func(sub *domain.Subscription) bool {
		return sub.Quantity == 5
	})).Return(nil)

	_, err := service.NewSubscription("cust-1", "team", "team-monthly").
		Quantity(5).
		Coupon("LAUNCH").
		TaxPercent(tax).
		NoProrate().
		Metadata(map[string]string{"team": "platform"}).
		Create(ctx, "")

	require.NoError(t, err)
	mockGateway.AssertExpectations(t)
}
