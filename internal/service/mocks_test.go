package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/repository/memory"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/validation"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/logger"
)

// --- Mock Cart ---

type mockCart struct {
	mock.Mock
}

func (m *mockCart) Items(ctx context.Context) ([]domain.LineItem, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LineItem), args.Error(1)
}

func (m *mockCart) Lock(ctx context.Context, sessionID string, d time.Duration) error {
	args := m.Called(ctx, sessionID, d)
	return args.Error(0)
}

func (m *mockCart) Unlock(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *mockCart) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- Fake Auth ---

type fakeAuth struct {
	userID string
	email  string
}

func (a *fakeAuth) IsAuthenticated(context.Context) bool { return a.userID != "" }
func (a *fakeAuth) UserID(context.Context) string        { return a.userID }
func (a *fakeAuth) Email(context.Context) string         { return a.email }

// --- Mock Rates ---

type mockRates struct {
	mock.Mock
}

func (m *mockRates) FetchShippingMethods(ctx context.Context, q RateQuery) ([]domain.ShippingMethod, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ShippingMethod), args.Error(1)
}

// --- Mock Gateway ---

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*domain.PaymentIntent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentIntent), args.Error(1)
}

func (m *mockGateway) ConfirmPaymentIntent(ctx context.Context, req ConfirmRequest) (*domain.IntentConfirmation, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IntentConfirmation), args.Error(1)
}

// --- Mock Saved Payment Methods ---

type mockSavedMethods struct {
	mock.Mock
}

func (m *mockSavedMethods) FetchSavedPaymentMethods(ctx context.Context) ([]domain.SavedPaymentMethod, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SavedPaymentMethod), args.Error(1)
}

func (m *mockSavedMethods) SavePaymentMethod(ctx context.Context, method domain.PaymentMethod) (*domain.SavedPaymentMethod, error) {
	args := m.Called(ctx, method)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SavedPaymentMethod), args.Error(1)
}

// --- Mock Orders ---

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) CreateOrder(ctx context.Context, req OrderRequest) (*OrderConfirmation, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*OrderConfirmation), args.Error(1)
}

// --- Mock Notifier ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendConfirmationEmail(ctx context.Context, msg ConfirmationEmail) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// --- Mock Profile ---

type mockProfile struct {
	mock.Mock
}

func (m *mockProfile) FetchCheckoutProfile(ctx context.Context) (*domain.CheckoutProfile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutProfile), args.Error(1)
}

// --- Mock Events ---

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishCheckoutInitiated(ctx context.Context, e CheckoutEvent) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockEvents) PublishCheckoutCompleted(ctx context.Context, e CheckoutEvent) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockEvents) PublishCheckoutCancelled(ctx context.Context, e CheckoutEvent) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockEvents) PublishPaymentFailed(ctx context.Context, e CheckoutEvent) error {
	return m.Called(ctx, e).Error(0)
}

// --- Test Helpers ---

type harness struct {
	store    *memory.SnapshotStore
	cart     *mockCart
	auth     *fakeAuth
	rates    *mockRates
	gateway  *mockGateway
	saved    *mockSavedMethods
	orders   *mockOrders
	notifier *mockNotifier
	profile  *mockProfile
	events   *mockEvents
	notices  *NoticeQueue
	logs     *bytes.Buffer
	orch     *Orchestrator
}

func newHarness(t *testing.T, opts ...func(*Options)) *harness {
	t.Helper()

	h := &harness{
		store:    memory.NewSnapshotStore(),
		cart:     new(mockCart),
		auth:     &fakeAuth{},
		rates:    new(mockRates),
		gateway:  new(mockGateway),
		saved:    new(mockSavedMethods),
		orders:   new(mockOrders),
		notifier: new(mockNotifier),
		profile:  new(mockProfile),
		events:   new(mockEvents),
		notices:  NewNoticeQueue(),
		logs:     new(bytes.Buffer),
	}

	h.rates.On("FetchShippingMethods", mock.Anything, mock.Anything).
		Return([]domain.ShippingMethod{FallbackShippingMethod, expressMethod()}, nil).Maybe()
	h.events.On("PublishCheckoutInitiated", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.events.On("PublishCheckoutCompleted", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.events.On("PublishCheckoutCancelled", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.events.On("PublishPaymentFailed", mock.Anything, mock.Anything).Return(nil).Maybe()

	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	deps := Dependencies{
		Store:        h.store,
		Cart:         h.cart,
		Auth:         h.auth,
		Rates:        h.rates,
		Gateway:      h.gateway,
		SavedMethods: h.saved,
		Orders:       h.orders,
		Notifier:     h.notifier,
		Profile:      h.profile,
		Validator:    validation.New(),
		Events:       h.events,
		Logger:       logger.NewWithWriter("checkout-service", "info", h.logs),
	}
	h.orch = NewOrchestrator("slot-1", deps, o, h.notices)
	return h
}

func testItems() []domain.LineItem {
	return []domain.LineItem{
		{ProductID: "prod-1", Name: "Purcari Negru de Purcari", SKU: "WINE-001", Price: 100, Quantity: 1},
	}
}

func expressMethod() domain.ShippingMethod {
	return domain.ShippingMethod{ID: "express", Name: "Express Shipping", Price: 1299, EstimatedDays: 1}
}

func validShipping() domain.ShippingInfo {
	return domain.ShippingInfo{
		Address: domain.Address{
			FirstName:  "Ion",
			LastName:   "Popescu",
			Street:     "Str. Stefan cel Mare 1",
			City:       "Chisinau",
			PostalCode: "2001",
			Country:    "MD",
		},
		Method: FallbackShippingMethod,
	}
}

func cashMethod() domain.PaymentMethod {
	return domain.PaymentMethod{
		Type: domain.PaymentCash,
		Cash: &domain.CashDetails{Confirmed: true},
	}
}

func cardMethod() domain.PaymentMethod {
	return domain.PaymentMethod{
		Type: domain.PaymentCreditCard,
		CreditCard: &domain.CreditCardDetails{
			Number: "4242424242424242",
			Expiry: "12/99",
			CVV:    "123",
			Holder: "Ion Popescu",
		},
	}
}

// initialized returns a harness whose checkout is initialized with the
// cart locked and shipping filled in.
func initialized(t *testing.T, opts ...func(*Options)) *harness {
	t.Helper()
	h := newHarness(t, opts...)
	h.cart.On("Lock", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	ctx := context.Background()
	if err := h.orch.InitializeCheckout(ctx, testItems()); err != nil {
		t.Fatalf("initialize checkout: %v", err)
	}
	if err := h.orch.UpdateShippingInfo(ctx, validShipping(), testItems()); err != nil {
		t.Fatalf("update shipping: %v", err)
	}
	return h
}

// atReview drives an initialized checkout to the review step with method
// selected and consents given.
func atReview(t *testing.T, h *harness, method domain.PaymentMethod) {
	t.Helper()
	ctx := context.Background()

	if _, err := h.orch.ProceedToNextStep(ctx); err != nil {
		t.Fatalf("proceed to payment: %v", err)
	}
	if err := h.orch.UpdatePaymentMethod(ctx, method); err != nil {
		t.Fatalf("update payment method: %v", err)
	}
	if _, err := h.orch.ProceedToNextStep(ctx); err != nil {
		t.Fatalf("proceed to review: %v", err)
	}
	h.orch.UpdateConsents(ctx, domain.Consents{TermsAccepted: true, PrivacyAccepted: true})
}
