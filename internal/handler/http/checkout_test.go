package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/client"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/repository/memory"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/service"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/validation"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/health"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/logger"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/middleware"
)

// --- Stub collaborators ---

type stubCart struct {
	mu      sync.Mutex
	items   []domain.LineItem
	lockErr error
	cleared bool
}

func (c *stubCart) Items(context.Context) ([]domain.LineItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.LineItem(nil), c.items...), nil
}

func (c *stubCart) Lock(context.Context, string, time.Duration) error { return c.lockErr }
func (c *stubCart) Unlock(context.Context, string) error              { return nil }

func (c *stubCart) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = true
	return nil
}

type stubRates struct{}

func (stubRates) FetchShippingMethods(context.Context, service.RateQuery) ([]domain.ShippingMethod, error) {
	return []domain.ShippingMethod{service.FallbackShippingMethod}, nil
}

type stubGateway struct {
	status string
}

func (g *stubGateway) CreatePaymentIntent(context.Context, service.IntentRequest) (*domain.PaymentIntent, error) {
	return &domain.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret"}, nil
}

func (g *stubGateway) ConfirmPaymentIntent(context.Context, service.ConfirmRequest) (*domain.IntentConfirmation, error) {
	return &domain.IntentConfirmation{Status: g.status, TransactionID: "txn_1"}, nil
}

type stubSavedMethods struct{}

func (stubSavedMethods) FetchSavedPaymentMethods(context.Context) ([]domain.SavedPaymentMethod, error) {
	return []domain.SavedPaymentMethod{}, nil
}

func (stubSavedMethods) SavePaymentMethod(_ context.Context, m domain.PaymentMethod) (*domain.SavedPaymentMethod, error) {
	return &domain.SavedPaymentMethod{ID: "pm_1", Type: m.Type, Last4: "4242"}, nil
}

type stubOrders struct {
	mu   sync.Mutex
	reqs []service.OrderRequest
}

func (o *stubOrders) CreateOrder(_ context.Context, req service.OrderRequest) (*service.OrderConfirmation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reqs = append(o.reqs, req)
	return &service.OrderConfirmation{ID: "ord-1", OrderNumber: "MD-1001"}, nil
}

type stubNotifier struct{}

func (stubNotifier) SendConfirmationEmail(context.Context, service.ConfirmationEmail) error {
	return nil
}

type stubProfile struct{}

func (stubProfile) FetchCheckoutProfile(context.Context) (*domain.CheckoutProfile, error) {
	return &domain.CheckoutProfile{
		Addresses: []domain.Address{{ID: "addr-1", FirstName: "Ion", LastName: "Popescu"}},
	}, nil
}

// --- Test Helpers ---

type testServer struct {
	handler http.Handler
	manager *service.Manager
	cart    *stubCart
	gateway *stubGateway
	orders  *stubOrders
}

func newTestServer(t *testing.T, opts ...func(*service.Options)) *testServer {
	t.Helper()

	ts := &testServer{
		cart: &stubCart{items: []domain.LineItem{
			{ProductID: "prod-1", Name: "Purcari Negru de Purcari", Price: 100, Quantity: 1},
		}},
		gateway: &stubGateway{status: domain.PaymentStatusSucceeded},
		orders:  &stubOrders{},
	}

	o := service.DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	deps := service.Dependencies{
		Store:        memory.NewSnapshotStore(),
		Cart:         ts.cart,
		Auth:         client.ForwardedAuth{},
		Rates:        stubRates{},
		Gateway:      ts.gateway,
		SavedMethods: stubSavedMethods{},
		Orders:       ts.orders,
		Notifier:     stubNotifier{},
		Profile:      stubProfile{},
		Validator:    validation.New(),
		Logger:       logger.Discard(),
	}
	ts.manager = service.NewManager(deps, o, time.Minute)

	healthHandler := health.NewHandler()
	ts.handler = NewRouter(ts.manager, healthHandler, RouterConfig{CORS: middleware.DefaultCORSConfig()}, logger.Discard())
	return ts
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code      string              `json:"code"`
		Message   string              `json:"message"`
		Fields    map[string][]string `json:"fields"`
		Retryable bool                `json:"retryable"`
	} `json:"error"`
}

type checkoutView struct {
	CurrentStep         string            `json:"current_step"`
	SessionID           string            `json:"session_id"`
	ContactEmail        string            `json:"contact_email"`
	OrderData           *domain.OrderData `json:"order_data"`
	PaymentMethod       map[string]any    `json:"payment_method"`
	SavedAddresses      []domain.Address  `json:"saved_addresses"`
	TermsAccepted       bool              `json:"terms_accepted"`
	CanProceedToPayment bool              `json:"can_proceed_to_payment"`
	CanProceedToReview  bool              `json:"can_proceed_to_review"`
	CanCompleteOrder    bool              `json:"can_complete_order"`
	Notices             []service.Notice  `json:"notices"`
}

// browser replays the checkout_slot cookie like a real client would.
type browser struct {
	t      *testing.T
	server *testServer
	cookie *http.Cookie
	userID string
	email  string
}

func (ts *testServer) browser(t *testing.T) *browser {
	return &browser{t: t, server: ts}
}

func (b *browser) do(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	b.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(b.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	if b.userID != "" {
		req.Header.Set(middleware.HeaderUserID, b.userID)
		req.Header.Set(middleware.HeaderUserEmail, b.email)
	}

	rec := httptest.NewRecorder()
	b.server.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.Name == SlotCookieName {
			b.cookie = c
		}
	}

	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(b.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (b *browser) view(env envelope) checkoutView {
	b.t.Helper()
	var v checkoutView
	require.NoError(b.t, json.Unmarshal(env.Data, &v))
	return v
}

func validShippingBody() domain.ShippingInfo {
	return domain.ShippingInfo{
		Address: domain.Address{
			FirstName:  "Ion",
			LastName:   "Popescu",
			Street:     "Str. Stefan cel Mare 1",
			City:       "Chisinau",
			PostalCode: "2001",
			Country:    "MD",
		},
		Method: service.FallbackShippingMethod,
	}
}

func cashBody() domain.PaymentMethod {
	return domain.PaymentMethod{Type: domain.PaymentCash, Cash: &domain.CashDetails{Confirmed: true}}
}

func cardBody() domain.PaymentMethod {
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

// driveToReview initializes a checkout and fills it in up to the review
// step with consents given.
func (b *browser) driveToReview(method domain.PaymentMethod) {
	b.t.Helper()
	steps := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/api/v1/checkout/init", nil},
		{http.MethodPut, "/api/v1/checkout/guest", domain.GuestInfo{Email: "ion@example.md"}},
		{http.MethodPut, "/api/v1/checkout/shipping", validShippingBody()},
		{http.MethodPost, "/api/v1/checkout/next", nil},
		{http.MethodPut, "/api/v1/checkout/payment", method},
		{http.MethodPost, "/api/v1/checkout/next", nil},
		{http.MethodPut, "/api/v1/checkout/consents", domain.Consents{TermsAccepted: true, PrivacyAccepted: true}},
	}
	for _, s := range steps {
		rec, _ := b.do(s.method, s.path, s.body)
		require.Equal(b.t, http.StatusOK, rec.Code, "%s %s: %s", s.method, s.path, rec.Body.String())
	}
}

// --- Tests ---

func TestGetCheckout_IssuesSlotCookie(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)

	rec, env := b.do(http.MethodGet, "/api/v1/checkout", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, b.cookie)
	assert.True(t, b.cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, b.cookie.SameSite)
	assert.Equal(t, 1800, b.cookie.MaxAge)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	v := b.view(env)
	assert.Equal(t, "shipping", v.CurrentStep)
	assert.NotNil(t, v.Notices)
	assert.False(t, v.CanProceedToPayment)
}

func TestCheckoutSlot_ReplacesMalformedCookie(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)
	b.cookie = &http.Cookie{Name: SlotCookieName, Value: "not-a-uuid"}

	rec, _ := b.do(http.MethodGet, "/api/v1/checkout", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, "not-a-uuid", b.cookie.Value)
}

func TestInitCheckout_FromCart(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)

	rec, env := b.do(http.MethodPost, "/api/v1/checkout/init", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := b.view(env)
	assert.NotEmpty(t, v.SessionID)
	require.NotNil(t, v.OrderData)
	assert.Equal(t, int64(100), v.OrderData.Subtotal)
	assert.Equal(t, 1, ts.manager.Len())

	// The same cookie resumes the same session.
	_, env = b.do(http.MethodGet, "/api/v1/checkout", nil)
	assert.Equal(t, v.SessionID, b.view(env).SessionID)
}

func TestInitCheckout_WithItems(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)

	rec, env := b.do(http.MethodPost, "/api/v1/checkout/init", InitCheckoutRequest{
		Items: []LineItemRequest{{ProductID: "prod-2", Name: "Cricova Brut", Price: 250, Quantity: 2}},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(500), b.view(env).OrderData.Subtotal)
}

func TestInitCheckout_InvalidItems(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)

	rec, env := b.do(http.MethodPost, "/api/v1/checkout/init", InitCheckoutRequest{
		Items: []LineItemRequest{{ProductID: "prod-2", Price: 250, Quantity: 0}},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestInitCheckout_PrefetchesForSignedInShopper(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)
	b.userID, b.email = "user-1", "ion@example.md"

	rec, env := b.do(http.MethodPost, "/api/v1/checkout/init", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	v := b.view(env)
	assert.Equal(t, "ion@example.md", v.ContactEmail)
	require.Len(t, v.SavedAddresses, 1)
	assert.Equal(t, "addr-1", v.SavedAddresses[0].ID)
}

func TestInitCheckout_StrictLockConflict(t *testing.T) {
	ts := newTestServer(t, func(o *service.Options) { o.CartLockPolicy = service.CartLockStrict })
	ts.cart.lockErr = service.ErrCartLocked
	b := ts.browser(t)

	rec, env := b.do(http.MethodPost, "/api/v1/checkout/init", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFLICT", env.Error.Code)
}

func TestInitCheckout_DegradedLockStillSucceeds(t *testing.T) {
	ts := newTestServer(t)
	ts.cart.lockErr = service.ErrCartLocked
	b := ts.browser(t)

	rec, _ := b.do(http.MethodPost, "/api/v1/checkout/init", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateShippingInfo_ValidationError(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)
	b.do(http.MethodPost, "/api/v1/checkout/init", nil)

	info := validShippingBody()
	info.Address.City = ""
	rec, env := b.do(http.MethodPut, "/api/v1/checkout/shipping", info)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.NotEmpty(t, env.Error.Fields["shipping"])
}

func TestUpdateGuestInfo_InvalidEmail(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)

	rec, env := b.do(http.MethodPut, "/api/v1/checkout/guest", domain.GuestInfo{Email: "nope"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.NotEmpty(t, env.Error.Fields["guest"])
}

func TestMalformedBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/checkout/shipping", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
}

func TestProceedToNextStep_BlockedByValidation(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)
	b.do(http.MethodPost, "/api/v1/checkout/init", nil)

	rec, env := b.do(http.MethodPost, "/api/v1/checkout/next", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.NotEmpty(t, env.Error.Fields["shipping"])
}

func TestCashCheckout_EndToEnd(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)
	b.driveToReview(cashBody())

	rec, env := b.do(http.MethodPost, "/api/v1/checkout/next", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := b.view(env)
	assert.Equal(t, "confirmation", v.CurrentStep)
	assert.Equal(t, "ord-1", v.OrderData.OrderID)
	assert.Equal(t, "MD-1001", v.OrderData.OrderNumber)
	require.Len(t, v.Notices, 1)
	assert.Contains(t, v.Notices[0].Message, "MD-1001")

	require.Len(t, ts.orders.reqs, 1)
	assert.Equal(t, v.SessionID, ts.orders.reqs[0].IdempotencyKey)
	assert.Equal(t, "ion@example.md", ts.orders.reqs[0].CustomerEmail)
	assert.True(t, ts.cart.cleared)

	// Notices are delivered once.
	_, env = b.do(http.MethodGet, "/api/v1/checkout", nil)
	assert.Empty(t, b.view(env).Notices)
}

func TestCardCheckout_SanitizedView(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)
	b.driveToReview(cardBody())

	rec, env := b.do(http.MethodGet, "/api/v1/checkout", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "4242424242424242")
	v := b.view(env)
	assert.Equal(t, "credit_card", v.PaymentMethod["type"])
	assert.True(t, v.CanCompleteOrder)
}

func TestCardCheckout_Declined(t *testing.T) {
	ts := newTestServer(t)
	ts.gateway.status = domain.PaymentStatusFailed
	b := ts.browser(t)
	b.driveToReview(cardBody())

	rec, env := b.do(http.MethodPost, "/api/v1/checkout/next", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "PAYMENT_FAILED", env.Error.Code)
	assert.True(t, env.Error.Retryable)
	assert.Empty(t, ts.orders.reqs)

	// The failure is retryable and recorded on the payment field.
	rec, env = b.do(http.MethodPost, "/api/v1/checkout/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var retry RetryResponse
	require.NoError(t, json.Unmarshal(env.Data, &retry))
	assert.True(t, retry.Retryable)
	assert.Equal(t, "payment", retry.Field)
}

func TestGoToStep(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)
	b.driveToReview(cashBody())

	rec, env := b.do(http.MethodPost, "/api/v1/checkout/step", GoToStepRequest{Step: "shipping"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shipping", b.view(env).CurrentStep)

	rec, env = b.do(http.MethodPost, "/api/v1/checkout/step", GoToStepRequest{Step: "confirmation"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, _ = b.do(http.MethodPost, "/api/v1/checkout/step", GoToStepRequest{Step: "upsell"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGoToPreviousStep(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)
	b.driveToReview(cashBody())

	rec, env := b.do(http.MethodPost, "/api/v1/checkout/previous", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "payment", b.view(env).CurrentStep)
}

func TestCancelAndReset(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)
	b.driveToReview(cashBody())

	rec, env := b.do(http.MethodPost, "/api/v1/checkout/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := b.view(env)
	assert.Equal(t, "shipping", v.CurrentStep)
	assert.Empty(t, v.SessionID)
	assert.False(t, v.TermsAccepted)

	rec, _ = b.do(http.MethodPost, "/api/v1/checkout/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClearError(t *testing.T) {
	ts := newTestServer(t)
	ts.gateway.status = domain.PaymentStatusFailed
	b := ts.browser(t)
	b.driveToReview(cardBody())
	b.do(http.MethodPost, "/api/v1/checkout/next", nil)

	rec, _ := b.do(http.MethodDelete, "/api/v1/checkout/errors?field=payment", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := b.do(http.MethodPost, "/api/v1/checkout/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var retry RetryResponse
	require.NoError(t, json.Unmarshal(env.Data, &retry))
	assert.False(t, retry.Retryable)
}

func TestLoadShippingMethods(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)

	rec, env := b.do(http.MethodGet, "/api/v1/checkout/shipping-methods", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var data struct {
		Methods []domain.ShippingMethod `json:"methods"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Methods, 1)
	assert.Equal(t, "standard", data.Methods[0].ID)
}

func TestSavePaymentMethod(t *testing.T) {
	ts := newTestServer(t)

	guest := ts.browser(t)
	rec, _ := guest.do(http.MethodPost, "/api/v1/checkout/payment-methods", cardBody())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	user := ts.browser(t)
	user.userID, user.email = "user-1", "ion@example.md"
	rec, env := user.do(http.MethodPost, "/api/v1/checkout/payment-methods", cardBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var saved domain.SavedPaymentMethod
	require.NoError(t, json.Unmarshal(env.Data, &saved))
	assert.Equal(t, "pm_1", saved.ID)
}

func TestMutation_BusyWhileInFlight(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)
	b.do(http.MethodGet, "/api/v1/checkout", nil)
	require.NotNil(t, b.cookie)

	_, release, err := ts.manager.Acquire(context.Background(), b.cookie.Value)
	require.NoError(t, err)

	rec, env := b.do(http.MethodPost, "/api/v1/checkout/next", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CHECKOUT_BUSY", env.Error.Code)
	assert.True(t, env.Error.Retryable)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Reads are not blocked.
	rec, _ = b.do(http.MethodGet, "/api/v1/checkout", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	release()
	rec, _ = b.do(http.MethodPost, "/api/v1/checkout/previous", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Result().Cookies(), path)
	}
}
