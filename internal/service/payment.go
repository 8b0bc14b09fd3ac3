package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/logger"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/caraseli02/MoldovaDirect-sub004/internal/service")

// PaymentCoordinator prepares and executes payments, creates the order and
// runs the post-order side effects.
type PaymentCoordinator struct {
	session      *SessionState
	shipping     *ShippingCoordinator
	auth         AuthProvider
	cart         CartProvider
	gateway      PaymentGateway
	savedMethods SavedPaymentMethodStore
	orders       OrderService
	notifier     Notifier
	toaster      Toaster
	events       EventPublisher
	validator    Validator
	logger       *slog.Logger
	locale       string
}

// NewPaymentCoordinator creates a payment coordinator for session.
func NewPaymentCoordinator(session *SessionState, shipping *ShippingCoordinator, deps Dependencies, toaster Toaster, locale string) *PaymentCoordinator {
	return &PaymentCoordinator{
		session:      session,
		shipping:     shipping,
		auth:         deps.Auth,
		cart:         deps.Cart,
		gateway:      deps.Gateway,
		savedMethods: deps.SavedMethods,
		orders:       deps.Orders,
		notifier:     deps.Notifier,
		toaster:      toaster,
		events:       deps.Events,
		validator:    deps.Validator,
		logger:       deps.Logger,
		locale:       locale,
	}
}

// LoadSavedPaymentMethods fetches saved methods for signed-in shoppers and
// clears the list for guests. Failures are only logged.
func (c *PaymentCoordinator) LoadSavedPaymentMethods(ctx context.Context) {
	if !c.auth.IsAuthenticated(ctx) {
		c.session.SetSavedPaymentMethods(nil)
		return
	}

	methods, err := c.savedMethods.FetchSavedPaymentMethods(ctx)
	if err != nil {
		c.log(ctx).Warn("failed to load saved payment methods", slog.String("error", err.Error()))
		return
	}
	c.session.SetSavedPaymentMethods(methods)
}

// SavePaymentMethodData saves method remotely and upserts the result into
// the saved list. Errors are returned to the caller.
func (c *PaymentCoordinator) SavePaymentMethodData(ctx context.Context, method domain.PaymentMethod) (*domain.SavedPaymentMethod, error) {
	saved, err := c.savedMethods.SavePaymentMethod(ctx, method)
	if err != nil {
		return nil, fmt.Errorf("save payment method: %w", err)
	}
	c.session.UpsertSavedPaymentMethod(*saved)
	return saved, nil
}

// UpdatePaymentMethod validates and stores method, then persists. An
// invalid method is recorded under the "payment" validation key.
func (c *PaymentCoordinator) UpdatePaymentMethod(ctx context.Context, method domain.PaymentMethod) error {
	c.session.SetLoading(true)
	defer c.session.SetLoading(false)

	result := c.validator.ValidatePaymentMethod(&method)
	if !result.IsValid {
		c.session.SetValidationErrors(fieldPayment, result.Messages())
		return domain.NewValidationError(fieldPayment, strings.Join(result.Messages(), ", "))
	}
	c.session.ClearFieldErrors(fieldPayment)

	c.session.SetPaymentMethod(&method)
	c.session.Persist(ctx)
	return nil
}

// PreparePayment creates a payment intent for card payments. It does
// nothing until both a payment method and order data are set, and other
// payment kinds need no preparation.
func (c *PaymentCoordinator) PreparePayment(ctx context.Context) (err error) {
	c.session.SetProcessing(true)
	defer c.session.SetProcessing(false)

	method := c.session.PaymentMethod()
	if method == nil || c.session.OrderData() == nil {
		return nil
	}
	sessionID := c.session.EnsureSessionID()
	if method.Type != domain.PaymentCreditCard {
		return nil
	}

	ctx, span := c.startSpan(ctx, "checkout.PreparePayment", method.Type)
	defer func() { endSpan(span, err) }()

	c.shipping.UpdateShippingCosts()
	od := c.session.OrderData()

	intent, err := c.gateway.CreatePaymentIntent(ctx, IntentRequest{
		Amount:    od.Total,
		Currency:  strings.ToLower(od.Currency),
		SessionID: sessionID,
	})
	if err != nil {
		wrapped := domain.NewPaymentError("failed to prepare payment", err)
		c.fail(ctx, "preparePayment", wrapped)
		return wrapped
	}

	c.session.SetPaymentIntent(intent)
	return nil
}

// ProcessCashPayment always succeeds; cash is collected on delivery.
func (c *PaymentCoordinator) ProcessCashPayment(context.Context) domain.PaymentResult {
	return domain.PaymentResult{
		Success:       true,
		TransactionID: "cash_" + uuid.NewString(),
		PaymentMethod: domain.PaymentCash,
		Status:        domain.PaymentStatusPendingDelivery,
	}
}

// ProcessCreditCardPayment confirms the prepared intent. It returns
// ErrPaymentIntentNotInitialized when PreparePayment has not run; declines
// are reported through the result, not the error.
func (c *PaymentCoordinator) ProcessCreditCardPayment(ctx context.Context) (domain.PaymentResult, error) {
	intent := c.session.PaymentIntent()
	if intent == nil || intent.ID == "" || intent.ClientSecret == "" {
		return domain.PaymentResult{}, domain.ErrPaymentIntentNotInitialized
	}

	conf, err := c.gateway.ConfirmPaymentIntent(ctx, ConfirmRequest{
		PaymentIntentID: intent.ID,
		SessionID:       c.session.SessionID(),
	})
	if err != nil {
		return domain.PaymentResult{}, fmt.Errorf("confirm payment intent: %w", err)
	}

	switch {
	case conf.RequiresAction || conf.Status == domain.PaymentStatusRequiresAction:
		return domain.PaymentResult{
			Success:        false,
			PaymentMethod:  domain.PaymentCreditCard,
			Status:         domain.PaymentStatusRequiresAction,
			RequiresAction: true,
			Error:          "additional authentication required",
		}, nil
	case conf.Status != domain.PaymentStatusSucceeded:
		msg := conf.Error
		if msg == "" {
			msg = fmt.Sprintf("payment %s", conf.Status)
		}
		return domain.PaymentResult{
			Success:       false,
			PaymentMethod: domain.PaymentCreditCard,
			Status:        conf.Status,
			Error:         msg,
		}, nil
	}

	txID := conf.TransactionID
	if txID == "" {
		txID = intent.ID
	}
	return domain.PaymentResult{
		Success:       true,
		TransactionID: txID,
		PaymentMethod: domain.PaymentCreditCard,
		Status:        domain.PaymentStatusSucceeded,
	}, nil
}

// ProcessPayPalPayment completes immediately.
func (c *PaymentCoordinator) ProcessPayPalPayment(context.Context) domain.PaymentResult {
	return domain.PaymentResult{
		Success:       true,
		TransactionID: "paypal_" + uuid.NewString(),
		PaymentMethod: domain.PaymentPayPal,
		Status:        domain.PaymentStatusCompleted,
	}
}

// ProcessBankTransferPayment completes as pending until the transfer lands.
func (c *PaymentCoordinator) ProcessBankTransferPayment(context.Context) domain.PaymentResult {
	return domain.PaymentResult{
		Success:       true,
		TransactionID: "bank_" + uuid.NewString(),
		PaymentMethod: domain.PaymentBankTransfer,
		Status:        domain.PaymentStatusPending,
	}
}

// CreateOrderRecord submits the order and merges its id, number and the
// customer email into the order data. Failure is fatal to the attempt.
func (c *PaymentCoordinator) CreateOrderRecord(ctx context.Context, result domain.PaymentResult) (err error) {
	od := c.session.OrderData()
	info := c.session.ShippingInfo()
	method := c.session.PaymentMethod()
	if od == nil || info == nil || method == nil {
		return domain.ErrMissingOrderInformation
	}

	ctx, span := c.startSpan(ctx, "checkout.CreateOrder", method.Type)
	defer func() { endSpan(span, err) }()

	email := c.session.ContactEmail()
	if guest := c.session.GuestInfo(); guest != nil && guest.Email != "" {
		email = guest.Email
	}

	locale := c.locale
	if pref := c.session.Preferences(); pref != nil && pref.Locale != "" {
		locale = pref.Locale
	}

	sessionID := c.session.EnsureSessionID()
	conf, err := c.orders.CreateOrder(ctx, OrderRequest{
		IdempotencyKey:   sessionID,
		SessionID:        sessionID,
		UserID:           c.auth.UserID(ctx),
		CustomerEmail:    email,
		CustomerName:     info.Address.FullName(),
		Items:            od.Items,
		ShippingAddress:  info.Address,
		BillingAddress:   info.Address,
		ShippingMethod:   info.Method,
		PaymentMethod:    method.Type,
		PaymentResult:    result,
		Subtotal:         od.Subtotal,
		ShippingCost:     od.ShippingCost,
		Tax:              od.Tax,
		Total:            od.Total,
		Currency:         od.Currency,
		MarketingConsent: c.session.Consents().MarketingConsent,
		Locale:           locale,
	})
	if err != nil {
		ordersCreated.WithLabelValues(outcomeFailure).Inc()
		c.log(ctx).Error("order creation failed",
			slog.String("session_id", sessionID),
			slog.String("step", "createOrder"),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create order: %w", err)
	}

	ordersCreated.WithLabelValues(outcomeSuccess).Inc()
	c.session.UpdateOrderData(func(od *domain.OrderData) {
		od.OrderID = conf.ID
		od.OrderNumber = conf.OrderNumber
		od.CustomerEmail = email
	})
	span.SetAttributes(attribute.String("checkout.order_id", conf.ID))
	return nil
}

// CompleteCheckout runs the post-order side effects: clear the cart, send
// the confirmation email, move to confirmation, persist and toast. Only
// the step change and persistence are guaranteed.
func (c *PaymentCoordinator) CompleteCheckout(ctx context.Context) {
	sessionID := c.session.SessionID()
	od := c.session.OrderData()

	if err := c.cart.Clear(ctx); err != nil {
		c.log(ctx).Warn("failed to clear cart after order",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	if od != nil && od.CustomerEmail != "" {
		err := c.notifier.SendConfirmationEmail(ctx, ConfirmationEmail{
			OrderID:     od.OrderID,
			OrderNumber: od.OrderNumber,
			SessionID:   sessionID,
			Email:       od.CustomerEmail,
		})
		if err != nil {
			c.log(ctx).Warn("failed to send confirmation email",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	c.session.SetStep(domain.StepConfirmation)
	c.session.Persist(ctx)

	if c.toaster != nil {
		msg := "Your order has been placed."
		if od != nil && od.OrderNumber != "" {
			msg = fmt.Sprintf("Order %s has been placed.", od.OrderNumber)
		}
		if err := c.toaster.Success(ctx, "Order confirmed", msg); err != nil {
			c.log(ctx).Debug("failed to show order toast", slog.String("error", err.Error()))
		}
	}

	c.publish(ctx, c.events.PublishCheckoutCompleted, "")
}

// ProcessPayment executes the selected payment, creates the order and
// completes the checkout. Any failure is recorded as the last error and
// returned as a payment error.
func (c *PaymentCoordinator) ProcessPayment(ctx context.Context) (err error) {
	c.session.SetProcessing(true)
	defer c.session.SetProcessing(false)

	method := c.session.PaymentMethod()
	var methodType domain.PaymentMethodType
	if method != nil {
		methodType = method.Type
	}

	ctx, span := c.startSpan(ctx, "checkout.ProcessPayment", methodType)
	defer func() { endSpan(span, err) }()

	if err := c.processPayment(ctx, method); err != nil {
		paymentsProcessed.WithLabelValues(metricMethod(methodType), outcomeFailure).Inc()
		wrapped := domain.NewPaymentError("payment processing failed", err)
		c.fail(ctx, "processPayment", wrapped)
		c.publish(ctx, c.events.PublishPaymentFailed, err.Error())
		return wrapped
	}
	paymentsProcessed.WithLabelValues(metricMethod(methodType), outcomeSuccess).Inc()
	return nil
}

func (c *PaymentCoordinator) processPayment(ctx context.Context, method *domain.PaymentMethod) error {
	if method == nil || c.session.OrderData() == nil || c.session.ShippingInfo() == nil {
		return domain.ErrMissingOrderInformation
	}

	var result domain.PaymentResult
	switch method.Type {
	case domain.PaymentCash:
		result = c.ProcessCashPayment(ctx)
	case domain.PaymentCreditCard:
		r, err := c.ProcessCreditCardPayment(ctx)
		if err != nil {
			return err
		}
		result = r
	case domain.PaymentPayPal:
		result = c.ProcessPayPalPayment(ctx)
	case domain.PaymentBankTransfer:
		result = c.ProcessBankTransferPayment(ctx)
	default:
		return domain.ErrInvalidPaymentMethod
	}

	if !result.Success {
		if result.Error != "" {
			return fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, result.Error)
		}
		return domain.ErrPaymentDeclined
	}

	if err := c.CreateOrderRecord(ctx, result); err != nil {
		return err
	}
	c.CompleteCheckout(ctx)
	return nil
}

// fail records and logs a payment-flow failure.
func (c *PaymentCoordinator) fail(ctx context.Context, step string, err *domain.CheckoutError) {
	c.session.HandleError(err)
	c.log(ctx).Error("checkout payment step failed",
		slog.String("session_id", c.session.SessionID()),
		slog.String("step", step),
		slog.String("error", err.Error()),
	)
}

// publish emits a lifecycle event; failures are only logged.
func (c *PaymentCoordinator) publish(ctx context.Context, fn func(context.Context, CheckoutEvent) error, reason string) {
	e := buildEvent(ctx, c.session, c.auth)
	e.Reason = reason
	if err := fn(ctx, e); err != nil {
		c.log(ctx).Warn("failed to publish checkout event", slog.String("error", err.Error()))
	}
}

func (c *PaymentCoordinator) startSpan(ctx context.Context, name string, method domain.PaymentMethodType) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("checkout.session_id", c.session.SessionID()),
		attribute.String("checkout.payment_method", string(method)),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (c *PaymentCoordinator) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, c.logger)
}

func metricMethod(t domain.PaymentMethodType) string {
	if t.IsValid() {
		return string(t)
	}
	return "unknown"
}

// buildEvent snapshots the session for a lifecycle event.
func buildEvent(ctx context.Context, session *SessionState, auth AuthProvider) CheckoutEvent {
	e := CheckoutEvent{
		SessionID: session.SessionID(),
		Step:      session.Step(),
	}
	if auth != nil {
		e.UserID = auth.UserID(ctx)
	}
	if od := session.OrderData(); od != nil {
		e.OrderID = od.OrderID
		e.OrderNumber = od.OrderNumber
		e.ItemCount = od.ItemCount()
		e.Total = od.Total
		e.Currency = od.Currency
	}
	if m := session.PaymentMethod(); m != nil {
		e.PaymentMethod = m.Type
	}
	return e
}
