package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/repository"
	apperrors "github.com/caraseli02/MoldovaDirect-sub004/pkg/errors"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/logger"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/validator"
)

// Validation and error bag keys.
const (
	fieldShipping = "shipping"
	fieldPayment  = "payment"
	fieldReview   = "review"
	fieldGuest    = "guest"
)

// CartLockPolicy decides what happens when the cart cannot be locked.
type CartLockPolicy string

const (
	// CartLockDegrade continues checkout without a lock.
	CartLockDegrade CartLockPolicy = "degrade"
	// CartLockStrict fails initialization when another session holds the
	// cart. Other lock failures still degrade.
	CartLockStrict CartLockPolicy = "strict"
)

// Dependencies are the collaborators shared by every checkout session.
type Dependencies struct {
	Store        repository.SnapshotStore
	Cart         CartProvider
	Auth         AuthProvider
	Rates        ShippingRates
	Gateway      PaymentGateway
	SavedMethods SavedPaymentMethodStore
	Orders       OrderService
	Notifier     Notifier
	Profile      ProfileService
	Validator    Validator
	Events       EventPublisher
	Logger       *slog.Logger
}

// Options tune checkout behaviour.
type Options struct {
	SessionTTL      time.Duration
	CartLockTTL     time.Duration
	CartLockPolicy  CartLockPolicy
	TaxRateBP       int64
	DefaultCurrency string
	Locale          string
}

// DefaultOptions returns the standard checkout settings.
func DefaultOptions() Options {
	return Options{
		SessionTTL:      domain.SessionTTL,
		CartLockTTL:     30 * time.Minute,
		CartLockPolicy:  CartLockDegrade,
		DefaultCurrency: domain.DefaultCurrency,
		Locale:          "ro",
	}
}

// Orchestrator is the checkout API for one browser session. It composes the
// session state and the two coordinators.
type Orchestrator struct {
	session  *SessionState
	shipping *ShippingCoordinator
	payment  *PaymentCoordinator

	cart      CartProvider
	auth      AuthProvider
	profile   ProfileService
	validator Validator
	events    EventPublisher
	logger    *slog.Logger
	opts      Options
}

// NewOrchestrator builds the session state and coordinators for slotID.
func NewOrchestrator(slotID string, deps Dependencies, opts Options, toaster Toaster) *Orchestrator {
	if deps.Events == nil {
		deps.Events = NoopEventPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = domain.SessionTTL
	}
	if opts.CartLockTTL <= 0 {
		opts.CartLockTTL = opts.SessionTTL
	}
	if opts.CartLockPolicy == "" {
		opts.CartLockPolicy = CartLockDegrade
	}

	session := NewSessionState(slotID, deps.Store, deps.Logger, opts.SessionTTL)
	shipping := NewShippingCoordinator(session, deps.Cart, deps.Rates, deps.Validator, deps.Logger, opts.TaxRateBP, opts.DefaultCurrency)
	payment := NewPaymentCoordinator(session, shipping, deps, toaster, opts.Locale)

	return &Orchestrator{
		session:   session,
		shipping:  shipping,
		payment:   payment,
		cart:      deps.Cart,
		auth:      deps.Auth,
		profile:   deps.Profile,
		validator: deps.Validator,
		events:    deps.Events,
		logger:    deps.Logger,
		opts:      opts,
	}
}

// Session exposes the session state.
func (o *Orchestrator) Session() *SessionState { return o.session }

// Shipping exposes the shipping coordinator.
func (o *Orchestrator) Shipping() *ShippingCoordinator { return o.shipping }

// Payment exposes the payment coordinator.
func (o *Orchestrator) Payment() *PaymentCoordinator { return o.payment }

// View returns a read-only copy of the aggregate.
func (o *Orchestrator) View() *domain.CheckoutSession {
	return o.session.View()
}

// ---------------------------------------------------------------------------
// Readiness
// ---------------------------------------------------------------------------

// CanProceedToPayment reports whether shipping is complete and valid.
func (o *Orchestrator) CanProceedToPayment() bool {
	info := o.session.ShippingInfo()
	return info != nil &&
		info.Method.ID != "" &&
		len(o.session.ValidationErrors(fieldShipping)) == 0
}

// CanProceedToReview additionally requires a valid payment method.
func (o *Orchestrator) CanProceedToReview() bool {
	return o.CanProceedToPayment() &&
		o.session.PaymentMethod() != nil &&
		len(o.session.ValidationErrors(fieldPayment)) == 0
}

// CanCompleteOrder additionally requires order data and accepted terms.
func (o *Orchestrator) CanCompleteOrder() bool {
	consents := o.session.Consents()
	return o.CanProceedToReview() &&
		o.session.OrderData() != nil &&
		consents.TermsAccepted &&
		consents.PrivacyAccepted
}

// ---------------------------------------------------------------------------
// Navigation
// ---------------------------------------------------------------------------

// ValidateCurrentStep clears validation errors and validates the input of
// the current step, recording any field errors.
func (o *Orchestrator) ValidateCurrentStep() bool {
	o.session.ClearValidationErrors()

	switch o.session.Step() {
	case domain.StepShipping:
		return o.validateShipping()
	case domain.StepPayment:
		return o.validatePayment()
	case domain.StepReview:
		ok := o.validatePayment()
		consents := o.session.Consents()
		var msgs []string
		if !consents.TermsAccepted {
			msgs = append(msgs, "terms must be accepted")
		}
		if !consents.PrivacyAccepted {
			msgs = append(msgs, "privacy policy must be accepted")
		}
		if len(msgs) > 0 {
			o.session.SetValidationErrors(fieldReview, msgs)
			ok = false
		}
		return ok
	default:
		return true
	}
}

func (o *Orchestrator) validateShipping() bool {
	result := o.validator.ValidateShippingInformation(o.session.ShippingInfo())
	if !result.IsValid {
		o.session.SetValidationErrors(fieldShipping, result.Messages())
	}
	return result.IsValid
}

func (o *Orchestrator) validatePayment() bool {
	result := o.validator.ValidatePaymentMethod(o.session.PaymentMethod())
	if !result.IsValid {
		o.session.SetValidationErrors(fieldPayment, result.Messages())
	}
	return result.IsValid
}

// GoToStep moves to step after validating the current step. Confirmation
// is only reachable once an order exists. It reports whether the move
// happened.
func (o *Orchestrator) GoToStep(ctx context.Context, step domain.Step) bool {
	if !step.IsValid() {
		return false
	}
	if step == domain.StepConfirmation {
		if od := o.session.OrderData(); od == nil || od.OrderID == "" {
			return false
		}
	}
	if !o.ValidateCurrentStep() {
		return false
	}

	o.session.SetStep(step)
	o.session.Persist(ctx)
	return true
}

// ProceedToNextStep validates the current step, runs the transition's side
// effect and moves forward. It returns "" without error when already at the
// last step or when validation fails.
func (o *Orchestrator) ProceedToNextStep(ctx context.Context) (domain.Step, error) {
	current := o.session.Step()
	next, ok := current.Next()
	if !ok {
		return "", nil
	}
	if !o.ValidateCurrentStep() {
		return "", nil
	}

	switch {
	case current == domain.StepShipping && next == domain.StepPayment:
		o.shipping.UpdateShippingCosts()
	case current == domain.StepPayment && next == domain.StepReview:
		if err := o.payment.PreparePayment(ctx); err != nil {
			return "", err
		}
	case current == domain.StepReview && next == domain.StepConfirmation:
		if err := o.payment.ProcessPayment(ctx); err != nil {
			return "", err
		}
	}

	o.session.SetStep(next)
	o.session.Persist(ctx)
	return next, nil
}

// GoToPreviousStep moves back one step without validation.
func (o *Orchestrator) GoToPreviousStep(ctx context.Context) domain.Step {
	prev, ok := o.session.Step().Previous()
	if !ok {
		return o.session.Step()
	}
	o.session.SetStep(prev)
	o.session.Persist(ctx)
	return prev
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// InitializeCheckout resumes or starts the session: restore any persisted
// state, ensure a session id, extend the expiry, lock the cart, compute
// totals and load reference data. A session that already placed its order
// is reset first so the next purchase gets a new session id. Failures are
// recorded as system errors.
func (o *Orchestrator) InitializeCheckout(ctx context.Context, items []domain.LineItem) error {
	o.session.SetLoading(true)
	defer o.session.SetLoading(false)

	o.Resume(ctx)
	if o.completed() {
		o.log(ctx).Info("previous checkout already placed an order, starting a new session")
		o.session.Reset(ctx)
		o.session.SetLoading(true)
	}

	sessionID := o.session.EnsureSessionID()
	o.session.ExtendExpiry(o.opts.SessionTTL)

	if err := o.lockCart(ctx, sessionID); err != nil {
		wrapped := domain.NewSystemError("checkout is already in progress in another session", err)
		o.session.HandleError(wrapped)
		o.log(ctx).Error("checkout initialization failed",
			slog.String("step", "initializeCheckout"),
			slog.String("error", err.Error()),
		)
		return wrapped
	}

	if o.auth.IsAuthenticated(ctx) {
		o.session.SetAuthEmail(o.auth.Email(ctx))
	}

	if err := o.shipping.CalculateOrderData(ctx, items); err != nil {
		wrapped := domain.NewSystemError("failed to initialize checkout", err)
		o.session.HandleError(wrapped)
		o.log(ctx).Error("checkout initialization failed",
			slog.String("step", "initializeCheckout"),
			slog.String("error", err.Error()),
		)
		return wrapped
	}

	if info := o.session.ShippingInfo(); info != nil && info.Address.Country != "" {
		o.shipping.LoadShippingMethods(ctx)
	}
	o.payment.LoadSavedPaymentMethods(ctx)

	o.session.MarkSynced()
	o.session.Persist(ctx)

	o.publish(ctx, o.events.PublishCheckoutInitiated, "")
	return nil
}

// Resume hydrates the session from its durable snapshot and re-applies the
// restored shipping info and payment method. A missing or expired snapshot
// leaves the session untouched.
func (o *Orchestrator) Resume(ctx context.Context) {
	restored := o.session.Restore(ctx)
	if restored == nil {
		return
	}
	o.session.SetShippingInfo(restored.ShippingInfo)
	o.session.SetPaymentMethod(restored.PaymentMethod)
}

// completed reports whether this session already placed its order.
func (o *Orchestrator) completed() bool {
	if o.session.Step() == domain.StepConfirmation {
		return true
	}
	od := o.session.OrderData()
	return od != nil && od.OrderID != ""
}

// lockCart takes the advisory cart lock. Under the degrade policy every
// failure is logged and ignored; under strict a lock held by another
// session is returned.
func (o *Orchestrator) lockCart(ctx context.Context, sessionID string) error {
	err := o.cart.Lock(ctx, sessionID, o.opts.CartLockTTL)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrCartLocked) {
		if o.opts.CartLockPolicy == CartLockStrict {
			return apperrors.Conflict("cart is locked by another checkout session")
		}
		cartLockDegraded.WithLabelValues("locked_elsewhere").Inc()
		o.log(ctx).Warn("cart locked by another session, possible double checkout")
		return nil
	}

	cartLockDegraded.WithLabelValues("lock_failed").Inc()
	o.log(ctx).Warn("failed to lock cart, continuing without lock",
		slog.String("error", err.Error()),
	)
	return nil
}

// PrefetchCheckoutData loads saved addresses, preferences and countries for
// signed-in shoppers once per session. Failures are logged and still mark
// the data as prefetched.
func (o *Orchestrator) PrefetchCheckoutData(ctx context.Context) {
	if o.session.DataPrefetched() {
		return
	}
	defer o.session.SetDataPrefetched(true)

	if !o.auth.IsAuthenticated(ctx) {
		return
	}

	profile, err := o.profile.FetchCheckoutProfile(ctx)
	if err != nil {
		o.log(ctx).Warn("failed to prefetch checkout data",
			slog.String("error", err.Error()),
		)
		return
	}

	o.session.SetSavedAddresses(profile.Addresses)
	if profile.Preferences != nil {
		o.session.SetPreferences(profile.Preferences)
	}
	if len(profile.Countries) > 0 {
		o.session.SetAvailableCountries(profile.Countries)
	}
}

// UpdateShippingInfo delegates to the shipping coordinator.
func (o *Orchestrator) UpdateShippingInfo(ctx context.Context, info domain.ShippingInfo, items []domain.LineItem) error {
	return o.shipping.UpdateShippingInfo(ctx, info, items)
}

// UpdatePaymentMethod delegates to the payment coordinator.
func (o *Orchestrator) UpdatePaymentMethod(ctx context.Context, method domain.PaymentMethod) error {
	return o.payment.UpdatePaymentMethod(ctx, method)
}

// UpdateGuestInfo validates and stores the guest identity, resyncing the
// contact email.
func (o *Orchestrator) UpdateGuestInfo(ctx context.Context, info domain.GuestInfo) error {
	if err := validator.Validate(info); err != nil {
		msgs := []string{err.Error()}
		var valErr *validator.ValidationError
		if errors.As(err, &valErr) {
			msgs = msgs[:0]
			for _, fe := range valErr.List() {
				msgs = append(msgs, fe.Field+" "+fe.Message)
			}
		}
		o.session.SetValidationErrors(fieldGuest, msgs)
		return domain.NewValidationError(fieldGuest, strings.Join(msgs, ", "))
	}
	o.session.ClearFieldErrors(fieldGuest)

	o.session.SetGuestInfo(&info)
	o.session.Persist(ctx)
	return nil
}

// UpdateConsents stores the review step checkboxes.
func (o *Orchestrator) UpdateConsents(ctx context.Context, c domain.Consents) {
	o.session.SetConsents(c)
	if c.TermsAccepted && c.PrivacyAccepted {
		o.session.ClearFieldErrors(fieldReview)
	}
	o.session.Persist(ctx)
}

// CancelCheckout releases the cart lock, best effort, and resets the
// session. The reset happens even when unlocking fails.
func (o *Orchestrator) CancelCheckout(ctx context.Context) {
	sessionID := o.session.SessionID()
	defer o.session.Reset(ctx)

	if sessionID == "" {
		return
	}
	if err := o.cart.Unlock(ctx, sessionID); err != nil {
		o.log(ctx).Warn("failed to unlock cart",
			slog.String("error", err.Error()),
		)
	}
	o.publish(ctx, o.events.PublishCheckoutCancelled, "cancelled by shopper")
}

// ResetCheckout resets the session to its defaults.
func (o *Orchestrator) ResetCheckout(ctx context.Context) {
	o.session.Reset(ctx)
}

// ClearError clears one field's error, or all of them.
func (o *Orchestrator) ClearError(field string) {
	o.session.ClearError(field)
}

// RetryLastAction clears a retryable last error and returns the field
// whose operation should be retried.
func (o *Orchestrator) RetryLastAction() (string, bool) {
	return o.session.RetryLastAction()
}

// SavePaymentMethodData delegates to the payment coordinator.
func (o *Orchestrator) SavePaymentMethodData(ctx context.Context, method domain.PaymentMethod) (*domain.SavedPaymentMethod, error) {
	return o.payment.SavePaymentMethodData(ctx, method)
}

// LoadShippingMethods delegates to the shipping coordinator.
func (o *Orchestrator) LoadShippingMethods(ctx context.Context) []domain.ShippingMethod {
	return o.shipping.LoadShippingMethods(ctx)
}

func (o *Orchestrator) publish(ctx context.Context, fn func(context.Context, CheckoutEvent) error, reason string) {
	e := buildEvent(ctx, o.session, o.auth)
	e.Reason = reason
	if err := fn(ctx, e); err != nil {
		o.log(ctx).Warn("failed to publish checkout event",
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) log(ctx context.Context) *slog.Logger {
	if id := o.session.SessionID(); id != "" {
		ctx = logger.WithSessionID(ctx, id)
	}
	return logger.WithContext(ctx, o.logger)
}

// NoopEventPublisher drops every event.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishCheckoutInitiated(context.Context, CheckoutEvent) error { return nil }
func (NoopEventPublisher) PublishCheckoutCompleted(context.Context, CheckoutEvent) error { return nil }
func (NoopEventPublisher) PublishCheckoutCancelled(context.Context, CheckoutEvent) error { return nil }
func (NoopEventPublisher) PublishPaymentFailed(context.Context, CheckoutEvent) error     { return nil }

var _ EventPublisher = NoopEventPublisher{}
