package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/repository"
	apperrors "github.com/caraseli02/MoldovaDirect-sub004/pkg/errors"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/logger"
)

// PersistPayload overrides aggregate fields when building a snapshot.
// Nil fields fall back to the current aggregate value.
type PersistPayload struct {
	ShippingInfo  *domain.ShippingInfo
	PaymentMethod *domain.PaymentMethod
	OrderData     *domain.OrderData
}

// Restored is what a successful restore hands back for the coordinators
// to re-apply.
type Restored struct {
	ShippingInfo  *domain.ShippingInfo
	PaymentMethod *domain.PaymentMethod
}

// SessionState is the single owner of a checkout aggregate and its durable
// snapshot. Other components change the aggregate only through its setters.
//
// The mutex only keeps individual reads and writes consistent; it does not
// serialize checkout operations against each other.
type SessionState struct {
	mu        sync.RWMutex
	s         *domain.CheckoutSession
	authEmail string

	slotID string
	store  repository.SnapshotStore
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionState creates a session at its defaults, persisted under slotID.
func NewSessionState(slotID string, store repository.SnapshotStore, logger *slog.Logger, ttl time.Duration) *SessionState {
	if ttl <= 0 {
		ttl = domain.SessionTTL
	}
	return &SessionState{
		s:      domain.NewCheckoutSession(),
		slotID: slotID,
		store:  store,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

// SlotID returns the durable slot this session is written to.
func (st *SessionState) SlotID() string {
	return st.slotID
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

// Persist writes a sanitized snapshot of the current aggregate.
func (st *SessionState) Persist(ctx context.Context) {
	st.PersistWith(ctx, PersistPayload{})
}

// PersistWith writes a sanitized snapshot, taking shipping info, payment
// method and order data from p where set. Failures are logged, never
// returned.
func (st *SessionState) PersistWith(ctx context.Context, p PersistPayload) {
	now := st.now().UTC()
	snap := st.buildSnapshot(p, now)

	if err := st.store.Save(ctx, st.slotID, snap, snap.TTL(now, st.ttl)); err != nil {
		snapshotPersistFailures.Inc()
		st.log(ctx).Warn("failed to persist checkout session",
			slog.String("session_id", snap.SessionID),
			slog.String("error", err.Error()),
		)
	}
}

func (st *SessionState) buildSnapshot(p PersistPayload, now time.Time) *domain.Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.s
	snap := &domain.Snapshot{
		Version:          domain.SnapshotVersion,
		SessionID:        s.SessionID,
		CurrentStep:      s.CurrentStep,
		ContactEmail:     s.ContactEmail,
		Consents:         s.Consents,
		SavedAddresses:   append([]domain.Address(nil), s.SavedAddresses...),
		DataPrefetched:   s.DataPrefetched,
		SessionExpiresAt: s.SessionExpiresAt,
		LastSyncAt:       &now,
	}
	if s.GuestInfo != nil {
		g := *s.GuestInfo
		snap.GuestInfo = &g
	}
	if s.Preferences != nil {
		pref := *s.Preferences
		snap.Preferences = &pref
	}

	shipping := p.ShippingInfo
	if shipping == nil {
		shipping = s.ShippingInfo
	}
	if shipping != nil {
		si := *shipping
		snap.ShippingInfo = &si
	}

	method := p.PaymentMethod
	if method == nil {
		method = s.PaymentMethod
	}
	if method != nil {
		sanitized := method.Sanitized()
		snap.PaymentMethod = &sanitized
	}

	order := p.OrderData
	if order == nil {
		order = s.OrderData
	}
	snap.OrderData = order.Clone()

	s.LastSyncAt = &now
	return snap
}

// Restore hydrates the aggregate from the durable slot. It returns nil when
// the slot is empty, unreadable or expired; expired and incompatible
// snapshots are also deleted.
func (st *SessionState) Restore(ctx context.Context) *Restored {
	snap, err := st.store.Load(ctx, st.slotID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			st.log(ctx).Warn("failed to load checkout snapshot", slog.String("error", err.Error()))
		}
		return nil
	}

	if snap.Version != domain.SnapshotVersion {
		st.log(ctx).Info("discarding checkout snapshot with unknown version",
			slog.Int("version", snap.Version),
		)
		st.clearStorage(ctx)
		return nil
	}
	if snap.IsExpired(st.now()) {
		st.log(ctx).Info("checkout snapshot expired",
			slog.String("session_id", snap.SessionID),
		)
		st.clearStorage(ctx)
		return nil
	}

	var method *domain.PaymentMethod
	if snap.PaymentMethod != nil {
		sanitized := snap.PaymentMethod.Sanitized()
		method = &sanitized
	}

	st.mu.Lock()
	s := st.s
	s.SessionID = snap.SessionID
	s.CurrentStep = snap.CurrentStep
	if !s.CurrentStep.IsValid() {
		s.CurrentStep = domain.StepShipping
	}
	s.GuestInfo = snap.GuestInfo
	s.ContactEmail = snap.ContactEmail
	s.ShippingInfo = snap.ShippingInfo
	s.PaymentMethod = method
	s.OrderData = snap.OrderData
	s.Consents = snap.Consents
	if snap.SavedAddresses != nil {
		s.SavedAddresses = snap.SavedAddresses
	}
	s.Preferences = snap.Preferences
	s.DataPrefetched = snap.DataPrefetched
	s.SessionExpiresAt = snap.SessionExpiresAt
	s.LastSyncAt = snap.LastSyncAt
	st.mu.Unlock()

	return &Restored{
		ShippingInfo:  snap.ShippingInfo,
		PaymentMethod: method.Clone(),
	}
}

// Reset puts every field back to its default and clears the durable slot.
func (st *SessionState) Reset(ctx context.Context) {
	st.mu.Lock()
	st.s = domain.NewCheckoutSession()
	st.mu.Unlock()

	st.clearStorage(ctx)
}

func (st *SessionState) clearStorage(ctx context.Context) {
	if err := st.store.Delete(ctx, st.slotID); err != nil {
		st.log(ctx).Warn("failed to clear checkout snapshot", slog.String("error", err.Error()))
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// HandleError records err as the last error and under its field.
// Errors that are not CheckoutErrors are recorded as system errors.
func (st *SessionState) HandleError(err error) {
	if err == nil {
		return
	}
	ce, ok := domain.AsCheckoutError(err)
	if !ok {
		ce = domain.NewSystemError(err.Error(), err)
	}
	recorded := *ce

	field := recorded.Field
	if field == "" {
		field = domain.GeneralErrorField
	}

	st.mu.Lock()
	st.s.LastError = &recorded
	st.s.Errors[field] = recorded.Message
	st.mu.Unlock()
}

// ClearError clears field's error, or every error when field is empty.
// The last error is always cleared.
func (st *SessionState) ClearError(field string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if field == "" {
		st.s.Errors = map[string]string{}
	} else {
		delete(st.s.Errors, field)
	}
	st.s.LastError = nil
}

// RetryLastAction clears the error of a retryable last error and returns
// its field. Re-running the failed operation is up to the caller.
func (st *SessionState) RetryLastAction() (string, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	le := st.s.LastError
	if le == nil || !le.Retryable {
		return "", false
	}
	field := le.Field
	if field == "" {
		field = domain.GeneralErrorField
	}
	delete(st.s.Errors, field)
	return field, true
}

// SetValidationErrors replaces the messages recorded for field.
func (st *SessionState) SetValidationErrors(field string, messages []string) {
	st.mu.Lock()
	st.s.ValidationErrors[field] = append([]string(nil), messages...)
	st.mu.Unlock()
}

// ClearValidationErrors drops every validation message.
func (st *SessionState) ClearValidationErrors() {
	st.mu.Lock()
	st.s.ValidationErrors = map[string][]string{}
	st.mu.Unlock()
}

// ClearFieldErrors drops the validation messages and error for field only.
func (st *SessionState) ClearFieldErrors(field string) {
	st.mu.Lock()
	delete(st.s.ValidationErrors, field)
	delete(st.s.Errors, field)
	st.mu.Unlock()
}

// ValidationErrors returns the messages recorded for field.
func (st *SessionState) ValidationErrors(field string) []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return append([]string(nil), st.s.ValidationErrors[field]...)
}

// LastError returns a copy of the last recorded error.
func (st *SessionState) LastError() *domain.CheckoutError {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.s.LastError == nil {
		return nil
	}
	le := *st.s.LastError
	return &le
}

// ---------------------------------------------------------------------------
// Read access
// ---------------------------------------------------------------------------

// View returns a deep copy of the aggregate with the payment method
// reduced to its sanitized projection.
func (st *SessionState) View() *domain.CheckoutSession {
	st.mu.RLock()
	v := st.s.Clone()
	st.mu.RUnlock()

	if v.PaymentMethod != nil {
		sanitized := v.PaymentMethod.Sanitized()
		v.PaymentMethod = &sanitized
	}
	v.PaymentIntent = nil
	return v
}

// Step returns the current step.
func (st *SessionState) Step() domain.Step {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.CurrentStep
}

// SessionID returns the checkout attempt id, empty before initialization.
func (st *SessionState) SessionID() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.SessionID
}

// GuestInfo returns a copy of the guest identity.
func (st *SessionState) GuestInfo() *domain.GuestInfo {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.s.GuestInfo == nil {
		return nil
	}
	g := *st.s.GuestInfo
	return &g
}

// ContactEmail returns the resolved contact email.
func (st *SessionState) ContactEmail() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.ContactEmail
}

// ShippingInfo returns a copy of the shipping info.
func (st *SessionState) ShippingInfo() *domain.ShippingInfo {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.s.ShippingInfo == nil {
		return nil
	}
	si := *st.s.ShippingInfo
	return &si
}

// PaymentMethod returns a copy of the in-memory payment method, details
// included.
func (st *SessionState) PaymentMethod() *domain.PaymentMethod {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.PaymentMethod.Clone()
}

// OrderData returns a copy of the computed order data.
func (st *SessionState) OrderData() *domain.OrderData {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.OrderData.Clone()
}

// PaymentIntent returns the prepared card payment intent.
func (st *SessionState) PaymentIntent() *domain.PaymentIntent {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.s.PaymentIntent == nil {
		return nil
	}
	pi := *st.s.PaymentIntent
	return &pi
}

// Consents returns the review step checkboxes.
func (st *SessionState) Consents() domain.Consents {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Consents
}

// Preferences returns a copy of the prefetched preferences.
func (st *SessionState) Preferences() *domain.Preferences {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.s.Preferences == nil {
		return nil
	}
	p := *st.s.Preferences
	return &p
}

// DataPrefetched reports whether prefetching already ran.
func (st *SessionState) DataPrefetched() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.DataPrefetched
}

// IsLoading reports the data-fetch busy flag.
func (st *SessionState) IsLoading() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Loading
}

// IsProcessing reports the payment busy flag.
func (st *SessionState) IsProcessing() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Processing
}

// SavedPaymentMethods returns a copy of the saved payment methods.
func (st *SessionState) SavedPaymentMethods() []domain.SavedPaymentMethod {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return append([]domain.SavedPaymentMethod{}, st.s.SavedPaymentMethods...)
}

// AvailableShippingMethods returns a copy of the quoted shipping methods.
func (st *SessionState) AvailableShippingMethods() []domain.ShippingMethod {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return append([]domain.ShippingMethod{}, st.s.AvailableShippingMethods...)
}

// ---------------------------------------------------------------------------
// Setters
// ---------------------------------------------------------------------------

// SetStep moves the session to step.
func (st *SessionState) SetStep(step domain.Step) {
	st.mu.Lock()
	from := st.s.CurrentStep
	st.s.CurrentStep = step
	st.mu.Unlock()

	if from != step {
		stepTransitions.WithLabelValues(string(from), string(step)).Inc()
	}
}

// EnsureSessionID generates a session id if none is set and returns it.
func (st *SessionState) EnsureSessionID() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.SessionID == "" {
		st.s.SessionID = uuid.NewString()
	}
	return st.s.SessionID
}

// SetGuestInfo stores the guest identity and resyncs the contact email.
func (st *SessionState) SetGuestInfo(info *domain.GuestInfo) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if info == nil {
		st.s.GuestInfo = nil
	} else {
		g := *info
		st.s.GuestInfo = &g
	}
	st.syncContactEmailLocked()
}

// SetAuthEmail records the signed-in shopper's email and resyncs the
// contact email. Guest email still wins.
func (st *SessionState) SetAuthEmail(email string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.authEmail = email
	st.syncContactEmailLocked()
}

func (st *SessionState) syncContactEmailLocked() {
	email := st.authEmail
	if st.s.GuestInfo != nil && st.s.GuestInfo.Email != "" {
		email = st.s.GuestInfo.Email
	}
	if email == "" {
		return
	}
	st.s.ContactEmail = email
	if st.s.OrderData != nil && st.s.OrderData.OrderID == "" {
		st.s.OrderData.CustomerEmail = email
	}
}

// SetShippingInfo stores the shipping address and method.
func (st *SessionState) SetShippingInfo(info *domain.ShippingInfo) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if info == nil {
		st.s.ShippingInfo = nil
		return
	}
	si := *info
	st.s.ShippingInfo = &si
}

// SetPaymentMethod stores the payment method. A new method invalidates any
// prepared payment intent.
func (st *SessionState) SetPaymentMethod(method *domain.PaymentMethod) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.PaymentMethod = method.Clone()
	st.s.PaymentIntent = nil
}

// SetOrderData replaces the order data. A different total invalidates any
// prepared payment intent.
func (st *SessionState) SetOrderData(od *domain.OrderData) {
	st.mu.Lock()
	defer st.mu.Unlock()
	before := st.totalLocked()
	st.s.OrderData = od.Clone()
	st.dropStaleIntentLocked(before)
}

// UpdateOrderData applies fn to the order data in place. It reports false
// when there is no order data. A changed total invalidates any prepared
// payment intent.
func (st *SessionState) UpdateOrderData(fn func(od *domain.OrderData)) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.OrderData == nil {
		return false
	}
	before := st.totalLocked()
	fn(st.s.OrderData)
	st.dropStaleIntentLocked(before)
	return true
}

func (st *SessionState) totalLocked() int64 {
	if st.s.OrderData == nil {
		return -1
	}
	return st.s.OrderData.Total
}

// An intent is sized for one total; it cannot be confirmed for another.
func (st *SessionState) dropStaleIntentLocked(before int64) {
	if st.s.PaymentIntent != nil && st.totalLocked() != before {
		st.s.PaymentIntent = nil
	}
}

// SetPaymentIntent stores a prepared payment intent.
func (st *SessionState) SetPaymentIntent(pi *domain.PaymentIntent) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if pi == nil {
		st.s.PaymentIntent = nil
		return
	}
	v := *pi
	st.s.PaymentIntent = &v
}

// SetLoading sets the data-fetch busy flag.
func (st *SessionState) SetLoading(v bool) {
	st.mu.Lock()
	st.s.Loading = v
	st.mu.Unlock()
}

// SetProcessing sets the payment busy flag.
func (st *SessionState) SetProcessing(v bool) {
	st.mu.Lock()
	st.s.Processing = v
	st.mu.Unlock()
}

// ExtendExpiry sets the session to expire d from now.
func (st *SessionState) ExtendExpiry(d time.Duration) time.Time {
	at := st.now().UTC().Add(d)
	st.mu.Lock()
	st.s.SessionExpiresAt = &at
	st.mu.Unlock()
	return at
}

// MarkSynced stamps the last sync time.
func (st *SessionState) MarkSynced() {
	now := st.now().UTC()
	st.mu.Lock()
	st.s.LastSyncAt = &now
	st.mu.Unlock()
}

// SetSavedAddresses replaces the saved addresses.
func (st *SessionState) SetSavedAddresses(addrs []domain.Address) {
	st.mu.Lock()
	st.s.SavedAddresses = append([]domain.Address{}, addrs...)
	st.mu.Unlock()
}

// SetSavedPaymentMethods replaces the saved payment methods.
func (st *SessionState) SetSavedPaymentMethods(methods []domain.SavedPaymentMethod) {
	st.mu.Lock()
	st.s.SavedPaymentMethods = append([]domain.SavedPaymentMethod{}, methods...)
	st.mu.Unlock()
}

// UpsertSavedPaymentMethod replaces the saved method with the same id in
// place, or appends it.
func (st *SessionState) UpsertSavedPaymentMethod(m domain.SavedPaymentMethod) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i := range st.s.SavedPaymentMethods {
		if st.s.SavedPaymentMethods[i].ID == m.ID {
			st.s.SavedPaymentMethods[i] = m
			return
		}
	}
	st.s.SavedPaymentMethods = append(st.s.SavedPaymentMethods, m)
}

// SetAvailableShippingMethods replaces the quoted shipping methods.
func (st *SessionState) SetAvailableShippingMethods(methods []domain.ShippingMethod) {
	st.mu.Lock()
	st.s.AvailableShippingMethods = append([]domain.ShippingMethod{}, methods...)
	st.mu.Unlock()
}

// SetAvailableCountries replaces the shippable countries.
func (st *SessionState) SetAvailableCountries(countries []domain.Country) {
	st.mu.Lock()
	st.s.AvailableCountries = append([]domain.Country{}, countries...)
	st.mu.Unlock()
}

// SetConsents stores the review step checkboxes.
func (st *SessionState) SetConsents(c domain.Consents) {
	st.mu.Lock()
	st.s.Consents = c
	st.mu.Unlock()
}

// SetPreferences stores the shopper's checkout preferences.
func (st *SessionState) SetPreferences(p *domain.Preferences) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if p == nil {
		st.s.Preferences = nil
		return
	}
	v := *p
	st.s.Preferences = &v
}

// SetDataPrefetched marks prefetching as done.
func (st *SessionState) SetDataPrefetched(v bool) {
	st.mu.Lock()
	st.s.DataPrefetched = v
	st.mu.Unlock()
}

func (st *SessionState) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, st.logger).With(slog.String("slot_id", st.slotID))
}
