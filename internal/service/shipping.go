package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/logger"
)

// FallbackShippingMethod is offered when the rates service cannot be reached.
var FallbackShippingMethod = domain.ShippingMethod{
	ID:            "standard",
	Name:          "Standard Shipping",
	Description:   "Standard delivery",
	Price:         599,
	EstimatedDays: 4,
}

// ShippingCoordinator computes order totals and manages shipping choices.
type ShippingCoordinator struct {
	session   *SessionState
	cart      CartProvider
	rates     ShippingRates
	validator Validator
	logger    *slog.Logger

	taxRateBP       int64
	defaultCurrency string
}

// NewShippingCoordinator creates a shipping coordinator for session.
func NewShippingCoordinator(
	session *SessionState,
	cart CartProvider,
	rates ShippingRates,
	validator Validator,
	logger *slog.Logger,
	taxRateBP int64,
	defaultCurrency string,
) *ShippingCoordinator {
	if defaultCurrency == "" {
		defaultCurrency = domain.DefaultCurrency
	}
	return &ShippingCoordinator{
		session:         session,
		cart:            cart,
		rates:           rates,
		validator:       validator,
		logger:          logger,
		taxRateBP:       taxRateBP,
		defaultCurrency: defaultCurrency,
	}
}

// CalculateOrderData builds fresh totals from items, or from the cart when
// items is empty, applies the selected shipping method and stores the
// result.
func (c *ShippingCoordinator) CalculateOrderData(ctx context.Context, items []domain.LineItem) error {
	if len(items) == 0 {
		cartItems, err := c.cart.Items(ctx)
		if err != nil {
			return fmt.Errorf("load cart items: %w", err)
		}
		items = cartItems
	}

	currency := c.defaultCurrency
	if existing := c.session.OrderData(); existing != nil && existing.Currency != "" {
		currency = existing.Currency
	}

	od := domain.NewOrderData(items, currency, c.taxRateBP)
	if info := c.session.ShippingInfo(); info != nil && info.Method.ID != "" {
		od.ApplyShipping(info.Method.Price)
	}
	if email := c.session.ContactEmail(); email != "" {
		od.CustomerEmail = email
	}

	c.session.SetOrderData(od)
	return nil
}

// UpdateShippingCosts re-applies the selected method's price to the
// existing order data. It does nothing when either is missing.
func (c *ShippingCoordinator) UpdateShippingCosts() {
	info := c.session.ShippingInfo()
	if info == nil || info.Method.ID == "" {
		return
	}
	c.session.UpdateOrderData(func(od *domain.OrderData) {
		od.ApplyShipping(info.Method.Price)
	})
}

// LoadShippingMethods fetches the methods available for the current
// address and subtotal. Any failure falls back to FallbackShippingMethod so
// checkout is never blocked on the rates service.
func (c *ShippingCoordinator) LoadShippingMethods(ctx context.Context) []domain.ShippingMethod {
	q := RateQuery{}
	if info := c.session.ShippingInfo(); info != nil {
		q.Country = info.Address.Country
		q.PostalCode = info.Address.PostalCode
	}
	if od := c.session.OrderData(); od != nil {
		q.OrderTotal = od.Subtotal
	}

	methods, err := c.rates.FetchShippingMethods(ctx, q)
	if err != nil || len(methods) == 0 {
		attrs := []any{
			slog.String("session_id", c.session.SessionID()),
			slog.String("country", q.Country),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		logger.WithContext(ctx, c.logger).Warn("using fallback shipping method", attrs...)
		methods = []domain.ShippingMethod{FallbackShippingMethod}
	}

	c.session.SetAvailableShippingMethods(methods)
	return methods
}

// UpdateShippingInfo validates and stores info, then recomputes totals,
// reloads shipping methods and persists. An invalid info is recorded under
// the "shipping" validation key and returned as a validation error.
func (c *ShippingCoordinator) UpdateShippingInfo(ctx context.Context, info domain.ShippingInfo, items []domain.LineItem) error {
	c.session.SetLoading(true)
	defer c.session.SetLoading(false)

	result := c.validator.ValidateShippingInformation(&info)
	if !result.IsValid {
		c.session.SetValidationErrors(fieldShipping, result.Messages())
		return domain.NewValidationError(fieldShipping, strings.Join(result.Messages(), ", "))
	}
	c.session.ClearFieldErrors(fieldShipping)

	c.session.SetShippingInfo(&info)
	if err := c.CalculateOrderData(ctx, items); err != nil {
		wrapped := domain.NewSystemError("failed to update shipping information", err)
		c.session.HandleError(wrapped)
		return wrapped
	}
	c.UpdateShippingCosts()
	c.LoadShippingMethods(ctx)
	c.session.Persist(ctx)
	return nil
}
