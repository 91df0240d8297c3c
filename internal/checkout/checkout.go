// Package checkout turns a client basket into a stored order.
package checkout

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/example/machikart/internal/basket"
	"github.com/example/machikart/internal/docstore"
	"github.com/example/machikart/internal/events"
	"github.com/example/machikart/internal/metrics"
	"github.com/example/machikart/internal/models"
)

// IdentityPolicy decides which key an order is stored under.
type IdentityPolicy string

const (
	// PolicyGenerated stores every checkout as a new order under a fresh id.
	PolicyGenerated IdentityPolicy = "generated"
	// PolicyPhone keys orders by phone number, so a new checkout replaces the
	// previous order of that customer.
	PolicyPhone IdentityPolicy = "phone"
)

// ParseIdentityPolicy maps a config value to a policy. Empty means generated.
func ParseIdentityPolicy(s string) (IdentityPolicy, error) {
	switch IdentityPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyGenerated:
		return PolicyGenerated, nil
	case PolicyPhone:
		return PolicyPhone, nil
	}
	return "", fmt.Errorf("unknown order id policy %q", s)
}

// DefaultPhoneDigits is the length of a valid phone number.
const DefaultPhoneDigits = 10

// Customer carries the delivery details entered at checkout.
type Customer struct {
	Name    string `json:"customer_name"`
	Phone   string `json:"phone_number"`
	Address string `json:"delivery_address"`
}

// ValidationError rejects a checkout before anything is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Materializer writes orders.
type Materializer struct {
	store   docstore.Store
	policy  IdentityPolicy
	phone   *regexp.Regexp
	digits  int
	pricing basket.Pricing
	events  events.Publisher
	log     *zap.Logger
}

type Option func(*Materializer)

func WithPricing(p basket.Pricing) Option {
	return func(m *Materializer) { m.pricing = p }
}

// WithPhoneDigits sets the exact number of digits a phone number must have.
func WithPhoneDigits(n int) Option {
	return func(m *Materializer) {
		if n > 0 {
			m.digits = n
		}
	}
}

// WithEvents publishes order.created after every successful checkout.
func WithEvents(p events.Publisher) Option {
	return func(m *Materializer) { m.events = p }
}

func NewMaterializer(store docstore.Store, policy IdentityPolicy, log *zap.Logger, opts ...Option) *Materializer {
	m := &Materializer{
		store:   store,
		policy:  policy,
		digits:  DefaultPhoneDigits,
		pricing: basket.DefaultPricing,
		events:  events.Nop{},
		log:     log,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.phone = regexp.MustCompile(fmt.Sprintf(`^[0-9]{%d}$`, m.digits))
	return m
}

// Policy returns the configured identity policy.
func (m *Materializer) Policy() IdentityPolicy {
	return m.policy
}

// Submit validates the checkout and stores the order. The returned order is
// what the store holds; the caller is expected to clear its basket afterwards.
func (m *Materializer) Submit(ctx context.Context, b basket.Basket, c Customer) (models.Order, error) {
	c = Customer{
		Name:    strings.TrimSpace(c.Name),
		Phone:   strings.TrimSpace(c.Phone),
		Address: strings.TrimSpace(c.Address),
	}
	if err := m.validate(b, c); err != nil {
		metrics.CheckoutRejected(err.Field)
		return models.Order{}, err
	}

	order := models.Order{
		CustomerName:    c.Name,
		PhoneNumber:     c.Phone,
		DeliveryAddress: c.Address,
		Items:           snapshot(b),
		TotalAmount:     b.Total(m.pricing).InexactFloat64(),
		PaymentMethod:   models.PaymentCashOnDelivery,
		Status:          models.OrderStatusNew,
	}

	var (
		stored models.Order
		err    error
	)
	if m.policy == PolicyPhone {
		stored, err = m.store.Put(ctx, c.Phone, order)
	} else {
		stored, err = m.store.Insert(ctx, order)
	}
	if err != nil {
		m.log.Error("failed to store order", zap.String("phone", c.Phone), zap.Error(err))
		return models.Order{}, fmt.Errorf("submit order: %w", err)
	}

	metrics.OrderCreated(string(m.policy))
	m.log.Info("order created",
		zap.String("order_id", stored.ID),
		zap.String("policy", string(m.policy)),
		zap.Int("items", len(stored.Items)),
		zap.Float64("total", stored.TotalAmount),
	)
	m.announce(ctx, stored)
	return stored, nil
}

func (m *Materializer) validate(b basket.Basket, c Customer) *ValidationError {
	switch {
	case b.IsEmpty():
		return &ValidationError{Field: "items", Message: "basket is empty"}
	case !m.phone.MatchString(c.Phone):
		return &ValidationError{Field: "phone_number", Message: fmt.Sprintf("must be exactly %d digits", m.digits)}
	case c.Name == "":
		return &ValidationError{Field: "customer_name", Message: "is required"}
	case c.Address == "":
		return &ValidationError{Field: "delivery_address", Message: "is required"}
	}
	return nil
}

// announce publishes order.created without holding up the response.
func (m *Materializer) announce(ctx context.Context, order models.Order) {
	ev := events.Event{Type: events.OrderCreated, OrderID: order.ID, Order: &order, At: order.CreatedAt}
	events.PublishDetached(ctx, m.events, ev, m.log)
}

func snapshot(b basket.Basket) []models.OrderItem {
	items := b.Items()
	out := make([]models.OrderItem, 0, len(items))
	for _, li := range items {
		out = append(out, models.OrderItem{
			ProductID:  li.ProductID,
			FishName:   li.FishName,
			PricePerKg: li.PricePerKg.InexactFloat64(),
			Quantity:   li.Quantity.InexactFloat64(),
			Cleaning:   li.Cleaning,
		})
	}
	return out
}
