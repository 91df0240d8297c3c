package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/example/machikart/internal/basket"
	"github.com/example/machikart/internal/docstore"
	"github.com/example/machikart/internal/events"
	"github.com/example/machikart/internal/models"
)

func fish(name string, price float64) models.Product {
	p := models.Product{FishName: name, PricePerKg: price, Available: true}
	p.ID = uuid.New()
	return p
}

var customer = Customer{Name: "Asha", Phone: "9876543210", Address: "Bunder Road"}

type eventSink chan events.Event

func (s eventSink) Publish(_ context.Context, ev events.Event) error {
	s <- ev
	return nil
}

func TestParseIdentityPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    IdentityPolicy
		wantErr bool
	}{
		{"", PolicyGenerated, false},
		{"generated", PolicyGenerated, false},
		{" Phone ", PolicyPhone, false},
		{"email", "", true},
	}
	for _, tt := range tests {
		got, err := ParseIdentityPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseIdentityPolicy(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestSubmit_ValidationNeverWrites(t *testing.T) {
	full := basket.New().Add(fish("Pomfret", 650), false)

	tests := []struct {
		name  string
		b     basket.Basket
		c     Customer
		field string
	}{
		{"empty basket", basket.New(), customer, "items"},
		{"short phone", full, Customer{Name: "Asha", Phone: "98765", Address: "x"}, "phone_number"},
		{"letters in phone", full, Customer{Name: "Asha", Phone: "98765abcde", Address: "x"}, "phone_number"},
		{"long phone", full, Customer{Name: "Asha", Phone: "98765432100", Address: "x"}, "phone_number"},
		{"blank name", full, Customer{Name: "  ", Phone: "9876543210", Address: "x"}, "customer_name"},
		{"blank address", full, Customer{Name: "Asha", Phone: "9876543210"}, "delivery_address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := docstore.NewMemory()
			m := NewMaterializer(store, PolicyGenerated, zaptest.NewLogger(t))

			_, err := m.Submit(context.Background(), tt.b, tt.c)
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
			stored, _ := store.Query(context.Background(), docstore.Filter{})
			if len(stored) != 0 {
				t.Fatalf("validation failure wrote %d orders", len(stored))
			}
		})
	}
}

func TestSubmit_PhoneDigitsConfigurable(t *testing.T) {
	m := NewMaterializer(docstore.NewMemory(), PolicyGenerated, zaptest.NewLogger(t), WithPhoneDigits(9))
	b := basket.New().Add(fish("Pomfret", 650), false)

	if _, err := m.Submit(context.Background(), b, Customer{Name: "A", Phone: "987654321", Address: "x"}); err != nil {
		t.Fatalf("9 digit phone should pass: %v", err)
	}
}

func TestSubmit_GeneratedPolicyKeepsHistory(t *testing.T) {
	store := docstore.NewMemory()
	m := NewMaterializer(store, PolicyGenerated, zaptest.NewLogger(t))
	b := basket.New().Add(fish("Pomfret", 650), false)

	first, err := m.Submit(context.Background(), b, customer)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := m.Submit(context.Background(), b, customer)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.ID == second.ID || first.ID == customer.Phone {
		t.Fatalf("expected distinct generated ids, got %q and %q", first.ID, second.ID)
	}

	history, _ := store.Query(context.Background(), docstore.Filter{Phone: customer.Phone})
	if len(history) != 2 {
		t.Fatalf("expected 2 orders for the phone, got %d", len(history))
	}
}

func TestSubmit_PhonePolicyOverwrites(t *testing.T) {
	store := docstore.NewMemory()
	m := NewMaterializer(store, PolicyPhone, zaptest.NewLogger(t))
	pomfret, kingfish := fish("Pomfret", 650), fish("Kingfish", 900)

	if _, err := m.Submit(context.Background(), basket.New().Add(pomfret, false), customer); err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := m.Submit(context.Background(), basket.New().Add(kingfish, true), customer)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if second.ID != customer.Phone {
		t.Fatalf("expected order keyed by phone, got %q", second.ID)
	}

	all, _ := store.Query(context.Background(), docstore.Filter{})
	if len(all) != 1 {
		t.Fatalf("expected exactly one order, got %d", len(all))
	}
	if got := all[0].Items; len(got) != 1 || got[0].FishName != "Kingfish" || !got[0].Cleaning {
		t.Fatalf("expected only the second basket's items, got %+v", got)
	}
	if all[0].TotalAmount != 930 {
		t.Fatalf("expected total 930, got %v", all[0].TotalAmount)
	}
}

func TestSubmit_SnapshotsItems(t *testing.T) {
	store := docstore.NewMemory()
	m := NewMaterializer(store, PolicyGenerated, zaptest.NewLogger(t))
	pomfret := fish("Pomfret", 650)

	b := basket.New().Add(pomfret, true).AdjustQuantity(pomfret.Key(), true, decimal.NewFromFloat(0.5))
	order, err := m.Submit(context.Background(), b, customer)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if order.Status != models.OrderStatusNew || order.PaymentMethod != models.PaymentCashOnDelivery {
		t.Fatalf("unexpected defaults: %+v", order)
	}
	if order.TotalAmount != 1020 {
		t.Fatalf("expected total 1020, got %v", order.TotalAmount)
	}

	// the catalog price changes and the client keeps editing its basket
	pomfret.PricePerKg = 999
	_ = b.Add(pomfret, true)

	stored, _ := store.Query(context.Background(), docstore.Filter{ID: order.ID})
	item := stored[0].Items[0]
	if item.PricePerKg != 650 || item.Quantity != 1.5 || stored[0].TotalAmount != 1020 {
		t.Fatalf("stored order changed after checkout: %+v", stored[0])
	}
}

func TestSubmit_PublishesCreatedEvent(t *testing.T) {
	sink := make(eventSink, 1)
	m := NewMaterializer(docstore.NewMemory(), PolicyGenerated, zaptest.NewLogger(t), WithEvents(sink))

	order, err := m.Submit(context.Background(), basket.New().Add(fish("Pomfret", 650), false), customer)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case ev := <-sink:
		if ev.Type != events.OrderCreated || ev.OrderID != order.ID || ev.Order == nil {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("order.created was not published")
	}
}

func TestSubmit_StoreFailure(t *testing.T) {
	m := NewMaterializer(docstore.NewMemory(), PolicyGenerated, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Submit(ctx, basket.New().Add(fish("Pomfret", 650), false), customer)
	if !errors.Is(err, docstore.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
