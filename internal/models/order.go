package models

import "time"

// OrderStatus is the fulfillment state of an order.
type OrderStatus string

const (
	OrderStatusNew            OrderStatus = "NEW"
	OrderStatusConfirmed      OrderStatus = "CONFIRMED"
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
)

// PaymentCashOnDelivery is the only settlement method orders carry.
const PaymentCashOnDelivery = "Cash on Delivery"

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNew, OrderStatusConfirmed, OrderStatusOutForDelivery, OrderStatusDelivered:
		return true
	}
	return false
}

// Order is the persisted order document. Field names are part of the wire
// contract shared with every client and must not be renamed.
type Order struct {
	ID              string      `gorm:"primaryKey" json:"id"`
	CustomerName    string      `json:"customer_name"`
	PhoneNumber     string      `gorm:"index" json:"phone_number"`
	DeliveryAddress string      `json:"delivery_address"`
	Items           []OrderItem `gorm:"serializer:json;type:jsonb" json:"items"`
	TotalAmount     float64     `gorm:"type:numeric(12,2)" json:"total_amount"`
	PaymentMethod   string      `json:"payment_method"`
	Status          OrderStatus `gorm:"column:order_status;index" json:"order_status"`
	CreatedAt       time.Time   `gorm:"index" json:"created_at"`
}

// OrderItem is a line of an order, copied from the basket at checkout.
type OrderItem struct {
	ProductID  string  `json:"product_id"`
	FishName   string  `json:"fish_name"`
	PricePerKg float64 `json:"price_per_kg"`
	Quantity   float64 `json:"quantity"`
	Cleaning   bool    `json:"cleaning"`
}

// Clone returns a deep copy so callers never share the items slice.
func (o Order) Clone() Order {
	out := o
	if o.Items != nil {
		out.Items = make([]OrderItem, len(o.Items))
		copy(out.Items, o.Items)
	}
	return out
}
