package commerce

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// ORDER
// ============================================================================

// OrderStatus is the closed set of canonical order states. PROCESSING is a
// distinct state, never an alias of PENDING; views that want "open" orders
// must sum PENDING and PROCESSING explicitly.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// ParseOrderStatus maps a raw status literal onto the canonical taxonomy.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	switch OrderStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case OrderStatusPending:
		return OrderStatusPending, nil
	case OrderStatusProcessing:
		return OrderStatusProcessing, nil
	case OrderStatusCompleted:
		return OrderStatusCompleted, nil
	case OrderStatusCancelled:
		return OrderStatusCancelled, nil
	}
	return "", fmt.Errorf("commerce: unknown order status %q", raw)
}

// LineItem is a single ordered product position. Amounts are integer
// currency minor units throughout.
type LineItem struct {
	ProductID string `json:"product_id" db:"product_id"`
	Quantity  int64  `json:"quantity" db:"quantity"`
	UnitPrice int64  `json:"unit_price" db:"unit_price"`
}

// OrderRecord is a normalized order.
type OrderRecord struct {
	ID         string      `json:"id" db:"id"`
	CustomerID string      `json:"customer_id" db:"customer_id"`
	OrderedAt  time.Time   `json:"ordered_at" db:"ordered_at"`
	Status     OrderStatus `json:"status" db:"status"`
	Total      int64       `json:"total" db:"total"`
	Items      []LineItem  `json:"items,omitempty" db:"-"`
}

// LineSum returns the quantity-weighted sum of line item prices.
func (o OrderRecord) LineSum() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += item.Quantity * item.UnitPrice
	}
	return sum
}

// ============================================================================
// PAYMENT
// ============================================================================

// PaymentStatus is the closed set of canonical payment states.
type PaymentStatus string

const (
	PaymentStatusSuccessful PaymentStatus = "SUCCESSFUL"
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

// ParsePaymentStatus maps a raw status literal onto the canonical taxonomy.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	switch PaymentStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case PaymentStatusSuccessful:
		return PaymentStatusSuccessful, nil
	case PaymentStatusPending:
		return PaymentStatusPending, nil
	case PaymentStatusFailed:
		return PaymentStatusFailed, nil
	}
	return "", fmt.Errorf("commerce: unknown payment status %q", raw)
}

// PaymentRecord is a normalized payment against an order. At most one
// SUCCESSFUL payment should settle a given order; that invariant belongs to
// the caller, the engine only reports violations.
type PaymentRecord struct {
	ID      string        `json:"id" db:"id"`
	OrderID string        `json:"order_id" db:"order_id"`
	Amount  int64         `json:"amount" db:"amount"`
	Status  PaymentStatus `json:"status" db:"status"`
	PaidAt  time.Time     `json:"paid_at" db:"paid_at"`
}

// ============================================================================
// PRODUCT & CUSTOMER
// ============================================================================

// ProductRecord is a catalog entry. Units-sold is derived per report window,
// never stored here.
type ProductRecord struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	UnitPrice int64  `json:"unit_price" db:"unit_price"`
}

// CustomerRecord identifies a buyer. Spend and order rollups are derived per
// report window.
type CustomerRecord struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// NormalizedBatch holds the records that survived normalization.
type NormalizedBatch struct {
	Orders    []OrderRecord    `json:"orders,omitempty"`
	Payments  []PaymentRecord  `json:"payments,omitempty"`
	Products  []ProductRecord  `json:"products,omitempty"`
	Customers []CustomerRecord `json:"customers,omitempty"`
}
