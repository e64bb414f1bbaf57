package commerce

import (
	"strings"
	"time"
)

// ============================================================================
// RAW INPUT SHAPES
// ============================================================================

// RawLineItem mirrors LineItem before validation.
type RawLineItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gt=0"`
	UnitPrice int64  `json:"unit_price"`
}

// RawOrder is an order as supplied by the data-fetching layer: timestamps are
// strings in one of several layouts, statuses are free-form literals.
type RawOrder struct {
	ID         string        `json:"id"`
	CustomerID string        `json:"customer_id" validate:"required"`
	OrderedAt  string        `json:"ordered_at" validate:"required"`
	Status     string        `json:"status" validate:"required"`
	Total      int64         `json:"total"`
	Items      []RawLineItem `json:"items,omitempty" validate:"omitempty,dive"`
}

// RawPayment is a payment before normalization.
type RawPayment struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id" validate:"required"`
	Amount  int64  `json:"amount"`
	Status  string `json:"status" validate:"required"`
	PaidAt  string `json:"paid_at" validate:"required"`
}

// RawProduct is a catalog entry before normalization.
type RawProduct struct {
	ID        string `json:"id"`
	Name      string `json:"name" validate:"required"`
	UnitPrice int64  `json:"unit_price"`
}

// RawCustomer is a buyer before normalization.
type RawCustomer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RawBatch carries any subset of raw record kinds through normalization.
type RawBatch struct {
	Orders    []RawOrder    `json:"orders,omitempty" validate:"omitempty,dive"`
	Payments  []RawPayment  `json:"payments,omitempty" validate:"omitempty,dive"`
	Products  []RawProduct  `json:"products,omitempty" validate:"omitempty,dive"`
	Customers []RawCustomer `json:"customers,omitempty" validate:"omitempty,dive"`
}

// ============================================================================
// VALIDATION REPORT
// ============================================================================

// RejectionKind classifies why a single record was dropped.
type RejectionKind string

const (
	RejectMalformedDate  RejectionKind = "MALFORMED_DATE"
	RejectNegativeAmount RejectionKind = "NEGATIVE_AMOUNT"
	RejectUnknownStatus  RejectionKind = "UNKNOWN_STATUS"
)

// WarnTotalMismatch flags an order whose stored total differs from the line
// sum. Discounts make this legal, so it never rejects the record.
const WarnTotalMismatch = "TOTAL_MISMATCH"

// Rejection describes a per-record normalization failure.
type Rejection struct {
	Entity   string        `json:"entity"`
	RecordID string        `json:"record_id"`
	Field    string        `json:"field"`
	Kind     RejectionKind `json:"kind"`
}

// Warning describes a non-fatal finding on an accepted record.
type Warning struct {
	Entity   string `json:"entity"`
	RecordID string `json:"record_id"`
	Kind     string `json:"kind"`
}

// ValidationReport collects per-record outcomes so callers can surface
// partial failures without aborting the batch.
type ValidationReport struct {
	Rejections []Rejection `json:"rejections,omitempty"`
	Warnings   []Warning   `json:"warnings,omitempty"`
}

// Clean reports whether every record normalized without findings.
func (r ValidationReport) Clean() bool {
	return len(r.Rejections) == 0 && len(r.Warnings) == 0
}

func (r *ValidationReport) reject(entity, id, field string, kind RejectionKind) {
	r.Rejections = append(r.Rejections, Rejection{Entity: entity, RecordID: id, Field: field, Kind: kind})
}

func (r *ValidationReport) warn(entity, id, kind string) {
	r.Warnings = append(r.Warnings, Warning{Entity: entity, RecordID: id, Kind: kind})
}

// ============================================================================
// NORMALIZATION
// ============================================================================

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp coerces the supported date layouts into a UTC instant.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// Normalize validates and coerces a raw batch into canonical records. It is
// pure: failures drop the individual record into the report, the rest of the
// batch survives.
func Normalize(raw RawBatch) (NormalizedBatch, ValidationReport) {
	var batch NormalizedBatch
	var report ValidationReport

	for _, order := range raw.Orders {
		rec, ok := normalizeOrder(order, &report)
		if ok {
			batch.Orders = append(batch.Orders, rec)
		}
	}
	for _, payment := range raw.Payments {
		rec, ok := normalizePayment(payment, &report)
		if ok {
			batch.Payments = append(batch.Payments, rec)
		}
	}
	for _, product := range raw.Products {
		if product.UnitPrice < 0 {
			report.reject("product", product.ID, "unit_price", RejectNegativeAmount)
			continue
		}
		batch.Products = append(batch.Products, ProductRecord{ID: product.ID, Name: product.Name, UnitPrice: product.UnitPrice})
	}
	for _, customer := range raw.Customers {
		batch.Customers = append(batch.Customers, CustomerRecord{ID: customer.ID, Name: customer.Name})
	}
	return batch, report
}

func normalizeOrder(raw RawOrder, report *ValidationReport) (OrderRecord, bool) {
	orderedAt, err := ParseTimestamp(raw.OrderedAt)
	if err != nil {
		report.reject("order", raw.ID, "ordered_at", RejectMalformedDate)
		return OrderRecord{}, false
	}
	status, err := ParseOrderStatus(raw.Status)
	if err != nil {
		report.reject("order", raw.ID, "status", RejectUnknownStatus)
		return OrderRecord{}, false
	}
	if raw.Total < 0 {
		report.reject("order", raw.ID, "total", RejectNegativeAmount)
		return OrderRecord{}, false
	}
	items := make([]LineItem, 0, len(raw.Items))
	for _, item := range raw.Items {
		if item.UnitPrice < 0 {
			report.reject("order", raw.ID, "items.unit_price", RejectNegativeAmount)
			return OrderRecord{}, false
		}
		items = append(items, LineItem{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	rec := OrderRecord{
		ID:         raw.ID,
		CustomerID: raw.CustomerID,
		OrderedAt:  orderedAt,
		Status:     status,
		Total:      raw.Total,
		Items:      items,
	}
	// The supplied total wins; a mismatch against the line sum is surfaced
	// but trusted (discounts and manual overrides are legal).
	if len(rec.Items) > 0 && rec.LineSum() != rec.Total {
		report.warn("order", raw.ID, WarnTotalMismatch)
	}
	return rec, true
}

func normalizePayment(raw RawPayment, report *ValidationReport) (PaymentRecord, bool) {
	paidAt, err := ParseTimestamp(raw.PaidAt)
	if err != nil {
		report.reject("payment", raw.ID, "paid_at", RejectMalformedDate)
		return PaymentRecord{}, false
	}
	status, err := ParsePaymentStatus(raw.Status)
	if err != nil {
		report.reject("payment", raw.ID, "status", RejectUnknownStatus)
		return PaymentRecord{}, false
	}
	if raw.Amount < 0 {
		report.reject("payment", raw.ID, "amount", RejectNegativeAmount)
		return PaymentRecord{}, false
	}
	return PaymentRecord{ID: raw.ID, OrderID: raw.OrderID, Amount: raw.Amount, Status: status, PaidAt: paidAt}, true
}
