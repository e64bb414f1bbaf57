package metrics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/chatcart/chatcart/internal/commerce"
)

// Granularity selects the calendar step used for time bucketing.
type Granularity string

const (
	GranularityHourly  Granularity = "hourly"
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// ParseGranularity validates a granularity literal.
func ParseGranularity(raw string) (Granularity, error) {
	switch Granularity(raw) {
	case GranularityHourly, GranularityDaily, GranularityWeekly, GranularityMonthly:
		return Granularity(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadGranularity, raw)
}

// Hard-failure sentinels for structurally invalid aggregation requests.
var (
	ErrEmptyRange     = errors.New("metrics: range end must be after range start")
	ErrBadGranularity = errors.New("metrics: unknown granularity")
)

// TimeBucket is a half-open [Start, End) interval. Buckets for a window are
// contiguous, non-overlapping, and chronologically ordered.
type TimeBucket struct {
	Label  string    `json:"label"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Sales  int64     `json:"sales"`
	Orders int64     `json:"orders"`
}

// ProductAggregate is the per-product rollup for a window.
type ProductAggregate struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitsSold int64  `json:"units_sold"`
	Revenue   int64  `json:"revenue"`
}

// CustomerAggregate is the per-customer rollup for a window.
type CustomerAggregate struct {
	CustomerID   string    `json:"customer_id"`
	Name         string    `json:"name"`
	TotalSpent   int64     `json:"total_spent"`
	OrderCount   int64     `json:"order_count"`
	LastPurchase time.Time `json:"last_purchase"`
}

// PaymentTotals sums payments per status. DuplicateSettlements counts orders
// settled by more than one successful payment; the engine reports the caller
// invariant violation instead of enforcing it.
type PaymentTotals struct {
	SuccessfulAmount     int64 `json:"successful_amount"`
	SuccessfulCount      int64 `json:"successful_count"`
	PendingAmount        int64 `json:"pending_amount"`
	PendingCount         int64 `json:"pending_count"`
	FailedAmount         int64 `json:"failed_amount"`
	FailedCount          int64 `json:"failed_count"`
	DuplicateSettlements int64 `json:"duplicate_settlements"`
}

// AggregateOptions scopes a single aggregation call. All state is explicit;
// there is no shared configuration.
type AggregateOptions struct {
	Granularity            Granularity
	RangeStart             time.Time
	RangeEnd               time.Time
	IncludeCancelledCounts bool
}

// Aggregation is the full derived rollup for one window. Category maps are
// keyed by entity identifier; consumers sort explicitly.
type Aggregation struct {
	Buckets     []TimeBucket                 `json:"buckets"`
	Products    map[string]ProductAggregate  `json:"products"`
	Customers   map[string]CustomerAggregate `json:"customers"`
	Payments    PaymentTotals                `json:"payments"`
	TotalSales  int64                        `json:"total_sales"`
	TotalOrders int64                        `json:"total_orders"`
}

// Aggregate groups normalized records into calendar buckets and category
// rollups. Everything is recomputed from scratch; identical inputs yield
// identical output.
func Aggregate(batch commerce.NormalizedBatch, opts AggregateOptions) (Aggregation, error) {
	if _, err := ParseGranularity(string(opts.Granularity)); err != nil {
		return Aggregation{}, err
	}
	if !opts.RangeEnd.After(opts.RangeStart) {
		return Aggregation{}, ErrEmptyRange
	}

	buckets := buildBuckets(opts.Granularity, opts.RangeStart, opts.RangeEnd)
	agg := Aggregation{
		Buckets:   buckets,
		Products:  make(map[string]ProductAggregate),
		Customers: make(map[string]CustomerAggregate),
	}

	productNames := make(map[string]string, len(batch.Products))
	for _, product := range batch.Products {
		productNames[product.ID] = product.Name
	}
	customerNames := make(map[string]string, len(batch.Customers))
	for _, customer := range batch.Customers {
		customerNames[customer.ID] = customer.Name
	}

	for _, order := range batch.Orders {
		at := order.OrderedAt.UTC()
		if at.Before(opts.RangeStart) || !at.Before(opts.RangeEnd) {
			continue
		}
		idx := bucketIndex(agg.Buckets, at)
		if idx < 0 {
			continue
		}
		cancelled := order.Status == commerce.OrderStatusCancelled

		if !cancelled || opts.IncludeCancelledCounts {
			agg.Buckets[idx].Orders++
			agg.TotalOrders++
		}
		if cancelled {
			continue
		}
		agg.Buckets[idx].Sales += order.Total
		agg.TotalSales += order.Total

		for _, item := range order.Items {
			entry := agg.Products[item.ProductID]
			entry.ProductID = item.ProductID
			entry.Name = productNames[item.ProductID]
			entry.UnitsSold += item.Quantity
			entry.Revenue += item.Quantity * item.UnitPrice
			agg.Products[item.ProductID] = entry
		}

		cust := agg.Customers[order.CustomerID]
		cust.CustomerID = order.CustomerID
		cust.Name = customerNames[order.CustomerID]
		cust.TotalSpent += order.Total
		cust.OrderCount++
		if order.OrderedAt.After(cust.LastPurchase) {
			cust.LastPurchase = at
		}
		agg.Customers[order.CustomerID] = cust
	}

	settlements := make(map[string]int64)
	for _, payment := range batch.Payments {
		at := payment.PaidAt.UTC()
		if at.Before(opts.RangeStart) || !at.Before(opts.RangeEnd) {
			continue
		}
		switch payment.Status {
		case commerce.PaymentStatusSuccessful:
			agg.Payments.SuccessfulAmount += payment.Amount
			agg.Payments.SuccessfulCount++
			settlements[payment.OrderID]++
		case commerce.PaymentStatusPending:
			agg.Payments.PendingAmount += payment.Amount
			agg.Payments.PendingCount++
		case commerce.PaymentStatusFailed:
			agg.Payments.FailedAmount += payment.Amount
			agg.Payments.FailedCount++
		}
	}
	for _, count := range settlements {
		if count > 1 {
			agg.Payments.DuplicateSettlements++
		}
	}

	return agg, nil
}

// PriorWindow returns the immediately preceding window of identical bucket
// count and granularity, aligned to the same calendar boundaries so the two
// windows share a seam without gap or overlap.
func PriorWindow(g Granularity, rangeStart, rangeEnd time.Time) (time.Time, time.Time) {
	spans := countBuckets(g, rangeStart, rangeEnd)
	start := rangeStart
	for i := int64(0); i < spans; i++ {
		start = stepBack(g, start)
	}
	return start, rangeStart
}

func buildBuckets(g Granularity, rangeStart, rangeEnd time.Time) []TimeBucket {
	buckets := make([]TimeBucket, 0, countBuckets(g, rangeStart, rangeEnd))
	for start := truncate(g, rangeStart); start.Before(rangeEnd); start = step(g, start) {
		end := step(g, start)
		buckets = append(buckets, TimeBucket{
			Label: bucketLabel(g, start),
			Start: start,
			End:   end,
		})
	}
	return buckets
}

func countBuckets(g Granularity, rangeStart, rangeEnd time.Time) int64 {
	var n int64
	for start := truncate(g, rangeStart); start.Before(rangeEnd); start = step(g, start) {
		n++
	}
	return n
}

func bucketIndex(buckets []TimeBucket, at time.Time) int {
	idx := sort.Search(len(buckets), func(i int) bool {
		return at.Before(buckets[i].End)
	})
	if idx >= len(buckets) || at.Before(buckets[idx].Start) {
		return -1
	}
	return idx
}

// truncate snaps an instant to its calendar boundary: hour, UTC midnight,
// ISO week Monday, or first of month.
func truncate(g Granularity, t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case GranularityHourly:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case GranularityDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case GranularityWeekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GranularityMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// step advances one calendar interval, so a monthly bucket spans a true
// calendar month rather than a fixed 30 days.
func step(g Granularity, t time.Time) time.Time {
	switch g {
	case GranularityHourly:
		return t.Add(time.Hour)
	case GranularityDaily:
		return t.AddDate(0, 0, 1)
	case GranularityWeekly:
		return t.AddDate(0, 0, 7)
	case GranularityMonthly:
		return t.AddDate(0, 1, 0)
	}
	return t
}

func stepBack(g Granularity, t time.Time) time.Time {
	switch g {
	case GranularityHourly:
		return t.Add(-time.Hour)
	case GranularityDaily:
		return t.AddDate(0, 0, -1)
	case GranularityWeekly:
		return t.AddDate(0, 0, -7)
	case GranularityMonthly:
		return t.AddDate(0, -1, 0)
	}
	return t
}

func bucketLabel(g Granularity, start time.Time) string {
	switch g {
	case GranularityHourly:
		return start.Format("15:04")
	case GranularityDaily:
		return start.Format("Mon")
	case GranularityWeekly:
		return "Week of " + start.Format("Jan 02")
	case GranularityMonthly:
		return start.Format("2006-01")
	}
	return start.Format(time.RFC3339)
}
