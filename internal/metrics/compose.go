package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/chatcart/chatcart/internal/commerce"
)

// DefaultTopN bounds ranked lists when the caller does not ask for a size.
const DefaultTopN = 5

// ExternalStats carries denominators the engine cannot derive itself: store
// traffic and returning-visitor counts come from the tracking collaborator.
type ExternalStats struct {
	StoreVisits        int64 `json:"store_visits"`
	ReturningCustomers int64 `json:"returning_customers"`
}

// KPI is a single scalar card paired with its movement against the prior
// window.
type KPI struct {
	Value float64 `json:"value"`
	Trend Trend   `json:"trend"`
}

// RankedProduct is one row of the top-products list. Ranking is stable:
// revenue descending, ties broken by product ID ascending.
type RankedProduct struct {
	Rank      int    `json:"rank"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitsSold int64  `json:"units_sold"`
	Revenue   int64  `json:"revenue"`
	Trend     Trend  `json:"trend"`
}

// CustomerRow is one row of the customer lifetime-value summary.
type CustomerRow struct {
	CustomerID   string    `json:"customer_id"`
	Name         string    `json:"name"`
	TotalSpent   int64     `json:"total_spent"`
	OrderCount   int64     `json:"order_count"`
	LastPurchase time.Time `json:"last_purchase"`
}

// Report is the immutable snapshot consumed by presentation code. Amounts
// are integer currency minor units; rates and deltas are rounded to two
// decimals. Rendering code must not mutate it.
type Report struct {
	SnapshotID  string      `json:"snapshot_id"`
	Granularity Granularity `json:"granularity"`
	RangeStart  time.Time   `json:"range_start"`
	RangeEnd    time.Time   `json:"range_end"`

	Series      []TimeBucket    `json:"series"`
	TopProducts []RankedProduct `json:"top_products"`
	Customers   []CustomerRow   `json:"customers"`
	Payments    PaymentTotals   `json:"payments"`

	TotalRevenue       KPI   `json:"total_revenue"`
	AverageOrderValue  KPI   `json:"average_order_value"`
	ConversionRate     KPI   `json:"conversion_rate"`
	ReturningCustomers KPI   `json:"returning_customers"`
	TotalOrders        int64 `json:"total_orders"`
	OpenOrders         int64 `json:"open_orders"`

	Validation commerce.ValidationReport `json:"validation"`
}

// Compose assembles the report view model from a current and prior window
// aggregation. Both must have been produced with the same granularity and
// adjacent, equal-length ranges (see PriorWindow).
func Compose(current, prior Aggregation, opts AggregateOptions, topN int, ext, priorExt ExternalStats, open int64) Report {
	if topN <= 0 {
		topN = DefaultTopN
	}

	report := Report{
		Granularity: opts.Granularity,
		RangeStart:  opts.RangeStart,
		RangeEnd:    opts.RangeEnd,
		Series:      current.Buckets,
		Payments:    current.Payments,
		TotalOrders: current.TotalOrders,
		OpenOrders:  open,
	}

	report.TotalRevenue = KPI{
		Value: float64(current.TotalSales),
		Trend: CompareTrend(float64(current.TotalSales), float64(prior.TotalSales)),
	}
	report.AverageOrderValue = KPI{
		Value: averageOrderValue(current.TotalSales, current.TotalOrders),
		Trend: CompareTrend(
			averageOrderValue(current.TotalSales, current.TotalOrders),
			averageOrderValue(prior.TotalSales, prior.TotalOrders),
		),
	}
	report.ConversionRate = KPI{
		Value: conversionRate(current.TotalOrders, ext.StoreVisits),
		Trend: CompareTrend(
			conversionRate(current.TotalOrders, ext.StoreVisits),
			conversionRate(prior.TotalOrders, priorExt.StoreVisits),
		),
	}
	report.ReturningCustomers = KPI{
		Value: float64(ext.ReturningCustomers),
		Trend: CompareTrend(float64(ext.ReturningCustomers), float64(priorExt.ReturningCustomers)),
	}

	report.TopProducts = rankProducts(current.Products, prior.Products, topN)
	report.Customers = customerRows(current.Customers)
	return report
}

// averageOrderValue divides total revenue by order count, rounded to the
// nearest minor unit. Zero orders yields 0, never NaN.
func averageOrderValue(sales, orders int64) float64 {
	if orders == 0 {
		return 0
	}
	return math.Round(float64(sales) / float64(orders))
}

// conversionRate is orders per hundred visits. The visit denominator is
// caller-supplied; zero visits yields 0.
func conversionRate(orders, visits int64) float64 {
	if visits == 0 {
		return 0
	}
	return round2(float64(orders) / float64(visits) * 100)
}

func rankProducts(current, prior map[string]ProductAggregate, topN int) []RankedProduct {
	entries := make([]ProductAggregate, 0, len(current))
	for _, entry := range current {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Revenue != entries[j].Revenue {
			return entries[i].Revenue > entries[j].Revenue
		}
		return entries[i].ProductID < entries[j].ProductID
	})
	if len(entries) > topN {
		entries = entries[:topN]
	}
	ranked := make([]RankedProduct, 0, len(entries))
	for i, entry := range entries {
		ranked = append(ranked, RankedProduct{
			Rank:      i + 1,
			ProductID: entry.ProductID,
			Name:      entry.Name,
			UnitsSold: entry.UnitsSold,
			Revenue:   entry.Revenue,
			Trend:     CompareTrend(float64(entry.Revenue), float64(prior[entry.ProductID].Revenue)),
		})
	}
	return ranked
}

func customerRows(current map[string]CustomerAggregate) []CustomerRow {
	rows := make([]CustomerRow, 0, len(current))
	for _, entry := range current {
		rows = append(rows, CustomerRow{
			CustomerID:   entry.CustomerID,
			Name:         entry.Name,
			TotalSpent:   entry.TotalSpent,
			OrderCount:   entry.OrderCount,
			LastPurchase: entry.LastPurchase,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalSpent != rows[j].TotalSpent {
			return rows[i].TotalSpent > rows[j].TotalSpent
		}
		return rows[i].CustomerID < rows[j].CustomerID
	})
	return rows
}

// OpenOrderCount sums PENDING and PROCESSING orders inside the window. The
// two statuses stay distinct in the taxonomy; "open" is a composed view.
func OpenOrderCount(batch commerce.NormalizedBatch, rangeStart, rangeEnd time.Time) int64 {
	var open int64
	for _, order := range batch.Orders {
		at := order.OrderedAt.UTC()
		if at.Before(rangeStart) || !at.Before(rangeEnd) {
			continue
		}
		switch order.Status {
		case commerce.OrderStatusPending, commerce.OrderStatusProcessing:
			open++
		}
	}
	return open
}
