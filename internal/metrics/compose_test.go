package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcart/chatcart/internal/commerce"
)

// Full week dashboard: two orders on Monday and Tuesday, the rest quiet.
func TestComposeWeekDashboard(t *testing.T) {
	batch := weekBatch()
	opts := weekOpts()

	current, err := Aggregate(batch, opts)
	require.NoError(t, err)

	priorStart, priorEnd := PriorWindow(opts.Granularity, opts.RangeStart, opts.RangeEnd)
	priorOpts := opts
	priorOpts.RangeStart = priorStart
	priorOpts.RangeEnd = priorEnd
	prior, err := Aggregate(batch, priorOpts)
	require.NoError(t, err)

	report := Compose(current, prior, opts, 0,
		ExternalStats{StoreVisits: 200, ReturningCustomers: 12},
		ExternalStats{StoreVisits: 100, ReturningCustomers: 10},
		OpenOrderCount(batch, opts.RangeStart, opts.RangeEnd))

	require.Len(t, report.Series, 7)
	labels := make([]string, 0, 7)
	for _, bucket := range report.Series {
		labels = append(labels, bucket.Label)
	}
	assert.Equal(t, []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}, labels)

	assert.Equal(t, int64(3200), report.Series[0].Sales)
	assert.Equal(t, int64(4100), report.Series[1].Sales)
	for _, bucket := range report.Series[2:] {
		assert.Zero(t, bucket.Sales)
	}

	assert.Equal(t, float64(7300), report.TotalRevenue.Value)
	assert.Equal(t, float64(3650), report.AverageOrderValue.Value)
	assert.Equal(t, int64(2), report.TotalOrders)

	// Prior window is empty, so revenue shows the new-growth sentinel.
	assert.True(t, report.TotalRevenue.Trend.NewGrowth)
	assert.Equal(t, DirectionUp, report.TotalRevenue.Trend.Direction)

	// 2 orders / 200 visits.
	assert.Equal(t, float64(1), report.ConversionRate.Value)
	assert.Equal(t, float64(12), report.ReturningCustomers.Value)
	assert.Equal(t, Trend{DeltaPercent: 20, Direction: DirectionUp}, report.ReturningCustomers.Trend)
}

func TestComposeAOVZeroOrders(t *testing.T) {
	opts := weekOpts()
	empty, err := Aggregate(commerce.NormalizedBatch{}, opts)
	require.NoError(t, err)

	report := Compose(empty, empty, opts, 0, ExternalStats{}, ExternalStats{}, 0)
	assert.Zero(t, report.AverageOrderValue.Value, "zero orders must not divide")
	assert.Equal(t, DirectionFlat, report.AverageOrderValue.Trend.Direction)
	assert.Zero(t, report.ConversionRate.Value, "zero visits must not divide")
}

func TestComposeRankingDeterministic(t *testing.T) {
	current := Aggregation{
		Products: map[string]ProductAggregate{
			"p3": {ProductID: "p3", Name: "C", UnitsSold: 1, Revenue: 500},
			"p1": {ProductID: "p1", Name: "A", UnitsSold: 1, Revenue: 900},
			"p2": {ProductID: "p2", Name: "B", UnitsSold: 1, Revenue: 900},
			"p4": {ProductID: "p4", Name: "D", UnitsSold: 1, Revenue: 100},
		},
		Customers: map[string]CustomerAggregate{},
	}
	prior := Aggregation{Products: map[string]ProductAggregate{
		"p1": {ProductID: "p1", Revenue: 450},
	}}

	report := Compose(current, prior, weekOpts(), 3, ExternalStats{}, ExternalStats{}, 0)
	require.Len(t, report.TopProducts, 3)

	// Revenue descending, ties broken by product ID ascending.
	assert.Equal(t, "p1", report.TopProducts[0].ProductID)
	assert.Equal(t, "p2", report.TopProducts[1].ProductID)
	assert.Equal(t, "p3", report.TopProducts[2].ProductID)
	for i, product := range report.TopProducts {
		assert.Equal(t, i+1, product.Rank)
	}

	assert.Equal(t, float64(100), report.TopProducts[0].Trend.DeltaPercent)
	assert.True(t, report.TopProducts[1].Trend.NewGrowth, "no prior revenue for p2")
}

func TestComposeCustomerRowsSorted(t *testing.T) {
	current := Aggregation{
		Products: map[string]ProductAggregate{},
		Customers: map[string]CustomerAggregate{
			"c2": {CustomerID: "c2", Name: "Grace", TotalSpent: 900, OrderCount: 1},
			"c1": {CustomerID: "c1", Name: "Ada", TotalSpent: 900, OrderCount: 2},
			"c3": {CustomerID: "c3", Name: "Lin", TotalSpent: 4000, OrderCount: 1},
		},
	}

	report := Compose(current, Aggregation{}, weekOpts(), 0, ExternalStats{}, ExternalStats{}, 0)
	require.Len(t, report.Customers, 3)
	assert.Equal(t, "c3", report.Customers[0].CustomerID)
	assert.Equal(t, "c1", report.Customers[1].CustomerID, "ties broken by customer ID")
	assert.Equal(t, "c2", report.Customers[2].CustomerID)
}

func TestOpenOrderCount(t *testing.T) {
	batch := commerce.NormalizedBatch{Orders: []commerce.OrderRecord{
		{ID: "o1", OrderedAt: day(9, 1), Status: commerce.OrderStatusPending},
		{ID: "o2", OrderedAt: day(9, 2), Status: commerce.OrderStatusProcessing},
		{ID: "o3", OrderedAt: day(9, 3), Status: commerce.OrderStatusCompleted},
		{ID: "o4", OrderedAt: day(20, 0), Status: commerce.OrderStatusPending},
	}}

	open := OpenOrderCount(batch, day(9, 0), day(16, 0))
	assert.Equal(t, int64(2), open, "pending plus processing inside the window")
}

func TestComposeDefaultsTopN(t *testing.T) {
	products := map[string]ProductAggregate{}
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		products[id] = ProductAggregate{ProductID: id, Revenue: int64(len(id))}
	}
	current := Aggregation{Products: products, Customers: map[string]CustomerAggregate{}}

	report := Compose(current, Aggregation{}, weekOpts(), 0, ExternalStats{}, ExternalStats{}, 0)
	assert.Len(t, report.TopProducts, DefaultTopN)
}

func TestComposeCarriesWindowMetadata(t *testing.T) {
	opts := weekOpts()
	empty, err := Aggregate(commerce.NormalizedBatch{}, opts)
	require.NoError(t, err)

	report := Compose(empty, empty, opts, 0, ExternalStats{}, ExternalStats{}, 0)
	assert.Equal(t, GranularityDaily, report.Granularity)
	assert.True(t, report.RangeStart.Equal(opts.RangeStart))
	assert.True(t, report.RangeEnd.Equal(opts.RangeEnd))
	assert.IsType(t, time.Time{}, report.RangeStart)
}
