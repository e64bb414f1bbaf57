package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/chatcart/chatcart/internal/metrics"
)

// WriteReportCSV serialises the dashboard report: KPI summary first, then the
// time series, ranked products, and customer rows as labelled sections.
func WriteReportCSV(w io.Writer, report metrics.Report) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Metric", "Value", "Delta %", "Direction"}); err != nil {
		return err
	}
	records := [][]string{
		{"Range Start", report.RangeStart.UTC().Format(time.RFC3339), "", ""},
		{"Range End", report.RangeEnd.UTC().Format(time.RFC3339), "", ""},
		kpiRecord("Total Revenue", report.TotalRevenue),
		kpiRecord("Average Order Value", report.AverageOrderValue),
		kpiRecord("Conversion Rate", report.ConversionRate),
		kpiRecord("Returning Customers", report.ReturningCustomers),
		{"Total Orders", strconv.FormatInt(report.TotalOrders, 10), "", ""},
		{"Open Orders", strconv.FormatInt(report.OpenOrders, 10), "", ""},
		{"Successful Payments", strconv.FormatInt(report.Payments.SuccessfulAmount, 10), "", ""},
		{"Pending Payments", strconv.FormatInt(report.Payments.PendingAmount, 10), "", ""},
		{"Failed Payments", strconv.FormatInt(report.Payments.FailedAmount, 10), "", ""},
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	if err := writer.Write([]string{"Bucket", "Sales", "Orders", ""}); err != nil {
		return err
	}
	for _, bucket := range report.Series {
		if err := writer.Write([]string{
			bucket.Label,
			strconv.FormatInt(bucket.Sales, 10),
			strconv.FormatInt(bucket.Orders, 10),
			"",
		}); err != nil {
			return err
		}
	}

	if err := writer.Write([]string{"Rank", "Product", "Units Sold", "Revenue"}); err != nil {
		return err
	}
	for _, product := range report.TopProducts {
		if err := writer.Write([]string{
			strconv.Itoa(product.Rank),
			product.Name,
			strconv.FormatInt(product.UnitsSold, 10),
			strconv.FormatInt(product.Revenue, 10),
		}); err != nil {
			return err
		}
	}

	if err := writer.Write([]string{"Customer", "Total Spent", "Orders", "Last Purchase"}); err != nil {
		return err
	}
	for _, customer := range report.Customers {
		if err := writer.Write([]string{
			customer.Name,
			strconv.FormatInt(customer.TotalSpent, 10),
			strconv.FormatInt(customer.OrderCount, 10),
			customer.LastPurchase.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func kpiRecord(label string, kpi metrics.KPI) []string {
	delta := fmt.Sprintf("%.2f", kpi.Trend.DeltaPercent)
	if kpi.Trend.NewGrowth {
		delta = "new"
	}
	return []string{
		label,
		fmt.Sprintf("%.2f", kpi.Value),
		delta,
		string(kpi.Trend.Direction),
	}
}
