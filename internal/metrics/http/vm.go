package metricshttp

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/chatcart/chatcart/internal/metrics"
)

var printer = message.NewPrinter(language.English)

// ReportResponse pairs the raw report with formatted display strings so the
// client can render cards without duplicating number formatting.
type ReportResponse struct {
	Report  metrics.Report `json:"report"`
	Display ReportDisplay  `json:"display"`
}

// ReportDisplay carries the grouped, human readable card values.
type ReportDisplay struct {
	TotalRevenue       string `json:"total_revenue"`
	AverageOrderValue  string `json:"average_order_value"`
	ConversionRate     string `json:"conversion_rate"`
	ReturningCustomers string `json:"returning_customers"`
	TotalOrders        string `json:"total_orders"`
	OpenOrders         string `json:"open_orders"`
}

func newReportResponse(report metrics.Report) ReportResponse {
	return ReportResponse{
		Report: report,
		Display: ReportDisplay{
			TotalRevenue:       formatAmount(int64(report.TotalRevenue.Value)),
			AverageOrderValue:  formatAmount(int64(report.AverageOrderValue.Value)),
			ConversionRate:     fmt.Sprintf("%.2f%%", report.ConversionRate.Value),
			ReturningCustomers: printer.Sprintf("%d", int64(report.ReturningCustomers.Value)),
			TotalOrders:        printer.Sprintf("%d", report.TotalOrders),
			OpenOrders:         printer.Sprintf("%d", report.OpenOrders),
		},
	}
}

// formatAmount renders integer minor units as a grouped major-unit string.
func formatAmount(minor int64) string {
	major := minor / 100
	cents := minor % 100
	if cents < 0 {
		cents = -cents
	}
	return printer.Sprintf("%d.%02d", major, cents)
}
