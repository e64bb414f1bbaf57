package metricshttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcart/chatcart/internal/commerce"
	"github.com/chatcart/chatcart/internal/metrics"
)

type stubService struct {
	report     metrics.Report
	reportErr  error
	lastReq    metrics.ReportRequest
	ingestRep  commerce.ValidationReport
	ingestErr  error
	lastRaw    commerce.RawBatch
	lastTenant int64
}

func (s *stubService) BuildReport(ctx context.Context, req metrics.ReportRequest) (metrics.Report, error) {
	s.lastReq = req
	return s.report, s.reportErr
}

func (s *stubService) Ingest(ctx context.Context, merchantID int64, raw commerce.RawBatch) (commerce.ValidationReport, error) {
	s.lastTenant = merchantID
	s.lastRaw = raw
	return s.ingestRep, s.ingestErr
}

func newTestRouter(service ReportService) (http.Handler, *Handler) {
	handler := NewHandler(nil, service)
	handler.WithNow(func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	})
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r, handler
}

func TestHandleReportReturnsEnvelope(t *testing.T) {
	svc := &stubService{report: metrics.Report{
		SnapshotID:   "snap-1",
		Granularity:  metrics.GranularityDaily,
		TotalRevenue: metrics.KPI{Value: 730000},
		TotalOrders:  2,
	}}
	router, _ := newTestRouter(svc)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dashboard/report?merchant_id=7&from=2025-06-09&to=2025-06-16&visits=200", nil)
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp ReportResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "snap-1", resp.Report.SnapshotID)
	assert.Equal(t, "7,300.00", resp.Display.TotalRevenue)
	assert.Equal(t, "2", resp.Display.TotalOrders)

	assert.Equal(t, int64(7), svc.lastReq.MerchantID)
	assert.Equal(t, int64(200), svc.lastReq.Current.StoreVisits)
	assert.True(t, svc.lastReq.RangeStart.Equal(time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)))
	assert.True(t, svc.lastReq.RangeEnd.Equal(time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)))
}

func TestHandleReportDefaultsWindow(t *testing.T) {
	svc := &stubService{}
	router, _ := newTestRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard/report?merchant_id=7", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	// Trailing seven days ending tomorrow at UTC midnight.
	assert.True(t, svc.lastReq.RangeEnd.Equal(time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)))
	assert.True(t, svc.lastReq.RangeStart.Equal(time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, metrics.GranularityDaily, svc.lastReq.Granularity)
}

func TestHandleReportRejectsBadFilters(t *testing.T) {
	router, _ := newTestRouter(&stubService{})

	cases := []string{
		"/dashboard/report",
		"/dashboard/report?merchant_id=0",
		"/dashboard/report?merchant_id=7&granularity=fortnightly",
		"/dashboard/report?merchant_id=7&from=garbage",
		"/dashboard/report?merchant_id=7&top_n=-3",
		"/dashboard/report?merchant_id=7&visits=-1",
	}
	for _, target := range cases {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestHandleReportMapsEngineErrors(t *testing.T) {
	svc := &stubService{reportErr: metrics.ErrEmptyRange}
	router, _ := newTestRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard/report?merchant_id=7", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleCSVStreamsAttachment(t *testing.T) {
	svc := &stubService{report: metrics.Report{
		Granularity: metrics.GranularityDaily,
		RangeStart:  time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
		Series: []metrics.TimeBucket{
			{Label: "Mon", Sales: 3200, Orders: 1},
		},
	}}
	router, _ := newTestRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard/report/export.csv?merchant_id=7", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "dashboard-daily-2025-06-09.csv")
	assert.Contains(t, rr.Body.String(), "Mon,3200,1")
}

func TestHandleIngestAcceptsBatch(t *testing.T) {
	svc := &stubService{}
	router, _ := newTestRouter(svc)

	payload := IngestPayload{
		MerchantID: 7,
		Records: commerce.RawBatch{Orders: []commerce.RawOrder{
			{ID: "o1", CustomerID: "c1", OrderedAt: "2025-06-09", Status: "PENDING", Total: 100},
		}},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/dashboard/records", bytes.NewReader(body)))

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, int64(7), svc.lastTenant)
	require.Len(t, svc.lastRaw.Orders, 1)
}

func TestHandleIngestReportsPartialFailure(t *testing.T) {
	svc := &stubService{ingestRep: commerce.ValidationReport{Rejections: []commerce.Rejection{
		{Entity: "order", RecordID: "bad", Field: "ordered_at", Kind: commerce.RejectMalformedDate},
	}}}
	router, _ := newTestRouter(svc)

	body := `{"merchant_id":7,"records":{"orders":[{"id":"bad","customer_id":"c","ordered_at":"junk","status":"PENDING"}]}}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/dashboard/records", strings.NewReader(body)))

	require.Equal(t, http.StatusMultiStatus, rr.Code)
	assert.Contains(t, rr.Body.String(), "MALFORMED_DATE")
}

func TestHandleIngestRejectsMalformedBody(t *testing.T) {
	router, _ := newTestRouter(&stubService{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/dashboard/records", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/dashboard/records", strings.NewReader(`{"merchant_id":0,"records":{}}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleIngestMapsDuplicate(t *testing.T) {
	svc := &stubService{ingestErr: metrics.ErrDuplicateRecord}
	router, _ := newTestRouter(svc)

	body := `{"merchant_id":7,"records":{"orders":[{"id":"o1","customer_id":"c","ordered_at":"2025-06-09","status":"PENDING"}]}}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/dashboard/records", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rr.Code)
}
