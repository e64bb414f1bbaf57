package metricshttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chatcart/chatcart/internal/commerce"
	"github.com/chatcart/chatcart/internal/metrics"
	"github.com/chatcart/chatcart/internal/metrics/export"
	"github.com/chatcart/chatcart/internal/platform/httpx"
)

const requestTimeout = 5 * time.Second

// ReportService defines the dashboard data contract used by the handler.
type ReportService interface {
	BuildReport(ctx context.Context, req metrics.ReportRequest) (metrics.Report, error)
	Ingest(ctx context.Context, merchantID int64, raw commerce.RawBatch) (commerce.ValidationReport, error)
}

// Handler coordinates HTTP requests for the merchant dashboard.
type Handler struct {
	logger   *slog.Logger
	service  ReportService
	validate *validator.Validate
	now      func() time.Time
}

// NewHandler constructs the dashboard HTTP handler.
func NewHandler(logger *slog.Logger, service ReportService) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		now:      time.Now,
	}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseReportRequest(r)
	if err != nil {
		h.respondFilterError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	report, err := h.service.BuildReport(ctx, req)
	if err != nil {
		h.respondServiceError(w, "build report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newReportResponse(report))
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseReportRequest(r)
	if err != nil {
		h.respondFilterError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	report, err := h.service.BuildReport(ctx, req)
	if err != nil {
		h.respondServiceError(w, "build report", err)
		return
	}

	filename := fmt.Sprintf("dashboard-%s-%s.csv", report.Granularity, report.RangeStart.Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.WriteReportCSV(w, report); err != nil {
		h.logError("stream csv", err)
	}
}

// IngestPayload is the raw-record upload body.
type IngestPayload struct {
	MerchantID int64             `json:"merchant_id" validate:"required,gt=0"`
	Records    commerce.RawBatch `json:"records" validate:"required"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var payload IngestPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	report, err := h.service.Ingest(ctx, payload.MerchantID, payload.Records)
	if err != nil {
		h.respondServiceError(w, "ingest records", err)
		return
	}
	status := http.StatusCreated
	if len(report.Rejections) > 0 {
		// Partial acceptance: some records were dropped, the rest persisted.
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, report)
}

func (h *Handler) parseReportRequest(r *http.Request) (metrics.ReportRequest, error) {
	query := r.URL.Query()

	merchantStr := strings.TrimSpace(query.Get("merchant_id"))
	merchantID, err := strconv.ParseInt(merchantStr, 10, 64)
	if err != nil || merchantID <= 0 {
		return metrics.ReportRequest{}, validationError{field: "merchant_id"}
	}

	granularity := metrics.GranularityDaily
	if raw := strings.TrimSpace(query.Get("granularity")); raw != "" {
		granularity, err = metrics.ParseGranularity(raw)
		if err != nil {
			return metrics.ReportRequest{}, validationError{field: "granularity"}
		}
	}

	now := h.now().UTC()
	rangeEnd := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	rangeStart := rangeEnd.AddDate(0, 0, -7)
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		rangeStart, err = commerce.ParseTimestamp(raw)
		if err != nil {
			return metrics.ReportRequest{}, validationError{field: "from"}
		}
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		rangeEnd, err = commerce.ParseTimestamp(raw)
		if err != nil {
			return metrics.ReportRequest{}, validationError{field: "to"}
		}
	}

	req := metrics.ReportRequest{
		MerchantID:  merchantID,
		Granularity: granularity,
		RangeStart:  rangeStart,
		RangeEnd:    rangeEnd,
	}

	if raw := strings.TrimSpace(query.Get("top_n")); raw != "" {
		topN, err := strconv.Atoi(raw)
		if err != nil || topN <= 0 || topN > 100 {
			return metrics.ReportRequest{}, validationError{field: "top_n"}
		}
		req.TopN = topN
	}
	req.IncludeCancelledCounts = query.Get("include_cancelled") == "true"

	req.Current.StoreVisits, err = optionalCount(query.Get("visits"))
	if err != nil {
		return metrics.ReportRequest{}, validationError{field: "visits"}
	}
	req.Current.ReturningCustomers, err = optionalCount(query.Get("returning"))
	if err != nil {
		return metrics.ReportRequest{}, validationError{field: "returning"}
	}
	req.Prior.StoreVisits, err = optionalCount(query.Get("prior_visits"))
	if err != nil {
		return metrics.ReportRequest{}, validationError{field: "prior_visits"}
	}
	req.Prior.ReturningCustomers, err = optionalCount(query.Get("prior_returning"))
	if err != nil {
		return metrics.ReportRequest{}, validationError{field: "prior_returning"}
	}

	return req, nil
}

func optionalCount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid count %q", raw)
	}
	return value, nil
}

func (h *Handler) respondFilterError(w http.ResponseWriter, err error) {
	var vErr validationError
	if errors.As(err, &vErr) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", vErr.Error())
		return
	}
	h.respondServiceError(w, "parse filters", err)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, metrics.ErrEmptyRange), errors.Is(err, metrics.ErrBadGranularity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, metrics.ErrDuplicateRecord):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logError(msg, err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) logError(msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, slog.Any("error", err))
	}
}

type validationError struct {
	field string
}

func (v validationError) Error() string {
	return fmt.Sprintf("invalid %s", v.field)
}
