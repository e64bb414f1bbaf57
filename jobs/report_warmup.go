package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/chatcart/chatcart/internal/jobs"
	"github.com/chatcart/chatcart/internal/metrics"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// MerchantLister discovers which merchants have records worth warming.
type MerchantLister interface {
	ListMerchants(ctx context.Context) ([]int64, error)
}

// ReportWarmupJob pre-populates the dashboard report cache for every active
// merchant.
type ReportWarmupJob struct {
	Service   *metrics.Service
	Merchants MerchantLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewReportWarmupJob wires dependencies for the warmup handler.
func NewReportWarmupJob(service *metrics.Service, merchants MerchantLister, logger *slog.Logger, jm *jobmetrics.Metrics) *ReportWarmupJob {
	return &ReportWarmupJob{
		Service:   service,
		Merchants: merchants,
		Logger:    logger,
		Metrics:   jm,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes report warmup tasks.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("report warmup: handler not configured")
	}
	var payload ReportWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if len(payload.Granularities) == 0 {
		payload.Granularities = []string{
			string(metrics.GranularityDaily),
			string(metrics.GranularityWeekly),
			string(metrics.GranularityMonthly),
		}
	}

	tracker := j.metrics().Track(TaskReportWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting report warmup", slog.Int("granularities", len(payload.Granularities)))

	merchants, err := j.fetchMerchants(ctx)
	if err != nil {
		resultErr = err
		logger.Error("load warmup merchants", slog.Any("error", err))
		return resultErr
	}
	if len(merchants) == 0 {
		logger.Info("no merchants discovered for warmup")
		return resultErr
	}

	now := j.now()
	for _, raw := range payload.Granularities {
		granularity, err := metrics.ParseGranularity(raw)
		if err != nil {
			logger.Warn("skipping unknown granularity", slog.String("granularity", raw))
			continue
		}
		warmed := 0
		for _, merchantID := range merchants {
			if err := j.warmMerchant(ctx, merchantID, granularity, now); err != nil {
				resultErr = err
				logger.Error("warm merchant",
					slog.Int64("merchant_id", merchantID),
					slog.String("granularity", string(granularity)),
					slog.Any("error", err))
				return resultErr
			}
			warmed++
		}
		j.metrics().AddWarmedReports(string(granularity), warmed)
	}

	logger.Info("completed report warmup",
		slog.Int("merchants", len(merchants)),
		slog.Duration("duration", time.Since(now)))
	return resultErr
}

func (j *ReportWarmupJob) warmMerchant(ctx context.Context, merchantID int64, granularity metrics.Granularity, now time.Time) error {
	if j.Service == nil {
		return nil
	}
	// Tighten each merchant execution with a timeout to avoid long-running jobs.
	merchantCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	rangeStart, rangeEnd := warmupWindow(granularity, now)
	_, err := j.Service.BuildReport(merchantCtx, metrics.ReportRequest{
		MerchantID:  merchantID,
		Granularity: granularity,
		RangeStart:  rangeStart,
		RangeEnd:    rangeEnd,
	})
	return err
}

// warmupWindow picks the range a merchant is most likely to open first:
// the trailing week, month, or half year ending tomorrow at midnight.
func warmupWindow(granularity metrics.Granularity, now time.Time) (time.Time, time.Time) {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	switch granularity {
	case metrics.GranularityHourly:
		return end.AddDate(0, 0, -1), end
	case metrics.GranularityWeekly:
		return end.AddDate(0, 0, -28), end
	case metrics.GranularityMonthly:
		return end.AddDate(0, -6, 0), end
	default:
		return end.AddDate(0, 0, -7), end
	}
}

func (j *ReportWarmupJob) fetchMerchants(ctx context.Context) ([]int64, error) {
	if j.Merchants == nil {
		return nil, errors.New("report warmup: merchant lister not configured")
	}
	return j.Merchants.ListMerchants(ctx)
}

func (j *ReportWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportWarmup))
}

func (j *ReportWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReportWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
