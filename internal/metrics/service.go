package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chatcart/chatcart/internal/commerce"
)

// Repository loads canonical records for a merchant. The fetch itself is the
// out-of-scope collaborator; by the time records reach the engine they are
// fully materialized collections.
type Repository interface {
	ListOrders(ctx context.Context, merchantID int64, from, to time.Time) ([]commerce.OrderRecord, error)
	ListPayments(ctx context.Context, merchantID int64, from, to time.Time) ([]commerce.PaymentRecord, error)
	ListProducts(ctx context.Context, merchantID int64) ([]commerce.ProductRecord, error)
	ListCustomers(ctx context.Context, merchantID int64) ([]commerce.CustomerRecord, error)
	SaveBatch(ctx context.Context, merchantID int64, batch commerce.NormalizedBatch) error
}

// ReportRequest scopes one report build. All configuration travels with the
// call; the service keeps no per-merchant state.
type ReportRequest struct {
	MerchantID             int64
	Granularity            Granularity
	RangeStart             time.Time
	RangeEnd               time.Time
	TopN                   int
	IncludeCancelledCounts bool
	Current                ExternalStats
	Prior                  ExternalStats
}

// Service coordinates report builds with the cache layer.
type Service struct {
	repo  Repository
	cache *Cache
}

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// BuildReport loads the merchant's records for the current and prior window,
// aggregates both, and composes the dashboard report. Results are cached
// under the versioned key until the next ingest bump.
func (s *Service) BuildReport(ctx context.Context, req ReportRequest) (Report, error) {
	if _, err := ParseGranularity(string(req.Granularity)); err != nil {
		return Report{}, err
	}
	if !req.RangeEnd.After(req.RangeStart) {
		return Report{}, ErrEmptyRange
	}
	if req.TopN <= 0 {
		req.TopN = DefaultTopN
	}

	loader := func(ctx context.Context) (interface{}, error) {
		return s.buildReport(ctx, req)
	}

	if s.cache == nil {
		value, err := loader(ctx)
		if err != nil {
			return Report{}, err
		}
		return value.(Report), nil
	}

	key, err := s.cache.BuildKey(ctx, keyReport(req))
	if err != nil {
		return Report{}, err
	}
	var report Report
	if err := s.cache.FetchJSON(ctx, key, &report, loader); err != nil {
		return Report{}, err
	}
	return report, nil
}

func (s *Service) buildReport(ctx context.Context, req ReportRequest) (Report, error) {
	priorStart, priorEnd := PriorWindow(req.Granularity, req.RangeStart, req.RangeEnd)

	var batch commerce.NormalizedBatch
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		orders, err := s.repo.ListOrders(gctx, req.MerchantID, priorStart, req.RangeEnd)
		if err != nil {
			return err
		}
		batch.Orders = orders
		return nil
	})
	g.Go(func() error {
		payments, err := s.repo.ListPayments(gctx, req.MerchantID, priorStart, req.RangeEnd)
		if err != nil {
			return err
		}
		batch.Payments = payments
		return nil
	})
	g.Go(func() error {
		products, err := s.repo.ListProducts(gctx, req.MerchantID)
		if err != nil {
			return err
		}
		batch.Products = products
		return nil
	})
	g.Go(func() error {
		customers, err := s.repo.ListCustomers(gctx, req.MerchantID)
		if err != nil {
			return err
		}
		batch.Customers = customers
		return nil
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	opts := AggregateOptions{
		Granularity:            req.Granularity,
		RangeStart:             req.RangeStart,
		RangeEnd:               req.RangeEnd,
		IncludeCancelledCounts: req.IncludeCancelledCounts,
	}
	current, err := Aggregate(batch, opts)
	if err != nil {
		return Report{}, err
	}
	priorOpts := opts
	priorOpts.RangeStart = priorStart
	priorOpts.RangeEnd = priorEnd
	prior, err := Aggregate(batch, priorOpts)
	if err != nil {
		return Report{}, err
	}

	report := Compose(current, prior, opts, req.TopN, req.Current, req.Prior,
		OpenOrderCount(batch, req.RangeStart, req.RangeEnd))
	report.SnapshotID = uuid.NewString()
	return report, nil
}

// Ingest normalizes a raw batch and persists the surviving records. Records
// arriving without identifiers get one assigned. A successful ingest bumps
// the cache version so stale reports are never served.
func (s *Service) Ingest(ctx context.Context, merchantID int64, raw commerce.RawBatch) (commerce.ValidationReport, error) {
	assignIDs(&raw)
	batch, report := commerce.Normalize(raw)
	if err := s.repo.SaveBatch(ctx, merchantID, batch); err != nil {
		return commerce.ValidationReport{}, err
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			return commerce.ValidationReport{}, err
		}
	}
	return report, nil
}

func assignIDs(raw *commerce.RawBatch) {
	for i := range raw.Orders {
		if raw.Orders[i].ID == "" {
			raw.Orders[i].ID = uuid.NewString()
		}
	}
	for i := range raw.Payments {
		if raw.Payments[i].ID == "" {
			raw.Payments[i].ID = uuid.NewString()
		}
	}
	for i := range raw.Products {
		if raw.Products[i].ID == "" {
			raw.Products[i].ID = uuid.NewString()
		}
	}
	for i := range raw.Customers {
		if raw.Customers[i].ID == "" {
			raw.Customers[i].ID = uuid.NewString()
		}
	}
}
