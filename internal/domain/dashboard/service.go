package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/mensalize/billing-api/internal/types"
)

// Cache keys, one per metric.
const (
	keyOverview    = "overview"
	keyBalances    = "balances"
	keyOutstanding = "outstanding"
)

// DefaultTTL is how long a cached metric stays fresh.
const DefaultTTL = 5 * time.Minute

var cacheRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dashboard_cache_requests_total",
		Help: "Dashboard cache lookups by metric and result.",
	},
	[]string{"metric", "result"},
)

// Snapshot bundles every dashboard metric for the combined endpoint.
type Snapshot struct {
	Overview    *types.DashboardOverview   `json:"overview"`
	Balances    []*types.SubscriberBalance `json:"balances"`
	Outstanding []*types.OutstandingCharge `json:"outstanding"`
}

var _ Service = (*ServiceImpl)(nil)

// Service serves dashboard metrics from a short-TTL in-process cache. A
// miss recomputes synchronously; there is no background refresh and no
// stampede protection, so concurrent misses may both recompute. That is fine
// for idempotent read-only queries.
type Service interface {
	Overview(ctx context.Context) (*types.DashboardOverview, error)
	ActiveSubscriberBalances(ctx context.Context) ([]*types.SubscriberBalance, error)
	OutstandingCharges(ctx context.Context) ([]*types.OutstandingCharge, error)
	GetSnapshot(ctx context.Context) (*Snapshot, error)
	Invalidate(name string)
	InvalidateAll()
}

type ServiceImpl struct {
	repo   Repository
	cache  *cache.Cache
	logger *slog.Logger
}

func NewService(repo Repository, ttl time.Duration, logger *slog.Logger) *ServiceImpl {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ServiceImpl{
		repo:   repo,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

func (s *ServiceImpl) Overview(ctx context.Context) (*types.DashboardOverview, error) {
	if cached, found := s.cache.Get(keyOverview); found {
		if overview, ok := cached.(*types.DashboardOverview); ok {
			cacheRequestsTotal.WithLabelValues(keyOverview, "hit").Inc()
			return overview, nil
		}
	}
	cacheRequestsTotal.WithLabelValues(keyOverview, "miss").Inc()

	overview, err := s.repo.GetOverview(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(keyOverview, overview, cache.DefaultExpiration)
	return overview, nil
}

func (s *ServiceImpl) ActiveSubscriberBalances(ctx context.Context) ([]*types.SubscriberBalance, error) {
	if cached, found := s.cache.Get(keyBalances); found {
		if balances, ok := cached.([]*types.SubscriberBalance); ok {
			cacheRequestsTotal.WithLabelValues(keyBalances, "hit").Inc()
			return balances, nil
		}
	}
	cacheRequestsTotal.WithLabelValues(keyBalances, "miss").Inc()

	balances, err := s.repo.ListActiveSubscriberBalances(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(keyBalances, balances, cache.DefaultExpiration)
	return balances, nil
}

func (s *ServiceImpl) OutstandingCharges(ctx context.Context) ([]*types.OutstandingCharge, error) {
	if cached, found := s.cache.Get(keyOutstanding); found {
		if charges, ok := cached.([]*types.OutstandingCharge); ok {
			cacheRequestsTotal.WithLabelValues(keyOutstanding, "hit").Inc()
			return charges, nil
		}
	}
	cacheRequestsTotal.WithLabelValues(keyOutstanding, "miss").Inc()

	charges, err := s.repo.ListOutstandingCharges(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(keyOutstanding, charges, cache.DefaultExpiration)
	return charges, nil
}

// GetSnapshot fetches every metric, concurrently on cold cache.
func (s *ServiceImpl) GetSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		overview, err := s.Overview(ctx)
		snap.Overview = overview
		return err
	})
	g.Go(func() error {
		balances, err := s.ActiveSubscriberBalances(ctx)
		snap.Balances = balances
		return err
	})
	g.Go(func() error {
		outstanding, err := s.OutstandingCharges(ctx)
		snap.Outstanding = outstanding
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Invalidate drops one named metric from the cache.
func (s *ServiceImpl) Invalidate(name string) {
	s.cache.Delete(name)
}

// InvalidateAll drops every cached metric; the next reads recompute.
func (s *ServiceImpl) InvalidateAll() {
	s.cache.Flush()
}
