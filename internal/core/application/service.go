package application

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/nftmarket/marketd/internal/core/ports"
	"github.com/nftmarket/marketd/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/nftmarket/marketd/internal/core/application"

	alertTimeout = 30 * time.Second
)

type service struct {
	repoManager ports.RepoManager
	payments    ports.PaymentService
	publisher   ports.EventPublisher
	scheduler   ports.SchedulerService
	alerts      ports.Alerts

	registry   *assetRegistry
	ledger     *listingLedger
	settlement *settlementEngine
	treasury   *feeTreasury

	cfg Config

	// lock serializes every write operation. Reads hold it shared so they never observe a
	// half-applied write.
	lock *sync.RWMutex

	tracer  trace.Tracer
	metrics *marketMetrics
}

func NewService(
	repoManager ports.RepoManager,
	payments ports.PaymentService,
	publisher ports.EventPublisher,
	scheduler ports.SchedulerService,
	alerts ports.Alerts,
	cfg Config,
) (Service, error) {
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if payments == nil {
		return nil, fmt.Errorf("missing payment service")
	}
	if domain.IsZeroAddress(cfg.MarketAddress) {
		return nil, fmt.Errorf("missing market address")
	}
	if domain.IsZeroAddress(cfg.OperatorAddress) {
		return nil, fmt.Errorf("missing operator address")
	}
	if cfg.DefaultFeeRateBps > domain.MaxFeeRateBps {
		return nil, fmt.Errorf(
			"default fee rate %d bps above cap of %d bps",
			cfg.DefaultFeeRateBps, domain.MaxFeeRateBps,
		)
	}
	if cfg.MaxPageSize == 0 {
		return nil, fmt.Errorf("max page size must be greater than zero")
	}

	ctx := context.Background()

	// Initialize the treasury on first run only, the persisted fee rate wins afterwards.
	treasury, err := repoManager.Treasury().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get treasury from db: %w", err)
	}
	if treasury == nil {
		treasury, err = domain.NewTreasury(cfg.DefaultFeeRateBps)
		if err != nil {
			return nil, err
		}
		if err := repoManager.Treasury().Upsert(ctx, *treasury); err != nil {
			return nil, fmt.Errorf("failed to initialize treasury in db: %w", err)
		}
		log.Debugf("initialized treasury with fee rate of %d bps", treasury.FeeRateBps)
	}

	metrics, err := newMarketMetrics(otel.Meter(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	registry := &assetRegistry{
		repoManager:   repoManager,
		marketAddress: cfg.MarketAddress,
		ownerAddress:  cfg.RegistryOwnerAddress,
	}
	ledger := &listingLedger{
		repoManager:   repoManager,
		registry:      registry,
		marketAddress: cfg.MarketAddress,
		maxPageSize:   cfg.MaxPageSize,
	}
	feeTreasury := &feeTreasury{
		repoManager:     repoManager,
		payments:        payments,
		operatorAddress: cfg.OperatorAddress,
	}
	settlement := &settlementEngine{
		ledger:        ledger,
		registry:      registry,
		treasury:      feeTreasury,
		payments:      payments,
		marketAddress: cfg.MarketAddress,
	}

	return &service{
		repoManager: repoManager,
		payments:    payments,
		publisher:   publisher,
		scheduler:   scheduler,
		alerts:      alerts,
		registry:    registry,
		ledger:      ledger,
		settlement:  settlement,
		treasury:    feeTreasury,
		cfg:         cfg,
		lock:        &sync.RWMutex{},
		tracer:      otel.Tracer(instrumentationName),
		metrics:     metrics,
	}, nil
}

func (s *service) Start() errors.Error {
	if s.scheduler == nil || s.cfg.StatsInterval <= 0 {
		return nil
	}

	if err := s.scheduler.ScheduleEvery(s.cfg.StatsInterval, s.reportStats); err != nil {
		return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to schedule stats report: %w", err))
	}
	s.scheduler.Start()
	log.Debugf("reporting market stats every %s", s.cfg.StatsInterval)
	return nil
}

func (s *service) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
		log.Debug("stopped scheduler")
	}
	if s.publisher != nil {
		s.publisher.Close()
		log.Debug("closed event publisher")
	}
	s.payments.Close()
	log.Debug("closed connection to payment service")
	s.repoManager.Close()
	log.Debug("closed connection to db")
}

func (s *service) GetEvents(
	ctx context.Context, afterSeq, limit uint64,
) ([]domain.RecordedEvent, errors.Error) {
	if err := s.ledger.checkPageSize(limit); err != nil {
		return nil, err
	}
	if limit == 0 {
		return nil, nil
	}

	var events []domain.RecordedEvent
	if err := s.read(ctx, func(ctx context.Context) errors.Error {
		var err error
		events, err = s.repoManager.Events().List(ctx, afterSeq, limit)
		if err != nil {
			return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to list events: %w", err))
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *service) GetEventsChannel(
	ctx context.Context,
) (<-chan domain.RecordedEvent, errors.Error) {
	if s.publisher == nil {
		return nil, errors.INTERNAL_ERROR.New("live events are not enabled")
	}
	ch, err := s.publisher.Subscribe(ctx)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to subscribe to events: %w", err))
	}
	return ch, nil
}

func (s *service) GetMarketStats(ctx context.Context) (*MarketStats, errors.Error) {
	stats := &MarketStats{}
	if err := s.read(ctx, func(ctx context.Context) errors.Error {
		var err error
		if stats.ActiveListings, err = s.repoManager.Listings().CountActiveListings(ctx); err != nil {
			return errors.INTERNAL_ERROR.Wrap(err)
		}
		if stats.TotalEverListed, err = s.repoManager.Listings().CountIndexedAssets(ctx); err != nil {
			return errors.INTERNAL_ERROR.Wrap(err)
		}
		if stats.LastAssetId, err = s.repoManager.Assets().LastAssetId(ctx); err != nil {
			return errors.INTERNAL_ERROR.Wrap(err)
		}
		treasury, typedErr := s.treasury.get(ctx)
		if typedErr != nil {
			return typedErr
		}
		stats.AccruedFees = treasury.AccruedBalance
		stats.FeeRateBps = treasury.FeeRateBps
		return nil
	}); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *service) reportStats() {
	stats, err := s.GetMarketStats(context.Background())
	if err != nil {
		err.Log().Warn("failed to collect market stats")
		return
	}
	log.WithFields(log.Fields{
		"active_listings":   stats.ActiveListings,
		"total_ever_listed": stats.TotalEverListed,
		"minted_assets":     stats.LastAssetId,
		"accrued_fees":      stats.AccruedFees,
		"fee_rate_bps":      stats.FeeRateBps,
	}).Info("market stats")
}

// sendAlert publishes in background, alerts must never slow down or fail an operation.
func (s *service) sendAlert(topic ports.Topic, message any) {
	if s.alerts == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		if err := s.alerts.Publish(ctx, topic, message); err != nil {
			log.WithError(err).Warnf("failed to publish %s alert", topic)
		}
	}()
}

func (s *service) alertPayoutFailure(assetId uint64, err errors.Error) {
	if !errors.PAYOUT_FAILED.Is(err) {
		return
	}
	metadata := err.Metadata()
	amount, _ := strconv.ParseUint(metadata["amount"], 10, 64)
	s.sendAlert(ports.PayoutFailed, ports.PayoutFailedAlert{
		AssetId:   assetId,
		Recipient: metadata["recipient"],
		Amount:    amount,
		Reason:    err.Error(),
	})
}

type opKey struct{}

// opState tracks a running write operation. Operations invoked while another one is running
// (ie. from within a payout) find it in the context and join its store transaction.
type opState struct {
	events  []domain.Event
	writes  int
	aborted errors.Error
	// payouts are outside the store transaction, they're refunded if it doesn't commit.
	payouts []payout
}

type payout struct {
	recipient string
	amount    uint64
}

func (o *opState) emit(events ...domain.Event) {
	o.events = append(o.events, events...)
}

func opFromContext(ctx context.Context) (*opState, bool) {
	op, ok := ctx.Value(opKey{}).(*opState)
	return op, ok
}

// touch must be called before writing to the store on behalf of the running operation.
func touch(ctx context.Context) {
	if op, ok := opFromContext(ctx); ok {
		op.writes++
	}
}

// emit records events for the running operation, they're persisted with its transaction.
func emit(ctx context.Context, events ...domain.Event) {
	if op, ok := opFromContext(ctx); ok {
		op.emit(events...)
	}
}

// write runs fn as one atomic operation. Events emitted by fn are appended to the event log in
// the same transaction and published once it commits.
func (s *service) write(
	ctx context.Context, name string, fn func(ctx context.Context) errors.Error,
) errors.Error {
	ctx, span := s.tracer.Start(ctx, name)
	defer span.End()

	if op, ok := opFromContext(ctx); ok {
		span.SetAttributes(attribute.Bool("nested", true))
		writes := op.writes
		err := fn(ctx)
		if err != nil {
			recordError(span, err)
			// A failure after the first write leaves partial effects in the shared transaction,
			// the outer operation must not commit them.
			if op.writes > writes && op.aborted == nil {
				op.aborted = err
			}
		}
		return err
	}

	if err := s.runWrite(ctx, fn); err != nil {
		recordError(span, err)
		return err
	}
	return nil
}

func (s *service) runWrite(
	ctx context.Context, fn func(ctx context.Context) errors.Error,
) errors.Error {
	s.lock.Lock()
	defer s.lock.Unlock()

	op := &opState{}
	ctx = context.WithValue(ctx, opKey{}, op)

	var opErr errors.Error
	var recorded []domain.RecordedEvent
	txErr := s.repoManager.RunTx(ctx, false, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			opErr = err
			return err
		}
		if op.aborted != nil {
			opErr = errors.INTERNAL_ERROR.Wrap(
				fmt.Errorf("nested operation failed: %w", op.aborted),
			)
			return opErr
		}
		if len(op.events) <= 0 {
			return nil
		}

		var err error
		recorded, err = s.repoManager.Events().Add(ctx, op.events...)
		if err != nil {
			opErr = errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to add events: %w", err))
			return opErr
		}
		return nil
	})
	if opErr != nil || txErr != nil {
		s.refundPayouts(ctx, op.payouts)
	}
	if opErr != nil {
		return opErr
	}
	if txErr != nil {
		return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to commit: %w", txErr))
	}

	// Publishing under the lock keeps live subscribers in commit order.
	if s.publisher != nil && len(recorded) > 0 {
		if err := s.publisher.Publish(ctx, recorded); err != nil {
			log.WithError(err).Warn("failed to publish events")
		}
	}
	return nil
}

// refundPayouts takes back, newest first, the payouts of an operation that didn't commit.
func (s *service) refundPayouts(ctx context.Context, payouts []payout) {
	ctx = context.WithoutCancel(ctx)
	for i := len(payouts) - 1; i >= 0; i-- {
		p := payouts[i]
		if err := s.payments.Refund(ctx, p.recipient, p.amount); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"recipient": p.recipient,
				"amount":    p.amount,
			}).Error("failed to refund payout of rolled back operation")
			s.sendAlert(ports.PayoutFailed, ports.PayoutFailedAlert{
				Recipient: p.recipient,
				Amount:    p.amount,
				Reason:    fmt.Sprintf("refund of rolled back payout failed: %s", err),
			})
			continue
		}
		log.Debugf("refunded %d from %s", p.amount, p.recipient)
	}
}

// read runs fn against a consistent snapshot of the store.
func (s *service) read(ctx context.Context, fn func(ctx context.Context) errors.Error) errors.Error {
	if _, ok := opFromContext(ctx); ok {
		return fn(ctx)
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	var opErr errors.Error
	if err := s.repoManager.RunTx(ctx, true, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			opErr = err
			return err
		}
		return nil
	}); err != nil {
		if opErr != nil {
			return opErr
		}
		return errors.INTERNAL_ERROR.Wrap(err)
	}
	return nil
}

func recordError(span trace.Span, err errors.Error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.CodeName())
}

type marketMetrics struct {
	sales  metric.Int64Counter
	volume metric.Int64Counter
	fees   metric.Int64Counter
}

func newMarketMetrics(meter metric.Meter) (*marketMetrics, error) {
	sales, err := meter.Int64Counter(
		"market.sales", metric.WithDescription("number of settled sales"),
	)
	if err != nil {
		return nil, err
	}
	volume, err := meter.Int64Counter(
		"market.volume", metric.WithDescription("sum of the prices of settled sales"),
	)
	if err != nil {
		return nil, err
	}
	fees, err := meter.Int64Counter(
		"market.fees", metric.WithDescription("protocol fees accrued by sales"),
	)
	if err != nil {
		return nil, err
	}
	return &marketMetrics{sales, volume, fees}, nil
}

func (m *marketMetrics) recordSale(ctx context.Context, sale *Sale) {
	m.sales.Add(ctx, 1)
	m.volume.Add(ctx, int64(sale.Price))
	m.fees.Add(ctx, int64(sale.Fee))
}
