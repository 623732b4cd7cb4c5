package redispayments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/nftmarket/marketd/internal/core/ports"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	balancesKey  = "paymentsStore:balances"
	rejectingKey = "paymentsStore:rejecting"
)

type paymentService struct {
	rdb          *redis.Client
	numOfRetries int
}

// Ledger is the payment service backed by redis, with the admin calls used to flag recipients.
type Ledger interface {
	ports.PaymentService
	Reject(ctx context.Context, addr string) error
	Accept(ctx context.Context, addr string) error
}

func NewPaymentService(rdb *redis.Client, numOfRetries int) Ledger {
	if numOfRetries <= 0 {
		numOfRetries = 1
	}
	return &paymentService{rdb, numOfRetries}
}

func (s *paymentService) Pay(ctx context.Context, recipient string, amount uint64) (err error) {
	if amount > math.MaxInt64 {
		return fmt.Errorf("amount %d exceeds max payable amount", amount)
	}

	for attempt := 0; attempt < s.numOfRetries; attempt++ {
		// Watching the rejecting set makes the check and the credit atomic.
		if err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			rejecting, err := tx.SIsMember(ctx, rejectingKey, recipient).Result()
			if err != nil {
				return err
			}
			if rejecting {
				return ports.ErrRecipientRejected
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HIncrBy(ctx, balancesKey, recipient, int64(amount))
				return nil
			})
			return err
		}, rejectingKey); err == nil {
			return nil
		}
		if errors.Is(err, ports.ErrRecipientRejected) {
			return err
		}
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		log.Debugf("payment to %s conflicted, retrying", recipient)
	}
	return fmt.Errorf("failed to pay %d to %s: %w", amount, recipient, err)
}

func (s *paymentService) Refund(
	ctx context.Context, recipient string, amount uint64,
) (err error) {
	if amount > math.MaxInt64 {
		return fmt.Errorf("amount %d exceeds max refundable amount", amount)
	}

	for attempt := 0; attempt < s.numOfRetries; attempt++ {
		if err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			balance, err := tx.HGet(ctx, balancesKey, recipient).Uint64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if balance < amount {
				return fmt.Errorf(
					"balance of %s (%d) is lower than refund of %d", recipient, balance, amount,
				)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HIncrBy(ctx, balancesKey, recipient, -int64(amount))
				return nil
			})
			return err
		}, balancesKey); err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		log.Debugf("refund from %s conflicted, retrying", recipient)
	}
	return fmt.Errorf("failed to refund %d from %s: %w", amount, recipient, err)
}

func (s *paymentService) Balance(ctx context.Context, addr string) (uint64, error) {
	val, err := s.rdb.HGet(ctx, balancesKey, addr).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance of %s: %w", addr, err)
	}
	balance, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed balance of %s in storage (%s): %w", addr, val, err)
	}
	return balance, nil
}

func (s *paymentService) Reject(ctx context.Context, addr string) error {
	if err := s.rdb.SAdd(ctx, rejectingKey, addr).Err(); err != nil {
		return fmt.Errorf("failed to flag %s as rejecting: %w", addr, err)
	}
	return nil
}

func (s *paymentService) Accept(ctx context.Context, addr string) error {
	if err := s.rdb.SRem(ctx, rejectingKey, addr).Err(); err != nil {
		return fmt.Errorf("failed to unflag %s as rejecting: %w", addr, err)
	}
	return nil
}

func (s *paymentService) Close() {
	if err := s.rdb.Close(); err != nil {
		log.WithError(err).Warn("failed to close redis client")
	}
}
