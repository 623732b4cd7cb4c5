package application

import (
	"context"
	"fmt"

	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/nftmarket/marketd/internal/core/ports"
	"github.com/nftmarket/marketd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// feeTreasury holds the fee rate and the protocol fees accrued by sales.
type feeTreasury struct {
	repoManager     ports.RepoManager
	payments        ports.PaymentService
	operatorAddress string
}

func (t *feeTreasury) get(ctx context.Context) (*domain.Treasury, errors.Error) {
	treasury, err := t.repoManager.Treasury().Get(ctx)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to get treasury: %w", err))
	}
	if treasury == nil {
		return nil, errors.INTERNAL_ERROR.New("treasury not initialized")
	}
	return treasury, nil
}

func (t *feeTreasury) upsert(ctx context.Context, treasury domain.Treasury) errors.Error {
	touch(ctx)
	if err := t.repoManager.Treasury().Upsert(ctx, treasury); err != nil {
		return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to upsert treasury: %w", err))
	}
	return nil
}

func (t *feeTreasury) checkOperator(caller string) errors.Error {
	if caller != t.operatorAddress {
		return errors.UNAUTHORIZED.New("%s is not the operator", caller).
			WithMetadata(errors.CallerMetadata{Caller: caller})
	}
	return nil
}

func (t *feeTreasury) accrue(ctx context.Context, treasury *domain.Treasury, fee uint64) errors.Error {
	if fee == 0 {
		return nil
	}
	if err := treasury.Accrue(fee); err != nil {
		return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to accrue fee: %w", err))
	}
	return t.upsert(ctx, *treasury)
}

func (t *feeTreasury) setFeeRate(ctx context.Context, caller string, feeRateBps uint32) errors.Error {
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	if feeRateBps > domain.MaxFeeRateBps {
		return errors.FEE_TOO_HIGH.New(
			"fee rate %d bps above cap of %d bps", feeRateBps, domain.MaxFeeRateBps,
		).WithMetadata(errors.FeeRateMetadata{
			FeeRateBps: feeRateBps, MaxRateBps: domain.MaxFeeRateBps,
		})
	}

	treasury, err := t.get(ctx)
	if err != nil {
		return err
	}
	oldRate := treasury.FeeRateBps
	if err := treasury.SetFeeRate(feeRateBps); err != nil {
		return errors.INTERNAL_ERROR.Wrap(err)
	}
	if err := t.upsert(ctx, *treasury); err != nil {
		return err
	}

	emit(ctx, domain.FeeRateChanged{OldRateBps: oldRate, NewRateBps: feeRateBps})
	return nil
}

// withdraw pays out the whole accrued balance. The balance is zeroed in the same transaction,
// a rejected payout leaves it untouched.
func (t *feeTreasury) withdraw(
	ctx context.Context, caller, recipient string,
) (uint64, errors.Error) {
	if err := t.checkOperator(caller); err != nil {
		return 0, err
	}
	if domain.IsZeroAddress(recipient) {
		return 0, errors.INVALID_ADDRESS.New("cannot withdraw to the zero address").
			WithMetadata(errors.AddressMetadata{Address: recipient})
	}

	treasury, err := t.get(ctx)
	if err != nil {
		return 0, err
	}
	if treasury.AccruedBalance == 0 {
		return 0, errors.NOTHING_TO_WITHDRAW.New("no fees to withdraw")
	}

	amount := treasury.Drain()
	if err := t.upsert(ctx, *treasury); err != nil {
		return 0, err
	}
	if err := pay(ctx, t.payments, recipient, amount); err != nil {
		return 0, err
	}

	emit(ctx, domain.FeesWithdrawn{Recipient: recipient, Amount: amount})
	return amount, nil
}

func (s *service) SetFeeRate(ctx context.Context, caller string, feeRateBps uint32) errors.Error {
	return s.write(ctx, "treasury.SetFeeRate", func(ctx context.Context) errors.Error {
		return s.treasury.setFeeRate(ctx, caller, feeRateBps)
	})
}

func (s *service) WithdrawFees(
	ctx context.Context, caller, recipient string,
) (uint64, errors.Error) {
	var amount uint64
	var treasury *domain.Treasury
	if err := s.write(ctx, "treasury.WithdrawFees", func(ctx context.Context) errors.Error {
		var err errors.Error
		if amount, err = s.treasury.withdraw(ctx, caller, recipient); err != nil {
			return err
		}
		treasury, err = s.treasury.get(ctx)
		return err
	}); err != nil {
		s.alertPayoutFailure(0, err)
		return 0, err
	}

	log.WithField("recipient", recipient).Infof("withdrew %d in fees", amount)
	s.sendAlert(ports.FeesWithdrawn, ports.FeesWithdrawnAlert{
		Recipient:      recipient,
		Amount:         amount,
		TotalCollected: treasury.TotalCollected,
		TotalWithdrawn: treasury.TotalWithdrawn,
	})
	return amount, nil
}

func (s *service) GetFeeInfo(ctx context.Context) (*FeeInfo, errors.Error) {
	var info *FeeInfo
	if err := s.read(ctx, func(ctx context.Context) errors.Error {
		treasury, err := s.treasury.get(ctx)
		if err != nil {
			return err
		}
		info = &FeeInfo{
			FeeRateBps:     treasury.FeeRateBps,
			AccruedBalance: treasury.AccruedBalance,
			TotalCollected: treasury.TotalCollected,
			TotalWithdrawn: treasury.TotalWithdrawn,
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return info, nil
}
