package application

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/nftmarket/marketd/internal/core/ports"
	"github.com/nftmarket/marketd/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// settlementEngine exchanges a listed asset for its price.
type settlementEngine struct {
	ledger        *listingLedger
	registry      *assetRegistry
	treasury      *feeTreasury
	payments      ports.PaymentService
	marketAddress string
}

// buy must run in a single store transaction: every step after the listing is deactivated
// relies on the rollback to undo the previous ones.
func (e *settlementEngine) buy(
	ctx context.Context, buyer string, assetId, payment uint64,
) (*Sale, errors.Error) {
	listing, err := e.ledger.getActiveListing(ctx, assetId)
	if err != nil {
		return nil, err
	}
	if buyer == listing.Seller {
		return nil, errors.SELF_PURCHASE.New("%s is the seller of asset %d", buyer, assetId).
			WithMetadata(errors.ListingMetadata{AssetId: assetId, Seller: listing.Seller})
	}
	if payment != listing.Price {
		return nil, errors.WRONG_PAYMENT_AMOUNT.New(
			"payment of %d does not match price of %d", payment, listing.Price,
		).WithMetadata(errors.PaymentMetadata{
			AssetId: assetId, Price: listing.Price, Received: payment,
		})
	}
	if domain.IsZeroAddress(buyer) {
		return nil, errors.INVALID_ADDRESS.New("buyer is the zero address").
			WithMetadata(errors.AddressMetadata{Address: buyer})
	}

	treasury, err := e.treasury.get(ctx)
	if err != nil {
		return nil, err
	}
	fee, proceeds := domain.ComputeFee(listing.Price, treasury.FeeRateBps)
	seller := listing.Seller

	// Close the listing before anything else so that a reentrant buy sees it inactive.
	if err := e.ledger.deactivate(ctx, listing); err != nil {
		return nil, err
	}
	if err := e.registry.transfer(ctx, e.marketAddress, seller, buyer, assetId); err != nil {
		return nil, err
	}
	if err := e.treasury.accrue(ctx, treasury, fee); err != nil {
		return nil, err
	}
	if err := pay(ctx, e.payments, seller, proceeds); err != nil {
		return nil, err
	}

	emit(ctx, domain.Sold{
		AssetId: assetId, Seller: seller, Buyer: buyer, Price: listing.Price, Fee: fee,
	})
	return &Sale{
		AssetId:  assetId,
		Seller:   seller,
		Buyer:    buyer,
		Price:    listing.Price,
		Fee:      fee,
		Proceeds: proceeds,
	}, nil
}

// pay moves amount to recipient, a zero amount is a no-op. The payout is recorded on the
// running operation so that it's refunded if the operation doesn't commit.
func pay(
	ctx context.Context, payments ports.PaymentService, recipient string, amount uint64,
) errors.Error {
	if amount == 0 {
		return nil
	}
	op, ok := opFromContext(ctx)
	if ok && op.aborted != nil {
		return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("nested operation failed: %w", op.aborted))
	}
	touch(ctx)
	if err := payments.Pay(ctx, recipient, amount); err != nil {
		if stderrors.Is(err, ports.ErrRecipientRejected) {
			return errors.PAYOUT_FAILED.New("failed to pay %d to %s: %s", amount, recipient, err).
				WithMetadata(errors.PayoutMetadata{Recipient: recipient, Amount: amount})
		}
		return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to pay %s: %w", recipient, err))
	}
	if ok {
		op.payouts = append(op.payouts, payout{recipient, amount})
	}
	return nil
}

func (s *service) BuyNFT(
	ctx context.Context, caller string, assetId, payment uint64,
) (*Sale, errors.Error) {
	var sale *Sale
	if err := s.write(ctx, "settlement.BuyNFT", func(ctx context.Context) errors.Error {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int64("asset_id", int64(assetId)),
			attribute.String("buyer", caller),
		)
		var err errors.Error
		sale, err = s.settlement.buy(ctx, caller, assetId, payment)
		return err
	}); err != nil {
		s.alertPayoutFailure(assetId, err)
		return nil, err
	}

	s.metrics.recordSale(ctx, sale)
	log.WithFields(log.Fields{
		"asset_id": sale.AssetId,
		"seller":   sale.Seller,
		"buyer":    sale.Buyer,
		"price":    sale.Price,
		"fee":      sale.Fee,
	}).Info("asset sold")
	return sale, nil
}
