package inmemorypayments

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/nftmarket/marketd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// ReceiveHook runs when a payment reaches a registered recipient, before it's credited.
// Returning an error rejects the payment.
type ReceiveHook func(ctx context.Context, amount uint64) error

// Ledger keeps balances in memory. Recipients can be flagged as rejecting or given a hook
// that runs on every incoming payment, like a contract receiving funds would.
type Ledger struct {
	lock      sync.Mutex
	balances  map[string]uint64
	rejecting map[string]struct{}
	hooks     map[string]ReceiveHook
}

func NewPaymentService() *Ledger {
	return &Ledger{
		balances:  make(map[string]uint64),
		rejecting: make(map[string]struct{}),
		hooks:     make(map[string]ReceiveHook),
	}
}

// Reject makes every future payment to addr fail.
func (l *Ledger) Reject(addr string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.rejecting[addr] = struct{}{}
}

func (l *Ledger) Accept(addr string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	delete(l.rejecting, addr)
}

func (l *Ledger) RegisterReceiver(addr string, hook ReceiveHook) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.hooks[addr] = hook
}

func (l *Ledger) Pay(ctx context.Context, recipient string, amount uint64) error {
	l.lock.Lock()
	_, rejecting := l.rejecting[recipient]
	hook := l.hooks[recipient]
	l.lock.Unlock()

	if rejecting {
		return ports.ErrRecipientRejected
	}
	// The hook may call back into the market, the lock must not be held meanwhile.
	if hook != nil {
		if err := hook(ctx, amount); err != nil {
			log.WithError(err).Debugf("receiver %s rejected payment of %d", recipient, amount)
			return fmt.Errorf("%w: %s", ports.ErrRecipientRejected, err)
		}
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	balance := l.balances[recipient]
	if amount > math.MaxUint64-balance {
		return fmt.Errorf("balance of %s would overflow", recipient)
	}
	l.balances[recipient] = balance + amount
	return nil
}

func (l *Ledger) Refund(_ context.Context, recipient string, amount uint64) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	balance := l.balances[recipient]
	if balance < amount {
		return fmt.Errorf(
			"balance of %s (%d) is lower than refund of %d", recipient, balance, amount,
		)
	}
	l.balances[recipient] = balance - amount
	return nil
}

func (l *Ledger) Balance(_ context.Context, addr string) (uint64, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.balances[addr], nil
}

func (l *Ledger) Close() {}
