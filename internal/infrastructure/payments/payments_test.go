package payments_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/nftmarket/marketd/internal/core/ports"
	inmemorypayments "github.com/nftmarket/marketd/internal/infrastructure/payments/inmemory"
	redispayments "github.com/nftmarket/marketd/internal/infrastructure/payments/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// rejecter flags a recipient so that payments to it fail.
type rejecter func(ctx context.Context, addr string)

func TestPaymentServiceImplementations(t *testing.T) {
	inmemory := inmemorypayments.NewPaymentService()

	services := []struct {
		name   string
		svc    ports.PaymentService
		reject rejecter
	}{
		{
			name: "inmemory",
			svc:  inmemory,
			reject: func(_ context.Context, addr string) {
				inmemory.Reject(addr)
			},
		},
	}

	redisOpts, err := redis.ParseURL("redis://localhost:6379/0")
	require.NoError(t, err)
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err == nil {
		ledger := redispayments.NewPaymentService(rdb, 5)
		services = append(services, struct {
			name   string
			svc    ports.PaymentService
			reject rejecter
		}{
			name: "redis",
			svc:  ledger,
			reject: func(ctx context.Context, addr string) {
				require.NoError(t, ledger.Reject(ctx, addr))
			},
		})
	} else {
		t.Logf("skipping redis payment service: %s", err)
	}

	for _, tt := range services {
		t.Run(tt.name, func(t *testing.T) {
			runPaymentServiceTests(t, tt.svc, tt.reject)
			tt.svc.Close()
		})
	}
}

func runPaymentServiceTests(t *testing.T, svc ports.PaymentService, reject rejecter) {
	ctx := context.Background()
	// Unique addresses keep runs against a shared redis independent.
	seller := fmt.Sprintf("0x%s", uuid.NewString())
	contract := fmt.Sprintf("0x%s", uuid.NewString())

	t.Run("credit balance", func(t *testing.T) {
		balance, err := svc.Balance(ctx, seller)
		require.NoError(t, err)
		require.Zero(t, balance)

		require.NoError(t, svc.Pay(ctx, seller, 975))
		require.NoError(t, svc.Pay(ctx, seller, 25))

		balance, err = svc.Balance(ctx, seller)
		require.NoError(t, err)
		require.Equal(t, uint64(1000), balance)
	})

	t.Run("refund", func(t *testing.T) {
		require.NoError(t, svc.Refund(ctx, seller, 975))

		balance, err := svc.Balance(ctx, seller)
		require.NoError(t, err)
		require.Equal(t, uint64(25), balance)

		require.Error(t, svc.Refund(ctx, seller, 26))
		require.Error(t, svc.Refund(ctx, contract, 1))

		balance, err = svc.Balance(ctx, seller)
		require.NoError(t, err)
		require.Equal(t, uint64(25), balance)
	})

	t.Run("rejecting recipient", func(t *testing.T) {
		reject(ctx, contract)

		err := svc.Pay(ctx, contract, 100)
		require.ErrorIs(t, err, ports.ErrRecipientRejected)

		balance, err := svc.Balance(ctx, contract)
		require.NoError(t, err)
		require.Zero(t, balance)
	})
}

func TestReceiveHook(t *testing.T) {
	ctx := context.Background()
	svc := inmemorypayments.NewPaymentService()

	var received []uint64
	svc.RegisterReceiver("0xc0ffee", func(_ context.Context, amount uint64) error {
		received = append(received, amount)
		if amount > 500 {
			return fmt.Errorf("too much")
		}
		return nil
	})

	require.NoError(t, svc.Pay(ctx, "0xc0ffee", 300))
	err := svc.Pay(ctx, "0xc0ffee", 800)
	require.ErrorIs(t, err, ports.ErrRecipientRejected)
	require.Equal(t, []uint64{300, 800}, received)

	balance, err := svc.Balance(ctx, "0xc0ffee")
	require.NoError(t, err)
	require.Equal(t, uint64(300), balance)

	svc.Reject("0xc0ffee")
	require.ErrorIs(t, svc.Pay(ctx, "0xc0ffee", 1), ports.ErrRecipientRejected)
	svc.Accept("0xc0ffee")
	require.NoError(t, svc.Pay(ctx, "0xc0ffee", 1))
}
