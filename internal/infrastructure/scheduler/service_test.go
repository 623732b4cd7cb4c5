package scheduler_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/nftmarket/marketd/internal/core/ports"
	timescheduler "github.com/nftmarket/marketd/internal/infrastructure/scheduler/gocron"
	"github.com/stretchr/testify/require"
)

type service struct {
	name      string
	scheduler ports.SchedulerService
}

func TestScheduleEvery(t *testing.T) {
	t.Parallel()

	svcs := servicesToTest(t)

	for _, svc := range svcs {
		t.Run(svc.name, func(t *testing.T) {
			var calls atomic.Int32
			err := svc.scheduler.ScheduleEvery(time.Second, func() {
				calls.Add(1)
			})
			require.NoError(t, err)

			require.Eventually(t, func() bool {
				return calls.Load() >= 2
			}, 5*time.Second, 100*time.Millisecond)
		})
	}
}

func TestScheduleEveryInvalidInterval(t *testing.T) {
	svc := timescheduler.NewScheduler()
	err := svc.ScheduleEvery(0, func() {})
	require.Error(t, err)
}

func servicesToTest(t *testing.T) []service {
	svcs := []service{
		{name: "gocron", scheduler: timescheduler.NewScheduler()},
	}

	for _, svc := range svcs {
		svc.scheduler.Start()
		t.Cleanup(func() { svc.scheduler.Stop() })
	}

	return svcs
}
