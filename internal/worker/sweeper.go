package worker

import (
	"context"
	"log"
	"time"
)

const (
	defaultBatch    = 100
	defaultInterval = time.Minute
)

// Payments is the part of the payment service the sweeper drives.
type Payments interface {
	ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
	RetryIssuance(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type SweeperConfig struct {
	Interval   time.Duration // how often to sweep
	PendingTTL time.Duration // unpaid orders older than this are canceled
	RetryAfter time.Duration // paid but unissued orders older than this are re-dispatched
	BatchSize  int
}

// Sweeper cancels orders whose payment never arrived and retries ticket
// issuance that failed after payment.
type Sweeper struct {
	payments Payments
	cfg      SweeperConfig
}

func NewSweeper(payments Payments, cfg SweeperConfig) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatch
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Sweeper{payments: payments, cfg: cfg}
}

// Run sweeps every Interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log.Printf("[Sweeper] started (every %s)", s.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("[Sweeper] stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass of both jobs. Errors are logged; the next tick tries again.
func (s *Sweeper) Sweep(ctx context.Context) {
	if n, err := s.payments.ExpireStale(ctx, s.cfg.PendingTTL, s.cfg.BatchSize); err != nil {
		log.Printf("[Sweeper] expire stale orders: %v", err)
	} else if n > 0 {
		log.Printf("[Sweeper] expired %d unpaid orders", n)
	}

	if n, err := s.payments.RetryIssuance(ctx, s.cfg.RetryAfter, s.cfg.BatchSize); err != nil {
		log.Printf("[Sweeper] retry issuance: %v", err)
	} else if n > 0 {
		log.Printf("[Sweeper] issued %d delayed tickets", n)
	}
}
