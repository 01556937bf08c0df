// Package scheduler runs the periodic housekeeping jobs: expiring swipe
// receipts and forgetting idle rate limiters.
package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/sujalbistaa/kiwiblue/internal/store"
)

const (
	receiptSpec = "@every 1h"
	limiterSpec = "@every 10m"
)

// Pruner drops per-caller state nobody has used recently and reports how
// many entries it removed.
type Pruner interface {
	Prune() int
}

// Scheduler wraps robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	store   *store.Store
	pruners []Pruner
}

func New(st *store.Store, pruners ...Pruner) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cron.DefaultLogger)),
		store:   st,
		pruners: pruners,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(receiptSpec, func() { s.PurgeReceipts(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc receipts: %w", err)
	}
	if _, err := s.cron.AddFunc(limiterSpec, s.PruneLimiters); err != nil {
		return fmt.Errorf("cron.AddFunc limiters: %w", err)
	}
	s.cron.Start()
	log.Printf("[scheduler] Cron started: receipts %s, limiters %s", receiptSpec, limiterSpec)
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[scheduler] Cron stopped")
}

// PurgeReceipts deletes swipe receipts whose replay window has passed.
func (s *Scheduler) PurgeReceipts(ctx context.Context) int64 {
	n, err := s.store.PurgeReceipts(ctx, s.store.Clock())
	if err != nil {
		log.Printf("[scheduler] PurgeReceipts error: %v", err)
		return 0
	}
	if n > 0 {
		log.Printf("[scheduler] Purged %d expired receipt(s)", n)
	}
	return n
}

// PruneLimiters runs every registered Pruner.
func (s *Scheduler) PruneLimiters() {
	for _, p := range s.pruners {
		if n := p.Prune(); n > 0 {
			log.Printf("[scheduler] Pruned %d idle limiter(s)", n)
		}
	}
}
