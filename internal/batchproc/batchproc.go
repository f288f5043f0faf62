// Package batchproc implements the Batch Processor (C4): parallel
// orchestration of the scheduling engine over a population of contacts,
// following the teacher's bounded-fan-out pattern from
// internal/service/broadcast (semaphore.Weighted-gated goroutines with
// an ordered result slice).
package batchproc

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sunridge-benefits/enroll-scheduler/internal/config"
	"github.com/sunridge-benefits/enroll-scheduler/internal/domain"
	"github.com/sunridge-benefits/enroll-scheduler/internal/scheduling"
	"github.com/sunridge-benefits/enroll-scheduler/pkg/logger"
)

// SequentialThreshold is the population size below which processing runs
// on the calling goroutine rather than fanning out, per §4.4.
const SequentialThreshold = 100

// Processor computes §4.3 schedules for a population of contacts. The
// parallel path has no shared mutable state between per-contact
// computations, so it is semantically identical to the sequential path.
type Processor struct {
	rules *config.RuleConfig
	log   logger.Logger
}

func New(rules *config.RuleConfig, log logger.Logger) *Processor {
	return &Processor{rules: rules, log: log}
}

// ProcessContacts computes the schedule for every contact, returning
// results in the same order as the input. batchSize bounds the number
// of concurrent scheduling calls in flight; it has no effect below
// SequentialThreshold.
func (p *Processor) ProcessContacts(ctx context.Context, contacts []domain.Contact, horizonStart, horizonEnd time.Time, populationSize, batchSize int) []domain.ScheduleResult {
	if len(contacts) < SequentialThreshold {
		return p.processSequential(contacts, horizonStart, horizonEnd, populationSize)
	}
	return p.processParallel(ctx, contacts, horizonStart, horizonEnd, populationSize, batchSize)
}

func (p *Processor) processSequential(contacts []domain.Contact, horizonStart, horizonEnd time.Time, populationSize int) []domain.ScheduleResult {
	results := make([]domain.ScheduleResult, len(contacts))
	for i, c := range contacts {
		results[i] = scheduling.Schedule(p.rules, c, horizonStart, horizonEnd, populationSize, i)
	}
	return results
}

func (p *Processor) processParallel(ctx context.Context, contacts []domain.Contact, horizonStart, horizonEnd time.Time, populationSize, batchSize int) []domain.ScheduleResult {
	if batchSize <= 0 {
		batchSize = 10
	}
	sem := semaphore.NewWeighted(int64(batchSize))
	results := make([]domain.ScheduleResult, len(contacts))

	var wg sync.WaitGroup
	for i, c := range contacts {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled: leave remaining slots unset. The returned
			// slice keeps its full length; the slots of contacts that were
			// never started hold zero values.
			p.log.WithField("error", err.Error()).Warn("batch processor cancelled mid-fanout")
			break
		}
		wg.Add(1)
		go func(i int, c domain.Contact) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = scheduling.Schedule(p.rules, c, horizonStart, horizonEnd, populationSize, i)
		}(i, c)
	}
	wg.Wait()

	return results
}
