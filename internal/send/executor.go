// Package send implements the Send Executor (C6): bounded-concurrency
// dispatch of pending tracking rows through an external email provider,
// following the teacher's broadcast.messageSender fan-out pattern and
// its queue package's per-integration circuit breaker.
package send

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sunridge-benefits/enroll-scheduler/internal/config"
	"github.com/sunridge-benefits/enroll-scheduler/internal/domain"
	"github.com/sunridge-benefits/enroll-scheduler/pkg/logger"
	"github.com/sunridge-benefits/enroll-scheduler/pkg/tracing"
)

// maxErrorLen bounds a persisted error message, per §4.6.
const maxErrorLen = 500

// DefaultConcurrency is the internal concurrency ceiling for parallel
// chunk processing, per §4.6/§5.
const DefaultConcurrency = 10

// Contact is the narrow view of a contact the executor needs to render
// and address an email; it is satisfied by domain.Contact.
type Contact struct {
	ID            string
	FirstName     string
	LastName      string
	Email         string
	State         string
	BirthDate     *time.Time
	EffectiveDate *time.Time
}

// RenderedEmail is the templater's output for one (emailType, contact, date).
type RenderedEmail struct {
	Subject  string
	TextBody string
	HTMLBody string
}

// SendResult is the provider's response to one send attempt.
type SendResult struct {
	Accepted  bool
	MessageID string
	Error     string
}

// ContactLookup is the external contact-lookup collaborator (§6).
type ContactLookup interface {
	GetContact(ctx context.Context, orgID, contactID string) (Contact, error)
}

// Templater is the external email templater collaborator (§6).
type Templater interface {
	Render(ctx context.Context, emailType domain.EmailType, contact Contact, date time.Time, wantHTML bool) (RenderedEmail, error)
}

// Provider is the external email provider collaborator (§6).
type Provider interface {
	Send(ctx context.Context, fromAddr, fromName, to, subject, text, html string, dryRun bool) (SendResult, error)
}

// TrackingStore is the narrow subset of internal/store.Store the executor
// needs to pull pending work and record outcomes.
type TrackingStore interface {
	NextPending(ctx context.Context, batchID string, limit int) ([]domain.TrackingRow, error)
	NextFailed(ctx context.Context, batchID string, limit int) ([]domain.TrackingRow, error)
	MarkSent(ctx context.Context, id int64, providerMessageID string, now time.Time) error
	MarkFailed(ctx context.Context, id int64, sendErr string, now time.Time) error
}

// ChunkReport summarizes the outcome of one processChunk/retryFailed call.
type ChunkReport struct {
	Processed int
	Sent      int
	Failed    int
	Remaining int
	Errors    []string
}

// Executor dispatches pending tracking rows for one organization.
type Executor struct {
	store       TrackingStore
	contacts    ContactLookup
	templater   Templater
	provider    Provider
	breaker     *IntegrationCircuitBreaker
	send        config.SendConfig
	fromAddr    string
	fromName    string
	concurrency int
	orgID       string
	log         logger.Logger
	now         func() time.Time
}

// New constructs an Executor for a single organization's store.
func New(orgID string, store TrackingStore, contacts ContactLookup, templater Templater, provider Provider, sendCfg config.SendConfig, fromAddr, fromName string, log logger.Logger) *Executor {
	return &Executor{
		store:       store,
		contacts:    contacts,
		templater:   templater,
		provider:    provider,
		breaker:     NewIntegrationCircuitBreaker(DefaultCircuitBreakerConfig()),
		send:        sendCfg,
		fromAddr:    fromAddr,
		fromName:    fromName,
		concurrency: DefaultConcurrency,
		orgID:       orgID,
		log:         log,
		now:         time.Now,
	}
}

// ProcessChunk fetches up to chunkSize pending rows and dispatches them
// with bounded concurrency, per §4.6. chunkSize is clamped to [1,100].
func (e *Executor) ProcessChunk(ctx context.Context, batchID string, chunkSize int) (ChunkReport, error) {
	return e.run(ctx, "ProcessChunk", batchID, chunkSize, e.store.NextPending)
}

// RetryFailed is identical to ProcessChunk but selects failed rows and
// does not reset attemptCount (MarkFailed/MarkSent already increment it
// on every attempt, retried or not).
func (e *Executor) RetryFailed(ctx context.Context, batchID string, chunkSize int) (ChunkReport, error) {
	return e.run(ctx, "RetryFailed", batchID, chunkSize, e.store.NextFailed)
}

func (e *Executor) run(ctx context.Context, methodName, batchID string, chunkSize int, fetch func(context.Context, string, int) ([]domain.TrackingRow, error)) (ChunkReport, error) {
	ctx, span := tracing.StartServiceSpan(ctx, "Executor", methodName)
	defer span.End()
	tracing.AddAttribute(ctx, "batch_id", batchID)
	tracing.AddAttribute(ctx, "org_id", e.orgID)
	tracing.AddAttribute(ctx, "chunk_size", chunkSize)

	if chunkSize < 1 {
		chunkSize = 1
	}
	if chunkSize > 100 {
		chunkSize = 100
	}

	rows, err := fetch(ctx, batchID, chunkSize)
	if err != nil {
		tracing.MarkSpanError(ctx, err)
		return ChunkReport{}, domain.NewStoreError(e.orgID, batchID, "failed to fetch rows for chunk", err)
	}
	tracing.AddAttribute(ctx, "rows_fetched", len(rows))

	report := ChunkReport{}
	if len(rows) == 0 {
		return report, nil
	}

	sem := semaphore.NewWeighted(int64(e.concurrency))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, row := range rows {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			report.Errors = domain.AppendCappedError(report.Errors, fmt.Sprintf("row %d: cancelled before dispatch", row.ID))
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(row domain.TrackingRow) {
			defer wg.Done()
			defer sem.Release(1)

			sent, errMsg := e.dispatchOne(ctx, row)

			mu.Lock()
			report.Processed++
			if sent {
				report.Sent++
			} else {
				report.Failed++
			}
			if errMsg != "" {
				report.Errors = domain.AppendCappedError(report.Errors, errMsg)
			}
			mu.Unlock()
		}(row)
	}
	wg.Wait()

	remaining, err := e.store.NextPending(ctx, batchID, 1)
	if err == nil {
		if len(remaining) > 0 {
			report.Remaining = 1
		}
	}

	return report, nil
}

// dispatchOne renders and sends a single row, marking it sent or failed.
// It never returns an error: every failure is recorded on the row itself,
// per §4.6's failure semantics.
func (e *Executor) dispatchOne(ctx context.Context, row domain.TrackingRow) (sent bool, errMsg string) {
	ctx, span := tracing.StartServiceSpan(ctx, "Executor", "dispatchOne")
	defer span.End()
	tracing.AddAttribute(ctx, "row_id", row.ID)
	tracing.AddAttribute(ctx, "email_type", string(row.EmailType))
	tracing.AddAttribute(ctx, "send_mode", string(row.SendMode))

	contact, err := e.contacts.GetContact(ctx, e.orgID, row.ContactID)
	if err != nil {
		tracing.MarkSpanError(ctx, err)
		e.fail(ctx, row, fmt.Sprintf("contact lookup error: %v", err))
		return false, fmt.Sprintf("row %d: contact lookup error", row.ID)
	}

	rendered, err := e.templater.Render(ctx, row.EmailType, contact, row.ScheduledDate, true)
	if err != nil {
		tracing.MarkSpanError(ctx, err)
		e.fail(ctx, row, fmt.Sprintf("render error: %v", err))
		return false, fmt.Sprintf("row %d: render error", row.ID)
	}

	to := contact.Email
	if row.SendMode == domain.ModeTest {
		to = row.TestRecipient
	}

	dryRun := !e.sendingEnabled(row.SendMode)

	if e.breaker.IsOpen(e.orgID) {
		err := fmt.Errorf("provider circuit open, deferring send")
		tracing.MarkSpanError(ctx, err)
		e.fail(ctx, row, err.Error())
		return false, fmt.Sprintf("row %d: circuit open", row.ID)
	}

	result, err := e.provider.Send(ctx, e.fromAddr, e.fromName, to, rendered.Subject, rendered.TextBody, rendered.HTMLBody, dryRun)
	if err != nil || !result.Accepted {
		msg := result.Error
		if err != nil {
			msg = err.Error()
		}
		tracing.MarkSpanError(ctx, fmt.Errorf("%s", msg))
		e.breaker.RecordFailure(e.orgID)
		e.fail(ctx, row, msg)
		return false, fmt.Sprintf("row %d: provider error", row.ID)
	}

	e.breaker.RecordSuccess(e.orgID)
	tracing.AddAttribute(ctx, "provider_message_id", result.MessageID)
	if err := e.store.MarkSent(ctx, row.ID, result.MessageID, e.now()); err != nil {
		tracing.MarkSpanError(ctx, err)
		e.log.WithField("error", err.Error()).Error("failed to mark row sent")
		return false, fmt.Sprintf("row %d: store error marking sent", row.ID)
	}
	return true, ""
}

func (e *Executor) fail(ctx context.Context, row domain.TrackingRow, msg string) {
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	if err := e.store.MarkFailed(ctx, row.ID, msg, e.now()); err != nil {
		e.log.WithField("error", err.Error()).Error("failed to mark row failed")
	}
}

// sendingEnabled consults the process-wide policy gate for a send mode.
func (e *Executor) sendingEnabled(mode domain.SendMode) bool {
	if e.send.DryRun {
		return false
	}
	if mode == domain.ModeTest {
		return e.send.TestEmailSendingEnabled
	}
	return e.send.ProductionEmailSendingEnabled
}
