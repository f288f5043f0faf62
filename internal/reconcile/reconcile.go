// Package reconcile implements the Status Reconciler (C7): the pull
// (provider status query) and push (webhook) paths that bring tracking
// rows to their terminal delivery state, following the teacher's
// webhook-signature verification style from pkg/crypto and
// service/webhook_delivery_worker.go.
package reconcile

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sunridge-benefits/enroll-scheduler/internal/domain"
	"github.com/sunridge-benefits/enroll-scheduler/pkg/logger"
	"github.com/sunridge-benefits/enroll-scheduler/pkg/tracing"
)

// staleStatusCheckInterval is how long a status check result is
// considered fresh before the pull path re-queries the provider.
const staleStatusCheckInterval = 15 * time.Minute

// sentWithoutSignalWindow is how long a row may sit in sendStatus=sent
// with no provider signal before the heuristic upgrade applies.
const sentWithoutSignalWindow = 5 * time.Minute

// pullEligibleStatuses are the sendStatus values the pull path considers.
var pullEligibleStatuses = map[domain.SendStatus]bool{
	domain.SendAccepted: true,
	domain.SendDeferred: true,
	domain.SendSent:     true,
}

// providerStatusMap is the fixed provider→internal status table for the
// pull path, per §4.7.
var providerStatusMap = map[string]domain.SendStatus{
	"delivered": domain.SendDelivered,
	"processed": domain.SendSent,
	"accepted":  domain.SendSent,
	"sent":      domain.SendSent,
	"bounce":    domain.SendBounced,
	"bounced":   domain.SendBounced,
	"deferred":  domain.SendDeferred,
	"dropped":   domain.SendDropped,
	"failed":    domain.SendFailed,
	"processing": domain.SendProcessing,
}

// webhookEventMap is the fixed event→internal status table for the push
// path, per §4.7.
var webhookEventMap = map[string]domain.SendStatus{
	"delivered": domain.SendDelivered,
	"open":      domain.SendDelivered,
	"click":     domain.SendDelivered,
	"bounce":    domain.SendBounced,
	"dropped":   domain.SendDropped,
	"deferred":  domain.SendDeferred,
	"processed": domain.SendSent,
	"sent":      domain.SendSent,
}

// Provider is the narrow external-provider collaborator the pull path
// needs.
type Provider interface {
	QueryMessage(ctx context.Context, messageID string) (status, raw string, err error)
}

// PullStore is the subset of internal/store.Store the pull path needs,
// restricted to one organization's database.
type PullStore interface {
	RowsAwaitingStatus(ctx context.Context, limit int, batchID string) ([]domain.TrackingRow, error)
	RowsSentBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.TrackingRow, error)
	UpdateDeliveryStatus(ctx context.Context, id int64, status, details string, checkedAt time.Time) error
	UpdateSendStatus(ctx context.Context, id int64, status domain.SendStatus, checkedAt time.Time) error
	FindByProviderMessageID(ctx context.Context, providerMessageID string) (domain.TrackingRow, error)
}

// Reconciler runs the pull and push reconciliation paths for one
// organization's tracking store.
type Reconciler struct {
	store    PullStore
	provider Provider
	log      logger.Logger
	now      func() time.Time
}

// New constructs a Reconciler bound to one organization's store.
func New(store PullStore, provider Provider, log logger.Logger) *Reconciler {
	return &Reconciler{store: store, provider: provider, log: log, now: time.Now}
}

// PullReport summarizes one Pull invocation.
type PullReport struct {
	Checked  int
	Upgraded int
	Errors   []string
}

// Pull queries the provider for every row awaiting a status refresh and
// applies the heuristic sent→delivered upgrade for stale rows with no
// definitive answer.
func (r *Reconciler) Pull(ctx context.Context, batchID string, limit int) (PullReport, error) {
	ctx, span := tracing.StartServiceSpan(ctx, "Reconciler", "Pull")
	defer span.End()
	tracing.AddAttribute(ctx, "batch_id", batchID)
	tracing.AddAttribute(ctx, "limit", limit)

	report := PullReport{}

	rows, err := r.store.RowsAwaitingStatus(ctx, limit, batchID)
	if err != nil {
		tracing.MarkSpanError(ctx, err)
		return report, domain.NewStoreError("", batchID, "failed to fetch rows awaiting status", err)
	}

	for _, row := range rows {
		if !pullEligibleStatuses[row.SendStatus] || row.ProviderMessageID == "" {
			continue
		}

		status, raw, err := r.provider.QueryMessage(ctx, row.ProviderMessageID)
		if err != nil {
			report.Errors = domain.AppendCappedError(report.Errors, fmt.Sprintf("row %d: %v", row.ID, err))
			continue
		}

		mapped, ok := providerStatusMap[status]
		if !ok {
			report.Errors = domain.AppendCappedError(report.Errors, fmt.Sprintf("row %d: unknown provider status %q", row.ID, status))
			continue
		}

		now := r.now()
		if err := r.store.UpdateDeliveryStatus(ctx, row.ID, string(mapped), raw, now); err != nil {
			report.Errors = domain.AppendCappedError(report.Errors, fmt.Sprintf("row %d: %v", row.ID, err))
			continue
		}
		if err := r.store.UpdateSendStatus(ctx, row.ID, mapped, now); err != nil {
			report.Errors = domain.AppendCappedError(report.Errors, fmt.Sprintf("row %d: %v", row.ID, err))
			continue
		}
		report.Checked++
	}

	stale, err := r.store.RowsSentBefore(ctx, r.now().Add(-sentWithoutSignalWindow), limit)
	if err != nil {
		tracing.MarkSpanError(ctx, err)
		return report, domain.NewStoreError("", batchID, "failed to fetch stale sent rows", err)
	}
	for _, row := range stale {
		if row.SendStatus != domain.SendSent {
			continue
		}
		if err := r.store.UpdateSendStatus(ctx, row.ID, domain.SendDelivered, r.now()); err != nil {
			report.Errors = domain.AppendCappedError(report.Errors, fmt.Sprintf("row %d: %v", row.ID, err))
			continue
		}
		report.Upgraded++
	}

	tracing.AddAttribute(ctx, "checked", report.Checked)
	tracing.AddAttribute(ctx, "upgraded", report.Upgraded)
	return report, nil
}

// webhookEvent is the subset of a provider webhook event this reconciler
// reads. Fields are parsed with gjson so unrecognized/missing fields in
// the provider's payload never fail the whole batch.
type webhookEvent struct {
	messageID string
	event     string
	timestamp int64
}

// VerifyWebhookSignature recomputes the HMAC-SHA256 of timestamp||payload
// against secret, base64-encodes it, and compares it to the provided
// signature in constant time, per §4.7 and §6 ("Signature header
// HMAC-SHA256, base64").
func VerifyWebhookSignature(secret, timestamp string, payload []byte, providedSignature string) bool {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp))
	h.Write(payload)
	expected := base64.StdEncoding.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(providedSignature))
}

// PushReport summarizes one ApplyWebhook invocation.
type PushReport struct {
	Applied int
	Skipped int
	Errors  []string
}

// ApplyWebhook parses a provider webhook payload (an array of events),
// keeps only the latest event per provider message id, and applies the
// resulting status transitions. Unrecognized events are skipped, not
// fatal to the batch.
func (r *Reconciler) ApplyWebhook(ctx context.Context, payload []byte) (PushReport, error) {
	ctx, span := tracing.StartServiceSpan(ctx, "Reconciler", "ApplyWebhook")
	defer span.End()
	tracing.AddAttribute(ctx, "payload_bytes", len(payload))

	events, err := parseWebhookEvents(payload)
	if err != nil {
		tracing.MarkSpanError(ctx, err)
		return PushReport{}, domain.NewProviderError("", "failed to parse webhook payload", err)
	}
	report, err := r.applyEvents(ctx, events)
	if err != nil {
		tracing.MarkSpanError(ctx, err)
	}
	tracing.AddAttribute(ctx, "applied", report.Applied)
	tracing.AddAttribute(ctx, "skipped", report.Skipped)
	return report, err
}

// applyEvents keeps only the latest event per provider message id and
// applies the resulting status transitions, shared by ApplyWebhook (one
// known organization) and Dispatcher.Dispatch (org resolved per event).
func (r *Reconciler) applyEvents(ctx context.Context, events []webhookEvent) (PushReport, error) {
	report := PushReport{}

	latest := make(map[string]webhookEvent, len(events))
	for _, ev := range events {
		if ev.messageID == "" {
			continue
		}
		existing, ok := latest[ev.messageID]
		if !ok || ev.timestamp >= existing.timestamp {
			latest[ev.messageID] = ev
		}
	}

	for messageID, ev := range latest {
		mapped, ok := webhookEventMap[ev.event]
		if !ok {
			report.Skipped++
			continue
		}

		row, err := r.store.FindByProviderMessageID(ctx, messageID)
		if err != nil {
			report.Errors = domain.AppendCappedError(report.Errors, fmt.Sprintf("message %s: %v", messageID, err))
			continue
		}

		now := r.now()
		if err := r.store.UpdateDeliveryStatus(ctx, row.ID, string(mapped), ev.event, now); err != nil {
			report.Errors = domain.AppendCappedError(report.Errors, fmt.Sprintf("message %s: %v", messageID, err))
			continue
		}
		if err := r.store.UpdateSendStatus(ctx, row.ID, mapped, now); err != nil {
			report.Errors = domain.AppendCappedError(report.Errors, fmt.Sprintf("message %s: %v", messageID, err))
			continue
		}
		report.Applied++
	}

	return report, nil
}

func parseWebhookEvents(payload []byte) ([]webhookEvent, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("invalid JSON payload")
	}

	result := gjson.ParseBytes(payload)
	if !result.IsArray() {
		return nil, fmt.Errorf("expected a JSON array of events")
	}

	var events []webhookEvent
	var parseErr error
	result.ForEach(func(_, value gjson.Result) bool {
		events = append(events, webhookEvent{
			messageID: value.Get("sg_message_id").String(),
			event:     value.Get("event").String(),
			timestamp: value.Get("timestamp").Int(),
		})
		return true
	})
	return events, parseErr
}
