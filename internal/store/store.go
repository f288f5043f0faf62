// Package store implements the Tracking Store (C5): the durable,
// per-organization record of every planned and attempted send, and the
// queries the Batch Send Pipeline needs to resume work after a crash.
// Queries are built with squirrel the way the teacher's repository
// layer builds its Postgres queries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/sunridge-benefits/enroll-scheduler/internal/domain"
	"github.com/sunridge-benefits/enroll-scheduler/pkg/logger"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store is the Tracking Store for a single organization's database.
type Store struct {
	db  *sql.DB
	log logger.Logger
}

// New returns a Store bound to an already-opened organization pool.
func New(db *sql.DB, log logger.Logger) *Store {
	return &Store{db: db, log: log}
}

// InitBatch creates tracking rows for a selection of scheduled events and
// returns the new batch id. For scope=bulk, one row per (contact,
// emailType) pair is created dated today, ignoring the scheduling
// engine's output entirely. For every other scope, rows come from the
// already-computed Scheduled events in results, filtered to the
// requested email types (nil/empty means all types) and to dates
// falling inside the scope's window relative to now.
func (s *Store) InitBatch(ctx context.Context, contactIDs []string, results []domain.ScheduleResult, emailTypes []domain.EmailType, scope domain.BatchScope, mode domain.SendMode, testRecipient string, now time.Time) (string, error) {
	batchID := domain.NewBatchID(false, now)
	if err := s.insertBatch(ctx, batchID, contactIDs, results, emailTypes, scope, mode, testRecipient, now); err != nil {
		return "", err
	}
	return batchID, nil
}

// InitSingleEmailBatch creates exactly one row per unique contact, always
// dated today, with a batch_single_… id.
func (s *Store) InitSingleEmailBatch(ctx context.Context, contactIDs []string, emailType domain.EmailType, mode domain.SendMode, testRecipient string, now time.Time) (string, error) {
	batchID := domain.NewBatchID(true, now)

	seen := make(map[string]bool, len(contactIDs))
	insert := psql.Insert("send_tracking").Columns(
		"contact_id", "email_type", "scheduled_date", "send_status", "send_mode",
		"test_recipient", "batch_id", "created_at", "updated_at",
	)
	count := 0
	for _, id := range contactIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		insert = insert.Values(id, emailType, now, domain.SendPending, mode, testRecipient, batchID, now, now)
		count++
	}
	if count == 0 {
		return "", domain.NewStoreError("", batchID, "no contacts to initialize", nil)
	}

	if err := s.exec(ctx, insert); err != nil {
		return "", domain.NewStoreError("", batchID, "failed to init single-email batch", err)
	}
	return batchID, nil
}

func (s *Store) insertBatch(ctx context.Context, batchID string, contactIDs []string, results []domain.ScheduleResult, emailTypes []domain.EmailType, scope domain.BatchScope, mode domain.SendMode, testRecipient string, now time.Time) error {
	insert := psql.Insert("send_tracking").Columns(
		"contact_id", "email_type", "scheduled_date", "send_status", "send_mode",
		"test_recipient", "batch_id", "created_at", "updated_at",
	)
	rows := 0

	if scope == domain.ScopeBulk {
		today := dateOnly(now)
		for _, contactID := range contactIDs {
			for _, typ := range typesOrAll(emailTypes) {
				insert = insert.Values(contactID, typ, today, domain.SendPending, mode, testRecipient, batchID, now, now)
				rows++
			}
		}
	} else {
		wanted := toSet(emailTypes)
		for _, result := range results {
			for _, ev := range result.Scheduled {
				if ev.Status != domain.EventScheduled {
					continue
				}
				if len(wanted) > 0 && !wanted[ev.Type] {
					continue
				}
				if !inScope(ev.Date, scope, now) {
					continue
				}
				insert = insert.Values(result.ContactID, ev.Type, ev.Date, domain.SendPending, mode, testRecipient, batchID, now, now)
				rows++
			}
		}
	}

	if rows == 0 {
		return domain.NewStoreError("", batchID, "no matching events to initialize", nil)
	}

	if err := s.exec(ctx, insert); err != nil {
		return domain.NewStoreError("", batchID, "failed to init batch", err)
	}
	return nil
}

// NextPending returns up to limit pending rows for a batch, ordered by
// scheduledDate ascending.
func (s *Store) NextPending(ctx context.Context, batchID string, limit int) ([]domain.TrackingRow, error) {
	return s.listByStatus(ctx, batchID, domain.SendPending, limit)
}

// NextFailed returns up to limit failed rows for a batch, for retry.
func (s *Store) NextFailed(ctx context.Context, batchID string, limit int) ([]domain.TrackingRow, error) {
	return s.listByStatus(ctx, batchID, domain.SendFailed, limit)
}

func (s *Store) listByStatus(ctx context.Context, batchID string, status domain.SendStatus, limit int) ([]domain.TrackingRow, error) {
	query := psql.Select(
		"id", "contact_id", "email_type", "scheduled_date", "send_status", "send_mode",
		"test_recipient", "attempt_count", "last_attempt_at", "last_error", "batch_id",
		"provider_message_id", "delivery_status", "status_checked_at", "status_details",
		"created_at", "updated_at",
	).From("send_tracking").
		Where(sq.Eq{"batch_id": batchID, "send_status": status}).
		OrderBy("scheduled_date ASC").
		Limit(uint64(limit))

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, domain.NewStoreError("", batchID, "failed to build query", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, domain.NewStoreError("", batchID, "failed to query tracking rows", err)
	}
	defer rows.Close()

	var out []domain.TrackingRow
	for rows.Next() {
		row, err := scanTrackingRow(rows)
		if err != nil {
			return nil, domain.NewStoreError("", batchID, "failed to scan tracking row", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// MarkSent atomically marks a row sent, incrementing attemptCount and
// setting lastAttemptAt.
func (s *Store) MarkSent(ctx context.Context, id int64, providerMessageID string, now time.Time) error {
	update := psql.Update("send_tracking").
		Set("send_status", domain.SendSent).
		Set("provider_message_id", providerMessageID).
		Set("attempt_count", sq.Expr("attempt_count + 1")).
		Set("last_attempt_at", now).
		Set("updated_at", now).
		Where(sq.Eq{"id": id})

	if err := s.exec(ctx, update); err != nil {
		return domain.NewStoreError("", "", fmt.Sprintf("failed to mark row %d sent", id), err)
	}
	return nil
}

// MarkFailed atomically marks a row failed, recording the error and
// incrementing attemptCount.
func (s *Store) MarkFailed(ctx context.Context, id int64, sendErr string, now time.Time) error {
	update := psql.Update("send_tracking").
		Set("send_status", domain.SendFailed).
		Set("last_error", sendErr).
		Set("attempt_count", sq.Expr("attempt_count + 1")).
		Set("last_attempt_at", now).
		Set("updated_at", now).
		Where(sq.Eq{"id": id})

	if err := s.exec(ctx, update); err != nil {
		return domain.NewStoreError("", "", fmt.Sprintf("failed to mark row %d failed", id), err)
	}
	return nil
}

// UpdateDeliveryStatus records provider-reported delivery feedback
// against a row, used by the Status Reconciler (C7).
func (s *Store) UpdateDeliveryStatus(ctx context.Context, id int64, status, details string, checkedAt time.Time) error {
	update := psql.Update("send_tracking").
		Set("delivery_status", status).
		Set("status_details", details).
		Set("status_checked_at", checkedAt).
		Set("updated_at", checkedAt).
		Where(sq.Eq{"id": id})

	if err := s.exec(ctx, update); err != nil {
		return domain.NewStoreError("", "", fmt.Sprintf("failed to update delivery status for row %d", id), err)
	}
	return nil
}

// UpdateSendStatus transitions a row's sendStatus, used by the Status
// Reconciler (C7) to apply a mapped provider or webhook outcome.
func (s *Store) UpdateSendStatus(ctx context.Context, id int64, status domain.SendStatus, checkedAt time.Time) error {
	update := psql.Update("send_tracking").
		Set("send_status", status).
		Set("updated_at", checkedAt).
		Where(sq.Eq{"id": id})

	if err := s.exec(ctx, update); err != nil {
		return domain.NewStoreError("", "", fmt.Sprintf("failed to update send status for row %d", id), err)
	}
	return nil
}

// RowsAwaitingStatus selects up to limit rows with a providerMessageId
// set, sendStatus in {accepted, deferred, sent}, and either no prior
// status check or one older than 15 minutes, per §4.7's pull path.
// batchID filters to one batch when non-empty.
func (s *Store) RowsAwaitingStatus(ctx context.Context, limit int, batchID string) ([]domain.TrackingRow, error) {
	cutoff := time.Now().Add(-15 * time.Minute)
	where := sq.And{
		sq.NotEq{"provider_message_id": ""},
		sq.Eq{"send_status": []domain.SendStatus{domain.SendAccepted, domain.SendDeferred, domain.SendSent}},
		sq.Or{
			sq.Eq{"status_checked_at": nil},
			sq.Lt{"status_checked_at": cutoff},
		},
	}
	if batchID != "" {
		where = append(where, sq.Eq{"batch_id": batchID})
	}

	query := psql.Select(
		"id", "contact_id", "email_type", "scheduled_date", "send_status", "send_mode",
		"test_recipient", "attempt_count", "last_attempt_at", "last_error", "batch_id",
		"provider_message_id", "delivery_status", "status_checked_at", "status_details",
		"created_at", "updated_at",
	).From("send_tracking").Where(where).Limit(uint64(limit))

	return s.queryRows(ctx, query)
}

// RowsSentBefore selects rows still in sendStatus=sent whose
// lastAttemptAt is older than cutoff, for the heuristic sent→delivered
// upgrade.
func (s *Store) RowsSentBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.TrackingRow, error) {
	query := psql.Select(
		"id", "contact_id", "email_type", "scheduled_date", "send_status", "send_mode",
		"test_recipient", "attempt_count", "last_attempt_at", "last_error", "batch_id",
		"provider_message_id", "delivery_status", "status_checked_at", "status_details",
		"created_at", "updated_at",
	).From("send_tracking").
		Where(sq.And{sq.Eq{"send_status": domain.SendSent}, sq.Lt{"last_attempt_at": cutoff}}).
		Limit(uint64(limit))

	return s.queryRows(ctx, query)
}

func (s *Store) queryRows(ctx context.Context, query sq.SelectBuilder) ([]domain.TrackingRow, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, domain.NewStoreError("", "", "failed to build query", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, domain.NewStoreError("", "", "failed to query tracking rows", err)
	}
	defer rows.Close()

	var out []domain.TrackingRow
	for rows.Next() {
		row, err := scanTrackingRow(rows)
		if err != nil {
			return nil, domain.NewStoreError("", "", "failed to scan tracking row", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// FindByProviderMessageID looks up the tracking row a webhook callback
// refers to.
func (s *Store) FindByProviderMessageID(ctx context.Context, providerMessageID string) (domain.TrackingRow, error) {
	query := psql.Select(
		"id", "contact_id", "email_type", "scheduled_date", "send_status", "send_mode",
		"test_recipient", "attempt_count", "last_attempt_at", "last_error", "batch_id",
		"provider_message_id", "delivery_status", "status_checked_at", "status_details",
		"created_at", "updated_at",
	).From("send_tracking").Where(sq.Eq{"provider_message_id": providerMessageID}).Limit(1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return domain.TrackingRow{}, domain.NewStoreError("", "", "failed to build query", err)
	}

	row := s.db.QueryRowContext(ctx, sqlStr, args...)
	tr, err := scanTrackingRowSingle(row)
	if err == sql.ErrNoRows {
		return domain.TrackingRow{}, &domain.ErrNotFound{Kind: "tracking row", ID: providerMessageID}
	}
	if err != nil {
		return domain.TrackingRow{}, domain.NewStoreError("", "", "failed to scan tracking row", err)
	}
	return tr, nil
}

// BatchStatus returns aggregate counts for a batch plus completion and
// delivery percentages.
func (s *Store) BatchStatus(ctx context.Context, batchID string) (domain.BatchCounts, error) {
	query := psql.Select(
		"send_status", "COUNT(*)",
	).From("send_tracking").Where(sq.Eq{"batch_id": batchID}).GroupBy("send_status")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return domain.BatchCounts{}, domain.NewStoreError("", batchID, "failed to build query", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return domain.BatchCounts{}, domain.NewStoreError("", batchID, "failed to query batch status", err)
	}
	defer rows.Close()

	counts := domain.BatchCounts{BatchID: batchID}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return domain.BatchCounts{}, domain.NewStoreError("", batchID, "failed to scan batch status row", err)
		}
		counts.Total += n
		switch domain.SendStatus(status) {
		case domain.SendPending:
			counts.Pending = n
		case domain.SendProcessing, domain.SendAccepted:
			counts.Processing += n
		case domain.SendDeferred:
			counts.Deferred = n
		case domain.SendSent:
			counts.Sent = n
		case domain.SendDelivered:
			counts.Delivered = n
		case domain.SendFailed:
			counts.Failed = n
		case domain.SendBounced:
			counts.Bounced = n
		case domain.SendDropped:
			counts.Dropped = n
		case domain.SendSkipped:
			counts.Skipped = n
		}
	}
	if err := rows.Err(); err != nil {
		return domain.BatchCounts{}, domain.NewStoreError("", batchID, "failed to iterate batch status", err)
	}

	if counts.Total > 0 {
		counts.CompletionPercentage = float64(counts.Total-counts.Pending-counts.Processing-counts.Deferred) / float64(counts.Total) * 100
		counts.DeliveryPercentage = float64(counts.Delivered) / float64(counts.Total) * 100
	}
	return counts, nil
}

// ListBatches returns aggregate counts for every batch in this
// organization's database, most recent first, optionally filtered to a
// send status that must be present in the batch.
func (s *Store) ListBatches(ctx context.Context, limit int, statusFilter string) ([]domain.BatchCounts, error) {
	query := psql.Select("batch_id").From("send_tracking").
		GroupBy("batch_id").OrderBy("MAX(created_at) DESC").Limit(uint64(limit))
	if statusFilter != "" {
		query = query.Where(sq.Eq{"send_status": statusFilter})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, domain.NewStoreError("", "", "failed to build query", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, domain.NewStoreError("", "", "failed to list batches", err)
	}
	var batchIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, domain.NewStoreError("", "", "failed to scan batch id", err)
		}
		batchIDs = append(batchIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("", "", "failed to iterate batch ids", err)
	}

	out := make([]domain.BatchCounts, 0, len(batchIDs))
	for _, id := range batchIDs {
		counts, err := s.BatchStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, counts)
	}
	return out, nil
}

func (s *Store) exec(ctx context.Context, builder sq.Sqlizer) error {
	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func typesOrAll(types []domain.EmailType) []domain.EmailType {
	if len(types) > 0 {
		return types
	}
	return []domain.EmailType{domain.EmailTypeBirthday, domain.EmailTypeEffectiveDate, domain.EmailTypeAEP, domain.EmailTypePostWindow}
}

func toSet(types []domain.EmailType) map[domain.EmailType]bool {
	set := make(map[domain.EmailType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func inScope(d time.Time, scope domain.BatchScope, now time.Time) bool {
	today := dateOnly(now)
	d = dateOnly(d)
	switch scope {
	case domain.ScopeToday:
		return d.Equal(today)
	case domain.ScopeNext7Days:
		return !d.Before(today) && !d.After(today.AddDate(0, 0, 7))
	case domain.ScopeNext30Days:
		return !d.Before(today) && !d.After(today.AddDate(0, 0, 30))
	case domain.ScopeNext90Days:
		return !d.Before(today) && !d.After(today.AddDate(0, 0, 90))
	case domain.ScopeAll:
		return true
	default:
		return true
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrackingRow(rows *sql.Rows) (domain.TrackingRow, error) {
	return scanTrackingRowSingle(rows)
}

func scanTrackingRowSingle(scanner rowScanner) (domain.TrackingRow, error) {
	var row domain.TrackingRow
	var emailType string
	var sendStatus string
	var sendMode string
	var lastAttemptAt, statusCheckedAt sql.NullTime

	err := scanner.Scan(
		&row.ID, &row.ContactID, &emailType, &row.ScheduledDate, &sendStatus, &sendMode,
		&row.TestRecipient, &row.AttemptCount, &lastAttemptAt, &row.LastError, &row.BatchID,
		&row.ProviderMessageID, &row.DeliveryStatus, &statusCheckedAt, &row.StatusDetails,
		&row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		return domain.TrackingRow{}, err
	}

	row.EmailType = domain.EmailType(emailType)
	row.SendStatus = domain.SendStatus(sendStatus)
	row.SendMode = domain.SendMode(sendMode)
	if lastAttemptAt.Valid {
		row.LastAttemptAt = &lastAttemptAt.Time
	}
	if statusCheckedAt.Valid {
		row.StatusCheckedAt = &statusCheckedAt.Time
	}
	return row, nil
}
