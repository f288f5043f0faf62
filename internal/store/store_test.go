package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunridge-benefits/enroll-scheduler/internal/domain"
	"github.com/sunridge-benefits/enroll-scheduler/pkg/logger"
)

func TestInitBatchBulkScope(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO send_tracking").WillReturnResult(sqlmock.NewResult(1, 4))

	s := New(db, logger.NewMockLogger())
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	batchID, err := s.InitBatch(context.Background(), []string{"1", "2"}, nil,
		[]domain.EmailType{domain.EmailTypeBirthday, domain.EmailTypeAEP}, domain.ScopeBulk, domain.ModeTest, "test@example.com", now)

	require.NoError(t, err)
	assert.True(t, domain.IsValidBatchID(batchID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitBatchFiltersByScopeAndType(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO send_tracking").WillReturnResult(sqlmock.NewResult(1, 1))

	s := New(db, logger.NewMockLogger())
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	results := []domain.ScheduleResult{
		{
			ContactID: "1",
			Scheduled: []domain.EmailEvent{
				{Type: domain.EmailTypeBirthday, Date: now.AddDate(0, 0, 3), Status: domain.EventScheduled},
				{Type: domain.EmailTypeAEP, Date: now.AddDate(0, 0, 60), Status: domain.EventScheduled},
			},
		},
	}

	batchID, err := s.InitBatch(context.Background(), nil, results,
		[]domain.EmailType{domain.EmailTypeBirthday}, domain.ScopeNext7Days, domain.ModeProduction, "", now)

	require.NoError(t, err)
	assert.True(t, domain.IsValidBatchID(batchID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitBatchErrorsWhenNothingMatches(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, logger.NewMockLogger())
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err = s.InitBatch(context.Background(), nil, nil, nil, domain.ScopeToday, domain.ModeTest, "", now)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrCodeStore))
}

func TestInitSingleEmailBatchDedupesContacts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO send_tracking").WillReturnResult(sqlmock.NewResult(1, 2))

	s := New(db, logger.NewMockLogger())
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	batchID, err := s.InitSingleEmailBatch(context.Background(), []string{"1", "1", "2"}, domain.EmailTypeAEP, domain.ModeTest, "test@example.com", now)

	require.NoError(t, err)
	assert.Contains(t, batchID, "batch_single_")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextPendingOrdersByScheduledDate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "contact_id", "email_type", "scheduled_date", "send_status", "send_mode",
		"test_recipient", "attempt_count", "last_attempt_at", "last_error", "batch_id",
		"provider_message_id", "delivery_status", "status_checked_at", "status_details",
		"created_at", "updated_at",
	}).AddRow(1, "c1", "birthday", now, "pending", "test", "", 0, nil, "", "batch_1", "", "", nil, "", now, now)

	mock.ExpectQuery("SELECT .* FROM send_tracking WHERE .* ORDER BY scheduled_date ASC").WillReturnRows(rows)

	s := New(db, logger.NewMockLogger())
	got, err := s.NextPending(context.Background(), "batch_1", 10)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.SendPending, got[0].SendStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSentIncrementsAttemptCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE send_tracking SET .*attempt_count = attempt_count \\+ 1").WillReturnResult(sqlmock.NewResult(0, 1))

	s := New(db, logger.NewMockLogger())
	err = s.MarkSent(context.Background(), 42, "provider-msg-id", time.Now())

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedRecordsError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE send_tracking SET .*last_error = ").WillReturnResult(sqlmock.NewResult(0, 1))

	s := New(db, logger.NewMockLogger())
	err = s.MarkFailed(context.Background(), 42, "provider timeout", time.Now())

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchStatusComputesPercentages(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"send_status", "count"}).
		AddRow("pending", 2).
		AddRow("sent", 3).
		AddRow("delivered", 5)

	mock.ExpectQuery("SELECT send_status, COUNT").WillReturnRows(rows)

	s := New(db, logger.NewMockLogger())
	counts, err := s.BatchStatus(context.Background(), "batch_1")

	require.NoError(t, err)
	assert.Equal(t, 10, counts.Total)
	assert.Equal(t, 2, counts.Pending)
	assert.Equal(t, 5, counts.Delivered)
	assert.InDelta(t, 80.0, counts.CompletionPercentage, 0.01)
	assert.InDelta(t, 50.0, counts.DeliveryPercentage, 0.01)
	assert.NoError(t, mock.ExpectationsWereMet())
}
