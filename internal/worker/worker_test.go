package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sunridge-benefits/enroll-scheduler/internal/config"
	"github.com/sunridge-benefits/enroll-scheduler/internal/domain"
	"github.com/sunridge-benefits/enroll-scheduler/internal/reconcile"
	"github.com/sunridge-benefits/enroll-scheduler/internal/send"
	"github.com/sunridge-benefits/enroll-scheduler/pkg/logger"
)

type fakeOrgs struct{ ids []string }

func (f *fakeOrgs) ListOrgIDs(ctx context.Context) ([]string, error) { return f.ids, nil }

type nopStore struct{}

func (nopStore) NextPending(ctx context.Context, batchID string, limit int) ([]domain.TrackingRow, error) {
	return nil, nil
}
func (nopStore) NextFailed(ctx context.Context, batchID string, limit int) ([]domain.TrackingRow, error) {
	return nil, nil
}
func (nopStore) MarkSent(ctx context.Context, id int64, providerMessageID string, now time.Time) error {
	return nil
}
func (nopStore) MarkFailed(ctx context.Context, id int64, sendErr string, now time.Time) error {
	return nil
}
func (nopStore) RowsAwaitingStatus(ctx context.Context, limit int, batchID string) ([]domain.TrackingRow, error) {
	return nil, nil
}
func (nopStore) RowsSentBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.TrackingRow, error) {
	return nil, nil
}
func (nopStore) UpdateDeliveryStatus(ctx context.Context, id int64, status, details string, checkedAt time.Time) error {
	return nil
}
func (nopStore) UpdateSendStatus(ctx context.Context, id int64, status domain.SendStatus, checkedAt time.Time) error {
	return nil
}
func (nopStore) FindByProviderMessageID(ctx context.Context, providerMessageID string) (domain.TrackingRow, error) {
	return domain.TrackingRow{}, &domain.ErrNotFound{Kind: "row", ID: providerMessageID}
}

type nopContacts struct{}

func (nopContacts) GetContact(ctx context.Context, orgID, contactID string) (send.Contact, error) {
	return send.Contact{ID: contactID}, nil
}

type nopTemplater struct{}

func (nopTemplater) Render(ctx context.Context, emailType domain.EmailType, contact send.Contact, date time.Time, wantHTML bool) (send.RenderedEmail, error) {
	return send.RenderedEmail{}, nil
}

type nopProvider struct{}

func (nopProvider) Send(ctx context.Context, fromAddr, fromName, to, subject, text, html string, dryRun bool) (send.SendResult, error) {
	return send.SendResult{Accepted: true}, nil
}
func (nopProvider) QueryMessage(ctx context.Context, messageID string) (string, string, error) {
	return "sent", "{}", nil
}

func bindFor(orgID string, batchIDs []string, bindErr error) Binder {
	return func(ctx context.Context, id string) (OrgBinding, error) {
		if bindErr != nil {
			return OrgBinding{}, bindErr
		}
		var store nopStore
		executor := send.New(id, store, nopContacts{}, nopTemplater{}, nopProvider{}, config.SendConfig{}, "from@x.com", "X", logger.NewMockLogger())
		reconciler := reconcile.New(store, nopProvider{}, logger.NewMockLogger())
		return OrgBinding{OrgID: id, BatchIDs: batchIDs, Executor: executor, Reconciler: reconciler}, nil
	}
}

func TestSweepVisitsEveryOrgAndBatch(t *testing.T) {
	visited := map[string]int{}
	bind := func(ctx context.Context, orgID string) (OrgBinding, error) {
		visited[orgID]++
		var store nopStore
		executor := send.New(orgID, store, nopContacts{}, nopTemplater{}, nopProvider{}, config.SendConfig{}, "from@x.com", "X", logger.NewMockLogger())
		reconciler := reconcile.New(store, nopProvider{}, logger.NewMockLogger())
		return OrgBinding{OrgID: orgID, BatchIDs: []string{"batch_1"}, Executor: executor, Reconciler: reconciler}, nil
	}

	d := New(&fakeOrgs{ids: []string{"org1", "org2"}}, bind, logger.NewMockLogger(), time.Hour, 10)
	d.sweep(context.Background())

	assert.Equal(t, 1, visited["org1"])
	assert.Equal(t, 1, visited["org2"])
}

func TestSweepContinuesPastOrgBindError(t *testing.T) {
	d := New(&fakeOrgs{ids: []string{"broken-org"}}, bindFor("broken-org", nil, errors.New("boom")), logger.NewMockLogger(), time.Hour, 10)
	assert.NotPanics(t, func() { d.sweep(context.Background()) })
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	d := New(&fakeOrgs{ids: nil}, bindFor("org1", nil, nil), logger.NewMockLogger(), 10*time.Millisecond, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
