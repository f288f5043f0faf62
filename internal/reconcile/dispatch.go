package reconcile

import (
	"context"
	"fmt"

	"github.com/sunridge-benefits/enroll-scheduler/internal/domain"
	"github.com/sunridge-benefits/enroll-scheduler/pkg/logger"
)

// OrgLister returns every known organization id, backed by
// pkg/registry.Registry in production.
type OrgLister interface {
	ListOrgIDs(ctx context.Context) ([]string, error)
}

// StoreResolver opens (or reuses) the PullStore for one organization's
// database, backed by pkg/database.ConnectionManager plus
// internal/store.New in production.
type StoreResolver func(ctx context.Context, orgID string) (PullStore, error)

// Dispatcher fans an org-agnostic webhook payload out to the owning
// organization's Reconciler, implementing §4.7's "scan org stores for
// the providerMessageId; the first match wins" rule for the push path,
// since a webhook callback carries no organization id of its own.
type Dispatcher struct {
	orgs     OrgLister
	resolve  StoreResolver
	provider Provider
	log      logger.Logger
}

// NewDispatcher constructs a webhook dispatcher over every registered
// organization.
func NewDispatcher(orgs OrgLister, resolve StoreResolver, provider Provider, log logger.Logger) *Dispatcher {
	return &Dispatcher{orgs: orgs, resolve: resolve, provider: provider, log: log}
}

// Dispatch finds the organization owning the webhook's provider message
// ids and applies the payload against that organization's Reconciler.
// Events for message ids owned by no known organization are reported as
// skipped rather than failing the whole payload.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) (PushReport, error) {
	events, err := parseWebhookEvents(payload)
	if err != nil {
		return PushReport{}, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	orgIDs, err := d.orgs.ListOrgIDs(ctx)
	if err != nil {
		return PushReport{}, fmt.Errorf("failed to list organizations: %w", err)
	}

	byOrg := make(map[string][]webhookEvent)
	unresolved := 0
	for _, ev := range events {
		if ev.messageID == "" {
			unresolved++
			continue
		}
		orgID, found := d.findOwningOrg(ctx, orgIDs, ev.messageID)
		if !found {
			unresolved++
			continue
		}
		byOrg[orgID] = append(byOrg[orgID], ev)
	}

	total := PushReport{Skipped: unresolved}
	for orgID, evs := range byOrg {
		store, err := d.resolve(ctx, orgID)
		if err != nil {
			total.Errors = domain.AppendCappedError(total.Errors, fmt.Sprintf("org %s: %v", orgID, err))
			continue
		}
		r := New(store, d.provider, d.log)
		sub, err := r.applyEvents(ctx, evs)
		if err != nil {
			total.Errors = domain.AppendCappedError(total.Errors, fmt.Sprintf("org %s: %v", orgID, err))
			continue
		}
		total.Applied += sub.Applied
		total.Skipped += sub.Skipped
		for _, msg := range sub.Errors {
			total.Errors = domain.AppendCappedError(total.Errors, msg)
		}
	}

	return total, nil
}

// findOwningOrg scans organizations in order for one that recognizes
// providerMessageID, first match wins.
func (d *Dispatcher) findOwningOrg(ctx context.Context, orgIDs []string, providerMessageID string) (string, bool) {
	for _, orgID := range orgIDs {
		store, err := d.resolve(ctx, orgID)
		if err != nil {
			continue
		}
		if _, err := store.FindByProviderMessageID(ctx, providerMessageID); err == nil {
			return orgID, true
		}
	}
	return "", false
}
