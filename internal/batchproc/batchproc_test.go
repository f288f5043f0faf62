package batchproc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunridge-benefits/enroll-scheduler/internal/config"
	"github.com/sunridge-benefits/enroll-scheduler/internal/domain"
	"github.com/sunridge-benefits/enroll-scheduler/pkg/logger"
)

const rulesYAML = `
stateRules:
  TX: {type: year_round}
timingConstants: {}
aepConfig:
  years: [2024]
  defaultDates:
    - {month: 8, day: 18}
`

func TestProcessContactsPreservesOrder(t *testing.T) {
	cfg, err := config.ParseRuleConfig([]byte(rulesYAML))
	require.NoError(t, err)

	p := New(cfg, logger.NewMockLogger())

	bd := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	contacts := make([]domain.Contact, 150)
	for i := range contacts {
		contacts[i] = domain.Contact{ID: string(rune('a' + i%26)), State: "TX", BirthDate: &bd}
	}

	results := p.ProcessContacts(context.Background(), contacts, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), len(contacts), 10)

	require.Len(t, results, len(contacts))
	for i, r := range results {
		assert.Equal(t, contacts[i].ID, r.ContactID)
	}
}

func TestProcessContactsSequentialBelowThreshold(t *testing.T) {
	cfg, err := config.ParseRuleConfig([]byte(rulesYAML))
	require.NoError(t, err)

	p := New(cfg, logger.NewMockLogger())
	contacts := []domain.Contact{{ID: "1", State: "TX"}}

	results := p.ProcessContacts(context.Background(), contacts, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{}, 1, 10)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].ContactID)
}
