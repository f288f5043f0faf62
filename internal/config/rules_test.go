package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunridge-benefits/enroll-scheduler/internal/domain"
)

const sampleYAML = `
stateRules:
  CA:
    type: birthday
    windowBefore: 30
    windowAfter: 30
  NV:
    type: birthday
    windowBefore: 0
    windowAfter: 60
  MO:
    type: effective_date
    windowBefore: 30
    windowAfter: 33
  NY:
    type: year_round
timingConstants:
  birthdayEmailDaysBefore: 14
  effectiveDateDaysBefore: 30
  preWindowExclusionDays: 60
aepConfig:
  years: [2024, 2025]
  defaultDates:
    - {month: 8, day: 18}
    - {month: 8, day: 25}
    - {month: 9, day: 1}
    - {month: 9, day: 7}
contactRules:
  "502":
    forceAEP: true
globalRules:
  octoberBirthdayAEPMonth: 8
  octoberBirthdayAEPDay: 25
`

func TestParseRuleConfigBasics(t *testing.T) {
	cfg, err := ParseRuleConfig([]byte(sampleYAML))
	require.NoError(t, err)

	assert.True(t, cfg.IsYearRound("NY"))
	assert.False(t, cfg.IsYearRound("CA"))

	ca := cfg.RuleFor("CA")
	assert.Equal(t, domain.RuleBirthday, ca.Type)
	assert.Equal(t, 30, ca.WindowBefore)
	assert.Equal(t, 30, ca.WindowAfter)

	none := cfg.RuleFor("TX")
	assert.Equal(t, domain.RuleNone, none.Type)

	dates := cfg.AEPDatesFor(2024)
	require.Len(t, dates, 4)
	assert.Equal(t, time.Date(2024, 8, 18, 0, 0, 0, 0, time.UTC), dates[0])
	assert.Equal(t, time.Date(2024, 9, 7, 0, 0, 0, 0, time.UTC), dates[3])

	assert.Nil(t, cfg.AEPDatesFor(2030))

	assert.True(t, cfg.ShouldForceAEP("502"))
	assert.False(t, cfg.ShouldForceAEP("1"))
}

func TestParseRuleConfigRejectsMissingWindow(t *testing.T) {
	_, err := ParseRuleConfig([]byte(`
stateRules:
  CA:
    type: birthday
`))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrCodeConfig))
}

func TestParseRuleConfigRejectsEmptyAEPYears(t *testing.T) {
	_, err := ParseRuleConfig([]byte(`
aepConfig:
  years: []
  defaultDates:
    - {month: 8, day: 18}
`))
	require.Error(t, err)
}
