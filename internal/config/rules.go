// Package config loads the two configuration surfaces the scheduler
// needs at startup: the declarative rule document (state rules, timing
// constants, AEP calendar, per-contact and global overrides) and the
// process environment (policy gates, provider credentials, store
// location), following the teacher's layered config.Config convention.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sunridge-benefits/enroll-scheduler/internal/dateutil"
	"github.com/sunridge-benefits/enroll-scheduler/internal/domain"
)

// ruleDocument is the on-disk YAML shape of the rule configuration file,
// mirroring the original Python system's own rule YAML: stateRules,
// timingConstants, aepConfig, and the optional contactRules/globalRules
// override maps.
type ruleDocument struct {
	StateRules map[string]struct {
		Type         string `yaml:"type"`
		WindowBefore *int   `yaml:"windowBefore"`
		WindowAfter  *int   `yaml:"windowAfter"`
	} `yaml:"stateRules"`

	TimingConstants struct {
		BirthdayEmailDaysBefore *int `yaml:"birthdayEmailDaysBefore"`
		EffectiveDateDaysBefore *int `yaml:"effectiveDateDaysBefore"`
		PreWindowExclusionDays  *int `yaml:"preWindowExclusionDays"`
	} `yaml:"timingConstants"`

	AEPConfig struct {
		Years        []int `yaml:"years"`
		DefaultDates []struct {
			Month int `yaml:"month"`
			Day   int `yaml:"day"`
		} `yaml:"defaultDates"`
	} `yaml:"aepConfig"`

	ContactRules map[string]struct {
		AEPOverrideMonth *int `yaml:"aepOverrideMonth"`
		AEPOverrideDay   *int `yaml:"aepOverrideDay"`
		ForceAEP         bool `yaml:"forceAEP"`
	} `yaml:"contactRules"`

	GlobalRules struct {
		OctoberBirthdayAEPMonth *int `yaml:"octoberBirthdayAEPMonth"`
		OctoberBirthdayAEPDay   *int `yaml:"octoberBirthdayAEPDay"`
	} `yaml:"globalRules"`
}


// RuleConfig is the loaded, validated, immutable rule document. It is
// loaded once at process start (per §9 "Global state") and exposes only
// pure query methods; it is never mutated afterward.
type RuleConfig struct {
	stateRules   map[string]domain.StateRule
	timing       domain.TimingConstants
	aep          domain.AEPConfig
	contactRules map[string]domain.ContactOverride
	global       domain.GlobalRules
}

// LoadRuleConfig reads and validates the rule document at path. Any
// validation failure is returned as a *domain.SchedulerError with code
// ConfigError, per §7 ("raised only at startup by C1; fatal").
func LoadRuleConfig(path string) (*RuleConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewConfigError("reading rule config", err)
	}
	return ParseRuleConfig(raw)
}

// ParseRuleConfig validates and builds a RuleConfig from an in-memory
// YAML document, separated from LoadRuleConfig for ease of testing.
func ParseRuleConfig(raw []byte) (*RuleConfig, error) {
	var doc ruleDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, domain.NewConfigError("parsing rule config yaml", err)
	}

	cfg := &RuleConfig{
		stateRules:   make(map[string]domain.StateRule),
		contactRules: make(map[string]domain.ContactOverride),
	}

	for state, r := range doc.StateRules {
		rt := domain.RuleType(r.Type)
		switch rt {
		case domain.RuleBirthday, domain.RuleEffectiveDate:
			if r.WindowBefore == nil || r.WindowAfter == nil {
				return nil, domain.NewConfigError(
					fmt.Sprintf("state rule %q of type %q requires windowBefore and windowAfter", state, r.Type), nil)
			}
			if *r.WindowBefore < 0 || *r.WindowAfter < 0 {
				return nil, domain.NewConfigError(
					fmt.Sprintf("state rule %q has negative window", state), nil)
			}
			cfg.stateRules[state] = domain.StateRule{Type: rt, WindowBefore: *r.WindowBefore, WindowAfter: *r.WindowAfter}
		case domain.RuleYearRound:
			cfg.stateRules[state] = domain.StateRule{Type: domain.RuleYearRound}
		default:
			return nil, domain.NewConfigError(
				fmt.Sprintf("state rule %q has unknown type %q", state, r.Type), nil)
		}
	}

	cfg.timing = domain.TimingConstants{
		BirthdayEmailDaysBefore: derefOr(doc.TimingConstants.BirthdayEmailDaysBefore, 14),
		EffectiveDateDaysBefore: derefOr(doc.TimingConstants.EffectiveDateDaysBefore, 30),
		PreWindowExclusionDays:  derefOr(doc.TimingConstants.PreWindowExclusionDays, 60),
	}
	if cfg.timing.BirthdayEmailDaysBefore < 0 || cfg.timing.EffectiveDateDaysBefore < 0 || cfg.timing.PreWindowExclusionDays < 0 {
		return nil, domain.NewConfigError("timing constants must be non-negative", nil)
	}

	if len(doc.AEPConfig.Years) == 0 {
		return nil, domain.NewConfigError("aepConfig.years must be a non-empty list", nil)
	}
	for _, y := range doc.AEPConfig.Years {
		if y < 2000 {
			return nil, domain.NewConfigError(fmt.Sprintf("aepConfig.years contains invalid year %d", y), nil)
		}
	}
	if len(doc.AEPConfig.DefaultDates) == 0 {
		return nil, domain.NewConfigError("aepConfig.defaultDates must be a non-empty list", nil)
	}
	for _, dd := range doc.AEPConfig.DefaultDates {
		if !validMonthDay(dd.Month, dd.Day) {
			return nil, domain.NewConfigError(fmt.Sprintf("aepConfig.defaultDates contains invalid date %d/%d", dd.Month, dd.Day), nil)
		}
		cfg.aep.DefaultDates = append(cfg.aep.DefaultDates, domain.DateOverride{Month: dd.Month, Day: dd.Day})
	}
	cfg.aep.Years = doc.AEPConfig.Years

	for id, r := range doc.ContactRules {
		co := domain.ContactOverride{ForceAEP: r.ForceAEP}
		if r.AEPOverrideMonth != nil && r.AEPOverrideDay != nil {
			if !validMonthDay(*r.AEPOverrideMonth, *r.AEPOverrideDay) {
				return nil, domain.NewConfigError(fmt.Sprintf("contactRules[%s] has invalid override date", id), nil)
			}
			co.HasAEPOverride = true
			co.AEPOverrideMonth = *r.AEPOverrideMonth
			co.AEPOverrideDay = *r.AEPOverrideDay
		}
		cfg.contactRules[id] = co
	}

	cfg.global = domain.GlobalRules{
		OctoberBirthdayAEPMonth: derefOr(doc.GlobalRules.OctoberBirthdayAEPMonth, 8),
		OctoberBirthdayAEPDay:   derefOr(doc.GlobalRules.OctoberBirthdayAEPDay, 25),
	}
	if !validMonthDay(cfg.global.OctoberBirthdayAEPMonth, cfg.global.OctoberBirthdayAEPDay) {
		return nil, domain.NewConfigError("globalRules october-birthday override date is invalid", nil)
	}

	return cfg, nil
}

func derefOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func validMonthDay(month, day int) bool {
	if month < 1 || month > 12 {
		return false
	}
	if month == 2 && day == 29 {
		return true // leap day always permitted, per dateutil.SafeDate fallback
	}
	t := dateutil.SafeDate(2023, month, day) // 2023 is not a leap year
	return int(t.Month()) == month && t.Day() == day
}

// RuleFor returns the state rule for state, defaulting to RuleNone when
// the state carries no entry in the document.
func (c *RuleConfig) RuleFor(state string) domain.StateRule {
	if r, ok := c.stateRules[state]; ok {
		return r
	}
	return domain.StateRule{Type: domain.RuleNone}
}

// IsYearRound reports whether state is a do-not-solicit, year-round
// enrollment state.
func (c *RuleConfig) IsYearRound(state string) bool {
	return c.RuleFor(state).Type == domain.RuleYearRound
}

// AEPDatesFor returns the ordered candidate AEP dates for year, or nil
// if the document's aepConfig.years does not cover it.
func (c *RuleConfig) AEPDatesFor(year int) []time.Time {
	covered := false
	for _, y := range c.aep.Years {
		if y == year {
			covered = true
			break
		}
	}
	if !covered {
		return nil
	}
	dates := make([]time.Time, 0, len(c.aep.DefaultDates))
	for _, dd := range c.aep.DefaultDates {
		dates = append(dates, dateutil.SafeDate(year, dd.Month, dd.Day))
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// ContactOverride returns the per-contact override for id, if any.
func (c *RuleConfig) ContactOverride(id string) (domain.ContactOverride, bool) {
	co, ok := c.contactRules[id]
	return co, ok
}

// ShouldForceAEP reports whether contact id is configured to always
// receive its assigned AEP date even when every AEP candidate for the
// year falls inside an exclusion window.
func (c *RuleConfig) ShouldForceAEP(contactID string) bool {
	co, ok := c.contactRules[contactID]
	return ok && co.ForceAEP
}

// AEPOverrideDate returns the contact-specific AEP override date for the
// year of horizonStart, if the contact carries one.
func (c *RuleConfig) AEPOverrideDate(contactID string, horizonStart time.Time) (time.Time, bool) {
	co, ok := c.contactRules[contactID]
	if !ok || !co.HasAEPOverride {
		return time.Time{}, false
	}
	return dateutil.SafeDate(horizonStart.Year(), co.AEPOverrideMonth, co.AEPOverrideDay), true
}

// GlobalOctoberBirthdayOverride returns the configured fixed AEP date
// used when a contact's birth month is October and no contact-specific
// override applies.
func (c *RuleConfig) GlobalOctoberBirthdayOverride(year int) time.Time {
	return dateutil.SafeDate(year, c.global.OctoberBirthdayAEPMonth, c.global.OctoberBirthdayAEPDay)
}

// Timing exposes the loaded timing constants, consumed by the
// scheduling engine's RuleSource interface.
func (c *RuleConfig) Timing() domain.TimingConstants {
	return c.timing
}
