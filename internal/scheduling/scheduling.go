// Package scheduling implements the Scheduling Engine (C3): a pure,
// deterministic function from a contact and a rule configuration to a
// classified list of email events. Nothing in this package performs I/O
// or retains state across calls.
package scheduling

import (
	"fmt"
	"sort"
	"time"

	"github.com/sunridge-benefits/enroll-scheduler/internal/dateutil"
	"github.com/sunridge-benefits/enroll-scheduler/internal/domain"
)

// RuleSource is the narrow read interface the engine needs from the
// loaded rule configuration; internal/config.RuleConfig satisfies it.
type RuleSource interface {
	RuleFor(state string) domain.StateRule
	IsYearRound(state string) bool
	AEPDatesFor(year int) []time.Time
	ShouldForceAEP(contactID string) bool
	AEPOverrideDate(contactID string, horizonStart time.Time) (time.Time, bool)
	GlobalOctoberBirthdayOverride(year int) time.Time
	Timing() domain.TimingConstants
}

const ilAgeSuppressionThreshold = 76

// exclusionWindow is an interval during which no {birthday, effective_date,
// aep} candidate may be scheduled.
type exclusionWindow struct {
	start, end time.Time
}

func (w exclusionWindow) contains(d time.Time) bool {
	return dateutil.InRange(d, w.start, w.end)
}

type candidate struct {
	typ    domain.EmailType
	date   time.Time
	anchor time.Time
}

// Schedule computes the classified email schedule for one contact over
// [horizonStart, horizonEnd]. It never returns an error: failure is
// represented as a single domain.EmailTypeAll skipped event, per §4.3.8.
func Schedule(rules RuleSource, contact domain.Contact, horizonStart, horizonEnd time.Time, populationSize, populationIndex int) (result domain.ScheduleResult) {
	result.ContactID = contact.ID

	defer func() {
		if r := recover(); r != nil {
			result = domain.ScheduleResult{
				ContactID: contact.ID,
				Skipped: []domain.EmailEvent{{
					Type:   domain.EmailTypeAll,
					Date:   horizonStart,
					Status: domain.EventSkipped,
					Reason: fmt.Sprintf("processing error: %v", r),
				}},
			}
		}
	}()

	if horizonEnd.IsZero() {
		horizonEnd = horizonStart.AddDate(2, 0, 0)
	}
	horizonStart = dateutil.DateOnly(horizonStart)
	horizonEnd = dateutil.DateOnly(horizonEnd)

	if rules.IsYearRound(contact.State) {
		return domain.ScheduleResult{
			ContactID: contact.ID,
			Skipped: []domain.EmailEvent{{
				Type:   domain.EmailTypeAll,
				Status: domain.EventSkipped,
				Reason: domain.ReasonYearRoundState,
			}},
		}
	}

	if !contact.HasAnchorDate() {
		return domain.ScheduleResult{
			ContactID: contact.ID,
			Skipped: []domain.EmailEvent{{
				Type:   domain.EmailTypeAll,
				Status: domain.EventSkipped,
				Reason: domain.ReasonMissingAnchorDates,
			}},
		}
	}

	rule := rules.RuleFor(contact.State)
	timing := rules.Timing()

	var birthdayAnchors, effectiveAnchors []time.Time
	if contact.BirthDate != nil {
		birthdayAnchors = dateutil.YearlyOccurrences(*contact.BirthDate, horizonStart, horizonEnd)
	}
	if contact.EffectiveDate != nil {
		effectiveAnchors = dateutil.YearlyOccurrences(*contact.EffectiveDate, horizonStart, horizonEnd)
	}

	var windows []exclusionWindow
	var postWindowDates []time.Time

	switch rule.Type {
	case domain.RuleBirthday:
		for _, anchor := range birthdayAnchors {
			windowAnchor := anchor
			if contact.State == "NV" {
				windowAnchor = dateutil.StartOfMonth(anchor)
			}
			ruleStart := windowAnchor.AddDate(0, 0, -rule.WindowBefore)
			ruleEnd := windowAnchor.AddDate(0, 0, rule.WindowAfter)
			windows = append(windows, exclusionWindow{
				start: ruleStart.AddDate(0, 0, -timing.PreWindowExclusionDays),
				end:   ruleEnd,
			})

			if contact.State == "IL" && contact.AgeAt(anchor) >= ilAgeSuppressionThreshold {
				continue
			}
			pw := postWindowDate(contact.State, *contact.BirthDate, ruleStart, ruleEnd)
			if dateutil.InRange(pw, horizonStart, horizonEnd) {
				postWindowDates = append(postWindowDates, pw)
			}
		}
	case domain.RuleEffectiveDate:
		for _, anchor := range effectiveAnchors {
			ruleStart := anchor.AddDate(0, 0, -rule.WindowBefore)
			ruleEnd := anchor.AddDate(0, 0, rule.WindowAfter)
			windows = append(windows, exclusionWindow{
				start: ruleStart.AddDate(0, 0, -timing.PreWindowExclusionDays),
				end:   ruleEnd,
			})
			pw := ruleEnd.AddDate(0, 0, 1)
			if dateutil.InRange(pw, horizonStart, horizonEnd) {
				postWindowDates = append(postWindowDates, pw)
			}
		}
	}

	var candidates []candidate
	for _, anchor := range birthdayAnchors {
		if contact.State == "IL" && contact.AgeAt(anchor) >= ilAgeSuppressionThreshold {
			continue
		}
		candidates = append(candidates, candidate{
			typ:    domain.EmailTypeBirthday,
			date:   anchor.AddDate(0, 0, -timing.BirthdayEmailDaysBefore),
			anchor: anchor,
		})
	}
	for _, anchor := range effectiveAnchors {
		candidates = append(candidates, candidate{
			typ:    domain.EmailTypeEffectiveDate,
			date:   anchor.AddDate(0, 0, -timing.EffectiveDateDaysBefore),
			anchor: anchor,
		})
	}

	scheduled := make([]domain.EmailEvent, 0, 8)
	skipped := make([]domain.EmailEvent, 0, 4)

	for _, c := range candidates {
		if !dateutil.InRange(c.date, horizonStart, horizonEnd) {
			continue
		}
		if excludedBy(windows, c.date) {
			skipped = append(skipped, domain.EmailEvent{Type: c.typ, Date: c.date, Status: domain.EventSkipped, Reason: domain.ReasonInExclusionWindow})
			continue
		}
		scheduled = append(scheduled, domain.EmailEvent{Type: c.typ, Date: c.date, Status: domain.EventScheduled})
	}

	for year := horizonStart.Year(); year <= horizonEnd.Year(); year++ {
		ev, ok := resolveAEPForYear(rules, contact, year, windows, populationSize, populationIndex)
		if !ok {
			continue
		}
		if !dateutil.InRange(ev.Date, horizonStart, horizonEnd) {
			continue
		}
		if ev.Status == domain.EventScheduled {
			scheduled = append(scheduled, ev)
		} else {
			skipped = append(skipped, ev)
		}
	}

	for _, pw := range postWindowDates {
		scheduled = append(scheduled, domain.EmailEvent{Type: domain.EmailTypePostWindow, Date: pw, Status: domain.EventScheduled})
	}

	scheduled = sortAndDedupe(scheduled)
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Date.Before(skipped[j].Date) })

	return domain.ScheduleResult{ContactID: contact.ID, Scheduled: scheduled, Skipped: skipped}
}

// postWindowDate computes the post-window date for a single birthday rule
// window, applying the state-specific exceptions from §4.3.3.
func postWindowDate(state string, originalBirthDate time.Time, ruleStart, ruleEnd time.Time) time.Time {
	pw := ruleEnd.AddDate(0, 0, 1)

	if ruleStart.Day() == 1 && dateutil.IsMonthEnd(ruleEnd) {
		return ruleEnd
	}

	isFeb29 := originalBirthDate.Month() == time.February && originalBirthDate.Day() == 29
	if isFeb29 {
		switch state {
		case "CA":
			return time.Date(ruleEnd.Year(), 3, 30, 0, 0, 0, 0, time.UTC)
		case "NV":
			return time.Date(ruleEnd.Year(), 3, 31, 0, 0, 0, 0, time.UTC)
		}
	} else if ruleStart.Month() == time.February {
		if state == "CA" && ruleStart.Day() > 1 && ruleStart.Day() < 15 &&
			ruleEnd.Month() == time.March && (ruleEnd.Day() == 29 || ruleEnd.Day() == 30) {
			return dateutil.EndOfMonth(time.Date(ruleEnd.Year(), 3, 1, 0, 0, 0, 0, time.UTC))
		}
	}

	if pw.Year() < ruleEnd.Year() {
		pw = time.Date(ruleEnd.Year(), pw.Month(), pw.Day(), 0, 0, 0, 0, time.UTC)
	}
	return pw
}

func excludedBy(windows []exclusionWindow, d time.Time) bool {
	for _, w := range windows {
		if w.contains(d) {
			return true
		}
	}
	return false
}

// resolveAEPForYear selects the AEP candidate for one year of the
// horizon, applying per-contact and global overrides, the AEP
// distribution policy, and the exclusion-avoidance search of §4.3.5.
func resolveAEPForYear(rules RuleSource, contact domain.Contact, year int, windows []exclusionWindow, populationSize, populationIndex int) (domain.EmailEvent, bool) {
	aepDates := rules.AEPDatesFor(year)
	if len(aepDates) == 0 {
		return domain.EmailEvent{}, false
	}

	yearAnchor := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	if override, ok := rules.AEPOverrideDate(contact.ID, yearAnchor); ok {
		return finalizeAEP(override, windows), true
	}
	if contact.BirthDate != nil && contact.BirthDate.Month() == time.October {
		return finalizeAEP(rules.GlobalOctoberBirthdayOverride(year), windows), true
	}

	k := len(aepDates)
	idx := populationIndex % k
	if populationSize <= 1 {
		idx = 0
	}
	assigned := aepDates[idx]

	if len(windows) == 0 {
		return domain.EmailEvent{Type: domain.EmailTypeAEP, Date: assigned, Status: domain.EventScheduled}, true
	}

	if !excludedBy(windows, assigned) {
		return domain.EmailEvent{Type: domain.EmailTypeAEP, Date: assigned, Status: domain.EventScheduled}, true
	}

	for i := 0; i < k; i++ {
		alt := aepDates[(idx+i)%k]
		if !excludedBy(windows, alt) {
			return domain.EmailEvent{Type: domain.EmailTypeAEP, Date: alt, Status: domain.EventScheduled}, true
		}
	}

	if rules.ShouldForceAEP(contact.ID) {
		return domain.EmailEvent{Type: domain.EmailTypeAEP, Date: assigned, Status: domain.EventScheduled}, true
	}

	return domain.EmailEvent{Type: domain.EmailTypeAEP, Date: assigned, Status: domain.EventSkipped, Reason: domain.ReasonAllAEPExcluded}, true
}

func finalizeAEP(d time.Time, windows []exclusionWindow) domain.EmailEvent {
	if excludedBy(windows, d) {
		return domain.EmailEvent{Type: domain.EmailTypeAEP, Date: d, Status: domain.EventSkipped, Reason: domain.ReasonInExclusionWindow}
	}
	return domain.EmailEvent{Type: domain.EmailTypeAEP, Date: d, Status: domain.EventScheduled}
}

// sortAndDedupe sorts scheduled events ascending by date and removes
// duplicate (type, date) pairs, keeping the first occurrence.
func sortAndDedupe(events []domain.EmailEvent) []domain.EmailEvent {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })

	seen := make(map[string]bool, len(events))
	out := make([]domain.EmailEvent, 0, len(events))
	for _, e := range events {
		key := string(e.Type) + "|" + e.Date.Format("2006-01-02")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
