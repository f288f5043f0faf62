package domain

import "time"

// EmailType enumerates the kinds of lifecycle email the scheduling engine
// can emit. "anniversary" is accepted as an external-interface alias for
// EmailTypeEffectiveDate (see NormalizeEmailType) but is never produced
// internally.
type EmailType string

const (
	EmailTypeBirthday      EmailType = "birthday"
	EmailTypeEffectiveDate EmailType = "effective_date"
	EmailTypeAEP           EmailType = "aep"
	EmailTypePostWindow    EmailType = "post_window"
	EmailTypeAll           EmailType = "all"
)

// NormalizeEmailType canonicalizes the "anniversary" spelling inherited
// from the source system onto EmailTypeEffectiveDate. All other values
// pass through unchanged.
func NormalizeEmailType(t string) EmailType {
	if t == "anniversary" {
		return EmailTypeEffectiveDate
	}
	return EmailType(t)
}

// EventStatus is the classification a candidate event ends up with.
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventSkipped   EventStatus = "skipped"
)

// EmailEvent is one dated, classified outcome of the scheduling engine.
type EmailEvent struct {
	Type   EmailType
	Date   time.Time
	Status EventStatus
	Reason string
}

// ScheduleResult is the full output of scheduling a single contact: two
// date-sorted lists, with no duplicate (type, date) pair within Scheduled.
type ScheduleResult struct {
	ContactID string
	Scheduled []EmailEvent
	Skipped   []EmailEvent
}

// Closed set of skip reasons the engine emits, per spec §4.3.7.
// ReasonNoValidAEPInRange is reserved for a year outside the rule
// document's configured AEP calendar; the engine currently omits that
// year's AEP event entirely rather than emitting a skipped one, so this
// reason is part of the closed set without an emitting call site.
const (
	ReasonInExclusionWindow  = "in exclusion window"
	ReasonYearRoundState     = "year-round enrollment state"
	ReasonNoValidAEPInRange  = "no valid AEP date in horizon"
	ReasonMissingAnchorDates = "missing anchor dates"
	ReasonAllAEPExcluded     = "all AEP dates excluded"
)
