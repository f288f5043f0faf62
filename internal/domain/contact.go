package domain

import (
	"time"

	"github.com/asaskevich/govalidator"
)

// Contact is the minimal identity and anchor-date information the
// scheduling engine needs about an insurance contact. Everything else
// (address, plan details, ZIP-to-state resolution) lives outside the core.
type Contact struct {
	ID            string     `valid:"required" json:"id"`
	FirstName     string     `json:"firstName"`
	LastName      string     `json:"lastName"`
	Email         string     `valid:"required,email" json:"email"`
	State         string     `valid:"required,stringlength(2|2)" json:"state"`
	BirthDate     *time.Time `json:"birthDate,omitempty"`
	EffectiveDate *time.Time `json:"effectiveDate,omitempty"`
	ZIP           string     `json:"zip,omitempty"`
}

// Validate checks the struct-tagged required fields and reports whether
// the contact carries at least one anchor date, the minimum a caller
// must supply before this contact can be scheduled.
func (c Contact) Validate() error {
	if _, err := govalidator.ValidateStruct(c); err != nil {
		return NewConfigError("invalid contact", err)
	}
	if !c.HasAnchorDate() {
		return NewConfigError("contact "+c.ID+" has neither a birth date nor an effective date", nil)
	}
	return nil
}

// HasAnchorDate reports whether the contact carries at least one of the
// two dates the scheduling engine anchors candidate events on.
func (c Contact) HasAnchorDate() bool {
	return c.BirthDate != nil || c.EffectiveDate != nil
}

// AgeAt returns the contact's age in whole years on the given date. It
// returns 0 if the contact has no birth date.
func (c Contact) AgeAt(d time.Time) int {
	if c.BirthDate == nil {
		return 0
	}
	b := *c.BirthDate
	age := d.Year() - b.Year()
	if d.Month() < b.Month() || (d.Month() == b.Month() && d.Day() < b.Day()) {
		age--
	}
	return age
}
