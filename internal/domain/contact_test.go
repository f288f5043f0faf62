package domain

import (
	"testing"
	"time"
)

func TestContactValidateRejectsMissingRequiredFields(t *testing.T) {
	bd := time.Date(1960, 5, 1, 0, 0, 0, 0, time.UTC)
	c := Contact{ID: "", Email: "a@example.com", State: "CA", BirthDate: &bd}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestContactValidateRejectsMalformedEmail(t *testing.T) {
	bd := time.Date(1960, 5, 1, 0, 0, 0, 0, time.UTC)
	c := Contact{ID: "c1", Email: "not-an-email", State: "CA", BirthDate: &bd}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for malformed email")
	}
}

func TestContactValidateRejectsMissingAnchorDate(t *testing.T) {
	c := Contact{ID: "c1", Email: "a@example.com", State: "CA"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing anchor date")
	}
}

func TestContactValidateAcceptsWellFormedContact(t *testing.T) {
	bd := time.Date(1960, 5, 1, 0, 0, 0, 0, time.UTC)
	c := Contact{ID: "c1", Email: "a@example.com", State: "CA", BirthDate: &bd}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestAgeAtComputesWholeYears(t *testing.T) {
	bd := time.Date(1960, 5, 15, 0, 0, 0, 0, time.UTC)
	c := Contact{BirthDate: &bd}

	beforeBirthday := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if got := c.AgeAt(beforeBirthday); got != 63 {
		t.Errorf("age before birthday = %d, want 63", got)
	}

	onOrAfterBirthday := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	if got := c.AgeAt(onOrAfterBirthday); got != 64 {
		t.Errorf("age on birthday = %d, want 64", got)
	}
}

func TestHasAnchorDate(t *testing.T) {
	bd := time.Date(1960, 5, 1, 0, 0, 0, 0, time.UTC)
	withBirth := Contact{BirthDate: &bd}
	if !withBirth.HasAnchorDate() {
		t.Error("expected contact with birth date to have an anchor date")
	}

	neither := Contact{}
	if neither.HasAnchorDate() {
		t.Error("expected contact with no dates to have no anchor date")
	}
}
