package model

import (
	"regexp"
	"time"
)

var nineDigits = regexp.MustCompile(`^\d{9}$`)

// NineDigits reports whether s is exactly nine decimal digits, the shape
// required for Israeli ID and HMO card numbers.
func NineDigits(s string) bool {
	return nineDigits.MatchString(s)
}

// ValidBirthYear reports whether year yields an age between 0 and 120.
func ValidBirthYear(year int) bool {
	now := time.Now().Year()
	age := now - year
	return year >= 1900 && age >= 0 && age <= 120
}

// UserProfile is the subject of the info-collection phase and the
// retrieval bias in the Q&A phase. Zero values mean "not collected yet".
type UserProfile struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	IDNumber       string `json:"id_number"`
	Gender         Gender `json:"gender"`
	BirthYear      int    `json:"birth_year"`
	HMOName        HMO    `json:"hmo_name"`
	HMOCardNumber  string `json:"hmo_card_number"`
	MembershipTier Tier   `json:"membership_tier"`
	Locale         Locale `json:"locale"`
}

// Problems enumerates the missing or invalid fields that block the
// transition out of info collection. An empty slice means the profile is
// complete and valid.
func (p UserProfile) Problems() []string {
	var problems []string
	if p.FirstName == "" {
		problems = append(problems, "first_name missing")
	}
	if p.LastName == "" {
		problems = append(problems, "last_name missing")
	}
	if !NineDigits(p.IDNumber) {
		problems = append(problems, "id_number missing (9 digits)")
	}
	if p.Gender == "" || p.Gender == GenderUnspecified || !p.Gender.Valid() {
		problems = append(problems, "gender missing")
	}
	if !ValidBirthYear(p.BirthYear) {
		problems = append(problems, "birth_year missing")
	}
	if !p.HMOName.Valid() {
		problems = append(problems, "hmo_name missing")
	}
	if !NineDigits(p.HMOCardNumber) {
		problems = append(problems, "hmo_card_number missing (9 digits)")
	}
	if !p.MembershipTier.Valid() {
		problems = append(problems, "membership_tier missing")
	}
	return problems
}

// Complete reports whether every collection predicate holds.
func (p UserProfile) Complete() bool {
	return len(p.Problems()) == 0
}
