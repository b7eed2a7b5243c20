package model

import (
	"fmt"
	"strings"
)

// Address is a normalized postal address. All string fields are trimmed at
// construction and the country code is upper-cased; the value is immutable
// afterwards. Construction never fails: invalidity is observable only through
// IsValid and ValidationErrors, so callers decide whether an incomplete
// address blocks checkout.
type Address struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Company    string `json:"company,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Province   string `json:"province,omitempty"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// NewAddress constructs a normalized address from raw field values.
func NewAddress(a Address) Address {
	return Address{
		FirstName:  strings.TrimSpace(a.FirstName),
		LastName:   strings.TrimSpace(a.LastName),
		Company:    strings.TrimSpace(a.Company),
		Street:     strings.TrimSpace(a.Street),
		City:       strings.TrimSpace(a.City),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Province:   strings.TrimSpace(a.Province),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
		Phone:      strings.TrimSpace(a.Phone),
	}
}

// IsValid reports whether all required fields are present.
func (a Address) IsValid() bool {
	return len(a.ValidationErrors()) == 0
}

// ValidationErrors returns an ordered list of missing-field messages.
func (a Address) ValidationErrors() []string {
	var errs []string
	required := []struct {
		value string
		name  string
	}{
		{a.FirstName, "firstName"},
		{a.LastName, "lastName"},
		{a.Street, "street"},
		{a.City, "city"},
		{a.PostalCode, "postalCode"},
		{a.Country, "country"},
	}
	for _, f := range required {
		if f.value == "" {
			errs = append(errs, fmt.Sprintf("%s is required", f.name))
		}
	}
	return errs
}

// Format renders the address in multi-line postal format.
func (a Address) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", a.FirstName, a.LastName)
	if a.Company != "" {
		b.WriteString(a.Company + "\n")
	}
	b.WriteString(a.Street + "\n")
	line := a.PostalCode + " " + a.City
	if a.Province != "" {
		line += ", " + a.Province
	}
	b.WriteString(line + "\n")
	b.WriteString(a.Country)
	return b.String()
}

// Equals compares addresses field-wise, ignoring the phone number.
func (a Address) Equals(other Address) bool {
	return a.FirstName == other.FirstName &&
		a.LastName == other.LastName &&
		a.Company == other.Company &&
		a.Street == other.Street &&
		a.City == other.City &&
		a.PostalCode == other.PostalCode &&
		a.Province == other.Province &&
		a.Country == other.Country
}
