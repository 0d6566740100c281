package types

import "strings"

// Address is the postal address shape used for shipment origins and destinations.
type Address struct {
	Name        string `json:"name,omitempty"`
	Street1     string `json:"street1"`
	Street2     string `json:"street2,omitempty"`
	City        string `json:"city"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone,omitempty"`
}

// IsZero reports whether the address carries no data.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Validate checks the fields every carrier requires.
func (a Address) Validate() []string {
	missing := []string{}
	if strings.TrimSpace(a.Street1) == "" {
		missing = append(missing, "street1")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		missing = append(missing, "postal_code")
	}
	if strings.TrimSpace(a.CountryCode) == "" {
		missing = append(missing, "country_code")
	}
	return missing
}
