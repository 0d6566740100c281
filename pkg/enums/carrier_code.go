package enums

import "fmt"

// CarrierCode identifies a configured shipping carrier integration.
type CarrierCode string

const (
	CarrierUPS  CarrierCode = "ups"
	CarrierUSPS CarrierCode = "usps"
)

var validCarrierCodes = []CarrierCode{
	CarrierUPS,
	CarrierUSPS,
}

// String implements fmt.Stringer.
func (c CarrierCode) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CarrierCode.
func (c CarrierCode) IsValid() bool {
	for _, candidate := range validCarrierCodes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCarrierCode converts raw input into a CarrierCode.
func ParseCarrierCode(value string) (CarrierCode, error) {
	for _, candidate := range validCarrierCodes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid carrier code %q", value)
}
