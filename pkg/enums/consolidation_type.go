package enums

import "fmt"

// ConsolidationType selects how a box is packed before shipment.
type ConsolidationType string

const (
	ConsolidationTypeStandard ConsolidationType = "standard"
	ConsolidationTypeExpress  ConsolidationType = "express"
	ConsolidationTypeEconomy  ConsolidationType = "economy"
	ConsolidationTypeRepack   ConsolidationType = "repack"
	ConsolidationTypeSimple   ConsolidationType = "simple"
)

var validConsolidationTypes = []ConsolidationType{
	ConsolidationTypeStandard,
	ConsolidationTypeExpress,
	ConsolidationTypeEconomy,
	ConsolidationTypeRepack,
	ConsolidationTypeSimple,
}

// String implements fmt.Stringer.
func (c ConsolidationType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ConsolidationType.
func (c ConsolidationType) IsValid() bool {
	for _, candidate := range validConsolidationTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseConsolidationType converts raw input into a ConsolidationType.
func ParseConsolidationType(value string) (ConsolidationType, error) {
	for _, candidate := range validConsolidationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid consolidation type %q", value)
}
