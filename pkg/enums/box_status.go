package enums

import "fmt"

// BoxStatus tracks the lifecycle of a consolidation box.
type BoxStatus string

const (
	BoxStatusOpen       BoxStatus = "open"
	BoxStatusPending    BoxStatus = "pending"
	BoxStatusInProgress BoxStatus = "in_progress"
	BoxStatusShipped    BoxStatus = "shipped"
	BoxStatusCancelled  BoxStatus = "cancelled"
)

var validBoxStatuses = []BoxStatus{
	BoxStatusOpen,
	BoxStatusPending,
	BoxStatusInProgress,
	BoxStatusShipped,
	BoxStatusCancelled,
}

// String implements fmt.Stringer.
func (b BoxStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BoxStatus.
func (b BoxStatus) IsValid() bool {
	for _, candidate := range validBoxStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the box lifecycle.
func (b BoxStatus) IsTerminal() bool {
	return b == BoxStatusShipped || b == BoxStatusCancelled
}

// ParseBoxStatus converts raw input into a BoxStatus.
func ParseBoxStatus(value string) (BoxStatus, error) {
	for _, candidate := range validBoxStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid box status %q", value)
}
