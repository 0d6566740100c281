package enums

import "fmt"

// ProtectionOption is an extra-protection add-on a customer can request for a box.
type ProtectionOption string

const (
	ProtectionBubbleWrap     ProtectionOption = "bubble_wrap"
	ProtectionFragileSticker ProtectionOption = "fragile_sticker"
	ProtectionDoubleBox      ProtectionOption = "double_box"
	ProtectionStretchWrap    ProtectionOption = "stretch_wrap"
)

var validProtectionOptions = []ProtectionOption{
	ProtectionBubbleWrap,
	ProtectionFragileSticker,
	ProtectionDoubleBox,
	ProtectionStretchWrap,
}

// String implements fmt.Stringer.
func (p ProtectionOption) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProtectionOption.
func (p ProtectionOption) IsValid() bool {
	for _, candidate := range validProtectionOptions {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProtectionOption converts raw input into a ProtectionOption.
func ParseProtectionOption(value string) (ProtectionOption, error) {
	for _, candidate := range validProtectionOptions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid protection option %q", value)
}
