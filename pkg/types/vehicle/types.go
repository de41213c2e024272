// Package vehicle defines shared vocabulary types for vehicle facts:
// condition grades, title statuses, and VIN helpers.
package vehicle

import (
	"fmt"
	"strings"
)

// Condition is the self-reported condition grade of a vehicle.
type Condition string

const (
	ConditionExcellent Condition = "excellent"
	ConditionGood      Condition = "good"
	ConditionFair      Condition = "fair"
	ConditionPoor      Condition = "poor"
)

// ParseCondition normalizes a raw condition string. Unrecognized values
// fall back to ConditionGood, which carries a zero adjustment.
func ParseCondition(raw string) Condition {
	switch Condition(strings.ToLower(strings.TrimSpace(raw))) {
	case ConditionExcellent:
		return ConditionExcellent
	case ConditionGood:
		return ConditionGood
	case ConditionFair:
		return ConditionFair
	case ConditionPoor:
		return ConditionPoor
	default:
		return ConditionGood
	}
}

// Valid reports whether c is one of the four recognized grades.
func (c Condition) Valid() bool {
	switch c {
	case ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// TitleStatus describes the legal title classification of a vehicle.
type TitleStatus string

const (
	TitleClean   TitleStatus = "clean"
	TitleSalvage TitleStatus = "salvage"
	TitleRebuilt TitleStatus = "rebuilt"
	TitleLien    TitleStatus = "lien"
	TitleUnknown TitleStatus = "unknown"
)

// ParseTitleStatus normalizes a raw title-status string.
func ParseTitleStatus(raw string) TitleStatus {
	switch TitleStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case TitleClean:
		return TitleClean
	case TitleSalvage:
		return TitleSalvage
	case TitleRebuilt:
		return TitleRebuilt
	case TitleLien:
		return TitleLien
	default:
		return TitleUnknown
	}
}

// Branded reports whether the title status reduces market value on its own.
func (s TitleStatus) Branded() bool {
	return s == TitleSalvage || s == TitleRebuilt
}

// NormalizeVIN uppercases and trims a VIN. It does not validate the
// check digit; sources disagree on pre-1981 VINs.
func NormalizeVIN(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidateVIN checks the structural shape of a modern 17-character VIN.
func ValidateVIN(vin string) error {
	v := NormalizeVIN(vin)
	if len(v) != 17 {
		return fmt.Errorf("VIN must be 17 characters, got %d", len(v))
	}
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z':
			if r == 'I' || r == 'O' || r == 'Q' {
				return fmt.Errorf("VIN contains forbidden character %q", r)
			}
		default:
			return fmt.Errorf("VIN contains invalid character %q", r)
		}
	}
	return nil
}
