package governance

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const maxParcelCoordinate = 150

// Validity is the tri-state outcome of a form validator.
type Validity int

const (
	ValidityUnset Validity = iota
	ValidityInvalid
	ValidityValid
)

func (validity Validity) String() string {
	switch validity {
	case ValidityInvalid:
		return "invalid"
	case ValidityValid:
		return "valid"
	default:
		return "unset"
	}
}

var namePattern = regexp.MustCompile(`^[_A-Za-z0-9]*((-|s)*[_A-Za-z0-9])*$`)

// IsValidPosition checks a parcel coordinate. Absent or empty input is unset; a
// whitespace-only coordinate reads as 0.
func IsValidPosition(raw string, present bool) Validity {
	if !present || raw == "" {
		return ValidityUnset
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ValidityValid
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(value) || math.Abs(value) > maxParcelCoordinate {
		return ValidityInvalid
	}
	return ValidityValid
}

// IsValidName checks a banned-name candidate. The empty name is rejected.
func IsValidName(name string) bool {
	return name != "" && namePattern.MatchString(name)
}

// ValidatePosition returns a ValidationError for an invalid coordinate.
func ValidatePosition(field string, raw string) error {
	if IsValidPosition(raw, true) != ValidityValid {
		return &ValidationError{Field: field, Message: "position must be a number between -150 and 150"}
	}
	return nil
}

// ValidateName returns a ValidationError for an invalid name.
func ValidateName(name string) error {
	if !IsValidName(name) {
		return &ValidationError{Field: "name", Message: "name may only contain letters, numbers, underscores and dashes"}
	}
	return nil
}
