package governance

import (
	"errors"
	"testing"
)

func TestIsValidPosition(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		raw      string
		present  bool
		expected Validity
	}{
		{raw: "", present: false, expected: ValidityUnset},
		{raw: "", present: true, expected: ValidityUnset},
		{raw: "  ", present: true, expected: ValidityValid},
		{raw: " 7 ", present: true, expected: ValidityValid},
		{raw: "0", present: true, expected: ValidityValid},
		{raw: "150", present: true, expected: ValidityValid},
		{raw: "-150", present: true, expected: ValidityValid},
		{raw: "12.5", present: true, expected: ValidityValid},
		{raw: "151", present: true, expected: ValidityInvalid},
		{raw: "-150.5", present: true, expected: ValidityInvalid},
		{raw: "north", present: true, expected: ValidityInvalid},
	}
	for _, testCase := range testCases {
		if got := IsValidPosition(testCase.raw, testCase.present); got != testCase.expected {
			test.Fatalf("position %q (present=%v): expected %s, got %s", testCase.raw, testCase.present, testCase.expected, got)
		}
	}
}

func TestIsValidName(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		expected bool
	}{
		{name: "", expected: false},
		{name: "genesis_plaza", expected: true},
		{name: "Vegas-City", expected: true},
		{name: "a--b", expected: true},
		{name: "trailing-", expected: false},
		{name: "with space", expected: false},
		{name: "bad!", expected: false},
	}
	for _, testCase := range testCases {
		if got := IsValidName(testCase.name); got != testCase.expected {
			test.Fatalf("name %q: expected %v, got %v", testCase.name, testCase.expected, got)
		}
	}
}

func TestValidatorsReturnValidationError(test *testing.T) {
	test.Parallel()
	var validationError *ValidationError
	if err := ValidatePosition("x", "200"); !errors.As(err, &validationError) || validationError.Field != "x" {
		test.Fatalf("expected ValidationError for x, got %v", err)
	}
	if err := ValidatePosition("y", "-3"); err != nil {
		test.Fatalf("expected valid position, got %v", err)
	}
	if err := ValidateName("bad name"); !errors.As(err, &validationError) {
		test.Fatalf("expected ValidationError for name, got %v", err)
	}
}
