package governance

import (
	"math"
	"testing"
)

func TestClampAmount(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		requested float64
		available float64
		expected  float64
	}{
		{requested: 100, available: 500, expected: 100},
		{requested: 800, available: 500, expected: 500},
		{requested: -1, available: 500, expected: 0},
		{requested: 10, available: -5, expected: 0},
		{requested: math.NaN(), available: 5, expected: 0},
	}
	for _, testCase := range testCases {
		if got := ClampAmount(testCase.requested, testCase.available); got != testCase.expected {
			test.Fatalf("clamp(%v, %v): expected %v, got %v", testCase.requested, testCase.available, testCase.expected, got)
		}
	}
}

func TestToWei(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		amount   float64
		expected string
	}{
		{amount: 100, expected: "100000000000000000000"},
		{amount: 0.1, expected: "100000000000000000"},
		{amount: 1.000000000000000001, expected: "1000000000000000000"},
		{amount: 0, expected: "0"},
		{amount: -2, expected: "0"},
		{amount: math.Inf(1), expected: "0"},
	}
	for _, testCase := range testCases {
		if got := ToWei(testCase.amount).String(); got != testCase.expected {
			test.Fatalf("toWei(%v): expected %s, got %s", testCase.amount, testCase.expected, got)
		}
	}
}
