package governance

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ClampAmount bounds a requested token amount to [0, available].
func ClampAmount(requested float64, available float64) float64 {
	if math.IsNaN(requested) || math.IsNaN(available) {
		return 0
	}
	return math.Max(math.Min(requested, available), 0)
}

// ToWei converts a decimal token amount into its 18-decimal integer representation.
// Digits beyond the 18th decimal are truncated.
func ToWei(amount float64) *big.Int {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return big.NewInt(0)
	}
	formatted := strconv.FormatFloat(amount, 'f', -1, 64)
	integerPart, fractionPart, _ := strings.Cut(formatted, ".")
	if len(fractionPart) > TokenDecimals {
		fractionPart = fractionPart[:TokenDecimals]
	}
	fractionPart += strings.Repeat("0", TokenDecimals-len(fractionPart))
	value, ok := new(big.Int).SetString(integerPart+fractionPart, 10)
	if !ok {
		return big.NewInt(0)
	}
	return value
}

// FromWei converts an 18-decimal integer amount into token units.
func FromWei(raw *big.Int) float64 {
	if raw == nil {
		return 0
	}
	units, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), new(big.Float).SetInt(tokenScale)).Float64()
	return units
}
