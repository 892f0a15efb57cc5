// Package credit is the pure accounting primitive: it converts raw
// consumption units (language-model tokens) into abstract credits and
// estimates the cost of a metered exchange before and after it runs.
package credit

import (
	"math"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// UnitsPerCredit is the fixed exchange rate between raw consumption units
// and one human-facing credit.
const UnitsPerCredit = 10_000

// PrecheckMultiplier pads a pre-action estimate to cover the unseen response
// plus formatting overhead. Deliberately conservative: over-estimating here
// avoids denying an action halfway through.
const PrecheckMultiplier = 2.5

// ExactChargeMultiplier is applied to the measured size of a completed
// exchange (both sides known) to cover formatting overhead.
const ExactChargeMultiplier = 1.1

// RawUnitsToCredits converts raw units into fractional credits.
func RawUnitsToCredits(units int64) float64 {
	return float64(units) / UnitsPerCredit
}

// CreditsToRawUnits is the inverse conversion, rounded to the nearest unit.
func CreditsToRawUnits(credits float64) int64 {
	return int64(math.Round(credits * UnitsPerCredit))
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// EstimateRawUnits counts the tokens of the given text using the cl100k_base
// encoding. When the encoding cannot be loaded (offline environments) it
// falls back to the usual ~4 bytes/token heuristic.
func EstimateRawUnits(text string) int64 {
	if text == "" {
		return 0
	}
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	if enc != nil {
		return int64(len(enc.Encode(text, nil, nil)))
	}
	return int64(len(text)/4 + 1)
}

// EstimatePrecheckCost is the conservative pre-action cost of an exchange
// whose response has not been produced yet.
func EstimatePrecheckCost(inputText string) int64 {
	return int64(math.Ceil(float64(EstimateRawUnits(inputText)) * PrecheckMultiplier))
}

// ExactCharge is the post-hoc cost of a completed exchange from measured
// consumption of both sides.
func ExactCharge(promptUnits, completionUnits int64) int64 {
	if promptUnits < 0 {
		promptUnits = 0
	}
	if completionUnits < 0 {
		completionUnits = 0
	}
	return int64(math.Ceil(float64(promptUnits+completionUnits) * ExactChargeMultiplier))
}
