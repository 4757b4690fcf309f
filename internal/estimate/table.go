package estimate

import (
	"fmt"
	"sort"
	"strings"
)

// Tier is one calibration row of the cost table.
type Tier struct {
	SamplingRateHz         float64 `toml:"sampling_rate_hz"`
	UnitCostLow            int     `toml:"unit_cost_low"`
	UnitCostHigh           int     `toml:"unit_cost_high"`
	FixedOverheadPerSecond float64 `toml:"fixed_overhead_per_second"`
}

// CostTable maps a transcription backend name to its calibration.
type CostTable map[string]Tier

// defaults tuned for Gemini media tokenization
var DefaultTier = Tier{
	SamplingRateHz:         1,
	UnitCostLow:            66,
	UnitCostHigh:           258,
	FixedOverheadPerSecond: 32,
}

func DefaultTable() CostTable {
	return CostTable{
		"gemini": DefaultTier,
		"openai": {
			// whisper bills audio only
			FixedOverheadPerSecond: 25,
		},
	}
}

// OptionsFor looks up the tier for backend and builds estimator options.
func (t CostTable) OptionsFor(backend string, lowFidelity bool) (Options, error) {
	tier, ok := t[strings.ToLower(strings.TrimSpace(backend))]
	if !ok {
		return Options{}, fmt.Errorf("no cost tier for backend %q (known: %s)", backend, strings.Join(t.names(), ", "))
	}
	return Options{
		SamplingRateHz:         tier.SamplingRateHz,
		UnitCostLow:            tier.UnitCostLow,
		UnitCostHigh:           tier.UnitCostHigh,
		FixedOverheadPerSecond: tier.FixedOverheadPerSecond,
		LowFidelity:            lowFidelity,
	}, nil
}

func (t CostTable) names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
