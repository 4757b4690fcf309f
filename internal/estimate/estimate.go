// Package estimate computes a pre-flight work-unit budget for a set of
// segments. The numbers are informational and never gate dispatch.
package estimate

import (
	"fmt"
	"math"

	"github.com/mgpai22/captionstitch/internal/segment"
)

type Options struct {
	SamplingRateHz         float64
	UnitCostLow            int
	UnitCostHigh           int
	FixedOverheadPerSecond float64
	LowFidelity            bool
}

type Report struct {
	TotalUnits      int     `json:"total_units"`
	PerSegmentUnits []int   `json:"per_segment_units"`
	AverageUnits    float64 `json:"average_units"`
	MaxUnits        int     `json:"max_units"`
}

func (o Options) frameCost() int {
	if o.LowFidelity {
		return o.UnitCostLow
	}
	return o.UnitCostHigh
}

func (o Options) validate() error {
	if math.IsNaN(o.SamplingRateHz) || o.SamplingRateHz < 0 {
		return fmt.Errorf("%w: sampling rate must be non-negative, got %v", segment.ErrInvalidArgument, o.SamplingRateHz)
	}
	if o.UnitCostLow < 0 || o.UnitCostHigh < 0 {
		return fmt.Errorf("%w: unit costs must be non-negative", segment.ErrInvalidArgument)
	}
	if math.IsNaN(o.FixedOverheadPerSecond) || o.FixedOverheadPerSecond < 0 {
		return fmt.Errorf("%w: fixed overhead must be non-negative, got %v", segment.ErrInvalidArgument, o.FixedOverheadPerSecond)
	}
	return nil
}

// Estimate returns the work units each segment is expected to cost:
// round(duration * (samplingRate*frameCost + fixedOverhead)).
func Estimate(segments []segment.Segment, opts Options) (Report, error) {
	if err := opts.validate(); err != nil {
		return Report{}, err
	}

	perSecond := opts.SamplingRateHz*float64(opts.frameCost()) + opts.FixedOverheadPerSecond

	report := Report{PerSegmentUnits: make([]int, len(segments))}
	for i, seg := range segments {
		units := int(math.Round(seg.Duration() * perSecond))
		report.PerSegmentUnits[i] = units
		report.TotalUnits += units
		if units > report.MaxUnits {
			report.MaxUnits = units
		}
	}
	if len(segments) > 0 {
		report.AverageUnits = float64(report.TotalUnits) / float64(len(segments))
	}
	return report, nil
}
