package estimate

import (
	"errors"
	"testing"

	"github.com/mgpai22/captionstitch/internal/segment"
)

func TestEstimate(t *testing.T) {
	segs, err := segment.Split(segment.TimeRange{Start: 0, End: 100}, 40)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	opts := Options{
		SamplingRateHz:         1,
		UnitCostLow:            66,
		UnitCostHigh:           258,
		FixedOverheadPerSecond: 32,
	}

	tests := []struct {
		name        string
		lowFidelity bool
		wantPer     int
	}{
		// 33.33s * (258 + 32) = 9666.67
		{"high fidelity", false, 9667},
		// 33.33s * (66 + 32) = 3266.67
		{"low fidelity", true, 3267},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := opts
			o.LowFidelity = tt.lowFidelity
			report, err := Estimate(segs, o)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(report.PerSegmentUnits) != 3 {
				t.Fatalf("expected 3 per-segment values, got %d", len(report.PerSegmentUnits))
			}
			for i, u := range report.PerSegmentUnits {
				if u != tt.wantPer {
					t.Errorf("segment %d units = %d, want %d", i, u, tt.wantPer)
				}
			}
			if report.TotalUnits != 3*tt.wantPer {
				t.Errorf("total = %d, want %d", report.TotalUnits, 3*tt.wantPer)
			}
			if report.MaxUnits != tt.wantPer {
				t.Errorf("max = %d, want %d", report.MaxUnits, tt.wantPer)
			}
			if report.AverageUnits != float64(tt.wantPer) {
				t.Errorf("average = %v, want %d", report.AverageUnits, tt.wantPer)
			}
		})
	}
}

func TestEstimateEmpty(t *testing.T) {
	report, err := Estimate(nil, Options{SamplingRateHz: 1, UnitCostHigh: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalUnits != 0 || report.AverageUnits != 0 || report.MaxUnits != 0 {
		t.Errorf("empty report = %+v", report)
	}
}

func TestEstimateInvalidOptions(t *testing.T) {
	_, err := Estimate(nil, Options{SamplingRateHz: -1})
	if !errors.Is(err, segment.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCostTableOptionsFor(t *testing.T) {
	table := DefaultTable()

	opts, err := table.OptionsFor(" Gemini ", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.UnitCostLow != 66 || !opts.LowFidelity {
		t.Errorf("options = %+v", opts)
	}

	if _, err := table.OptionsFor("unknown", false); err == nil {
		t.Error("expected error for unknown backend")
	}
}
