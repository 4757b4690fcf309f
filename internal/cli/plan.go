package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mgpai22/captionstitch/internal/audio"
	"github.com/mgpai22/captionstitch/internal/estimate"
	"github.com/mgpai22/captionstitch/internal/segment"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan [media_file]",
	Short: "Show how a file would be segmented and the estimated work",
	Long: `Plan splits the requested range the same way generate does and prints
each segment with its estimated work units. Nothing is sent to a provider.

Pass --duration instead of a file to plan for a length in seconds.

Examples:
  captionstitch plan lecture.mp4
  captionstitch plan --duration 5400 --max-segment 900
  captionstitch plan podcast.mp3 --provider openai --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().Float64("duration", 0, "Media length in seconds, instead of probing a file")
	planCmd.Flags().Float64("max-segment", 0, "Maximum segment length in seconds")
	planCmd.Flags().String("provider", "", "Backend whose cost tier is used (gemini, openai)")
	planCmd.Flags().Bool("low-fidelity", false, "Use the low-fidelity unit cost")
	planCmd.Flags().String("start", "", "Start of the range (seconds or H:MM:SS)")
	planCmd.Flags().String("end", "", "End of the range (seconds or H:MM:SS)")
	planCmd.Flags().Bool("json", false, "Print the plan as JSON")
}

type planOutput struct {
	Range    segment.TimeRange `json:"range"`
	Segments []segment.Segment `json:"segments"`
	Estimate estimate.Report   `json:"estimate"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	mediaDuration, _ := flags.GetFloat64("duration")

	switch {
	case len(args) == 1:
		if err := checkMediaFile(args[0]); err != nil {
			return err
		}
		d, err := audio.GetDuration(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get duration: %w", err)
		}
		mediaDuration = d.Seconds()
	case mediaDuration <= 0:
		return fmt.Errorf("a media file or a positive --duration is required")
	}

	start, _ := flags.GetString("start")
	end, _ := flags.GetString("end")
	rng, err := requestRange(start, end, mediaDuration)
	if err != nil {
		return err
	}

	maxSegment := cfg.Segmenting.MaxSegmentSeconds
	if v, _ := flags.GetFloat64("max-segment"); v > 0 {
		maxSegment = v
	}
	segs, err := segment.Split(rng, maxSegment)
	if err != nil {
		return err
	}

	backend := cfg.Transcription.Provider
	if v, _ := flags.GetString("provider"); v != "" {
		backend = v
	}
	lowFidelity := cfg.Estimate.LowFidelity
	if v, _ := flags.GetBool("low-fidelity"); v {
		lowFidelity = true
	}
	opts, err := cfg.Estimate.Tiers.OptionsFor(backend, lowFidelity)
	if err != nil {
		return err
	}
	report, err := estimate.Estimate(segs, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := flags.GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(planOutput{Range: rng, Segments: segs, Estimate: report})
	}

	fmt.Fprintln(out, planTable(segs, report))
	mode := "sequential"
	if len(segs) > 1 {
		mode = "parallel"
	}
	fmt.Fprintf(out, "%d segment(s), %s, up to %.0fs each\n", len(segs), mode, maxSegment)
	return nil
}
