package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear cached segment transcriptions",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status [media_file]",
	Short: "Show how many segments of a file are cached",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, fingerprint, err := openCache(ctx, args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Count(ctx, fingerprint)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable(
			[]string{"File", "Fingerprint", "Cached segments", "Store"},
			[][]string{{args[0], shortFingerprint(fingerprint), fmt.Sprintf("%d", n), store.Path()}},
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
		))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [media_file]",
	Short: "Forget cached segments of a file so the next run transcribes it again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, fingerprint, err := openCache(ctx, args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Forget(ctx, fingerprint)
		if err != nil {
			return err
		}
		logger.Infow("Cleared cached segments", "file", args[0], "removed", n)
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached segment(s) for %s\n", n, args[0])
		return nil
	},
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
