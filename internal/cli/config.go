package cli

import (
	"fmt"

	"github.com/mgpai22/captionstitch/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a sample configuration file",
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		force, _ := cmd.Flags().GetBool("force")

		if path == "" {
			path = configPath
		}
		if path == "" {
			defaultPath, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			path = defaultPath
		}

		if err := config.CreateSample(path, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:         "validate",
	Short:       "Check the configuration file",
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		_, resolved, exists, err := config.Load(configPath)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !exists {
			fmt.Fprintf(out, "No configuration file at %s; defaults are valid\n", resolved)
			return nil
		}
		fmt.Fprintf(out, "Configuration valid: %s\n", resolved)
		return nil
	},
}

func init() {
	configInitCmd.Flags().String("path", "", "Where to write the file (default ~/.config/captionstitch/config.toml)")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
