package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a vendwatch config file",
		Args:  cobra.NoArgs,
		RunE:  runValidate,
	}

	cmd.Flags().StringP("config", "c", "", "Path to config file (default: ./vendwatch.yaml, then ~/.vendwatch/config.yaml)")
	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

type validateResult struct {
	Path   string   `json:"path,omitempty"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func runValidate(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return exitError(exitValidation, "unknown format %q (use text or json)", format)
	}
	out := cmd.OutOrStdout()

	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	problems := validationMessages(cfg.Validate())
	result := validateResult{Path: path, Valid: len(problems) == 0, Errors: problems}

	if format == "json" {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else {
		source := path
		if source == "" {
			source = "built-in defaults"
		}
		if result.Valid {
			fmt.Fprintf(out, "%s: valid\n", source)
		} else {
			fmt.Fprintf(out, "%s: %d error(s)\n", source, len(problems))
			for _, p := range problems {
				fmt.Fprintf(out, "  - %s\n", p)
			}
		}
	}

	if !result.Valid {
		return exitError(exitValidation, "validation failed")
	}
	return nil
}
