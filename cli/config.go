package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/petal-labs/vendwatch/config"
)

// loadConfig resolves the --config flag, maps lookup failures onto exit codes
// and returns the parsed file with the path it came from ("" for defaults).
func loadConfig(cmd *cobra.Command) (config.File, string, error) {
	explicit, _ := cmd.Flags().GetString("config")
	cfg, path, err := config.Resolve(explicit)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return config.File{}, "", exitError(exitFileNotFound, "%v", err)
		}
		return config.File{}, path, exitError(exitValidation, "loading config: %v", err)
	}
	return cfg, path, nil
}

// validationMessages flattens a joined validation error into one line per problem.
func validationMessages(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, validationMessages(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
