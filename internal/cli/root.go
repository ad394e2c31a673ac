package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds the flags every meshroomctl subcommand reads through
// an OutputFormatter (Format, Verbose) — cobra binds them once on the
// root command and every subcommand closes over the same *RootOptions.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats are the --format values a command will accept.
var ValidFormats = []string{"text", "json"}

// NewRootCommand builds meshroomctl's command tree: schema and identity
// are the only two groups, since an application host's own CLI (spec.md
// §6 leaves that out of scope) is a separate, larger surface this tool
// does not attempt.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "meshroomctl",
		Short: "meshroomctl - development tooling for meshroom data models",
		Long:  "Lint and dump meshroom data-model DSL files, and bootstrap local peer identities for development.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("unsupported --format %q, want one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "print diagnostic detail alongside a command's result")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewIdentityCommand(opts))

	return cmd
}

// isValidFormat reports whether format is a member of ValidFormats.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
