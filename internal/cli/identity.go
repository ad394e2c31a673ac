package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/roach88/meshroom/internal/auth"
	"github.com/roach88/meshroom/internal/crypto"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// NewIdentityCommand creates the identity command group.
func NewIdentityCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Derive and inspect local peer identities",
	}

	cmd.AddCommand(newIdentityInitCommand(rootOpts))

	return cmd
}

func newIdentityInitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init <data-dir>",
		Short: "Derive this install's identity and print its fingerprint",
		Long: `init prompts for key material (a passphrase, typically), derives
this install's signing identity via the same KDF a Host uses at open
time, and prints the resulting public fingerprint. It does not write
anything beyond the per-install salt file data-dir already holds (or
creates, on a first run) — identity itself is never persisted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIdentityInit(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runIdentityInit(opts *RootOptions, dataDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	keyMaterial, err := promptKeyMaterial(formatter.GetErrWriter())
	if err != nil {
		_ = formatter.Error(ErrCodeInput, "failed to read key material", err.Error())
		return NewExitError(ExitCommandError, fmt.Sprintf("read key material: %v", err))
	}

	salt, err := crypto.LoadOrCreateSalt(dataDir)
	if err != nil {
		_ = formatter.Error(ErrCodeSalt, "failed to load or create salt", err.Error())
		return NewExitError(ExitCommandError, fmt.Sprintf("load salt: %v", err))
	}

	identity, err := crypto.DeriveIdentity(keyMaterial, salt)
	for i := range keyMaterial {
		keyMaterial[i] = 0
	}
	if err != nil {
		_ = formatter.Error(ErrCodeDerive, "failed to derive identity", err.Error())
		return NewExitError(ExitCommandError, fmt.Sprintf("derive identity: %v", err))
	}

	fingerprint := auth.PeerKey(identity.SigningPublic)

	if opts.Format == "json" {
		return formatter.Success(map[string]string{"fingerprint": fingerprint})
	}
	fmt.Fprintf(formatter.Writer, "fingerprint: %s\n", fingerprint)
	return nil
}

// promptKeyMaterial reads key material from the controlling terminal
// without echoing it, mirroring spec.md §6's `key_material` input.
func promptKeyMaterial(w io.Writer) ([]byte, error) {
	fmt.Fprint(w, "Enter key material: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}
