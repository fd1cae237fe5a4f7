package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version = "dev"     // semantic version (e.g., "1.2.3")
	commit  = "unknown" // git commit SHA
	date    = "unknown" // build timestamp
)

// SetVersion sets the version information displayed by --version. The
// main package calls this with values injected via ldflags at build time.
func SetVersion(v, c, d string) {
	if v != "" {
		version = v
	}
	if c != "" {
		commit = c
	}
	if d != "" {
		date = d
	}
}

// ExitError carries a specific process exit code alongside the error.
// Commands return it when the shell contract distinguishes outcomes,
// such as validate's violation (1) versus parse failure (2) codes.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by Execute to a process exit code.
// Errors without an explicit code exit 1; nil exits 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// Execute runs the meshctl CLI and returns an error if any command
// fails. The context carries cancellation from the caller, typically a
// signal context, so slow cloud calls abort on Ctrl+C.
func Execute(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:          "meshctl",
		Short:        "meshctl inspects mesh exports and drives Connect Mesh devices",
		Long:         `meshctl is the companion tool to the ConnectMesh Bridge. It validates and summarises mesh network export documents offline, and performs device, light and scene operations directly against the Connect Mesh cloud API.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("meshctl %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newValidateCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newDevicesCmd())
	root.AddCommand(newLightCmd())
	root.AddCommand(newScenesCmd())
	root.AddCommand(newHashpwCmd())

	return root.ExecuteContext(ctx)
}
