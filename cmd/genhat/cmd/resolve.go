package cmd

import (
	"context"
	"strings"

	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <backend>",
	Short: "Show which executable a backend resolves to",
	Long: `Run executable discovery for a backend and print the result. On failure
every checked path is listed.

Backends: text-generation, speech-synthesis

Example:
  genhat resolve text-generation`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, err := buildApp(&launcher.NoopEventPublisher{})
	if err != nil {
		return err
	}
	defer a.Shutdown(context.Background())

	exe, err := a.Resolve(args[0])
	if err != nil {
		if launcher.IsErrorCode(err, launcher.ErrorCodeInvalidDescriptor) {
			uiInstance.Subtle("Known backends: " + strings.Join(a.Backends(), ", "))
		}
		return err
	}

	uiInstance.Success("Resolved " + exe.Backend)
	uiInstance.KeyValue("Executable", exe.Path)
	uiInstance.KeyValue("Working dir", exe.Dir)
	return nil
}
