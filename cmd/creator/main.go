// Command creator runs the voice-driven 3D model creation agent.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/jakesimonds/Creator/internal/logging"
)

var version = "dev"

var (
	configPath string
	// fsys backs every file the CLI reads or writes.
	fsys afero.Fs = afero.NewOsFs()
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "creator",
		Short: "Voice-driven 3D model creation agent",
		Long: `creator listens to a live transcription stream, waits for the trigger
phrase "creator", confirms the spoken command with a yes/no turn and submits
it to a 3D model generation service.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (or set CREATOR_CONFIG_FILE)")
	root.AddCommand(newServeCmd(), newMCPCmd(), newBitmapCmd())
	return root
}

func main() {
	logging.Init()
	defer logging.Sync()

	if err := newRootCmd().Execute(); err != nil {
		logging.Errorw("creator failed", "err", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		_ = logging.Sync()
		os.Exit(1)
	}
}
