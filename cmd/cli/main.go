// Command jogctl checks controller descriptors and runs single jog steps
// against a kinematics bridge without a robot attached.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.viam.com/rdk/logging"
)

func main() {
	if err := buildCLI().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildCLI() *cobra.Command {
	var debug bool
	logger := logging.NewLogger("jogctl")

	root := &cobra.Command{
		Use:           "jogctl",
		Short:         "Offline tools for the jog-frame service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(*cobra.Command, []string) {
			if debug {
				logger.SetLevel(logging.DEBUG)
			}
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(buildControllersCommand(logger))
	root.AddCommand(buildStepCommand(logger))
	return root
}
