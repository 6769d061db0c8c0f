package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.viam.com/rdk/logging"

	"jog_arm/controllers"
)

func buildControllersCommand(logger logging.Logger) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "controllers",
		Short: "Validate a controller_list YAML file and print its controllers",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := controllers.LoadFile(file, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, info := range registry.Controllers() {
				fmt.Fprintf(out, "%s\t%s\t%v\n", info.Name, info.ActionName(), info.Joints)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file holding controller_list")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
