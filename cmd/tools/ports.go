package tools

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Manu343726/servoemu/pkg/transport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List the serial ports of this machine",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.SerialPorts()
		if err != nil {
			return err
		}

		if len(ports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no serial ports found")
		}
		for _, port := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), port)
		}
		return nil
	},
}

func init() {
	ToolsCmd.AddCommand(portsCmd)
}
