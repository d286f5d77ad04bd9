package tools

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Manu343726/servoemu/pkg/hw/servo/protocol"
	"github.com/Manu343726/servoemu/pkg/hw/servo/registers"
	"github.com/Manu343726/servoemu/pkg/utils"
)

var supportedModules = map[string]func() string{
	"servo.protocol":  protocol.DocString,
	"servo.registers": registers.DocString,
}

var docsCmd = &cobra.Command{
	Use:   "docs module",
	Short: "Show servoemu documentation",
	Long: `Dumps the documentation of the specified servoemu module.
By default the tool dumps the documentation to stdout, but it can be redirected to a file using the --output flag.

Supported modules:
` + strings.Join(utils.Map(utils.SortedKeys(supportedModules), func(module string) string { return "  " + module }), "\n"),
	Args:      cobra.MatchAll(cobra.OnlyValidArgs, cobra.ExactArgs(1)),
	ValidArgs: utils.SortedKeys(supportedModules),
	RunE: func(cmd *cobra.Command, args []string) error {
		module := args[0]
		outputFile, _ := cmd.Flags().GetString("output")
		if outputFile == "" {
			fmt.Fprintln(cmd.OutOrStdout(), supportedModules[module]())
			return nil
		}

		file, err := os.Create(outputFile)
		if err != nil {
			return utils.MakeError(err, "creating %v", outputFile)
		}
		defer file.Close()

		_, err = fmt.Fprintln(file, supportedModules[module]())
		return err
	},
}

func init() {
	ToolsCmd.AddCommand(docsCmd)
	docsCmd.Flags().StringP("output", "o", "", "Output file. If not specified, the documentation is dumped to stdout.")
}
