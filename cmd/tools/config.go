package tools

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Manu343726/servoemu/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Prints the configuration resulting from defaults, the config file, the env file and
SERVOEMU_* environment variables, as YAML. Use --defaults to get a starting config file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()

		if defaults, _ := cmd.Flags().GetBool("defaults"); !defaults {
			var err error
			if cfg, err = config.Load(viper.GetViper()); err != nil {
				return err
			}
		}

		document, err := cfg.YAML()
		if err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), document)
		return nil
	},
}

func init() {
	ToolsCmd.AddCommand(configCmd)
	configCmd.Flags().Bool("defaults", false, "Print the built-in defaults instead")
}
