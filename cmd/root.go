package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Manu343726/servoemu/cmd/console"
	"github.com/Manu343726/servoemu/cmd/emulate"
	"github.com/Manu343726/servoemu/cmd/tools"
	"github.com/Manu343726/servoemu/pkg/config"
)

var cfgFile string
var envFile string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "servoemu",
	Short: "An emulator for serial bus servo actuators",
	Long: `Servoemu emulates a bus of STS/SCS style serial servos.

It speaks the half duplex packet protocol used by those servos (PING, READ, WRITE,
REG_WRITE, ACTION and SYNC_WRITE) over a pseudo terminal, a serial port or a
websocket, so drivers can be tested without hardware. Network faults (dropped,
corrupted, delayed and missing responses) can be injected deterministically.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := RootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.AddCommand(emulate.EmulateCmd, console.ConsoleCmd, tools.ToolsCmd)
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.servoemu.yaml)")
	RootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with SERVOEMU_* overrides")
	RootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	RootCmd.PersistentFlags().String("log-format", "", "log format (text or json)")

	cobra.CheckErr(viper.BindPFlag("logging.level", RootCmd.PersistentFlags().Lookup("log-level")))
	cobra.CheckErr(viper.BindPFlag("logging.format", RootCmd.PersistentFlags().Lookup("log-format")))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	loaded, err := config.LoadDotEnv(envFile)
	cobra.CheckErr(err)
	if loaded != "" {
		fmt.Fprintln(os.Stderr, "Using env file:", loaded)
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in the working and home directories with name ".servoemu" (without extension).
		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".servoemu")
	}

	config.Setup(viper.GetViper())

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		cobra.CheckErr(err)
	}
}
