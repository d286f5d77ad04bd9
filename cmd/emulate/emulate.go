package emulate

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Manu343726/servoemu/pkg/config"
	"github.com/Manu343726/servoemu/pkg/hw/servo/emulator"
	"github.com/Manu343726/servoemu/pkg/hw/servo/faults"
	"github.com/Manu343726/servoemu/pkg/hw/servo/trace"
	"github.com/Manu343726/servoemu/pkg/logging"
	"github.com/Manu343726/servoemu/pkg/transport"
	"github.com/Manu343726/servoemu/pkg/utils"
)

// flag name to config key
var boundFlags = map[string]string{
	"transport":       "bus.transport",
	"device":          "bus.device",
	"baud":            "bus.baud_rate",
	"address":         "bus.address",
	"tick":            "bus.tick_interval",
	"drop-rate":       "faults.packet_drop_rate",
	"corruption-rate": "faults.checksum_corruption_rate",
	"delay-min":       "faults.response_delay_range.min_ms",
	"delay-max":       "faults.response_delay_range.max_ms",
	"timeouts":        "faults.timeout_simulation",
	"seed":            "faults.random_seed",
}

var EmulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Run an emulated servo bus",
	Long: `Runs the servos listed in the configuration on the selected transport until interrupted.

With the pty transport a pseudo terminal is created and its path printed (use --device to
also publish it as a symlink). Point the driver under test at it as if it was the serial
adapter of a real bus.`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	flags := EmulateCmd.Flags()

	kinds := strings.Join(utils.Map(transport.Kinds(), func(kind transport.Kind) string { return string(kind) }), ", ")

	flags.StringP("transport", "t", "", "Transport kind ("+kinds+")")
	flags.StringP("device", "d", "", "Serial device, or symlink to create for the pseudo terminal")
	flags.Int("baud", 0, "Serial baud rate")
	flags.StringP("address", "a", "", "Websocket listen address")
	flags.Duration("tick", 0, "Servo simulation tick")
	flags.Float64("drop-rate", 0, "Probability of dropping a response")
	flags.Float64("corruption-rate", 0, "Probability of corrupting the checksum of a response")
	flags.Int("delay-min", 0, "Minimum response delay in milliseconds")
	flags.Int("delay-max", 0, "Maximum response delay in milliseconds")
	flags.Bool("timeouts", false, "Never answer any servo (use faults.timeout_devices to silence only some)")
	flags.Int64("seed", 0, "Fault injection random seed")

	flags.Bool("trace", false, "Print every dispatched request and its response")
	flags.BoolP("verbose", "v", false, "Dump decoded packets along with traces")
	flags.Bool("watch", false, "Reload the fault configuration when the config file changes")

	for _, name := range utils.SortedKeys(boundFlags) {
		cobra.CheckErr(viper.BindPFlag(boundFlags[name], flags.Lookup(name)))
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	registry, err := cfg.Registry(logger)
	if err != nil {
		return err
	}

	options, err := cfg.EmulatorOptions()
	if err != nil {
		return err
	}
	options = append(options, emulator.WithLogger(logger))

	if traced, _ := cmd.Flags().GetBool("trace"); traced {
		verbose, _ := cmd.Flags().GetBool("verbose")
		tracer := trace.NewConsoleTracer(os.Stdout, verbose)
		options = append(options, emulator.WithMiddleware(trace.Middleware("bus", tracer)))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	link, err := transport.Open(ctx, cfg.Bus.TransportOptions(), logger)
	if err != nil {
		return err
	}

	emu, err := emulator.New(registry, link, options...)
	if err != nil {
		link.Close()
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "servos %v listening on %v\n", registry.IDs(), link.Name())

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		if viper.ConfigFileUsed() == "" {
			logger.Warn("no config file to watch")
		} else {
			config.WatchFaults(viper.GetViper(), func(faultConfig faults.Config, err error) {
				if err == nil {
					err = emu.SetFaultConfig(faultConfig)
				}
				if err != nil {
					logger.Error("fault configuration not reloaded", "file", viper.ConfigFileUsed(), "error", err)
				}
			})
		}
	}

	return emu.Run(ctx)
}
