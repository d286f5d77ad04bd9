package console

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Manu343726/servoemu/pkg/config"
	"github.com/Manu343726/servoemu/pkg/logging"
)

var ConsoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Talk to an in-process servo bus interactively",
	Long: `Starts the configured servos in process and opens a prompt to send them requests.

Every request is encoded and sent through the same byte stream a driver would use, so the
fault injection settings apply. Use 'faults' to change them on the fly and 'dump' to look
inside the servos.`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	ConsoleCmd.Flags().Duration("timeout", 50*time.Millisecond, "Time to wait for a response, on top of the maximum injected delay")
}

// getHistoryFilePath returns the path to the console history file
func getHistoryFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".servoemu_history"
	}
	return filepath.Join(homeDir, ".servoemu_history")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	// info records would interleave with the prompt
	if cfg.Logging.Level == logging.Default().Level {
		cfg.Logging.Level = "warn"
	}

	logger, closer, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	timeout, _ := cmd.Flags().GetDuration("timeout")

	s, err := newSession(cfg, logger, timeout)
	if err != nil {
		return err
	}
	defer s.Close()

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(input string) []string {
		var completions []string
		for _, name := range commandNames() {
			if strings.HasPrefix(name, strings.ToLower(input)) {
				completions = append(completions, name)
			}
		}
		return completions
	})

	historyFile := getHistoryFilePath()
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	out := cmd.OutOrStdout()
	colorSuccess.Fprintf(out, "servos %v ready. Type 'help' for available commands.\n", s.ids)

	loop(line, s, out)

	if f, err := os.Create(historyFile); err == nil {
		line.WriteHistory(f)
		f.Close()
	}

	return nil
}

func loop(line *liner.State, s *session, out io.Writer) {
	last := ""

	for {
		input, err := line.Prompt("(servoemu) ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return
			}
			colorError.Fprintf(out, "Error reading input: %v\n", err)
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			input = last
		} else if input != last {
			line.AppendHistory(input)
		}
		last = input

		if err := s.execute(input, out); err != nil {
			if errors.Is(err, ErrQuit) {
				return
			}
			colorError.Fprintf(out, "%v\n", err)
		}
	}
}
