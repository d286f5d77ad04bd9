// Package logging builds the structured logger shared by every command
package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"

	"github.com/Manu343726/servoemu/pkg/utils"
)

var (
	ErrInvalidLevel  = errors.New("invalid log level")
	ErrInvalidFormat = errors.New("invalid log format")
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

type Config struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	// also write JSON records to this file when not empty
	File string `mapstructure:"file" yaml:"file"`
}

func Default() Config {
	return Config{
		Level:  "info",
		Format: FormatText,
	}
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level

	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, utils.MakeError(ErrInvalidLevel, "'%v'", s)
	}

	return level, nil
}

func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}

	switch c.Format {
	case "", FormatText, FormatJSON:
		return nil
	default:
		return utils.MakeError(ErrInvalidFormat, "'%v' (expected %v or %v)", c.Format, FormatText, FormatJSON)
	}
}

// New returns a logger writing to console and, if configured, to the log file.
// The returned closer releases the file.
func New(config Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}

	level, _ := ParseLevel(config.Level)
	options := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler

	if config.Format == FormatJSON {
		handlers = append(handlers, slog.NewJSONHandler(console, options))
	} else {
		handlers = append(handlers, slog.NewTextHandler(console, options))
	}

	var closer io.Closer = nopCloser{}

	if config.File != "" {
		file, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, utils.MakeError(err, "opening log file %v", config.File)
		}

		handlers = append(handlers, slog.NewJSONHandler(file, options))
		closer = file
	}

	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
