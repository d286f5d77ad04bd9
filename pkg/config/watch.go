package config

import (
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Manu343726/servoemu/pkg/hw/servo/faults"
	"github.com/Manu343726/servoemu/pkg/utils"
)

// LoadDotEnv loads the first existing .env file among paths into the process
// environment, without overriding variables that are already set. It returns
// the file loaded, if any.
func LoadDotEnv(paths ...string) (string, error) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}

		if err := godotenv.Load(path); err != nil {
			return "", utils.MakeError(err, "loading %v", path)
		}
		return path, nil
	}

	return "", nil
}

// WatchFaults re-reads the fault section whenever the config file changes and
// hands the result to onChange. Invalid files are reported through err.
func WatchFaults(v *viper.Viper, onChange func(config faults.Config, err error)) {
	v.OnConfigChange(func(event fsnotify.Event) {
		var section Faults
		if err := v.UnmarshalKey("faults", &section); err != nil {
			onChange(faults.Config{}, err)
			return
		}

		onChange(section.ToFaults())
	})
	v.WatchConfig()
}
